// File: reactor/dispatcher.go
//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Dispatcher is the cross-thread funnel: request entry points enqueue
// commands on a lock-free queue and wake the reactor, which applies them
// on its own goroutine. This keeps the send queue head, the receive arena
// and the descriptor under single-writer discipline.

package reactor

import (
	"github.com/momentics/hioload-epoll/api"
	"github.com/momentics/hioload-epoll/control"
	"github.com/momentics/hioload-epoll/core/buffer"
	"github.com/momentics/hioload-epoll/core/concurrency"
	"github.com/momentics/hioload-epoll/internal/trace"
	"github.com/momentics/hioload-epoll/socket"
)

type opKind uint8

const (
	opSend opKind = iota
	opDisconnect
	opUpgrade
)

type op struct {
	kind    opKind
	handle  *socket.Handle
	payload socket.Payload
	upgrade socket.ProtocolUpgrade
}

// DefaultOpQueueCapacity bounds pending cross-thread commands.
const DefaultOpQueueCapacity = 4096

// Dispatcher implements socket.Dispatcher. Enqueue may happen from any
// goroutine; apply runs only on the reactor goroutine.
type Dispatcher struct {
	ops     *concurrency.LockFreeQueue[op]
	wake    func()
	metrics *control.Metrics
}

var _ socket.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher builds a dispatcher; wake must rouse the reactor loop and
// be callable from any goroutine.
func NewDispatcher(capacity int, wake func()) *Dispatcher {
	if capacity <= 0 {
		capacity = DefaultOpQueueCapacity
	}
	return &Dispatcher{
		ops:  concurrency.NewLockFreeQueue[op](capacity),
		wake: wake,
	}
}

func (d *Dispatcher) push(o op) {
	if !d.ops.Enqueue(o) {
		trace.Warnf("reactor: op queue full, dropping %d for handle %s", o.kind, o.handle.ID())
		if d.metrics != nil {
			d.metrics.Dropped.Add(1)
		}
		// A dropped response never transmits; its record still flushes.
		if o.kind == opSend && o.payload.Logger != nil {
			o.payload.Logger.SetResponseBytes(api.ResponseBytesFailure)
			o.payload.Logger.Write()
		}
		return
	}
	if d.wake != nil {
		d.wake()
	}
}

// SetSendData schedules transmission of p on h.
func (d *Dispatcher) SetSendData(h *socket.Handle, p socket.Payload) {
	d.push(op{kind: opSend, handle: h, payload: p})
}

// SetDisconnect schedules teardown of h.
func (d *Dispatcher) SetDisconnect(h *socket.Handle) {
	d.push(op{kind: opDisconnect, handle: h})
}

// SetProtocolSwitch schedules the upgrade action on h.
func (d *Dispatcher) SetProtocolSwitch(h *socket.Handle, up socket.ProtocolUpgrade) {
	d.push(op{kind: opUpgrade, handle: h, upgrade: up})
}

// Drain applies all pending commands. Reactor goroutine only.
func (d *Dispatcher) Drain() {
	for {
		o, ok := d.ops.Dequeue()
		if !ok {
			return
		}
		d.apply(o)
	}
}

func (d *Dispatcher) apply(o op) {
	h := o.handle
	switch o.kind {
	case opSend:
		if h.Deleting() {
			return
		}
		sb, err := newSendBuffer(o.payload)
		if err != nil {
			trace.Errorf("reactor: send payload for handle %s: %v", h.ID(), err)
			if o.payload.Logger != nil {
				o.payload.Logger.SetResponseBytes(api.ResponseBytesFailure)
				o.payload.Logger.Write()
			}
			return
		}
		h.EnqueueSendData(sb)
		// The socket may already be writable with no edge pending, e.g.
		// when the queue just went empty to non-empty. Request a fresh
		// read+write edge so the send loop restarts.
		if err := h.Rearm(); err != nil {
			trace.Warnf("reactor: rearm handle %s: %v", h.ID(), err)
		}
	case opDisconnect:
		h.DeleteLater()
	case opUpgrade:
		if h.Deleting() || o.upgrade == nil {
			return
		}
		o.upgrade(h)
	}
}

func newSendBuffer(p socket.Payload) (*buffer.SendBuffer, error) {
	if p.FilePath != "" {
		return buffer.NewFileSendBuffer(p.Header, p.FilePath, p.AutoRemove, p.Logger)
	}
	return buffer.NewSendBuffer(p.Data, p.Logger), nil
}

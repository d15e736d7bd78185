// File: reactor/reactor_linux.go
//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The reactor goroutine: waits on the epoll instance, accepts on the
// listening descriptor, drives per-handle receive/send state machines and
// applies queued cross-thread commands. An eventfd wakes the loop for
// command processing and shutdown.

package reactor

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/momentics/hioload-epoll/api"
	"github.com/momentics/hioload-epoll/control"
	"github.com/momentics/hioload-epoll/internal/trace"
	"github.com/momentics/hioload-epoll/socket"
)

// OnData is invoked on the reactor goroutine after a receive pass left
// unconsumed bytes in the handle's arena.
type OnData func(*socket.Handle)

// DefaultMaxEvents bounds one epoll wait batch.
const DefaultMaxEvents = 256

// Option customizes reactor construction.
type Option func(*Reactor)

// WithMaxEvents overrides the wait batch size.
func WithMaxEvents(n int) Option {
	return func(r *Reactor) {
		if n > 0 {
			r.maxEvents = n
		}
	}
}

// WithOnData installs the inbound-data hook.
func WithOnData(fn OnData) Option {
	return func(r *Reactor) { r.onData = fn }
}

// WithMetrics installs the counter registry.
func WithMetrics(m *control.Metrics) Option {
	return func(r *Reactor) { r.metrics = m }
}

// WithAcceptLimiter paces accepts; nil removes pacing.
func WithAcceptLimiter(l *rate.Limiter) Option {
	return func(r *Reactor) { r.limiter = l }
}

// WithOpQueueCapacity sizes the cross-thread command queue.
func WithOpQueueCapacity(n int) Option {
	return func(r *Reactor) { r.opQueueCap = n }
}

// Reactor owns the poller and every registered handle.
type Reactor struct {
	poller     *Epoll
	acceptor   *socket.Acceptor
	dispatcher *Dispatcher
	listenFD   int
	wakeFD     int
	maxEvents  int
	opQueueCap int

	limiter *rate.Limiter
	metrics *control.Metrics
	onData  OnData

	mu      sync.Mutex
	handles map[int]*socket.Handle

	closed atomic.Bool
}

// NewReactor builds the loop around an already listening, non-blocking
// descriptor. The acceptor supplies chunk sizing for new handles.
func NewReactor(listenFD int, acceptor *socket.Acceptor, opts ...Option) (*Reactor, error) {
	r := &Reactor{
		acceptor:  acceptor,
		listenFD:  listenFD,
		maxEvents: DefaultMaxEvents,
		metrics:   control.NewMetrics(),
		handles:   make(map[int]*socket.Handle),
	}
	for _, o := range opts {
		o(r)
	}

	poller, err := NewEpoll()
	if err != nil {
		return nil, err
	}
	r.poller = poller

	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		poller.Close()
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}
	r.wakeFD = wakeFD
	r.dispatcher = NewDispatcher(r.opQueueCap, r.wakeup)
	r.dispatcher.metrics = r.metrics

	if err := poller.Add(wakeFD, api.EventRead, uintptr(wakeFD)); err != nil {
		r.closeFDs()
		return nil, err
	}
	if err := poller.Add(listenFD, api.EventRead, uintptr(listenFD)); err != nil {
		r.closeFDs()
		return nil, err
	}
	return r, nil
}

// Dispatcher exposes the cross-thread entry points handles delegate to.
func (r *Reactor) Dispatcher() *Dispatcher { return r.dispatcher }

// Metrics exposes the engine counters.
func (r *Reactor) Metrics() *control.Metrics { return r.metrics }

func (r *Reactor) wakeup() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	unix.Write(r.wakeFD, buf[:])
}

// Run executes the reactor loop until Shutdown. Must be the only
// goroutine driving handle I/O.
func (r *Reactor) Run() error {
	events := make([]api.Event, r.maxEvents)
	for {
		n, err := r.poller.Wait(events)
		if err != nil {
			return err
		}
		if r.closed.Load() {
			r.teardownAll()
			return nil
		}
		for i := 0; i < n; i++ {
			switch ev := events[i]; ev.FD {
			case r.listenFD:
				r.acceptReady()
			case r.wakeFD:
				r.drainWake()
			default:
				r.handleReady(ev)
			}
		}
		r.dispatcher.Drain()
	}
}

// Shutdown stops the loop. Handle teardown happens on the reactor
// goroutine before Run returns, preserving single-writer discipline.
func (r *Reactor) Shutdown() {
	if r.closed.Swap(true) {
		return
	}
	r.wakeup()
}

func (r *Reactor) teardownAll() {
	r.mu.Lock()
	open := make([]*socket.Handle, 0, len(r.handles))
	for _, h := range r.handles {
		open = append(open, h)
	}
	r.mu.Unlock()
	for _, h := range open {
		h.DeleteLater()
	}
}

// Close releases the poller and wake descriptor after Run returned.
func (r *Reactor) Close() error {
	r.closeFDs()
	return nil
}

func (r *Reactor) closeFDs() {
	if r.wakeFD > 0 {
		unix.Close(r.wakeFD)
		r.wakeFD = 0
	}
	if r.poller != nil {
		r.poller.Close()
	}
}

func (r *Reactor) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(r.wakeFD, buf[:]); err != nil {
			return
		}
	}
}

// acceptReady drains the listening descriptor. Edge-triggered: keep
// accepting until would-block, or until the pacing budget is spent.
func (r *Reactor) acceptReady() {
	for {
		if r.limiter != nil && !r.limiter.Allow() {
			return
		}
		h := r.acceptor.Accept(r.listenFD)
		if h == nil {
			return
		}
		r.register(h)
	}
}

func (r *Reactor) register(h *socket.Handle) {
	fd := h.FD()
	h.Bind(r.poller, r.dispatcher, uintptr(fd), func(dh *socket.Handle) {
		r.dropHandle(fd, dh)
	})

	r.mu.Lock()
	prev := r.handles[fd]
	r.handles[fd] = h
	r.mu.Unlock()

	r.metrics.Accepted.Add(1)
	r.metrics.Active.Add(1)
	if prev != nil {
		// The previous owner of this descriptor number closed it mid
		// teardown and its destroy callback has not run yet. Account its
		// disconnect here; dropHandle will see the replaced entry and skip.
		r.metrics.Active.Add(-1)
		r.metrics.Disconnects.Add(1)
	}

	if err := r.poller.Add(fd, api.EventRead, uintptr(fd)); err != nil {
		trace.Errorf("reactor: register handle %s: %v", h.ID(), err)
		h.DeleteLater()
		return
	}
}

// dropHandle runs from Handle.destroy, possibly on a worker goroutine. The
// descriptor number may have been reused and re-registered by then, so the
// entry is removed only when it still belongs to the destroyed handle.
func (r *Reactor) dropHandle(fd int, h *socket.Handle) {
	r.mu.Lock()
	ok := r.handles[fd] == h
	if ok {
		delete(r.handles, fd)
	}
	r.mu.Unlock()
	if ok {
		r.metrics.Active.Add(-1)
		r.metrics.Disconnects.Add(1)
	}
}

func (r *Reactor) lookup(fd int) *socket.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[fd]
}

func (r *Reactor) handleReady(ev api.Event) {
	h := r.lookup(ev.FD)
	if h == nil || h.Deleting() {
		return
	}

	if ev.Type&api.EventError != 0 {
		h.DeleteLater()
		return
	}

	if ev.Type&api.EventRead != 0 {
		prev := h.BytesReceived()
		err := h.Recv()
		r.metrics.BytesIn.Add(h.BytesReceived() - prev)
		if err != nil {
			h.DeleteLater()
			return
		}
		if r.onData != nil && h.RecvBuffer().Len() > 0 {
			r.onData(h)
		}
	}

	if ev.Type&api.EventWrite != 0 {
		prev := h.BytesSent()
		err := h.Send()
		r.metrics.BytesOut.Add(h.BytesSent() - prev)
		if err != nil {
			h.DeleteLater()
		}
	}
}

// File: socket/handle.go
//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handle owns one connection: descriptor, receive arena, ordered outbound
// queue, and the deleting flag + worker refcount that gate teardown.

package socket

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-epoll/api"
	"github.com/momentics/hioload-epoll/core/buffer"
	"github.com/momentics/hioload-epoll/internal/trace"
)

// ErrDisconnected signals the peer is gone and the reactor must begin
// teardown. Receive and send never fail any other way.
var ErrDisconnected = errors.New("socket: peer disconnected")

// ProtocolUpgrade is an opaque protocol-switch action applied to a handle
// on the reactor goroutine.
type ProtocolUpgrade func(*Handle)

// Payload describes one outbound response: raw bytes, or a header plus a
// file-backed body with optional auto-delete.
type Payload struct {
	Data       []byte
	Header     []byte
	FilePath   string
	AutoRemove bool
	Logger     api.AccessLogger
}

// Dispatcher receives the cross-thread requests a handle delegates. All
// three are applied later, on the reactor goroutine.
type Dispatcher interface {
	SetSendData(h *Handle, p Payload)
	SetDisconnect(h *Handle)
	SetProtocolSwitch(h *Handle, upgrade ProtocolUpgrade)
}

// Handle is the per-connection state machine. The descriptor, receive
// arena and send queue head are mutated only by the reactor goroutine;
// deleting and workers are the only fields touched from other threads,
// besides the mutex-guarded queue tail.
type Handle struct {
	fd   atomic.Int32 // 0 means closed; swapped to 0 exactly once
	id   string
	peer string

	recvBuf *buffer.RecvBuffer
	sizes   ChunkSizes

	mu    sync.Mutex
	sendQ *queue.Queue // of *buffer.SendBuffer, FIFO

	deleting  atomic.Bool
	workers   atomic.Int32
	destroyed atomic.Bool

	recvBytes atomic.Int64
	sentBytes atomic.Int64

	poller     api.Poller
	dispatcher Dispatcher
	udata      uintptr
	onDestroy  func(*Handle)
}

// New wraps an already accepted, non-blocking descriptor.
func New(fd int, peer string, sizes ChunkSizes) *Handle {
	if !sizes.valid() {
		sizes = ChunkSizes{Send: DefaultChunkSize, Recv: DefaultChunkSize}
	}
	h := &Handle{
		id:      uuid.NewString(),
		peer:    peer,
		recvBuf: buffer.NewRecvBuffer(sizes.Recv),
		sizes:   sizes,
		sendQ:   queue.New(),
	}
	h.fd.Store(int32(fd))
	trace.Debugf("socket: handle %s fd:%d peer:%s", h.id, fd, peer)
	return h
}

// Bind attaches the handle to the execution context that drives its I/O.
// Called once by the reactor before registering the descriptor; udata is
// echoed back on readiness events and re-arm calls.
func (h *Handle) Bind(p api.Poller, d Dispatcher, udata uintptr, onDestroy func(*Handle)) {
	h.poller = p
	h.dispatcher = d
	h.udata = udata
	h.onDestroy = onDestroy
}

// ID returns the immutable correlation identifier.
func (h *Handle) ID() string { return h.id }

// Peer returns the remote address captured at accept time.
func (h *Handle) Peer() string { return h.peer }

// FD returns the descriptor, 0 when closed.
func (h *Handle) FD() int { return int(h.fd.Load()) }

// RecvBuffer exposes the accumulated inbound bytes to the protocol layer,
// which consumes them with its own cursor.
func (h *Handle) RecvBuffer() *buffer.RecvBuffer { return h.recvBuf }

// BytesReceived reports total bytes drained from the socket.
func (h *Handle) BytesReceived() int64 { return h.recvBytes.Load() }

// BytesSent reports total bytes transmitted to the socket.
func (h *Handle) BytesSent() int64 { return h.sentBytes.Load() }

// Deleting reports whether teardown has been requested.
func (h *Handle) Deleting() bool { return h.deleting.Load() }

// Destroyed reports whether teardown has completed.
func (h *Handle) Destroyed() bool { return h.destroyed.Load() }

// EnqueueSendData appends b at the tail of the send queue. Transmission
// order is insertion order; the buffer now belongs to this handle.
func (h *Handle) EnqueueSendData(b *buffer.SendBuffer) {
	h.mu.Lock()
	h.sendQ.Add(b)
	h.mu.Unlock()
}

// BufferedBytes sums the unsent bytes across all queued buffers, including
// the partially drained head.
func (h *Handle) BufferedBytes() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	var total int64
	for i := 0; i < h.sendQ.Length(); i++ {
		total += h.sendQ.Get(i).(*buffer.SendBuffer).Remaining()
	}
	return total
}

// BufferedCount reports the number of queued outbound buffers.
func (h *Handle) BufferedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sendQ.Length()
}

// SendData requests transmission of p. No-op once deleting is set.
func (h *Handle) SendData(p Payload) {
	if !h.deleting.Load() && h.dispatcher != nil {
		h.dispatcher.SetSendData(h, p)
	}
}

// Disconnect requests teardown of this connection. No-op once deleting.
func (h *Handle) Disconnect() {
	if !h.deleting.Load() && h.dispatcher != nil {
		h.dispatcher.SetDisconnect(h)
	}
}

// SwitchProtocol requests an upgrade action on the reactor goroutine.
// No-op once deleting is set.
func (h *Handle) SwitchProtocol(up ProtocolUpgrade) {
	if !h.deleting.Load() && h.dispatcher != nil {
		h.dispatcher.SetProtocolSwitch(h, up)
	}
}

// Rearm requests a fresh read+write edge from the poller. Used after an
// enqueue that may have raced a socket that was already writable, where no
// new readiness transition is pending.
func (h *Handle) Rearm() error {
	if h.poller == nil {
		return nil
	}
	fd := int(h.fd.Load())
	if fd <= 0 {
		return nil
	}
	return h.poller.Modify(fd, api.EventRead|api.EventWrite, h.udata)
}

// AddWorker takes a working reference on behalf of an external task. The
// task must pair it with ReleaseWorker on every exit path and must not
// start new work once Deleting reports true.
func (h *Handle) AddWorker() {
	h.workers.Add(1)
}

// ReleaseWorker drops a working reference. The decrement that first
// observes zero with deleting set performs the destruction.
func (h *Handle) ReleaseWorker() {
	n := h.workers.Add(-1)
	if n < 0 {
		panic("socket: worker refcount below zero")
	}
	if n == 0 && h.deleting.Load() {
		h.destroy()
	}
}

// Workers reports the in-flight worker count.
func (h *Handle) Workers() int {
	return int(h.workers.Load())
}

// DeleteLater marks the handle for deletion. Only the first call has
// effect; destruction happens now when no worker reference is held,
// otherwise it is deferred to the last ReleaseWorker.
func (h *Handle) DeleteLater() {
	if h.deleting.Swap(true) {
		return
	}
	trace.Debugf("socket: handle %s delete requested, workers:%d", h.id, h.workers.Load())
	if h.workers.Load() == 0 {
		h.destroy()
	}
}

// destroy runs teardown exactly once: close the descriptor, drop queued
// buffers without flushing their log records, release the arena.
func (h *Handle) destroy() {
	if !h.destroyed.CompareAndSwap(false, true) {
		return
	}
	h.CloseFD()

	h.mu.Lock()
	for h.sendQ.Length() > 0 {
		h.sendQ.Remove().(*buffer.SendBuffer).Release()
	}
	h.mu.Unlock()

	h.recvBuf.Release()
	trace.Debugf("socket: handle %s destroyed", h.id)
	if h.onDestroy != nil {
		h.onDestroy(h)
	}
}

// CloseFD closes the descriptor once. Safe to call at any point of the
// lifecycle, independent of the refcount reaching zero.
func (h *Handle) CloseFD() {
	if fd := h.fd.Swap(0); fd > 0 {
		unix.Close(int(fd))
	}
}

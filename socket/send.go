// File: socket/send.go
//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-epoll/api"
	"github.com/momentics/hioload-epoll/core/buffer"
	"github.com/momentics/hioload-epoll/internal/trace"
)

// Send drains the head of the send queue until would-block or completion.
// Later buffers are never touched before the head completes or is
// abandoned, which keeps transmission strictly in enqueue order.
//
// Returns ErrDisconnected on a terminal send error; the failed buffer is
// finalized with the access-log failure sentinel and never retried.
func (h *Handle) Send() error {
	if h.deleting.Load() {
		return nil
	}
	h.mu.Lock()
	if h.sendQ.Length() == 0 {
		h.mu.Unlock()
		return nil
	}
	head := h.sendQ.Peek().(*buffer.SendBuffer)
	h.mu.Unlock()

	fd := int(h.fd.Load())
	var (
		result     error
		wouldBlock bool
		lastLen    int
	)

	for {
		chunk, err := head.Chunk(h.sizes.Send)
		if err != nil {
			trace.Errorf("socket: send body read failed fd:%d err:%v", fd, err)
			head.MarkFailed()
			result = ErrDisconnected
			break
		}
		if len(chunk) == 0 {
			// Fully consumed.
			break
		}
		lastLen = len(chunk)

		n, werr := unix.SendmsgN(fd, chunk, nil, nil, unix.MSG_NOSIGNAL)
		if n > 0 {
			head.Advance(n)
			head.AddResponseBytes(int64(n))
			h.sentBytes.Add(int64(n))
			continue
		}

		switch werr {
		case unix.EINTR:
			continue
		case nil:
			// Zero-length send, nothing progressed; treat like a clean stop.
		case unix.EAGAIN:
			wouldBlock = true
		case unix.EPIPE:
			trace.Debugf("socket: disconnected fd:%d err:%v", fd, werr)
			head.MarkFailed()
			result = ErrDisconnected
		default:
			trace.Errorf("socket: send failed fd:%d err:%v len:%d", fd, werr, lastLen)
			head.MarkFailed()
			result = ErrDisconnected
		}
		break
	}

	if head.AtEnd() || result != nil {
		// The only point a queued buffer is destroyed, always the head.
		head.FlushLog()
		h.mu.Lock()
		h.sendQ.Remove()
		h.mu.Unlock()
		head.Release()
	}

	// A writable edge is delivered only once per transition. If this loop
	// stopped for any reason other than would-block and data is still
	// queued, request a fresh edge to restart draining.
	if !wouldBlock && h.poller != nil {
		h.mu.Lock()
		pending := h.sendQ.Length() > 0
		h.mu.Unlock()
		if pending {
			h.poller.Modify(fd, api.EventRead|api.EventWrite, h.udata)
		}
	}

	return result
}

// File: socket/recv.go
//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-epoll/internal/trace"
)

// Recv drains the socket into the receive arena until would-block.
// Edge-triggered readiness fires only on the transition to readable, so a
// single invocation must consume everything currently available.
//
// Accumulated bytes stay in the arena for the protocol layer; no framing
// happens here. Returns ErrDisconnected when the peer is gone.
func (h *Handle) Recv() error {
	fd := int(h.fd.Load())
	if fd <= 0 {
		return ErrDisconnected
	}

	for {
		ws := h.recvBuf.Writable(h.sizes.Recv)[:h.sizes.Recv]
		n, err := unix.Read(fd, ws)
		if n > 0 {
			h.recvBuf.Advance(n)
			h.recvBytes.Add(int64(n))
			continue
		}

		switch err {
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			// Normal end of available data.
			return nil
		case nil, unix.ECONNRESET:
			// Clean close (zero-length read) or reset.
			trace.Debugf("socket: disconnected fd:%d err:%v", fd, err)
			return ErrDisconnected
		default:
			trace.Errorf("socket: recv failed fd:%d err:%v", fd, err)
			return ErrDisconnected
		}
	}
}

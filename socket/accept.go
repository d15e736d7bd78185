// File: socket/accept.go
//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Acceptor turns a ready listening descriptor into new handles. Chunk
// sizing comes from an explicit startup probe when provided, otherwise it
// is derived once from the first accepted socket.

package socket

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-epoll/internal/trace"
)

// Acceptor produces handles from a listening descriptor.
type Acceptor struct {
	once  sync.Once
	sizes ChunkSizes
}

// NewAcceptor builds an acceptor. A zero ChunkSizes defers sizing to the
// first accepted socket's kernel buffer sizes.
func NewAcceptor(sizes ChunkSizes) *Acceptor {
	return &Acceptor{sizes: sizes}
}

// Accept performs one non-blocking accept on listenFD.
//
// Returns nil both when no connection is pending (expected under
// edge-triggered readiness, the caller stops until the next event) and on
// accept failure, which is only logged. The listening descriptor itself is
// never touched.
func (a *Acceptor) Accept(listenFD int) *Handle {
	nfd, sa, err := unix.Accept4(listenFD, unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
	if err != nil {
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			trace.Warnf("socket: accept failed on fd:%d err:%v", listenFD, err)
		}
		return nil
	}

	a.once.Do(func() {
		if !a.sizes.valid() {
			a.sizes = SizesFromSocket(nfd)
		}
	})

	return New(nfd, SockaddrString(sa), a.sizes)
}

// SockaddrString renders a peer address captured at accept time.
func SockaddrString(sa unix.Sockaddr) string {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%s:%d", net.IP(sa.Addr[:]), sa.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%s]:%d", net.IP(sa.Addr[:]), sa.Port)
	case *unix.SockaddrUnix:
		return sa.Name
	default:
		return ""
	}
}

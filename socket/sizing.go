// File: socket/sizing.go
//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Shared send/receive chunk sizing. Preferred path is an explicit startup
// probe against a throwaway socket; when skipped, the acceptor falls back
// to sizing from the first accepted descriptor.

package socket

import (
	"golang.org/x/sys/unix"
)

// DefaultChunkSize is used when the kernel socket-buffer query fails.
const DefaultChunkSize = 128 * 1024

// ChunkSizes carries the per-syscall transfer bounds shared by all handles.
// Immutable once handed to a Handle.
type ChunkSizes struct {
	Send int
	Recv int
}

func (c ChunkSizes) valid() bool {
	return c.Send > 0 && c.Recv > 0
}

// SizesFromSocket reads SO_SNDBUF/SO_RCVBUF from fd, substituting
// DefaultChunkSize for any failed query.
func SizesFromSocket(fd int) ChunkSizes {
	sizes := ChunkSizes{Send: DefaultChunkSize, Recv: DefaultChunkSize}
	if v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF); err == nil && v > 0 {
		sizes.Send = v
	}
	if v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF); err == nil && v > 0 {
		sizes.Recv = v
	}
	return sizes
}

// ProbeChunkSizes queries the kernel defaults against a throwaway socket.
// Falls back to DefaultChunkSize when the socket cannot be created.
func ProbeChunkSizes() ChunkSizes {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return ChunkSizes{Send: DefaultChunkSize, Recv: DefaultChunkSize}
	}
	defer unix.Close(fd)
	return SizesFromSocket(fd)
}

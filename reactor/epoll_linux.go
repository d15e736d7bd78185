// File: reactor/epoll_linux.go
//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll(7) poller. All registrations are edge-triggered; the user
// token rides in the unused Pad field of the epoll event, as the kernel
// echoes the whole struct back untouched. Pad is 32 bits wide, which is
// enough for the descriptor-sized tokens the engine uses.

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-epoll/api"
)

// Epoll implements api.Poller over a single epoll instance. Wait reuses
// one raw event buffer, so only one goroutine may wait at a time.
type Epoll struct {
	epfd int
	raw  []unix.EpollEvent
}

var _ api.Poller = (*Epoll)(nil)

// NewEpoll creates the epoll instance.
func NewEpoll() (*Epoll, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll create: %w", err)
	}
	return &Epoll{epfd: epfd}, nil
}

func epollBits(events api.EventType) uint32 {
	bits := uint32(unix.EPOLLET)
	if events&api.EventRead != 0 {
		bits |= unix.EPOLLIN
	}
	if events&api.EventWrite != 0 {
		bits |= unix.EPOLLOUT
	}
	return bits
}

func fillEvent(ev *unix.EpollEvent, fd int, events api.EventType, udata uintptr) {
	ev.Events = epollBits(events)
	ev.Fd = int32(fd)
	ev.Pad = int32(udata)
}

// Add registers fd edge-triggered for the given readiness bits.
func (e *Epoll) Add(fd int, events api.EventType, udata uintptr) error {
	var ev unix.EpollEvent
	fillEvent(&ev, fd, events, udata)
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll add fd:%d: %w", fd, err)
	}
	return nil
}

// Modify replaces the interest set of fd, producing a fresh edge for any
// condition that currently holds.
func (e *Epoll) Modify(fd int, events api.EventType, udata uintptr) error {
	var ev unix.EpollEvent
	fillEvent(&ev, fd, events, udata)
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll mod fd:%d: %w", fd, err)
	}
	return nil
}

// Remove deregisters fd.
func (e *Epoll) Remove(fd int) error {
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("reactor: epoll del fd:%d: %w", fd, err)
	}
	return nil
}

// Wait blocks until events arrive. EINTR is absorbed and reported as an
// empty wakeup.
func (e *Epoll) Wait(events []api.Event) (int, error) {
	if cap(e.raw) < len(events) {
		e.raw = make([]unix.EpollEvent, len(events))
	}
	raw := e.raw[:len(events)]
	n, err := unix.EpollWait(e.epfd, raw, -1)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("reactor: epoll wait: %w", err)
	}
	for i := 0; i < n; i++ {
		var t api.EventType
		if raw[i].Events&unix.EPOLLIN != 0 {
			t |= api.EventRead
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			t |= api.EventWrite
		}
		if raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
			t |= api.EventError
		}
		events[i] = api.Event{
			FD:       int(raw[i].Fd),
			Type:     t,
			UserData: uintptr(raw[i].Pad),
		}
	}
	return n, nil
}

// Close releases the epoll instance.
func (e *Epoll) Close() error {
	return unix.Close(e.epfd)
}

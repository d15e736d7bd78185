// File: api/poller.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Edge-triggered readiness notifier abstraction consumed by the socket core.

package api

// EventType is a bitmask of readiness conditions reported for a descriptor.
type EventType uint32

const (
	// EventRead signals the descriptor became readable.
	EventRead EventType = 1 << iota
	// EventWrite signals the descriptor became writable.
	EventWrite
	// EventError signals an error or hangup condition on the descriptor.
	EventError
)

// Event is one readiness notification delivered by a Poller.
type Event struct {
	FD       int       // file descriptor the event refers to
	Type     EventType // readiness bits
	UserData uintptr   // opaque value supplied at registration
}

// Poller multiplexes descriptor readiness in edge-triggered mode.
//
// All registrations are edge-triggered: a readiness bit is reported only on
// the transition into that state, so consumers must drain until would-block
// before waiting again.
type Poller interface {
	// Add registers fd for the given readiness bits.
	Add(fd int, events EventType, udata uintptr) error

	// Modify replaces the interest set of an already registered fd.
	// A Modify call also produces a fresh edge for conditions that
	// currently hold, which the send path relies on to restart draining.
	Modify(fd int, events EventType, udata uintptr) error

	// Remove deregisters fd.
	Remove(fd int) error

	// Wait blocks until readiness events are available and writes them
	// into events, returning the number filled.
	Wait(events []Event) (int, error)

	// Close releases the poller backend.
	Close() error
}

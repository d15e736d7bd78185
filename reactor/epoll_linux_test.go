//go:build linux

package reactor

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-epoll/api"
)

func pair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

// waitOne runs Wait on a goroutine so a wedged poller fails the test
// instead of hanging it.
func waitOne(t *testing.T, e *Epoll) []api.Event {
	t.Helper()
	type result struct {
		events []api.Event
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		events := make([]api.Event, 16)
		n, err := e.Wait(events)
		ch <- result{events[:n], err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("Wait: %v", r.err)
		}
		return r.events
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return")
		return nil
	}
}

func TestEpollReadEvent(t *testing.T) {
	e, err := NewEpoll()
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	local, peer := pair(t)
	if err := e.Add(local, api.EventRead, uintptr(local)); err != nil {
		t.Fatal(err)
	}

	if _, err := unix.Write(peer, []byte("ping")); err != nil {
		t.Fatal(err)
	}

	events := waitOne(t, e)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.FD != local || ev.Type&api.EventRead == 0 {
		t.Fatalf("event = %+v", ev)
	}
	if ev.UserData != uintptr(local) {
		t.Fatalf("user token = %d, want %d", ev.UserData, local)
	}
}

func TestEpollModifyProducesFreshWritableEdge(t *testing.T) {
	e, err := NewEpoll()
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	local, _ := pair(t)
	if err := e.Add(local, api.EventRead, uintptr(local)); err != nil {
		t.Fatal(err)
	}

	// The socket has been writable the whole time; only the Modify makes
	// that condition observable again under edge triggering.
	if err := e.Modify(local, api.EventRead|api.EventWrite, uintptr(local)); err != nil {
		t.Fatal(err)
	}

	events := waitOne(t, e)
	found := false
	for _, ev := range events {
		if ev.FD == local && ev.Type&api.EventWrite != 0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("no writable edge after Modify: %+v", events)
	}
}

func TestEpollWaitReusesEventBuffer(t *testing.T) {
	e, err := NewEpoll()
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	local, peer := pair(t)
	if err := e.Add(local, api.EventRead, 0); err != nil {
		t.Fatal(err)
	}

	// Each write produces a fresh readable edge, so Wait returns promptly.
	events := make([]api.Event, 8)
	if _, err := unix.Write(peer, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Wait(events); err != nil {
		t.Fatal(err)
	}
	first := &e.raw[0]

	if _, err := unix.Write(peer, []byte("y")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Wait(events); err != nil {
		t.Fatal(err)
	}
	if &e.raw[0] != first {
		t.Fatal("Wait reallocated its event buffer")
	}
}

func TestEpollRemove(t *testing.T) {
	e, err := NewEpoll()
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	local, _ := pair(t)
	if err := e.Add(local, api.EventRead, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.Remove(local); err != nil {
		t.Fatal(err)
	}
	// Removing twice reports the kernel error.
	if err := e.Remove(local); err == nil {
		t.Fatal("second Remove succeeded")
	}
}

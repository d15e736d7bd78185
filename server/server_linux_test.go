//go:build linux

package server

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-epoll/control"
	"github.com/momentics/hioload-epoll/socket"
)

// startEcho runs a server whose handler echoes every received byte back
// through the worker pool, exercising the full request path: reactor
// receive, cross-thread send dispatch, worker references.
func startEcho(t *testing.T) (*Server, context.CancelFunc, chan error) {
	t.Helper()
	cfg := control.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Workers = 2

	var srv *Server
	handler := func(h *socket.Handle) {
		data := append([]byte{}, h.RecvBuffer().Bytes()...)
		h.RecvBuffer().Consume(len(data))
		srv.Submit(h, func(h *socket.Handle) {
			h.SendData(socket.Payload{Data: data})
		})
	}

	var err error
	srv, err = New(cfg, WithHandler(handler))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	return srv, cancel, done
}

func stopServer(t *testing.T, cancel context.CancelFunc, done chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerEchoRoundTrip(t *testing.T) {
	srv, cancel, done := startEcho(t)
	defer stopServer(t, cancel, done)

	conn, err := net.DialTimeout("tcp", srv.Addr(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", srv.Addr(), err)
	}
	defer conn.Close()

	msg := []byte("engine echo round trip")
	if _, err := conn.Write(msg); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	got := make([]byte, 0, len(msg))
	buf := make([]byte, 256)
	for len(got) < len(msg) {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read after %d bytes: %v", len(got), err)
		}
		got = append(got, buf[:n]...)
	}
	if string(got) != string(msg) {
		t.Fatalf("echoed %q, want %q", got, msg)
	}

	// The byte counters are updated on the reactor goroutine just after
	// the send completes, so give them a moment to catch up.
	deadline := time.Now().Add(2 * time.Second)
	for {
		m := srv.Metrics().Snapshot()
		if m["accepted"] == 1 &&
			m["bytes_in"] >= int64(len(msg)) && m["bytes_out"] >= int64(len(msg)) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("counters never caught up: %v", m)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerEchoMultipleClients(t *testing.T) {
	srv, cancel, done := startEcho(t)
	defer stopServer(t, cancel, done)

	const clients = 4
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		go func(id int) {
			conn, err := net.DialTimeout("tcp", srv.Addr(), 2*time.Second)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()

			msg := []byte{byte('a' + id), byte('a' + id), byte('a' + id)}
			if _, err := conn.Write(msg); err != nil {
				errs <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(3 * time.Second))
			buf := make([]byte, 16)
			got := make([]byte, 0, 3)
			for len(got) < 3 {
				n, err := conn.Read(buf)
				if err != nil {
					errs <- err
					return
				}
				got = append(got, buf[:n]...)
			}
			if string(got) != string(msg) {
				errs <- fmt.Errorf("client %d echoed %q", id, got)
				return
			}
			errs <- nil
		}(i)
	}
	for i := 0; i < clients; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("client: %v", err)
		}
	}
}

func TestSubmitRejectsDrainingHandle(t *testing.T) {
	srv, cancel, done := startEcho(t)
	defer stopServer(t, cancel, done)

	h := newLocalHandle(t)
	h.AddWorker()
	h.DeleteLater()
	if srv.Submit(h, func(*socket.Handle) {}) {
		t.Fatal("Submit accepted a draining handle")
	}
	h.ReleaseWorker()
}

// newLocalHandle builds a handle around a throwaway socketpair end so
// Submit can be tested without a network round trip.
func newLocalHandle(t *testing.T) *socket.Handle {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return socket.New(fds[0], "", socket.ChunkSizes{Send: 4096, Recv: 4096})
}

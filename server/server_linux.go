// File: server/server_linux.go
//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/momentics/hioload-epoll/accesslog"
	"github.com/momentics/hioload-epoll/control"
	"github.com/momentics/hioload-epoll/internal/trace"
	"github.com/momentics/hioload-epoll/reactor"
	"github.com/momentics/hioload-epoll/socket"
)

// Handler runs on the reactor goroutine when a handle has unconsumed
// inbound bytes. It owns the arena's read cursor; heavier work goes
// through Submit.
type Handler func(*socket.Handle)

// Task is application work executed on a worker goroutine while holding a
// worker reference on the handle.
type Task func(*socket.Handle)

type job struct {
	handle *socket.Handle
	task   Task
}

// Server wires listener, reactor and workers together.
type Server struct {
	cfg     *control.Config
	store   *control.Store
	reactor *reactor.Reactor
	logW    *accesslog.Writer

	listenFD int
	handler  Handler
	jobs     chan job
}

// Option customizes server assembly.
type Option func(*Server)

// WithHandler installs the inbound-data handler.
func WithHandler(h Handler) Option {
	return func(s *Server) { s.handler = h }
}

// New builds a server from cfg, probing chunk sizes at startup unless the
// configuration overrides them.
func New(cfg *control.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = control.DefaultConfig()
	}
	if cfg.Debug {
		trace.SetLevel(trace.LevelDebug)
	}

	s := &Server{
		cfg:   cfg,
		store: control.NewStore(cfg),
	}
	for _, o := range opts {
		o(s)
	}

	if cfg.AccessLogPath != "" {
		w, err := accesslog.Open(cfg.AccessLogPath)
		if err != nil {
			return nil, err
		}
		s.logW = w
	}

	sizes := socket.ChunkSizes{Send: cfg.SendChunkSize, Recv: cfg.RecvChunkSize}
	if sizes.Send <= 0 || sizes.Recv <= 0 {
		sizes = socket.ProbeChunkSizes()
	}

	listenFD, err := listen(cfg.ListenAddr, cfg.Backlog)
	if err != nil {
		s.closeResources()
		return nil, err
	}
	s.listenFD = listenFD

	ropts := []reactor.Option{
		reactor.WithMaxEvents(cfg.MaxEvents),
		reactor.WithOpQueueCapacity(cfg.OpQueueSize),
	}
	if s.handler != nil {
		ropts = append(ropts, reactor.WithOnData(reactor.OnData(s.handler)))
	}
	if cfg.AcceptRate > 0 {
		ropts = append(ropts, reactor.WithAcceptLimiter(
			rate.NewLimiter(rate.Limit(cfg.AcceptRate), cfg.AcceptRate)))
	}

	r, err := reactor.NewReactor(listenFD, socket.NewAcceptor(sizes), ropts...)
	if err != nil {
		s.closeResources()
		return nil, err
	}
	s.reactor = r

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	s.jobs = make(chan job, workers*64)
	return s, nil
}

// Addr reports the bound listen address, useful when the configuration
// requested an ephemeral port.
func (s *Server) Addr() string {
	sa, err := unix.Getsockname(s.listenFD)
	if err != nil {
		return s.cfg.ListenAddr
	}
	return socket.SockaddrString(sa)
}

// AccessLog returns the shared access-log writer, nil when disabled.
func (s *Server) AccessLog() *accesslog.Writer { return s.logW }

// Metrics exposes the engine counters.
func (s *Server) Metrics() *control.Metrics { return s.reactor.Metrics() }

// Config exposes the active configuration store.
func (s *Server) Config() *control.Store { return s.store }

// Submit schedules task on the worker pool while holding a worker
// reference on h. Returns false when the handle is draining or the pool
// is saturated; the task does not run in that case.
func (s *Server) Submit(h *socket.Handle, task Task) bool {
	if h.Deleting() {
		return false
	}
	h.AddWorker()
	select {
	case s.jobs <- job{handle: h, task: task}:
		return true
	default:
		h.ReleaseWorker()
		return false
	}
}

func (s *Server) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.jobs:
			s.runJob(j)
		}
	}
}

func (s *Server) runJob(j job) {
	// The reference taken in Submit is released on every exit path.
	defer j.handle.ReleaseWorker()
	if j.handle.Deleting() {
		return
	}
	j.task(j.handle)
}

// Run serves until ctx is cancelled, then shuts the reactor down and
// drains open handles through the deferred-destruction protocol.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := new(errgroup.Group)
	g.Go(func() error {
		defer cancel()
		return s.reactor.Run()
	})
	g.Go(func() error {
		<-ctx.Done()
		s.reactor.Shutdown()
		return nil
	})
	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			s.workerLoop(ctx)
			return nil
		})
	}

	err := g.Wait()
	s.drainJobs()
	s.reactor.Close()
	s.closeResources()
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// drainJobs releases references for tasks that never ran.
func (s *Server) drainJobs() {
	for {
		select {
		case j := <-s.jobs:
			j.handle.ReleaseWorker()
		default:
			return
		}
	}
}

func (s *Server) closeResources() {
	if s.listenFD > 0 {
		unix.Close(s.listenFD)
		s.listenFD = 0
	}
	if s.logW != nil {
		s.logW.Close()
	}
}

// File: server/server.go
// Author: basalt authors
// License: Apache-2.0

package server

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/basalt-mc/basalt/api"
	"github.com/basalt-mc/basalt/internal/engine"
	"github.com/basalt-mc/basalt/protocol"
)

// Server wires the I/O engine to a configuration and drives the
// cooperative run loop.
type Server struct {
	cfg      *Config
	log      zerolog.Logger
	eng      *engine.Engine
	handler  api.Handler
	shutdown chan struct{}
	done     chan struct{}
}

// New builds a Server. The engine and its kernel resources are created
// here; Run binds the listening socket.
func New(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Server{
		cfg:      cfg,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = cfg.Logger
	protocol.SetLogger(s.log.With().Str("component", "protocol").Logger())

	eng, err := engine.New(engine.Params{
		MaxConnections: cfg.MaxConnections,
		QueueDepth:     cfg.QueueDepth,
		FramePoolBytes: cfg.FramePoolBytes,
		ReadRingBytes:  cfg.ReadRingBytes,
		Handler:        s.handler,
		Logger:         s.log.With().Str("component", "engine").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("server init: %w", err)
	}
	s.eng = eng
	return s, nil
}

// Pusher exposes the outbound packet interface for the gameplay
// collaborator. Only valid from the engine goroutine (handler callbacks).
func (s *Server) Pusher() api.Pusher {
	return s.eng
}

// Sessions reports the number of live connections.
func (s *Server) Sessions() int {
	return s.eng.Sessions()
}

// Run binds the listening socket and blocks polling completions until
// Shutdown is called. The loop sleeps briefly between polls; idle sessions
// are swept about once a second when an idle timeout is configured.
func (s *Server) Run() error {
	defer close(s.done)
	bind, err := s.cfg.bindAddr()
	if err != nil {
		return err
	}
	if err := s.eng.Listen(bind, s.cfg.Port); err != nil {
		return fmt.Errorf("server listen: %w", err)
	}
	s.log.Info().Str("addr", s.cfg.Addr).Uint16("port", s.cfg.Port).Msg("listening")

	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = 100 * time.Microsecond
	}
	lastSweep := time.Now()
	for {
		select {
		case <-s.shutdown:
			s.eng.Shutdown()
			// Drain the teardown completions before releasing the ring.
			deadline := time.Now().Add(100 * time.Millisecond)
			for time.Now().Before(deadline) {
				s.eng.Poll()
				if s.eng.Sessions() == 0 {
					break
				}
				time.Sleep(time.Millisecond)
			}
			return s.eng.Close()
		default:
		}
		s.eng.Poll()
		if s.cfg.IdleTimeout > 0 && time.Since(lastSweep) >= time.Second {
			s.eng.SweepIdle(s.cfg.IdleTimeout)
			lastSweep = time.Now()
		}
		time.Sleep(interval)
	}
}

// Shutdown signals Run to stop and waits for the loop to exit.
func (s *Server) Shutdown() {
	select {
	case <-s.shutdown:
	default:
		close(s.shutdown)
	}
	<-s.done
}

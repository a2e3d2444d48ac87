// File: server/options.go
// Package server defines functional options for the Server facade.
// Author: basalt authors
// License: Apache-2.0

package server

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/basalt-mc/basalt/api"
)

// Option customizes server initialization.
type Option func(*Server)

// WithHandler installs the gameplay collaborator that receives decoded
// play-state packets.
func WithHandler(h api.Handler) Option {
	return func(s *Server) {
		s.handler = h
	}
}

// WithLogger overrides the configured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.cfg.Logger = l
	}
}

// WithIdleTimeout closes sessions silent for longer than d.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.cfg.IdleTimeout = d
	}
}

// File: server/config.go
// Package server is the user-facing facade: configuration, the run loop,
// and graceful shutdown.
// Author: basalt authors
// License: Apache-2.0

package server

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// Config holds all server-side configuration parameters.
type Config struct {
	Addr           string        // IPv4 bind address; empty means loopback
	Port           uint16        // TCP port
	MaxConnections int           // session table capacity
	QueueDepth     int           // kernel queue depth; 0 selects the default
	FramePoolBytes int           // frame arena size; 0 selects the default
	ReadRingBytes  int           // per-session read ring size; 0 selects the default
	IdleTimeout    time.Duration // 0 disables the idle sweep
	PollInterval   time.Duration // sleep between completion polls
	Logger         zerolog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:           "127.0.0.1",
		Port:           25565,
		MaxConnections: 1024,
		PollInterval:   100 * time.Microsecond,
		Logger:         zerolog.Nop(),
	}
}

// bindAddr parses Config.Addr into the 4-byte form the engine binds.
func (c *Config) bindAddr() ([4]byte, error) {
	if c.Addr == "" {
		return [4]byte{127, 0, 0, 1}, nil
	}
	ip := net.ParseIP(c.Addr)
	if ip == nil {
		return [4]byte{}, fmt.Errorf("invalid bind address %q", c.Addr)
	}
	v4 := ip.To4()
	if v4 == nil {
		return [4]byte{}, fmt.Errorf("bind address %q is not IPv4", c.Addr)
	}
	var out [4]byte
	copy(out[:], v4)
	return out, nil
}

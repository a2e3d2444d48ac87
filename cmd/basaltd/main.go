// basaltd is a server for the legacy (pre-Netty) Minecraft wire protocol.
//
// It accepts TCP clients on the configured address, drives each connection
// through handshake and authentication, and hands gameplay packets to the
// registered collaborator. World simulation is not this binary's business.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/basalt-mc/basalt/api"
	"github.com/basalt-mc/basalt/protocol"
	"github.com/basalt-mc/basalt/server"
)

// logHandler is the default gameplay collaborator: it logs what it is
// given and drops it, which is all a protocol-tier binary can do.
type logHandler struct {
	log zerolog.Logger
}

func (h *logHandler) Handle(peer api.Peer, pkt *protocol.ClientPacket) error {
	h.log.Debug().
		Str("player", peer.Username).
		Str("type", pkt.Type.String()).
		Msg("gameplay packet")
	return nil
}

func main() {
	var (
		addr        = flag.String("addr", "127.0.0.1", "IPv4 address to bind")
		port        = flag.Uint("port", 25565, "TCP port to listen on")
		maxConns    = flag.Int("max-connections", 1024, "session table capacity")
		queueDepth  = flag.Int("queue-depth", 0, "kernel queue depth (0 = default)")
		framePool   = flag.Int("frame-pool", 0, "frame arena bytes (0 = default)")
		idleTimeout = flag.Duration("idle-timeout", 0, "close silent sessions after this long (0 = never)")
		level       = flag.String("log-level", "info", "log level (trace..fatal)")
	)
	flag.Parse()

	lvl, err := zerolog.ParseLevel(*level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006/01/02 15:04:05"}).
		Level(lvl).
		With().Timestamp().Logger()

	cfg := server.DefaultConfig()
	cfg.Addr = *addr
	cfg.Port = uint16(*port)
	cfg.MaxConnections = *maxConns
	cfg.QueueDepth = *queueDepth
	cfg.FramePoolBytes = *framePool
	cfg.IdleTimeout = *idleTimeout
	cfg.Logger = log

	srv, err := server.New(cfg, server.WithHandler(&logHandler{
		log: log.With().Str("component", "game").Logger(),
	}))
	if err != nil {
		log.Fatal().Err(err).Msg("cannot create server")
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		srv.Shutdown()
	}()

	start := time.Now()
	if err := srv.Run(); err != nil {
		log.Fatal().Err(err).Msg("server terminated")
	}
	log.Info().Dur("uptime", time.Since(start)).Msg("goodbye")
}

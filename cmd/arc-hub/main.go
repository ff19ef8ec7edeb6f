// arc-hub hosts a small key-value object over every configured arc-rpc
// transport binding (plain TCP, local Unix socket, NaCl-encrypted TCP) and
// optionally advertises itself in etcd so clients can discover it by name.
//
// Usage:
//
//	arc-hub -config hub.toml
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/notgne2/arc-rpc/channel"
	"github.com/notgne2/arc-rpc/interceptor"
	"github.com/notgne2/arc-rpc/registry"
	"github.com/notgne2/arc-rpc/rpc"
	"github.com/notgne2/arc-rpc/transport"
)

// Config is the TOML configuration for arc-hub.
type Config struct {
	Listen struct {
		TCP    string `toml:"tcp"`    // e.g. ":7401"; empty disables
		Unix   string `toml:"unix"`   // e.g. "/run/arc-hub.sock"; empty disables
		Secure string `toml:"secure"` // e.g. ":7402"; empty disables
	} `toml:"listen"`

	Registry struct {
		Endpoints []string `toml:"endpoints"` // etcd endpoints; empty disables registration
		Name      string   `toml:"name"`      // advertised endpoint name
		Advertise string   `toml:"advertise"` // routable address for the TCP listener
		TTL       int64    `toml:"ttl"`       // lease TTL in seconds
	} `toml:"registry"`

	Log struct {
		Level string `toml:"level"` // zerolog level name; default "info"
	} `toml:"log"`

	RateLimit struct {
		PerSecond float64 `toml:"per_second"` // 0 disables rate limiting
		Burst     int     `toml:"burst"`
	} `toml:"rate_limit"`
}

func main() {
	configPath := flag.String("config", "arc-hub.toml", "path to TOML configuration")
	flag.Parse()

	var cfg Config
	cfg.Registry.TTL = 10
	cfg.Log.Level = "info"
	if _, err := toml.DecodeFile(*configPath, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "arc-hub: reading config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "arc-hub: invalid log level %q\n", cfg.Log.Level)
		os.Exit(1)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()

	store := NewStore()

	ics := []interceptor.Interceptor{
		interceptor.Recovery(logger),
		interceptor.Logging(logger),
	}
	if cfg.RateLimit.PerSecond > 0 {
		ics = append(ics, interceptor.RateLimit(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst))
	}

	serve := func(name string, ln *transport.Listener) {
		logger.Info().Str("transport", name).Stringer("addr", ln.Addr()).Msg("listening")
		for {
			ch, err := ln.Accept()
			if err != nil {
				logger.Debug().Err(err).Str("transport", name).Msg("accept loop ended")
				return
			}
			attach(ch, store, logger, ics)
		}
	}

	var listeners []*transport.Listener
	if cfg.Listen.TCP != "" {
		ln, err := transport.Listen("tcp", cfg.Listen.TCP)
		if err != nil {
			logger.Fatal().Err(err).Msg("tcp listen failed")
		}
		listeners = append(listeners, ln)
		go serve("tcp", ln)
	}
	if cfg.Listen.Unix != "" {
		os.Remove(cfg.Listen.Unix) // stale socket from a previous run
		ln, err := transport.ListenLocal(cfg.Listen.Unix)
		if err != nil {
			logger.Fatal().Err(err).Msg("unix listen failed")
		}
		listeners = append(listeners, ln)
		go serve("unix", ln)
	}
	if cfg.Listen.Secure != "" {
		ln, err := transport.ListenSecure("tcp", cfg.Listen.Secure)
		if err != nil {
			logger.Fatal().Err(err).Msg("secure listen failed")
		}
		listeners = append(listeners, ln)
		go serve("secure", ln)
	}
	if len(listeners) == 0 {
		logger.Fatal().Msg("no listeners configured")
	}

	var reg *registry.EtcdRegistry
	if len(cfg.Registry.Endpoints) > 0 && cfg.Registry.Name != "" {
		reg, err = registry.NewEtcdRegistry(cfg.Registry.Endpoints)
		if err != nil {
			logger.Fatal().Err(err).Msg("etcd connect failed")
		}
		inst := registry.EndpointInstance{
			Addr:      cfg.Registry.Advertise,
			Transport: transport.TransportTCP,
			Weight:    1,
		}
		if err := reg.Register(cfg.Registry.Name, inst, cfg.Registry.TTL); err != nil {
			logger.Fatal().Err(err).Msg("etcd register failed")
		}
		logger.Info().Str("name", cfg.Registry.Name).Str("addr", inst.Addr).Msg("registered in etcd")
	}

	// Block until shutdown signal; deregister first so clients stop dialing,
	// then close the listeners.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	if reg != nil {
		reg.Deregister(cfg.Registry.Name, cfg.Registry.Advertise)
		reg.Close()
	}
	for _, ln := range listeners {
		ln.Close()
	}
	if cfg.Listen.Unix != "" {
		os.Remove(cfg.Listen.Unix)
	}
}

// attach binds a new endpoint to an accepted channel. The endpoint lives
// until the channel disconnects. The store keeps its data behind methods, so
// peers call Get/Set/Watch rather than mirroring a synced tree.
func attach(ch channel.MessageChannel, store *Store, logger zerolog.Logger, ics []interceptor.Interceptor) {
	ep := rpc.NewEndpoint(ch,
		rpc.WithChild(store),
		rpc.WithLogger(logger),
		rpc.WithInterceptors(ics...),
	)
	logger.Info().Str("endpoint", ep.ID()).Msg("peer connected")
	ch.OnDisconnect(func() {
		logger.Info().Str("endpoint", ep.ID()).Msg("peer disconnected")
	})
}

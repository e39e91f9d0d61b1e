// Package runtime wires the cloning service together and supervises it.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-clone/internal/bus"
	"github.com/loqalabs/loqa-clone/internal/capability"
	"github.com/loqalabs/loqa-clone/internal/clone"
	"github.com/loqalabs/loqa-clone/internal/config"
	"github.com/loqalabs/loqa-clone/internal/convert"
	"github.com/loqalabs/loqa-clone/internal/eventstore"
	"github.com/loqalabs/loqa-clone/internal/httpapi"
	"github.com/loqalabs/loqa-clone/internal/languages"
	"github.com/loqalabs/loqa-clone/internal/natsserver"
	"github.com/loqalabs/loqa-clone/internal/outputs"
	"github.com/loqalabs/loqa-clone/internal/protocol"
	"github.com/loqalabs/loqa-clone/internal/synth"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	pruneInterval   = time.Hour
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger
	ready  atomic.Bool
	addr   atomic.Value

	bus    *bus.Client
	cloner synth.Cloner
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Addr is the address the HTTP server listens on once started.
func (r *Runtime) Addr() string {
	if v, ok := r.addr.Load().(string); ok {
		return v
	}
	return ""
}

// Start runs the service until ctx is cancelled or a component fails.
func (r *Runtime) Start(ctx context.Context) error {
	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	}()

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return err
	}
	defer embedded.Shutdown()

	if r.cfg.Bus.Enabled {
		busCfg := r.cfg.Bus
		if embedded != nil {
			busCfg.Servers = []string{embedded.ClientURL()}
		}
		r.bus, err = bus.Connect(ctx, busCfg, r.cfg.RuntimeName, r.logger)
		if err != nil {
			return err
		}
		defer r.bus.Close()
	}

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer store.Close()
	if err := store.Ensure(); err != nil {
		return err
	}

	outs, err := outputs.Open(r.cfg.Output, r.logger)
	if err != nil {
		return err
	}

	converter, err := convert.New(r.cfg.Converter)
	if err != nil {
		return fmt.Errorf("init converter: %w", err)
	}
	r.cloner, err = synth.New(r.cfg.Synth, r.cfg.Converter.SampleRate)
	if err != nil {
		return fmt.Errorf("init cloner: %w", err)
	}

	opts := clone.Options{
		NodeID:       r.cfg.Node.ID,
		TempDir:      r.cfg.Converter.TempDir,
		SynthTimeout: r.cfg.Synth.Timeout(),
		Recorder:     store,
	}
	if r.bus != nil {
		opts.Publisher = r.bus
	}
	service := clone.NewService(converter, r.cloner, outs, opts, r.logger)

	if r.bus != nil {
		local := []protocol.Capability{capability.CloneCapability(r.cloner.Name(), r.cfg.Synth.Model, languages.Codes())}
		registry, err := capability.NewRegistry(ctx, r.cfg.Node, local, r.bus, r.logger)
		if err != nil {
			return fmt.Errorf("init capability registry: %w", err)
		}
		defer registry.Close()
	}

	engine := httpapi.New(httpapi.Options{
		HTTP:     r.cfg.HTTP,
		LogLevel: r.cfg.Telemetry.LogLevel,
		Service:  service,
		Files:    outs,
		Metrics:  metricsHandler,
		Ready:    r.readiness,
		Logger:   r.logger,
	})

	listener, err := net.Listen("tcp", net.JoinHostPort(r.cfg.HTTP.Bind, strconv.Itoa(r.cfg.HTTP.Port)))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	r.addr.Store(listener.Addr().String())
	httpServer := &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return outs.Run(gctx)
	})
	g.Go(func() error {
		r.runPrune(gctx, store)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		r.ready.Store(false)
		r.logger.Info("runtime stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slogError(err))
		}
		return nil
	})

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", r.Addr()),
		slog.String("cloner", r.cloner.Name()),
		slog.Bool("bus", r.bus != nil),
	)

	return g.Wait()
}

func (r *Runtime) runPrune(ctx context.Context, store *eventstore.Store) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Prune(ctx); err != nil {
				r.logger.Warn("event store prune failed", slogError(err))
			}
		}
	}
}

func (r *Runtime) readiness(ctx context.Context) error {
	if !r.ready.Load() {
		return errors.New("starting")
	}
	if r.bus != nil && !r.bus.Healthy() {
		return errors.New("bus disconnected")
	}
	if p, ok := r.cloner.(synth.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("cloner: %w", err)
		}
	}
	return nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

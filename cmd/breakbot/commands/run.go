package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MEKXH/breakbot/internal/approval"
	"github.com/MEKXH/breakbot/internal/breakreq"
	"github.com/MEKXH/breakbot/internal/bus"
	"github.com/MEKXH/breakbot/internal/channel"
	"github.com/MEKXH/breakbot/internal/channel/telegram"
	"github.com/MEKXH/breakbot/internal/config"
	"github.com/MEKXH/breakbot/internal/gateway"
	"github.com/MEKXH/breakbot/internal/intake"
	"github.com/MEKXH/breakbot/internal/metrics"
	"github.com/MEKXH/breakbot/internal/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the break request bot",
		RunE:  runServer,
	}

	return cmd
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateForRun(); err != nil {
		return err
	}

	a := newApp(cfg)
	if a.gateway != nil {
		fmt.Printf("Breakbot running. Gateway: http://%s\nPress Ctrl+C to stop.\n", a.gateway.Addr())
	} else {
		fmt.Printf("Breakbot running.\nPress Ctrl+C to stop.\n")
	}
	return a.run(ctx)
}

// app is the wired bot: one store, one transport, and the flows around them.
type app struct {
	cfg      *config.Config
	bus      *bus.MessageBus
	registry *prometheus.Registry
	metrics  *metrics.RuntimeMetrics
	store    *breakreq.Store
	notifier channel.Notifier
	machine  *intake.Machine
	resolver *approval.Resolver
	router   *router.Router
	channels *channel.Manager
	gateway  *gateway.Server
}

func newApp(cfg *config.Config) *app {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewRuntimeMetrics(registry)

	msgBus := bus.NewMessageBus(100)
	tg := telegram.New(&cfg.Telegram, msgBus)
	channels := channel.NewManager()
	channels.Register(tg)

	notifier := channel.NewReliable(tg, channel.ReliableOptions{
		RetryAttempts:      uint(cfg.Delivery.RetryAttempts),
		RetryDelay:         cfg.Delivery.RetryDelay(),
		BreakerFailures:    uint32(cfg.Delivery.BreakerFailures),
		BreakerTimeout:     cfg.Delivery.BreakerTimeout(),
		MaxConcurrentSends: cfg.Delivery.MaxConcurrentSends,
		Metrics:            recorder,
	})

	store := breakreq.NewStore()
	machine := intake.NewMachine(store, notifier, intake.Options{
		Timeout: cfg.Intake.Timeout(),
		Metrics: recorder,
	})
	resolver := approval.NewResolver(store, notifier, approval.Options{
		Metrics: recorder,
		OnResolved: func(req breakreq.Request) {
			machine.Release(req.RequesterID)
		},
	})
	r := router.New(router.Deps{
		Bus:      msgBus,
		Intake:   machine,
		Resolver: resolver,
		Notifier: notifier,
		Metrics:  recorder,
	})

	a := &app{
		cfg:      cfg,
		bus:      msgBus,
		registry: registry,
		metrics:  recorder,
		store:    store,
		notifier: notifier,
		machine:  machine,
		resolver: resolver,
		router:   r,
		channels: channels,
	}
	if cfg.Gateway.Enabled {
		a.gateway = gateway.New(cfg.Gateway, gateway.Deps{
			Gatherer:       registry,
			ActiveSessions: machine.ActiveSessions,
		})
	}
	return a
}

// run blocks until ctx is done or a component fails, then shuts down.
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)
	routerDone := make(chan struct{})
	go func() {
		defer close(routerDone)
		if err := a.router.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("router failed: %w", err)
		}
	}()

	a.channels.StartAll(ctx, errCh)

	if a.gateway != nil {
		go func() {
			if err := a.gateway.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("gateway server failed: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		slog.Error("server component failed", "error", runErr)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	slog.Info("shutting down")
	a.channels.StopAll(shutdownCtx)
	select {
	case <-routerDone:
	case <-shutdownCtx.Done():
		slog.Warn("router did not drain before shutdown timeout")
	}
	a.machine.Close()
	if a.gateway != nil {
		if err := a.gateway.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("gateway shutdown failed", "error", err)
		}
	}

	return runErr
}

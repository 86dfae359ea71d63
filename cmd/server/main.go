package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"social/config"
	"social/internal/api"
	"social/internal/cache"
	"social/internal/chat"
	"social/internal/database"
	"social/internal/notifications"
	"social/internal/presence"
	"social/internal/user"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flagSet := pflag.NewFlagSet("social-server", pflag.ContinueOnError)
	cfg.BindFlags(flagSet)
	migrateOnly := flagSet.Bool("migrate-only", false, "run database migrations and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	models := append([]any{&user.User{}, &notifications.Notification{}}, chat.Tables()...)
	if err := db.Migrate(models...); err != nil {
		return err
	}
	if *migrateOnly {
		return nil
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, cleanup, err := InitializeApp(ctx, cfg, db, registry)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer cleanup()
	defer app.NotifyGateway.Close()
	defer app.ChatGateway.Close()

	grpcServer, healthServer := api.NewGRPCServer()
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.WithGRPCWeb(grpcServer, app.Server),
	}

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting HTTP server", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("Starting gRPC server", "addr", cfg.GRPCAddr)
		return grpcServer.Serve(grpcListener)
	})
	if mirror, ok := app.Mirror.(*cache.PresenceMirror); ok {
		g.Go(func() error {
			presence.KeepAlive(gctx, app.ChatGateway.Presence(), mirror, mirror.KeepAliveInterval())
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})

	return g.Wait()
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

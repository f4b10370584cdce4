package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/tutorlens/internal/api"
	"github.com/ashureev/tutorlens/internal/augment"
	"github.com/ashureev/tutorlens/internal/debuglog"
	"github.com/ashureev/tutorlens/internal/intercept"
	"github.com/ashureev/tutorlens/internal/loader"
	"github.com/ashureev/tutorlens/internal/messenger"
	"github.com/ashureev/tutorlens/internal/middleware"
	"github.com/ashureev/tutorlens/internal/proxy"
	"github.com/ashureev/tutorlens/internal/scrub"
	"github.com/ashureev/tutorlens/internal/status"
	"github.com/ashureev/tutorlens/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// controlPrefix is where the control API lives. Everything else is proxied.
const controlPrefix = "/_lens"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy and control API",
	RunE:  runServe,
}

//nolint:funlen // Startup wiring is intentionally sequential to keep dependency setup explicit.
func runServe(cmd *cobra.Command, _ []string) error {
	logger.Info("Starting server",
		"port", cfg.Port,
		"upstream", cfg.UpstreamURL,
		"target_path", cfg.TargetPath,
		"splice_mode", cfg.SpliceMode)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.Error("Failed to close settings store", "error", closeErr)
		}
	}()
	if err := repo.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	logger.Info("Database connected")

	splicer, err := augment.NewSplicer(cfg.SpliceMode)
	if err != nil {
		return err
	}

	// One transport serves both the LLM client and the slot's original primitive.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	defer transport.CloseIdleConnections()

	ring := debuglog.NewRing(cfg.DebugLogSize, logger)
	client := augment.NewClient(cfg.LLM, cfg.Prompts, &http.Client{Transport: transport}, logger)
	slot := intercept.NewSlot(transport)
	bus := messenger.NewBus(logger)
	health := status.NewHealth(logger)

	factory := loader.TutoringFactory(client, intercept.TutoringConfig{
		TargetPath: cfg.TargetPath,
		Fallback:   cfg.Prompts.Fallback,
		Splicer:    splicer,
	}, logger, ring)
	ld := loader.New(repo, slot, bus, factory, loader.Options{
		MaxAttempts:   cfg.Loader.MaxAttempts,
		RetryInterval: cfg.Loader.RetryInterval,
		Defaults:      cfg.Defaults,
		Public:        cfg.Public(),
		Reporter:      health,
		Logger:        logger,
	})
	defer ld.Cleanup()

	offScrub := scrub.New(splicer).Register(bus)
	defer offScrub()

	bridge := messenger.NewBridge(bus, cfg.Messaging.RatePerSecond, cfg.AllowedOrigins, logger)
	defer bridge.Close()

	base := api.NewHandler(repo, bus, messenger.RetryPolicy{
		MaxAttempts: cfg.Messaging.MaxAttempts,
		Delay:       cfg.Messaging.RetryDelay,
	}, cfg.Defaults, ring)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat(controlPrefix + "/ping"))

	r.Route(controlPrefix, func(r chi.Router) {
		r.Use(middleware.CORS(cfg.AllowedOrigins))
		api.NewHealthHandler(repo, ld).RegisterHealth(r)
		api.NewSettingsHandler(base).RegisterRoutes(r)
		r.Get("/ws", bridge.ServeHTTP)
	})

	// Everything else goes to the tutoring site through the slot.
	r.Handle("/*", proxy.New(cfg.Upstream(), slot, logger))

	// Streamed replies need long writes (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		g.Go(func() error {
			return health.Serve(gctx, lis)
		})
	}

	g.Go(func() error {
		// A loader that gives up leaves the proxy running without interception.
		if err := ld.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Interception disabled", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped successfully")
	return nil
}

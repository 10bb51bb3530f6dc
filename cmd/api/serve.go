package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/travelmap/ratings-api/internal/platform/config"
	"github.com/travelmap/ratings-api/internal/platform/logger"
)

type ServeFlags struct {
	ConfigPath     string
	ListenAddr     string
	StorageBackend string
	EventsBackend  string
	AuthMode       string
}

func NewServeFlags() *ServeFlags {
	return &ServeFlags{}
}

func (f *ServeFlags) BindFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.ConfigPath, "config", f.ConfigPath, "Path to a YAML config file; environment variables override it")
	flagSet.StringVar(&f.ListenAddr, "listen", f.ListenAddr, "The address to serve the API on (overrides http.addr)")
	flagSet.StringVar(&f.StorageBackend, "storage", f.StorageBackend, "Storage backend: memory, postgres, redis or gcs")
	flagSet.StringVar(&f.EventsBackend, "events", f.EventsBackend, "Event transport: memory, redis or amqp")
	flagSet.StringVar(&f.AuthMode, "auth", f.AuthMode, "Auth mode: jwt or dev")
}

// Load reads the config and applies the flags that were set.
func (f *ServeFlags) Load() (config.Config, error) {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if f.ListenAddr != "" {
		cfg.HTTP.Addr = f.ListenAddr
	}
	if f.StorageBackend != "" {
		cfg.Storage.Backend = f.StorageBackend
	}
	if f.EventsBackend != "" {
		cfg.Events.Backend = f.EventsBackend
	}
	if f.AuthMode != "" {
		cfg.Auth.Mode = f.AuthMode
	}
	return cfg, cfg.Validate()
}

func NewServeCommand() *cobra.Command {
	f := NewServeFlags()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ratings HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.Load()
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log.Mode)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	f.BindFlags(cmd.Flags())
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	go pruneIdempotency(ctx, a.idem, a.clock, cfg.HTTP.IdempotencyRetention, time.Hour, log.Named("janitor"))
	go evictIdleSessions(ctx, a.sessions, a.clock, cfg.HTTP.SessionIdleTimeout, time.Minute, log.Named("janitor"))

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("storage", cfg.Storage.Backend),
			zap.String("events", cfg.Events.Backend),
			zap.String("auth", cfg.Auth.Mode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

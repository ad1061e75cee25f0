package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"wedding-rsvp/internal/config"
	"wedding-rsvp/internal/handler"
	"wedding-rsvp/internal/observability/logging"
	"wedding-rsvp/internal/observability/metrics"
	"wedding-rsvp/internal/observability/tracing"
	"wedding-rsvp/internal/server"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.NewLogger(logging.Config{
		ServiceName: cfg.ServiceName,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
	log.Info().Msg("Goodbye")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// Initialize storage
	backend, err := openBackend(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer backend.Close()

	notifier, closeNotifier, err := openNotifier(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	m := metrics.New(cfg.ServiceName)
	rsvp := handler.NewRSVPHandler(backend, backend, notifier, handler.RSVPConfig{
		MinTokenLength: cfg.MinTokenLength,
		NotifyTimeout:  cfg.NotifyTimeout,
	}, log, m)
	handlers := server.Handlers{
		Guests:  handler.NewGuestHandler(backend, log),
		RSVP:    rsvp,
		CheckIn: handler.NewCheckInHandler(backend, handler.CheckInConfig{Location: loc, TimeLayout: cfg.CheckInTimeLayout}, log, m),
		Stats:   handler.NewStatsHandler(backend),
		Tokens:  handler.NewTokenHandler(backend, log),
	}

	router := server.NewRouter(handlers, server.Options{
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, log, m)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("notifier", cfg.Notifier).Msg("Notifier ready")

	if cfg.Console {
		c := &console{guests: handlers.Guests, checkIn: handlers.CheckIn, stats: handlers.Stats}
		go func() {
			c.run(ctx, os.Stdin, os.Stdout)
			stop()
		}()
	}

	return serve(ctx, srv, rsvp, log)
}

// serve runs srv until ctx is done or the listener fails. Either way it waits
// for background push notifications, which still use the store closed by run.
func serve(ctx context.Context, srv *http.Server, fanOut interface{ Wait() }, log zerolog.Logger) error {
	defer fanOut.Wait()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	return nil
}

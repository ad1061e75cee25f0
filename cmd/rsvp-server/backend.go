package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"wedding-rsvp/internal/config"
	"wedding-rsvp/internal/notify"
	"wedding-rsvp/internal/notify/fcm"
	"wedding-rsvp/internal/storage"
	"wedding-rsvp/internal/storage/jsonfile"
	"wedding-rsvp/internal/storage/kvdb"
	"wedding-rsvp/internal/storage/sqldb"
	"wedding-rsvp/internal/whatsapp"
)

// openBackend picks the store from the DATABASE_URL scheme.
func openBackend(ctx context.Context, rawURL string) (storage.Backend, error) {
	scheme, rest, ok := strings.Cut(rawURL, "://")
	if !ok {
		return nil, fmt.Errorf("DATABASE_URL %q has no scheme", rawURL)
	}

	switch scheme {
	case "sqlite3", "sqlite":
		if err := ensureDir(rest); err != nil {
			return nil, err
		}
		s, err := sqldb.Open(ctx, sqldb.DriverSQLite, fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", rest))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	case "postgres", "postgresql":
		s, err := sqldb.Open(ctx, sqldb.DriverPostgres, rawURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, nil
	case "kvdb", "bolt":
		if err := ensureDir(rest); err != nil {
			return nil, err
		}
		s, err := kvdb.Open(rest)
		if err != nil {
			return nil, fmt.Errorf("failed to open bbolt store: %w", err)
		}
		return s, nil
	case "json":
		s, err := jsonfile.NewStorage(rest)
		if err != nil {
			return nil, fmt.Errorf("failed to open json store: %w", err)
		}
		return s, nil
	case "memory":
		return jsonfile.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme %q", scheme)
	}
}

func ensureDir(path string) error {
	if path == "" {
		return fmt.Errorf("database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

// openNotifier returns the configured push channel and a func releasing it.
func openNotifier(ctx context.Context, cfg *config.Config, log zerolog.Logger) (notify.Notifier, func(), error) {
	return buildNotifier(ctx, cfg, log, os.Stdout)
}

func buildNotifier(ctx context.Context, cfg *config.Config, log zerolog.Logger, qrOut io.Writer) (notify.Notifier, func(), error) {
	noop := func() {}

	switch cfg.Notifier {
	case "fcm":
		n, err := fcm.NewNotifier(ctx, fcm.Config{
			CredentialsFile: cfg.FCMCredentialsFile,
			ProjectID:       cfg.FCMProjectID,
		}, log)
		if err != nil {
			return nil, noop, err
		}
		return n, noop, nil
	case "whatsapp":
		if err := os.MkdirAll(cfg.WhatsAppDataDir, 0755); err != nil {
			return nil, noop, fmt.Errorf("failed to create WhatsApp data dir: %w", err)
		}
		svc, err := whatsapp.NewService(ctx, &whatsapp.Config{
			DataDir:     cfg.WhatsAppDataDir,
			CountryCode: cfg.WhatsAppCountryCode,
		}, log, qrOut)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to initialise WhatsApp service: %w", err)
		}
		log.Info().Msg("Connecting to WhatsApp")
		if err := svc.Connect(ctx); err != nil {
			return nil, noop, fmt.Errorf("failed to connect to WhatsApp: %w", err)
		}
		return svc, svc.Disconnect, nil
	default:
		return notify.NewLogNotifier(log), noop, nil
	}
}

package main

import (
	"bytes"
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"wedding-rsvp/internal/config"
	"wedding-rsvp/internal/handler"
	"wedding-rsvp/internal/notify"
	"wedding-rsvp/internal/observability/metrics"
	"wedding-rsvp/internal/storage/jsonfile"
)

func TestOpenBackendSchemes(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	for _, raw := range []string{
		"sqlite3://" + filepath.Join(dir, "sql", "rsvp.db"),
		"kvdb://" + filepath.Join(dir, "kv", "rsvp.db"),
		"json://" + filepath.Join(dir, "json", "guests.json"),
		"memory://",
	} {
		t.Run(strings.SplitN(raw, ":", 2)[0], func(t *testing.T) {
			b, err := openBackend(ctx, raw)
			if err != nil {
				t.Fatalf("open %s: %v", raw, err)
			}
			defer b.Close()

			g, err := b.CreateGuest(ctx, "Pérez", 4, "7")
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if _, err := b.GetGuestByCode(ctx, g.AccessCode); err != nil {
				t.Fatalf("get: %v", err)
			}
		})
	}
}

func TestOpenBackendRejectsUnknownScheme(t *testing.T) {
	for _, raw := range []string{"mysql://localhost/db", "no-scheme"} {
		if _, err := openBackend(context.Background(), raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestBuildNotifierDefaultsToLog(t *testing.T) {
	n, closeFn, err := buildNotifier(context.Background(), &config.Config{Notifier: "log"}, zerolog.Nop(), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer closeFn()
	if _, ok := n.(*notify.LogNotifier); !ok {
		t.Fatalf("expected log notifier, got %T", n)
	}
}

func TestConsoleSession(t *testing.T) {
	store := jsonfile.NewMemory()
	log := zerolog.Nop()
	m := metrics.New("test")
	c := &console{
		guests:  handler.NewGuestHandler(store, log),
		checkIn: handler.NewCheckInHandler(store, handler.CheckInConfig{Location: time.UTC}, log, m),
		stats:   handler.NewStatsHandler(store),
	}

	in := strings.NewReader("1\nPérez\n4\n7\n2\n5\n6\n")
	var out bytes.Buffer
	c.run(context.Background(), in, &out)

	text := out.String()
	for _, want := range []string{"Registered Pérez. Access code: ", "All Guests (1 total)", "Invited families: 1", "Exiting..."} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in console output:\n%s", want, text)
		}
	}
}

func TestConsoleCheckIn(t *testing.T) {
	store := jsonfile.NewMemory()
	log := zerolog.Nop()
	m := metrics.New("test")
	g, err := store.CreateGuest(context.Background(), "Vega", 2, "3")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c := &console{
		guests:  handler.NewGuestHandler(store, log),
		checkIn: handler.NewCheckInHandler(store, handler.CheckInConfig{Location: time.UTC}, log, m),
		stats:   handler.NewStatsHandler(store),
	}

	in := strings.NewReader("4\n" + g.AccessCode + "\n4\nbogus\n")
	var out bytes.Buffer
	c.run(context.Background(), in, &out)

	text := out.String()
	if !strings.Contains(text, "Vega checked in at") {
		t.Fatalf("expected check-in confirmation:\n%s", text)
	}
	if !strings.Contains(text, "Error: invalid code") {
		t.Fatalf("expected invalid code error:\n%s", text)
	}
}

type waitRecorder struct{ waited bool }

func (w *waitRecorder) Wait() { w.waited = true }

func TestServeWaitsForFanOutWhenListenFails(t *testing.T) {
	w := &waitRecorder{}
	srv := &http.Server{Addr: "127.0.0.1:-1"}

	if err := serve(context.Background(), srv, w, zerolog.Nop()); err == nil {
		t.Fatalf("expected listen error")
	}
	if !w.waited {
		t.Fatalf("expected background notifications to be awaited")
	}
}

func TestServeWaitsForFanOutOnShutdown(t *testing.T) {
	w := &waitRecorder{}
	srv := &http.Server{Addr: "127.0.0.1:0"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := serve(ctx, srv, w, zerolog.Nop()); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !w.waited {
		t.Fatalf("expected background notifications to be awaited")
	}
}

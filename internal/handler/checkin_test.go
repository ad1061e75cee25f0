package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// stepClock returns start, then advances by step on every call.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(step)
		return now
	}
}

func TestScanStampsAndOverwrites(t *testing.T) {
	f := newFixture(t, nil)
	code := f.register(t, "Herrera", 3, "5")

	start := time.Date(2026, 6, 20, 18, 30, 0, 0, time.UTC)
	h := NewCheckInHandler(f.store, CheckInConfig{
		Location:   time.UTC,
		TimeLayout: "3:04 PM",
		Now:        stepClock(start, 15*time.Minute),
	}, zerolog.Nop(), f.metrics)

	first, err := h.Scan(context.Background(), code)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if first.Guest.CheckInTime == nil {
		t.Fatalf("expected check-in time to be set")
	}
	if first.CheckInTime != "6:30 PM" {
		t.Fatalf("expected 6:30 PM, got %q", first.CheckInTime)
	}

	second, err := h.Scan(context.Background(), code)
	if err != nil {
		t.Fatalf("re-scan: %v", err)
	}
	if !second.Guest.CheckInTime.After(*first.Guest.CheckInTime) {
		t.Fatalf("expected later check-in time, got %v then %v", first.Guest.CheckInTime, second.Guest.CheckInTime)
	}
	if second.CheckInTime != "6:45 PM" {
		t.Fatalf("expected 6:45 PM, got %q", second.CheckInTime)
	}
}

func TestScanFormatsInEventLocation(t *testing.T) {
	f := newFixture(t, nil)
	code := f.register(t, "Flores", 1, "")

	loc := time.FixedZone("CST", -6*60*60)
	h := NewCheckInHandler(f.store, CheckInConfig{
		Location:   loc,
		TimeLayout: "15:04",
		Now:        func() time.Time { return time.Date(2026, 6, 20, 3, 5, 0, 0, time.UTC) },
	}, zerolog.Nop(), f.metrics)

	res, err := h.Scan(context.Background(), code)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.CheckInTime != "21:05" {
		t.Fatalf("expected 21:05, got %q", res.CheckInTime)
	}
}

func TestScanInvalidCode(t *testing.T) {
	f := newFixture(t, nil)
	h := NewCheckInHandler(f.store, CheckInConfig{}, zerolog.Nop(), f.metrics)

	for _, code := range []string{"", "does-not-exist"} {
		_, err := h.Scan(context.Background(), code)
		if !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("scan %q: expected ErrInvalidCode, got %v", code, err)
		}
		if err.Error() != "invalid code" {
			t.Fatalf("unexpected message %q", err.Error())
		}
	}
}

func TestScanDefaultLayout(t *testing.T) {
	f := newFixture(t, nil)
	code := f.register(t, "Navarro", 2, "")

	h := NewCheckInHandler(f.store, CheckInConfig{
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2026, 6, 20, 19, 5, 0, 0, time.UTC) },
	}, zerolog.Nop(), f.metrics)

	res, err := h.Scan(context.Background(), code)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.CheckInTime != "7:05 PM" {
		t.Fatalf("expected 7:05 PM, got %q", res.CheckInTime)
	}
}

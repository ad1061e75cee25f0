// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/storage"
)

// Run exercises a fresh backend returned by open for each subtest.
func Run(t *testing.T, open func(t *testing.T) storage.Backend) {
	t.Helper()

	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, open(t)) })
	t.Run("UniqueCodes", func(t *testing.T) { testUniqueCodes(t, open(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, open(t)) })
	t.Run("UpdateConfirmation", func(t *testing.T) { testUpdateConfirmation(t, open(t)) })
	t.Run("CheckInAndCounts", func(t *testing.T) { testCheckInAndCounts(t, open(t)) })
	t.Run("UpdateDetailsAndDelete", func(t *testing.T) { testUpdateDetailsAndDelete(t, open(t)) })
	t.Run("TokenSet", func(t *testing.T) { testTokenSet(t, open(t)) })
}

func testCreateAndGet(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	g, err := b.CreateGuest(ctx, "Pérez", 4, "7")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.AccessCode == "" {
		t.Fatalf("expected access code")
	}
	if g.ConfirmationStatus != models.StatusPending || g.ConfirmedCount != 0 || g.CheckInTime != nil {
		t.Fatalf("unexpected initial state: %+v", g)
	}

	got, err := b.GetGuestByCode(ctx, g.AccessCode)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != g.ID || got.Family != "Pérez" || got.InvitedCount != 4 || got.TableNumber != "7" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func testUniqueCodes(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	const n = 50
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		g, err := b.CreateGuest(ctx, "family", 2, "")
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if _, dup := seen[g.AccessCode]; dup {
			t.Fatalf("duplicate access code %q", g.AccessCode)
		}
		seen[g.AccessCode] = struct{}{}
	}
	guests, err := b.ListGuests(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(guests) != n {
		t.Fatalf("expected %d guests, got %d", n, len(guests))
	}
}

func testNotFound(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	if _, err := b.GetGuestByCode(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
	if _, err := b.UpdateConfirmation(ctx, "missing", models.StatusConfirmed, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("confirm: expected ErrNotFound, got %v", err)
	}
	if _, err := b.UpdateCheckIn(ctx, "missing", time.Now()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("check-in: expected ErrNotFound, got %v", err)
	}
	if err := b.DeleteGuest(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("delete: expected ErrNotFound, got %v", err)
	}
}

func testUpdateConfirmation(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	g, err := b.CreateGuest(ctx, "López", 2, "3")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// over-confirmation is accepted
	updated, err := b.UpdateConfirmation(ctx, g.AccessCode, models.StatusConfirmed, 5)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ConfirmationStatus != models.StatusConfirmed || updated.ConfirmedCount != 5 {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	updated, err = b.UpdateConfirmation(ctx, g.AccessCode, models.StatusDeclined, 0)
	if err != nil {
		t.Fatalf("update again: %v", err)
	}
	got, err := b.GetGuestByCode(ctx, g.AccessCode)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ConfirmationStatus != models.StatusDeclined || got.ConfirmedCount != 0 {
		t.Fatalf("expected latest answer to win, got %+v", got)
	}
	if updated.InvitedCount != 2 {
		t.Fatalf("invited count must not change, got %d", updated.InvitedCount)
	}
}

func testCheckInAndCounts(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	var codes []string
	for _, fam := range []string{"A", "B", "C"} {
		g, err := b.CreateGuest(ctx, fam, 1, "")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		codes = append(codes, g.AccessCode)
	}

	first := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	g, err := b.UpdateCheckIn(ctx, codes[1], first)
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if g.CheckInTime == nil || !g.CheckInTime.Equal(first) {
		t.Fatalf("expected check-in time %v, got %v", first, g.CheckInTime)
	}

	second := first.Add(30 * time.Minute)
	g, err = b.UpdateCheckIn(ctx, codes[1], second)
	if err != nil {
		t.Fatalf("re-check-in: %v", err)
	}
	if g.CheckInTime == nil || !g.CheckInTime.Equal(second) {
		t.Fatalf("expected overwrite to %v, got %v", second, g.CheckInTime)
	}

	total, err := b.CountGuests(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	checked, err := b.CountCheckedIn(ctx)
	if err != nil {
		t.Fatalf("count checked in: %v", err)
	}
	if total != 3 || checked != 1 {
		t.Fatalf("expected 3/1, got %d/%d", total, checked)
	}
}

func testUpdateDetailsAndDelete(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	g, err := b.CreateGuest(ctx, "Gómez", 3, "1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := b.UpdateDetails(ctx, g.AccessCode, "", "12")
	if err != nil {
		t.Fatalf("update details: %v", err)
	}
	if updated.Family != "Gómez" || updated.TableNumber != "12" {
		t.Fatalf("unexpected details: %+v", updated)
	}
	if err := b.DeleteGuest(ctx, g.AccessCode); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := b.GetGuestByCode(ctx, g.AccessCode); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected deleted guest to be gone, got %v", err)
	}
}

func testTokenSet(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	inserted, err := b.RegisterToken(ctx, "device-token-1")
	if err != nil || !inserted {
		t.Fatalf("first register: inserted=%v err=%v", inserted, err)
	}
	inserted, err = b.RegisterToken(ctx, "device-token-1")
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if inserted {
		t.Fatalf("expected second register to report already registered")
	}
	if _, err := b.RegisterToken(ctx, "  "); !errors.Is(err, storage.ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
	if _, err := b.RegisterToken(ctx, "device-token-2"); err != nil {
		t.Fatalf("register 2: %v", err)
	}

	tokens, err := b.ListTokens(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %v", tokens)
	}

	if err := b.RemoveToken(ctx, "device-token-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := b.RemoveToken(ctx, "device-token-1"); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
	tokens, err = b.ListTokens(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tokens) != 1 || tokens[0] != "device-token-2" {
		t.Fatalf("expected only device-token-2, got %v", tokens)
	}
}

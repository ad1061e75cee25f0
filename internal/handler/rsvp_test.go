package handler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/storage"
)

const (
	tok1 = "device-token-0001"
	tok2 = "device-token-0002"
	tok3 = "device-token-0003"
	tok4 = "device-token-0004"
)

func TestConfirmPrunesExactlyFailedTokens(t *testing.T) {
	f := newFixture(t, &fakeNotifier{reject: map[string]bool{tok2: true, tok4: true}})
	code := f.register(t, "Pérez", 4, "7")
	f.addTokens(t, tok1, tok2, tok3, tok4)

	if _, err := f.rsvp.Confirm(context.Background(), ConfirmRequest{AccessCode: code, Status: "will attend", ConfirmedCount: 3}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	f.rsvp.Wait()

	if got := f.tokenSet(t); !equalStrings(got, []string{tok1, tok3}) {
		t.Fatalf("expected [%s %s] to remain, got %v", tok1, tok3, got)
	}
	if got := testutil.ToFloat64(f.metrics.TokensPrunedTotal.WithLabelValues("removed")); got != 2 {
		t.Fatalf("expected 2 pruned tokens, got %v", got)
	}
}

func TestConfirmKeepsTokensAfterTransientFailures(t *testing.T) {
	f := newFixture(t, &fakeNotifier{
		reject: map[string]bool{tok4: true},
		flaky:  map[string]bool{tok1: true, tok2: true, tok3: true},
	})
	code := f.register(t, "Vega", 2, "9")
	f.addTokens(t, tok1, tok2, tok3, tok4)

	if _, err := f.rsvp.Confirm(context.Background(), ConfirmRequest{AccessCode: code, Status: "confirmed", ConfirmedCount: 2}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	f.rsvp.Wait()

	if got := f.tokenSet(t); !equalStrings(got, []string{tok1, tok2, tok3}) {
		t.Fatalf("expected only %s to be removed, got %v", tok4, got)
	}
	if got := testutil.ToFloat64(f.metrics.NotificationsTotal.WithLabelValues("failure")); got != 3 {
		t.Fatalf("expected 3 transient failures, got %v", got)
	}
	if got := testutil.ToFloat64(f.metrics.NotificationsTotal.WithLabelValues("undeliverable")); got != 1 {
		t.Fatalf("expected 1 undeliverable token, got %v", got)
	}
}

func TestConfirmRepeatedAnswerNotifiesEachTime(t *testing.T) {
	f := newFixture(t, nil)
	code := f.register(t, "López", 2, "3")
	f.addTokens(t, tok1)

	req := ConfirmRequest{AccessCode: code, Status: "confirmed", ConfirmedCount: 2}
	first, err := f.rsvp.Confirm(context.Background(), req)
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	second, err := f.rsvp.Confirm(context.Background(), req)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	f.rsvp.Wait()

	if first.ConfirmationStatus != second.ConfirmationStatus || first.ConfirmedCount != second.ConfirmedCount {
		t.Fatalf("expected identical state, got %+v and %+v", first, second)
	}
	if calls := f.notifier.Calls(); len(calls) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(calls))
	}
}

func TestConfirmUnknownCode(t *testing.T) {
	f := newFixture(t, nil)
	code := f.register(t, "Gómez", 3, "")
	f.addTokens(t, tok1)

	_, err := f.rsvp.Confirm(context.Background(), ConfirmRequest{AccessCode: "nope-nope-1", Status: "confirmed", ConfirmedCount: 1})
	if !errors.Is(err, ErrGuestNotFound) || !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrGuestNotFound, got %v", err)
	}
	f.rsvp.Wait()

	if calls := f.notifier.Calls(); len(calls) != 0 {
		t.Fatalf("expected no notification, got %d", len(calls))
	}
	g, err := f.store.GetGuestByCode(context.Background(), code)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if g.ConfirmationStatus != models.StatusPending || g.ConfirmedCount != 0 {
		t.Fatalf("expected untouched guest, got %+v", g)
	}
}

func TestConfirmPendingDoesNotNotify(t *testing.T) {
	f := newFixture(t, nil)
	code := f.register(t, "Ruiz", 2, "")
	f.addTokens(t, tok1)

	g, err := f.rsvp.Confirm(context.Background(), ConfirmRequest{AccessCode: code, Status: "pendiente"})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	f.rsvp.Wait()

	if g.ConfirmationStatus != models.StatusPending {
		t.Fatalf("expected pending, got %s", g.ConfirmationStatus)
	}
	if calls := f.notifier.Calls(); len(calls) != 0 {
		t.Fatalf("expected no notification for pending, got %d", len(calls))
	}
}

func TestConfirmValidation(t *testing.T) {
	f := newFixture(t, nil)
	code := f.register(t, "Soto", 2, "")

	tests := []struct {
		name string
		req  ConfirmRequest
	}{
		{"missing code", ConfirmRequest{Status: "confirmed"}},
		{"blank code", ConfirmRequest{AccessCode: "   ", Status: "confirmed"}},
		{"unknown status", ConfirmRequest{AccessCode: code, Status: "maybe"}},
		{"negative count", ConfirmRequest{AccessCode: code, Status: "confirmed", ConfirmedCount: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.rsvp.Confirm(context.Background(), tt.req); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
	g, err := f.store.GetGuestByCode(context.Background(), code)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if g.ConfirmationStatus != models.StatusPending {
		t.Fatalf("validation failures must not mutate, got %+v", g)
	}
}

func TestConfirmOverInvitedCountIsAccepted(t *testing.T) {
	f := newFixture(t, nil)
	code := f.register(t, "Navarro", 2, "")

	g, err := f.rsvp.Confirm(context.Background(), ConfirmRequest{AccessCode: code, Status: "confirmed", ConfirmedCount: 5})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	f.rsvp.Wait()
	if g.ConfirmedCount != 5 || g.InvitedCount != 2 {
		t.Fatalf("unexpected guest %+v", g)
	}
}

func TestFanOutSkipsMalformedTokens(t *testing.T) {
	f := newFixture(t, nil)
	code := f.register(t, "Vega", 1, "")
	f.addTokens(t, "short", "         x", tok1)

	if _, err := f.rsvp.Confirm(context.Background(), ConfirmRequest{AccessCode: code, Status: "no"}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	f.rsvp.Wait()

	calls := f.notifier.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(calls))
	}
	if !equalStrings(calls[0].tokens, []string{tok1}) {
		t.Fatalf("expected only well formed token, got %v", calls[0].tokens)
	}
	// excluded tokens are not failures
	if got := f.tokenSet(t); len(got) != 3 {
		t.Fatalf("expected all tokens kept, got %v", got)
	}
}

func TestFanOutWithoutUsableTokensSendsNothing(t *testing.T) {
	f := newFixture(t, nil)
	code := f.register(t, "Mora", 1, "")
	f.addTokens(t, "short")

	if _, err := f.rsvp.Confirm(context.Background(), ConfirmRequest{AccessCode: code, Status: "yes"}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	f.rsvp.Wait()
	if calls := f.notifier.Calls(); len(calls) != 0 {
		t.Fatalf("expected no send, got %d", len(calls))
	}
}

func TestFanOutKeepsTokensWhenOutcomeUnknown(t *testing.T) {
	tests := []struct {
		name     string
		notifier *fakeNotifier
	}{
		{"send error", &fakeNotifier{err: errors.New("provider down"), reject: map[string]bool{tok1: true}}},
		{"misaligned results", &fakeNotifier{drop: true, reject: map[string]bool{tok1: true, tok2: true}}},
		{"timeout", &fakeNotifier{block: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.notifier)
			f.rsvp.cfg.NotifyTimeout = 20 * time.Millisecond
			code := f.register(t, "Castro", 2, "")
			f.addTokens(t, tok1, tok2)

			g, err := f.rsvp.Confirm(context.Background(), ConfirmRequest{AccessCode: code, Status: "confirmed", ConfirmedCount: 2})
			if err != nil {
				t.Fatalf("confirm must succeed regardless of notification, got %v", err)
			}
			if g.ConfirmationStatus != models.StatusConfirmed {
				t.Fatalf("unexpected status %s", g.ConfirmationStatus)
			}
			f.rsvp.Wait()

			if got := f.tokenSet(t); !equalStrings(got, []string{tok1, tok2}) {
				t.Fatalf("expected no pruning, got %v", got)
			}
		})
	}
}

func TestFanOutSurvivesRequestCancellation(t *testing.T) {
	f := newFixture(t, nil)
	code := f.register(t, "Rojas", 2, "")
	f.addTokens(t, tok1)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := f.rsvp.Confirm(ctx, ConfirmRequest{AccessCode: code, Status: "confirmed", ConfirmedCount: 1}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	cancel()
	f.rsvp.Wait()

	if calls := f.notifier.Calls(); len(calls) != 1 {
		t.Fatalf("expected notification after request ended, got %d", len(calls))
	}
}

func TestPruneFailureDoesNotStopOthers(t *testing.T) {
	n := &fakeNotifier{reject: map[string]bool{tok1: true, tok2: true, tok3: true}}
	f := newFixture(t, n)
	registry := &flakyRegistry{Backend: f.store, failRemove: map[string]bool{tok2: true}}
	f.rsvp = NewRSVPHandler(f.store, registry, n, RSVPConfig{}, zerolog.Nop(), f.metrics)

	code := f.register(t, "Díaz", 2, "")
	f.addTokens(t, tok1, tok2, tok3, tok4)

	if _, err := f.rsvp.Confirm(context.Background(), ConfirmRequest{AccessCode: code, Status: "declined"}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	f.rsvp.Wait()

	if got := f.tokenSet(t); !equalStrings(got, []string{tok2, tok4}) {
		t.Fatalf("expected [%s %s], got %v", tok2, tok4, got)
	}
	if got := testutil.ToFloat64(f.metrics.TokensPrunedTotal.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed removal, got %v", got)
	}
}

func TestConfirmationMessage(t *testing.T) {
	yes := confirmationMessage(&models.Guest{Family: "Pérez", ConfirmationStatus: models.StatusConfirmed, ConfirmedCount: 3})
	if !strings.Contains(yes.Body, "Pérez") || !strings.Contains(yes.Body, "3") {
		t.Fatalf("unexpected confirmed body %q", yes.Body)
	}
	no := confirmationMessage(&models.Guest{Family: "Pérez", ConfirmationStatus: models.StatusDeclined})
	if no.Title == yes.Title || !strings.Contains(no.Body, "Pérez") {
		t.Fatalf("unexpected declined message %+v", no)
	}
}

package handler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"wedding-rsvp/internal/notify"
	"wedding-rsvp/internal/observability/metrics"
	"wedding-rsvp/internal/storage"
	"wedding-rsvp/internal/storage/jsonfile"
)

type sendCall struct {
	tokens []string
	msg    notify.Message
}

// fakeNotifier records every call. Tokens in reject fail permanently, tokens in
// flaky fail with a retryable error. With drop it returns one result too few,
// with block it waits for the deadline.
type fakeNotifier struct {
	mu     sync.Mutex
	calls  []sendCall
	reject map[string]bool
	flaky  map[string]bool
	err    error
	drop   bool
	block  bool
}

func (f *fakeNotifier) SendMulticast(ctx context.Context, tokens []string, msg notify.Message) ([]notify.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sendCall{tokens: append([]string(nil), tokens...), msg: msg})
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	results := make([]notify.Result, len(tokens))
	for i, t := range tokens {
		results[i].Token = t
		switch {
		case f.reject[t]:
			results[i].Err = errors.New("unregistered")
			results[i].Permanent = true
		case f.flaky[t]:
			results[i].Err = errors.New("service unavailable")
		}
	}
	if f.drop {
		results = results[:len(results)-1]
	}
	return results, nil
}

func (f *fakeNotifier) Calls() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.calls...)
}

// flakyRegistry fails removal of selected tokens.
type flakyRegistry struct {
	storage.Backend
	failRemove map[string]bool
}

func (r *flakyRegistry) RemoveToken(ctx context.Context, token string) error {
	if r.failRemove[token] {
		return errors.New("disk full")
	}
	return r.Backend.RemoveToken(ctx, token)
}

type fixture struct {
	store    *jsonfile.Storage
	notifier *fakeNotifier
	metrics  *metrics.Metrics
	rsvp     *RSVPHandler
	guests   *GuestHandler
	tokens   *TokenHandler
}

func newFixture(t *testing.T, n *fakeNotifier) *fixture {
	t.Helper()
	if n == nil {
		n = &fakeNotifier{}
	}
	store := jsonfile.NewMemory()
	m := metrics.New("test")
	log := zerolog.Nop()
	return &fixture{
		store:    store,
		notifier: n,
		metrics:  m,
		rsvp:     NewRSVPHandler(store, store, n, RSVPConfig{MinTokenLength: 10, NotifyTimeout: time.Second}, log, m),
		guests:   NewGuestHandler(store, log),
		tokens:   NewTokenHandler(store, log),
	}
}

func (f *fixture) register(t *testing.T, family string, invited int, table string) string {
	t.Helper()
	g, err := f.guests.Register(context.Background(), RegisterRequest{Family: family, InvitedCount: invited, TableNumber: table})
	if err != nil {
		t.Fatalf("register %s: %v", family, err)
	}
	return g.AccessCode
}

func (f *fixture) addTokens(t *testing.T, tokens ...string) {
	t.Helper()
	for _, tok := range tokens {
		if _, err := f.tokens.Register(context.Background(), tok); err != nil {
			t.Fatalf("register token %s: %v", tok, err)
		}
	}
}

func (f *fixture) tokenSet(t *testing.T) []string {
	t.Helper()
	tokens, err := f.store.ListTokens(context.Background())
	if err != nil {
		t.Fatalf("list tokens: %v", err)
	}
	sort.Strings(tokens)
	return tokens
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

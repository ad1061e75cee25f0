package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLogNotifierReportsSuccessPerToken(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))

	results, err := n.SendMulticast(context.Background(), []string{"token-aaaaaa", "token-bbbbbb"}, Message{Title: "t", Body: "b"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for i, r := range results {
		if !r.Success() {
			t.Fatalf("result %d: expected success, got %v", i, r.Err)
		}
	}
	if results[1].Token != "token-bbbbbb" {
		t.Fatalf("results must keep token order, got %q", results[1].Token)
	}
	if !strings.Contains(buf.String(), `"tokens":2`) {
		t.Fatalf("expected log line with token count, got %s", buf.String())
	}
}

func TestLogNotifierHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := NewLogNotifier(zerolog.Nop())
	if _, err := n.SendMulticast(ctx, []string{"x"}, Message{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestUndeliverable(t *testing.T) {
	gone := errors.New("unregistered")
	busy := errors.New("unavailable")
	results := []Result{
		{Token: "t1"},
		{Token: "t2", Err: gone, Permanent: true},
		{Token: "t3", Err: busy},
		{Token: "t4", Err: gone, Permanent: true},
	}
	got := Undeliverable(results)
	if len(got) != 2 || got[0] != "t2" || got[1] != "t4" {
		t.Fatalf("expected [t2 t4], got %v", got)
	}
	if results[2].Success() || results[2].Undeliverable() {
		t.Fatalf("expected transient failure to be neither delivered nor undeliverable")
	}
}

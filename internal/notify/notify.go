// Package notify defines how confirmation events reach registered devices.
package notify

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// Message is the push payload shown on a device.
type Message struct {
	Title string
	Body  string
}

// Result is the delivery outcome for one token. Results are index aligned with
// the tokens passed to SendMulticast.
//
// Permanent marks an Err the provider attributes to the token itself
// (unregistered, malformed). Any other Err is transient and says nothing
// about whether the token is still valid.
type Result struct {
	Token     string
	Err       error
	Permanent bool
}

func (r Result) Success() bool {
	return r.Err == nil
}

// Undeliverable reports whether the token should be dropped from the registry.
func (r Result) Undeliverable() bool {
	return r.Err != nil && r.Permanent
}

// Notifier sends one message to many device tokens in a single call.
//
// A non-nil error means the batch outcome is unknown and callers must not
// treat any token as failed.
type Notifier interface {
	SendMulticast(ctx context.Context, tokens []string, msg Message) ([]Result, error)
}

// Undeliverable returns the tokens that failed permanently.
func Undeliverable(results []Result) []string {
	var out []string
	for _, r := range results {
		if r.Undeliverable() {
			out = append(out, r.Token)
		}
	}
	return out
}

// LogNotifier writes every message to the log and reports success for each token.
// It is the default when no push provider is configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "LogNotifier").Logger()}
}

func (n *LogNotifier) SendMulticast(ctx context.Context, tokens []string, msg Message) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.log.Info().
		Int("tokens", len(tokens)).
		Str("title", msg.Title).
		Str("body", strings.ReplaceAll(msg.Body, "\n", " ")).
		Msg("Push notification")

	results := make([]Result, len(tokens))
	for i, t := range tokens {
		results[i] = Result{Token: t}
	}
	return results, nil
}

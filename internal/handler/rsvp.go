package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/notify"
	"wedding-rsvp/internal/observability/metrics"
	"wedding-rsvp/internal/storage"
)

// pruneConcurrency bounds parallel token removals after a send.
const pruneConcurrency = 8

type RSVPConfig struct {
	// MinTokenLength excludes obviously malformed tokens from a send.
	MinTokenLength int
	NotifyTimeout  time.Duration
}

// RSVPHandler records confirmations and tells registered devices about them.
type RSVPHandler struct {
	guests   storage.GuestStore
	tokens   storage.TokenRegistry
	notifier notify.Notifier
	cfg      RSVPConfig
	log      zerolog.Logger
	metrics  *metrics.Metrics

	inflight sync.WaitGroup
}

type ConfirmRequest struct {
	AccessCode     string `json:"accessCode"`
	Status         string `json:"status"`
	ConfirmedCount int    `json:"confirmedCount"`
}

// NewRSVPHandler creates a new RSVP handler
func NewRSVPHandler(guests storage.GuestStore, tokens storage.TokenRegistry, notifier notify.Notifier, cfg RSVPConfig, log zerolog.Logger, m *metrics.Metrics) *RSVPHandler {
	if cfg.MinTokenLength <= 0 {
		cfg.MinTokenLength = 10
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	return &RSVPHandler{
		guests:   guests,
		tokens:   tokens,
		notifier: notifier,
		cfg:      cfg,
		log:      log.With().Str("component", "RSVP").Logger(),
		metrics:  m,
	}
}

// Confirm stores the answer for a family and, for a yes or no, starts a
// background push to every registered device. The returned guest reflects
// the stored answer whatever happens to the push.
func (h *RSVPHandler) Confirm(ctx context.Context, req ConfirmRequest) (*models.Guest, error) {
	code := strings.TrimSpace(req.AccessCode)
	if code == "" {
		return nil, fmt.Errorf("%w: accessCode is required", ErrInvalidInput)
	}
	status, err := models.ParseConfirmationStatus(req.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: status: %v", ErrInvalidInput, err)
	}
	if req.ConfirmedCount < 0 {
		return nil, fmt.Errorf("%w: confirmedCount must not be negative", ErrInvalidInput)
	}

	guest, err := h.guests.UpdateConfirmation(ctx, code, status, req.ConfirmedCount)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.metrics.ConfirmationsTotal.WithLabelValues(string(status), "not_found").Inc()
			return nil, fmt.Errorf("%w: %w", ErrGuestNotFound, err)
		}
		h.metrics.ConfirmationsTotal.WithLabelValues(string(status), "error").Inc()
		return nil, fmt.Errorf("failed to update confirmation: %w", err)
	}
	h.metrics.ConfirmationsTotal.WithLabelValues(string(status), "success").Inc()

	h.log.Info().
		Str("access_code", guest.AccessCode).
		Str("status", string(guest.ConfirmationStatus)).
		Int("confirmed_count", guest.ConfirmedCount).
		Msg("Confirmation recorded")

	if status.Answered() {
		h.dispatch(ctx, guest)
	}
	return guest, nil
}

// Wait blocks until every background notification has finished.
func (h *RSVPHandler) Wait() {
	h.inflight.Wait()
}

func (h *RSVPHandler) dispatch(ctx context.Context, guest *models.Guest) {
	msg := confirmationMessage(guest)
	code := guest.AccessCode
	// the push outlives the request that triggered it
	ctx = context.WithoutCancel(ctx)

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		h.fanOut(ctx, code, msg)
	}()
}

func (h *RSVPHandler) fanOut(ctx context.Context, code string, msg notify.Message) {
	log := h.log.With().Str("access_code", code).Logger()

	all, err := h.tokens.ListTokens(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list device tokens")
		return
	}
	tokens := usableTokens(all, h.cfg.MinTokenLength)
	if len(tokens) == 0 {
		log.Debug().Int("registered", len(all)).Msg("No device tokens to notify")
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, h.cfg.NotifyTimeout)
	results, err := h.notifier.SendMulticast(sendCtx, tokens, msg)
	cancel()
	if err != nil {
		// some devices may have been reached; pruning now could drop good tokens
		h.metrics.NotificationsTotal.WithLabelValues("unknown").Add(float64(len(tokens)))
		log.Warn().Err(err).Int("tokens", len(tokens)).Msg("Push notification failed")
		return
	}
	if len(results) != len(tokens) {
		h.metrics.NotificationsTotal.WithLabelValues("unknown").Add(float64(len(tokens)))
		log.Error().Int("tokens", len(tokens)).Int("results", len(results)).Msg("Notifier returned misaligned results")
		return
	}

	var undeliverable []string
	transient := 0
	for i, r := range results {
		switch {
		case r.Success():
			h.metrics.NotificationsTotal.WithLabelValues("success").Inc()
		case r.Undeliverable():
			h.metrics.NotificationsTotal.WithLabelValues("undeliverable").Inc()
			log.Debug().Err(r.Err).Str("token", tokens[i]).Msg("Token rejected by provider")
			undeliverable = append(undeliverable, tokens[i])
		default:
			// the token may still be valid, keep it for the next notification
			transient++
			h.metrics.NotificationsTotal.WithLabelValues("failure").Inc()
			log.Debug().Err(r.Err).Str("token", tokens[i]).Msg("Delivery failed")
		}
	}
	log.Info().
		Int("tokens", len(tokens)).
		Int("undeliverable", len(undeliverable)).
		Int("transient", transient).
		Msg("Push notification sent")

	h.prune(ctx, log, undeliverable)
}

// prune removes undeliverable tokens. Removals are independent: one failing
// does not stop the rest, and none of them is reported upward.
func (h *RSVPHandler) prune(ctx context.Context, log zerolog.Logger, failed []string) {
	if len(failed) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(pruneConcurrency)
	for _, token := range failed {
		g.Go(func() error {
			if err := h.tokens.RemoveToken(ctx, token); err != nil {
				h.metrics.TokensPrunedTotal.WithLabelValues("error").Inc()
				log.Error().Err(err).Str("token", token).Msg("Failed to remove device token")
				return nil
			}
			h.metrics.TokensPrunedTotal.WithLabelValues("removed").Inc()
			return nil
		})
	}
	_ = g.Wait()
}

// usableTokens keeps tokens that pass a minimal shape check, in order.
func usableTokens(tokens []string, minLen int) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if len(strings.TrimSpace(t)) >= minLen {
			out = append(out, t)
		}
	}
	return out
}

func confirmationMessage(guest *models.Guest) notify.Message {
	if guest.ConfirmationStatus == models.StatusConfirmed {
		return notify.Message{
			Title: "New RSVP confirmation",
			Body:  fmt.Sprintf("The %s family will attend with %d guest(s).", guest.Family, guest.ConfirmedCount),
		}
	}
	return notify.Message{
		Title: "RSVP declined",
		Body:  fmt.Sprintf("The %s family will not attend.", guest.Family),
	}
}

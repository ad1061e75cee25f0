package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/observability/metrics"
	"wedding-rsvp/internal/storage"
)

type CheckInConfig struct {
	Location   *time.Location
	TimeLayout string
	// Now defaults to time.Now.
	Now func() time.Time
}

// CheckInHandler stamps arrivals at the venue.
type CheckInHandler struct {
	guests  storage.GuestStore
	cfg     CheckInConfig
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// DefaultCheckInTimeLayout matches the CHECKIN_TIME_LAYOUT default.
const DefaultCheckInTimeLayout = "3:04 PM"

type CheckInResult struct {
	Guest       *models.Guest `json:"guest"`
	CheckInTime string        `json:"checkInTime"`
}

func NewCheckInHandler(guests storage.GuestStore, cfg CheckInConfig, log zerolog.Logger, m *metrics.Metrics) *CheckInHandler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.TimeLayout == "" {
		cfg.TimeLayout = DefaultCheckInTimeLayout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CheckInHandler{
		guests:  guests,
		cfg:     cfg,
		log:     log.With().Str("component", "CheckIn").Logger(),
		metrics: m,
	}
}

// Scan records the arrival time for the family behind code. Scanning the same
// code again moves the arrival time forward.
func (h *CheckInHandler) Scan(ctx context.Context, code string) (*CheckInResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		h.metrics.CheckInsTotal.WithLabelValues("invalid_code").Inc()
		return nil, ErrInvalidCode
	}

	now := h.cfg.Now()
	guest, err := h.guests.UpdateCheckIn(ctx, code, now)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.metrics.CheckInsTotal.WithLabelValues("invalid_code").Inc()
			return nil, ErrInvalidCode
		}
		h.metrics.CheckInsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to record check-in: %w", err)
	}
	h.metrics.CheckInsTotal.WithLabelValues("success").Inc()

	formatted := now.In(h.cfg.Location).Format(h.cfg.TimeLayout)
	h.log.Info().
		Str("access_code", guest.AccessCode).
		Str("family", guest.Family).
		Str("check_in_time", formatted).
		Msg("Guest checked in")

	return &CheckInResult{Guest: guest, CheckInTime: formatted}, nil
}

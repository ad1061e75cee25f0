package handler

import (
	"context"
	"fmt"

	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/storage"
)

type StatsHandler struct {
	guests storage.GuestStore
}

func NewStatsHandler(guests storage.GuestStore) *StatsHandler {
	return &StatsHandler{guests: guests}
}

// Summary counts registered families and those already checked in.
func (h *StatsHandler) Summary(ctx context.Context) (models.Stats, error) {
	total, err := h.guests.CountGuests(ctx)
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed to count guests: %w", err)
	}
	checkedIn, err := h.guests.CountCheckedIn(ctx)
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed to count checked in guests: %w", err)
	}
	return models.Stats{TotalInvited: total, TotalCheckedIn: checkedIn}, nil
}

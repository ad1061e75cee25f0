package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/storage"
)

// GuestHandler covers registration and administration of the invitation list.
type GuestHandler struct {
	guests storage.GuestStore
	log    zerolog.Logger
}

type RegisterRequest struct {
	Family       string `json:"family"`
	InvitedCount int    `json:"invitedCount"`
	TableNumber  string `json:"tableNumber"`
}

// UpdateRequest changes the fields that are set. Invited count and access
// code never change after registration.
type UpdateRequest struct {
	Family      *string `json:"family"`
	TableNumber *string `json:"tableNumber"`
}

func NewGuestHandler(guests storage.GuestStore, log zerolog.Logger) *GuestHandler {
	return &GuestHandler{
		guests: guests,
		log:    log.With().Str("component", "Guests").Logger(),
	}
}

func (h *GuestHandler) Register(ctx context.Context, req RegisterRequest) (*models.Guest, error) {
	family := strings.TrimSpace(req.Family)
	if family == "" {
		return nil, fmt.Errorf("%w: family is required", ErrInvalidInput)
	}
	if req.InvitedCount < 1 {
		return nil, fmt.Errorf("%w: invitedCount must be at least 1", ErrInvalidInput)
	}

	guest, err := h.guests.CreateGuest(ctx, family, req.InvitedCount, strings.TrimSpace(req.TableNumber))
	if err != nil {
		return nil, fmt.Errorf("failed to register guest: %w", err)
	}
	h.log.Info().
		Str("access_code", guest.AccessCode).
		Str("family", guest.Family).
		Int("invited_count", guest.InvitedCount).
		Msg("Guest registered")
	return guest, nil
}

// Roster lists every family with only the fields needed to hand out codes.
func (h *GuestHandler) Roster(ctx context.Context) ([]models.RosterEntry, error) {
	guests, err := h.guests.ListGuests(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list guests: %w", err)
	}
	roster := make([]models.RosterEntry, 0, len(guests))
	for _, g := range guests {
		roster = append(roster, models.RosterEntry{
			AccessCode:   g.AccessCode,
			Family:       g.Family,
			InvitedCount: g.InvitedCount,
		})
	}
	return roster, nil
}

func (h *GuestHandler) FullList(ctx context.Context) ([]*models.Guest, error) {
	guests, err := h.guests.ListGuests(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list guests: %w", err)
	}
	return guests, nil
}

func (h *GuestHandler) Get(ctx context.Context, code string) (*models.Guest, error) {
	guest, err := h.guests.GetGuestByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, notFound(err)
	}
	return guest, nil
}

func (h *GuestHandler) Update(ctx context.Context, code string, req UpdateRequest) (*models.Guest, error) {
	var family, table string
	if req.Family != nil {
		family = strings.TrimSpace(*req.Family)
	}
	if req.TableNumber != nil {
		table = strings.TrimSpace(*req.TableNumber)
	}
	if family == "" && table == "" {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}

	guest, err := h.guests.UpdateDetails(ctx, strings.TrimSpace(code), family, table)
	if err != nil {
		return nil, notFound(err)
	}
	h.log.Info().Str("access_code", guest.AccessCode).Msg("Guest updated")
	return guest, nil
}

func (h *GuestHandler) Delete(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if err := h.guests.DeleteGuest(ctx, code); err != nil {
		return notFound(err)
	}
	h.log.Info().Str("access_code", code).Msg("Guest deleted")
	return nil
}

func notFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrGuestNotFound, err)
	}
	return err
}

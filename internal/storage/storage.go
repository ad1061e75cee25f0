package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wedding-rsvp/internal/models"
)

var (
	// ErrNotFound is returned when no record matches the given access code.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write collides with a unique access code.
	ErrConflict = errors.New("record conflict")
	// ErrEmptyToken is returned when a blank device token reaches a registry.
	ErrEmptyToken = errors.New("device token is empty")
)

// createAttempts bounds access code regeneration on collisions.
const createAttempts = 5

// GuestStore persists guest records keyed by access code.
type GuestStore interface {
	CreateGuest(ctx context.Context, family string, invitedCount int, tableNumber string) (*models.Guest, error)
	GetGuestByCode(ctx context.Context, code string) (*models.Guest, error)
	UpdateConfirmation(ctx context.Context, code string, status models.ConfirmationStatus, confirmedCount int) (*models.Guest, error)
	UpdateCheckIn(ctx context.Context, code string, at time.Time) (*models.Guest, error)
	UpdateDetails(ctx context.Context, code string, family, tableNumber string) (*models.Guest, error)
	DeleteGuest(ctx context.Context, code string) error
	ListGuests(ctx context.Context) ([]*models.Guest, error)
	CountGuests(ctx context.Context) (int, error)
	CountCheckedIn(ctx context.Context) (int, error)
}

// TokenRegistry persists the set of push notification endpoints.
type TokenRegistry interface {
	// RegisterToken reports inserted=false when the token was already present.
	RegisterToken(ctx context.Context, token string) (bool, error)
	ListTokens(ctx context.Context) ([]string, error)
	// RemoveToken is a no-op for unknown tokens.
	RemoveToken(ctx context.Context, token string) error
}

// Backend bundles both stores over one underlying database.
type Backend interface {
	GuestStore
	TokenRegistry
	Close() error
}

// InsertFunc persists a prepared guest and reports ErrConflict on a duplicate code.
type InsertFunc func(ctx context.Context, guest *models.Guest) error

// CreateWithUniqueCode builds a pending guest and inserts it, drawing a new
// access code whenever the backend reports a collision.
func CreateWithUniqueCode(ctx context.Context, family string, invitedCount int, tableNumber string, now time.Time, insert InsertFunc) (*models.Guest, error) {
	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		code, err := models.NewAccessCode()
		if err != nil {
			return nil, fmt.Errorf("generate access code: %w", err)
		}
		guest := models.NewGuest(family, invitedCount, tableNumber, code, now)
		err = insert(ctx, guest)
		if err == nil {
			return guest, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("allocate unique access code after %d attempts: %w", createAttempts, lastErr)
}

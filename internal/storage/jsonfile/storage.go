package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/storage"
)

type snapshot struct {
	Guests []*models.Guest `json:"guests"`
	Tokens []string        `json:"tokens"`
}

// Storage keeps guests and device tokens in memory and mirrors them to a
// JSON file after every write. An empty path keeps everything in memory.
type Storage struct {
	mu     sync.RWMutex
	guests []*models.Guest
	tokens []string
	file   string
	now    func() time.Time
}

var _ storage.Backend = (*Storage)(nil)

// NewStorage creates a new storage instance
func NewStorage(filePath string) (*Storage, error) {
	s := &Storage{
		guests: make([]*models.Guest, 0),
		tokens: make([]string, 0),
		file:   filePath,
		now:    func() time.Time { return time.Now().UTC() },
	}

	// Load existing data if file exists
	if filePath != "" {
		if _, err := os.Stat(filePath); err == nil {
			if err := s.Load(); err != nil {
				return nil, fmt.Errorf("failed to load storage: %w", err)
			}
		}
	}

	return s, nil
}

// NewMemory returns a storage that never touches disk
func NewMemory() *Storage {
	s, _ := NewStorage("")
	return s
}

func (s *Storage) CreateGuest(ctx context.Context, family string, invitedCount int, tableNumber string) (*models.Guest, error) {
	guest, err := storage.CreateWithUniqueCode(ctx, family, invitedCount, tableNumber, s.now(), s.insert)
	if err != nil {
		return nil, err
	}
	return clone(guest), nil
}

func (s *Storage) insert(_ context.Context, guest *models.Guest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(guest.AccessCode) >= 0 {
		return storage.ErrConflict
	}
	guests := make([]*models.Guest, len(s.guests), len(s.guests)+1)
	copy(guests, s.guests)
	return s.commit(append(guests, clone(guest)), s.tokens)
}

// GetGuestByCode retrieves a guest by access code
func (s *Storage) GetGuestByCode(_ context.Context, code string) (*models.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(code)
	if i < 0 {
		return nil, storage.ErrNotFound
	}
	return clone(s.guests[i]), nil
}

// UpdateConfirmation updates the RSVP status for a guest
func (s *Storage) UpdateConfirmation(_ context.Context, code string, status models.ConfirmationStatus, confirmedCount int) (*models.Guest, error) {
	return s.update(code, func(g *models.Guest) {
		g.ConfirmationStatus = status
		g.ConfirmedCount = confirmedCount
	})
}

func (s *Storage) UpdateCheckIn(_ context.Context, code string, at time.Time) (*models.Guest, error) {
	return s.update(code, func(g *models.Guest) {
		t := at
		g.CheckInTime = &t
	})
}

func (s *Storage) UpdateDetails(_ context.Context, code string, family, tableNumber string) (*models.Guest, error) {
	return s.update(code, func(g *models.Guest) {
		if family != "" {
			g.Family = family
		}
		if tableNumber != "" {
			g.TableNumber = tableNumber
		}
	})
}

func (s *Storage) DeleteGuest(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(code)
	if i < 0 {
		return storage.ErrNotFound
	}
	guests := make([]*models.Guest, 0, len(s.guests)-1)
	guests = append(guests, s.guests[:i]...)
	guests = append(guests, s.guests[i+1:]...)
	return s.commit(guests, s.tokens)
}

// ListGuests returns all guests
func (s *Storage) ListGuests(_ context.Context) ([]*models.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	guests := make([]*models.Guest, 0, len(s.guests))
	for _, g := range s.guests {
		guests = append(guests, clone(g))
	}
	return guests, nil
}

func (s *Storage) CountGuests(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.guests), nil
}

func (s *Storage) CountCheckedIn(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, g := range s.guests {
		if g.CheckedIn() {
			n++
		}
	}
	return n, nil
}

func (s *Storage) RegisterToken(_ context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, storage.ErrEmptyToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t == token {
			return false, nil
		}
	}
	tokens := make([]string, len(s.tokens), len(s.tokens)+1)
	copy(tokens, s.tokens)
	if err := s.commit(s.guests, append(tokens, token)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) ListTokens(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := make([]string, len(s.tokens))
	copy(tokens, s.tokens)
	return tokens, nil
}

func (s *Storage) RemoveToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]string, 0, len(s.tokens))
	for _, t := range s.tokens {
		if t != token {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(s.tokens) {
		return nil
	}
	return s.commit(s.guests, kept)
}

func (s *Storage) Close() error { return nil }

func (s *Storage) update(code string, apply func(*models.Guest)) (*models.Guest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(code)
	if i < 0 {
		return nil, storage.ErrNotFound
	}
	updated := clone(s.guests[i])
	apply(updated)
	updated.UpdatedAt = s.now()

	guests := make([]*models.Guest, len(s.guests))
	copy(guests, s.guests)
	guests[i] = updated
	if err := s.commit(guests, s.tokens); err != nil {
		return nil, err
	}
	return clone(updated), nil
}

// commit writes the next state to disk and only then makes it visible, so a
// failed write leaves the previous state in place. Callers hold mu and must
// not share backing arrays between the next and current state.
func (s *Storage) commit(guests []*models.Guest, tokens []string) error {
	if err := s.write(guests, tokens); err != nil {
		return err
	}
	s.guests = guests
	s.tokens = tokens
	return nil
}

// indexOf must be called with mu held.
func (s *Storage) indexOf(code string) int {
	for i, g := range s.guests {
		if g.AccessCode == code {
			return i
		}
	}
	return -1
}

// Save saves the guests and tokens to file
func (s *Storage) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.write(s.guests, s.tokens)
}

// write replaces the file through a temp file and rename, so readers never
// see a partial snapshot.
func (s *Storage) write(guests []*models.Guest, tokens []string) error {
	if s.file == "" {
		return nil
	}

	data, err := json.MarshalIndent(snapshot{Guests: guests, Tokens: tokens}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(s.file)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := s.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, s.file); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}

// Load loads guests and tokens from file
func (s *Storage) Load() error {
	data, err := os.ReadFile(s.file)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	if snap.Guests != nil {
		s.guests = snap.Guests
	}
	if snap.Tokens != nil {
		s.tokens = snap.Tokens
	}
	return nil
}

func clone(g *models.Guest) *models.Guest {
	c := *g
	if g.CheckInTime != nil {
		t := *g.CheckInTime
		c.CheckInTime = &t
	}
	return &c
}

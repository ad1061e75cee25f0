// Package kvdb stores guests and device tokens in a bbolt file.
package kvdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/storage"
)

const (
	bucketGuest = "guest_store"
	bucketToken = "token_store"
)

var tracer = otel.Tracer("wedding-rsvp/internal/storage/kvdb")

// Store keys guests by access code, so code uniqueness is enforced by the bucket itself.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

var _ storage.Backend = (*Store)(nil)

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketGuest, bucketToken} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateGuest(ctx context.Context, family string, invitedCount int, tableNumber string) (*models.Guest, error) {
	var span trace.Span
	ctx, span = tracer.Start(ctx, "CreateGuest")
	defer span.End()

	guest, err := storage.CreateWithUniqueCode(ctx, family, invitedCount, tableNumber, s.now(), s.insert)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return guest, nil
}

func (s *Store) insert(ctx context.Context, guest *models.Guest) error {
	j, err := json.Marshal(guest)
	if err != nil {
		return err
	}

	trace.SpanFromContext(ctx).AddEvent("Update bucket")
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketGuest))
		key := []byte(guest.AccessCode)
		if bucket.Get(key) != nil {
			return storage.ErrConflict
		}
		return bucket.Put(key, j)
	})
}

func (s *Store) GetGuestByCode(ctx context.Context, code string) (*models.Guest, error) {
	var span trace.Span
	_, span = tracer.Start(ctx, "GetGuestByCode")
	defer span.End()

	guest := &models.Guest{}
	err := s.db.View(func(tx *bolt.Tx) error {
		res := tx.Bucket([]byte(bucketGuest)).Get([]byte(code))
		if res == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(res, guest)
	})
	if err != nil {
		return nil, err
	}
	return guest, nil
}

func (s *Store) UpdateConfirmation(ctx context.Context, code string, status models.ConfirmationStatus, confirmedCount int) (*models.Guest, error) {
	var span trace.Span
	_, span = tracer.Start(ctx, "UpdateConfirmation")
	defer span.End()

	return s.update(span, code, func(g *models.Guest) {
		g.ConfirmationStatus = status
		g.ConfirmedCount = confirmedCount
	})
}

func (s *Store) UpdateCheckIn(ctx context.Context, code string, at time.Time) (*models.Guest, error) {
	var span trace.Span
	_, span = tracer.Start(ctx, "UpdateCheckIn")
	defer span.End()

	return s.update(span, code, func(g *models.Guest) {
		t := at.UTC()
		g.CheckInTime = &t
	})
}

func (s *Store) UpdateDetails(ctx context.Context, code string, family, tableNumber string) (*models.Guest, error) {
	var span trace.Span
	_, span = tracer.Start(ctx, "UpdateDetails")
	defer span.End()

	return s.update(span, code, func(g *models.Guest) {
		if family != "" {
			g.Family = family
		}
		if tableNumber != "" {
			g.TableNumber = tableNumber
		}
	})
}

// update reads, mutates and writes one guest inside a single write transaction.
func (s *Store) update(span trace.Span, code string, apply func(*models.Guest)) (*models.Guest, error) {
	guest := &models.Guest{}
	span.AddEvent("Update bucket")
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketGuest))
		key := []byte(code)
		res := bucket.Get(key)
		if res == nil {
			return storage.ErrNotFound
		}
		if err := json.Unmarshal(res, guest); err != nil {
			return err
		}
		apply(guest)
		guest.UpdatedAt = s.now()
		j, err := json.Marshal(guest)
		if err != nil {
			return err
		}
		return bucket.Put(key, j)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return guest, nil
}

func (s *Store) DeleteGuest(ctx context.Context, code string) error {
	var span trace.Span
	_, span = tracer.Start(ctx, "DeleteGuest")
	defer span.End()

	span.AddEvent("Update bucket")
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketGuest))
		key := []byte(code)
		if bucket.Get(key) == nil {
			return storage.ErrNotFound
		}
		return bucket.Delete(key)
	})
}

func (s *Store) ListGuests(ctx context.Context) ([]*models.Guest, error) {
	var span trace.Span
	_, span = tracer.Start(ctx, "ListGuests")
	defer span.End()

	span.AddEvent("View bucket")
	guests := make([]*models.Guest, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketGuest)).ForEach(func(_, v []byte) error {
			guest := &models.Guest{}
			if err := json.Unmarshal(v, guest); err != nil {
				span.RecordError(err)
				return err
			}
			guests = append(guests, guest)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return guests, nil
}

func (s *Store) CountGuests(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(bucketGuest)).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Store) CountCheckedIn(ctx context.Context) (int, error) {
	guests, err := s.ListGuests(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, g := range guests {
		if g.CheckedIn() {
			n++
		}
	}
	return n, nil
}

func (s *Store) RegisterToken(ctx context.Context, token string) (bool, error) {
	var span trace.Span
	_, span = tracer.Start(ctx, "RegisterToken")
	defer span.End()

	if strings.TrimSpace(token) == "" {
		return false, storage.ErrEmptyToken
	}
	stamp, err := s.now().MarshalText()
	if err != nil {
		return false, err
	}

	inserted := false
	err = s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketToken))
		if bucket.Get([]byte(token)) != nil {
			return nil
		}
		inserted = true
		return bucket.Put([]byte(token), stamp)
	})
	return inserted, err
}

func (s *Store) ListTokens(_ context.Context) ([]string, error) {
	tokens := make([]string, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketToken)).ForEach(func(k, _ []byte) error {
			tokens = append(tokens, string(k))
			return nil
		})
	})
	return tokens, err
}

func (s *Store) RemoveToken(ctx context.Context, token string) error {
	var span trace.Span
	_, span = tracer.Start(ctx, "RemoveToken")
	defer span.End()

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketToken)).Delete([]byte(token))
	})
}

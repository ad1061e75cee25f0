package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/storage"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const guestColumns = `id, family, invited_count, confirmed_count, table_number, confirmation_status, access_code, check_in_time, created_at, updated_at`

var tracer = otel.Tracer("wedding-rsvp/internal/storage/sqldb")

// Store is the relational backend for guests and device tokens.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ storage.Backend = (*Store)(nil)

// Open connects with the given driver ("sqlite3" or "postgres") and applies migrations.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("dsn is required")
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY between goroutines
		db.SetMaxOpenConns(1)
	}

	if err := migrate(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
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
	ctx, span := tracer.Start(ctx, "CreateGuest")
	defer span.End()

	guest, err := storage.CreateWithUniqueCode(ctx, family, invitedCount, tableNumber, s.now(), s.insertGuest)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return guest, nil
}

func (s *Store) insertGuest(ctx context.Context, guest *models.Guest) error {
	query := `
		INSERT INTO guests (` + guestColumns + `)
		VALUES (:id, :family, :invited_count, :confirmed_count, :table_number, :confirmation_status, :access_code, :check_in_time, :created_at, :updated_at)
	`
	if _, err := s.db.NamedExecContext(ctx, query, guest); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert guest: %w", err)
	}
	return nil
}

func (s *Store) GetGuestByCode(ctx context.Context, code string) (*models.Guest, error) {
	ctx, span := tracer.Start(ctx, "GetGuestByCode")
	defer span.End()

	return s.getByCode(ctx, code)
}

func (s *Store) getByCode(ctx context.Context, code string) (*models.Guest, error) {
	var guest models.Guest
	query := s.db.Rebind(`SELECT ` + guestColumns + ` FROM guests WHERE access_code = ?`)
	if err := s.db.GetContext(ctx, &guest, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get guest: %w", err)
	}
	return &guest, nil
}

func (s *Store) UpdateConfirmation(ctx context.Context, code string, status models.ConfirmationStatus, confirmedCount int) (*models.Guest, error) {
	ctx, span := tracer.Start(ctx, "UpdateConfirmation", trace.WithAttributes(attribute.String("status", string(status))))
	defer span.End()

	return s.updateByCode(ctx, code,
		`UPDATE guests SET confirmation_status = ?, confirmed_count = ?, updated_at = ? WHERE access_code = ?`,
		string(status), confirmedCount, s.now(), code)
}

func (s *Store) UpdateCheckIn(ctx context.Context, code string, at time.Time) (*models.Guest, error) {
	ctx, span := tracer.Start(ctx, "UpdateCheckIn")
	defer span.End()

	return s.updateByCode(ctx, code,
		`UPDATE guests SET check_in_time = ?, updated_at = ? WHERE access_code = ?`,
		at.UTC(), s.now(), code)
}

func (s *Store) UpdateDetails(ctx context.Context, code string, family, tableNumber string) (*models.Guest, error) {
	ctx, span := tracer.Start(ctx, "UpdateDetails")
	defer span.End()

	return s.updateByCode(ctx, code,
		`UPDATE guests SET
			family = CASE WHEN ? = '' THEN family ELSE ? END,
			table_number = CASE WHEN ? = '' THEN table_number ELSE ? END,
			updated_at = ?
		WHERE access_code = ?`,
		family, family, tableNumber, tableNumber, s.now(), code)
}

// updateByCode issues one conditional UPDATE and reads the row back.
func (s *Store) updateByCode(ctx context.Context, code, query string, args ...any) (*models.Guest, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		return nil, fmt.Errorf("update guest: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update guest: %w", err)
	}
	if n == 0 {
		return nil, storage.ErrNotFound
	}
	return s.getByCode(ctx, code)
}

func (s *Store) DeleteGuest(ctx context.Context, code string) error {
	ctx, span := tracer.Start(ctx, "DeleteGuest")
	defer span.End()

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM guests WHERE access_code = ?`), code)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete guest: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete guest: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListGuests(ctx context.Context) ([]*models.Guest, error) {
	ctx, span := tracer.Start(ctx, "ListGuests")
	defer span.End()

	var guests []*models.Guest
	if err := s.db.SelectContext(ctx, &guests, `SELECT `+guestColumns+` FROM guests`); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list guests: %w", err)
	}
	return guests, nil
}

func (s *Store) CountGuests(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM guests`); err != nil {
		return 0, fmt.Errorf("count guests: %w", err)
	}
	return n, nil
}

func (s *Store) CountCheckedIn(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM guests WHERE check_in_time IS NOT NULL`); err != nil {
		return 0, fmt.Errorf("count checked in guests: %w", err)
	}
	return n, nil
}

func (s *Store) RegisterToken(ctx context.Context, token string) (bool, error) {
	ctx, span := tracer.Start(ctx, "RegisterToken")
	defer span.End()

	if strings.TrimSpace(token) == "" {
		return false, storage.ErrEmptyToken
	}
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO device_tokens (token, created_at) VALUES (?, ?) ON CONFLICT (token) DO NOTHING`),
		token, s.now())
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("register token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("register token: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ListTokens(ctx context.Context) ([]string, error) {
	var tokens []string
	if err := s.db.SelectContext(ctx, &tokens, `SELECT token FROM device_tokens ORDER BY created_at, token`); err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return tokens, nil
}

func (s *Store) RemoveToken(ctx context.Context, token string) error {
	ctx, span := tracer.Start(ctx, "RemoveToken")
	defer span.End()

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM device_tokens WHERE token = ?`), token); err != nil {
		span.RecordError(err)
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

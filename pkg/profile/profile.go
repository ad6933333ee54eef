// Package profile persists the local profile row of each identity provider
// user in Postgres.
package profile

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/launchkit/pkg/pg"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	ErrNotFound      = errors.New("profile not found")
	ErrInvalidID     = errors.New("profile id must be a uuid")
	ErrEmailRequired = errors.New("profile email is required")
)

type Profile struct {
	ID                uuid.UUID
	Email             string
	FullName          string
	AvatarURL         string
	BillingCustomerID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Migrate applies the profile schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool, table string, log *slog.Logger) error {
	return pg.Migrate(ctx, pool, migrations, "migrations", table, log)
}

// ParseID converts an identity provider user id into a profile id.
func ParseID(userID string) (uuid.UUID, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, errors.Join(ErrInvalidID, err)
	}
	return id, nil
}

const createProfile = `
INSERT INTO profiles (id, email, full_name, avatar_url)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING`

// Create inserts p unless a profile with the same id exists. It reports
// whether a row was written.
func (s *Store) Create(ctx context.Context, p Profile) (bool, error) {
	if p.ID == uuid.Nil {
		return false, ErrInvalidID
	}
	if strings.TrimSpace(p.Email) == "" {
		return false, ErrEmailRequired
	}
	tag, err := s.db.Exec(ctx, createProfile, p.ID, strings.TrimSpace(p.Email), p.FullName, p.AvatarURL)
	if err != nil {
		return false, fmt.Errorf("create profile: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const getProfile = `
SELECT id, email, full_name, avatar_url, COALESCE(billing_customer_id, ''), created_at, updated_at
FROM profiles
WHERE id = $1`

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	var p Profile
	err := s.db.QueryRow(ctx, getProfile, id).Scan(
		&p.ID, &p.Email, &p.FullName, &p.AvatarURL, &p.BillingCustomerID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

const setBillingCustomer = `
UPDATE profiles
SET billing_customer_id = $2, updated_at = now()
WHERE id = $1`

// SetBillingCustomer records the payment provider customer of a profile.
func (s *Store) SetBillingCustomer(ctx context.Context, id uuid.UUID, customerID string) error {
	tag, err := s.db.Exec(ctx, setBillingCustomer, id, customerID)
	if err != nil {
		return fmt.Errorf("set billing customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

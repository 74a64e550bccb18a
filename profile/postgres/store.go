package postgres

import (
	"context"
	"errors"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
)

// pool is the subset of pgxpool.Pool the store uses.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const profileColumns = `uid, email, display_name, first_name, last_name,
	COALESCE(pending_email, ''), COALESCE(pending_token_hash, ''),
	COALESCE(pending_requested_at, 'epoch'::timestamptz),
	created_at, updated_at`

// Store is a PostgreSQL [goIdentity.ProfileStore].
type Store struct {
	pool pool
	now  func() time.Time
}

var _ goIdentity.ProfileStore = (*Store)(nil)

// New returns a Store over p, usually a *pgxpool.Pool.
func New(p pool) *Store {
	return &Store{pool: p, now: time.Now}
}

// Connect opens a pool for dsn and checks connectivity.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("PROFILE_DB_CONFIG_INVALID").Wrap(err)
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("PROFILE_DB_CONNECT_FAILED").Wrap(err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, oops.Code("PROFILE_DB_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}
	return p, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return oops.Code("PROFILE_DB_UNAVAILABLE").Wrap(err)
	}
	return nil
}

// CreateProfile inserts p. A uid or email conflict wraps
// [goIdentity.ErrDuplicateAccount].
func (s *Store) CreateProfile(ctx context.Context, p goIdentity.Profile) error {
	now := s.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (
			uid, email, display_name, first_name, last_name, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		p.UID,
		p.Email,
		p.DisplayName,
		p.FirstName,
		p.LastName,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("PROFILE_DUPLICATE").
			With("uid", p.UID).
			Wrap(goIdentity.ErrDuplicateAccount)
	}
	if err != nil {
		return oops.Code("PROFILE_CREATE_FAILED").
			With("operation", "insert profile").
			With("uid", p.UID).
			Wrap(err)
	}
	return nil
}

// GetProfile loads the profile for uid.
func (s *Store) GetProfile(ctx context.Context, uid string) (goIdentity.Profile, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE uid = $1`, uid)

	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return goIdentity.Profile{}, oops.Code("PROFILE_NOT_FOUND").
			With("uid", uid).
			Wrap(goIdentity.ErrProfileNotFound)
	}
	if err != nil {
		return goIdentity.Profile{}, oops.Code("PROFILE_GET_FAILED").
			With("operation", "get profile").
			With("uid", uid).
			Wrap(err)
	}
	return p, nil
}

// SetPendingEmailChange overwrites all three pending columns in one
// statement.
func (s *Store) SetPendingEmailChange(ctx context.Context, uid string, pending goIdentity.PendingEmailChange) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE profiles SET
			pending_email = $2,
			pending_token_hash = $3,
			pending_requested_at = $4,
			updated_at = $5
		WHERE uid = $1
	`,
		uid,
		pending.Email,
		pending.TokenHash,
		pending.RequestedAt.UTC(),
		s.now().UTC(),
	)
	if err != nil {
		return oops.Code("PROFILE_PENDING_SET_FAILED").
			With("operation", "set pending email change").
			With("uid", uid).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("PROFILE_NOT_FOUND").With("uid", uid).Wrap(goIdentity.ErrProfileNotFound)
	}
	return nil
}

// ClearPendingEmailChange nulls the pending columns. Clearing an absent
// request is not an error.
func (s *Store) ClearPendingEmailChange(ctx context.Context, uid string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE profiles SET
			pending_email = NULL,
			pending_token_hash = NULL,
			pending_requested_at = NULL,
			updated_at = $2
		WHERE uid = $1 AND pending_email IS NOT NULL
	`, uid, s.now().UTC())
	if err != nil {
		return oops.Code("PROFILE_PENDING_CLEAR_FAILED").
			With("operation", "clear pending email change").
			With("uid", uid).
			Wrap(err)
	}
	return nil
}

// CommitEmailChange sets the email and clears the pending columns in one
// statement, returning the updated row.
func (s *Store) CommitEmailChange(ctx context.Context, uid, newEmail string) (goIdentity.Profile, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE profiles SET
			email = $2,
			pending_email = NULL,
			pending_token_hash = NULL,
			pending_requested_at = NULL,
			updated_at = $3
		WHERE uid = $1
		RETURNING `+profileColumns, uid, newEmail, s.now().UTC())

	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return goIdentity.Profile{}, oops.Code("PROFILE_NOT_FOUND").With("uid", uid).Wrap(goIdentity.ErrProfileNotFound)
	}
	if isUniqueViolation(err) {
		return goIdentity.Profile{}, oops.Code("PROFILE_DUPLICATE").With("uid", uid).Wrap(goIdentity.ErrDuplicateAccount)
	}
	if err != nil {
		return goIdentity.Profile{}, oops.Code("PROFILE_COMMIT_EMAIL_FAILED").
			With("operation", "commit email change").
			With("uid", uid).
			Wrap(err)
	}
	return p, nil
}

func scanProfile(row pgx.Row) (goIdentity.Profile, error) {
	var (
		p           goIdentity.Profile
		pending     goIdentity.PendingEmailChange
		requestedAt time.Time
	)
	err := row.Scan(
		&p.UID,
		&p.Email,
		&p.DisplayName,
		&p.FirstName,
		&p.LastName,
		&pending.Email,
		&pending.TokenHash,
		&requestedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return goIdentity.Profile{}, err
	}
	if pending.Email != "" {
		pending.RequestedAt = requestedAt.UTC()
		p.PendingEmailChange = &pending
	}
	return p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

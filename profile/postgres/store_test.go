package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var profileRowColumns = []string{
	"uid", "email", "display_name", "first_name", "last_name",
	"pending_email", "pending_token_hash", "pending_requested_at",
	"created_at", "updated_at",
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s := New(mock)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected an oops error, got %T", err)
	assert.Equal(t, code, oopsErr.Code())
}

func TestStoreCreateProfile(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		wantCode  string
	}{
		{
			name: "inserts row",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO profiles`).
					WithArgs("uid-1", "ann@example.com", "Ann", "Ann", "Lee", fixedNow, fixedNow).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "unique violation maps to duplicate account",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO profiles`).
					WithArgs("uid-1", "ann@example.com", "Ann", "Ann", "Lee", fixedNow, fixedNow).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			wantErr:  goIdentity.ErrDuplicateAccount,
			wantCode: "PROFILE_DUPLICATE",
		},
		{
			name: "other errors are wrapped",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO profiles`).
					WithArgs("uid-1", "ann@example.com", "Ann", "Ann", "Lee", fixedNow, fixedNow).
					WillReturnError(errors.New("connection refused"))
			},
			wantCode: "PROFILE_CREATE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			tt.setupMock(mock)

			err := s.CreateProfile(context.Background(), goIdentity.Profile{
				UID:         "uid-1",
				Email:       "ann@example.com",
				DisplayName: "Ann",
				FirstName:   "Ann",
				LastName:    "Lee",
			})
			if tt.wantCode == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assertCode(t, err, tt.wantCode)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
			}
			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestStoreGetProfile(t *testing.T) {
	requested := fixedNow.Add(-time.Hour)
	epoch := time.Unix(0, 0).UTC()

	tests := []struct {
		name        string
		setupMock   func(mock pgxmock.PgxPoolIface)
		wantPending *goIdentity.PendingEmailChange
		wantErr     error
	}{
		{
			name: "without pending change",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(profileRowColumns).
					AddRow("uid-1", "ann@example.com", "Ann", "Ann", "Lee", "", "", epoch, fixedNow, fixedNow)
				mock.ExpectQuery(`SELECT .+ FROM profiles WHERE uid`).WithArgs("uid-1").WillReturnRows(rows)
			},
		},
		{
			name: "with pending change",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(profileRowColumns).
					AddRow("uid-1", "ann@example.com", "Ann", "Ann", "Lee", "new@example.com", "digest", requested, fixedNow, fixedNow)
				mock.ExpectQuery(`SELECT .+ FROM profiles WHERE uid`).WithArgs("uid-1").WillReturnRows(rows)
			},
			wantPending: &goIdentity.PendingEmailChange{
				Email:       "new@example.com",
				TokenHash:   "digest",
				RequestedAt: requested,
			},
		},
		{
			name: "missing row",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .+ FROM profiles WHERE uid`).WithArgs("uid-1").WillReturnError(pgx.ErrNoRows)
			},
			wantErr: goIdentity.ErrProfileNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			tt.setupMock(mock)

			p, err := s.GetProfile(context.Background(), "uid-1")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assertCode(t, err, "PROFILE_NOT_FOUND")
			} else {
				require.NoError(t, err)
				assert.Equal(t, "ann@example.com", p.Email)
				assert.Equal(t, tt.wantPending, p.PendingEmailChange)
			}
			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestStoreSetPendingEmailChange(t *testing.T) {
	pending := goIdentity.PendingEmailChange{Email: "new@example.com", TokenHash: "digest", RequestedAt: fixedNow}

	t.Run("updates all pending columns", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE profiles SET`).
			WithArgs("uid-1", "new@example.com", "digest", fixedNow, fixedNow).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, s.SetPendingEmailChange(context.Background(), "uid-1", pending))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown uid", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE profiles SET`).
			WithArgs("uid-1", "new@example.com", "digest", fixedNow, fixedNow).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := s.SetPendingEmailChange(context.Background(), "uid-1", pending)
		assert.ErrorIs(t, err, goIdentity.ErrProfileNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStoreClearPendingEmailChange(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE profiles SET`).
		WithArgs("uid-1", fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, s.ClearPendingEmailChange(context.Background(), "uid-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCommitEmailChange(t *testing.T) {
	epoch := time.Unix(0, 0).UTC()

	t.Run("returns updated row", func(t *testing.T) {
		s, mock := newMockStore(t)
		rows := pgxmock.NewRows(profileRowColumns).
			AddRow("uid-1", "new@example.com", "Ann", "Ann", "Lee", "", "", epoch, fixedNow, fixedNow)
		mock.ExpectQuery(`UPDATE profiles SET`).
			WithArgs("uid-1", "new@example.com", fixedNow).
			WillReturnRows(rows)

		p, err := s.CommitEmailChange(context.Background(), "uid-1", "new@example.com")
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", p.Email)
		assert.Nil(t, p.PendingEmailChange)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("email held by another profile", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`UPDATE profiles SET`).
			WithArgs("uid-1", "new@example.com", fixedNow).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		_, err := s.CommitEmailChange(context.Background(), "uid-1", "new@example.com")
		assert.ErrorIs(t, err, goIdentity.ErrDuplicateAccount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown uid", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`UPDATE profiles SET`).
			WithArgs("uid-1", "new@example.com", fixedNow).
			WillReturnError(pgx.ErrNoRows)

		_, err := s.CommitEmailChange(context.Background(), "uid-1", "new@example.com")
		assert.ErrorIs(t, err, goIdentity.ErrProfileNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

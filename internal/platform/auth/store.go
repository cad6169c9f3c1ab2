package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"booknet-backend/internal/platform/apperr"
	"booknet-backend/internal/platform/db"
)

type Account struct {
	ID           int64
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Enabled      bool
	CreatedAt    time.Time
}

func (a *Account) FullName() string {
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id int64) (*Account, error)
	Create(ctx context.Context, a *Account) error
}

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) AccountStore {
	return &Store{db: conn}
}

const accountColumns = `id, email, first_name, last_name, password_hash, enabled, created_at`

func (s *Store) GetByEmail(ctx context.Context, email string) (*Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM users WHERE email = ? LIMIT 1`
	return s.get(ctx, q, email)
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM users WHERE id = ? LIMIT 1`
	return s.get(ctx, q, id)
}

// 見つからなければ (nil, nil)
func (s *Store) get(ctx context.Context, q string, arg any) (*Account, error) {
	var a Account
	err := s.db.QueryRowContext(ctx, q, arg).Scan(
		&a.ID,
		&a.Email,
		&a.FirstName,
		&a.LastName,
		&a.PasswordHash,
		&a.Enabled,
		&a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, db.Classify(err, "select user")
	}
	return &a, nil
}

func (s *Store) Create(ctx context.Context, a *Account) error {
	const q = `
INSERT INTO users (email, first_name, last_name, password_hash, enabled, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`
	res, err := s.db.ExecContext(ctx, q, a.Email, a.FirstName, a.LastName, a.PasswordHash, a.Enabled, a.CreatedAt)
	if err != nil {
		if db.IsConflict(err) {
			return apperr.Conflict("email already registered")
		}
		return db.Classify(err, "insert user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return db.Classify(err, "insert user")
	}
	a.ID = id
	return nil
}

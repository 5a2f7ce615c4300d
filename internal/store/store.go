package store

import (
	"context"
	"errors"

	"opsledger/backend/internal/domain"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicate   = errors.New("already exists")
	ErrInvalidUser = errors.New("invalid user")
)

// SnapshotStore persists whole ledger snapshots. Saves are last-write-wins.
type SnapshotStore interface {
	// LoadSnapshot returns ErrNotFound when nothing was saved for ledgerID.
	LoadSnapshot(ctx context.Context, ledgerID string) (domain.Snapshot, error)
	SaveSnapshot(ctx context.Context, ledgerID string, snapshot domain.Snapshot) error
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, email string, password string) error
	// RecordLogin stores the attempt and, when it succeeded, stamps the
	// user's last login.
	RecordLogin(ctx context.Context, attempt domain.LoginAttempt) error
	ListLoginAttempts(ctx context.Context, limit int) ([]domain.LoginAttempt, error)
}

type Repository interface {
	SnapshotStore
	UserStore
}

// Composite pairs a snapshot backend with a separate user backend.
type Composite struct {
	SnapshotStore
	UserStore
}

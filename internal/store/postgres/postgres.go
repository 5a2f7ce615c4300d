package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"opsledger/backend/internal/domain"
	"opsledger/backend/internal/store"
	"opsledger/backend/internal/xid"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_snapshots (
	ledger_id  TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS app_users (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	password   TEXT NOT NULL,
	role       TEXT NOT NULL DEFAULT 'user',
	active     BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_login TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS login_attempts (
	id           TEXT PRIMARY KEY,
	email        TEXT NOT NULL,
	success      BOOLEAN NOT NULL,
	device_id    TEXT,
	attempted_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS login_attempts_attempted_at_idx ON login_attempts (attempted_at DESC);
`

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables this store needs when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) LoadSnapshot(ctx context.Context, ledgerID string) (domain.Snapshot, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload
		FROM ledger_snapshots
		WHERE ledger_id = $1
	`, ledgerID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Snapshot{}, store.ErrNotFound
		}
		return domain.Snapshot{}, err
	}

	var snapshot domain.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", ledgerID, err)
	}
	return snapshot.Clone(), nil
}

func (s *Store) SaveSnapshot(ctx context.Context, ledgerID string, snapshot domain.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", ledgerID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledger_snapshots (ledger_id, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (ledger_id)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
	`, ledgerID, payload)
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidUser
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (id, email, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, user.ID, user.Email, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, password, role, active, created_at, last_login
		FROM app_users
		ORDER BY email ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var (
			user      domain.UserAccount
			lastLogin sql.NullTime
		)
		if err := rows.Scan(&user.ID, &user.Email, &user.Password, &user.Role, &user.Active, &user.CreatedAt, &lastLogin); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		if lastLogin.Valid {
			at := lastLogin.Time.UTC()
			user.LastLogin = &at
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, email string, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidUser
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE email = $1
	`, email, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RecordLogin(ctx context.Context, attempt domain.LoginAttempt) error {
	attempt.Email = strings.ToLower(strings.TrimSpace(attempt.Email))
	if attempt.ID == "" {
		attempt.ID = xid.New("att")
	}
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO login_attempts (id, email, success, device_id, attempted_at)
		VALUES ($1,$2,$3,$4,$5)
	`, attempt.ID, attempt.Email, attempt.Success, nullIfEmpty(attempt.DeviceID), attempt.Timestamp); err != nil {
		return err
	}
	if attempt.Success {
		if _, err := tx.ExecContext(ctx, `
			UPDATE app_users SET last_login = $2 WHERE email = $1
		`, attempt.Email, attempt.Timestamp); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListLoginAttempts(ctx context.Context, limit int) ([]domain.LoginAttempt, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, success, COALESCE(device_id, ''), attempted_at
		FROM login_attempts
		ORDER BY attempted_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := make([]domain.LoginAttempt, 0, limit)
	for rows.Next() {
		var a domain.LoginAttempt
		if err := rows.Scan(&a.ID, &a.Email, &a.Success, &a.DeviceID, &a.Timestamp); err != nil {
			return nil, err
		}
		a.Timestamp = a.Timestamp.UTC()
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attempts, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

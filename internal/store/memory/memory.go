package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"opsledger/backend/internal/domain"
	"opsledger/backend/internal/store"
	"opsledger/backend/internal/xid"
)

const maxLoginAttempts = 1000

type Store struct {
	mu            sync.RWMutex
	snapshots     map[string]domain.Snapshot
	usersByEmail  map[string]domain.UserAccount
	loginAttempts []domain.LoginAttempt
}

// SeedAccounts builds the initial accounts for dev/demo mode and for an empty
// postgres user table.
// Credentials come from SEED_ADMIN_EMAIL/SEED_ADMIN_PASSWORD and
// SEED_USER_EMAIL/SEED_USER_PASSWORD; dev defaults are used with a warning
// when the passwords are unset.
func SeedAccounts() map[string]domain.UserAccount {
	adminEmail := strings.ToLower(envOr("SEED_ADMIN_EMAIL", "admin@opsledger.local"))
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffEmail := strings.ToLower(envOr("SEED_USER_EMAIL", "staff@opsledger.local"))
	staffPwd := envOr("SEED_USER_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_USER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_USER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		email    string
		password string
		role     string
	}{
		{adminEmail, adminPwd, domain.RoleAdmin},
		{staffEmail, staffPwd, domain.RoleUser},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		users[u.email] = domain.UserAccount{
			ID:        xid.New("usr"),
			Email:     u.email,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// New returns an empty store with no accounts.
func New() *Store {
	return &Store{
		snapshots:     make(map[string]domain.Snapshot),
		usersByEmail:  make(map[string]domain.UserAccount),
		loginAttempts: make([]domain.LoginAttempt, 0, 64),
	}
}

func NewSeeded() *Store {
	s := New()
	s.usersByEmail = SeedAccounts()
	return s
}

func (s *Store) LoadSnapshot(_ context.Context, ledgerID string) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[ledgerID]
	if !ok {
		return domain.Snapshot{}, store.ErrNotFound
	}
	return snapshot.Clone(), nil
}

func (s *Store) SaveSnapshot(_ context.Context, ledgerID string, snapshot domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[ledgerID] = snapshot.Clone()
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidUser
	}
	if _, exists := s.usersByEmail[email]; exists {
		return store.ErrDuplicate
	}
	user.Email = email
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByEmail[email] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByEmail))
	for _, user := range s.usersByEmail {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Email, b.Email)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, email string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidUser
	}
	user, exists := s.usersByEmail[email]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByEmail[email] = user
	return nil
}

func (s *Store) RecordLogin(_ context.Context, attempt domain.LoginAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt.Email = strings.ToLower(strings.TrimSpace(attempt.Email))
	if attempt.ID == "" {
		attempt.ID = xid.New("att")
	}
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = time.Now().UTC()
	}
	s.loginAttempts = append(s.loginAttempts, attempt)
	if len(s.loginAttempts) > maxLoginAttempts {
		s.loginAttempts = slices.Clone(s.loginAttempts[len(s.loginAttempts)-maxLoginAttempts:])
	}

	if attempt.Success {
		if user, ok := s.usersByEmail[attempt.Email]; ok {
			at := attempt.Timestamp
			user.LastLogin = &at
			s.usersByEmail[attempt.Email] = user
		}
	}
	return nil
}

// ListLoginAttempts returns the newest attempts first.
func (s *Store) ListLoginAttempts(_ context.Context, limit int) ([]domain.LoginAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.loginAttempts) {
		limit = len(s.loginAttempts)
	}
	out := make([]domain.LoginAttempt, 0, limit)
	for i := len(s.loginAttempts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.loginAttempts[i])
	}
	return out, nil
}

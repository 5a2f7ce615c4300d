package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"opsledger/backend/internal/domain"
	"opsledger/backend/internal/store"
	"opsledger/backend/internal/xid"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errAccountInactive    = errors.New("account is inactive")
	errInvalidToken       = errors.New("invalid or expired token")
)

type AuthManager struct {
	mu        sync.RWMutex
	secret    []byte
	tokenTTL  time.Duration
	userStore store.UserStore
	users     map[string]credential
	revoked   map[string]time.Time
	now       func() time.Time
}

type credential struct {
	id        string
	password  string
	role      string
	active    bool
	created   time.Time
	lastLogin *time.Time
}

type ledgerClaims struct {
	jwtlib.RegisteredClaims
	UserID string `json:"uid"`
	Role   string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, userStore store.UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	manager := &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
		users:     make(map[string]credential),
		revoked:   make(map[string]time.Time),
		now:       time.Now,
	}
	manager.bootstrapUsers(context.Background())
	return manager
}

// Login checks the credentials and records the attempt either way.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	a.bootstrapUsers(ctx)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	a.mu.RLock()
	cred, ok := a.users[email]
	a.mu.RUnlock()

	var failure error
	switch {
	case !ok || !verifyPassword(cred.password, req.Password):
		failure = errInvalidCredentials
	case !cred.active:
		failure = errAccountInactive
	}
	a.recordAttempt(ctx, email, req.DeviceID, failure == nil)
	if failure != nil {
		return domain.LoginResponse{}, failure
	}

	now := a.now().UTC()
	expiresAt := now.Add(a.tokenTTL)
	token, err := a.sign(cred.id, email, cred.role, now, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	a.mu.Lock()
	if c, ok := a.users[email]; ok {
		c.lastLogin = &now
		a.users[email] = c
	}
	a.mu.Unlock()

	return domain.LoginResponse{
		AccessToken: token,
		Identity:    domain.Identity{ID: cred.id, Email: email, Role: cred.role},
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) recordAttempt(ctx context.Context, email string, deviceID string, success bool) {
	if a.userStore == nil {
		return
	}
	err := a.userStore.RecordLogin(ctx, domain.LoginAttempt{
		ID:        xid.New("att"),
		Email:     email,
		Timestamp: a.now().UTC(),
		Success:   success,
		DeviceID:  strings.TrimSpace(deviceID),
	})
	if err != nil {
		log.Printf("[auth] WARN: failed to record login attempt email=%s: %v", email, err)
	}
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Identity, error) {
	claims, err := a.parse(tokenStr)
	if err != nil {
		return domain.Identity{}, err
	}
	a.mu.RLock()
	_, revoked := a.revoked[claims.ID]
	a.mu.RUnlock()
	if revoked {
		return domain.Identity{}, errInvalidToken
	}
	return domain.Identity{ID: claims.UserID, Email: claims.Subject, Role: claims.Role}, nil
}

// Revoke blocks a token until it would have expired anyway.
func (a *AuthManager) Revoke(tokenStr string) error {
	claims, err := a.parse(tokenStr)
	if err != nil {
		return err
	}
	expiresAt := a.now().UTC().Add(a.tokenTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	now := a.now().UTC()
	a.mu.Lock()
	defer a.mu.Unlock()
	for jti, until := range a.revoked {
		if until.Before(now) {
			delete(a.revoked, jti)
		}
	}
	a.revoked[claims.ID] = expiresAt
	return nil
}

func (a *AuthManager) parse(tokenStr string) (*ledgerClaims, error) {
	claims := &ledgerClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, errors.New("invalid token subject")
	}
	return claims, nil
}

func (a *AuthManager) sign(userID, email, role string, issuedAt, expiresAt time.Time) (string, error) {
	claims := ledgerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        xid.New(""),
			Subject:   email,
			IssuedAt:  jwtlib.NewNumericDate(issuedAt),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "opsledger",
		},
		UserID: userID,
		Role:   role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// CreateUser registers a staff account. Staff always get the user role.
func (a *AuthManager) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserView, error) {
	a.bootstrapUsers(ctx)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return domain.UserView{}, fmt.Errorf("%w: email address is not valid", store.ErrInvalidUser)
	}
	if len(req.Password) < 6 {
		return domain.UserView{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidUser)
	}

	a.mu.RLock()
	_, exists := a.users[email]
	a.mu.RUnlock()
	if exists {
		return domain.UserView{}, fmt.Errorf("%w: %s", store.ErrDuplicate, email)
	}

	now := a.now().UTC()
	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserView{}, fmt.Errorf("failed to hash password")
	}
	id := xid.New("usr")

	if a.userStore != nil {
		err := a.userStore.CreateUser(ctx, domain.UserAccount{
			ID:        id,
			Email:     email,
			Password:  passwordHash,
			Role:      domain.RoleUser,
			Active:    true,
			CreatedAt: now,
		})
		if err != nil {
			return domain.UserView{}, err
		}
	}

	a.mu.Lock()
	a.users[email] = credential{
		id:       id,
		password: passwordHash,
		role:     domain.RoleUser,
		active:   true,
		created:  now,
	}
	a.mu.Unlock()

	return domain.UserView{
		ID:        id,
		Email:     email,
		Role:      domain.RoleUser,
		Active:    true,
		CreatedAt: now,
	}, nil
}

func (a *AuthManager) ListUsers(ctx context.Context) []domain.UserView {
	a.bootstrapUsers(ctx)
	a.mu.RLock()
	result := make([]domain.UserView, 0, len(a.users))
	for email, user := range a.users {
		view := domain.UserView{
			ID:        user.id,
			Email:     email,
			Role:      user.role,
			Active:    user.active,
			CreatedAt: user.created,
		}
		if user.lastLogin != nil {
			at := *user.lastLogin
			view.LastLogin = &at
		}
		result = append(result, view)
	}
	a.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Email < result[j].Email
	})
	return result
}

func (a *AuthManager) LoginAttempts(ctx context.Context, limit int) ([]domain.LoginAttempt, error) {
	if a.userStore == nil {
		return []domain.LoginAttempt{}, nil
	}
	return a.userStore.ListLoginAttempts(ctx, limit)
}

// bootstrapUsers loads accounts from the user store into the credential
// cache and upgrades legacy plain-text passwords to bcrypt hashes.
func (a *AuthManager) bootstrapUsers(ctx context.Context) {
	if a.userStore == nil {
		return
	}

	users, err := a.userStore.ListUsers(ctx)
	if err != nil || len(users) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, user := range users {
		email := strings.ToLower(strings.TrimSpace(user.Email))
		if email == "" {
			continue
		}
		password := user.Password
		if !isPasswordHash(password) {
			hashed, err := hashPassword(password)
			if err == nil {
				password = hashed
				_ = a.userStore.UpdateUserPassword(ctx, email, hashed)
			}
		}
		cred := credential{
			id:        user.ID,
			password:  password,
			role:      user.Role,
			active:    user.Active,
			created:   user.CreatedAt,
			lastLogin: user.LastLogin,
		}
		if existing, ok := a.users[email]; ok && cred.lastLogin == nil {
			cred.lastLogin = existing.lastLogin
		}
		a.users[email] = cred
	}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}

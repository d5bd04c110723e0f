// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mleclerc/courbe/internal/config"
	"github.com/mleclerc/courbe/internal/database"
	"github.com/mleclerc/courbe/internal/logging"
	"github.com/mleclerc/courbe/internal/models"
	"github.com/mleclerc/courbe/internal/ratelimit"
)

// Rate-limit actions. Login is keyed twice, by IP and by IP+email, so a
// single address can neither hammer one account nor spray many.
const (
	actionLogin    = "login"
	actionRegister = "register"
)

// ClientInfo carries per-request client attribution. It is stored on
// sessions and keys the credential rate limiter.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// Manager is the identity and session store. It owns registration,
// login, token authentication, password changes and the admin account
// operations, and coordinates the database, the rate limiter and the
// feature map.
type Manager struct {
	db       *database.DB
	limiter  *ratelimit.Limiter
	features *Features
	seclog   *logging.SecurityLogger

	params   Argon2Params
	tokenTTL time.Duration

	// dummyHash is a hash of a random throwaway password. Login burns a
	// verify against it when the account does not exist, so unknown and
	// known emails cost the same wall time.
	dummyHash string

	now func() time.Time
}

// NewManager builds the identity store. Zero argon2 parameters fall
// back to the production defaults; a zero token expiry falls back to
// 168 hours.
func NewManager(db *database.DB, limiter *ratelimit.Limiter, features *Features, cfg *config.AuthConfig) (*Manager, error) {
	params := Argon2Params{
		Memory:  cfg.Argon2Memory,
		Time:    cfg.Argon2Time,
		Threads: cfg.Argon2Threads,
	}
	def := DefaultArgon2Params()
	if params.Memory == 0 {
		params.Memory = def.Memory
	}
	if params.Time == 0 {
		params.Time = def.Time
	}
	if params.Threads == 0 {
		params.Threads = def.Threads
	}

	expiryHours := cfg.TokenExpiryHours
	if expiryHours <= 0 {
		expiryHours = 168
	}

	throwaway := make([]byte, 16)
	if _, err := rand.Read(throwaway); err != nil {
		return nil, Error.Wrap(err)
	}
	dummyHash, err := HashPassword(hex.EncodeToString(throwaway), params)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:        db,
		limiter:   limiter,
		features:  features,
		seclog:    logging.NewSecurityLogger(),
		params:    params,
		tokenTTL:  time.Duration(expiryHours) * time.Hour,
		dummyHash: dummyHash,
		now:       time.Now,
	}, nil
}

// Features returns the role→feature map.
func (m *Manager) Features() *Features {
	return m.features
}

// TokenTTL returns the configured session lifetime.
func (m *Manager) TokenTTL() time.Duration {
	return m.tokenTTL
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account, enforcing the password policy and email
// uniqueness, and returns the user with a fresh session. The first
// account ever created becomes the admin.
func (m *Manager) Register(ctx context.Context, email, password, name string, client ClientInfo) (*models.User, *models.Session, error) {
	email = normalizeEmail(email)

	ipKey := ratelimit.Key(actionRegister, client.IP)
	if locked, retry := m.limiter.Check(ipKey); locked {
		return nil, nil, &RateLimitedError{RetryAfter: retry}
	}

	if err := CheckPasswordPolicy(password); err != nil {
		return nil, nil, err
	}

	if _, err := m.db.GetUserByEmail(ctx, email); err == nil {
		m.limiter.Record(ipKey)
		m.seclog.LogEvent(&logging.SecurityEvent{
			Event: "register", Email: email, IPAddress: client.IP,
			Success: false, Error: "email taken",
		})
		return nil, nil, ErrEmailTaken
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, nil, Error.Wrap(err)
	}

	count, err := m.db.CountUsers(ctx)
	if err != nil {
		return nil, nil, Error.Wrap(err)
	}
	role := models.RoleUser
	if count == 0 {
		role = models.RoleAdmin
	}

	hash, err := HashPassword(password, m.params)
	if err != nil {
		return nil, nil, err
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(name),
		Role:         role,
		IsActive:     true,
		CreatedAt:    m.now().UTC().Truncate(time.Second),
		Settings:     map[string]string{},
	}
	if err := m.db.CreateUser(ctx, user); err != nil {
		// Two registrations may race past the lookup; the unique index
		// decides, and the loser reads back the winner.
		if _, lookupErr := m.db.GetUserByEmail(ctx, email); lookupErr == nil {
			m.limiter.Record(ipKey)
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, Error.Wrap(err)
	}

	session, err := m.mintSession(ctx, user, client)
	if err != nil {
		return nil, nil, err
	}

	m.limiter.Reset(ipKey)
	m.seclog.LogEvent(&logging.SecurityEvent{
		Event: "register", UserID: user.ID, Email: email,
		IPAddress: client.IP, UserAgent: client.UserAgent, Success: true,
	})
	return user, session, nil
}

// Login verifies credentials and mints a session. Every failure mode
// after the lockout check returns ErrInvalidCredentials: unknown email,
// wrong password and unreadable hash are indistinguishable, and the
// unknown-email path burns a dummy verify to keep its timing in the
// same envelope. A legacy password hash is rewritten as argon2id after
// it verifies.
func (m *Manager) Login(ctx context.Context, email, password string, client ClientInfo) (*models.User, *models.Session, error) {
	email = normalizeEmail(email)

	ipKey := ratelimit.Key(actionLogin, client.IP)
	emailKey := ratelimit.Key(actionLogin, client.IP, email)
	for _, key := range []string{ipKey, emailKey} {
		if locked, retry := m.limiter.Check(key); locked {
			m.seclog.LogEvent(&logging.SecurityEvent{
				Event: "lockout", Email: email, IPAddress: client.IP,
				Success: false, Error: "login locked out",
			})
			return nil, nil, &RateLimitedError{RetryAfter: retry}
		}
	}

	user, err := m.db.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			_, _, _ = VerifyPassword(password, m.dummyHash)
			return nil, nil, m.failLogin(email, client, "unknown email", ipKey, emailKey)
		}
		return nil, nil, Error.Wrap(err)
	}

	ok, legacy, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		logging.Warn().Str("user_id", user.ID).Err(err).Msg("unreadable password hash")
		return nil, nil, m.failLogin(email, client, "unreadable hash", ipKey, emailKey)
	}
	if !ok {
		if legacy {
			// A legacy sha256 check is orders of magnitude cheaper than
			// argon2id; burn the dummy verify so the mismatch stays in
			// the same timing envelope as every other failure.
			_, _, _ = VerifyPassword(password, m.dummyHash)
		}
		return nil, nil, m.failLogin(email, client, "wrong password", ipKey, emailKey)
	}

	if !user.IsActive {
		m.seclog.LogEvent(&logging.SecurityEvent{
			Event: "login", UserID: user.ID, Email: email,
			IPAddress: client.IP, Success: false, Error: "account disabled",
		})
		return nil, nil, ErrAccountDisabled
	}

	if legacy {
		if rehash, rehashErr := HashPassword(password, m.params); rehashErr == nil {
			if updErr := m.db.UpdateUserPassword(ctx, user.ID, rehash); updErr == nil {
				user.PasswordHash = rehash
			} else {
				logging.Warn().Str("user_id", user.ID).Err(updErr).Msg("legacy hash upgrade failed")
			}
		}
	}

	m.limiter.Reset(ipKey)
	m.limiter.Reset(emailKey)

	session, err := m.mintSession(ctx, user, client)
	if err != nil {
		return nil, nil, err
	}

	m.seclog.LogEvent(&logging.SecurityEvent{
		Event: "login", UserID: user.ID, Email: email,
		IPAddress: client.IP, UserAgent: client.UserAgent, Success: true,
	})
	return user, session, nil
}

// failLogin records the failed attempt against every key and returns
// the opaque credential error.
func (m *Manager) failLogin(email string, client ClientInfo, reason string, keys ...string) error {
	for _, key := range keys {
		m.limiter.Record(key)
	}
	m.seclog.LogEvent(&logging.SecurityEvent{
		Event: "login", Email: email, IPAddress: client.IP,
		Success: false, Error: reason,
	})
	return ErrInvalidCredentials
}

// Logout deletes the session. Unknown tokens are not an error.
func (m *Manager) Logout(ctx context.Context, token string) error {
	if err := m.db.DeleteSession(ctx, token); err != nil {
		return Error.Wrap(err)
	}
	return nil
}

// Authenticate resolves a bearer token to its user and session. Expired
// sessions are deleted by the lookup that observes them; a missing,
// expired or foreign-shaped token and a deactivated account all report
// ErrAuthRequired.
func (m *Manager) Authenticate(ctx context.Context, token string) (*models.User, *models.Session, error) {
	if len(token) != TokenLen {
		return nil, nil, ErrAuthRequired
	}

	session, err := m.db.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, ErrAuthRequired
		}
		return nil, nil, Error.Wrap(err)
	}

	// The row came back by key equality; re-verify in constant time
	// before trusting it.
	if subtle.ConstantTimeCompare([]byte(token), []byte(session.Token)) != 1 {
		return nil, nil, ErrAuthRequired
	}

	if session.Expired(m.now()) {
		if err := m.db.DeleteSession(ctx, session.Token); err != nil {
			logging.Warn().Err(err).Msg("expired session delete failed")
		}
		return nil, nil, ErrAuthRequired
	}

	user, err := m.db.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, ErrAuthRequired
		}
		return nil, nil, Error.Wrap(err)
	}
	if !user.IsActive {
		return nil, nil, ErrAuthRequired
	}

	return user, session, nil
}

// ChangePassword verifies the current password, stores the new hash and
// replaces every session of the account with one fresh session, which
// it returns. Other devices are signed out.
func (m *Manager) ChangePassword(ctx context.Context, user *models.User, current, newPassword string, client ClientInfo) (*models.Session, error) {
	ok, _, err := VerifyPassword(current, user.PasswordHash)
	if err != nil || !ok {
		m.seclog.LogEvent(&logging.SecurityEvent{
			Event: "password_change", UserID: user.ID, IPAddress: client.IP,
			Success: false, Error: "current password rejected",
		})
		return nil, ErrWrongPassword
	}

	if err := CheckPasswordPolicy(newPassword); err != nil {
		return nil, err
	}

	hash, err := HashPassword(newPassword, m.params)
	if err != nil {
		return nil, err
	}
	if err := m.db.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return nil, Error.Wrap(err)
	}
	user.PasswordHash = hash

	// Mint the replacement first so the account never has zero live
	// sessions, then drop the rest.
	session, err := m.mintSession(ctx, user, client)
	if err != nil {
		return nil, err
	}
	if _, err := m.db.DeleteUserSessionsExcept(ctx, user.ID, session.Token); err != nil {
		return nil, Error.Wrap(err)
	}

	m.seclog.LogEvent(&logging.SecurityEvent{
		Event: "password_change", UserID: user.ID, IPAddress: client.IP,
		Success: true,
	})
	return session, nil
}

// UpdateProfile applies name and settings changes for the calling user.
// A nil name leaves it unchanged; settings merge key by key into the
// existing map rather than replacing it.
func (m *Manager) UpdateProfile(ctx context.Context, user *models.User, name *string, settings map[string]string) (*models.User, error) {
	if name != nil {
		user.Name = strings.TrimSpace(*name)
	}
	if len(settings) > 0 {
		if user.Settings == nil {
			user.Settings = make(map[string]string, len(settings))
		}
		for k, v := range settings {
			user.Settings[k] = v
		}
	}
	if err := m.db.UpdateUserProfile(ctx, user.ID, user.Name, user.Settings); err != nil {
		return nil, Error.Wrap(err)
	}
	return user, nil
}

// mintSession creates a session row for user and marks the login time.
func (m *Manager) mintSession(ctx context.Context, user *models.User, client ClientInfo) (*models.Session, error) {
	token, err := NewToken()
	if err != nil {
		return nil, err
	}

	ua := client.UserAgent
	if len(ua) > models.MaxUserAgentLen {
		ua = ua[:models.MaxUserAgentLen]
	}

	now := m.now().UTC().Truncate(time.Second)
	session := &models.Session{
		Token:     token,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.tokenTTL),
		IPAddress: client.IP,
		UserAgent: ua,
	}
	if err := m.db.CreateSession(ctx, session); err != nil {
		return nil, Error.Wrap(err)
	}

	if err := m.db.UpdateUserLastLogin(ctx, user.ID, now); err != nil {
		return nil, Error.Wrap(err)
	}
	user.LastLogin = &now

	return session, nil
}

// UserStats summarizes accounts for the admin listing.
type UserStats struct {
	ByRole map[string]int `json:"by_role"`
	Active int            `json:"active"`
}

// ListUsers returns every account in creation order plus role and
// activity counts. Admin only; the caller enforces that.
func (m *Manager) ListUsers(ctx context.Context) ([]models.User, UserStats, error) {
	users, err := m.db.ListUsers(ctx)
	if err != nil {
		return nil, UserStats{}, Error.Wrap(err)
	}

	stats := UserStats{ByRole: make(map[string]int)}
	for i := range users {
		stats.ByRole[users[i].Role]++
		if users[i].IsActive {
			stats.Active++
		}
	}
	return users, stats, nil
}

// GetUser returns one account and its live session count.
func (m *Manager) GetUser(ctx context.Context, id string) (*models.User, int, error) {
	user, err := m.db.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, 0, ErrUserNotFound
		}
		return nil, 0, Error.Wrap(err)
	}

	sessions, err := m.db.CountUserSessions(ctx, id)
	if err != nil {
		return nil, 0, Error.Wrap(err)
	}
	return user, sessions, nil
}

// AdminUserUpdate carries the admin-mutable account fields. Nil
// pointers leave a field unchanged.
type AdminUserUpdate struct {
	Name     *string
	Role     *string
	IsActive *bool
}

// UpdateUser applies an admin account update. Demoting or deactivating
// the last active admin is refused; deactivation deletes the account's
// sessions.
func (m *Manager) UpdateUser(ctx context.Context, id string, upd AdminUserUpdate) (*models.User, error) {
	user, err := m.db.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, Error.Wrap(err)
	}

	if upd.Role != nil && *upd.Role != user.Role {
		if *upd.Role != models.RoleUser && *upd.Role != models.RoleAdmin {
			return nil, ErrInvalidRole
		}
		if user.Role == models.RoleAdmin && user.IsActive {
			if err := m.requireAnotherAdmin(ctx); err != nil {
				return nil, err
			}
		}
		if err := m.db.UpdateUserRole(ctx, id, *upd.Role); err != nil {
			return nil, Error.Wrap(err)
		}
		user.Role = *upd.Role
	}

	if upd.IsActive != nil && *upd.IsActive != user.IsActive {
		if !*upd.IsActive && user.Role == models.RoleAdmin {
			if err := m.requireAnotherAdmin(ctx); err != nil {
				return nil, err
			}
		}
		if err := m.db.UpdateUserActive(ctx, id, *upd.IsActive); err != nil {
			return nil, Error.Wrap(err)
		}
		user.IsActive = *upd.IsActive

		if !user.IsActive {
			if _, err := m.db.DeleteUserSessions(ctx, id); err != nil {
				return nil, Error.Wrap(err)
			}
		}
	}

	if upd.Name != nil {
		user.Name = strings.TrimSpace(*upd.Name)
		if err := m.db.UpdateUserProfile(ctx, id, user.Name, user.Settings); err != nil {
			return nil, Error.Wrap(err)
		}
	}

	m.seclog.LogEvent(&logging.SecurityEvent{
		Event: "admin_user_update", UserID: id, Success: true,
	})
	return user, nil
}

// DeleteUser removes an account. Self-deletion and deleting the last
// active admin are refused. Sessions, file rows and the quota override
// go with the account via foreign-key cascade; the file store's orphan
// reconciliation collects the bytes on disk.
func (m *Manager) DeleteUser(ctx context.Context, actorID, id string) error {
	if id == actorID {
		return ErrSelfDelete
	}

	user, err := m.db.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrUserNotFound
		}
		return Error.Wrap(err)
	}

	if user.Role == models.RoleAdmin && user.IsActive {
		if err := m.requireAnotherAdmin(ctx); err != nil {
			return err
		}
	}

	if err := m.db.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrUserNotFound
		}
		return Error.Wrap(err)
	}

	m.seclog.LogEvent(&logging.SecurityEvent{
		Event: "admin_user_delete", UserID: id, Success: true,
	})
	return nil
}

// requireAnotherAdmin fails with ErrLastAdmin when at most one active
// admin exists.
func (m *Manager) requireAnotherAdmin(ctx context.Context) error {
	count, err := m.db.CountActiveAdmins(ctx)
	if err != nil {
		return Error.Wrap(err)
	}
	if count <= 1 {
		return ErrLastAdmin
	}
	return nil
}

// CleanupExpiredSessions removes every expired session row and returns
// the count. Exposed to admins and run by the background sweep.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	n, err := m.db.DeleteExpiredSessions(ctx, m.now())
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return n, nil
}

// Package auth implements the auth & session store (C3): password
// hashing and policy, lockout tracking, JWT access/refresh tokens with
// revocation, session lifecycle, and the fixed role -> permission
// table.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// AuditSink receives login-failure and lockout events. Implemented by
// the audit package; kept as a narrow interface here so auth never
// imports audit directly.
type AuditSink interface {
	LoginFailure(ctx context.Context, username string, lockedOut bool, lockedUntil time.Time)
}

// UserLookup resolves a username to its stored credential record.
// Implemented by whatever backs the user directory (out of scope for
// this package, which only consumes it).
type UserLookup interface {
	FindByUsername(ctx context.Context, username string) (userID string, roles []Role, passwordHash string, found bool)
}

// Service wires the C3 operations together.
type Service struct {
	logger   zerolog.Logger
	users    UserLookup
	audit    AuditSink
	lockout  *LockoutTracker
	tokens   *TokenManager
	sessions *SessionStore
	policy   PasswordPolicy
}

// Config configures a Service.
type Config struct {
	SecretKey       string
	PasswordMinLen  int
	MaxLoginAttempts int
	LockoutMinutes  int
	IdleTimeout     time.Duration
	Blacklist       Blacklist
}

func NewService(logger zerolog.Logger, users UserLookup, audit AuditSink, cfg Config) *Service {
	return &Service{
		logger: logger.With().Str("component", "auth").Logger(),
		users:  users,
		audit:  audit,
		lockout: NewLockoutTracker(LockoutPolicy{
			MaxAttempts:     cfg.MaxLoginAttempts,
			LockoutDuration: time.Duration(cfg.LockoutMinutes) * time.Minute,
		}),
		tokens:   NewTokenManager(cfg.SecretKey, cfg.Blacklist),
		sessions: NewSessionStore(cfg.IdleTimeout),
		policy:   PasswordPolicy{MinLength: cfg.PasswordMinLen},
	}
}

// LoginResult is returned by a successful Login call.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	Session      *Session
}

// ErrLockedOut is returned when the account is currently locked.
type ErrLockedOut struct {
	Until time.Time
}

func (e *ErrLockedOut) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

// Login verifies credentials, enforces lockout, and on success issues
// tokens plus a new session.
func (s *Service) Login(ctx context.Context, username, password, ip, userAgent string) (*LoginResult, error) {
	if locked, until := s.lockout.Locked(username); locked {
		return nil, &ErrLockedOut{Until: until}
	}

	userID, roles, hash, found := s.users.FindByUsername(ctx, username)
	if !found || !VerifyPassword(password, hash) {
		lockedOut, until := s.lockout.RecordFailure(username)
		if s.audit != nil {
			s.audit.LoginFailure(ctx, username, lockedOut, until)
		}
		if lockedOut {
			return nil, &ErrLockedOut{Until: until}
		}
		return nil, fmt.Errorf("invalid credentials")
	}

	s.lockout.ClearFailures(username)
	sess := s.sessions.CreateSession(userID, roles, ip, userAgent)

	access, _, err := s.tokens.CreateAccessToken(userID, roles, sess.ID)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.tokens.CreateRefreshToken(userID, roles, sess.ID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{AccessToken: access, RefreshToken: refresh, Session: sess}, nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.DecodeToken(ctx, refreshToken)
	if err != nil {
		return "", fmt.Errorf("invalid refresh token: %w", err)
	}
	if claims.Type != TokenRefresh {
		return "", fmt.Errorf("not a refresh token")
	}
	if _, ok := s.sessions.ValidateSession(claims.SessionID); !ok {
		return "", fmt.Errorf("session expired")
	}
	access, _, err := s.tokens.CreateAccessToken(claims.UserID, claims.Roles, claims.SessionID)
	return access, err
}

// Logout revokes the presented access token and terminates its session.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.tokens.DecodeToken(ctx, accessToken)
	if err != nil {
		return err
	}
	s.tokens.RevokeToken(ctx, claims)
	s.sessions.TerminateSession(claims.SessionID)
	return nil
}

// Authenticate validates a bearer token and the session it carries,
// extending the session's activity window.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Claims, *Session, error) {
	claims, err := s.tokens.DecodeToken(ctx, accessToken)
	if err != nil {
		return nil, nil, err
	}
	if claims.Type != TokenAccess {
		return nil, nil, fmt.Errorf("not an access token")
	}
	sess, ok := s.sessions.ValidateSession(claims.SessionID)
	if !ok {
		return nil, nil, fmt.Errorf("session expired")
	}
	return claims, sess, nil
}

// TerminateAllSessions logs a user out of every session, e.g. when a
// new login should supersede prior ones.
func (s *Service) TerminateAllSessions(userID string) {
	s.sessions.TerminateAllSessions(userID)
}

// ValidatePassword exposes the configured password policy.
func (s *Service) ValidatePassword(password string) error {
	return ValidatePassword(password, s.policy)
}

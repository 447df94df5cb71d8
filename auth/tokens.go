package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

const (
	accessTokenTTL  = 24 * time.Hour
	refreshTokenTTL = 7 * 24 * time.Hour
)

// Claims is the signed envelope carried by every token.
type Claims struct {
	UserID      string       `json:"user_id"`
	Roles       []Role       `json:"roles"`
	Permissions []Permission `json:"permissions"`
	SessionID   string       `json:"session_id"`
	TokenID     string       `json:"token_id"`
	Type        TokenType    `json:"type"`
	jwt.RegisteredClaims
}

// Blacklist tracks revoked token ids until their natural expiry.
type Blacklist interface {
	Add(ctx context.Context, tokenID string, ttl time.Duration)
	Contains(ctx context.Context, tokenID string) bool
}

// memoryBlacklist is the default in-process blacklist. Entries are
// lazily swept on access; a background sweep isn't needed at gateway
// scale since Contains() already skips expired entries.
type memoryBlacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryBlacklist() Blacklist {
	return &memoryBlacklist{entries: make(map[string]time.Time)}
}

func (b *memoryBlacklist) Add(_ context.Context, tokenID string, ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[tokenID] = time.Now().Add(ttl)
}

func (b *memoryBlacklist) Contains(_ context.Context, tokenID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	exp, ok := b.entries[tokenID]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(b.entries, tokenID)
		return false
	}
	return true
}

// TokenManager issues and validates HS256 tokens.
type TokenManager struct {
	secret    []byte
	blacklist Blacklist
}

func NewTokenManager(secret string, blacklist Blacklist) *TokenManager {
	if blacklist == nil {
		blacklist = NewMemoryBlacklist()
	}
	return &TokenManager{secret: []byte(secret), blacklist: blacklist}
}

// CreateAccessToken issues a 24h access token.
func (m *TokenManager) CreateAccessToken(userID string, roles []Role, sessionID string) (string, string, error) {
	return m.create(userID, roles, sessionID, TokenAccess, accessTokenTTL)
}

// CreateRefreshToken issues a 7 day refresh token.
func (m *TokenManager) CreateRefreshToken(userID string, roles []Role, sessionID string) (string, string, error) {
	return m.create(userID, roles, sessionID, TokenRefresh, refreshTokenTTL)
}

func (m *TokenManager) create(userID string, roles []Role, sessionID string, typ TokenType, ttl time.Duration) (string, string, error) {
	tokenID := uuid.NewString()
	now := time.Now()
	claims := Claims{
		UserID:      userID,
		Roles:       roles,
		Permissions: GetUserPermissions(roles),
		SessionID:   sessionID,
		TokenID:     tokenID,
		Type:        typ,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(m.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	return signed, tokenID, nil
}

// DecodeToken validates signature, expiry, and blacklist membership,
// returning the embedded claims.
func (m *TokenManager) DecodeToken(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if m.blacklist.Contains(ctx, claims.TokenID) {
		return nil, fmt.Errorf("token revoked")
	}
	return claims, nil
}

// RevokeToken blacklists a token's unique id for the remainder of its
// natural lifetime.
func (m *TokenManager) RevokeToken(ctx context.Context, claims *Claims) {
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return
	}
	m.blacklist.Add(ctx, claims.TokenID, remaining)
}

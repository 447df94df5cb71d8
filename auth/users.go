package auth

import (
	"context"
	"strings"
)

// StaticUser is one entry in a StaticUserLookup's seed table.
type StaticUser struct {
	UserID       string
	Roles        []Role
	PasswordHash string
}

// StaticUserLookup implements UserLookup over an in-memory table seeded
// at startup (from environment or config), rather than a user directory
// service. The gateway issues sessions; it does not own identity.
type StaticUserLookup struct {
	byUsername map[string]StaticUser
}

// NewStaticUserLookup builds a lookup table keyed by username.
func NewStaticUserLookup(users map[string]StaticUser) *StaticUserLookup {
	return &StaticUserLookup{byUsername: users}
}

func (s *StaticUserLookup) FindByUsername(ctx context.Context, username string) (userID string, roles []Role, passwordHash string, found bool) {
	u, ok := s.byUsername[strings.ToLower(username)]
	if !ok {
		return "", nil, "", false
	}
	return u.UserID, u.Roles, u.PasswordHash, true
}

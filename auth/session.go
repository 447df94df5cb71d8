package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session tracks an authenticated user's activity window. Lifetime:
// created at login, extended on each authenticated request, destroyed
// on logout, inactivity, or an explicit terminate-all.
type Session struct {
	ID           string
	UserID       string
	Roles        []Role
	Permissions  []Permission
	CreatedAt    time.Time
	LastActivity time.Time
	IP           string
	UserAgent    string
}

// SessionStore is the in-process session table. Sessions are kept
// in-memory only — they are short-lived, per-process credentials, not
// durable records, so no backing store is wired for them.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	byUser    map[string]map[string]struct{}
	idleTTL   time.Duration
}

func NewSessionStore(idleTTL time.Duration) *SessionStore {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]struct{}),
		idleTTL:  idleTTL,
	}
}

// CreateSession starts a new session for a user.
func (s *SessionStore) CreateSession(userID string, roles []Role, ip, userAgent string) *Session {
	now := time.Now()
	sess := &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Roles:        roles,
		Permissions:  GetUserPermissions(roles),
		CreatedAt:    now,
		LastActivity: now,
		IP:           ip,
		UserAgent:    userAgent,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	if s.byUser[userID] == nil {
		s.byUser[userID] = make(map[string]struct{})
	}
	s.byUser[userID][sess.ID] = struct{}{}
	return sess
}

// ValidateSession returns the session if it exists and hasn't gone
// idle past the TTL, extending its last-activity timestamp on success.
func (s *SessionStore) ValidateSession(sessionID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	if time.Since(sess.LastActivity) > s.idleTTL {
		s.removeLocked(sess)
		return nil, false
	}
	sess.LastActivity = time.Now()
	return sess, true
}

// TerminateSession destroys a single session (e.g. on logout).
func (s *SessionStore) TerminateSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		s.removeLocked(sess)
	}
}

// TerminateAllSessions destroys every session belonging to userID,
// e.g. when a superseding login revokes prior sessions.
func (s *SessionStore) TerminateAllSessions(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.byUser[userID] {
		delete(s.sessions, id)
	}
	delete(s.byUser, userID)
}

func (s *SessionStore) removeLocked(sess *Session) {
	delete(s.sessions, sess.ID)
	if set, ok := s.byUser[sess.UserID]; ok {
		delete(set, sess.ID)
		if len(set) == 0 {
			delete(s.byUser, sess.UserID)
		}
	}
}

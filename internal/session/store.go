// Package session keeps per-conversation state for both the chat and the
// telephone channel: identity level, the bounded transcript and idle expiry.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"hospital-assistant/internal/auth"
	"hospital-assistant/pkg"
)

const (
	// DefaultIdleTimeout is how long a session survives without activity.
	DefaultIdleTimeout = 30 * time.Minute
	// MaxTranscript is the number of turns retained per session.
	MaxTranscript = 40
)

// ErrNotFound is returned for unknown, ended or expired sessions.
var ErrNotFound = errors.New("session not found")

// Turn is one transcript entry.
type Turn struct {
	Role pkg.Role
	Text string
	At   time.Time
}

// Identity links a session to a registered patient.
type Identity struct {
	PatientID   int64
	Name        string
	PatientCode string
	Phone       string
}

// Session is a snapshot of one conversation. Values handed out by the Store
// are copies; mutate through the Store.
type Session struct {
	ID         string
	Level      pkg.IdentityLevel
	Verified   bool
	Identity   *Identity
	Transcript []Turn
	CreatedAt  time.Time
	LastActive time.Time
}

// Recent returns at most the last n transcript turns.
func (s Session) Recent(n int) []Turn {
	if n <= 0 || len(s.Transcript) <= n {
		return s.Transcript
	}
	return s.Transcript[len(s.Transcript)-n:]
}

// Store is the process-wide session table.
type Store struct {
	sessions map[string]*Session
	timeout  time.Duration
	now      func() time.Time
	newID    func() string
	mu       sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// NewStore creates an empty store. A non-positive timeout selects
// DefaultIdleTimeout.
func NewStore(timeout time.Duration, opts ...Option) *Store {
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	s := &Store{
		sessions: make(map[string]*Session),
		timeout:  timeout,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveOrCreate returns the live session for id, refreshing its activity
// time, or allocates a fresh guest session when id is empty, unknown or
// expired.
func (s *Store) ResolveOrCreate(id string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if sess := s.liveLocked(id, now); sess != nil {
		sess.LastActive = now
		return sess.clone()
	}

	sess := &Session{
		ID:         s.newID(),
		Level:      pkg.LevelGuest,
		CreatedAt:  now,
		LastActive: now,
	}
	s.sessions[sess.ID] = sess
	return sess.clone()
}

// Get returns the live session for id without refreshing it.
func (s *Store) Get(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.liveLocked(id, s.now())
	if sess == nil {
		return Session{}, ErrNotFound
	}
	return sess.clone(), nil
}

// AppendTurn adds a transcript entry, dropping the oldest entries beyond
// MaxTranscript.
func (s *Store) AppendTurn(id string, role pkg.Role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := s.liveLocked(id, now)
	if sess == nil {
		return ErrNotFound
	}
	sess.Transcript = append(sess.Transcript, Turn{Role: role, Text: text, At: now})
	if over := len(sess.Transcript) - MaxTranscript; over > 0 {
		kept := make([]Turn, MaxTranscript)
		copy(kept, sess.Transcript[over:])
		sess.Transcript = kept
	}
	sess.LastActive = now
	return nil
}

// Escalate links the session to the verified patient. The level, the
// verification flag and the identity reference change together under the
// same lock.
func (s *Store) Escalate(id string, v auth.Verification) (Session, error) {
	p := v.Patient()
	if p.ID == 0 {
		return Session{}, auth.ErrNotVerified
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := s.liveLocked(id, now)
	if sess == nil {
		return Session{}, ErrNotFound
	}
	sess.Identity = &Identity{
		PatientID:   p.ID,
		Name:        p.Name,
		PatientCode: p.PatientCode,
		Phone:       v.Phone(),
	}
	sess.Level = pkg.LevelRegistered
	sess.Verified = true
	sess.LastActive = now
	return sess.clone(), nil
}

// End destroys a session explicitly.
func (s *Store) End(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// ExpireSweep removes every idle session and reports how many were dropped.
func (s *Store) ExpireSweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastActive) > s.timeout {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked sessions, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// liveLocked returns the session for id, deleting it when it has expired.
func (s *Store) liveLocked(id string, now time.Time) *Session {
	if id == "" {
		return nil
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if now.Sub(sess.LastActive) > s.timeout {
		delete(s.sessions, id)
		return nil
	}
	return sess
}

func (sess *Session) clone() Session {
	out := *sess
	out.Transcript = append([]Turn(nil), sess.Transcript...)
	if sess.Identity != nil {
		ident := *sess.Identity
		out.Identity = &ident
	}
	return out
}

package telegraph

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Session defaults.
const (
	DefaultSessionTTL        = 30 * time.Minute
	DefaultSessionMaxEntries = 10000
)

// Session is one user's in-flight dialogue. It lives only in process memory.
type Session struct {
	UserID       string
	State        State
	CourseID     uint
	AssignmentID uint
	Meta         map[string]string
	UpdatedAt    time.Time
}

// clone returns a copy that does not share Meta with s.
func (s Session) clone() Session {
	if s.Meta != nil {
		meta := make(map[string]string, len(s.Meta))
		for k, v := range s.Meta {
			meta[k] = v
		}
		s.Meta = meta
	}
	return s
}

// empty reports whether s carries nothing worth keeping.
func (s Session) empty() bool {
	return s.State == StateIdle && s.CourseID == 0 && s.AssignmentID == 0 &&
		len(s.Meta) == 0
}

// SessionStore holds dialogue sessions keyed by user ID. Entries expire after
// an idle TTL and the store never holds more than MaxEntries sessions; when
// full, the least recently updated session is evicted.
type SessionStore struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu       sync.RWMutex
	sessions map[string]Session
}

// SessionStoreOpts holds parameters for creating a SessionStore.
type SessionStoreOpts struct {
	TTL        time.Duration    // defaults to DefaultSessionTTL
	MaxEntries int              // defaults to DefaultSessionMaxEntries
	Now        func() time.Time // defaults to time.Now
}

// NewSessionStore creates a SessionStore.
func NewSessionStore(opts SessionStoreOpts) *SessionStore {
	if opts.TTL <= 0 {
		opts.TTL = DefaultSessionTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultSessionMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SessionStore{
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
		now:        opts.Now,
		sessions:   make(map[string]Session),
	}
}

// Get returns the user's session, or a fresh Idle session when none exists
// or it has expired.
func (s *SessionStore) Get(userID string) Session {
	s.mu.RLock()
	sess, ok := s.sessions[userID]
	s.mu.RUnlock()
	if !ok || s.expired(sess) {
		return Session{UserID: userID, State: StateIdle}
	}
	return sess.clone()
}

// Put stores sess. An Idle session without context is removed instead.
func (s *SessionStore) Put(sess Session) {
	if sess.UserID == "" {
		return
	}
	if sess.empty() {
		s.Reset(sess.UserID)
		return
	}
	sess = sess.clone()
	sess.UpdatedAt = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.UserID]; !exists && len(s.sessions) >= s.maxEntries {
		s.sweepLocked()
		if len(s.sessions) >= s.maxEntries {
			s.evictOldestLocked()
		}
	}
	s.sessions[sess.UserID] = sess
}

// Reset drops the user's session, returning them to Idle.
func (s *SessionStore) Reset(userID string) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}

// Len returns the number of stored sessions, expired ones included.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes expired sessions and returns how many were removed.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

// Run sweeps expired sessions every interval until ctx is cancelled.
func (s *SessionStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// String summarises the store for logs.
func (s *SessionStore) String() string {
	return fmt.Sprintf("sessions(%d/%d, ttl=%v)", s.Len(), s.maxEntries, s.ttl)
}

func (s *SessionStore) expired(sess Session) bool {
	return s.now().Sub(sess.UpdatedAt) > s.ttl
}

func (s *SessionStore) sweepLocked() int {
	n := 0
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

func (s *SessionStore) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, sess := range s.sessions {
		if oldestID == "" || sess.UpdatedAt.Before(oldest) {
			oldestID, oldest = id, sess.UpdatedAt
		}
	}
	if oldestID != "" {
		delete(s.sessions, oldestID)
	}
}

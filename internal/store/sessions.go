package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tasaciones/server/internal/metrics"
)

type session struct {
	store    *Store
	lastUsed time.Time
}

// Manager owns one Store per user identity or anonymous session
type Manager struct {
	docs            DocumentStore
	sheets          SheetFetcher
	logger          *logrus.Logger
	writerQueueSize int
	maxAnonymous    int
	now             func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(docs DocumentStore, sheets SheetFetcher, writerQueueSize int, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		docs:            docs,
		sheets:          sheets,
		logger:          logger,
		writerQueueSize: writerQueueSize,
		now:             time.Now,
		sessions:        make(map[string]*session),
	}
}

func sessionKey(userID, anonymousID string) string {
	if userID != "" {
		return "user:" + userID
	}
	return "anon:" + anonymousID
}

// LimitAnonymous caps the number of anonymous sessions held at once. When
// the cap is reached the least recently used one is closed. Zero means no
// limit.
func (m *Manager) LimitAnonymous(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxAnonymous = n
}

// Lookup returns an already open session without creating one
func (m *Manager) Lookup(userID, anonymousID string) (*Store, bool) {
	key := sessionKey(userID, anonymousID)

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[key]
	if !ok || sess.store.Closed() {
		return nil, false
	}
	sess.lastUsed = m.now()
	return sess.store, true
}

// Get returns the store for userID, or for the anonymous session when
// userID is empty, creating and starting it on first use.
func (m *Manager) Get(ctx context.Context, userID, anonymousID string) (*Store, error) {
	if s, ok := m.Lookup(userID, anonymousID); ok {
		return s, nil
	}
	key := sessionKey(userID, anonymousID)

	opts := Options{
		UserID:          userID,
		Sheets:          m.sheets,
		Logger:          m.logger,
		WriterQueueSize: m.writerQueueSize,
	}
	if userID != "" {
		opts.Docs = m.docs
	}

	// Start reads the user's documents, so it runs outside the lock
	s := New(opts)
	if err := s.Start(ctx); err != nil {
		s.Close()
		return nil, err
	}

	m.mu.Lock()
	if sess, ok := m.sessions[key]; ok && !sess.store.Closed() {
		// Another request opened the same session first
		sess.lastUsed = m.now()
		m.mu.Unlock()
		s.Close()
		return sess.store, nil
	}
	var evicted *session
	if userID == "" {
		evicted = m.evictAnonymousLocked()
	}
	m.sessions[key] = &session{store: s, lastUsed: m.now()}
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	if evicted != nil {
		evicted.store.Close()
	}
	m.logger.WithField("session", key).Debug("Opened valuation session")
	return s, nil
}

// evictAnonymousLocked removes the least recently used anonymous session
// when the cap is reached. The caller closes the returned session after
// releasing the lock.
func (m *Manager) evictAnonymousLocked() *session {
	if m.maxAnonymous <= 0 {
		return nil
	}

	count := 0
	var oldestKey string
	var oldest *session
	for key, sess := range m.sessions {
		if !strings.HasPrefix(key, "anon:") {
			continue
		}
		count++
		if oldest == nil || sess.lastUsed.Before(oldest.lastUsed) {
			oldestKey, oldest = key, sess
		}
	}
	if count < m.maxAnonymous || oldest == nil {
		return nil
	}

	delete(m.sessions, oldestKey)
	m.logger.WithField("session", oldestKey).Info("Anonymous session limit reached, closing oldest session")
	return oldest
}

// Remove tears down one session on logout: subscriptions are dropped and
// pending writes drained. It reports whether a session was open.
func (m *Manager) Remove(userID, anonymousID string) bool {
	if userID == "" && anonymousID == "" {
		return false
	}
	key := sessionKey(userID, anonymousID)

	m.mu.Lock()
	sess, ok := m.sessions[key]
	delete(m.sessions, key)
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	if ok {
		sess.store.Close()
		m.logger.WithField("session", key).Debug("Closed valuation session")
	}
	return ok
}

// Sweep closes sessions idle for longer than maxIdle and returns how many
// were closed
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	var idle []*session
	for key, sess := range m.sessions {
		if sess.lastUsed.Before(cutoff) {
			idle = append(idle, sess)
			delete(m.sessions, key)
		}
	}
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	for _, sess := range idle {
		sess.store.Close()
	}
	if len(idle) > 0 {
		m.logger.WithField("closed", len(idle)).Info("Closed idle valuation sessions")
	}
	return len(idle)
}

// Len returns the number of open sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll tears down every session
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*session)
	metrics.ActiveSessions.Set(0)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.store.Close()
	}
}

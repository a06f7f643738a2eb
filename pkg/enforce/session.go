package enforce

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/compliance"
)

// Session groups the enforcement runs of one job and collects their results.
// It is safe for concurrent use.
type Session struct {
	id        string
	name      string
	startedAt time.Time

	mu       sync.RWMutex
	enforced bool
	results  []compliance.ComplianceResult
}

// NewSession starts a session with a fresh ID.
func NewSession(name string) *Session {
	return &Session{
		id:        uuid.New().String(),
		name:      name,
		startedAt: time.Now(),
	}
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Name returns the session name.
func (s *Session) Name() string { return s.name }

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Enforced reports whether Enforce has run in this session.
func (s *Session) Enforced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enforced
}

// MarkEnforced records that enforcement ran.
func (s *Session) MarkEnforced() {
	s.mu.Lock()
	s.enforced = true
	s.mu.Unlock()
}

// Results returns a copy of every result recorded so far.
func (s *Session) Results() []compliance.ComplianceResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]compliance.ComplianceResult(nil), s.results...)
}

func (s *Session) record(results []compliance.ComplianceResult) {
	s.mu.Lock()
	s.results = append(s.results, results...)
	s.mu.Unlock()
}

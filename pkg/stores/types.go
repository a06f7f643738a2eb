package stores

import (
	"context"
	"time"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/compliance"
)

// Session is a persisted enforcement session.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Strict    bool      `json:"strict"`
	Enforced  bool      `json:"enforced"`
	Metadata  string    `json:"metadata"` // JSON blob
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StoredResult is a compliance result as recorded for a session.
type StoredResult struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Policy    string `json:"policy"`
	Position  int    `json:"position"`
	compliance.ComplianceResult
	CreatedAt time.Time `json:"created_at"`
}

// AuditEntry represents an audit trail entry
type AuditEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`              // e.g. "session.enforced", "gate.denied"
	Actor     string    `json:"actor"`               // user or system identifier
	TargetID  *string   `json:"target_id,omitempty"` // session ID
	Details   *string   `json:"details,omitempty"`   // JSON blob
	Timestamp time.Time `json:"timestamp"`
}

// Store defines the interface for the evidence store.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error

	// Session operations
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	MarkSessionEnforced(ctx context.Context, id string) error
	ListSessions(ctx context.Context, limit, offset int) ([]*Session, error)

	// Result operations
	SaveResults(ctx context.Context, sessionID, policy string, results []compliance.ComplianceResult) error
	ListResults(ctx context.Context, sessionID string) ([]*StoredResult, error)
	LatestResults(ctx context.Context, limit int) ([]*StoredResult, error)

	// Audit operations
	RecordAudit(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, action *string, limit, offset int) ([]*AuditEntry, error)

	// Utility
	HealthCheck(ctx context.Context) error
}

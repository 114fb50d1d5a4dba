package storage

import "time"

// Config configures the SQLite registry.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Subscriber is one row of the subscriber table.
type Subscriber struct {
	ID           int64
	Username     string
	SubscribedAt time.Time
}

// AuditEntry records a denied or suspicious action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At       time.Time
	ActorID  int64
	Username string
	Action   string
	Detail   string
}

// AuditSink accepts audit entries. Implemented by the Registry; the access
// guard depends only on this.
type AuditSink interface {
	AppendAudit(e AuditEntry) error
}

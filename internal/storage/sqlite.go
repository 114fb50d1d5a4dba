package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"adventbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Registry is the durable subscriber table plus the audit log, backed by a
// single SQLite file. Safe for use from multiple goroutines.
type Registry struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Registry, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	r := &Registry{db: db, log: log}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Registry) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, string(b))
	return err
}

func (r *Registry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Upsert registers a subscriber. Re-subscription updates the username only;
// the original subscribed_at is preserved.
func (r *Registry) Upsert(ctx context.Context, id int64, username string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscribers(user_id, username, subscribed_at) VALUES(?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET username=excluded.username`,
		id, nullStr(username), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// ListIDs returns all subscriber ids, the bulk read used by the broadcaster.
func (r *Registry) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM subscribers ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// List returns all subscribers with metadata, ordered by subscription time.
func (r *Registry) List(ctx context.Context) ([]Subscriber, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, username, subscribed_at FROM subscribers ORDER BY subscribed_at, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Subscriber
	for rows.Next() {
		var (
			s    Subscriber
			name sql.NullString
			at   string
		)
		if err := rows.Scan(&s.ID, &name, &at); err != nil {
			return nil, err
		}
		s.Username = name.String
		s.SubscribedAt = parseTimestamp(at)
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// AppendAudit writes one audit row. Implements AuditSink.
func (r *Registry) AppendAudit(e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO audit(at, actor_id, username, action, detail) VALUES(?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.ActorID, nullStr(e.Username), e.Action, nullStr(e.Detail),
	)
	return err
}

// parseTimestamp accepts both our RFC3339 writes and sqlite's
// CURRENT_TIMESTAMP format for rows inserted by hand.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

// Package analytics is the append-only visitor and interaction log
// behind the chatbot. Writes are best effort: the chat pipeline never
// waits on them and never fails because of them.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Interaction is one logged chat exchange.
type Interaction struct {
	ID         string
	VisitorID  string
	SessionID  string
	Message    string
	Response   string
	Persona    string
	TopicTags  []string
	DurationMs int64
	CreatedAt  time.Time
}

// Visitor is one logged first-time visitor.
type Visitor struct {
	VisitorID string
	IPAddress string
	UserAgent string
	Referrer  string
	Country   string
	City      string
	FirstSeen time.Time
}

// Stats summarizes the log for the stats endpoint.
type Stats struct {
	Interactions int64 `json:"interactions"`
	Visitors     int64 `json:"visitors"`
}

const schema = `
CREATE TABLE IF NOT EXISTS chat_interactions (
	id TEXT PRIMARY KEY,
	visitor_id TEXT,
	session_id TEXT,
	message TEXT NOT NULL,
	response TEXT NOT NULL,
	persona TEXT,
	topic_tags TEXT,
	duration_ms INTEGER,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interactions_visitor ON chat_interactions(visitor_id);

CREATE TABLE IF NOT EXISTS visitors (
	visitor_id TEXT PRIMARY KEY,
	ip_address TEXT,
	user_agent TEXT,
	referrer TEXT,
	country TEXT,
	city TEXT,
	first_seen TIMESTAMP NOT NULL
);
`

// Store wraps the SQLite log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the log database at path. ":memory:" works
// for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("analytics: open %s: %w", path, err)
	}
	// modernc sqlite serializes writes per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("analytics: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// LogInteraction appends one chat exchange.
func (s *Store) LogInteraction(ctx context.Context, rec Interaction) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_interactions
			(id, visitor_id, session_id, message, response, persona, topic_tags, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.VisitorID, rec.SessionID, rec.Message, rec.Response,
		rec.Persona, strings.Join(rec.TopicTags, ","), rec.DurationMs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("analytics: log interaction: %w", err)
	}
	return nil
}

// LogVisitor records a visitor the first time they are seen; later
// calls for the same id are no-ops.
func (s *Store) LogVisitor(ctx context.Context, v Visitor) error {
	if v.FirstSeen.IsZero() {
		v.FirstSeen = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO visitors (visitor_id, ip_address, user_agent, referrer, country, city, first_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(visitor_id) DO NOTHING`,
		v.VisitorID, v.IPAddress, v.UserAgent, v.Referrer, v.Country, v.City, v.FirstSeen,
	)
	if err != nil {
		return fmt.Errorf("analytics: log visitor: %w", err)
	}
	return nil
}

// Stats returns aggregate counters.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_interactions`).Scan(&stats.Interactions); err != nil {
		return Stats{}, fmt.Errorf("analytics: stats: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM visitors`).Scan(&stats.Visitors); err != nil {
		return Stats{}, fmt.Errorf("analytics: stats: %w", err)
	}
	return stats, nil
}

// RecentInteractions returns the newest interactions, newest first.
func (s *Store) RecentInteractions(ctx context.Context, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, visitor_id, session_id, message, response, persona, topic_tags, duration_ms, created_at
		FROM chat_interactions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("analytics: recent: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var rec Interaction
		var tags string
		if err := rows.Scan(&rec.ID, &rec.VisitorID, &rec.SessionID, &rec.Message, &rec.Response,
			&rec.Persona, &tags, &rec.DurationMs, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("analytics: recent: %w", err)
		}
		if tags != "" {
			rec.TopicTags = strings.Split(tags, ",")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DB exposes the underlying handle so other stores can share the
// single-connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

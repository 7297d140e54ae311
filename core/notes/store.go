// Package notes is the visitor-scoped notes CRUD store backing the
// /api/notes routes. Notes belong to the visitor that created them;
// lookups from another visitor behave as if the note did not exist.
package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrNotFound is returned for missing notes and for notes owned by a
// different visitor.
var ErrNotFound = errors.New("note not found")

// Note is one stored note.
type Note struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	VisitorID string    `json:"visitorId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Update carries the mutable fields of a note. Nil fields keep the
// stored value.
type Update struct {
	Title   *string
	Content *string
}

const schema = `
CREATE TABLE IF NOT EXISTS notes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	content TEXT,
	visitor_id TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_visitor ON notes(visitor_id);
`

// Visitor ids are either uuid-shaped or the widget's visitor_ prefix
// format. Anything else is rejected before touching the store.
var visitorIDPattern = regexp.MustCompile(`(?i)^([a-f0-9-]{8,}|visitor_[a-z0-9_]+)$`)

// ValidVisitorID reports whether id is an acceptable note owner.
func ValidVisitorID(id string) bool {
	return visitorIDPattern.MatchString(id)
}

// Store wraps the notes table. It shares the database handle with the
// analytics store.
type Store struct {
	db *sql.DB
}

// NewStore creates the schema on the shared handle.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("notes: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// List returns the visitor's notes, newest first.
func (s *Store) List(ctx context.Context, visitorID string) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, visitor_id, created_at, updated_at
		FROM notes WHERE visitor_id = ? ORDER BY created_at DESC, id DESC`, visitorID)
	if err != nil {
		return nil, fmt.Errorf("notes: list: %w", err)
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		var n Note
		var content sql.NullString
		if err := rows.Scan(&n.ID, &n.Title, &content, &n.VisitorID, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("notes: list: %w", err)
		}
		n.Content = content.String
		out = append(out, n)
	}
	return out, rows.Err()
}

// Get returns one note. The visitor must own it.
func (s *Store) Get(ctx context.Context, id int64, visitorID string) (*Note, error) {
	var n Note
	var content sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, visitor_id, created_at, updated_at
		FROM notes WHERE id = ?`, id).
		Scan(&n.ID, &n.Title, &content, &n.VisitorID, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("notes: get %d: %w", id, err)
	}
	if n.VisitorID != visitorID {
		return nil, ErrNotFound
	}
	n.Content = content.String
	return &n, nil
}

// Create stores a new note and returns it.
func (s *Store) Create(ctx context.Context, visitorID, title, content string) (*Note, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (title, content, visitor_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		title, content, visitorID, now, now)
	if err != nil {
		return nil, fmt.Errorf("notes: create: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("notes: create: %w", err)
	}
	return s.Get(ctx, id, visitorID)
}

// Apply updates a note the visitor owns and returns the new state.
func (s *Store) Apply(ctx context.Context, id int64, visitorID string, update Update) (*Note, error) {
	existing, err := s.Get(ctx, id, visitorID)
	if err != nil {
		return nil, err
	}

	title := existing.Title
	if update.Title != nil {
		title = *update.Title
	}
	content := existing.Content
	if update.Content != nil {
		content = *update.Content
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE notes SET title = ?, content = ?, updated_at = ? WHERE id = ?`,
		title, content, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("notes: update %d: %w", id, err)
	}
	return s.Get(ctx, id, visitorID)
}

// Delete removes a note the visitor owns.
func (s *Store) Delete(ctx context.Context, id int64, visitorID string) error {
	if _, err := s.Get(ctx, id, visitorID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("notes: delete %d: %w", id, err)
	}
	return nil
}

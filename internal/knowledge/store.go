// Package knowledge is the engine's persistent knowledge base: durable
// entries in SQLite with a Bleve full-text index over their content, so
// goal outcomes and distilled experience survive restarts and can be
// retrieved during planning.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// MaxEntries caps the knowledge base size. Pruning keeps the highest
// importance entries.
const MaxEntries = 10000

// Well-known categories.
const (
	CategoryGoalOutcome = "goal_outcome"
	CategoryExperience  = "experience"
)

// Importance levels assigned to recorded outcomes.
const (
	ImportanceCancelled  = 0.25
	ImportanceFailed     = 0.5
	ImportancePartial    = 0.75
	ImportanceSuccess    = 1.0
	ImportanceExperience = 0.7
	ImportanceKeyInsight = 0.9
)

// Entry is one persisted knowledge item.
type Entry struct {
	ID         string            `json:"id"`
	Category   string            `json:"category"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  int64             `json:"timestamp"`
	Importance float64           `json:"importance"`
}

type store struct {
	db *sql.DB
}

// openStore opens the SQLite database and initializes the schema. An
// empty path opens an in-memory database.
func openStore(ctx context.Context, dbPath string) (*store, error) {
	dsn := ":memory:"
	if dbPath != "" {
		// WAL allows a reader while the engine's maintenance tick writes.
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge database: %w", err)
	}

	// SQLite doesn't support multiple writers well.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping knowledge database: %w", err)
	}

	s := &store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize knowledge schema: %w", err)
	}
	return s, nil
}

func (s *store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id         TEXT PRIMARY KEY,
		category   TEXT NOT NULL,
		content    TEXT NOT NULL,
		metadata   TEXT,
		timestamp  INTEGER NOT NULL,
		importance REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_category ON entries(category);
	CREATE INDEX IF NOT EXISTS idx_entries_importance ON entries(importance);
	CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *store) insert(ctx context.Context, e Entry) error {
	var meta any
	if len(e.Metadata) > 0 {
		data, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		meta = string(data)
	}

	query := `INSERT INTO entries (id, category, content, metadata, timestamp, importance) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, e.ID, e.Category, e.Content, meta, e.Timestamp, e.Importance); err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

func (s *store) get(ctx context.Context, id string) (Entry, error) {
	query := `SELECT id, category, content, metadata, timestamp, importance FROM entries WHERE id = ?`
	return scanEntry(s.db.QueryRowContext(ctx, query, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var meta sql.NullString
	if err := row.Scan(&e.ID, &e.Category, &e.Content, &meta, &e.Timestamp, &e.Importance); err != nil {
		return Entry{}, err
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
			return Entry{}, fmt.Errorf("failed to decode metadata for %s: %w", e.ID, err)
		}
	}
	return e, nil
}

func (s *store) count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

func (s *store) byCategory(ctx context.Context, category string, limit int) ([]Entry, error) {
	query := `
		SELECT id, category, content, metadata, timestamp, importance
		FROM entries
		WHERE category = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, category, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// pruneOverflow deletes the lowest importance (ties: oldest first)
// entries beyond max, returning the ids it removed so the text index can
// drop them too.
func (s *store) pruneOverflow(ctx context.Context, max int) ([]string, error) {
	n, err := s.count(ctx)
	if err != nil {
		return nil, err
	}
	excess := n - max
	if excess <= 0 {
		return nil, nil
	}

	query := `
		SELECT id FROM entries
		ORDER BY importance ASC, timestamp ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, excess)
	if err != nil {
		return nil, fmt.Errorf("failed to select prune victims: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to delete entry %s: %w", id, err)
		}
	}
	return ids, nil
}

func (s *store) close() error {
	return s.db.Close()
}

func nowUnix() int64 {
	return time.Now().Unix()
}

// Package vectorstore is MemoryBridge's local fallback: a per-world
// episodic memory store backed by modernc.org/sqlite, used whenever the
// remote episodic-memory service is unreachable or marked unhealthy. It
// has no embedding model of its own — "vector" here means "the thing
// MemoryBridge falls back to", scored by keyword overlap the same way
// pkg/skills.Search scores skill candidates.
package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one stored fact, scoped to a world.
type Record struct {
	WorldID string
	Text    string
	Tags    []string
	TS      time.Time
}

// Store is the local fallback vector store.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the sqlite-backed store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open %s: %w", path, err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	world_id TEXT NOT NULL,
	text TEXT NOT NULL,
	tags TEXT NOT NULL,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_world ON records(world_id);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("vectorstore: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Store persists facts under worldID. metadata's "tags" key (a
// []string or comma-joined string) is attached to every stored fact.
func (s *Store) Store(ctx context.Context, worldID string, facts []string, metadata map[string]any) (int, error) {
	tags := tagsFromMetadata(metadata)
	tagStr := strings.Join(tags, ",")
	now := time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("vectorstore: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records(world_id, text, tags, ts) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("vectorstore: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range facts {
		if _, err := stmt.ExecContext(ctx, worldID, f, tagStr, now); err != nil {
			return 0, fmt.Errorf("vectorstore: insert fact: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("vectorstore: commit: %w", err)
	}
	return len(facts), nil
}

func tagsFromMetadata(metadata map[string]any) []string {
	raw, ok := metadata["tags"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case string:
		return strings.Split(v, ",")
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

type scored struct {
	text  string
	score int
	ts    int64
}

// Recall scores every fact stored under worldID by whitespace-tokenized
// query-term overlap (case-insensitive substring match against text and
// tags), the same scoring shape pkg/skills.Search uses, and returns the
// top `limit` by score then recency. World isolation is structural: the
// SQL predicate never crosses world_id.
func (s *Store) Recall(ctx context.Context, worldID, query string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT text, tags, ts FROM records WHERE world_id = ?`, worldID)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: query: %w", err)
	}
	defer rows.Close()

	terms := strings.Fields(strings.ToLower(query))
	var candidates []scored
	for rows.Next() {
		var text, tags string
		var ts int64
		if err := rows.Scan(&text, &tags, &ts); err != nil {
			return nil, fmt.Errorf("vectorstore: scan: %w", err)
		}
		haystack := strings.ToLower(text + " " + tags)
		score := 0
		for _, t := range terms {
			if strings.Contains(haystack, t) {
				score++
			}
		}
		if len(terms) == 0 || score > 0 {
			candidates = append(candidates, scored{text: text, score: score, ts: ts})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].ts > candidates[j].ts
	})

	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}
	out := make([]string, 0, limit)
	for _, c := range candidates[:limit] {
		out = append(out, c.text)
	}
	return out, nil
}

// ClearWorld deletes every record stored under worldID.
func (s *Store) ClearWorld(ctx context.Context, worldID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE world_id = ?`, worldID)
	if err != nil {
		return fmt.Errorf("vectorstore: clear world %s: %w", worldID, err)
	}
	return nil
}

package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry is a Memory Entry: a persistent, BM25-searchable note.
type Entry struct {
	ID         string
	Content    string
	Category   string
	Tags       string
	Channel    string
	UserID     string
	Importance int
	CreatedAt  int64
	UpdatedAt  int64
	ExpiresAt  *int64
}

// SearchResult pairs an Entry with its BM25 score (lower is better, per
// the underlying FTS5 index convention) and an FTS snippet.
type SearchResult struct {
	Entry   Entry
	Score   float64
	Snippet string
}

// nowMillis returns the current wall time in milliseconds since epoch.
func nowMillis() int64 { return time.Now().UnixMilli() }

// SaveMemory upserts e by id: if e.ID is empty a UUIDv4 is generated, and
// each call sets UpdatedAt to the current wall time.
func (s *Store) SaveMemory(e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Category == "" {
		e.Category = "general"
	}
	if e.Importance == 0 {
		e.Importance = 5
	}
	now := nowMillis()
	if e.CreatedAt == 0 {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO memories (id, content, category, tags, channel, user_id, importance, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content=excluded.content, category=excluded.category, tags=excluded.tags,
			channel=excluded.channel, user_id=excluded.user_id, importance=excluded.importance,
			updated_at=excluded.updated_at, expires_at=excluded.expires_at`,
		e.ID, e.Content, e.Category, e.Tags, e.Channel, e.UserID, e.Importance,
		e.CreatedAt, e.UpdatedAt, e.ExpiresAt,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("memory: save_memory: %w", err)
	}
	return e, nil
}

// GetMemory fetches one entry by id, ok=false if absent.
func (s *Store) GetMemory(id string) (Entry, bool, error) {
	row := s.db.QueryRow(`SELECT id, content, category, tags, channel, user_id, importance, created_at, updated_at, expires_at FROM memories WHERE id = ?`, id)
	var e Entry
	if err := row.Scan(&e.ID, &e.Content, &e.Category, &e.Tags, &e.Channel, &e.UserID, &e.Importance, &e.CreatedAt, &e.UpdatedAt, &e.ExpiresAt); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("memory: get_memory: %w", err)
	}
	return e, true, nil
}

// DeleteMemory removes an entry by id. Deleting an absent id is not an error.
func (s *Store) DeleteMemory(id string) error {
	if _, err := s.db.Exec(`DELETE FROM memories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("memory: delete_memory: %w", err)
	}
	return nil
}

// sanitizeFTSQuery strips `"'*()` from each whitespace-separated token and
// OR-joins the survivors in quoted form, defeating FTS5 syntax injection.
// An all-empty result (every token sanitized to nothing) yields "".
func sanitizeFTSQuery(query string) string {
	const stripChars = `"'*()`
	fields := strings.Fields(query)
	var terms []string
	for _, f := range fields {
		clean := strings.Map(func(r rune) rune {
			if strings.ContainsRune(stripChars, r) {
				return -1
			}
			return r
		}, f)
		if clean != "" {
			terms = append(terms, fmt.Sprintf(`"%s"`, clean))
		}
	}
	if len(terms) == 0 {
		return ""
	}
	return strings.Join(terms, " OR ")
}

// SearchMemories BM25-searches content/category/tags with per-column
// weights 1.0, 0.5, 0.3, optionally filtered by exact category. An empty
// sanitized query returns no rows rather than an error.
func (s *Store) SearchMemories(query, category string, limit int) ([]SearchResult, error) {
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	q := `
		SELECT m.id, m.content, m.category, m.tags, m.channel, m.user_id, m.importance,
		       m.created_at, m.updated_at, m.expires_at,
		       bm25(memories_fts, 1.0, 0.5, 0.3) AS score,
		       snippet(memories_fts, 0, '[', ']', '...', 10) AS snippet
		FROM memories_fts
		JOIN memories m ON m.rowid = memories_fts.rowid
		WHERE memories_fts MATCH ?`
	args := []any{sanitized}
	if category != "" {
		q += ` AND m.category = ?`
		args = append(args, category)
	}
	q += ` ORDER BY score LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: search_memory: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Entry.ID, &r.Entry.Content, &r.Entry.Category, &r.Entry.Tags,
			&r.Entry.Channel, &r.Entry.UserID, &r.Entry.Importance, &r.Entry.CreatedAt,
			&r.Entry.UpdatedAt, &r.Entry.ExpiresAt, &r.Score, &r.Snippet); err != nil {
			return nil, fmt.Errorf("memory: search_memory scan: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

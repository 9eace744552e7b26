package memory

import "fmt"

// SetMeta upserts a store-level key/value scratch entry.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("memory: set_meta: %w", err)
	}
	return nil
}

// GetMeta fetches a scratch value, ok=false if absent.
func (s *Store) GetMeta(key string) (string, bool, error) {
	row := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return "", false, nil
		}
		return "", false, fmt.Errorf("memory: get_meta: %w", err)
	}
	return value, true, nil
}

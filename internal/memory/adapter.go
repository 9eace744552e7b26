package memory

// ContextAdapter narrows *Store to the flat (content, category, tags,
// importance) shape the Context Manager's resume cycle uses, since
// Store.SaveMemory already takes the full Entry shape under that name and
// Go forbids two same-named methods on one type.
type ContextAdapter struct {
	*Store
}

// NewContextAdapter wraps s for use as a contextmgr.MemoryStore.
func NewContextAdapter(s *Store) ContextAdapter {
	return ContextAdapter{Store: s}
}

// SaveMemory persists content as a new Memory Entry.
func (a ContextAdapter) SaveMemory(content, category, tags string, importance int) error {
	_, err := a.Store.SaveMemory(Entry{
		Content:    content,
		Category:   category,
		Tags:       tags,
		Importance: importance,
	})
	return err
}

// SearchTopHit returns the highest-ranked memory's content for query, or
// ok=false if nothing matched.
func (a ContextAdapter) SearchTopHit(query string) (string, bool, error) {
	results, err := a.Store.SearchMemories(query, "", 1)
	if err != nil {
		return "", false, err
	}
	if len(results) == 0 {
		return "", false, nil
	}
	return results[0].Entry.Content, true, nil
}

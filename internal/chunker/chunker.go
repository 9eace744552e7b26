// Package chunker implements the Content Chunker: an in-memory store for
// oversized tool output, sliced into fixed-size byte chunks and
// retrievable by id, index, or full-text search.
package chunker

import (
	"fmt"
	"sync"
)

// DefaultChunkSize is used when Store is called with chunkSize <= 0 and
// no configured default is set.
const DefaultChunkSize = 8000

// entry is one stored piece of content.
type entry struct {
	content   string
	source    string
	chunkSize int
}

// totalChunks returns ceil(len(content)/chunkSize).
func (e entry) totalChunks() int {
	return (len(e.content) + e.chunkSize - 1) / e.chunkSize
}

// Store is the Content Chunker: a process-bounded, explicitly-clearable
// id -> content mapping. Stored content is immutable after Store; chunk
// boundaries are plain byte slices, deliberately not re-segmented across
// UTF-8 codepoint boundaries (the rationale is recorded in DESIGN.md).
type Store struct {
	mu            sync.Mutex
	entries       map[string]entry
	nextID        int
	defaultChunkSize int
}

// Config controls the Store's default chunk size.
type Config struct {
	DefaultChunkSize int
}

// New constructs an empty Store.
func New(cfg Config) *Store {
	size := cfg.DefaultChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Store{
		entries:          make(map[string]entry),
		defaultChunkSize: size,
	}
}

// StoreContent stores content under a fresh "chunk_<n>" id and returns it.
// chunkSize <= 0 uses the Store's configured default.
func (s *Store) StoreContent(content, source string, chunkSize int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if chunkSize <= 0 {
		chunkSize = s.defaultChunkSize
	}
	id := fmt.Sprintf("chunk_%d", s.nextID)
	s.nextID++
	s.entries[id] = entry{content: content, source: source, chunkSize: chunkSize}
	return id
}

// Store implements agent.ContentChunker's Store method name; it passes
// its arguments straight to StoreContent, so chunkSize <= 0 likewise
// selects the configured default.
func (s *Store) Store(content, source string, chunkSize int) string {
	return s.StoreContent(content, source, chunkSize)
}

// Has reports whether id is present.
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// Remove deletes id, if present.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Clear removes every stored entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry)
}

// GetTotalChunks returns the total chunk count for id, or 0 if unknown.
func (s *Store) GetTotalChunks(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return 0
	}
	return e.totalChunks()
}

// GetChunk returns a framed chunk: a header noting position and source,
// the raw byte slice [index*chunkSize, (index+1)*chunkSize), and a
// footer pointing at the next chunk index or an end-of-content marker.
// When cleanHTML is true the slice is passed through StripHTML first.
func (s *Store) GetChunk(id string, index int, cleanHTML bool) (string, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("chunker: unknown id %q", id)
	}

	total := e.totalChunks()
	if index < 0 || index >= total {
		return "", fmt.Errorf("chunker: index %d out of range [0,%d) for %q", index, total, id)
	}

	start := index * e.chunkSize
	end := start + e.chunkSize
	if end > len(e.content) {
		end = len(e.content)
	}
	slice := e.content[start:end]
	if cleanHTML {
		slice = StripHTML(slice)
	}

	footer := "[end of content]"
	if index+1 < total {
		footer = fmt.Sprintf("[next: index %d]", index+1)
	}

	return fmt.Sprintf("[chunk %d/%d, source=%s]\n%s\n%s", index+1, total, e.source, slice, footer), nil
}

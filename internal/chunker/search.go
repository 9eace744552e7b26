package chunker

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// maxMatches caps how many matches search_with_chunks/search_all_chunks
// will enumerate in a single call.
const maxMatches = 20

// match is one located occurrence, with the chunk index it falls in.
type match struct {
	chunkIndex int
	start, end int
}

// SearchWithChunks searches the content stored under id and returns
// narrative text enumerating up to 20 matches, grouped by chunk index.
// The search is case-insensitive; if useRegex, query is a regular
// expression and an invalid pattern produces a distinct error.
func (s *Store) SearchWithChunks(id, query string, contextChars int, useRegex bool) (string, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("chunker: unknown id %q", id)
	}

	matches, err := findMatches(e.content, query, useRegex)
	if err != nil {
		return "", err
	}
	if contextChars <= 0 {
		contextChars = 300
	}
	return renderMatches(e, matches, contextChars), nil
}

// SearchAllChunks searches across every stored entry, same semantics as
// SearchWithChunks, narrated per id.
func (s *Store) SearchAllChunks(query string, contextChars int, useRegex bool) (string, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	if contextChars <= 0 {
		contextChars = 300
	}

	var out strings.Builder
	found := false
	for _, id := range ids {
		s.mu.Lock()
		e := s.entries[id]
		s.mu.Unlock()

		matches, err := findMatches(e.content, query, useRegex)
		if err != nil {
			return "", err
		}
		if len(matches) == 0 {
			continue
		}
		found = true
		fmt.Fprintf(&out, "=== %s (source=%s) ===\n", id, e.source)
		out.WriteString(renderMatches(e, matches, contextChars))
		out.WriteString("\n")
	}
	if !found {
		return "no matches found", nil
	}
	return out.String(), nil
}

// findMatches locates up to maxMatches occurrences of query in content,
// case-insensitively, literal or regex per useRegex.
func findMatches(content, query string, useRegex bool) ([]match, error) {
	var re *regexp.Regexp
	var err error
	if useRegex {
		re, err = regexp.Compile("(?i)" + query)
		if err != nil {
			return nil, fmt.Errorf("chunker: invalid search pattern: %w", err)
		}
	} else {
		re, err = regexp.Compile("(?i)" + regexp.QuoteMeta(query))
		if err != nil {
			return nil, fmt.Errorf("chunker: invalid search pattern: %w", err)
		}
	}

	var matches []match
	for _, loc := range re.FindAllStringIndex(content, -1) {
		matches = append(matches, match{start: loc[0], end: loc[1]})
		if len(matches) >= maxMatches {
			break
		}
	}
	return matches, nil
}

// renderMatches produces narrative text for matches, assigning each a
// chunk index and a [pos-contextChars, pos+len+contextChars] preview.
func renderMatches(e entry, matches []match, contextChars int) string {
	if len(matches) == 0 {
		return "no matches found"
	}

	var out strings.Builder
	fmt.Fprintf(&out, "%d match(es):\n", len(matches))

	for i := range matches {
		matches[i].chunkIndex = matches[i].start / e.chunkSize
	}

	for i, m := range matches {
		previewStart := m.start - contextChars
		if previewStart < 0 {
			previewStart = 0
		}
		previewEnd := m.end + contextChars
		if previewEnd > len(e.content) {
			previewEnd = len(e.content)
		}
		preview := e.content[previewStart:previewEnd]
		fmt.Fprintf(&out, "%d. [chunk %d] ...%s...\n", i+1, m.chunkIndex, preview)
	}
	return out.String()
}

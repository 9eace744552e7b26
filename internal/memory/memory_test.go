package memory

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.db")
	s, err := OpenWithDriver(path, "sqlite")
	if err != nil {
		t.Fatalf("OpenWithDriver: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetMemory(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.SaveMemory(Entry{Content: "the sky is blue", Tags: "weather"})
	if err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated id")
	}
	if saved.Category != "general" || saved.Importance != 5 {
		t.Fatalf("unexpected defaults: %+v", saved)
	}

	got, ok, err := s.GetMemory(saved.ID)
	if err != nil || !ok {
		t.Fatalf("GetMemory: ok=%v err=%v", ok, err)
	}
	if got.Content != "the sky is blue" {
		t.Fatalf("content = %q", got.Content)
	}
}

func TestSaveMemoryUpsertsById(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.SaveMemory(Entry{ID: "fixed-id", Content: "first"})
	if err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}
	firstUpdated := saved.UpdatedAt

	time.Sleep(2 * time.Millisecond)
	saved2, err := s.SaveMemory(Entry{ID: "fixed-id", Content: "second"})
	if err != nil {
		t.Fatalf("SaveMemory (update): %v", err)
	}
	if saved2.UpdatedAt < firstUpdated {
		t.Fatalf("expected updated_at to advance")
	}

	got, _, _ := s.GetMemory("fixed-id")
	if got.Content != "second" {
		t.Fatalf("content = %q, want second (upsert)", got.Content)
	}

	all, _ := s.SearchMemories("first OR second", "", 10)
	if len(all) != 1 {
		t.Fatalf("expected exactly one row after upsert, search returned %d", len(all))
	}
}

func TestSearchMemoriesBM25Ranking(t *testing.T) {
	s := newTestStore(t)

	s.SaveMemory(Entry{Content: "the user prefers dark mode in the editor"})
	s.SaveMemory(Entry{Content: "completely unrelated note about groceries"})

	results, err := s.SearchMemories("dark mode", "", 10)
	if err != nil {
		t.Fatalf("SearchMemories: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
}

func TestSearchMemoriesSanitizesQuery(t *testing.T) {
	s := newTestStore(t)
	s.SaveMemory(Entry{Content: "contains special chars"})

	// A query that is entirely FTS-special characters sanitizes to empty
	// and must return no rows, not an error.
	results, err := s.SearchMemories(`"*()`, "", 10)
	if err != nil {
		t.Fatalf("SearchMemories with malicious query: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results for empty-sanitized query, got %d", len(results))
	}
}

func TestSearchMemoriesFiltersByCategory(t *testing.T) {
	s := newTestStore(t)
	s.SaveMemory(Entry{Content: "project deadline is friday", Category: "work"})
	s.SaveMemory(Entry{Content: "project deadline is friday", Category: "personal"})

	results, err := s.SearchMemories("deadline friday", "work", 10)
	if err != nil {
		t.Fatalf("SearchMemories: %v", err)
	}
	if len(results) != 1 || results[0].Entry.Category != "work" {
		t.Fatalf("expected one work-category match, got %+v", results)
	}
}

func TestDeleteMemory(t *testing.T) {
	s := newTestStore(t)
	saved, _ := s.SaveMemory(Entry{Content: "to be deleted"})

	if err := s.DeleteMemory(saved.ID); err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}
	if _, ok, _ := s.GetMemory(saved.ID); ok {
		t.Fatal("expected memory gone after delete")
	}
	// Deleting an absent id is not an error.
	if err := s.DeleteMemory("does-not-exist"); err != nil {
		t.Fatalf("DeleteMemory of absent id: %v", err)
	}
}

func TestSanitizeFTSQuery(t *testing.T) {
	got := sanitizeFTSQuery(`foo"bar *baz( qux)`)
	want := `"foobar" OR "baz" OR "qux"`
	if got != want {
		t.Fatalf("sanitizeFTSQuery = %q, want %q", got, want)
	}
	if sanitizeFTSQuery(`"*()`) != "" {
		t.Fatalf("expected all-special-chars query to sanitize to empty")
	}
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestStore(t)

	past := time.Now().Add(-time.Hour).UnixMilli()
	future := time.Now().Add(time.Hour).UnixMilli()

	due, err := s.SaveTask(Task{Content: "overdue task", DueAt: past})
	if err != nil {
		t.Fatalf("SaveTask: %v", err)
	}
	notYet, err := s.SaveTask(Task{Content: "future task", DueAt: future})
	if err != nil {
		t.Fatalf("SaveTask: %v", err)
	}
	if _, err := s.SaveTask(Task{Content: "no due date"}); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	dueTasks, err := s.DueTasks(time.Now())
	if err != nil {
		t.Fatalf("DueTasks: %v", err)
	}
	if len(dueTasks) != 1 || dueTasks[0].ID != due.ID {
		t.Fatalf("DueTasks = %+v, want only %s", dueTasks, due.ID)
	}

	if err := s.CompleteTask(due.ID); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	dueAfter, _ := s.DueTasks(time.Now())
	if len(dueAfter) != 0 {
		t.Fatalf("expected no due tasks after completing the only one, got %+v", dueAfter)
	}

	all, err := s.ListTasks(false)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListTasks returned %d, want 3", len(all))
	}
	if all[0].ID != due.ID || all[1].ID != notYet.ID {
		t.Fatalf("expected tasks in ascending due_at order (overdue, then future), got %+v", all)
	}

	incomplete, err := s.ListTasks(true)
	if err != nil {
		t.Fatalf("ListTasks(incompleteOnly): %v", err)
	}
	if len(incomplete) != 2 {
		t.Fatalf("ListTasks(true) returned %d, want 2", len(incomplete))
	}
}

func TestMeta(t *testing.T) {
	s := newTestStore(t)

	if _, ok, _ := s.GetMeta("missing"); ok {
		t.Fatal("expected ok=false for missing key")
	}
	if err := s.SetMeta("k", "v1"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	if err := s.SetMeta("k", "v2"); err != nil {
		t.Fatalf("SetMeta (update): %v", err)
	}
	v, ok, _ := s.GetMeta("k")
	if !ok || v != "v2" {
		t.Fatalf("GetMeta = %q, %v, want v2, true", v, ok)
	}
}

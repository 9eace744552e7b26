package memory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task is a reminder or deferred action tracked by the Memory Store.
type Task struct {
	ID          string
	Content     string
	Context     string
	Channel     string
	UserID      string
	CreatedAt   int64
	DueAt       int64 // 0 = none
	Completed   bool
	CompletedAt *int64
}

// IsDue reports whether t is due now: not completed and 0 < DueAt <= now.
func (t Task) IsDue(now time.Time) bool {
	return !t.Completed && t.DueAt > 0 && t.DueAt <= now.UnixMilli()
}

// SaveTask inserts t, generating a UUIDv4 id if t.ID is empty.
func (s *Store) SaveTask(t Task) (Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = nowMillis()
	}
	_, err := s.db.Exec(`
		INSERT INTO tasks (id, content, context, channel, user_id, created_at, due_at, completed, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Content, t.Context, t.Channel, t.UserID, t.CreatedAt, t.DueAt, boolToInt(t.Completed), t.CompletedAt,
	)
	if err != nil {
		return Task{}, fmt.Errorf("memory: save_task: %w", err)
	}
	return t, nil
}

// CompleteTask marks id completed at the current wall time.
func (s *Store) CompleteTask(id string) error {
	now := nowMillis()
	res, err := s.db.Exec(`UPDATE tasks SET completed = 1, completed_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("memory: complete_task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("memory: complete_task: unknown id %q", id)
	}
	return nil
}

// ListTasks returns tasks in the order: those with a due date first
// (ascending due_at), then those without, each tier newest-created-first;
// incompleteOnly restricts to incomplete tasks when true.
func (s *Store) ListTasks(incompleteOnly bool) ([]Task, error) {
	q := `SELECT id, content, context, channel, user_id, created_at, due_at, completed, completed_at FROM tasks`
	if incompleteOnly {
		q += ` WHERE completed = 0`
	}
	q += ` ORDER BY CASE WHEN due_at > 0 THEN due_at ELSE 9223372036854775807 END ASC, created_at DESC`

	rows, err := s.db.Query(q)
	if err != nil {
		return nil, fmt.Errorf("memory: list_tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		var completed int
		if err := rows.Scan(&t.ID, &t.Content, &t.Context, &t.Channel, &t.UserID,
			&t.CreatedAt, &t.DueAt, &completed, &t.CompletedAt); err != nil {
			return nil, fmt.Errorf("memory: list_tasks scan: %w", err)
		}
		t.Completed = completed != 0
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// DueTasks returns incomplete tasks whose due_at has passed now.
func (s *Store) DueTasks(now time.Time) ([]Task, error) {
	rows, err := s.db.Query(`
		SELECT id, content, context, channel, user_id, created_at, due_at, completed, completed_at
		FROM tasks WHERE completed = 0 AND due_at > 0 AND due_at <= ?
		ORDER BY due_at ASC`, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("memory: due_tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		var completed int
		if err := rows.Scan(&t.ID, &t.Content, &t.Context, &t.Channel, &t.UserID,
			&t.CreatedAt, &t.DueAt, &completed, &t.CompletedAt); err != nil {
			return nil, fmt.Errorf("memory: due_tasks scan: %w", err)
		}
		t.Completed = completed != 0
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

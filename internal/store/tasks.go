package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/taskweave/taskweave/internal/task"
)

// TaskExists checks if a task with the given id exists
func (s *Store) TaskExists(id string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM tasks WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddTask inserts a new task. The embedding (if present) is stored as a
// JSON blob and mirrored into the vec index.
func (s *Store) AddTask(t *task.Task) error {
	var embBytes []byte
	if len(t.Embedding) > 0 {
		var err error
		embBytes, err = json.Marshal(t.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
	}

	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	source := t.Source
	if source == "" {
		source = "document"
	}

	result, err := s.db.Exec(`
		INSERT INTO tasks (id, text, document_id, source, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.Text, t.DocumentID, source, embBytes, createdAt)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	if s.vecAvailable && len(t.Embedding) > 0 {
		if rowid, rerr := result.LastInsertId(); rerr == nil {
			s.indexTaskEmbedding(rowid, t.ID, t.Embedding)
		}
	}

	return nil
}

// indexTaskEmbedding mirrors an embedding into the task_vec index.
// Failures are logged upstream, never fatal: the Go-side scan remains
// the fallback search path.
func (s *Store) indexTaskEmbedding(rowid int64, id string, emb []float64) {
	if err := s.ensureVecTable(len(emb)); err != nil {
		return
	}
	emb32 := normalizeFloat32(float64ToFloat32(emb))
	serialized, err := sqlite_vec.SerializeFloat32(emb32)
	if err != nil {
		return
	}
	s.db.Exec(`DELETE FROM task_vec WHERE rowid = ?`, rowid)
	s.db.Exec(`INSERT INTO task_vec(rowid, embedding, task_id) VALUES (?, ?, ?)`, rowid, serialized, id)
}

// GetTask retrieves a single task by id
func (s *Store) GetTask(id string) (*task.Task, error) {
	row := s.db.QueryRow(`
		SELECT id, text, document_id, source, embedding, created_at
		FROM tasks WHERE id = ?
	`, id)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	return t, err
}

// GetTasksByIDs retrieves tasks by id, preserving the requested order.
// Ids with no matching row are returned in missing rather than erroring,
// so callers decide their own failure semantics.
func (s *Store) GetTasksByIDs(ids []string) (tasks []*task.Task, missing []string, err error) {
	for _, id := range ids {
		row := s.db.QueryRow(`
			SELECT id, text, document_id, source, embedding, created_at
			FROM tasks WHERE id = ?
		`, id)
		t, scanErr := scanTask(row)
		if scanErr == sql.ErrNoRows {
			missing = append(missing, id)
			continue
		}
		if scanErr != nil {
			return nil, nil, scanErr
		}
		tasks = append(tasks, t)
	}
	return tasks, missing, nil
}

// DeleteTask removes a task row and its vec index entry. Used by the
// insertion saga as a compensating action; relationship rows referencing
// the task cascade.
func (s *Store) DeleteTask(id string) error {
	var rowid int64
	if err := s.db.QueryRow("SELECT rowid FROM tasks WHERE id = ?", id).Scan(&rowid); err == nil && s.vecDim != 0 {
		s.db.Exec(`DELETE FROM task_vec WHERE rowid = ?`, rowid)
	}

	result, err := s.db.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("task not found: %s", id)
	}
	return nil
}

// CountTasks returns the total number of tasks
func (s *Store) CountTasks() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM tasks").Scan(&count)
	return count, err
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanTask
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var t task.Task
	var docID, source sql.NullString
	var embBytes []byte
	if err := row.Scan(&t.ID, &t.Text, &docID, &source, &embBytes, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.DocumentID = docID.String
	t.Source = source.String
	if len(embBytes) > 0 {
		if err := json.Unmarshal(embBytes, &t.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding for %s: %w", t.ID, err)
		}
	}
	return &t, nil
}

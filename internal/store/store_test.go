package store

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/taskweave/taskweave/internal/task"
)

// setupTestStore creates a temporary test database
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "taskweave-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	s, err := Open(filepath.Join(tmpDir, "tasks.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to open database: %v", err)
	}

	cleanup := func() {
		s.Close()
		os.RemoveAll(tmpDir)
	}

	return s, cleanup
}

func addTestTask(t *testing.T, s *Store, id, text string, emb []float64) {
	t.Helper()
	err := s.AddTask(&task.Task{ID: id, Text: text, DocumentID: "doc-1", Embedding: emb})
	if err != nil {
		t.Fatalf("Failed to add task %s: %v", id, err)
	}
}

func TestAddGetTask(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	addTestTask(t, s, "t1", "Design app mockups", []float64{0.1, 0.2, 0.3, 0.4})

	got, err := s.GetTask("t1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Text != "Design app mockups" {
		t.Errorf("Unexpected text: %q", got.Text)
	}
	if got.Source != "document" {
		t.Errorf("Source should default to document, got %q", got.Source)
	}
	if len(got.Embedding) != 4 || got.Embedding[2] != 0.3 {
		t.Errorf("Embedding did not round-trip: %v", got.Embedding)
	}

	if _, err := s.GetTask("nope"); err == nil {
		t.Error("Expected error for unknown task")
	}

	exists, err := s.TaskExists("t1")
	if err != nil || !exists {
		t.Errorf("TaskExists(t1) = %v, %v", exists, err)
	}
	exists, _ = s.TaskExists("nope")
	if exists {
		t.Error("TaskExists should be false for unknown id")
	}
}

func TestGetTasksByIDs(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	addTestTask(t, s, "t1", "First", nil)
	addTestTask(t, s, "t2", "Second", nil)
	addTestTask(t, s, "t3", "Third", nil)

	tasks, missing, err := s.GetTasksByIDs([]string{"t3", "ghost", "t1"})
	if err != nil {
		t.Fatalf("GetTasksByIDs failed: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != "t3" || tasks[1].ID != "t1" {
		t.Errorf("Expected [t3 t1] in request order, got %v", tasks)
	}
	if len(missing) != 1 || missing[0] != "ghost" {
		t.Errorf("Expected missing [ghost], got %v", missing)
	}
}

func TestDeleteTask(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	addTestTask(t, s, "t1", "First", nil)
	addTestTask(t, s, "t2", "Second", nil)
	if err := s.AddEdge(task.Edge{SourceID: "t1", TargetID: "t2", Type: task.RelPrerequisite}); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}

	if err := s.DeleteTask("t1"); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}

	// The relationship row cascades with its task.
	edges, err := s.GetAllEdges()
	if err != nil {
		t.Fatalf("GetAllEdges failed: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("Expected edges to cascade on task delete, got %v", edges)
	}

	if err := s.DeleteTask("t1"); err == nil {
		t.Error("Deleting a missing task should error")
	}
}

func TestEdges(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	addTestTask(t, s, "t1", "First", nil)
	addTestTask(t, s, "t2", "Second", nil)
	addTestTask(t, s, "t3", "Third", nil)

	e := task.Edge{SourceID: "t1", TargetID: "t2", Type: task.RelPrerequisite}
	if err := s.AddEdge(e); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}
	// Re-adding the same triple is a silent no-op.
	if err := s.AddEdge(e); err != nil {
		t.Fatalf("Duplicate AddEdge should not error: %v", err)
	}
	if err := s.AddEdge(task.Edge{SourceID: "t2", TargetID: "t3", Type: task.RelPrerequisite}); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}

	edges, err := s.GetAllEdges()
	if err != nil {
		t.Fatalf("GetAllEdges failed: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("Expected 2 edges after duplicate skip, got %d", len(edges))
	}
	if edges[0].SourceID != "t1" || edges[1].SourceID != "t2" {
		t.Errorf("Edges should come back in insertion order, got %v", edges)
	}

	exists, err := s.EdgeExists("t1", "t2")
	if err != nil || !exists {
		t.Errorf("EdgeExists(t1, t2) = %v, %v", exists, err)
	}
	exists, _ = s.EdgeExists("t2", "t1")
	if exists {
		t.Error("EdgeExists must be directional")
	}

	among, err := s.GetEdgesAmong([]string{"t1", "t2"})
	if err != nil {
		t.Fatalf("GetEdgesAmong failed: %v", err)
	}
	if len(among) != 1 || among[0].TargetID != "t2" {
		t.Errorf("Expected only t1->t2 among {t1,t2}, got %v", among)
	}

	if err := s.DeleteEdge("t1", "t2"); err != nil {
		t.Fatalf("DeleteEdge failed: %v", err)
	}
	if exists, _ := s.EdgeExists("t1", "t2"); exists {
		t.Error("Edge should be gone after DeleteEdge")
	}
}

func TestFindSimilarTasks(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	// Orthogonal basis vectors plus one near t1.
	addTestTask(t, s, "t1", "Design login page", []float64{1, 0, 0, 0})
	addTestTask(t, s, "t2", "Write press release", []float64{0, 1, 0, 0})
	addTestTask(t, s, "t3", "Deploy to staging", []float64{0, 0, 1, 0})
	addTestTask(t, s, "t4", "Design signup page", []float64{0.9, 0.1, 0, 0})

	results, err := s.FindSimilarTasks([]float64{1, 0, 0, 0}, 2, "t1")
	if err != nil {
		t.Fatalf("FindSimilarTasks failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].ID != "t4" {
		t.Errorf("Nearest neighbor should be t4, got %s", results[0].ID)
	}
	for _, r := range results {
		if r.ID == "t1" {
			t.Error("Excluded id must not appear in results")
		}
	}

	// cosine([1,0,0,0], [0.9,0.1,0,0]) = 0.9/sqrt(0.82) ≈ 0.994
	if math.Abs(results[0].Similarity-0.994) > 0.01 {
		t.Errorf("Unexpected similarity for t4: %.4f", results[0].Similarity)
	}
}

func TestReopenPreservesData(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "taskweave-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)
	dbPath := filepath.Join(tmpDir, "tasks.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	addTestTask(t, s, "t1", "Persisted task", []float64{0.5, 0.5, 0, 0})
	s.Close()

	s2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetTask("t1")
	if err != nil {
		t.Fatalf("GetTask after reopen failed: %v", err)
	}
	if got.Text != "Persisted task" || len(got.Embedding) != 4 {
		t.Errorf("Task did not survive reopen: %+v", got)
	}

	count, err := s2.CountTasks()
	if err != nil || count != 1 {
		t.Errorf("CountTasks = %d, %v", count, err)
	}
}

func TestStatsAndClear(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	addTestTask(t, s, "t1", "First", nil)
	addTestTask(t, s, "t2", "Second", nil)
	s.AddEdge(task.Edge{SourceID: "t1", TargetID: "t2", Type: task.RelPrerequisite})

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats["tasks"] != 2 || stats["relationships"] != 1 {
		t.Errorf("Unexpected stats: %v", stats)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if count, _ := s.CountTasks(); count != 0 {
		t.Errorf("Expected empty store after Clear, got %d tasks", count)
	}
}

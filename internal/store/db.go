// Package store implements the persistent task, relationship and
// embedding store on SQLite, with a sqlite-vec index for nearest
// neighbor search over task embeddings.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto() // registers the vec0 virtual table with go-sqlite3
}

// Store wraps the SQLite database connection for the task graph
type Store struct {
	db           *sql.DB
	path         string
	vecAvailable bool
	vecDim       int // embedding dimension used in task_vec (0 = not yet determined)
}

// Open opens or creates the task graph database at dbPath
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db, path: dbPath}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	// Check if sqlite-vec extension is available
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		log.Printf("[store] sqlite-vec not available: %v, falling back to full scan", err)
	} else {
		log.Printf("[store] sqlite-vec %s loaded", vecVersion)
		s.vecAvailable = true
		// Restore vecDim from existing data after restarts.
		if s.vecDim == 0 {
			if err := s.initVecTableFromTasks(); err != nil {
				log.Printf("[store] vec init warning: %v", err)
			}
		}
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate runs database migrations
func (s *Store) migrate() error {
	schema := `
	-- Schema version tracking
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Tasks extracted from documents or proposed by the bridging generator
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		document_id TEXT,
		source TEXT DEFAULT 'document',
		embedding BLOB,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_document ON tasks(document_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at);

	-- Directed relationships between tasks.
	-- No uniqueness constraint: duplicate avoidance is business logic in AddEdge.
	CREATE TABLE IF NOT EXISTS relationships (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		rel_type TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (source_id) REFERENCES tasks(id) ON DELETE CASCADE,
		FOREIGN KEY (target_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id);
	CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id);
	CREATE INDEX IF NOT EXISTS idx_relationships_type ON relationships(rel_type);

	-- Record schema version
	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return s.runMigrations()
}

// runMigrations applies incremental schema changes
func (s *Store) runMigrations() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		version = 1 // Assume v1 if can't read
	}

	// Migration v2: sqlite-vec ANN index for task embedding search.
	// Creates a vec0 virtual table for fast cosine KNN queries, replacing
	// the O(n) Go-side scan in FindSimilarTasks. Skipped gracefully if the
	// extension is not compiled in or no embeddings exist yet; the table
	// dimension is determined dynamically from stored embeddings.
	if version < 2 {
		if err := s.initVecTableFromTasks(); err != nil {
			log.Printf("[store] migration v2 warning: %v, vec index deferred to first AddTask", err)
		}
		s.db.Exec("INSERT INTO schema_version (version) VALUES (2)")
	}

	return nil
}

// initVecTableFromTasks reads the embedding dimension from existing tasks,
// creates the task_vec virtual table with that dimension (if it doesn't
// already exist), and backfills stored embeddings. No-ops if no tasks with
// embeddings exist yet.
func (s *Store) initVecTableFromTasks() error {
	var embBytes []byte
	err := s.db.QueryRow(`SELECT embedding FROM tasks WHERE embedding IS NOT NULL AND LENGTH(embedding) > 4 LIMIT 1`).Scan(&embBytes)
	if err != nil {
		return nil // no embeddings yet; defer to first AddTask
	}
	var emb64 []float64
	if err := json.Unmarshal(embBytes, &emb64); err != nil || len(emb64) == 0 {
		return nil
	}
	return s.ensureVecTable(len(emb64))
}

// ensureVecTable creates the task_vec virtual table for the given embedding
// dimension (if not yet created) and backfills all existing tasks.
// Idempotent for the same dim.
//
// Schema uses integer rowid (from the tasks table) + auxiliary +task_id
// column, avoiding vec0's TEXT PRIMARY KEY partitioning behaviour which
// breaks KNN queries.
func (s *Store) ensureVecTable(dim int) error {
	if s.vecDim == dim {
		return nil // already set up for this dimension
	}
	if s.vecDim != 0 && s.vecDim != dim {
		return fmt.Errorf("embedding dim %d doesn't match vec table dim %d", dim, s.vecDim)
	}

	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS task_vec USING vec0(
			embedding float[%d],
			+task_id TEXT
		)
	`, dim))
	if err != nil {
		return fmt.Errorf("failed to create task_vec(float[%d]): %w", dim, err)
	}
	s.vecDim = dim

	// Backfill existing tasks, keyed by the tasks table rowid.
	rows, err := s.db.Query(`SELECT rowid, id, embedding FROM tasks WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil // backfill failure is non-fatal
	}
	defer rows.Close()

	tx, err := s.db.Begin()
	if err != nil {
		return nil
	}

	var count int
	for rows.Next() {
		var rowid int64
		var id string
		var emb []byte
		if err := rows.Scan(&rowid, &id, &emb); err != nil {
			continue
		}
		var emb64 []float64
		if err := json.Unmarshal(emb, &emb64); err != nil || len(emb64) != dim {
			continue
		}
		emb32 := normalizeFloat32(float64ToFloat32(emb64)) // normalize for cosine-compatible L2
		serialized, serErr := sqlite_vec.SerializeFloat32(emb32)
		if serErr != nil {
			continue
		}
		// vec0 does not reliably support INSERT OR REPLACE; use DELETE + INSERT.
		tx.Exec(`DELETE FROM task_vec WHERE rowid = ?`, rowid)
		if _, err := tx.Exec(`INSERT INTO task_vec(rowid, embedding, task_id) VALUES (?, ?, ?)`, rowid, serialized, id); err != nil {
			log.Printf("[store] vec backfill failed for %s: %v", id, err)
			continue
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return nil
	}
	if count > 0 {
		log.Printf("[store] vec backfill: indexed %d tasks (dim=%d)", count, dim)
	}
	return nil
}

// float64ToFloat32 converts a float64 slice to float32
func float64ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

// normalizeFloat32 returns a unit-length copy of the vector.
// Normalizing before storing in vec0 makes L2 distance equivalent to
// cosine distance:
//
//	cosine_dist = L2_dist² / 2   (for unit vectors)
//	L2_threshold = sqrt(2 * cosine_dist_threshold)
func normalizeFloat32(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// l2ToCosineSim converts an L2 distance (on normalized vectors) to cosine
// similarity: cosine_sim = 1 - L2²/2
func l2ToCosineSim(l2dist float64) float64 {
	return 1.0 - (l2dist*l2dist)/2.0
}

// Stats returns database statistics
func (s *Store) Stats() (map[string]int, error) {
	stats := make(map[string]int)

	tables := []string{"tasks", "relationships"}
	for _, table := range tables {
		var count int
		err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			return nil, err
		}
		stats[table] = count
	}

	return stats, nil
}

// Clear removes all data (for testing/reset)
func (s *Store) Clear() error {
	tables := []string{"relationships", "tasks"}
	for _, table := range tables {
		if _, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if s.vecDim != 0 {
		s.db.Exec("DELETE FROM task_vec")
	}
	return nil
}

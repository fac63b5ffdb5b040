package store

import (
	"encoding/json"
	"sort"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/taskweave/taskweave/internal/embedding"
	"github.com/taskweave/taskweave/internal/task"
)

// FindSimilarTasks returns the topK tasks nearest to queryEmb by cosine
// similarity, excluding excludeID. Uses the sqlite-vec KNN index when
// available and falls back to a Go-side scan otherwise.
func (s *Store) FindSimilarTasks(queryEmb []float64, topK int, excludeID string) ([]task.SimilarTask, error) {
	if topK <= 0 {
		topK = 5
	}

	if s.vecAvailable && s.vecDim == len(queryEmb) {
		results, err := s.findSimilarVec(queryEmb, topK, excludeID)
		if err == nil {
			return results, nil
		}
		// fall through to scan on vec query failure
	}

	return s.findSimilarScan(queryEmb, topK, excludeID)
}

// findSimilarVec queries the task_vec KNN index. Embeddings are stored
// unit-normalized, so L2 distance converts directly to cosine similarity.
func (s *Store) findSimilarVec(queryEmb []float64, topK int, excludeID string) ([]task.SimilarTask, error) {
	query32 := normalizeFloat32(float64ToFloat32(queryEmb))
	serialized, err := sqlite_vec.SerializeFloat32(query32)
	if err != nil {
		return nil, err
	}

	// Fetch one extra in case excludeID is among the neighbors.
	rows, err := s.db.Query(`
		SELECT v.task_id, v.distance, t.text
		FROM task_vec v
		JOIN tasks t ON t.id = v.task_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serialized, topK+1)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []task.SimilarTask
	for rows.Next() {
		var id, text string
		var dist float64
		if err := rows.Scan(&id, &dist, &text); err != nil {
			continue
		}
		if id == excludeID {
			continue
		}
		results = append(results, task.SimilarTask{
			ID:         id,
			Text:       text,
			Similarity: l2ToCosineSim(dist),
		})
		if len(results) == topK {
			break
		}
	}
	return results, rows.Err()
}

// findSimilarScan is the O(n) fallback: load all embeddings and rank by
// cosine similarity in Go. Fine at the graph sizes this store holds.
func (s *Store) findSimilarScan(queryEmb []float64, topK int, excludeID string) ([]task.SimilarTask, error) {
	rows, err := s.db.Query(`
		SELECT id, text, embedding FROM tasks
		WHERE embedding IS NOT NULL AND id != ?
	`, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []task.SimilarTask
	for rows.Next() {
		var id, text string
		var embBytes []byte
		if err := rows.Scan(&id, &text, &embBytes); err != nil {
			continue
		}
		var emb []float64
		if err := json.Unmarshal(embBytes, &emb); err != nil {
			continue
		}
		sim := embedding.CosineSimilarity(queryEmb, emb)
		candidates = append(candidates, task.SimilarTask{ID: id, Text: text, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

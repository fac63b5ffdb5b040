package store

import (
	"fmt"

	"github.com/taskweave/taskweave/internal/task"
)

// EdgeExists checks for an edge between source and target of any type
func (s *Store) EdgeExists(sourceID, targetID string) (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM relationships WHERE source_id = ? AND target_id = ?
	`, sourceID, targetID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddEdge inserts a directed relationship. Duplicate (source, target,
// type) triples are skipped silently: the schema carries no uniqueness
// constraint, so this is where duplicate avoidance lives.
func (s *Store) AddEdge(e task.Edge) error {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM relationships
		WHERE source_id = ? AND target_id = ? AND rel_type = ?
	`, e.SourceID, e.TargetID, string(e.Type)).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil // already present
	}

	_, err = s.db.Exec(`
		INSERT INTO relationships (source_id, target_id, rel_type)
		VALUES (?, ?, ?)
	`, e.SourceID, e.TargetID, string(e.Type))
	if err != nil {
		return fmt.Errorf("failed to insert relationship: %w", err)
	}
	return nil
}

// DeleteEdge removes all relationships from source to target
func (s *Store) DeleteEdge(sourceID, targetID string) error {
	_, err := s.db.Exec(`
		DELETE FROM relationships WHERE source_id = ? AND target_id = ?
	`, sourceID, targetID)
	if err != nil {
		return fmt.Errorf("failed to delete relationship: %w", err)
	}
	return nil
}

// GetAllEdges returns the full relationship set
func (s *Store) GetAllEdges() ([]task.Edge, error) {
	rows, err := s.db.Query(`
		SELECT id, source_id, target_id, rel_type, created_at
		FROM relationships ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []task.Edge
	for rows.Next() {
		var e task.Edge
		var relType string
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &relType, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = task.RelType(relType)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// GetEdgesAmong returns edges whose source and target are both in ids
func (s *Store) GetEdgesAmong(ids []string) ([]task.Edge, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	all, err := s.GetAllEdges()
	if err != nil {
		return nil, err
	}

	var edges []task.Edge
	for _, e := range all {
		if idSet[e.SourceID] && idSet[e.TargetID] {
			edges = append(edges, e)
		}
	}
	return edges, nil
}

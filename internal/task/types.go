package task

import (
	"time"
)

// RelType defines the type of relationship between tasks
type RelType string

const (
	RelPrerequisite RelType = "prerequisite"
	RelRelatedTo    RelType = "related_to"
	RelDuplicates   RelType = "duplicates"
)

// Task represents a unit of work extracted from a document or proposed
// by the bridging generator. Immutable once created.
type Task struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	DocumentID string    `json:"document_id,omitempty"`
	Source     string    `json:"source,omitempty"` // document, ai_generated
	Embedding  []float64 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Edge represents a directed relationship between two tasks
type Edge struct {
	ID        int64     `json:"id,omitempty"`
	SourceID  string    `json:"source_id"`
	TargetID  string    `json:"target_id"`
	Type      RelType   `json:"type"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// GapIndicators holds the four boolean signals the detector computes
// for an adjacent task pair.
type GapIndicators struct {
	TimeGap        bool `json:"time_gap"`
	ActionTypeJump bool `json:"action_type_jump"`
	NoDependency   bool `json:"no_dependency"`
	SkillJump      bool `json:"skill_jump"`
}

// Count returns the number of indicators that fired.
func (gi GapIndicators) Count() int {
	n := 0
	for _, b := range []bool{gi.TimeGap, gi.ActionTypeJump, gi.NoDependency, gi.SkillJump} {
		if b {
			n++
		}
	}
	return n
}

// Gap represents a suspected missing unit of work between two
// sequential tasks. Ephemeral: computed on demand, not persisted here.
type Gap struct {
	PredecessorID string        `json:"predecessor_task_id"`
	SuccessorID   string        `json:"successor_task_id"`
	Indicators    GapIndicators `json:"indicators"`
	Confidence    float64       `json:"confidence"`
	DetectedAt    time.Time     `json:"detected_at"`
}

// BridgingTask is an AI-proposed task intended to fill a detected gap.
// Validated by graph-safe insertion before it becomes a Task.
type BridgingTask struct {
	ID             string  `json:"id"`
	GapID          string  `json:"gap_id,omitempty"`
	Text           string  `json:"task_text"`
	EstimatedHours float64 `json:"estimated_hours"`
	CognitionLevel string  `json:"cognition_level"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning,omitempty"`
	Source         string  `json:"source"` // always "ai_generated"
	RequiresReview bool    `json:"requires_review"`
}

// SimilarTask is a nearest-neighbor search hit against stored embeddings
type SimilarTask struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

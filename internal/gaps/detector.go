// Package gaps detects missing work between sequential tasks using a
// multi-signal heuristic over timestamps, workflow stages, dependency
// edges and skill keywords.
package gaps

import (
	"time"

	"github.com/taskweave/taskweave/internal/logging"
	"github.com/taskweave/taskweave/internal/task"
)

// TaskReader provides the slice of the graph the detector needs
type TaskReader interface {
	GetTasksByIDs(ids []string) (tasks []*task.Task, missing []string, err error)
	GetEdgesAmong(ids []string) ([]task.Edge, error)
}

// Detector flags gaps between adjacent tasks in a candidate sequence.
// Read-only and safe for concurrent use across different task sets.
type Detector struct {
	store TaskReader
	vocab *Vocabulary

	// TimeGapThreshold is the creation-time distance beyond which the
	// time_gap indicator fires. Default 7 days.
	TimeGapThreshold time.Duration

	// StageDistance is the minimum stage index distance for
	// action_type_jump. Default 2 (at least one intermediate stage
	// skipped).
	StageDistance int
}

// confidenceByIndicators is the fixed indicator-count to confidence
// lookup. Not a linear formula: full agreement across all four signals
// is maximal certainty.
var confidenceByIndicators = map[int]float64{
	2: 0.6,
	3: 0.75,
	4: 1.0,
}

// MinIndicators is the reporting floor: a single indicator is noise,
// not a gap.
const MinIndicators = 2

// NewDetector creates a detector over the given store. A nil vocab
// uses the compiled-in default.
func NewDetector(store TaskReader, vocab *Vocabulary) *Detector {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return &Detector{
		store:            store,
		vocab:            vocab,
		TimeGapThreshold: 7 * 24 * time.Hour,
		StageDistance:    2,
	}
}

// DetectResult holds the detected gaps plus analysis metadata
type DetectResult struct {
	Gaps          []task.Gap `json:"gaps"`
	PairsAnalyzed int        `json:"total_pairs_analyzed"`
	GapsDetected  int        `json:"gaps_detected"`
}

// Detect analyzes every adjacent pair in the ordered task id sequence
// and returns the gaps whose indicator count reaches the reporting
// floor. Missing task records are fatal: the detector never silently
// skips a pair.
func (d *Detector) Detect(taskIDs []string) (*DetectResult, error) {
	tasks, missing, err := d.store.GetTasksByIDs(taskIDs)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, &task.MissingTaskError{IDs: missing}
	}

	edges, err := d.store.GetEdgesAmong(taskIDs)
	if err != nil {
		return nil, err
	}

	result := &DetectResult{}
	for i := 0; i+1 < len(tasks); i++ {
		result.PairsAnalyzed++
		if gap := d.analyzePair(tasks[i], tasks[i+1], edges); gap != nil {
			result.Gaps = append(result.Gaps, *gap)
		}
	}
	result.GapsDetected = len(result.Gaps)

	logging.Debug("gaps", "analyzed %d pairs, detected %d gaps", result.PairsAnalyzed, result.GapsDetected)
	return result, nil
}

// Tasks exposes the detector's store fetch so orchestrators can reuse
// the same task records for prompt context.
func (d *Detector) Tasks(taskIDs []string) ([]*task.Task, []string, error) {
	return d.store.GetTasksByIDs(taskIDs)
}

// analyzePair computes the four indicators for one adjacent pair and
// returns a Gap, or nil when fewer than MinIndicators fired.
func (d *Detector) analyzePair(pred, succ *task.Task, edges []task.Edge) *task.Gap {
	ind := task.GapIndicators{
		TimeGap:        succ.CreatedAt.Sub(pred.CreatedAt) > d.TimeGapThreshold,
		ActionTypeJump: d.actionTypeJump(pred.Text, succ.Text),
		NoDependency:   !hasEdgeBetween(edges, pred.ID, succ.ID),
		SkillJump:      d.skillJump(pred.Text, succ.Text),
	}

	count := ind.Count()
	if count < MinIndicators {
		return nil
	}

	return &task.Gap{
		PredecessorID: pred.ID,
		SuccessorID:   succ.ID,
		Indicators:    ind,
		Confidence:    confidenceByIndicators[count],
		DetectedAt:    time.Now(),
	}
}

// actionTypeJump is true when both texts classify to known workflow
// stages and the stage distance skips at least one intermediate stage.
// Unclassifiable text never triggers.
func (d *Detector) actionTypeJump(predText, succText string) bool {
	predStage := d.vocab.ClassifyStage(predText)
	succStage := d.vocab.ClassifyStage(succText)
	if predStage == UnknownStage || succStage == UnknownStage {
		return false
	}
	dist := succStage - predStage
	if dist < 0 {
		dist = -dist
	}
	return dist >= d.StageDistance
}

// skillJump is true when the two skill sets are non-empty and disjoint
func (d *Detector) skillJump(predText, succText string) bool {
	predSkills := d.vocab.ExtractSkills(predText)
	succSkills := d.vocab.ExtractSkills(succText)
	if len(predSkills) == 0 || len(succSkills) == 0 {
		return false
	}
	for s := range predSkills {
		if succSkills[s] {
			return false
		}
	}
	return true
}

// hasEdgeBetween reports an edge between a and b in either direction
func hasEdgeBetween(edges []task.Edge, a, b string) bool {
	for _, e := range edges {
		if (e.SourceID == a && e.TargetID == b) || (e.SourceID == b && e.TargetID == a) {
			return true
		}
	}
	return false
}

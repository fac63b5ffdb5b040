package bridge

import (
	"sync"

	"github.com/taskweave/taskweave/internal/gaps"
	"github.com/taskweave/taskweave/internal/logging"
	"github.com/taskweave/taskweave/internal/task"
)

// Weaver orchestrates the full pipeline for a task sequence: detect
// gaps, generate a bridging candidate per gap, insert the survivors.
// Generation calls run in parallel under a small concurrency limit so
// the remote LLM isn't overwhelmed; insertions run on a single worker
// so the read-check-write sequences never interleave.
type Weaver struct {
	detector  *gaps.Detector
	generator *Generator
	inserter  *Inserter

	// Concurrency bounds parallel generation calls. Default 3.
	Concurrency int
}

// NewWeaver wires the three stages together
func NewWeaver(d *gaps.Detector, g *Generator, in *Inserter) *Weaver {
	return &Weaver{detector: d, generator: g, inserter: in, Concurrency: 3}
}

// GenerationFailure records a gap whose candidate could not be produced
type GenerationFailure struct {
	PredecessorID string `json:"predecessor_task_id"`
	SuccessorID   string `json:"successor_task_id"`
	Message       string `json:"message"`
}

// WeaveResult aggregates the pipeline outcome
type WeaveResult struct {
	Detection          *gaps.DetectResult  `json:"detection"`
	Generated          int                 `json:"generated"`
	GenerationFailures []GenerationFailure `json:"generation_failures,omitempty"`
	Insertion          *InsertResult       `json:"insertion"`
}

// Weave runs detect -> generate -> insert for the ordered task ids.
// Collaborator failures during generation are reported per gap, not
// retried; detection failures (missing tasks) abort the whole run.
func (w *Weaver) Weave(taskIDs []string) (*WeaveResult, error) {
	detection, err := w.detector.Detect(taskIDs)
	if err != nil {
		return nil, err
	}

	result := &WeaveResult{Detection: detection}
	if len(detection.Gaps) == 0 {
		result.Insertion = &InsertResult{}
		return result, nil
	}

	// Fetch the anchor tasks once for prompt context.
	anchorTasks, missing, err := w.detector.Tasks(taskIDs)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, &task.MissingTaskError{IDs: missing}
	}
	byID := make(map[string]*task.Task, len(anchorTasks))
	for _, t := range anchorTasks {
		byID[t.ID] = t
	}

	limit := w.Concurrency
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)

	var mu sync.Mutex
	var wg sync.WaitGroup
	candidates := make([]*Candidate, len(detection.Gaps))

	for i, gap := range detection.Gaps {
		wg.Add(1)
		go func(i int, gap task.Gap) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			bt, genErr := w.generator.Generate(GapContext{
				Gap:         gap,
				Predecessor: byID[gap.PredecessorID],
				Successor:   byID[gap.SuccessorID],
			})
			if genErr != nil {
				mu.Lock()
				result.GenerationFailures = append(result.GenerationFailures, GenerationFailure{
					PredecessorID: gap.PredecessorID,
					SuccessorID:   gap.SuccessorID,
					Message:       genErr.Error(),
				})
				mu.Unlock()
				return
			}
			candidates[i] = &Candidate{
				Bridging:      *bt,
				PredecessorID: gap.PredecessorID,
				SuccessorID:   gap.SuccessorID,
			}
		}(i, gap)
	}
	wg.Wait()

	// Insert in gap order on this single goroutine.
	var toInsert []Candidate
	for _, c := range candidates {
		if c != nil {
			toInsert = append(toInsert, *c)
		}
	}
	result.Generated = len(toInsert)

	insertion, err := w.inserter.Insert(toInsert)
	if err != nil {
		return nil, err
	}
	result.Insertion = insertion

	logging.Info("weaver", "gaps=%d generated=%d inserted=%d",
		len(detection.Gaps), result.Generated, insertion.InsertedCount)
	return result, nil
}

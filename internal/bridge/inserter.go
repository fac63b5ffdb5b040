package bridge

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/internal/logging"
	"github.com/taskweave/taskweave/internal/task"
)

// Store is the slice of the persistent store the inserter consumes
type Store interface {
	GetTasksByIDs(ids []string) (tasks []*task.Task, missing []string, err error)
	TaskExists(id string) (bool, error)
	AddTask(t *task.Task) error
	DeleteTask(id string) error
	GetAllEdges() ([]task.Edge, error)
	AddEdge(e task.Edge) error
	DeleteEdge(sourceID, targetID string) error
	FindSimilarTasks(queryEmb []float64, topK int, excludeID string) ([]task.SimilarTask, error)
}

// Inserter validates and commits bridging task candidates into the
// dependency graph. The commit sequence is a compensating-action saga:
// the store offers no multi-statement transaction to this layer, so a
// failed edge write deletes the just-committed task row before the
// error surfaces.
//
// The fetch-check-write sequence is not serialized against concurrent
// inserters; callers needing strict serializability run one insertion
// worker at a time.
type Inserter struct {
	store Store
	embed EmbedClient

	// DuplicateThreshold is the cosine similarity at or above which a
	// candidate is rejected as a near-duplicate. Default 0.92.
	DuplicateThreshold float64

	// RequireSameDocument rejects candidates whose predecessor and
	// successor belong to different documents.
	RequireSameDocument bool
}

// NewInserter creates an inserter over the given store and embedding
// collaborator.
func NewInserter(store Store, embed EmbedClient) *Inserter {
	return &Inserter{
		store:              store,
		embed:              embed,
		DuplicateThreshold: 0.92,
	}
}

// Candidate pairs a bridging task with its insertion point
type Candidate struct {
	Bridging      task.BridgingTask
	PredecessorID string
	SuccessorID   string
}

// Failure records one rejected candidate
type Failure struct {
	CandidateID string      `json:"candidate_id"`
	Code        FailureCode `json:"code"`
	Message     string      `json:"message"`
}

// InsertResult reports per-candidate outcomes plus aggregate counts
type InsertResult struct {
	InsertedCount        int       `json:"inserted_count"`
	TaskIDs              []string  `json:"task_ids"`
	RelationshipsCreated int       `json:"relationships_created"`
	Failures             []Failure `json:"failures,omitempty"`
}

// Insert processes candidates independently: one candidate's failure
// never rolls back others already committed.
func (in *Inserter) Insert(candidates []Candidate) (*InsertResult, error) {
	result := &InsertResult{}
	for _, c := range candidates {
		taskID, edges, err := in.insertOne(c)
		if err != nil {
			result.Failures = append(result.Failures, Failure{
				CandidateID: c.Bridging.ID,
				Code:        failureCode(err),
				Message:     err.Error(),
			})
			logging.Warn("bridge", "candidate %s rejected: %v", c.Bridging.ID, err)
			continue
		}
		result.InsertedCount++
		result.TaskIDs = append(result.TaskIDs, taskID)
		result.RelationshipsCreated += edges
	}
	return result, nil
}

// InsertOne commits a single candidate, returning the typed error on
// rejection.
func (in *Inserter) InsertOne(c Candidate) (string, error) {
	id, _, err := in.insertOne(c)
	return id, err
}

// insertOne runs the full validation and commit pipeline for one
// candidate: context fetch, id availability, duplicate detection, cycle
// check with one auto-resolution attempt, then the commit saga.
func (in *Inserter) insertOne(c Candidate) (string, int, error) {
	// Context fetch: two distinct anchor tasks, both present.
	if c.PredecessorID == c.SuccessorID {
		return "", 0, &InsertionError{
			CandidateID: c.Bridging.ID,
			Step:        "context",
			Err:         fmt.Errorf("predecessor and successor are the same task: %s", c.PredecessorID),
		}
	}
	anchors, missing, err := in.store.GetTasksByIDs([]string{c.PredecessorID, c.SuccessorID})
	if err != nil {
		return "", 0, &InsertionError{CandidateID: c.Bridging.ID, Step: "context", Err: err}
	}
	if len(missing) > 0 {
		return "", 0, &task.MissingTaskError{IDs: missing}
	}
	pred, succ := anchors[0], anchors[1]

	if in.RequireSameDocument && pred.DocumentID != succ.DocumentID {
		return "", 0, &InsertionError{
			CandidateID: c.Bridging.ID,
			Step:        "context",
			Err:         fmt.Errorf("predecessor %s and successor %s belong to different documents", pred.ID, succ.ID),
		}
	}

	// Identifier availability.
	candID := c.Bridging.ID
	if candID == "" {
		candID = uuid.NewString()
	}
	exists, err := in.store.TaskExists(candID)
	if err != nil {
		return "", 0, &InsertionError{CandidateID: candID, Step: "id check", Err: err}
	}
	if exists {
		return "", 0, &InsertionError{
			CandidateID: candID,
			Step:        "id check",
			Err:         fmt.Errorf("task id %s already exists", candID),
		}
	}

	// Duplicate detection against existing task embeddings.
	emb, err := in.embed.Embed(c.Bridging.Text)
	if err != nil {
		return "", 0, &InsertionError{CandidateID: candID, Step: "embed", Err: err}
	}
	similar, err := in.store.FindSimilarTasks(emb, 5, candID)
	if err != nil {
		return "", 0, &InsertionError{CandidateID: candID, Step: "duplicate check", Err: err}
	}
	for _, s := range similar {
		if s.Similarity >= in.DuplicateThreshold {
			return "", 0, &DuplicateTaskError{
				CandidateText: c.Bridging.Text,
				ExistingID:    s.ID,
				ExistingText:  s.Text,
				Similarity:    s.Similarity,
			}
		}
	}

	// Cycle check with one auto-resolution attempt.
	if err := in.checkAndResolveCycle(candID, c.Bridging.Text, pred, succ); err != nil {
		return "", 0, err
	}

	// Commit saga: task row first, then the two edges. Any edge failure
	// rolls back everything already written for this candidate.
	newTask := &task.Task{
		ID:         candID,
		Text:       c.Bridging.Text,
		DocumentID: pred.DocumentID,
		Source:     "ai_generated",
		Embedding:  emb,
		CreatedAt:  time.Now(),
	}
	if err := in.store.AddTask(newTask); err != nil {
		return "", 0, &InsertionError{CandidateID: candID, Step: "insert task", Err: err}
	}

	if err := in.store.AddEdge(task.Edge{SourceID: pred.ID, TargetID: candID, Type: task.RelPrerequisite}); err != nil {
		in.rollback(candID, nil)
		return "", 0, &InsertionError{CandidateID: candID, Step: "insert edges", Err: err}
	}
	if err := in.store.AddEdge(task.Edge{SourceID: candID, TargetID: succ.ID, Type: task.RelPrerequisite}); err != nil {
		in.rollback(candID, [][2]string{{pred.ID, candID}})
		return "", 0, &InsertionError{CandidateID: candID, Step: "insert edges", Err: err}
	}

	logging.Info("bridge", "inserted bridging task %s between %s and %s", candID, pred.ID, succ.ID)
	return candID, 2, nil
}

// rollback deletes any relationship rows that succeeded, then the task
// row, so no reader ever observes a task with a partial edge set.
func (in *Inserter) rollback(taskID string, edges [][2]string) {
	for _, e := range edges {
		if err := in.store.DeleteEdge(e[0], e[1]); err != nil {
			logging.Warn("bridge", "rollback: failed to delete edge %s->%s: %v", e[0], e[1], err)
		}
	}
	if err := in.store.DeleteTask(taskID); err != nil {
		logging.Warn("bridge", "rollback: failed to delete task %s: %v", taskID, err)
	}
}

// checkAndResolveCycle tests whether adding pred->candidate->successor
// would close a loop: the edges are a cycle exactly when a path already
// runs from successor back to predecessor. On a hit it deletes the
// single edge closing the loop (the path's final hop into the
// predecessor), re-reads the graph and re-checks once; a persisting
// cycle restores the deleted edge and aborts the candidate with the
// offending path spelled out as task texts.
func (in *Inserter) checkAndResolveCycle(candID, candText string, pred, succ *task.Task) error {
	// Re-read immediately before the check to shrink the race window.
	edges, err := in.store.GetAllEdges()
	if err != nil {
		return &InsertionError{CandidateID: candID, Step: "cycle check", Err: err}
	}

	path := findPath(edges, succ.ID, pred.ID)
	if path == nil {
		return nil
	}

	// One auto-resolution attempt: drop the edge that closes the cycle.
	// Keep the removed rows so an aborted candidate can restore them.
	from := path[len(path)-2]
	var removed []task.Edge
	for _, e := range edges {
		if e.SourceID == from && e.TargetID == pred.ID {
			removed = append(removed, e)
		}
	}
	logging.Info("bridge", "cycle via %s -> %s, removing conflicting edge %s -> %s",
		succ.ID, pred.ID, from, pred.ID)
	if err := in.store.DeleteEdge(from, pred.ID); err != nil {
		return &InsertionError{CandidateID: candID, Step: "cycle resolution", Err: err}
	}

	edges, err = in.store.GetAllEdges()
	if err != nil {
		return &InsertionError{CandidateID: candID, Step: "cycle check", Err: err}
	}
	if path = findPath(edges, succ.ID, pred.ID); path != nil {
		// The candidate aborts; put the deleted edge back so the abort
		// leaves the graph exactly as found.
		for _, e := range removed {
			if rerr := in.store.AddEdge(e); rerr != nil {
				logging.Warn("bridge", "failed to restore edge %s -> %s: %v", e.SourceID, e.TargetID, rerr)
			}
		}
		return &CycleError{Path: in.cyclePathTexts(candText, pred, path)}
	}
	return nil
}

// cyclePathTexts renders the full would-be cycle (predecessor ->
// candidate -> successor -> ... -> predecessor) as task texts.
func (in *Inserter) cyclePathTexts(candText string, pred *task.Task, path []string) []string {
	texts := []string{pred.Text, candText}

	pathTasks, _, err := in.store.GetTasksByIDs(path)
	byID := make(map[string]string)
	if err == nil {
		for _, t := range pathTasks {
			byID[t.ID] = t.Text
		}
	}
	for _, id := range path {
		if text, ok := byID[id]; ok {
			texts = append(texts, text)
		} else {
			texts = append(texts, id)
		}
	}
	return texts
}

// findPath runs a BFS from `from` toward `to` over the directed edge
// set and returns the node path (inclusive of both ends), or nil when
// unreachable. Work is proportional to the edges reachable from `from`,
// not the whole graph.
func findPath(edges []task.Edge, from, to string) []string {
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.SourceID] = append(adj[e.SourceID], e.TargetID)
	}

	if from == to {
		return []string{from}
	}

	parent := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range adj[node] {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = node
			if next == to {
				// Reconstruct from -> ... -> to
				path := []string{to}
				for cur := node; cur != ""; cur = parent[cur] {
					path = append(path, cur)
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// failureCode maps a rejection error to its reporting code
func failureCode(err error) FailureCode {
	type coded interface{ Code() FailureCode }
	if c, ok := err.(coded); ok {
		return c.Code()
	}
	return CodeInsertionFailed
}

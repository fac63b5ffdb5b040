package bridge

import (
	"fmt"
	"strings"
)

// FailureCode identifies why a candidate was rejected
type FailureCode string

const (
	CodeDuplicateTask   FailureCode = "DUPLICATE_TASK"
	CodeCycleDetected   FailureCode = "CYCLE_DETECTED"
	CodeInsertionFailed FailureCode = "INSERTION_FAILED"
)

// DuplicateTaskError reports a candidate near-identical to an existing
// task. The conflicting task is named so a reviewer can compare.
type DuplicateTaskError struct {
	CandidateText string
	ExistingID    string
	ExistingText  string
	Similarity    float64
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("duplicate task: candidate matches existing task %s (%.2f similarity): %q",
		e.ExistingID, e.Similarity, e.ExistingText)
}

// Code returns CodeDuplicateTask
func (e *DuplicateTaskError) Code() FailureCode { return CodeDuplicateTask }

// CycleError reports a cycle that auto-resolution could not clear. Path
// holds the offending cycle as task texts, for human diagnosis.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
}

// Code returns CodeCycleDetected
func (e *CycleError) Code() FailureCode { return CodeCycleDetected }

// InsertionError wraps an underlying store or collaborator failure
// during the commit sequence, after rollback has run.
type InsertionError struct {
	CandidateID string
	Step        string
	Err         error
}

func (e *InsertionError) Error() string {
	return fmt.Sprintf("task insertion failed (%s) for candidate %s: %v", e.Step, e.CandidateID, e.Err)
}

func (e *InsertionError) Unwrap() error { return e.Err }

// Code returns CodeInsertionFailed
func (e *InsertionError) Code() FailureCode { return CodeInsertionFailed }

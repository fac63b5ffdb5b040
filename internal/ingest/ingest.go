// Package ingest imports task lists from plain text or markdown
// documents into the task store, embedding each task as it lands.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/internal/logging"
	"github.com/taskweave/taskweave/internal/task"
)

// TaskWriter is the slice of the store the importer writes through
type TaskWriter interface {
	AddTask(t *task.Task) error
	AddEdge(e task.Edge) error
}

// Embedder provides embedding vectors for imported task text
type Embedder interface {
	Embed(text string) ([]float64, error)
}

// listItem matches markdown bullets ("- ", "* "), checkboxes
// ("- [ ] ", "- [x] ") and numbered items ("1. ", "2) ").
var listItem = regexp.MustCompile(`^\s*(?:[-*+]\s+(?:\[[ xX]\]\s+)?|\d+[.)]\s+)(.+)$`)

// ParseDocument extracts task lines from a document in reading order.
// Only list items count as tasks; headings, prose and blank lines are
// skipped. Completed checkboxes are skipped too.
func ParseDocument(r io.Reader) ([]string, error) {
	var tasks []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "[x]") || strings.Contains(line, "[X]") {
			continue
		}
		m := listItem.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		text := strings.TrimSpace(m[1])
		if text == "" {
			continue
		}
		tasks = append(tasks, text)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return tasks, nil
}

// Importer writes parsed tasks into the store
type Importer struct {
	store TaskWriter
	embed Embedder

	// LinkSequential adds a prerequisite edge between each imported task
	// and the next, treating the document order as a dependency chain.
	LinkSequential bool
}

// NewImporter creates an importer over the given store and embedder
func NewImporter(store TaskWriter, embed Embedder) *Importer {
	return &Importer{store: store, embed: embed}
}

// Result reports an import run
type Result struct {
	DocumentID    string   `json:"document_id"`
	TaskIDs       []string `json:"task_ids"`
	ImportedCount int      `json:"imported_count"`
	EdgesCreated  int      `json:"edges_created"`
}

// ImportFile parses the file at path and imports every task it finds,
// using the file name as the document id.
func (im *Importer) ImportFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()
	return im.Import(f, path)
}

// Import parses the document and stores one task per list item. A task
// whose embedding call fails is stored without a vector rather than
// aborting the run; similarity search simply won't see it.
func (im *Importer) Import(r io.Reader, documentID string) (*Result, error) {
	texts, err := ParseDocument(r)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("no task items found in %s", documentID)
	}

	result := &Result{DocumentID: documentID}
	now := time.Now()
	for i, text := range texts {
		emb, err := im.embed.Embed(text)
		if err != nil {
			logging.Warn("ingest", "embedding failed for %q: %v", logging.Truncate(text, 60), err)
			emb = nil
		}

		t := &task.Task{
			ID:         uuid.NewString(),
			Text:       text,
			DocumentID: documentID,
			Source:     "document",
			Embedding:  emb,
			CreatedAt:  now.Add(time.Duration(i) * time.Millisecond),
		}
		if err := im.store.AddTask(t); err != nil {
			return nil, fmt.Errorf("store task %q: %w", logging.Truncate(text, 60), err)
		}
		result.TaskIDs = append(result.TaskIDs, t.ID)
		result.ImportedCount++
	}

	if im.LinkSequential {
		for i := 0; i+1 < len(result.TaskIDs); i++ {
			e := task.Edge{
				SourceID: result.TaskIDs[i],
				TargetID: result.TaskIDs[i+1],
				Type:     task.RelPrerequisite,
			}
			if err := im.store.AddEdge(e); err != nil {
				return nil, fmt.Errorf("link tasks: %w", err)
			}
			result.EdgesCreated++
		}
	}

	logging.Info("ingest", "imported %d tasks from %s", result.ImportedCount, documentID)
	return result, nil
}

// Package bridge generates AI-proposed bridging tasks for detected gaps
// and commits them into the dependency graph without breaking its
// invariants.
package bridge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/internal/logging"
	"github.com/taskweave/taskweave/internal/task"
)

// LLMClient provides text generation for bridging task wording
type LLMClient interface {
	Generate(prompt string) (string, error)
}

// EmbedClient provides embedding vectors for task text
type EmbedClient interface {
	Embed(text string) ([]float64, error)
}

// cognitionLevels are the accepted values for a generated task's
// cognition_level field (Bloom-style ordering).
var cognitionLevels = map[string]bool{
	"recall":     true,
	"understand": true,
	"apply":      true,
	"analyze":    true,
	"evaluate":   true,
	"create":     true,
}

// Generator turns a gap plus its surrounding tasks into a validated
// bridging task candidate.
type Generator struct {
	llm LLMClient
}

// NewGenerator creates a generator backed by the given LLM client
func NewGenerator(llm LLMClient) *Generator {
	return &Generator{llm: llm}
}

// GapContext is the input to generation: the gap and the two task
// records it sits between.
type GapContext struct {
	Gap         task.Gap
	Predecessor *task.Task
	Successor   *task.Task
}

// generatedResponse is the JSON schema the LLM must produce
type generatedResponse struct {
	TaskText       string  `json:"task_text"`
	EstimatedHours float64 `json:"estimated_hours"`
	CognitionLevel string  `json:"cognition_level"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
}

// Generate calls the LLM and validates its response against the fixed
// schema. Malformed responses are hard errors, never coerced.
func (g *Generator) Generate(gc GapContext) (*task.BridgingTask, error) {
	if gc.Predecessor == nil || gc.Successor == nil {
		return nil, fmt.Errorf("gap context requires predecessor and successor tasks")
	}

	prompt := buildPrompt(gc)
	logging.Debug("bridge", "generating bridging task for %s -> %s", gc.Gap.PredecessorID, gc.Gap.SuccessorID)

	raw, err := g.llm.Generate(prompt)
	if err != nil {
		return nil, fmt.Errorf("llm generate: %w", err)
	}

	var resp generatedResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return nil, fmt.Errorf("malformed generator response: %w", err)
	}
	if err := validateResponse(&resp); err != nil {
		return nil, fmt.Errorf("invalid generator response: %w", err)
	}

	return &task.BridgingTask{
		ID:             uuid.NewString(),
		GapID:          fmt.Sprintf("%s:%s", gc.Gap.PredecessorID, gc.Gap.SuccessorID),
		Text:           strings.TrimSpace(resp.TaskText),
		EstimatedHours: resp.EstimatedHours,
		CognitionLevel: resp.CognitionLevel,
		Confidence:     resp.Confidence,
		Reasoning:      resp.Reasoning,
		Source:         "ai_generated",
		RequiresReview: resp.Confidence < 0.8,
	}, nil
}

// validateResponse enforces the generator schema
func validateResponse(r *generatedResponse) error {
	if strings.TrimSpace(r.TaskText) == "" {
		return fmt.Errorf("task_text is empty")
	}
	if r.EstimatedHours <= 0 || r.EstimatedHours > 500 {
		return fmt.Errorf("estimated_hours %.1f out of range (0, 500]", r.EstimatedHours)
	}
	if !cognitionLevels[r.CognitionLevel] {
		return fmt.Errorf("unknown cognition_level %q", r.CognitionLevel)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %.2f out of range [0, 1]", r.Confidence)
	}
	return nil
}

// buildPrompt constructs the gap-filling prompt
func buildPrompt(gc GapContext) string {
	var sb strings.Builder
	sb.WriteString("You are a project planning assistant. Two sequential tasks in a project plan appear to have missing work between them.\n\n")
	fmt.Fprintf(&sb, "Task A (comes first): %s\n", gc.Predecessor.Text)
	fmt.Fprintf(&sb, "Task B (comes after): %s\n\n", gc.Successor.Text)

	sb.WriteString("Detected signals:\n")
	if gc.Gap.Indicators.TimeGap {
		sb.WriteString("- large time gap between the tasks\n")
	}
	if gc.Gap.Indicators.ActionTypeJump {
		sb.WriteString("- the tasks skip intermediate workflow stages\n")
	}
	if gc.Gap.Indicators.NoDependency {
		sb.WriteString("- no dependency links the tasks\n")
	}
	if gc.Gap.Indicators.SkillJump {
		sb.WriteString("- the tasks require unrelated skill sets\n")
	}

	sb.WriteString(`
Propose ONE bridging task that belongs between Task A and Task B.

Respond with ONLY a JSON object in this exact format:
{
  "task_text": "the proposed task, one sentence",
  "estimated_hours": 4,
  "cognition_level": "apply",
  "confidence": 0.85,
  "reasoning": "one sentence on why this task fills the gap"
}

cognition_level must be one of: recall, understand, apply, analyze, evaluate, create.
confidence must be between 0 and 1.`)

	return sb.String()
}

// extractJSON extracts JSON from markdown code blocks or returns the
// input if no code block found
func extractJSON(s string) string {
	if start := strings.Index(s, "```json"); start != -1 {
		start += 7 // Skip past ```json
		if end := strings.Index(s[start:], "```"); end != -1 {
			return strings.TrimSpace(s[start : start+end])
		}
	}
	if start := strings.Index(s, "```"); start != -1 {
		start += 3 // Skip past ```
		if end := strings.Index(s[start:], "```"); end != -1 {
			content := strings.TrimSpace(s[start : start+end])
			// Skip language identifier line if present
			if idx := strings.Index(content, "\n"); idx != -1 {
				content = content[idx+1:]
			}
			return strings.TrimSpace(content)
		}
	}
	return strings.TrimSpace(s)
}

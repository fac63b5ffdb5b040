package bridge

import (
	"fmt"
	"strings"
	"testing"

	"github.com/taskweave/taskweave/internal/task"
)

// mockLLM returns a canned response or error
type mockLLM struct {
	response string
	err      error
	prompt   string
}

func (m *mockLLM) Generate(prompt string) (string, error) {
	m.prompt = prompt
	return m.response, m.err
}

func testGapContext() GapContext {
	return GapContext{
		Gap: task.Gap{
			PredecessorID: "t1",
			SuccessorID:   "t2",
			Indicators:    task.GapIndicators{TimeGap: true, ActionTypeJump: true, NoDependency: true, SkillJump: true},
			Confidence:    1.0,
		},
		Predecessor: &task.Task{ID: "t1", Text: "Design app mockups"},
		Successor:   &task.Task{ID: "t2", Text: "Launch app in stores"},
	}
}

const goodResponse = `{
  "task_text": "Build the app frontend from the mockups",
  "estimated_hours": 40,
  "cognition_level": "create",
  "confidence": 0.9,
  "reasoning": "Mockups must become a working frontend before launch"
}`

func TestGenerateSuccess(t *testing.T) {
	llm := &mockLLM{response: goodResponse}
	g := NewGenerator(llm)

	bt, err := g.Generate(testGapContext())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if bt.Text != "Build the app frontend from the mockups" {
		t.Errorf("Unexpected text: %q", bt.Text)
	}
	if bt.EstimatedHours != 40 {
		t.Errorf("Expected 40 hours, got %.1f", bt.EstimatedHours)
	}
	if bt.CognitionLevel != "create" {
		t.Errorf("Expected cognition level create, got %s", bt.CognitionLevel)
	}
	if bt.GapID != "t1:t2" {
		t.Errorf("Expected gap id t1:t2, got %s", bt.GapID)
	}
	if bt.Source != "ai_generated" {
		t.Errorf("Expected source ai_generated, got %s", bt.Source)
	}
	if bt.RequiresReview {
		t.Error("Confidence 0.9 should not require review")
	}
	if bt.ID == "" {
		t.Error("Generated task should get an id")
	}
}

func TestGenerateLowConfidenceRequiresReview(t *testing.T) {
	resp := strings.Replace(goodResponse, `"confidence": 0.9`, `"confidence": 0.6`, 1)
	g := NewGenerator(&mockLLM{response: resp})

	bt, err := g.Generate(testGapContext())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !bt.RequiresReview {
		t.Error("Confidence below 0.8 must be flagged for review")
	}
}

func TestGenerateFencedResponse(t *testing.T) {
	// Models wrap JSON in markdown fences despite instructions.
	g := NewGenerator(&mockLLM{response: "Here you go:\n```json\n" + goodResponse + "\n```\n"})

	bt, err := g.Generate(testGapContext())
	if err != nil {
		t.Fatalf("Generate failed on fenced response: %v", err)
	}
	if bt.Confidence != 0.9 {
		t.Errorf("Expected confidence 0.9, got %.2f", bt.Confidence)
	}
}

func TestGenerateMalformed(t *testing.T) {
	g := NewGenerator(&mockLLM{response: "I think a good task would be to build the frontend."})
	if _, err := g.Generate(testGapContext()); err == nil {
		t.Fatal("Expected error on non-JSON response")
	}
}

func TestGenerateLLMError(t *testing.T) {
	g := NewGenerator(&mockLLM{err: fmt.Errorf("connection refused")})
	if _, err := g.Generate(testGapContext()); err == nil {
		t.Fatal("Expected error when the LLM call fails")
	}
}

func TestGenerateValidation(t *testing.T) {
	cases := []struct {
		name string
		old  string
		new  string
	}{
		{"empty text", `"task_text": "Build the app frontend from the mockups"`, `"task_text": "  "`},
		{"zero hours", `"estimated_hours": 40`, `"estimated_hours": 0`},
		{"absurd hours", `"estimated_hours": 40`, `"estimated_hours": 9000`},
		{"bad cognition level", `"cognition_level": "create"`, `"cognition_level": "guess"`},
		{"confidence above one", `"confidence": 0.9`, `"confidence": 1.5`},
		{"negative confidence", `"confidence": 0.9`, `"confidence": -0.1`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := strings.Replace(goodResponse, tc.old, tc.new, 1)
			g := NewGenerator(&mockLLM{response: resp})
			if _, err := g.Generate(testGapContext()); err == nil {
				t.Errorf("Expected validation error for %s", tc.name)
			}
		})
	}
}

func TestGeneratePromptIncludesContext(t *testing.T) {
	llm := &mockLLM{response: goodResponse}
	g := NewGenerator(llm)
	if _, err := g.Generate(testGapContext()); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	for _, want := range []string{"Design app mockups", "Launch app in stores", "time gap", "skill sets"} {
		if !strings.Contains(llm.prompt, want) {
			t.Errorf("Prompt missing %q", want)
		}
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"```\njson\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prefix text\n```json\n{\"a\": 1}\n```\nsuffix", `{"a": 1}`},
	}
	for _, tc := range cases {
		if got := extractJSON(tc.in); got != tc.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

package gaps

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Stage is one step of the ordered workflow vocabulary. Stage order in
// the Vocabulary is significant: action_type_jump fires on index
// distance, so tuning the workflow means editing data, not the detector.
type Stage struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Vocabulary holds the stage ordering and the skill domain keyword sets
// used by the detector. Loadable from YAML so it can be tuned without
// touching control flow.
type Vocabulary struct {
	Stages []Stage             `yaml:"stages"`
	Skills map[string][]string `yaml:"skills"`
}

// UnknownStage is the neutral index for unclassifiable task text. It
// never triggers action_type_jump.
const UnknownStage = -1

// DefaultVocabulary returns the compiled-in workflow and skill keywords.
// Planning sits between research and design so that design -> build, the
// natural next step, is a single-stage hop.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		Stages: []Stage{
			{Name: "research", Keywords: []string{
				"research", "investigate", "explore", "analyze", "study", "survey", "interview",
			}},
			{Name: "plan", Keywords: []string{
				"plan", "roadmap", "scope", "schedule", "prioritize", "backlog", "estimate",
			}},
			{Name: "design", Keywords: []string{
				"design", "mockup", "mockups", "wireframe", "wireframes", "prototype", "sketch", "ux", "ui", "layout",
			}},
			{Name: "build", Keywords: []string{
				"build", "implement", "develop", "code", "integrate", "frontend", "backend", "api",
			}},
			{Name: "test", Keywords: []string{
				"test", "qa", "verify", "validate", "debug", "review",
			}},
			{Name: "deploy", Keywords: []string{
				"deploy", "release", "ship", "publish", "rollout", "submit",
			}},
			{Name: "launch", Keywords: []string{
				"launch", "announce", "marketing", "promote", "advertise", "campaign", "stores",
			}},
		},
		Skills: map[string][]string{
			"design": {
				"design", "mockup", "mockups", "wireframe", "wireframes", "prototype", "ux", "ui", "figma", "sketch", "product",
			},
			"engineering": {
				"build", "implement", "code", "develop", "frontend", "backend", "api", "database", "server", "deploy", "debug",
			},
			"marketing": {
				"marketing", "launch", "promote", "campaign", "seo", "advertise", "announce", "stores", "press",
			},
			"data": {
				"data", "analytics", "metrics", "dashboard", "report",
			},
			"operations": {
				"hire", "hiring", "budget", "legal", "contract", "finance", "onboard",
			},
		},
	}
}

// LoadVocabulary reads a vocabulary from a YAML file
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	if len(v.Stages) == 0 {
		return nil, fmt.Errorf("vocabulary has no stages")
	}
	return &v, nil
}

// ClassifyStage maps task text to a stage index via keyword matching.
// The stage with the most keyword hits wins; ties go to the earlier
// stage. Text matching no stage returns UnknownStage.
func (v *Vocabulary) ClassifyStage(text string) int {
	tokens := tokenSet(text)

	best, bestHits := UnknownStage, 0
	for i, stage := range v.Stages {
		hits := 0
		for _, kw := range stage.Keywords {
			if tokens[kw] {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = i, hits
		}
	}
	return best
}

// StageName returns the stage name for an index, or "unknown"
func (v *Vocabulary) StageName(idx int) string {
	if idx < 0 || idx >= len(v.Stages) {
		return "unknown"
	}
	return v.Stages[idx].Name
}

// ExtractSkills returns the set of skill domains whose keywords appear
// in the task text.
func (v *Vocabulary) ExtractSkills(text string) map[string]bool {
	tokens := tokenSet(text)

	skills := make(map[string]bool)
	for domain, keywords := range v.Skills {
		for _, kw := range keywords {
			if tokens[kw] {
				skills[domain] = true
				break
			}
		}
	}
	return skills
}

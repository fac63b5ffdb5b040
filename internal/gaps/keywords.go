package gaps

import (
	"strings"
	"unicode"

	prose "github.com/tsawler/prose/v3"
)

// tokenSet tokenizes task text with prose and returns the lowercased
// token set. Falls back to whitespace splitting if prose fails on the
// input.
func tokenSet(text string) map[string]bool {
	tokens := make(map[string]bool)

	doc, err := prose.NewDocument(text,
		prose.WithExtraction(false),
		prose.WithTagging(false),
	)
	if err != nil {
		for _, f := range strings.Fields(text) {
			if w := cleanToken(f); w != "" {
				tokens[w] = true
			}
		}
		return tokens
	}

	for _, tok := range doc.Tokens() {
		if w := cleanToken(tok.Text); w != "" {
			tokens[w] = true
		}
	}
	return tokens
}

// cleanToken lowercases and strips surrounding punctuation; returns ""
// for tokens with no letters or digits left.
func cleanToken(s string) string {
	s = strings.ToLower(strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
	return s
}

// Package text selects per-language normalization profiles and applies the
// light transport-side cleanup performed before chunk text is handed to the
// inference capability. The heavy language-specific normalization and
// phonemization live in the inference service; this package only makes sure
// the text it receives is tidy and tells it which profile to use.
package text

import (
	"regexp"
	"strings"

	"github.com/hawkaii/fastspeech/internal/core"
)

// Languages synthesized at character level rather than phrase level.
var characterLevelLanguages = map[string]struct{}{
	"urdu":    {},
	"punjabi": {},
}

// ProfileFor returns the normalization profile the inference service must
// apply for a language.
func ProfileFor(language string) core.NormalizationProfile {
	if _, ok := characterLevelLanguages[language]; ok {
		return core.ProfileCharacter
	}

	if language == "english" {
		return core.ProfileEnglish
	}

	return core.ProfileDurationAligned
}

const whitespaceRegexPattern = `\s+`

// Normalizer performs the transport-side text cleanup.
type Normalizer struct {
	whitespacePattern *regexp.Regexp
	punctReplacer     *strings.Replacer
}

// NewNormalizer creates a normalizer with its patterns and replacers compiled
// upfront so it can be shared across requests.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		punctReplacer: strings.NewReplacer(
			"—", "-",
			"–", "-",
			"‒", "-",
			"…", "...",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Normalize collapses whitespace and normalizes quotes and dashes. It never
// drops words: the word sequence of the input is preserved exactly.
func (n *Normalizer) Normalize(text string) string {
	text = n.punctReplacer.Replace(text)
	text = n.whitespacePattern.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

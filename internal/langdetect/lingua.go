// Package langdetect guards the pipeline against documents written in a
// language other than the tracked one.
package langdetect

import (
	"strings"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

// minLetters below which a text is too short to judge.
const minLetters = 6

var neighbours = []lingua.Language{
	lingua.Dutch,
	lingua.English,
	lingua.German,
	lingua.French,
	lingua.Spanish,
	lingua.Italian,
	lingua.Portuguese,
	lingua.Turkish,
	lingua.Arabic,
	lingua.Indonesian,
}

// Guard accepts text unless it is confidently written in another language
// than the target.
type Guard struct {
	target   string
	detector lingua.LanguageDetector
}

// NewGuard builds a guard for an ISO 639-1 code such as "nl" or "nl-BE".
// A blank code yields a guard that accepts everything.
func NewGuard(code string) *Guard {
	target := NormalizeCode(code)
	if target == "" {
		return &Guard{}
	}

	languages := append([]lingua.Language(nil), neighbours...)
	known := false
	for _, lang := range lingua.AllLanguages() {
		if isoCode(lang) != target {
			continue
		}
		known = true
		if !containsLanguage(languages, lang) {
			languages = append(languages, lang)
		}
	}
	if !known {
		return &Guard{}
	}

	return &Guard{
		target: target,
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			WithMinimumRelativeDistance(0.25).
			Build(),
	}
}

func (g *Guard) Enabled() bool {
	return g != nil && g.detector != nil
}

func (g *Guard) Target() string {
	if g == nil {
		return ""
	}
	return g.target
}

// Accept reports whether text may pass. Short or ambiguous text passes.
func (g *Guard) Accept(text string) bool {
	if !g.Enabled() {
		return true
	}
	code := g.Detect(text)
	return code == "" || code == g.target
}

// Detect returns the ISO 639-1 code of text, or "" when undecided.
func (g *Guard) Detect(text string) string {
	if !g.Enabled() {
		return ""
	}
	sample := strings.TrimSpace(text)
	if sample == "" {
		return ""
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < minLetters {
		return ""
	}

	language, exists := g.detector.DetectLanguageOf(sample)
	if !exists {
		return ""
	}
	return isoCode(language)
}

// NormalizeCode returns the primary subtag of a language tag ("nl" from
// "NL_be"), or "" for blank or malformed input.
func NormalizeCode(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	trimmed = strings.ReplaceAll(trimmed, "_", "-")
	primary, _, _ := strings.Cut(trimmed, "-")
	primary = strings.TrimSpace(primary)
	if primary == "" {
		return ""
	}
	for _, r := range primary {
		if r < 'a' || r > 'z' {
			return ""
		}
	}
	return primary
}

func isoCode(language lingua.Language) string {
	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	return code
}

func containsLanguage(languages []lingua.Language, lang lingua.Language) bool {
	for _, l := range languages {
		if l == lang {
			return true
		}
	}
	return false
}

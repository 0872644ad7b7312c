package tweet

import (
	"strings"
)

// excludedTags are CGN part-of-speech heads that never carry topic content:
// adverbs, punctuation, articles, conjunctions, interjections, prepositions
// and pronouns.
var excludedTags = map[string]struct{}{
	"BW":  {},
	"LET": {},
	"LID": {},
	"VG":  {},
	"TSW": {},
	"VZ":  {},
	"VNW": {},
}

// Token is one annotated lexical unit. Tokens compare by lemma.
type Token struct {
	Lemma   string  `json:"lemma"`
	POS     string  `json:"pos"`
	POSProb float64 `json:"posprob"`
}

// TagHead returns the tag name without its feature list, e.g. "VZ" for
// "VZ(init)".
func (t Token) TagHead() string {
	head, _, _ := strings.Cut(t.POS, "(")
	return strings.ToUpper(strings.TrimSpace(head))
}

// IsURL reports whether the lemma is a link fragment.
func (t Token) IsURL() bool {
	return strings.Contains(strings.ToLower(t.Lemma), "http")
}

// Filtered reports whether the token is excluded from similarity.
func (l *Lexicon) Filtered(t Token) bool {
	if _, excluded := excludedTags[t.TagHead()]; excluded {
		return true
	}
	if t.IsURL() {
		return true
	}
	return l.IsStopword(t.Lemma)
}

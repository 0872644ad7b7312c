// Package textsim holds the token set and count types shared by documents,
// clusters and stories, and the similarity measures over them. Every
// function is total: empty input yields 0, never an error.
package textsim

import (
	"math"
	"sort"

	json "github.com/goccy/go-json"
)

// Set is a set of lemmas.
type Set map[string]struct{}

func NewSet(lemmas ...string) Set {
	s := make(Set, len(lemmas))
	for _, lemma := range lemmas {
		s[lemma] = struct{}{}
	}
	return s
}

func (s Set) Has(lemma string) bool {
	_, ok := s[lemma]
	return ok
}

func (s Set) Add(lemmas ...string) {
	for _, lemma := range lemmas {
		s[lemma] = struct{}{}
	}
}

// Union adds every member of other to s.
func (s Set) Union(other Set) {
	for lemma := range other {
		s[lemma] = struct{}{}
	}
}

func (s Set) Intersect(other Set) Set {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(Set, len(small))
	for lemma := range small {
		if large.Has(lemma) {
			out[lemma] = struct{}{}
		}
	}
	return out
}

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for lemma := range s {
		out[lemma] = struct{}{}
	}
	return out
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for lemma := range s {
		out = append(out, lemma)
	}
	sort.Strings(out)
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var lemmas []string
	if err := json.Unmarshal(data, &lemmas); err != nil {
		return err
	}
	*s = NewSet(lemmas...)
	return nil
}

// Counts is a multiset of lemmas.
type Counts map[string]int

func (c Counts) Add(lemmas ...string) {
	for _, lemma := range lemmas {
		c[lemma]++
	}
}

// Merge adds the counts of other into c.
func (c Counts) Merge(other Counts) {
	for lemma, n := range other {
		c[lemma] += n
	}
}

func (c Counts) Clone() Counts {
	out := make(Counts, len(c))
	for lemma, n := range c {
		out[lemma] = n
	}
	return out
}

// Restrict returns the counts of the lemmas in keys only. Lemmas absent from
// c are omitted rather than stored as zero.
func (c Counts) Restrict(keys Set) Counts {
	out := make(Counts, len(keys))
	for lemma := range keys {
		if n, ok := c[lemma]; ok && n != 0 {
			out[lemma] = n
		}
	}
	return out
}

// Jaccard is |A∩B| / |A∪B|, and 0 when both sets are empty.
func Jaccard(a, b Set) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	shared := 0
	small, large := a, b
	if len(large) < len(small) {
		small, large = large, small
	}
	for lemma := range small {
		if large.Has(lemma) {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}

// Cosine is the cosine of the angle between two count vectors. Either
// vector being empty (or all zero) yields 0.
func Cosine(a, b Counts) float64 {
	normA := norm(a)
	normB := norm(b)
	if normA == 0 || normB == 0 {
		return 0
	}
	small, large := a, b
	if len(large) < len(small) {
		small, large = large, small
	}
	dot := 0.0
	for lemma, n := range small {
		if m, ok := large[lemma]; ok {
			dot += float64(n) * float64(m)
		}
	}
	sim := dot / (normA * normB)
	if sim > 1 {
		return 1
	}
	return sim
}

// CosineOver compares a and b on the given keys only.
func CosineOver(keys Set, a, b Counts) float64 {
	return Cosine(a.Restrict(keys), b.Restrict(keys))
}

func norm(c Counts) float64 {
	sum := 0.0
	for _, n := range c {
		sum += float64(n) * float64(n)
	}
	return math.Sqrt(sum)
}

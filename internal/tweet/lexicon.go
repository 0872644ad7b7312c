package tweet

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed wordlists/stoplist-nl.txt
var defaultStopwords string

//go:embed wordlists/obscene-nl.txt
var defaultObscene string

// Lexicon holds the word lists used to filter tokens and screen closed
// stories. It is immutable after construction and safe to share.
type Lexicon struct {
	stopwords map[string]struct{}
	obscene   map[string]struct{}
}

// DefaultLexicon uses the embedded Dutch lists.
func DefaultLexicon() *Lexicon {
	lex, err := NewLexicon(strings.NewReader(defaultStopwords), strings.NewReader(defaultObscene))
	if err != nil {
		panic(fmt.Sprintf("embedded word lists: %v", err))
	}
	return lex
}

func NewLexicon(stopwords, obscene io.Reader) (*Lexicon, error) {
	stop, err := readWordList(stopwords)
	if err != nil {
		return nil, fmt.Errorf("read stopwords: %w", err)
	}
	bad, err := readWordList(obscene)
	if err != nil {
		return nil, fmt.Errorf("read obscene words: %w", err)
	}
	return &Lexicon{stopwords: stop, obscene: bad}, nil
}

// LoadLexicon reads word lists from files; an empty path keeps the
// embedded list for that slot.
func LoadLexicon(stopwordsPath, obscenePath string) (*Lexicon, error) {
	stop, err := openOrDefault(stopwordsPath, defaultStopwords)
	if err != nil {
		return nil, err
	}
	defer stop.Close()

	bad, err := openOrDefault(obscenePath, defaultObscene)
	if err != nil {
		return nil, err
	}
	defer bad.Close()

	return NewLexicon(stop, bad)
}

func (l *Lexicon) IsStopword(lemma string) bool {
	_, ok := l.stopwords[strings.ToLower(strings.TrimSpace(lemma))]
	return ok
}

func (l *Lexicon) IsObscene(lemma string) bool {
	_, ok := l.obscene[strings.ToLower(strings.TrimSpace(lemma))]
	return ok
}

// ContainsObscene reports whether any lemma of the document is obscene.
func (l *Lexicon) ContainsObscene(doc Document) bool {
	for _, tok := range doc.Tokens {
		if l.IsObscene(tok.Lemma) {
			return true
		}
	}
	return false
}

func (l *Lexicon) Size() (stopwords, obscene int) {
	return len(l.stopwords), len(l.obscene)
}

func readWordList(r io.Reader) (map[string]struct{}, error) {
	words := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return words, nil
}

func openOrDefault(path, fallback string) (io.ReadCloser, error) {
	if strings.TrimSpace(path) == "" {
		return io.NopCloser(strings.NewReader(fallback)), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open word list %s: %w", path, err)
	}
	return f, nil
}

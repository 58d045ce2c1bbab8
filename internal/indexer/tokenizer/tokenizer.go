// Package tokenizer turns free text into the normalized token sequence the
// histogram builder counts. The default Analyzer folds diacritics, lower-cases,
// segments on UAX #29 word boundaries, removes stop-words and stems with the
// Snowball algorithm for the configured language.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"github.com/kljensen/snowball"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	apperrors "github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/errors"
)

// Tokenizer is the pluggable text → token capability. Implementations must
// be safe for concurrent use.
type Tokenizer interface {
	Tokenize(text string) ([]string, error)
}

// Func adapts a plain function to Tokenizer.
type Func func(text string) ([]string, error)

func (f Func) Tokenize(text string) ([]string, error) { return f(text) }

// LanguageNone disables stemming.
const LanguageNone = "none"

var supportedLanguages = map[string]struct{}{
	"english":    {},
	"spanish":    {},
	"french":     {},
	"russian":    {},
	"swedish":    {},
	"norwegian":  {},
	"hungarian":  {},
	LanguageNone: {},
}

var defaultStopWords = []string{
	"a", "an", "and", "are", "as", "at",
	"be", "by", "for", "from", "has", "he",
	"in", "is", "it", "its", "of", "on",
	"or", "that", "the", "to", "was", "were",
	"will", "with", "this", "but", "they",
	"have", "had", "what", "when", "where",
	"who", "which", "their", "if", "each",
	"do", "not", "no", "so", "can",
}

// Config controls the Analyzer pipeline.
type Config struct {
	Language       string
	Stopwords      []string
	MinTokenLength int
}

// Analyzer is the default Tokenizer.
type Analyzer struct {
	language  string
	stopWords map[string]struct{}
	minLen    int
}

// New validates cfg and returns an Analyzer. Extra stop-words extend the
// built-in list; they are folded the same way tokens are.
func New(cfg Config) (*Analyzer, error) {
	language := strings.ToLower(strings.TrimSpace(cfg.Language))
	if language == "" {
		language = "english"
	}
	if _, ok := supportedLanguages[language]; !ok {
		return nil, fmt.Errorf("%w: unsupported stemming language %q", apperrors.ErrInvalidConfig, cfg.Language)
	}
	minLen := cfg.MinTokenLength
	if minLen < 1 {
		minLen = 1
	}
	a := &Analyzer{
		language:  language,
		stopWords: make(map[string]struct{}, len(defaultStopWords)+len(cfg.Stopwords)),
		minLen:    minLen,
	}
	for _, w := range defaultStopWords {
		a.stopWords[w] = struct{}{}
	}
	for _, w := range cfg.Stopwords {
		a.stopWords[strings.ToLower(Fold(w))] = struct{}{}
	}
	return a, nil
}

// Tokenize returns the stemmed, lower-cased, diacritic-free tokens of text
// in their original order, stop-words removed.
func (a *Analyzer) Tokenize(text string) ([]string, error) {
	text = strings.ToLower(Fold(text))
	segments := words.FromString(text)
	tokens := make([]string, 0, len(text)/6)
	for segments.Next() {
		word := segments.Value()
		if !isWord(word) {
			continue
		}
		if len([]rune(word)) < a.minLen {
			continue
		}
		if _, isStop := a.stopWords[word]; isStop {
			continue
		}
		stemmed, err := a.stem(word)
		if err != nil {
			return nil, fmt.Errorf("%w: stemming %q: %v", apperrors.ErrTokenizer, word, err)
		}
		if stemmed == "" {
			continue
		}
		tokens = append(tokens, stemmed)
	}
	return tokens, nil
}

func (a *Analyzer) stem(word string) (string, error) {
	if a.language == LanguageNone {
		return word, nil
	}
	return snowball.Stem(word, a.language, true)
}

// Fold decomposes text (NFKD), strips combining marks and recomposes it, so
// "ação" becomes "acao".
func Fold(text string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return folded
}

// isWord reports whether a UAX #29 segment carries at least one letter or
// digit; whitespace and punctuation segments are skipped.
func isWord(segment string) bool {
	for _, r := range segment {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// Package tokenizer turns property text into index terms. The default
// tokenizer lower-cases input, folds diacritics, splits on non-alphanumeric
// boundaries and can optionally drop stop-words and apply a Snowball stemmer
// for the document language.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Tokenizer splits the text of one property into terms. Terms may repeat;
// callers that need a set de-duplicate them.
type Tokenizer interface {
	Tokenize(text, language, property string) ([]string, error)
	Language() string
}

type Config struct {
	Language  string
	Stemming  bool
	StopWords bool
	// CustomStopWords replaces the built-in list for the configured language.
	CustomStopWords []string
	// SkipStemming lists properties whose terms are never stemmed.
	SkipStemming []string
}

type Default struct {
	language     string
	stemming     bool
	stopWords    map[string]struct{}
	skipStemming map[string]struct{}
}

func New(cfg Config) (*Default, error) {
	lang := cfg.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	if !Supported(lang) {
		return nil, apperrors.Config(apperrors.ErrUnsupportedLanguage, "language %q", lang)
	}
	t := &Default{
		language:     lang,
		stemming:     cfg.Stemming,
		skipStemming: make(map[string]struct{}, len(cfg.SkipStemming)),
	}
	for _, p := range cfg.SkipStemming {
		t.skipStemming[p] = struct{}{}
	}
	switch {
	case len(cfg.CustomStopWords) > 0:
		t.stopWords = make(map[string]struct{}, len(cfg.CustomStopWords))
		for _, w := range cfg.CustomStopWords {
			t.stopWords[normalize(w)] = struct{}{}
		}
	case cfg.StopWords:
		t.stopWords = stopWords[lang]
	}
	return t, nil
}

func (t *Default) Language() string {
	return t.language
}

// Tokenize normalizes text for the given language. An empty language means
// the tokenizer's own.
func (t *Default) Tokenize(text, language, property string) ([]string, error) {
	if language == "" {
		language = t.language
	}
	lang, ok := languages[language]
	if !ok {
		return nil, apperrors.Config(apperrors.ErrUnsupportedLanguage, "language %q", language)
	}
	words := strings.FieldsFunc(normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	_, noStem := t.skipStemming[property]
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if _, isStop := t.stopWords[word]; isStop {
			continue
		}
		if t.stemming && !noStem && lang.stem != nil {
			word = stem(lang, word)
		}
		if word == "" {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens, nil
}

// normalize lower-cases s and strips combining marks, so "Héllo" and "hello"
// produce the same term.
func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// Must is New for configurations known to be valid.
func Must(cfg Config) *Default {
	t, err := New(cfg)
	if err != nil {
		panic(fmt.Sprintf("tokenizer: %v", err))
	}
	return t
}

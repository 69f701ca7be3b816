package tokenizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func TestTokenizeDefaults(t *testing.T) {
	tok := Must(Config{})

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"lowercase and split", "The Quick, brown FOX!", []string{"the", "quick", "brown", "fox"}},
		{"single letters kept", "f", []string{"f"}},
		{"digits", "route 66", []string{"route", "66"}},
		{"diacritics folded", "Crème Brûlée", []string{"creme", "brulee"}},
		{"repeats kept", "to be or not to be", []string{"to", "be", "or", "not", "to", "be"}},
		{"empty", "  ...  ", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tok.Tokenize(tt.text, "", "quote")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStopWordsAndStemming(t *testing.T) {
	tok := Must(Config{Stemming: true, StopWords: true, SkipStemming: []string{"sku"}})

	got, err := tok.Tokenize("The foxes are running", "english", "body")
	require.NoError(t, err)
	assert.Equal(t, []string{"fox", "run"}, got)

	got, err = tok.Tokenize("running", "english", "sku")
	require.NoError(t, err)
	assert.Equal(t, []string{"running"}, got)
}

func TestCustomStopWords(t *testing.T) {
	tok := Must(Config{CustomStopWords: []string{"Lorem"}})

	got, err := tok.Tokenize("lorem ipsum", "", "body")
	require.NoError(t, err)
	assert.Equal(t, []string{"ipsum"}, got)
}

func TestUnsupportedLanguage(t *testing.T) {
	_, err := New(Config{Language: "klingon"})
	assert.True(t, errors.Is(err, apperrors.ErrUnsupportedLanguage))

	tok := Must(Config{})
	_, err = tok.Tokenize("qapla", "klingon", "body")
	assert.True(t, errors.Is(err, apperrors.ErrUnsupportedLanguage))
}

func TestLanguageSpecificStemmer(t *testing.T) {
	tok := Must(Config{Language: "italian", Stemming: true})
	assert.Equal(t, "italian", tok.Language())

	got, err := tok.Tokenize("gatti", "", "body")
	require.NoError(t, err)
	assert.Equal(t, []string{"gatt"}, got)
}

func TestLanguages(t *testing.T) {
	assert.Contains(t, Languages(), "english")
	assert.True(t, Supported("swedish"))
	assert.Equal(t, "it", Tag("italian").String())
	assert.Equal(t, "en", Tag("unknown").String())
}

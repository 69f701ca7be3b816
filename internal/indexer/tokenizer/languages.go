package tokenizer

import (
	"sort"

	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/arabic"
	"github.com/blevesearch/snowballstem/danish"
	"github.com/blevesearch/snowballstem/dutch"
	"github.com/blevesearch/snowballstem/english"
	"github.com/blevesearch/snowballstem/finnish"
	"github.com/blevesearch/snowballstem/french"
	"github.com/blevesearch/snowballstem/german"
	"github.com/blevesearch/snowballstem/hungarian"
	"github.com/blevesearch/snowballstem/irish"
	"github.com/blevesearch/snowballstem/italian"
	"github.com/blevesearch/snowballstem/norwegian"
	"github.com/blevesearch/snowballstem/portuguese"
	"github.com/blevesearch/snowballstem/romanian"
	"github.com/blevesearch/snowballstem/russian"
	"github.com/blevesearch/snowballstem/spanish"
	"github.com/blevesearch/snowballstem/swedish"
	"github.com/blevesearch/snowballstem/tamil"
	"github.com/blevesearch/snowballstem/turkish"
	"golang.org/x/text/language"
)

const DefaultLanguage = "english"

type lang struct {
	tag  language.Tag
	stem func(env *snowballstem.Env) bool
}

var languages = map[string]lang{
	"arabic":     {language.Arabic, arabic.Stem},
	"danish":     {language.Danish, danish.Stem},
	"dutch":      {language.Dutch, dutch.Stem},
	"english":    {language.English, english.Stem},
	"finnish":    {language.Finnish, finnish.Stem},
	"french":     {language.French, french.Stem},
	"german":     {language.German, german.Stem},
	"hungarian":  {language.Hungarian, hungarian.Stem},
	"irish":      {language.Make("ga"), irish.Stem},
	"italian":    {language.Italian, italian.Stem},
	"norwegian":  {language.Norwegian, norwegian.Stem},
	"portuguese": {language.Portuguese, portuguese.Stem},
	"romanian":   {language.Romanian, romanian.Stem},
	"russian":    {language.Russian, russian.Stem},
	"spanish":    {language.Spanish, spanish.Stem},
	"swedish":    {language.Swedish, swedish.Stem},
	"tamil":      {language.Tamil, tamil.Stem},
	"turkish":    {language.Turkish, turkish.Stem},
}

// Supported reports whether language has a tokenizer configuration.
func Supported(language string) bool {
	_, ok := languages[language]
	return ok
}

// Languages lists the supported language names.
func Languages() []string {
	out := make([]string, 0, len(languages))
	for name := range languages {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Tag returns the BCP 47 tag used to collate strings of language, falling
// back to English.
func Tag(name string) language.Tag {
	if l, ok := languages[name]; ok {
		return l.tag
	}
	return language.English
}

func stem(l lang, word string) string {
	env := snowballstem.NewEnv(word)
	l.stem(env)
	return env.Current()
}

var stopWords = map[string]map[string]struct{}{
	"english": set(
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
		"has", "he", "in", "is", "it", "its", "of", "on", "or", "that",
		"the", "to", "was", "were", "will", "with", "this", "but", "they",
		"have", "had", "what", "when", "where", "who", "which", "their",
		"if", "each", "do", "not", "no", "so", "can",
	),
	"italian": set(
		"il", "lo", "la", "i", "gli", "le", "un", "uno", "una", "di", "a",
		"da", "in", "con", "su", "per", "tra", "fra", "e", "o", "che",
		"non", "del", "della", "nel", "nella", "al", "alla",
	),
	"spanish": set(
		"el", "la", "los", "las", "un", "una", "unos", "unas", "de", "del",
		"a", "en", "con", "por", "para", "y", "o", "que", "no", "se", "al",
	),
	"french": set(
		"le", "la", "les", "un", "une", "des", "de", "du", "a", "au", "aux",
		"en", "et", "ou", "que", "qui", "ne", "pas", "pour", "par", "sur",
	),
	"german": set(
		"der", "die", "das", "ein", "eine", "und", "oder", "in", "im", "zu",
		"mit", "von", "auf", "fur", "nicht", "ist", "den", "dem", "des",
	),
}

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Package index holds the per-property search structures of one collection:
// a radix tree for every string property, an AVL tree for every number
// property and document sets for every boolean property, together with the
// term statistics BM25 needs.
//
// An Index has no internal locking. It is mutated by a single writer and may
// be read concurrently only while no mutation is in progress.
package index

import (
	"fmt"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/avl"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/radix"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

type Index struct {
	types      map[string]schema.Type
	properties []string
	searchable []string

	radix   map[string]*radix.Tree
	numbers map[string]*avl.Tree
	bools   map[string]*BoolSets

	postings     map[string]map[string]PostingList
	fieldLengths map[string]map[string]int
	totalLengths map[string]int

	seq     map[string]uint64
	nextSeq uint64
}

// New builds empty structures for every indexable leaf of s. Enum leaves are
// kept for facets only and are not indexed.
func New(s schema.Schema) *Index {
	idx := empty()
	for path, typ := range s.Flatten() {
		idx.declare(path, typ)
	}
	idx.finish()
	return idx
}

func empty() *Index {
	return &Index{
		types:        make(map[string]schema.Type),
		radix:        make(map[string]*radix.Tree),
		numbers:      make(map[string]*avl.Tree),
		bools:        make(map[string]*BoolSets),
		postings:     make(map[string]map[string]PostingList),
		fieldLengths: make(map[string]map[string]int),
		totalLengths: make(map[string]int),
		seq:          make(map[string]uint64),
	}
}

func (x *Index) declare(path string, typ schema.Type) {
	switch typ.Elem() {
	case schema.String:
		x.radix[path] = radix.New()
		x.postings[path] = make(map[string]PostingList)
		x.fieldLengths[path] = make(map[string]int)
	case schema.Number:
		x.numbers[path] = &avl.Tree{}
	case schema.Boolean:
		x.bools[path] = newBoolSets()
	default:
		return
	}
	x.types[path] = typ
}

func (x *Index) finish() {
	x.properties = x.properties[:0]
	x.searchable = x.searchable[:0]
	for path, typ := range x.types {
		x.properties = append(x.properties, path)
		if typ.Elem() == schema.String {
			x.searchable = append(x.searchable, path)
		}
	}
	sort.Strings(x.properties)
	sort.Strings(x.searchable)
}

// Properties lists every indexed property.
func (x *Index) Properties() []string {
	return append([]string(nil), x.properties...)
}

// SearchableProperties lists the string properties a term can match.
func (x *Index) SearchableProperties() []string {
	return append([]string(nil), x.searchable...)
}

func (x *Index) PropertyType(prop string) (schema.Type, bool) {
	t, ok := x.types[prop]
	return t, ok
}

// Track assigns the next insertion sequence to id.
func (x *Index) Track(id string) {
	if _, ok := x.seq[id]; ok {
		return
	}
	x.seq[id] = x.nextSeq
	x.nextSeq++
}

func (x *Index) Untrack(id string) {
	delete(x.seq, id)
}

// Seq returns the insertion sequence of id; unknown documents sort last.
func (x *Index) Seq(id string) uint64 {
	if s, ok := x.seq[id]; ok {
		return s
	}
	return math.MaxUint64
}

// DocCount returns the number of tracked documents.
func (x *Index) DocCount() int {
	return len(x.seq)
}

// DocIDs returns every tracked document in insertion order.
func (x *Index) DocIDs() []string {
	ids := make([]string, 0, len(x.seq))
	for id := range x.seq {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return x.seq[ids[i]] < x.seq[ids[j]] })
	return ids
}

// Insert indexes value as the content of prop for document id.
func (x *Index) Insert(prop, id string, value any, language string, tok tokenizer.Tokenizer) error {
	typ, ok := x.types[prop]
	if !ok {
		return apperrors.Config(apperrors.ErrUnknownProperty, "property %q is not indexed", prop)
	}
	values := []any{value}
	if typ.IsArray() {
		values = schema.Items(value)
	}

	switch typ.Elem() {
	case schema.String:
		return x.insertText(prop, id, values, language, tok)
	case schema.Number:
		for _, v := range values {
			f, ok := schema.ToFloat(v)
			if !ok {
				return fmt.Errorf("indexing %s: %w", prop, apperrors.ErrSchemaMismatch)
			}
			x.numbers[prop].Insert(f, id)
		}
	case schema.Boolean:
		for _, v := range values {
			b, ok := v.(bool)
			if !ok {
				return fmt.Errorf("indexing %s: %w", prop, apperrors.ErrSchemaMismatch)
			}
			x.bools[prop].set(b)[id] = struct{}{}
		}
	}
	return nil
}

func (x *Index) insertText(prop, id string, values []any, language string, tok tokenizer.Tokenizer) error {
	var tokens []string
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("indexing %s: %w", prop, apperrors.ErrSchemaMismatch)
		}
		t, err := tok.Tokenize(s, language, prop)
		if err != nil {
			return fmt.Errorf("tokenizing %s: %w", prop, err)
		}
		tokens = append(tokens, t...)
	}

	tree := x.radix[prop]
	words := x.postings[prop]
	for _, word := range tokens {
		list, ok := words[word]
		if !ok {
			list = make(PostingList)
			words[word] = list
		}
		p, ok := list[id]
		if !ok {
			p = &Posting{DocID: id}
			list[id] = p
			tree.Insert(word, id)
		}
		p.Frequency++
	}
	x.totalLengths[prop] += len(tokens) - x.fieldLengths[prop][id]
	x.fieldLengths[prop][id] = len(tokens)
	return nil
}

// Remove reverses Insert for the same value.
func (x *Index) Remove(prop, id string, value any, language string, tok tokenizer.Tokenizer) error {
	typ, ok := x.types[prop]
	if !ok {
		return nil
	}
	values := []any{value}
	if typ.IsArray() {
		values = schema.Items(value)
	}

	switch typ.Elem() {
	case schema.String:
		for _, v := range values {
			s, _ := v.(string)
			tokens, err := tok.Tokenize(s, language, prop)
			if err != nil {
				return fmt.Errorf("tokenizing %s: %w", prop, err)
			}
			for _, word := range tokens {
				x.removeWord(prop, word, id)
			}
		}
		x.totalLengths[prop] -= x.fieldLengths[prop][id]
		delete(x.fieldLengths[prop], id)
	case schema.Number:
		for _, v := range values {
			if f, ok := schema.ToFloat(v); ok {
				x.numbers[prop].RemoveDocument(f, id)
			}
		}
	case schema.Boolean:
		for _, v := range values {
			if b, ok := v.(bool); ok {
				delete(x.bools[prop].set(b), id)
			}
		}
	}
	return nil
}

func (x *Index) removeWord(prop, word, id string) {
	list, ok := x.postings[prop][word]
	if !ok {
		return
	}
	if _, ok := list[id]; !ok {
		return
	}
	delete(list, id)
	if len(list) == 0 {
		delete(x.postings[prop], word)
	}
	x.radix[prop].RemoveDocument(word, id)
}

// Find looks term up in the radix tree of prop.
func (x *Index) Find(prop string, params radix.FindParams) map[string][]string {
	tree, ok := x.radix[prop]
	if !ok {
		return nil
	}
	return tree.Find(params)
}

// Match returns the BM25 inputs for word in prop of document id.
func (x *Index) Match(prop, word, id string) ranker.Match {
	m := ranker.Match{
		FieldLength:  x.fieldLengths[prop][id],
		DocsWithTerm: len(x.postings[prop][word]),
		TotalDocs:    x.DocCount(),
	}
	if p, ok := x.postings[prop][word][id]; ok {
		m.TermFrequency = p.Frequency
	}
	if n := len(x.fieldLengths[prop]); n > 0 {
		m.AvgFieldLength = float64(x.totalLengths[prop]) / float64(n)
	}
	return m
}

// Numbers returns the ordered index of a number property.
func (x *Index) Numbers(prop string) (*avl.Tree, bool) {
	t, ok := x.numbers[prop]
	return t, ok
}

// Bools returns the documents whose boolean property prop holds v.
func (x *Index) Bools(prop string, v bool) (map[string]struct{}, bool) {
	b, ok := x.bools[prop]
	if !ok {
		return nil, false
	}
	return b.set(v), true
}

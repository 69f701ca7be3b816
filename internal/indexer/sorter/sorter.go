// Package sorter keeps, for every sortable property, the documents ordered by
// that property's value. Inserts append to a log; the log is stable-sorted
// lazily the first time an ordering is needed after a mutation.
package sorter

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/collate"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

type Order string

const (
	Asc  Order = "ASC"
	Desc Order = "DESC"
)

// By names the property to order results by.
type By struct {
	Property string `json:"property"`
	Order    Order  `json:"order,omitempty"`
}

type Config struct {
	Disabled             bool
	UnsortableProperties []string
	// Language selects the collation for string properties. Documents
	// indexed in other languages are still ordered by it.
	Language string
}

// Entry is one document and its value in the append log.
type Entry struct {
	ID    string `json:"id"`
	Value any    `json:"v"`
}

type property struct {
	typ      schema.Type
	language string
	docs     map[string]int
	ordered  []Entry
	sorted   bool
}

// Sorter is mutated by a single writer. Lazy sorting may run while readers
// share the index, so it is serialized by mu.
type Sorter struct {
	enabled    bool
	properties []string
	sorts      map[string]*property

	mu        sync.Mutex
	collators map[string]*collate.Collator
}

// New derives the sortable properties from s: every scalar string, number and
// boolean leaf not listed as unsortable. Arrays and enums are never sortable.
func New(s schema.Schema, cfg Config) *Sorter {
	st := &Sorter{
		enabled:   !cfg.Disabled,
		sorts:     make(map[string]*property),
		collators: make(map[string]*collate.Collator),
	}
	if !st.enabled {
		return st
	}
	denied := make(map[string]struct{}, len(cfg.UnsortableProperties))
	for _, p := range cfg.UnsortableProperties {
		denied[p] = struct{}{}
	}
	for path, typ := range s.Flatten() {
		if _, skip := denied[path]; skip {
			continue
		}
		if !isDeniedParent(path, denied) && sortable(typ) {
			st.sorts[path] = &property{typ: typ, language: cfg.Language, docs: make(map[string]int), sorted: true}
			st.properties = append(st.properties, path)
		}
	}
	sort.Strings(st.properties)
	return st
}

func sortable(t schema.Type) bool {
	return t == schema.String || t == schema.Number || t == schema.Boolean
}

// isDeniedParent reports whether an ancestor object of path is unsortable.
func isDeniedParent(path string, denied map[string]struct{}) bool {
	for i := strings.LastIndexByte(path, '.'); i > 0; i = strings.LastIndexByte(path[:i], '.') {
		if _, ok := denied[path[:i]]; ok {
			return true
		}
	}
	return false
}

func (s *Sorter) Enabled() bool {
	return s.enabled
}

// Properties lists the sortable properties; empty when sorting is disabled.
func (s *Sorter) Properties() []string {
	return append([]string(nil), s.properties...)
}

func (s *Sorter) PropertyType(prop string) (schema.Type, bool) {
	p, ok := s.sorts[prop]
	if !ok {
		return "", false
	}
	return p.typ, true
}

// Insert appends the value of prop for document id. Unknown properties and a
// disabled sorter ignore the call.
func (s *Sorter) Insert(prop, id string, value any) {
	p, ok := s.sorts[prop]
	if !s.enabled || !ok {
		return
	}
	if p.typ == schema.Number {
		if f, ok := schema.ToFloat(value); ok {
			value = f
		}
	}
	p.sorted = false
	p.docs[id] = len(p.ordered)
	p.ordered = append(p.ordered, Entry{ID: id, Value: value})
}

// Remove deletes id from prop, shifting later positions down by one.
func (s *Sorter) Remove(prop, id string) {
	p, ok := s.sorts[prop]
	if !s.enabled || !ok {
		return
	}
	pos, ok := p.docs[id]
	if !ok {
		return
	}
	delete(p.docs, id)
	for i := pos + 1; i < len(p.ordered); i++ {
		p.docs[p.ordered[i].ID]--
	}
	p.ordered = append(p.ordered[:pos], p.ordered[pos+1:]...)
}

// EnsureSorted sorts prop if it changed since the last sort.
func (s *Sorter) EnsureSorted(prop string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureSorted(prop)
}

func (s *Sorter) ensureSorted(prop string) {
	p, ok := s.sorts[prop]
	if !ok || p.sorted {
		return
	}
	var less func(a, b any) bool
	switch p.typ {
	case schema.String:
		c := s.collator(p.language)
		less = func(a, b any) bool {
			as, _ := a.(string)
			bs, _ := b.(string)
			return c.CompareString(as, bs) < 0
		}
	case schema.Number:
		less = func(a, b any) bool {
			af, _ := schema.ToFloat(a)
			bf, _ := schema.ToFloat(b)
			return af < bf
		}
	case schema.Boolean:
		less = func(a, b any) bool {
			ab, _ := a.(bool)
			bb, _ := b.(bool)
			return ab && !bb
		}
	}
	sort.SliceStable(p.ordered, func(i, j int) bool {
		return less(p.ordered[i].Value, p.ordered[j].Value)
	})
	for i, e := range p.ordered {
		p.docs[e.ID] = i
	}
	p.sorted = true
}

func (s *Sorter) EnsureAllSorted() {
	for _, prop := range s.properties {
		s.EnsureSorted(prop)
	}
}

// SortBy orders docs by the indexed position of each document under
// by.Property. Documents with no value for the property keep their relative
// order and go last in both directions.
func (s *Sorter) SortBy(docs []ranker.ScoredDoc, by By) ([]ranker.ScoredDoc, error) {
	if !s.enabled {
		return nil, apperrors.Config(apperrors.ErrSortDisabled, "cannot sort by %q", by.Property)
	}
	p, ok := s.sorts[by.Property]
	if !ok {
		return nil, apperrors.Config(apperrors.ErrUnknownSortField,
			"%q is not one of [%s]", by.Property, strings.Join(s.properties, ", "))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureSorted(by.Property)
	desc := strings.EqualFold(string(by.Order), string(Desc))

	sort.SliceStable(docs, func(i, j int) bool {
		pi, iok := p.docs[docs[i].DocID]
		pj, jok := p.docs[docs[j].DocID]
		switch {
		case !iok:
			return false
		case !jok:
			return true
		case desc:
			return pi > pj
		default:
			return pi < pj
		}
	})
	return docs, nil
}

// collator must be called with mu held.
func (s *Sorter) collator(lang string) *collate.Collator {
	c, ok := s.collators[lang]
	if !ok {
		c = collate.New(tokenizer.Tag(lang))
		s.collators[lang] = c
	}
	return c
}

// Data is the serializable state of a Sorter.
type Data struct {
	Enabled    bool                    `json:"enabled"`
	Properties map[string]PropertyData `json:"properties,omitempty"`
}

type PropertyData struct {
	Type     schema.Type    `json:"type"`
	Language string         `json:"language,omitempty"`
	Docs     map[string]int `json:"docs"`
	Ordered  []Entry        `json:"ordered"`
	Sorted   bool           `json:"sorted"`
}

// Save sorts every property and returns a copy of the sorter's state.
func (s *Sorter) Save() Data {
	d := Data{Enabled: s.enabled}
	if !s.enabled {
		return d
	}
	s.EnsureAllSorted()
	d.Properties = make(map[string]PropertyData, len(s.sorts))
	for name, p := range s.sorts {
		docs := make(map[string]int, len(p.docs))
		for id, pos := range p.docs {
			docs[id] = pos
		}
		d.Properties[name] = PropertyData{
			Type:     p.typ,
			Language: p.language,
			Docs:     docs,
			Ordered:  append([]Entry(nil), p.ordered...),
			Sorted:   p.sorted,
		}
	}
	return d
}

// Load rebuilds a Sorter from Save output.
func Load(d Data) *Sorter {
	s := &Sorter{
		enabled:   d.Enabled,
		sorts:     make(map[string]*property, len(d.Properties)),
		collators: make(map[string]*collate.Collator),
	}
	for name, pd := range d.Properties {
		p := &property{
			typ:      pd.Type,
			language: pd.Language,
			docs:     make(map[string]int, len(pd.Docs)),
			ordered:  append([]Entry(nil), pd.Ordered...),
			sorted:   pd.Sorted,
		}
		for id, pos := range pd.Docs {
			p.docs[id] = pos
		}
		for i := range p.ordered {
			if p.typ == schema.Number {
				if f, ok := schema.ToFloat(p.ordered[i].Value); ok {
					p.ordered[i].Value = f
				}
			}
		}
		s.sorts[name] = p
		s.properties = append(s.properties, name)
	}
	sort.Strings(s.properties)
	return s
}

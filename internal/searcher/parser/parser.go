// Package parser validates search parameters against a collection and turns
// them into a QueryPlan. Every configuration problem is reported here, before
// an index is read.
package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/sorter"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/facets"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

const DefaultLimit = 10

type Op string

const (
	OpGT      Op = "gt"
	OpGTE     Op = "gte"
	OpLT      Op = "lt"
	OpLTE     Op = "lte"
	OpEQ      Op = "eq"
	OpBetween Op = "between"
)

// Params is a search request as callers express it.
//
// Where maps a property to its condition: a boolean for boolean properties,
// or an object holding exactly one operator for number properties, such as
// {"gt": 40} or {"between": [10, 20]}.
type Params struct {
	Term       string                       `json:"term"`
	Properties []string                     `json:"properties,omitempty"`
	Exact      bool                         `json:"exact,omitempty"`
	Tolerance  int                          `json:"tolerance,omitempty"`
	Where      map[string]any               `json:"where,omitempty"`
	SortBy     *sorter.By                   `json:"sortBy,omitempty"`
	Facets     map[string]facets.Definition `json:"facets,omitempty"`
	Boost      map[string]float64           `json:"boost,omitempty"`
	Limit      int                          `json:"limit,omitempty"`
	Offset     int                          `json:"offset,omitempty"`
	Language   string                       `json:"language,omitempty"`
}

// Catalog describes what a collection can answer.
type Catalog interface {
	SearchableProperties() []string
	IndexedType(prop string) (schema.Type, bool)
	SchemaTypes() map[string]schema.Type
	SortableProperties() []string
	SortEnabled() bool
	SupportsLanguage(language string) bool
}

type Filter struct {
	Property string
	Op       Op
	Value    float64
	Max      float64
	Bool     bool
}

type QueryPlan struct {
	Term       string
	Properties []string
	Exact      bool
	Tolerance  int
	Filters    []Filter
	SortBy     *sorter.By
	Facets     map[string]facets.Definition
	Boost      map[string]float64
	Limit      int
	Offset     int
	Language   string
}

func Build(p Params, c Catalog) (*QueryPlan, error) {
	plan := &QueryPlan{
		Term:      strings.TrimSpace(p.Term),
		Exact:     p.Exact,
		Tolerance: p.Tolerance,
		SortBy:    p.SortBy,
		Facets:    p.Facets,
		Boost:     p.Boost,
		Limit:     p.Limit,
		Offset:    p.Offset,
		Language:  p.Language,
	}

	if p.Limit < 0 || p.Offset < 0 {
		return nil, apperrors.Config(apperrors.ErrInvalidInput, "limit and offset must not be negative")
	}
	if plan.Limit == 0 {
		plan.Limit = DefaultLimit
	}
	if p.Tolerance < 0 {
		return nil, apperrors.Config(apperrors.ErrInvalidInput, "tolerance must not be negative")
	}
	if p.Language != "" && !c.SupportsLanguage(p.Language) {
		return nil, apperrors.Config(apperrors.ErrUnsupportedLanguage, "language %q", p.Language)
	}

	props, err := searchProperties(p.Properties, c)
	if err != nil {
		return nil, err
	}
	plan.Properties = props

	for prop := range p.Boost {
		if !contains(c.SearchableProperties(), prop) {
			return nil, apperrors.Config(apperrors.ErrUnknownProperty, "boost on %q", prop)
		}
	}

	if plan.Filters, err = buildFilters(p.Where, c); err != nil {
		return nil, err
	}

	if p.SortBy != nil {
		if !c.SortEnabled() {
			return nil, apperrors.Config(apperrors.ErrSortDisabled, "cannot sort by %q", p.SortBy.Property)
		}
		if !contains(c.SortableProperties(), p.SortBy.Property) {
			return nil, apperrors.Config(apperrors.ErrUnknownSortField,
				"%q is not one of [%s]", p.SortBy.Property, strings.Join(c.SortableProperties(), ", "))
		}
		order := strings.ToUpper(string(p.SortBy.Order))
		if order != "" && order != string(sorter.Asc) && order != string(sorter.Desc) {
			return nil, apperrors.Config(apperrors.ErrUnknownSortField, "order %q", p.SortBy.Order)
		}
	}

	if len(p.Facets) > 0 {
		if err := facets.Validate(p.Facets, c.SchemaTypes()); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

func searchProperties(requested []string, c Catalog) ([]string, error) {
	all := c.SearchableProperties()
	if len(requested) == 0 {
		return all, nil
	}
	out := make([]string, 0, len(requested))
	for _, prop := range requested {
		if !contains(all, prop) {
			return nil, apperrors.Config(apperrors.ErrUnknownProperty,
				"%q is not a searchable property", prop)
		}
		if !contains(out, prop) {
			out = append(out, prop)
		}
	}
	return out, nil
}

func buildFilters(where map[string]any, c Catalog) ([]Filter, error) {
	props := make([]string, 0, len(where))
	for prop := range where {
		props = append(props, prop)
	}
	sort.Strings(props)

	filters := make([]Filter, 0, len(props))
	for _, prop := range props {
		typ, ok := c.IndexedType(prop)
		if !ok {
			return nil, apperrors.Config(apperrors.ErrUnknownProperty, "where on %q", prop)
		}
		cond := where[prop]
		switch typ.Elem() {
		case schema.Boolean:
			b, ok := cond.(bool)
			if !ok {
				return nil, apperrors.Config(apperrors.ErrInvalidFilter, "%q expects a boolean", prop)
			}
			filters = append(filters, Filter{Property: prop, Op: OpEQ, Bool: b})
		case schema.Number:
			f, err := numberFilter(prop, cond)
			if err != nil {
				return nil, err
			}
			filters = append(filters, f)
		default:
			return nil, apperrors.Config(apperrors.ErrInvalidFilter, "cannot filter on %s property %q", typ, prop)
		}
	}
	return filters, nil
}

func numberFilter(prop string, cond any) (Filter, error) {
	ops, ok := cond.(map[string]any)
	if !ok {
		return Filter{}, apperrors.Config(apperrors.ErrInvalidFilter, "%q expects an operator object", prop)
	}
	if len(ops) != 1 {
		return Filter{}, apperrors.Config(apperrors.ErrInvalidFilter,
			"%q must have exactly one operator, got %d", prop, len(ops))
	}
	for name, raw := range ops {
		f := Filter{Property: prop, Op: Op(name)}
		switch f.Op {
		case OpGT, OpGTE, OpLT, OpLTE, OpEQ:
			v, ok := schema.ToFloat(raw)
			if !ok {
				return Filter{}, apperrors.Config(apperrors.ErrInvalidFilter, "%q %s expects a number", prop, name)
			}
			f.Value = v
		case OpBetween:
			bounds := schema.Items(raw)
			if len(bounds) != 2 {
				return Filter{}, apperrors.Config(apperrors.ErrInvalidFilter, "%q between expects [min, max]", prop)
			}
			lo, ok1 := schema.ToFloat(bounds[0])
			hi, ok2 := schema.ToFloat(bounds[1])
			if !ok1 || !ok2 {
				return Filter{}, apperrors.Config(apperrors.ErrInvalidFilter, "%q between expects numbers", prop)
			}
			f.Value, f.Max = lo, hi
		default:
			return Filter{}, apperrors.Config(apperrors.ErrInvalidFilter, "unknown operator %q on %q", name, prop)
		}
		return f, nil
	}
	panic(fmt.Sprintf("parser: no operator for %q", prop))
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// Package facets aggregates the documents of a result set into buckets:
// declared numeric ranges for number properties, and one bucket per distinct
// value for string, enum and boolean properties.
package facets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

const DefaultLimit = 10

type Range struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

func (r Range) Label() string {
	return strconv.FormatFloat(r.From, 'f', -1, 64) + "-" + strconv.FormatFloat(r.To, 'f', -1, 64)
}

func (r Range) contains(v float64) bool {
	return v >= r.From && v <= r.To
}

// Definition configures one facet. Ranges apply to number properties; the
// remaining fields to value facets.
type Definition struct {
	Ranges []Range `json:"ranges,omitempty"`
	Limit  int     `json:"limit,omitempty"`
	Offset int     `json:"offset,omitempty"`
	Sort   string  `json:"sort,omitempty"`
}

type Bucket struct {
	Label string
	Count int
}

// Result holds the buckets of one facet. Count is the number of distinct
// buckets before Offset and Limit were applied.
type Result struct {
	Count  int
	Values []Bucket
}

// MarshalJSON renders values as an object whose key order is the bucket
// order.
func (r Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"count":`)
	buf.WriteString(strconv.Itoa(r.Count))
	buf.WriteString(`,"values":{`)
	for i, b := range r.Values {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(b.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(b.Count))
	}
	buf.WriteString(`}}`)
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the MarshalJSON form back, keeping the key order of
// values as the bucket order.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw struct {
		Count  int             `json:"count"`
		Values json.RawMessage `json:"values"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Count = raw.Count
	r.Values = nil
	if len(raw.Values) == 0 || string(raw.Values) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw.Values))
	if tok, err := dec.Token(); err != nil {
		return err
	} else if tok != json.Delim('{') {
		return fmt.Errorf("facet values: expected object, got %v", tok)
	}
	r.Values = []Bucket{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		label, _ := tok.(string)
		var count int
		if err := dec.Decode(&count); err != nil {
			return fmt.Errorf("facet value %q: %w", label, err)
		}
		r.Values = append(r.Values, Bucket{Label: label, Count: count})
	}
	_, err := dec.Token()
	return err
}

// Validate checks every definition against the property types before any
// document is read.
func Validate(defs map[string]Definition, types map[string]schema.Type) error {
	for prop, def := range defs {
		typ, ok := types[prop]
		if !ok {
			return apperrors.Config(apperrors.ErrUnsupportedFacet, "unknown property %q", prop)
		}
		switch typ.Elem() {
		case schema.Number:
			if len(def.Ranges) == 0 {
				return apperrors.Config(apperrors.ErrUnsupportedFacet, "number facet %q needs ranges", prop)
			}
			for _, r := range def.Ranges {
				if r.From > r.To {
					return apperrors.Config(apperrors.ErrUnsupportedFacet, "range %s of %q is empty", r.Label(), prop)
				}
			}
		case schema.String, schema.Enum, schema.Boolean:
		default:
			return apperrors.Config(apperrors.ErrUnsupportedFacet, "property %q of type %s", prop, typ)
		}
		if def.Sort != "" && !strings.EqualFold(def.Sort, "asc") && !strings.EqualFold(def.Sort, "desc") {
			return apperrors.Config(apperrors.ErrUnsupportedFacet, "sort %q of %q", def.Sort, prop)
		}
		if def.Limit < 0 || def.Offset < 0 {
			return apperrors.Config(apperrors.ErrUnsupportedFacet, "negative limit or offset for %q", prop)
		}
	}
	return nil
}

// Compute aggregates docs. A document contributes at most one count to each
// bucket: a single number counts toward the first declared range holding it,
// an array toward every range one of its values falls in.
func Compute(docs []schema.Document, types map[string]schema.Type, defs map[string]Definition) (map[string]Result, error) {
	if err := Validate(defs, types); err != nil {
		return nil, err
	}
	out := make(map[string]Result, len(defs))
	for prop, def := range defs {
		typ := types[prop]
		if typ.Elem() == schema.Number {
			out[prop] = numberFacet(docs, prop, typ, def)
		} else {
			out[prop] = valueFacet(docs, prop, typ, def)
		}
	}
	return out, nil
}

func numberFacet(docs []schema.Document, prop string, typ schema.Type, def Definition) Result {
	counts := make([]int, len(def.Ranges))
	for _, doc := range docs {
		v, ok := schema.GetNested(doc, prop)
		if !ok {
			continue
		}
		if !typ.IsArray() {
			f, ok := schema.ToFloat(v)
			if !ok {
				continue
			}
			for i, r := range def.Ranges {
				if r.contains(f) {
					counts[i]++
					break
				}
			}
			continue
		}
		hit := make([]bool, len(def.Ranges))
		for _, item := range schema.Items(v) {
			f, ok := schema.ToFloat(item)
			if !ok {
				continue
			}
			for i, r := range def.Ranges {
				if r.contains(f) {
					hit[i] = true
				}
			}
		}
		for i, h := range hit {
			if h {
				counts[i]++
			}
		}
	}

	res := Result{Values: make([]Bucket, 0, len(def.Ranges))}
	seen := make(map[string]int, len(def.Ranges))
	for i, r := range def.Ranges {
		label := r.Label()
		if j, dup := seen[label]; dup {
			res.Values[j].Count += counts[i]
			continue
		}
		seen[label] = len(res.Values)
		res.Values = append(res.Values, Bucket{Label: label, Count: counts[i]})
	}
	res.Count = len(res.Values)
	return res
}

func valueFacet(docs []schema.Document, prop string, typ schema.Type, def Definition) Result {
	counts := make(map[string]int)
	for _, doc := range docs {
		v, ok := schema.GetNested(doc, prop)
		if !ok {
			continue
		}
		if !typ.IsArray() {
			counts[label(v)]++
			continue
		}
		seen := make(map[string]struct{})
		for _, item := range schema.Items(v) {
			l := label(item)
			if _, dup := seen[l]; dup {
				continue
			}
			seen[l] = struct{}{}
			counts[l]++
		}
	}

	buckets := make([]Bucket, 0, len(counts))
	for l, c := range counts {
		buckets = append(buckets, Bucket{Label: l, Count: c})
	}
	asc := strings.EqualFold(def.Sort, "asc")
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			if asc {
				return buckets[i].Count < buckets[j].Count
			}
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Label < buckets[j].Label
	})

	limit := def.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	start := min(def.Offset, len(buckets))
	end := min(start+limit, len(buckets))
	return Result{Count: len(buckets), Values: buckets[start:end]}
}

func label(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	}
	if f, ok := schema.ToFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

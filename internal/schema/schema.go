// Package schema describes the shape of the documents a collection accepts
// and validates documents against it.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Type string

const (
	String       Type = "string"
	Number       Type = "number"
	Boolean      Type = "boolean"
	Enum         Type = "enum"
	StringArray  Type = "string[]"
	NumberArray  Type = "number[]"
	BooleanArray Type = "boolean[]"
	EnumArray    Type = "enum[]"
)

func (t Type) Valid() bool {
	switch t {
	case String, Number, Boolean, Enum, StringArray, NumberArray, BooleanArray, EnumArray:
		return true
	}
	return false
}

func (t Type) IsArray() bool {
	return strings.HasSuffix(string(t), "[]")
}

// Elem returns the scalar type of an array type, or t itself.
func (t Type) Elem() Type {
	return Type(strings.TrimSuffix(string(t), "[]"))
}

// Document is a decoded JSON object.
type Document = map[string]any

// Property is either a leaf with a Type or a nested object with Fields.
type Property struct {
	Type   Type
	Fields Schema
}

// Schema maps property names to their definitions.
type Schema map[string]Property

// Validator checks a document against a schema and returns the dot path of
// the first offending property.
type Validator interface {
	Validate(doc Document, s Schema) (string, bool)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(doc Document, s Schema) (string, bool)

func (f ValidatorFunc) Validate(doc Document, s Schema) (string, bool) {
	return f(doc, s)
}

// DefaultValidator checks types only. Properties absent from the document, or
// not declared in the schema, are accepted.
var DefaultValidator Validator = ValidatorFunc(Validate)

// Parse reads a schema from YAML (or JSON, which is valid YAML). Leaves are
// type names; mappings are nested objects.
func Parse(data []byte) (Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	if len(s) == 0 {
		return nil, fmt.Errorf("parsing schema: no properties declared")
	}
	return s, nil
}

func LoadFile(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file %s: %w", path, err)
	}
	return Parse(data)
}

func (p *Property) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		t := Type(node.Value)
		if !t.Valid() {
			return fmt.Errorf("line %d: unknown property type %q", node.Line, node.Value)
		}
		p.Type = t
		return nil
	case yaml.MappingNode:
		var fields Schema
		if err := node.Decode(&fields); err != nil {
			return err
		}
		p.Fields = fields
		return nil
	}
	return fmt.Errorf("line %d: property must be a type name or an object", node.Line)
}

func (p Property) MarshalJSON() ([]byte, error) {
	if p.Fields != nil {
		return json.Marshal(p.Fields)
	}
	return json.Marshal(p.Type)
}

func (p *Property) UnmarshalJSON(data []byte) error {
	var t Type
	if err := json.Unmarshal(data, &t); err == nil {
		if !t.Valid() {
			return fmt.Errorf("unknown property type %q", t)
		}
		p.Type = t
		return nil
	}
	return json.Unmarshal(data, &p.Fields)
}

// Flatten returns every leaf property keyed by its dot path.
func (s Schema) Flatten() map[string]Type {
	out := make(map[string]Type)
	s.flatten("", out)
	return out
}

func (s Schema) flatten(prefix string, out map[string]Type) {
	for name, p := range s {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if p.Fields != nil {
			p.Fields.flatten(path, out)
			continue
		}
		out[path] = p.Type
	}
}

// Paths lists the leaf dot paths in lexical order.
func (s Schema) Paths() []string {
	flat := s.Flatten()
	paths := make([]string, 0, len(flat))
	for p := range flat {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Validate reports the dot path of the first property whose value does not
// match its declared type, visiting properties in lexical order.
func Validate(doc Document, s Schema) (string, bool) {
	return validate(doc, s, "")
}

func validate(doc Document, s Schema, prefix string) (string, bool) {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := s[name]
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		v, ok := doc[name]
		if !ok || v == nil {
			continue
		}
		if p.Fields != nil {
			nested, ok := v.(map[string]any)
			if !ok {
				return path, false
			}
			if bad, ok := validate(nested, p.Fields, path); !ok {
				return bad, false
			}
			continue
		}
		if !Matches(p.Type, v) {
			return path, false
		}
	}
	return "", true
}

// Matches reports whether v is a valid value of type t.
func Matches(t Type, v any) bool {
	if t.IsArray() {
		items, ok := v.([]any)
		if !ok {
			return matchesTypedSlice(t.Elem(), v)
		}
		for _, item := range items {
			if !Matches(t.Elem(), item) {
				return false
			}
		}
		return true
	}
	switch t {
	case String:
		_, ok := v.(string)
		return ok
	case Number:
		_, ok := ToFloat(v)
		return ok
	case Boolean:
		_, ok := v.(bool)
		return ok
	case Enum:
		if _, ok := v.(string); ok {
			return true
		}
		_, ok := ToFloat(v)
		return ok
	}
	return false
}

func matchesTypedSlice(elem Type, v any) bool {
	switch v.(type) {
	case []string:
		return elem == String || elem == Enum
	case []float64, []int, []int64:
		return elem == Number || elem == Enum
	case []bool:
		return elem == Boolean
	}
	return false
}

// ToFloat converts the numeric kinds a decoded or hand-built document may
// carry.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Items returns the elements of an array value as []any.
func Items(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	case []float64:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	case []int:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	case []int64:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	case []bool:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	}
	return nil
}

// GetNested resolves a dot path inside doc.
func GetNested(doc Document, path string) (any, bool) {
	cur := any(doc)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// Clone deep-copies doc: nested objects and arrays are copied, scalars
// shared. A nil doc stays nil.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return Clone(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(x)
	case []float64:
		return slices.Clone(x)
	case []int:
		return slices.Clone(x)
	case []int64:
		return slices.Clone(x)
	case []bool:
		return slices.Clone(x)
	}
	return v
}

package index

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/radix"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

var testSchema = schema.Schema{
	"quote":  {Type: schema.String},
	"tags":   {Type: schema.StringArray},
	"price":  {Type: schema.Number},
	"sizes":  {Type: schema.NumberArray},
	"onSale": {Type: schema.Boolean},
	"kind":   {Type: schema.Enum},
	"meta":   {Fields: schema.Schema{"author": {Type: schema.String}}},
}

func newTestIndex(t *testing.T) (*Index, tokenizer.Tokenizer) {
	t.Helper()
	return New(testSchema), tokenizer.Must(tokenizer.Config{})
}

func insert(t *testing.T, x *Index, tok tokenizer.Tokenizer, id string, doc map[string]any) {
	t.Helper()
	x.Track(id)
	for prop, v := range doc {
		require.NoError(t, x.Insert(prop, id, v, "", tok))
	}
}

func TestProperties(t *testing.T) {
	x, _ := newTestIndex(t)
	assert.Equal(t, []string{"meta.author", "onSale", "price", "quote", "sizes", "tags"}, x.Properties())
	assert.Equal(t, []string{"meta.author", "quote", "tags"}, x.SearchableProperties())

	_, ok := x.PropertyType("kind")
	assert.False(t, ok, "enums are not indexed")
}

func TestInsertAndFind(t *testing.T) {
	x, tok := newTestIndex(t)
	insert(t, x, tok, "1", map[string]any{"quote": "the quick brown fox"})
	insert(t, x, tok, "2", map[string]any{"quote": "the lazy dog"})

	assert.Equal(t, map[string][]string{"quick": {"1"}}, x.Find("quote", radix.FindParams{Term: "quick", Exact: true}))
	assert.Equal(t, map[string][]string{"the": {"1", "2"}}, x.Find("quote", radix.FindParams{Term: "the"}))
	assert.Nil(t, x.Find("price", radix.FindParams{Term: "1"}))
}

func TestStatistics(t *testing.T) {
	x, tok := newTestIndex(t)
	insert(t, x, tok, "1", map[string]any{"quote": "to be or not to be"})
	insert(t, x, tok, "2", map[string]any{"quote": "be quick"})

	m := x.Match("quote", "be", "1")
	assert.Equal(t, 2, m.TermFrequency)
	assert.Equal(t, 6, m.FieldLength)
	assert.Equal(t, 4.0, m.AvgFieldLength)
	assert.Equal(t, 2, m.DocsWithTerm)
	assert.Equal(t, 2, m.TotalDocs)
}

func TestArraysAndFilters(t *testing.T) {
	x, tok := newTestIndex(t)
	insert(t, x, tok, "1", map[string]any{"tags": []any{"red shoes", "sale"}, "sizes": []any{40.0, 42.0}, "onSale": true, "price": 30})
	insert(t, x, tok, "2", map[string]any{"tags": []string{"blue"}, "sizes": []float64{42}, "onSale": false, "price": 80.5})

	assert.Contains(t, x.Find("tags", radix.FindParams{Term: "sale"}), "sale")
	nums, ok := x.Numbers("sizes")
	require.True(t, ok)
	assert.Equal(t, []string{"1", "2"}, nums.Find(42))

	prices, _ := x.Numbers("price")
	assert.Equal(t, []string{"2"}, prices.GreaterThan(40, false))

	on, ok := x.Bools("onSale", true)
	require.True(t, ok)
	assert.Equal(t, map[string]struct{}{"1": {}}, on)
}

func TestInsertRejectsWrongTypes(t *testing.T) {
	x, tok := newTestIndex(t)
	err := x.Insert("price", "1", "cheap", "", tok)
	assert.True(t, errors.Is(err, apperrors.ErrSchemaMismatch))

	err = x.Insert("nope", "1", "x", "", tok)
	assert.True(t, errors.Is(err, apperrors.ErrUnknownProperty))
}

func TestRemoveReversesInsert(t *testing.T) {
	x, tok := newTestIndex(t)
	doc := map[string]any{"quote": "quick quick fox", "price": 10.0, "onSale": true, "tags": []any{"fox"}}
	insert(t, x, tok, "1", doc)
	insert(t, x, tok, "2", map[string]any{"quote": "slow fox"})

	for prop, v := range doc {
		require.NoError(t, x.Remove(prop, "1", v, "", tok))
	}
	x.Untrack("1")

	assert.Empty(t, x.Find("quote", radix.FindParams{Term: "quick"}))
	assert.Equal(t, map[string][]string{"fox": {"2"}}, x.Find("quote", radix.FindParams{Term: "fox"}))
	assert.Empty(t, x.Find("tags", radix.FindParams{Term: "fox"}))
	prices, _ := x.Numbers("price")
	assert.Zero(t, prices.Len())
	on, _ := x.Bools("onSale", true)
	assert.Empty(t, on)

	m := x.Match("quote", "fox", "2")
	assert.Equal(t, 2.0, m.AvgFieldLength)
	assert.Equal(t, 1, m.TotalDocs)
	assert.Equal(t, []string{"2"}, x.DocIDs())
}

func TestSequence(t *testing.T) {
	x, _ := newTestIndex(t)
	x.Track("b")
	x.Track("a")
	x.Track("b")

	assert.Less(t, x.Seq("b"), x.Seq("a"))
	assert.Equal(t, []string{"b", "a"}, x.DocIDs())
	assert.Greater(t, x.Seq("missing"), x.Seq("a"))
}

func TestSaveLoad(t *testing.T) {
	x, tok := newTestIndex(t)
	insert(t, x, tok, "1", map[string]any{"quote": "the quick brown fox", "price": 10.0, "onSale": true})
	insert(t, x, tok, "2", map[string]any{"quote": "the lazy dog"})
	require.NoError(t, x.Insert("meta.author", "2", "Ann", "", tok))

	raw, err := json.Marshal(x.Save())
	require.NoError(t, err)
	var d Data
	require.NoError(t, json.Unmarshal(raw, &d))
	loaded, err := Load(d)
	require.NoError(t, err)

	assert.Equal(t, x.Properties(), loaded.Properties())
	assert.Equal(t, x.Find("quote", radix.FindParams{Term: "th"}), loaded.Find("quote", radix.FindParams{Term: "th"}))
	assert.Equal(t, x.Match("quote", "the", "2"), loaded.Match("quote", "the", "2"))
	assert.Equal(t, x.DocIDs(), loaded.DocIDs())

	loaded.Track("3")
	assert.Equal(t, uint64(2), loaded.Seq("3"))
}

func TestLoadRejectsUnknownProperties(t *testing.T) {
	_, err := Load(Data{Types: map[string]schema.Type{"a": "date"}})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidSnapshot))

	_, err = Load(Data{Radix: map[string][]radix.Entry{"missing": nil}})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidSnapshot))
}

package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/radix"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/sorter"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/facets"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

func newEngine(t *testing.T, s schema.Schema, opts ...func(*Options)) *Engine {
	t.Helper()
	o := Options{Schema: s}
	for _, fn := range opts {
		fn(&o)
	}
	e, err := New(o)
	require.NoError(t, err)
	return e
}

func search(t *testing.T, e *Engine, p parser.Params) *executor.SearchResult {
	t.Helper()
	res, err := e.Search(context.Background(), p)
	require.NoError(t, err)
	return res
}

func ids(r *executor.SearchResult) []string {
	out := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		out[i] = h.ID
	}
	return out
}

var quoteSchema = schema.Schema{"quote": {Type: schema.String}}

func TestSearchFindsInsertedQuote(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, quoteSchema)
	_, err := e.Insert(ctx, schema.Document{"quote": "the quick brown fox"}, "")
	require.NoError(t, err)
	_, err = e.Insert(ctx, schema.Document{"quote": "the lazy dog"}, "")
	require.NoError(t, err)

	res := search(t, e, parser.Params{Term: "quick"})
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "the quick brown fox", res.Hits[0].Document["quote"])
}

func TestPaginationFollowsInsertionOrderOnTies(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, schema.Schema{"animal": {Type: schema.String}})
	for _, a := range []string{"fox", "dog", "fish", "cat", "frog", "ferret"} {
		_, err := e.Insert(ctx, schema.Document{"animal": a}, "")
		require.NoError(t, err)
	}

	res := search(t, e, parser.Params{Term: "f", Limit: 1, Offset: 2})
	assert.Equal(t, 4, res.Count)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "frog", res.Hits[0].Document["animal"])

	res = search(t, e, parser.Params{Term: "f", Offset: 10})
	assert.Equal(t, 4, res.Count)
	assert.Empty(t, res.Hits)
}

func TestRemovedDocumentIsNotFound(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, quoteSchema)
	id, err := e.Insert(ctx, schema.Document{"quote": "zebras gallop quietly"}, "")
	require.NoError(t, err)
	_, err = e.Insert(ctx, schema.Document{"quote": "horses gallop"}, "")
	require.NoError(t, err)

	removed, err := e.Remove(ctx, id)
	require.NoError(t, err)
	assert.True(t, removed)

	for _, term := range []string{"zebras", "quietly", "zeb"} {
		assert.Zero(t, search(t, e, parser.Params{Term: term}).Count, term)
	}
	assert.Equal(t, 1, search(t, e, parser.Params{Term: "gallop"}).Count)
	assert.Empty(t, e.index.Find("quote", radix.FindParams{Term: "zebras", Exact: true}))

	n, err := e.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRemoveUnknownIsSoft(t *testing.T) {
	e := newEngine(t, quoteSchema)
	removed, err := e.Remove(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestNumericFacetRanges(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, schema.Schema{"rating": {Type: schema.Number}})
	_, err := e.InsertMultiple(ctx, []schema.Document{{"rating": 3}, {"rating": 5}}, "")
	require.NoError(t, err)

	res := search(t, e, parser.Params{Facets: map[string]facets.Definition{
		"rating": {Ranges: []facets.Range{{From: 0, To: 4}, {From: 4, To: 5}}},
	}})
	assert.Equal(t, []facets.Bucket{{Label: "0-4", Count: 1}, {Label: "4-5", Count: 1}}, res.Facets["rating"].Values)
}

func TestTypoTolerance(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, quoteSchema)
	_, err := e.Insert(ctx, schema.Document{"quote": "fox"}, "")
	require.NoError(t, err)

	assert.Equal(t, 1, search(t, e, parser.Params{Term: "fx", Tolerance: 1}).Count)
	assert.Zero(t, search(t, e, parser.Params{Term: "fx", Tolerance: 0}).Count)
}

func TestMultipleOperatorsOnOneFieldFailBeforeSearch(t *testing.T) {
	e := newEngine(t, schema.Schema{"price": {Type: schema.Number}})
	_, err := e.Search(context.Background(), parser.Params{
		Where: map[string]any{"price": map[string]any{"gt": 40, "lte": 100}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidFilter))
	assert.True(t, apperrors.IsConfigError(err))
}

func TestInsertErrors(t *testing.T) {
	ctx := context.Background()
	s := schema.Schema{"title": {Type: schema.String}, "year": {Type: schema.Number}}

	tests := []struct {
		name string
		doc  schema.Document
		lang string
		want error
	}{
		{"schema mismatch", schema.Document{"title": 42}, "", apperrors.ErrSchemaMismatch},
		{"numeric id", schema.Document{"id": 7, "title": "x"}, "", apperrors.ErrInvalidDocumentID},
		{"empty id", schema.Document{"id": "", "title": "x"}, "", apperrors.ErrInvalidDocumentID},
		{"unknown language", schema.Document{"title": "x"}, "klingon", apperrors.ErrUnsupportedLanguage},
		{"nil document", nil, "", apperrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, s)
			_, err := e.Insert(ctx, tt.doc, tt.lang)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			n, _ := e.Count(ctx)
			assert.Zero(t, n)
			assert.Zero(t, e.index.DocCount())
		})
	}
}

func TestDuplicateIDLeavesIndexesUntouched(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, quoteSchema)
	_, err := e.Insert(ctx, schema.Document{"id": "a", "quote": "first words"}, "")
	require.NoError(t, err)

	_, err = e.Insert(ctx, schema.Document{"id": "a", "quote": "second phrase"}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrDuplicateID))
	assert.Equal(t, 409, apperrors.HTTPStatusCode(err))

	assert.Zero(t, search(t, e, parser.Params{Term: "second"}).Count)
	res := search(t, e, parser.Params{Term: "first"})
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "a", res.Hits[0].ID)
}

func TestGeneratedIDsArePerEngine(t *testing.T) {
	ctx := context.Background()
	a := newEngine(t, quoteSchema)
	b := newEngine(t, quoteSchema)

	id1, err := a.Insert(ctx, schema.Document{"quote": "one"}, "")
	require.NoError(t, err)
	id2, err := a.Insert(ctx, schema.Document{"quote": "two"}, "")
	require.NoError(t, err)
	id3, err := b.Insert(ctx, schema.Document{"quote": "three"}, "")
	require.NoError(t, err)

	assert.Equal(t, "1", id1)
	assert.Equal(t, "2", id2)
	assert.Equal(t, "1", id3)

	u := newEngine(t, quoteSchema, func(o *Options) { o.IDs = NewIDGenerator("uuid") })
	id, err := u.Insert(ctx, schema.Document{"quote": "four"}, "")
	require.NoError(t, err)
	assert.Len(t, id, 36)
}

func TestRemoveIgnoresEditsToInsertedDocument(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, schema.Schema{
		"quote": {Type: schema.String},
		"year":  {Type: schema.Number},
		"tags":  {Type: schema.StringArray},
	})
	doc := schema.Document{"quote": "alpha", "year": 1999, "tags": []any{"old"}}
	id, err := e.Insert(ctx, doc, "")
	require.NoError(t, err)

	_, err = e.Insert(ctx, schema.Document{"quote": "beta", "year": 2000}, "")
	require.NoError(t, err)

	doc["quote"] = "gamma"
	doc["year"] = 2024
	doc["tags"].([]any)[0] = "new"

	removed, err := e.Remove(ctx, id)
	require.NoError(t, err)
	require.True(t, removed)

	for _, term := range []string{"alpha", "old", "gamma"} {
		assert.Zero(t, search(t, e, parser.Params{Term: term}).Count, term)
	}
	assert.Zero(t, search(t, e, parser.Params{
		Where: map[string]any{"year": map[string]any{"eq": 1999}},
	}).Count)
	assert.Empty(t, e.index.Find("quote", radix.FindParams{Term: "alpha", Exact: true}))
	assert.Equal(t, 1, search(t, e, parser.Params{}).Count)
}

func TestUpdateFromFetchedDocument(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, quoteSchema)
	_, err := e.Insert(ctx, schema.Document{"id": "a", "quote": "alpha"}, "")
	require.NoError(t, err)

	doc, ok, err := e.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	doc["quote"] = "beta"

	stored, _, err := e.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", stored["quote"], "edits to a fetched document stay local")

	_, err = e.Update(ctx, "a", doc, "")
	require.NoError(t, err)
	assert.Zero(t, search(t, e, parser.Params{Term: "alpha"}).Count)
	res := search(t, e, parser.Params{Term: "beta"})
	require.Equal(t, []string{"a"}, ids(res))
	assert.Equal(t, "beta", res.Hits[0].Document["quote"])
}

func TestUpdateReplacesDocument(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, quoteSchema)
	_, err := e.Insert(ctx, schema.Document{"id": "q", "quote": "old saying"}, "")
	require.NoError(t, err)

	id, err := e.Update(ctx, "q", schema.Document{"id": "q", "quote": "new proverb"}, "")
	require.NoError(t, err)
	assert.Equal(t, "q", id)
	assert.Zero(t, search(t, e, parser.Params{Term: "saying"}).Count)
	assert.Equal(t, 1, search(t, e, parser.Params{Term: "proverb"}).Count)

	_, err = e.Update(ctx, "q", schema.Document{"quote": 1}, "")
	assert.True(t, errors.Is(err, apperrors.ErrSchemaMismatch))
	doc, ok, err := e.Get(ctx, "q")
	require.NoError(t, err)
	require.True(t, ok, "failed validation must not remove the old document")
	assert.Equal(t, "new proverb", doc["quote"])
}

func TestRemovalUsesInsertionLanguage(t *testing.T) {
	ctx := context.Background()
	tok, err := tokenizer.New(tokenizer.Config{Stemming: true})
	require.NoError(t, err)
	e := newEngine(t, quoteSchema, func(o *Options) { o.Tokenizer = tok })

	id, err := e.Insert(ctx, schema.Document{"quote": "cantando canzoni"}, "italian")
	require.NoError(t, err)
	_, err = e.Remove(ctx, id)
	require.NoError(t, err)

	assert.Empty(t, e.index.Find("quote", radix.FindParams{}))
}

var productSchema = schema.Schema{
	"name":    {Type: schema.String},
	"price":   {Type: schema.Number},
	"inStock": {Type: schema.Boolean},
	"tags":    {Type: schema.StringArray},
	"meta": {Fields: schema.Schema{
		"rating": {Type: schema.Number},
	}},
}

func products(t *testing.T, opts ...func(*Options)) *Engine {
	t.Helper()
	e := newEngine(t, productSchema, opts...)
	_, err := e.InsertMultiple(context.Background(), []schema.Document{
		{"id": "p1", "name": "wireless mouse", "price": 25, "inStock": true, "tags": []any{"office", "usb"}, "meta": map[string]any{"rating": 4.5}},
		{"id": "p2", "name": "mechanical keyboard", "price": 120, "inStock": false, "tags": []any{"office"}, "meta": map[string]any{"rating": 4.8}},
		{"id": "p3", "name": "wireless headphones", "price": 80, "inStock": true, "tags": []any{"audio"}, "meta": map[string]any{"rating": 3.9}},
		{"id": "p4", "name": "usb cable", "price": 5, "tags": []any{"usb"}},
	}, "")
	require.NoError(t, err)
	return e
}

func TestWhereFilters(t *testing.T) {
	e := products(t)

	tests := []struct {
		name  string
		where map[string]any
		want  []string
	}{
		{"gt", map[string]any{"price": map[string]any{"gt": 25}}, []string{"p2", "p3"}},
		{"lte", map[string]any{"price": map[string]any{"lte": 25}}, []string{"p1", "p4"}},
		{"between", map[string]any{"price": map[string]any{"between": []any{20, 100}}}, []string{"p1", "p3"}},
		{"eq", map[string]any{"price": map[string]any{"eq": 120}}, []string{"p2"}},
		{"boolean", map[string]any{"inStock": true}, []string{"p1", "p3"}},
		{"nested", map[string]any{"meta.rating": map[string]any{"gte": 4.5}}, []string{"p1", "p2"}},
		{"combined", map[string]any{"inStock": true, "price": map[string]any{"lt": 50}}, []string{"p1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := search(t, e, parser.Params{Where: tt.where})
			assert.ElementsMatch(t, tt.want, ids(res))
			assert.Equal(t, len(tt.want), res.Count)
		})
	}

	res := search(t, e, parser.Params{Term: "wireless", Where: map[string]any{"price": map[string]any{"gt": 50}}})
	assert.Equal(t, []string{"p3"}, ids(res))
}

func TestSortBy(t *testing.T) {
	e := products(t)

	asc := search(t, e, parser.Params{SortBy: &sorter.By{Property: "price", Order: sorter.Asc}})
	assert.Equal(t, []string{"p4", "p1", "p3", "p2"}, ids(asc))

	desc := search(t, e, parser.Params{SortBy: &sorter.By{Property: "name", Order: sorter.Desc}})
	assert.Equal(t, []string{"p1", "p3", "p4", "p2"}, ids(desc))

	again := search(t, e, parser.Params{SortBy: &sorter.By{Property: "name", Order: sorter.Desc}})
	assert.Equal(t, ids(desc), ids(again))

	rated := search(t, e, parser.Params{SortBy: &sorter.By{Property: "meta.rating", Order: sorter.Desc}})
	assert.Equal(t, []string{"p2", "p1", "p3", "p4"}, ids(rated), "documents without a value sort last")

	_, err := e.Search(context.Background(), parser.Params{SortBy: &sorter.By{Property: "tags"}})
	assert.True(t, errors.Is(err, apperrors.ErrUnknownSortField))
}

func TestSortCollationIgnoresDocumentLanguage(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, schema.Schema{"title": {Type: schema.String}})
	_, err := e.Insert(ctx, schema.Document{"id": "z", "title": "zebra"}, "")
	require.NoError(t, err)
	_, err = e.Insert(ctx, schema.Document{"id": "a", "title": "ähnlich"}, "swedish")
	require.NoError(t, err)

	res := search(t, e, parser.Params{SortBy: &sorter.By{Property: "title", Order: sorter.Asc}})
	assert.Equal(t, []string{"a", "z"}, ids(res), "titles collate in the engine's language")
}

func TestSortDisabled(t *testing.T) {
	e := products(t, func(o *Options) { o.Sort = sorter.Config{Disabled: true} })
	_, err := e.Search(context.Background(), parser.Params{SortBy: &sorter.By{Property: "price"}})
	assert.True(t, errors.Is(err, apperrors.ErrSortDisabled))
}

func TestBooleanFacetCountsDefinedValues(t *testing.T) {
	e := products(t)
	res := search(t, e, parser.Params{Facets: map[string]facets.Definition{"inStock": {}, "tags": {}}})

	sum := 0
	for _, b := range res.Facets["inStock"].Values {
		sum += b.Count
	}
	assert.Equal(t, 3, sum, "p4 has no inStock value")
	assert.Equal(t, []facets.Bucket{{Label: "office", Count: 2}, {Label: "usb", Count: 2}, {Label: "audio", Count: 1}},
		res.Facets["tags"].Values)
}

func TestUnknownSearchProperty(t *testing.T) {
	e := products(t)
	_, err := e.Search(context.Background(), parser.Params{Term: "usb", Properties: []string{"colour"}})
	assert.True(t, errors.Is(err, apperrors.ErrUnknownProperty))

	_, err = e.Search(context.Background(), parser.Params{Facets: map[string]facets.Definition{"price": {}}})
	assert.True(t, errors.Is(err, apperrors.ErrUnsupportedFacet))
}

func TestArrayPropertiesAreSearchable(t *testing.T) {
	e := products(t)
	res := search(t, e, parser.Params{Term: "usb", Properties: []string{"tags"}})
	assert.ElementsMatch(t, []string{"p1", "p4"}, ids(res))

	res = search(t, e, parser.Params{Term: "usb"})
	assert.ElementsMatch(t, []string{"p1", "p4"}, ids(res))
	assert.Equal(t, "p4", res.Hits[0].ID, "usb in both name and tags scores higher")
}

func TestEngineMetrics(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	e := newEngine(t, quoteSchema, func(o *Options) {
		o.Name = "quotes"
		o.Metrics = m
	})
	id, err := e.Insert(ctx, schema.Document{"quote": "hello"}, "")
	require.NoError(t, err)
	search(t, e, parser.Params{Term: "hello"})
	search(t, e, parser.Params{Term: "absent"})
	_, err = e.Remove(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocsInsertedTotal.WithLabelValues("quotes")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocsRemovedTotal.WithLabelValues("quotes")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("quotes", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("quotes", "zero_result")))
	assert.Zero(t, testutil.ToFloat64(m.CollectionDocCount.WithLabelValues("quotes")))
}

func TestReindexFromStore(t *testing.T) {
	ctx := context.Background()
	docs := store.NewMemory()
	_, err := docs.Store(ctx, "b", schema.Document{"quote": "beta"})
	require.NoError(t, err)
	_, err = docs.Store(ctx, "a", schema.Document{"quote": "alpha beta"})
	require.NoError(t, err)

	e := newEngine(t, quoteSchema, func(o *Options) { o.Store = docs })
	assert.Zero(t, search(t, e, parser.Params{Term: "beta"}).Count)

	n, err := e.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, search(t, e, parser.Params{Term: "beta"}).Count)
	assert.Equal(t, []string{"a"}, ids(search(t, e, parser.Params{Term: "alpha"})))
	assert.Equal(t, []string{"a", "b"}, e.index.DocIDs())
}

func TestReindexAdvancesCounter(t *testing.T) {
	ctx := context.Background()
	docs := store.NewMemory()
	_, err := docs.Store(ctx, "7", schema.Document{"quote": "seven"})
	require.NoError(t, err)

	e := newEngine(t, quoteSchema, func(o *Options) { o.Store = docs })
	_, err = e.Reindex(ctx)
	require.NoError(t, err)

	id, err := e.Insert(ctx, schema.Document{"quote": "eight"}, "")
	require.NoError(t, err)
	assert.Equal(t, "8", id)
}

func TestReindexOrdersCounterIDsNumerically(t *testing.T) {
	ctx := context.Background()
	docs := store.NewMemory()
	for _, id := range []string{"10", "b", "2", "a", "1"} {
		_, err := docs.Store(ctx, id, schema.Document{"quote": "same words"})
		require.NoError(t, err)
	}

	e := newEngine(t, quoteSchema, func(o *Options) { o.Store = docs })
	_, err := e.Reindex(ctx)
	require.NoError(t, err)

	want := []string{"1", "2", "10", "a", "b"}
	assert.Equal(t, want, e.index.DocIDs())
	assert.Equal(t, want, ids(search(t, e, parser.Params{Term: "words"})), "tied scores keep reindex order")
}

package benchmark

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/collection"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/sorter"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/facets"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
)

func seededCollection(b *testing.B, n int) *collection.Collection {
	b.Helper()
	c, err := collection.New(indexer.Options{Name: "products", Schema: productSchema})
	if err != nil {
		b.Fatal(err)
	}
	docs := make([]schema.Document, n)
	for i := range docs {
		docs[i] = product(i)
	}
	if _, err := c.InsertMultiple(context.Background(), docs, ""); err != nil {
		b.Fatal(err)
	}
	return c
}

func BenchmarkSearch(b *testing.B) {
	c := seededCollection(b, 10000)
	ctx := context.Background()
	queries := []struct {
		name   string
		params parser.Params
	}{
		{"single_term", parser.Params{Term: "engine"}},
		{"two_terms", parser.Params{Term: "search engine"}},
		{"prefix", parser.Params{Term: "ind"}},
		{"tolerance", parser.Params{Term: "serch", Tolerance: 1}},
		{"where", parser.Params{Term: "index", Where: map[string]any{
			"price":  map[string]any{"between": []any{100, 200}},
			"onSale": true,
		}}},
		{"sort_by", parser.Params{Term: "token", SortBy: &sorter.By{Property: "price", Order: sorter.Desc}}},
		{"facets", parser.Params{Term: "query", Facets: map[string]facets.Definition{
			"tags":  {},
			"price": {Ranges: []facets.Range{{From: 0, To: 100}, {From: 100, To: 500}}},
		}}},
		{"match_all_paged", parser.Params{Limit: 20, Offset: 5000}},
	}
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := c.Search(ctx, q.params); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSearchParallel(b *testing.B) {
	c := seededCollection(b, 10000)
	ctx := context.Background()
	p := parser.Params{Term: "search engine", Limit: 10}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := c.Search(ctx, p); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func BenchmarkSnapshotEncode(b *testing.B) {
	c := seededCollection(b, 5000)
	snap, err := c.Save(context.Background())
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, err := snapshot.Encode(snap)
		if err != nil {
			b.Fatal(err)
		}
		b.SetBytes(int64(len(data)))
	}
}

func BenchmarkSnapshotLoad(b *testing.B) {
	c := seededCollection(b, 5000)
	ctx := context.Background()
	data, err := func() ([]byte, error) {
		snap, err := c.Save(ctx)
		if err != nil {
			return nil, err
		}
		return snapshot.Encode(snap)
	}()
	if err != nil {
		b.Fatal(err)
	}
	target, err := collection.New(indexer.Options{Name: "products", Schema: productSchema})
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		snap, err := snapshot.Decode(data)
		if err != nil {
			b.Fatal(err)
		}
		if err := target.Load(ctx, snap); err != nil {
			b.Fatal(err)
		}
	}
}

// Package benchmark contains Go benchmarks for the radix and numeric
// indexes, the indexer engine and the search pipeline, measuring throughput
// and allocation behaviour.
package benchmark

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/avl"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/radix"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
)

var vocabulary = []string{
	"search", "searching", "seahorse", "season", "engine", "engineer",
	"index", "indexing", "indigo", "query", "quartz", "ranking", "random",
	"facet", "factory", "sorting", "sort", "tolerance", "token", "tokenizer",
}

var productSchema = schema.Schema{
	"name":        {Type: schema.String},
	"description": {Type: schema.String},
	"price":       {Type: schema.Number},
	"onSale":      {Type: schema.Boolean},
	"tags":        {Type: schema.StringArray},
}

func product(i int) schema.Document {
	w := func(n int) string { return vocabulary[(i*7+n)%len(vocabulary)] }
	return schema.Document{
		"name":        fmt.Sprintf("%s %s %d", w(0), w(1), i),
		"description": fmt.Sprintf("%s %s %s %s %s", w(2), w(3), w(4), w(5), w(6)),
		"price":       float64(i%500) + 0.99,
		"onSale":      i%3 == 0,
		"tags":        []any{w(7), w(8)},
	}
}

func BenchmarkRadixInsert(b *testing.B) {
	t := radix.New()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		t.Insert(vocabulary[i%len(vocabulary)]+fmt.Sprint(i%1000), fmt.Sprint(i))
	}
}

func BenchmarkRadixFind(b *testing.B) {
	t := radix.New()
	for i := 0; i < 10000; i++ {
		t.Insert(vocabulary[i%len(vocabulary)]+fmt.Sprint(i%100), fmt.Sprint(i))
	}
	cases := []struct {
		name   string
		params radix.FindParams
	}{
		{"exact", radix.FindParams{Term: "search7", Exact: true}},
		{"prefix", radix.FindParams{Term: "sea"}},
		{"tolerance_1", radix.FindParams{Term: "serch", Tolerance: 1}},
		{"tolerance_2", radix.FindParams{Term: "indxing", Tolerance: 2}},
	}
	for _, tc := range cases {
		b.Run(tc.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = t.Find(tc.params)
			}
		})
	}
}

func BenchmarkAVLRange(b *testing.B) {
	var t avl.Tree
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 100000; i++ {
		t.Insert(float64(r.Intn(10000)), fmt.Sprint(i))
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = t.Range(1000, 1100)
	}
}

func BenchmarkEngineInsert(b *testing.B) {
	e, err := indexer.New(indexer.Options{Schema: productSchema})
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Insert(ctx, product(i), ""); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEngineInsertMultiple(b *testing.B) {
	docs := make([]schema.Document, 1000)
	for i := range docs {
		docs[i] = product(i)
	}
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e, err := indexer.New(indexer.Options{Schema: productSchema, BatchSize: 100})
		if err != nil {
			b.Fatal(err)
		}
		if _, err := e.InsertMultiple(ctx, docs, ""); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEngineRemove(b *testing.B) {
	ctx := context.Background()
	e, err := indexer.New(indexer.Options{Schema: productSchema})
	if err != nil {
		b.Fatal(err)
	}
	ids := make([]string, b.N)
	for i := range ids {
		if ids[i], err = e.Insert(ctx, product(i), ""); err != nil {
			b.Fatal(err)
		}
	}
	b.ReportAllocs()
	b.ResetTimer()
	for _, id := range ids {
		if _, err := e.Remove(ctx, id); err != nil {
			b.Fatal(err)
		}
	}
}

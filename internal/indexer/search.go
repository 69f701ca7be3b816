package indexer

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
)

// Search validates p and runs it. Every configuration error is returned
// before any index is read.
func (e *Engine) Search(ctx context.Context, p parser.Params) (*executor.SearchResult, error) {
	start := time.Now()
	res, err := e.search(ctx, p)
	if e.metrics != nil {
		resultType := "hit"
		switch {
		case err != nil:
			resultType = "error"
		case res.Count == 0:
			resultType = "zero_result"
		}
		e.metrics.SearchQueriesTotal.WithLabelValues(e.name, resultType).Inc()
		e.metrics.SearchLatency.WithLabelValues(e.name, "none").Observe(time.Since(start).Seconds())
		if err == nil {
			e.metrics.SearchResultsCount.WithLabelValues(e.name).Observe(float64(res.Count))
		}
	}
	return res, err
}

func (e *Engine) search(ctx context.Context, p parser.Params) (*executor.SearchResult, error) {
	plan, err := parser.Build(p, e)
	if err != nil {
		return nil, err
	}
	if plan.Language == "" {
		plan.Language = e.language
	}
	return e.exec.Execute(ctx, plan, executor.Source{
		Index:       e.index,
		Sorter:      e.sorter,
		Docs:        e.docs,
		Tokenizer:   e.tok,
		SchemaTypes: e.types,
	})
}

// The methods below describe the collection to the query parser.

func (e *Engine) SearchableProperties() []string {
	return e.index.SearchableProperties()
}

func (e *Engine) IndexedType(prop string) (schema.Type, bool) {
	return e.index.PropertyType(prop)
}

func (e *Engine) SchemaTypes() map[string]schema.Type {
	return e.types
}

func (e *Engine) SortableProperties() []string {
	return e.sorter.Properties()
}

func (e *Engine) SortEnabled() bool {
	return e.sorter.Enabled()
}

func (e *Engine) SupportsLanguage(language string) bool {
	return tokenizer.Supported(language)
}

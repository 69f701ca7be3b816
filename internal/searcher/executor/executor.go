// Package executor runs a validated QueryPlan against the index structures of
// one collection.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/radix"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/sorter"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/facets"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/store"
)

type Hit struct {
	ID       string          `json:"id"`
	Score    float64         `json:"score"`
	Document schema.Document `json:"document"`
}

type SearchResult struct {
	Count   int                      `json:"count"`
	Hits    []Hit                    `json:"hits"`
	Facets  map[string]facets.Result `json:"facets,omitempty"`
	Elapsed time.Duration            `json:"elapsed"`
}

// Source is what a query reads. The caller guarantees no writer mutates it
// for the duration of Execute.
type Source struct {
	Index       *index.Index
	Sorter      *sorter.Sorter
	Docs        store.DocumentStore
	Tokenizer   tokenizer.Tokenizer
	SchemaTypes map[string]schema.Type
}

type Executor struct {
	params ranker.Params
	logger *slog.Logger
}

func New(params ranker.Params) *Executor {
	return &Executor{
		params: params,
		logger: slog.Default().With("component", "query-executor"),
	}
}

func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, src Source) (*SearchResult, error) {
	start := time.Now()

	var (
		candidates map[string]struct{}
		scores     map[string]float64
		err        error
	)
	if plan.Term == "" {
		candidates = make(map[string]struct{}, src.Index.DocCount())
		for _, id := range src.Index.DocIDs() {
			candidates[id] = struct{}{}
		}
	} else {
		candidates, scores, err = e.match(plan, src)
		if err != nil {
			return nil, err
		}
	}

	for _, f := range plan.Filters {
		if len(candidates) == 0 {
			break
		}
		candidates = intersect([]map[string]struct{}{candidates, filterSet(f, src.Index)})
	}

	ranked := make([]ranker.ScoredDoc, 0, len(candidates))
	for id := range candidates {
		ranked = append(ranked, ranker.ScoredDoc{DocID: id, Score: scores[id]})
	}

	count := len(ranked)
	if plan.SortBy != nil {
		ranked = merger.TopK(ranked, 0, src.Index.Seq)
		if ranked, err = src.Sorter.SortBy(ranked, *plan.SortBy); err != nil {
			return nil, err
		}
	} else {
		ranked = merger.TopK(ranked, plan.Offset+plan.Limit, src.Index.Seq)
	}

	result := &SearchResult{Count: count, Hits: []Hit{}}
	if len(plan.Facets) > 0 {
		docs, err := src.Docs.GetMultiple(ctx, allIDs(candidates))
		if err != nil {
			return nil, fmt.Errorf("loading documents for facets: %w", err)
		}
		if result.Facets, err = facets.Compute(docs, src.SchemaTypes, plan.Facets); err != nil {
			return nil, err
		}
	}

	if plan.Offset < len(ranked) {
		page := ranked[plan.Offset:min(plan.Offset+plan.Limit, len(ranked))]
		ids := make([]string, len(page))
		for i, d := range page {
			ids[i] = d.DocID
		}
		docs, err := src.Docs.GetMultiple(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("loading result documents: %w", err)
		}
		for i, d := range page {
			result.Hits = append(result.Hits, Hit{ID: d.DocID, Score: d.Score, Document: docs[i]})
		}
	}

	result.Elapsed = time.Since(start)
	e.logger.Debug("query executed",
		"term", plan.Term,
		"filters", len(plan.Filters),
		"count", result.Count,
		"returned", len(result.Hits),
		"elapsed", result.Elapsed,
	)
	return result, nil
}

// match finds the documents containing every query token in at least one of
// the searched properties and sums their BM25 scores.
func (e *Executor) match(plan *parser.QueryPlan, src Source) (map[string]struct{}, map[string]float64, error) {
	perProp := make(map[string][]string, len(plan.Properties))
	tokens := 0
	for _, prop := range plan.Properties {
		toks, err := src.Tokenizer.Tokenize(plan.Term, plan.Language, prop)
		if err != nil {
			return nil, nil, fmt.Errorf("tokenizing query: %w", err)
		}
		perProp[prop] = toks
		tokens = max(tokens, len(toks))
	}
	if tokens == 0 {
		return map[string]struct{}{}, nil, nil
	}

	scores := make(map[string]float64)
	sets := make([]map[string]struct{}, tokens)
	for i := range sets {
		sets[i] = make(map[string]struct{})
	}
	for _, prop := range plan.Properties {
		boost := plan.Boost[prop]
		seen := make(map[string]struct{})
		for i, tok := range perProp[prop] {
			for word, ids := range src.Index.Find(prop, radix.FindParams{Term: tok, Exact: plan.Exact, Tolerance: plan.Tolerance}) {
				for _, id := range ids {
					sets[i][id] = struct{}{}
					// Each (property, word, document) scores once per query.
					key := word + "\x00" + id
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}
					m := src.Index.Match(prop, word, id)
					m.Boost = boost
					scores[id] += ranker.BM25(m, e.params)
				}
			}
		}
	}
	return intersect(sets), scores, nil
}

func filterSet(f parser.Filter, idx *index.Index) map[string]struct{} {
	var ids []string
	if tree, ok := idx.Numbers(f.Property); ok {
		switch f.Op {
		case parser.OpGT:
			ids = tree.GreaterThan(f.Value, false)
		case parser.OpGTE:
			ids = tree.GreaterThan(f.Value, true)
		case parser.OpLT:
			ids = tree.LessThan(f.Value, false)
		case parser.OpLTE:
			ids = tree.LessThan(f.Value, true)
		case parser.OpEQ:
			ids = tree.Find(f.Value)
		case parser.OpBetween:
			ids = tree.Range(f.Value, f.Max)
		}
	} else if set, ok := idx.Bools(f.Property, f.Bool); ok {
		return set
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

// intersect returns the documents present in every set, walking the smallest
// set first.
func intersect(sets []map[string]struct{}) map[string]struct{} {
	if len(sets) == 0 {
		return make(map[string]struct{})
	}
	shortest := 0
	for i, s := range sets {
		if len(s) < len(sets[shortest]) {
			shortest = i
		}
	}
	candidates := make(map[string]struct{}, len(sets[shortest]))
	for id := range sets[shortest] {
		candidates[id] = struct{}{}
	}
	for i, s := range sets {
		if i == shortest {
			continue
		}
		for id := range candidates {
			if _, exists := s[id]; !exists {
				delete(candidates, id)
			}
		}
	}
	return candidates
}

func allIDs(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Package store keeps the raw documents of a collection. The index only holds
// IDs; search results are hydrated from a DocumentStore.
package store

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
)

// DocumentStore persists documents by ID. Store reports false, without
// error, when id already exists; Remove reports false when it did not.
type DocumentStore interface {
	Store(ctx context.Context, id string, doc schema.Document) (bool, error)
	Get(ctx context.Context, id string) (schema.Document, bool, error)
	// GetMultiple returns one entry per id, nil where a document is missing.
	GetMultiple(ctx context.Context, ids []string) ([]schema.Document, error)
	Remove(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
	All(ctx context.Context) (map[string]schema.Document, error)
}

// Package consumer applies document mutations read from Kafka to the
// registered collections.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/collection"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
)

// DocumentEvent is one mutation of a collection. ID is required for update
// and remove; an insert without one takes the document's "id" or a
// generated ID.
type DocumentEvent struct {
	Op         Op              `json:"op"`
	Collection string          `json:"collection"`
	ID         string          `json:"id,omitempty"`
	Document   schema.Document `json:"document,omitempty"`
	Language   string          `json:"language,omitempty"`
}

// Key partitions events by collection and document so mutations of one
// document stay ordered.
func (ev DocumentEvent) Key() string {
	if ev.ID == "" {
		return ev.Collection
	}
	return ev.Collection + "/" + ev.ID
}

// Retry is the policy applied to each event. Only errors that map to a 5xx
// status are retried.
var Retry = resilience.RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 50 * time.Millisecond,
	MaxDelay:     time.Second,
	Retryable:    transient,
}

func transient(err error) bool {
	return apperrors.HTTPStatusCode(err) >= 500
}

// IndexConsumer wraps a Kafka consumer to drive collection mutations.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// ReportLag returns a kafka.LagFunc feeding the consumer lag gauge.
func ReportLag(m *metrics.Metrics) kafka.LagFunc {
	return func(partition int, lag int64) {
		m.ConsumerLag.WithLabelValues(strconv.Itoa(partition)).Set(float64(lag))
	}
}

// HandleMessage returns a MessageHandler applying DocumentEvents to reg.
// Undecodable messages and events rejected by validation are logged and
// acknowledged; a transient failure that outlives its retries is returned so
// the consumer redelivers the message instead of committing past it.
func HandleMessage(reg *collection.Registry, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[DocumentEvent](value)
		if err != nil {
			logger.Error("failed to decode document event", "error", err, "key", string(key))
			record(m, "invalid", err)
			return nil
		}

		err = resilience.Retry(ctx, "apply-"+string(event.Op), Retry, func() error {
			return Apply(ctx, reg, event)
		})
		record(m, string(event.Op), err)
		if err == nil {
			logger.Debug("document event applied",
				"op", event.Op,
				"collection", event.Collection,
				"doc_id", event.ID,
			)
			return nil
		}
		if !transient(err) {
			logger.Error("document event rejected",
				"op", event.Op,
				"collection", event.Collection,
				"doc_id", event.ID,
				"error", err,
			)
			return nil
		}
		return fmt.Errorf("applying %s to %s: %w", event.Op, event.Collection, err)
	}
}

// Apply performs ev against its collection in reg.
func Apply(ctx context.Context, reg *collection.Registry, ev DocumentEvent) error {
	c, err := reg.Get(ev.Collection)
	if err != nil {
		return err
	}
	switch ev.Op {
	case OpInsert:
		doc := ev.Document
		if ev.ID != "" {
			doc = withID(doc, ev.ID)
		}
		_, err = c.Insert(ctx, doc, ev.Language)
	case OpUpdate:
		if ev.ID == "" {
			return apperrors.Config(apperrors.ErrInvalidDocumentID, "update without id")
		}
		_, err = c.Update(ctx, ev.ID, withID(ev.Document, ev.ID), ev.Language)
	case OpRemove:
		if ev.ID == "" {
			return apperrors.Config(apperrors.ErrInvalidDocumentID, "remove without id")
		}
		_, err = c.Remove(ctx, ev.ID)
	default:
		return apperrors.Config(apperrors.ErrInvalidInput, "unknown op %q", ev.Op)
	}
	return err
}

func withID(doc schema.Document, id string) schema.Document {
	out := make(schema.Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out["id"] = id
	return out
}

func record(m *metrics.Metrics, op string, err error) {
	if m == nil {
		return
	}
	m.ConsumerEventsTotal.WithLabelValues(op, metrics.Status(err)).Inc()
}

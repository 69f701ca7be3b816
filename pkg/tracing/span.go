// Package tracing times the stages of a request as a tree of spans carried
// in the context. A finished root span is logged through slog, at Warn when
// it ran longer than the slow threshold.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

type contextKey struct{}

// Span is one timed stage. Children may be started from other goroutines.
type Span struct {
	Name     string
	TraceID  string
	start    time.Time
	duration time.Duration

	mu       sync.Mutex
	children []*Span
	attrs    []any
}

// Start opens a span under the one already in ctx, or a root span whose
// trace ID is the request ID when ctx carries one.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{Name: name, start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, span)
		parent.mu.Unlock()
	} else if id := logger.RequestIDFromContext(ctx); id != "" {
		span.TraceID = id
	} else {
		span.TraceID = uuid.NewString()
	}
	return context.WithValue(ctx, contextKey{}, span), span
}

func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// End stops the clock and returns the span's duration.
func (s *Span) End() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duration = time.Since(s.start)
	return s.duration
}

func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Log writes one record per span of the tree rooted at s. Zero slow never
// escalates.
func (s *Span) Log(log *slog.Logger, slow time.Duration) {
	level := slog.LevelDebug
	if slow > 0 && s.Duration() >= slow {
		level = slog.LevelWarn
	}
	if !log.Enabled(context.Background(), level) {
		return
	}
	s.log(log, level, 0)
}

func (s *Span) log(log *slog.Logger, level slog.Level, depth int) {
	s.mu.Lock()
	attrs := append([]any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration", s.duration,
		"depth", depth,
	}, s.attrs...)
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	msg := "span"
	if depth == 0 && level == slog.LevelWarn {
		msg = "slow request"
	}
	log.Log(context.Background(), level, msg, attrs...)
	for _, child := range children {
		child.log(log, level, depth+1)
	}
}

package indexer

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator issues IDs for documents that do not carry one.
type IDGenerator interface {
	NextID() string
}

// Counter issues "1", "2", ... and belongs to a single engine. Its position
// is saved with snapshots.
type Counter struct {
	n atomic.Uint64
}

func (c *Counter) NextID() string {
	return strconv.FormatUint(c.n.Add(1), 10)
}

// Value returns the last issued number.
func (c *Counter) Value() uint64 {
	return c.n.Load()
}

func (c *Counter) Set(v uint64) {
	c.n.Store(v)
}

// UUIDs issues random version 4 UUIDs.
type UUIDs struct{}

func (UUIDs) NextID() string {
	return uuid.NewString()
}

// NewIDGenerator maps a configuration name to a generator: "uuid" or
// "counter" (the default).
func NewIDGenerator(kind string) IDGenerator {
	if kind == "uuid" {
		return UUIDs{}
	}
	return &Counter{}
}

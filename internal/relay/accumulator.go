package relay

import (
	"strings"

	"chatstream/internal/ai"
)

// Accumulator folds a chunk sequence into a per-kind payload mapping for
// persistence. Accumulation is pure append-only: no deduplication, no
// reordering. Kinds keep first-seen order; payload within a kind keeps
// arrival order.
type Accumulator struct {
	order   []ai.ChunkKind
	buckets map[ai.ChunkKind]*strings.Builder
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		buckets: make(map[ai.ChunkKind]*strings.Builder),
	}
}

// Absorb appends the chunk's payload to the bucket for its kind, creating the
// bucket on first sight of that kind.
func (accumulator *Accumulator) Absorb(chunk ai.Chunk) {
	bucket, ok := accumulator.buckets[chunk.Kind]
	if !ok {
		bucket = &strings.Builder{}
		accumulator.buckets[chunk.Kind] = bucket
		accumulator.order = append(accumulator.order, chunk.Kind)
	}
	bucket.WriteString(chunk.Content)
}

// Kinds returns the absorbed kinds in first-seen order.
func (accumulator *Accumulator) Kinds() []ai.ChunkKind {
	kinds := make([]ai.ChunkKind, len(accumulator.order))
	copy(kinds, accumulator.order)
	return kinds
}

// Finalize returns the per-kind concatenations. It returns an empty (non-nil)
// mapping when no chunk was ever absorbed; callers use emptiness to decide
// whether anything should be persisted.
func (accumulator *Accumulator) Finalize() map[string]string {
	parts := make(map[string]string, len(accumulator.buckets))
	for kind, bucket := range accumulator.buckets {
		parts[string(kind)] = bucket.String()
	}
	return parts
}

package ai

import "iter"

// ChunkStream wraps a lazy chunk iterator. The sequence is finite and not
// restartable: it is backed by the provider's own response (an open SSE
// connection or an already-parsed document) and can be ranged over once.
//
// Callers must consume the stream, either fully or by breaking out of the
// loop early. The underlying adapter may hold open resources (such as an HTTP
// response body) that are only released when the iterator completes or is
// abandoned via a loop break. Constructing a ChunkStream and never iterating
// it will leak those resources.
type ChunkStream struct {
	iterator iter.Seq2[Chunk, error]
}

// NewChunkStream creates a ChunkStream from a raw iterator. The iterator is
// expected to yield Chunk values (with nil error) for normal output, and may
// yield a non-nil error to signal a mid-stream failure. A transport error
// surfaces through the iterator, never as a silent end-of-stream.
func NewChunkStream(iterator iter.Seq2[Chunk, error]) *ChunkStream {
	return &ChunkStream{iterator: iterator}
}

// NewSliceStream wraps already-materialized chunks as a stream. This is how
// the single-shot adapter presents its atomically-fetched response: the
// network call has completed before the stream exists, so iteration never
// yields an error.
func NewSliceStream(chunks []Chunk) *ChunkStream {
	iteratorFunc := func(yield func(Chunk, error) bool) {
		for _, chunk := range chunks {
			if !yield(chunk, nil) {
				return
			}
		}
	}
	return &ChunkStream{iterator: iteratorFunc}
}

// Iter returns the underlying iterator for use with range-over-func loops.
//
// Example:
//
//	for chunk, err := range stream.Iter() {
//	    if err != nil { handle error }
//	    fmt.Print(chunk.Content)
//	}
func (stream *ChunkStream) Iter() iter.Seq2[Chunk, error] {
	return stream.iterator
}

package store

import (
	"context"
	"fmt"
	"sort"

	"gwi.com/resume-screener/internal/utils"
)

// VectorIndex answers nearest-neighbour queries over the chunks of one
// session. Implementations are immutable once built.
type VectorIndex interface {
	Search(ctx context.Context, query []float32, k int) ([]ScoredChunk, error)
	Len() int
	Close() error
}

// IndexBuilder creates a fully built index for a session. chunks and
// vectors are parallel slices.
type IndexBuilder interface {
	BuildIndex(ctx context.Context, sessionID string, chunks []PageChunk, vectors [][]float32) (VectorIndex, error)
}

// MemoryIndexBuilder keeps every session index in process memory.
type MemoryIndexBuilder struct{}

func (MemoryIndexBuilder) BuildIndex(_ context.Context, _ string, chunks []PageChunk, vectors [][]float32) (VectorIndex, error) {
	return NewMemoryIndex(chunks, vectors)
}

type MemoryIndex struct {
	chunks  []PageChunk
	vectors [][]float32
}

func NewMemoryIndex(chunks []PageChunk, vectors [][]float32) (*MemoryIndex, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("got %d chunks but %d vectors", len(chunks), len(vectors))
	}
	idx := &MemoryIndex{
		chunks:  make([]PageChunk, len(chunks)),
		vectors: make([][]float32, len(vectors)),
	}
	copy(idx.chunks, chunks)
	for i, v := range vectors {
		idx.vectors[i] = append([]float32(nil), v...)
	}
	return idx, nil
}

func (m *MemoryIndex) Search(_ context.Context, query []float32, k int) ([]ScoredChunk, error) {
	return rankBySimilarity(query, m.chunks, m.vectors, k)
}

func (m *MemoryIndex) Len() int { return len(m.chunks) }

func (m *MemoryIndex) Close() error { return nil }

// rankBySimilarity scores every chunk against query and returns the k best,
// most similar first. Equal scores keep insertion order.
func rankBySimilarity(query []float32, chunks []PageChunk, vectors [][]float32, k int) ([]ScoredChunk, error) {
	if len(query) == 0 {
		return nil, utils.ErrEmptyVector
	}
	if k <= 0 || len(chunks) == 0 {
		return nil, nil
	}

	scored := make([]ScoredChunk, 0, len(chunks))
	for i, chunk := range chunks {
		sim, err := utils.CosineSimilarity(query, vectors[i])
		if err != nil {
			return nil, fmt.Errorf("score chunk %d: %w", chunk.Position, err)
		}
		scored = append(scored, ScoredChunk{Chunk: chunk, Similarity: sim})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

package vector

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"studymate/internal/util"

	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	// Orthogonal unit vectors score ~0.
	require.InDelta(t, 0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-7)
	// Identical vectors score ~1.
	require.InDelta(t, 1.0, cosineSimilarity([]float32{3, 4}, []float32{3, 4}), 1e-7)
	// Zero vector scores exactly 0, never NaN.
	got := cosineSimilarity([]float32{0, 0}, []float32{0, 1})
	require.False(t, math.IsNaN(got))
	require.Equal(t, 0.0, got)
	// Mismatched dimensions score 0 by policy.
	require.Equal(t, 0.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2}))
}

func TestAddDocumentDimensionMismatch(t *testing.T) {
	s := NewStore()
	err := s.AddDocument("d1", []Chunk{{ChunkID: "c0", Text: "a"}}, [][]float32{})
	require.ErrorIs(t, err, util.ErrDimensionMismatch)
	_, ok := s.GetDocument("d1")
	require.False(t, ok, "rejected insert must not be partially applied")
}

func TestAddDocumentReplacesNotMerges(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddDocument("d1",
		[]Chunk{{ChunkID: "a0"}, {ChunkID: "a1"}},
		[][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, s.AddDocument("d1",
		[]Chunk{{ChunkID: "b0"}},
		[][]float32{{0.5, 0.5}}))

	doc, ok := s.GetDocument("d1")
	require.True(t, ok)
	require.Len(t, doc.Chunks, 1)
	require.Equal(t, "b0", doc.Chunks[0].ChunkID)
	require.Equal(t, [][]float32{{0.5, 0.5}}, doc.Embeddings)
}

func TestQueryBounds(t *testing.T) {
	s := NewStore()
	require.Empty(t, s.Query([]float32{1, 0}, 4), "empty index yields empty result")

	require.NoError(t, s.AddDocument("d1",
		[]Chunk{{ChunkID: "c0"}, {ChunkID: "c1"}, {ChunkID: "c2"}},
		[][]float32{{1, 0}, {0, 1}, {1, 1}}))

	require.Empty(t, s.Query([]float32{1, 0}, 0))
	require.Empty(t, s.Query([]float32{1, 0}, -3))
	require.Len(t, s.Query([]float32{1, 0}, 2), 2)
	require.Len(t, s.Query([]float32{1, 0}, 10), 3)
}

func TestQueryRanking(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.AddDocument("notes",
		[]Chunk{{ChunkID: "orthogonal"}, {ChunkID: "aligned"}, {ChunkID: "diagonal"}},
		[][]float32{{0, 1}, {1, 0}, {1, 1}}))

	got := s.Query([]float32{1, 0}, 3)
	require.Equal(t, "aligned", got[0].Chunk.ChunkID)
	require.Equal(t, "diagonal", got[1].Chunk.ChunkID)
	require.Equal(t, "orthogonal", got[2].Chunk.ChunkID)
	require.Equal(t, "notes", got[0].DocumentID)
	require.Equal(t, 1, got[0].ChunkIndex)
	require.InDelta(t, 1.0, got[0].Score, 1e-7)
}

func TestQueryTieOrderIsInsertionOrder(t *testing.T) {
	s := NewStore()
	// Two documents with identical embeddings: earlier insert wins ties.
	require.NoError(t, s.AddDocument("first", []Chunk{{ChunkID: "f0"}}, [][]float32{{1, 0}}))
	require.NoError(t, s.AddDocument("second", []Chunk{{ChunkID: "s0"}}, [][]float32{{1, 0}}))

	got := s.Query([]float32{1, 0}, 2)
	require.Equal(t, "first", got[0].DocumentID)
	require.Equal(t, "second", got[1].DocumentID)

	// Re-indexing keeps the original position.
	require.NoError(t, s.AddDocument("first", []Chunk{{ChunkID: "f1"}}, [][]float32{{1, 0}}))
	got = s.Query([]float32{1, 0}, 2)
	require.Equal(t, "first", got[0].DocumentID)
	require.Equal(t, "f1", got[0].Chunk.ChunkID)
}

func TestNoExternalAliasing(t *testing.T) {
	s := NewStore()
	chunks := []Chunk{{ChunkID: "c0", Text: "original"}}
	embs := [][]float32{{1, 0}}
	require.NoError(t, s.AddDocument("d1", chunks, embs))

	chunks[0].Text = "mutated"
	embs[0][0] = -42

	doc, ok := s.GetDocument("d1")
	require.True(t, ok)
	require.Equal(t, "original", doc.Chunks[0].Text)
	require.Equal(t, float32(1), doc.Embeddings[0][0])

	// Mutating the returned copy must not touch the index either.
	doc.Embeddings[0][0] = 99
	again, _ := s.GetDocument("d1")
	require.Equal(t, float32(1), again.Embeddings[0][0])
}

func TestConcurrentAddAndQuery(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("doc-%d", w%4)
			for i := 0; i < 200; i++ {
				err := s.AddDocument(id,
					[]Chunk{{ChunkID: "a"}, {ChunkID: "b"}},
					[][]float32{{float32(i), 1}, {1, float32(i)}})
				if err != nil {
					t.Errorf("add document: %v", err)
					return
				}
			}
		}(w)
	}
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				for _, r := range s.Query([]float32{1, 1}, 4) {
					// No torn entries: every result pairs a chunk with an
					// embedding from the same published document version.
					if r.Chunk.ChunkID == "" || math.IsNaN(r.Score) {
						t.Errorf("torn result: %+v", r)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 4, s.Len())
}

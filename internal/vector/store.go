package vector

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"studymate/internal/util"
)

type Chunk struct {
	ChunkID string            `json:"chunk_id"`
	Text    string            `json:"text"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// Document is a published index entry: positionally aligned chunk and
// embedding lists. Entries are immutable once stored; AddDocument builds a
// fresh one and replaces the old in a single visible write.
type Document struct {
	DocumentID string
	Chunks     []Chunk
	Embeddings [][]float32

	seq uint64
}

type Result struct {
	Score      float64 `json:"score"`
	Chunk      Chunk   `json:"chunk"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
}

// Store is the process-wide vector candidate index. Inserts for different
// documents proceed in parallel; a concurrent query sees an entry either
// fully before or fully after a replace, never a torn chunk/embedding pair.
type Store struct {
	docs    sync.Map // document ID -> *Document
	nextSeq atomic.Uint64
}

func NewStore() *Store {
	return &Store{}
}

// AddDocument replaces any existing entry for documentID. The input slices
// are copied; callers keep no aliases into the index.
func (s *Store) AddDocument(documentID string, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("add document %s: %d chunks vs %d embeddings: %w",
			documentID, len(chunks), len(embeddings), util.ErrDimensionMismatch)
	}
	doc := &Document{
		DocumentID: documentID,
		Chunks:     make([]Chunk, len(chunks)),
		Embeddings: make([][]float32, len(embeddings)),
	}
	copy(doc.Chunks, chunks)
	for i, e := range embeddings {
		vec := make([]float32, len(e))
		copy(vec, e)
		doc.Embeddings[i] = vec
	}
	// A replace keeps the original insertion position so query tie-breaking
	// stays stable across re-indexing.
	if prev, ok := s.docs.Load(documentID); ok {
		doc.seq = prev.(*Document).seq
	} else {
		doc.seq = s.nextSeq.Add(1)
	}
	s.docs.Store(documentID, doc)
	return nil
}

// Query scans every stored embedding, scores it against queryVec by cosine
// similarity and returns the topK best, ties broken by insertion order.
// An empty index or topK <= 0 yields an empty result, never an error.
func (s *Store) Query(queryVec []float32, topK int) []Result {
	if topK <= 0 {
		return []Result{}
	}
	docs := make([]*Document, 0)
	s.docs.Range(func(_, v any) bool {
		docs = append(docs, v.(*Document))
		return true
	})
	sort.Slice(docs, func(i, j int) bool { return docs[i].seq < docs[j].seq })

	results := make([]Result, 0)
	for _, doc := range docs {
		for i, emb := range doc.Embeddings {
			results = append(results, Result{
				Score:      cosineSimilarity(queryVec, emb),
				Chunk:      doc.Chunks[i],
				DocumentID: doc.DocumentID,
				ChunkIndex: i,
			})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// GetDocument returns a copy of the entry for documentID, preserving the
// index's exclusive ownership of the published slices.
func (s *Store) GetDocument(documentID string) (Document, bool) {
	v, ok := s.docs.Load(documentID)
	if !ok {
		return Document{}, false
	}
	doc := v.(*Document)
	out := Document{
		DocumentID: doc.DocumentID,
		Chunks:     make([]Chunk, len(doc.Chunks)),
		Embeddings: make([][]float32, len(doc.Embeddings)),
	}
	copy(out.Chunks, doc.Chunks)
	for i, e := range doc.Embeddings {
		vec := make([]float32, len(e))
		copy(vec, e)
		out.Embeddings[i] = vec
	}
	return out, true
}

func (s *Store) Len() int {
	n := 0
	s.docs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// cosineSimilarity is dot(a,b) / (norm(a)*norm(b) + 1e-8). The epsilon keeps
// a zero vector at score 0 instead of NaN. Vectors of different dimensions
// score 0 rather than faulting; insertion-time validation is the caller's
// guard against mixed dimensions.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	return dot / (math.Sqrt(normA)*math.Sqrt(normB) + 1e-8)
}

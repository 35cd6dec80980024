package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
)

// MockProvider produces deterministic answers and embeddings so retrieval
// paths can run without network access.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 1536
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	_ = ctx
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, deterministicVector(input, dim))
	}
	return vectors, ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", dim), Key: "mock"}, nil
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	text := "Mock response."
	op := strings.ToLower(req.Operation)
	switch {
	case strings.Contains(op, "chat"), strings.Contains(op, "ask"):
		b := strings.Builder{}
		b.WriteString("Deterministic answer grounded in the provided study materials.")
		for _, line := range strings.Split(req.System, "\n") {
			if title, ok := strings.CutPrefix(line, "SOURCE: "); ok {
				b.WriteString(" [")
				b.WriteString(title)
				b.WriteString("]")
			}
		}
		text = b.String()
	case strings.Contains(op, "title"):
		text = "Mock conversation title"
	}
	return GenerateResponse{Text: text}, ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}, nil
}

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := []byte(input)
	if len(seed) == 0 {
		seed = []byte("empty")
	}
	for i := 0; i < dim; i++ {
		h := sha256.Sum256(append(seed, byte(i%251)))
		u := binary.BigEndian.Uint32(h[:4])
		vec[i] = float32(u%2000)/1000.0 - 1.0
	}
	return vec
}

// MatchDimension pads or truncates a vector to dim, for stores that expect
// a fixed embedding width.
func MatchDimension(src []float32, dim int) []float32 {
	if dim <= 0 || len(src) == dim {
		return src
	}
	out := make([]float32, dim)
	copy(out, src)
	return out
}

package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpenAIGenerateWireShape(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"grounded answer"}}]}`))
	}))
	defer srv.Close()
	t.Setenv("STUDYMATE_OPENAI_BASE_URL", srv.URL)
	t.Setenv("OPENAI_API_KEY", "test-key")

	p := NewOpenAIProvider("", "gpt-3.5-turbo", 512, 5*time.Second)
	resp, info, err := p.Generate(context.Background(), GenerateRequest{
		Operation: "chat",
		System:    "context block",
		Prompt:    "user block",
	})
	require.NoError(t, err)
	require.Equal(t, "grounded answer", resp.Text)
	require.Equal(t, "openai", info.Name)

	require.Equal(t, "gpt-3.5-turbo", captured.Model)
	require.Equal(t, 512, captured.MaxTokens)
	require.Len(t, captured.Messages, 2)
	require.Equal(t, "system", captured.Messages[0].Role)
	require.Equal(t, "context block", captured.Messages[0].Content)
	require.Equal(t, "user", captured.Messages[1].Role)
	require.Equal(t, "user block", captured.Messages[1].Content)
}

func TestOpenAIGenerateEmptyContentIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""}}]}`))
	}))
	defer srv.Close()
	t.Setenv("STUDYMATE_OPENAI_BASE_URL", srv.URL)
	t.Setenv("OPENAI_API_KEY", "test-key")

	p := NewOpenAIProvider("", "gpt-3.5-turbo", 512, 5*time.Second)
	resp, _, err := p.Generate(context.Background(), GenerateRequest{Prompt: "q"})
	require.NoError(t, err)
	require.Equal(t, "", resp.Text)
}

func TestOpenAIGenerateNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()
	t.Setenv("STUDYMATE_OPENAI_BASE_URL", srv.URL)
	t.Setenv("OPENAI_API_KEY", "test-key")

	p := NewOpenAIProvider("", "gpt-3.5-turbo", 512, 5*time.Second)
	_, _, err := p.Generate(context.Background(), GenerateRequest{Prompt: "q"})
	require.Error(t, err)
}

func TestOpenAIEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2]},{"embedding":[0.3,0.4]}]}`))
	}))
	defer srv.Close()
	t.Setenv("STUDYMATE_OPENAI_BASE_URL", srv.URL)
	t.Setenv("OPENAI_API_KEY", "test-key")

	p := NewOpenAIProvider("", "gpt-3.5-turbo", 512, 5*time.Second)
	vecs, _, err := p.Embed(context.Background(), EmbedRequest{Inputs: []string{"a", "b"}})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	require.Equal(t, []float32{0.3, 0.4}, vecs[1])
}

func TestMockEmbedDeterministic(t *testing.T) {
	m := NewMockProvider(8)
	a, _, err := m.Embed(context.Background(), EmbedRequest{Inputs: []string{"photosynthesis"}})
	require.NoError(t, err)
	b, _, err := m.Embed(context.Background(), EmbedRequest{Inputs: []string{"photosynthesis"}})
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a[0], 8)
}

func TestMatchDimension(t *testing.T) {
	src := []float32{1, 2, 3}
	a := MatchDimension(src, 2)
	require.Equal(t, []float32{1, 2}, a)
	b := MatchDimension(src, 5)
	require.Equal(t, []float32{1, 2, 3, 0, 0}, b)
}

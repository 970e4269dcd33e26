package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ruleminer/pkg/types"
)

func TestNewProvider(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "test-key")
	t.Setenv("OLLAMA_MODEL", "")

	tests := []struct {
		typ      string
		wantName string
		wantErr  bool
	}{
		{"gemini", "gemini", false},
		{"", "gemini", false},
		{"openai", "openai", false},
		{"mock", "mock", false},
		{"ollama", "", true},
		{"bogus", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			p, err := NewProvider(ProviderConfig{Type: tt.typ})
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, types.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestGeminiMissingKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	_, err := NewProvider(ProviderConfig{Type: "gemini"})
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestGeminiComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent"))
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":" {\"a\":1} "}]}}],"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":2}}`))
	}))
	defer srv.Close()

	p, err := NewProvider(ProviderConfig{Type: "gemini", BaseURL: srv.URL, APIKey: "k", Model: "gemini-test"})
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), Request{Prompt: "hello", System: "be terse", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, resp.Text)
	assert.Equal(t, 5, resp.PromptTokens)

	genConfig := got["generationConfig"].(map[string]any)
	assert.Equal(t, "application/json", genConfig["responseMimeType"])
	assert.NotNil(t, got["systemInstruction"])
}

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk", r.Header.Get("Authorization"))

		var body struct {
			Messages []map[string]string `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0]["role"])

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"done"}}],"model":"m"}`))
	}))
	defer srv.Close()

	p, err := NewProvider(ProviderConfig{Type: "openai", BaseURL: srv.URL, APIKey: "sk"})
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), Request{Prompt: "p", System: "s"})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text)
}

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "json", body["format"])
		_, _ = w.Write([]byte(`{"response":"[]","model":"llama"}`))
	}))
	defer srv.Close()

	p, err := NewProvider(ProviderConfig{Type: "ollama", BaseURL: srv.URL, Model: "llama"})
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), Request{Prompt: "p", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, "[]", resp.Text)
}

func TestRateLimitResponses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		header   string
		body     string
		wantWait time.Duration
	}{
		{"429 with header", http.StatusTooManyRequests, "12", "slow down", 12 * time.Second},
		{"429 without hint", http.StatusTooManyRequests, "", "slow down", 0},
		{"quota in body", http.StatusBadRequest, "", `{"error":{"status":"RESOURCE_EXHAUSTED","details":[{"retryDelay":"7s"}]}}`, 7 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, err := NewProvider(ProviderConfig{Type: "openai", BaseURL: srv.URL})
			require.NoError(t, err)

			_, err = p.Complete(context.Background(), Request{Prompt: "p"})
			require.Error(t, err)

			var rl *RateLimitError
			require.True(t, errors.As(err, &rl))
			assert.Equal(t, tt.wantWait, rl.RetryAfter())
			assert.ErrorIs(t, err, types.ErrRateLimited)
			assert.ErrorIs(t, err, types.ErrCompletion)
		})
	}
}

func TestServerErrorIsCompletionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := NewProvider(ProviderConfig{Type: "openai", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, types.ErrCompletion)
	assert.NotErrorIs(t, err, types.ErrRateLimited)
}

func TestMockProviderScript(t *testing.T) {
	m := &MockProvider{Responses: []string{"first", "second"}}

	for _, want := range []string{"first", "second", "second"} {
		resp, err := m.Complete(context.Background(), Request{Prompt: "x"})
		require.NoError(t, err)
		assert.Equal(t, want, resp.Text)
	}
	assert.Len(t, m.Calls(), 3)

	empty := &MockProvider{}
	resp, err := empty.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Text)
}

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientSelectsProvider(t *testing.T) {
	c, err := NewClient(Config{Provider: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", c.Provider())

	c, err = NewClient(Config{Provider: "lmstudio"})
	require.NoError(t, err)
	assert.Equal(t, "lmstudio", c.Provider())

	// Unset defaults to ollama.
	c, err = NewClient(Config{})
	require.NoError(t, err)
	assert.Equal(t, "ollama", c.Provider())

	_, err = NewClient(Config{Provider: "openai"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, 2*time.Minute, o.Timeout)
	assert.Equal(t, 2000, o.MaxTokens)
	assert.InDelta(t, 0.7, o.Temperature, 0.001)

	set := Options{Timeout: time.Second, MaxTokens: 10, Temperature: 0.1}.withDefaults()
	assert.Equal(t, time.Second, set.Timeout)
	assert.Equal(t, 10, set.MaxTokens)
	assert.InDelta(t, 0.1, set.Temperature, 0.001)
}

func TestOllamaComplete(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"model":   "llama3.2",
			"message": map[string]string{"role": "assistant", "content": "plan follows"},
			"done":    true,
		})
	}))
	defer srv.Close()

	c, err := NewOllamaClient(Config{Model: "llama3.2", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), []Message{System("sys"), User("hi")}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "plan follows", resp.Content)
	assert.Equal(t, "ollama", resp.Provider)
	assert.Equal(t, "llama3.2", resp.Model)

	assert.Equal(t, "llama3.2", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
}

func TestOllamaEmptyContentIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "  "},
		})
	}))
	defer srv.Close()

	c, err := NewOllamaClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), []Message{User("hi")}, Options{})
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ErrMalformedResponse, pe.Kind)
}

func TestOllamaBadStatusIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewOllamaClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), []Message{User("hi")}, Options{})
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ErrMalformedResponse, pe.Kind)
	assert.Contains(t, pe.Error(), "404")
}

func TestOllamaUnreachable(t *testing.T) {
	// A server that is already closed refuses connections.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c, err := NewOllamaClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), []Message{User("hi")}, Options{})
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ErrUnreachable, pe.Kind)
}

func TestOllamaTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c, err := NewOllamaClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), []Message{User("hi")}, Options{Timeout: 50 * time.Millisecond})
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ErrTimeout, pe.Kind)
}

func TestLMStudioCompleteFoldsSystemMessages(t *testing.T) {
	var got lmStudioRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-1",
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "ok"}, "finish_reason": "stop"},
			},
		})
	}))
	defer srv.Close()

	c, err := NewLMStudioClient(Config{Model: "qwen", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), []Message{System("be terse"), User("hi")}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "lmstudio", resp.Provider)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleUser, got.Messages[0].Role)
	assert.Equal(t, "System Instructions: be terse", got.Messages[0].Content)
	assert.Equal(t, "hi", got.Messages[1].Content)
}

func TestLMStudioNoChoicesIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "x", "choices": []any{}})
	}))
	defer srv.Close()

	c, err := NewLMStudioClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), []Message{User("hi")}, Options{})
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ErrMalformedResponse, pe.Kind)
}

func TestDefaultModels(t *testing.T) {
	o, err := NewOllamaClient(Config{})
	require.NoError(t, err)
	assert.Equal(t, "llama3.2", o.Model())

	l, err := NewLMStudioClient(Config{})
	require.NoError(t, err)
	assert.Equal(t, "local-model", l.Model())
}

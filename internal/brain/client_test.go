package brain

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

func TestOllamaClientGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.False(t, req.Stream)

		_ = json.NewEncoder(w).Encode(ollamaResponse{Response: "hello from the model"})
	}))
	defer srv.Close()

	c := NewOllamaClient(Config{BaseURL: srv.URL})
	out, err := c.Generate(context.Background(), "test-model", "say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello from the model", out)
}

func TestOllamaClientGenerateErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaResponse{Error: "model not found"})
	}))
	defer srv.Close()

	c := NewOllamaClient(Config{BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), "missing", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestOllamaClientGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewOllamaClient(Config{BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), "m", "p")
	assert.Error(t, err)
}

func TestOllamaClientHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewOllamaClient(Config{BaseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Generate(ctx, "m", "p")
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	c, err := NewFromConfig(Config{Provider: "ollama"})
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, c)

	_, err = NewFromConfig(Config{Provider: "gemini"})
	assert.Error(t, err, "gemini without an API key must fail")

	_, err = NewFromConfig(Config{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

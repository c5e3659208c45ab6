package qa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-miner/internal/config"
)

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(config.QAConfig{})
	assert.Error(t, err)

	client, err := New(config.QAConfig{BaseURL: "http://localhost:8081/"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8081", client.baseURL)
}

func TestExtract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/question-answering", r.URL.Path)

		var req struct {
			Model  string `json:"model"`
			Inputs struct {
				Question string `json:"question"`
				Context  string `json:"context"`
			} `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "What is the capital?", req.Inputs.Question)
		assert.NotEmpty(t, req.Inputs.Context)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"answer": "Paris",
			"score":  0.97,
			"start":  18,
			"end":    23,
		})
	}))
	defer server.Close()

	client, err := New(config.QAConfig{BaseURL: server.URL, Model: "test-model", TimeoutSecs: 5})
	require.NoError(t, err)

	answer, err := client.Extract(context.Background(), "What is the capital?", "The capital of France is Paris.")
	require.NoError(t, err)
	assert.Equal(t, "Paris", answer.Text)
	assert.InDelta(t, 0.97, answer.Confidence, 1e-9)
	assert.Equal(t, 18, answer.Start)
	assert.Equal(t, 23, answer.End)
}

func TestExtract_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := New(config.QAConfig{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Extract(context.Background(), "q", "passage")
	assert.Error(t, err)
}

func TestExtract_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Answer{})
	}))
	defer server.Close()

	client, err := New(config.QAConfig{BaseURL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Extract(ctx, "q", "passage")
	assert.Error(t, err)
}

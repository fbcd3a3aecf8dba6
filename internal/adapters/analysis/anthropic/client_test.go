package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bnema/cloudwhisper/internal/adapters/analysis"
	"github.com/bnema/cloudwhisper/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeSendsSystemInstruction(t *testing.T) {
	var got messagesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, APIVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"You have "},{"type":"text","text":"2 buckets."}]}`))
	}))
	defer server.Close()

	client := New(Config{APIKey: "sk-ant-test", BaseURL: server.URL}, server.Client())
	answer, err := client.Analyze(context.Background(), ports.AnalysisRequest{
		Question: "How many buckets?",
		Context:  "## Storage Buckets (2 total)",
	})

	require.NoError(t, err)
	assert.Equal(t, "You have 2 buckets.", answer)
	assert.Equal(t, DefaultModel, got.Model)
	assert.Contains(t, got.System, "## Storage Buckets (2 total)")
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "How many buckets?", got.Messages[0].Content)
}

func TestAnalyzeReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`rate limited`))
	}))
	defer server.Close()

	client := New(Config{APIKey: "k", BaseURL: server.URL}, server.Client())
	_, err := client.Analyze(context.Background(), ports.AnalysisRequest{Question: "q"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestAnalyzeRejectsEmptyAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer server.Close()

	client := New(Config{APIKey: "k", BaseURL: server.URL}, server.Client())
	_, err := client.Analyze(context.Background(), ports.AnalysisRequest{Question: "q"})

	require.ErrorIs(t, err, analysis.ErrEmptyAnswer)
}

package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(Config{
		Endpoint: url,
		APIKey:   "key-1",
		Model:    "test-model",
		Version:  "2023-06-01",
	})
}

func TestCompleteReturnsFirstTextBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "be helpful", req.System)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, RoleUser, req.Messages[1].Role)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"tool_use"},{"type":"text","text":"Try the jobs tab."},{"type":"text","text":"ignored"}]}`))
	}))
	defer server.Close()

	reply, err := newTestClient(server.URL).Complete(context.Background(), "be helpful", []Message{
		{Role: RoleAssistant, Content: "Hi!"},
		{Role: RoleUser, Content: "Where are internships?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Try the jobs tab.", reply)
}

func TestCompleteFailures(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"non-200": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		},
		"empty content": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"content":[]}`))
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		},
	}

	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(handler)
			defer server.Close()

			_, err := newTestClient(server.URL).Complete(context.Background(), "", []Message{{Role: RoleUser, Content: "hi"}})
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}

	_, err := NewClient(Config{Endpoint: "http://127.0.0.1:0"}).Complete(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adbroll/matcher/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(url string) *GatewayClient {
	return NewGatewayClient("test-api-key", url, "test-model", 6000, 5*time.Second, nil)
}

func writeChat(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
}

func TestNewGatewayClient(t *testing.T) {
	client := NewGatewayClient("key", "https://gateway.example.com/v1/", "", 0, 0, nil)

	assert.NotNil(t, client)
	assert.Equal(t, "key", client.apiKey)
	assert.Equal(t, "https://gateway.example.com/v1", client.baseURL)
	assert.Equal(t, defaultGatewayModel, client.model)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
	assert.NotNil(t, client.rateLimiter)
	assert.NotNil(t, client.logger)
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, 1000 * time.Millisecond},
		{3, 2000 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			assert.Equal(t, tt.expected, exponentialBackoff(tt.attempt))
		})
	}
}

func TestComplete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "sys", req.Messages[0].Content)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, "Videos:\nVideo 1: x", req.Messages[1].Content)

		writeChat(w, "Video 1: 2")
	}))
	defer server.Close()

	result, err := newTestGateway(server.URL).Complete(context.Background(), "sys", "Videos:\nVideo 1: x")

	require.NoError(t, err)
	assert.Equal(t, "Video 1: 2", result)
}

func TestComplete_ServerError_Retries(t *testing.T) {
	attempts := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeChat(w, "Video 1: ninguno")
	}))
	defer server.Close()

	result, err := newTestGateway(server.URL).Complete(context.Background(), "sys", "prompt")

	require.NoError(t, err)
	assert.Equal(t, "Video 1: ninguno", result)
	assert.Equal(t, 3, attempts)
}

func TestComplete_ClientError_NoRetry(t *testing.T) {
	attempts := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	result, err := newTestGateway(server.URL).Complete(context.Background(), "sys", "prompt")

	assert.Empty(t, result)
	assert.ErrorIs(t, err, domain.ErrAIUnavailable)
	assert.Equal(t, 1, attempts)
}

func TestComplete_TooManyRequests_Retries(t *testing.T) {
	attempts := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeChat(w, "Video 1: 1")
	}))
	defer server.Close()

	_, err := newTestGateway(server.URL).Complete(context.Background(), "sys", "prompt")

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestComplete_AllRetriesFail(t *testing.T) {
	attempts := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestGateway(server.URL).Complete(context.Background(), "sys", "prompt")

	assert.ErrorIs(t, err, domain.ErrAIUnavailable)
	assert.Equal(t, 3, attempts)
}

func TestComplete_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	_, err := newTestGateway(server.URL).Complete(context.Background(), "sys", "prompt")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode response")
}

func TestComplete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	_, err := newTestGateway(server.URL).Complete(context.Background(), "sys", "prompt")

	assert.ErrorIs(t, err, domain.ErrAIUnavailable)
}

func TestComplete_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	result, err := newTestGateway(server.URL).Complete(ctx, "sys", "prompt")

	assert.Empty(t, result)
	assert.Error(t, err)
}

func TestReadLimitedBody(t *testing.T) {
	t.Run("reads within limit", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("short content"))
		}))
		defer server.Close()

		resp, err := http.Get(server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := readLimitedBody(resp.Body, 1000)
		require.NoError(t, err)
		assert.Equal(t, "short content", string(body))
	})

	t.Run("truncates beyond limit", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for i := 0; i < 100; i++ {
				w.Write([]byte("0123456789"))
			}
		}))
		defer server.Close()

		resp, err := http.Get(server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := readLimitedBody(resp.Body, 100)
		require.NoError(t, err)
		assert.Len(t, body, 100)
	})
}

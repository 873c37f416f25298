package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/promptwatch/internal/resilience"
)

func TestChatCompletion(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantErr       string
		wantTransient bool
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{
				"id": "chatcmpl-1",
				"model": "gpt-4o-search-preview",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "Acme Corp is popular.",
					"annotations": [{"type": "url_citation", "url_citation": {"url": "https://acme.com/about", "title": "About"}}]}}],
				"usage": {"prompt_tokens": 12, "completion_tokens": 34}
			}`,
		},
		{
			name:          "rate_limit",
			status:        http.StatusTooManyRequests,
			body:          `{"error": "rate limit exceeded"}`,
			wantErr:       "unexpected status 429",
			wantTransient: true,
		},
		{
			name:          "server_error",
			status:        http.StatusInternalServerError,
			body:          `{"error": "internal server error"}`,
			wantErr:       "unexpected status 500",
			wantTransient: true,
		},
		{
			name:    "bad_request",
			status:  http.StatusBadRequest,
			body:    `{"error": "unknown model"}`,
			wantErr: "unexpected status 400",
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{invalid json`,
			wantErr: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/chat/completions", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL))

			resp, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
				Messages: []Message{{Role: "user", Content: "best widget vendor"}},
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, tt.wantTransient, resilience.IsTransient(err))
				assert.Nil(t, resp)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, "chatcmpl-1", resp.ID)
			require.Len(t, resp.Choices, 1)
			require.Len(t, resp.Choices[0].Message.Annotations, 1)
			assert.Equal(t, "https://acme.com/about", resp.Choices[0].Message.Annotations[0].URLCitation.URL)
			assert.Equal(t, 34, resp.Usage.CompletionTokens)
		})
	}
}

func TestDefaultModelAndSearchOptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-search-preview", req.Model)
		require.NotNil(t, req.WebSearchOptions)
		require.NotNil(t, req.WebSearchOptions.UserLocation)
		assert.Equal(t, "DE", req.WebSearchOptions.UserLocation.Approximate.Country)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}],"usage":{}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "test"}},
		WebSearchOptions: &WebSearchOptions{
			UserLocation: &UserLocation{Type: "approximate", Approximate: Approximate{Country: "DE"}},
		},
	})
	require.NoError(t, err)
}

func TestWithModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini-search-preview", req.Model)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}],"usage":{}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithModel("gpt-4o-mini-search-preview"))
	_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "test"}},
	})
	require.NoError(t, err)
}

func TestWithRateLimitSpacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}],"usage":{}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(20))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
			Messages: []Message{{Role: "user", Content: "test"}},
		})
		require.NoError(t, err)
	}
	// Burst 1 at 20 rps means the second and third calls each wait 50ms.
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestWithRateLimitHonorsCancellation(t *testing.T) {
	client := NewClient("test-key", WithRateLimit(0.001))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ChatCompletion(ctx, ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "test"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","choices":[],"usage":{}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ChatCompletion(ctx, ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "test"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send request")
}

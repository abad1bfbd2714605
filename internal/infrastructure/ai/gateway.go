// Package ai provides text completion clients for the smart matching pass.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/adbroll/matcher/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultGatewayModel = "google/gemini-2.5-flash"
	maxResponseBytes    = 1 << 20
)

// GatewayClient talks to an OpenAI-compatible chat completions endpoint
type GatewayClient struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	model       string
	rateLimiter *rate.Limiter
	logger      *zap.Logger
}

// chatMessage is one message of a chat completion request
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewGatewayClient creates a new chat completions client.
// requestsPerMinute <= 0 falls back to 30.
func NewGatewayClient(apiKey, baseURL, model string, requestsPerMinute int, timeout time.Duration, logger *zap.Logger) *GatewayClient {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 30
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if model == "" {
		model = defaultGatewayModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), 5)

	return &GatewayClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		rateLimiter: limiter,
		logger:      logger.Named("ai_gateway"),
	}
}

// doRequest executes a POST request with proper headers
func (c *GatewayClient) doRequest(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Adbroll-Matcher/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAIUnavailable, err)
	}
	return resp, nil
}

// Complete sends one system + user prompt pair and returns the first choice's text
func (c *GatewayClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	// Retry up to 3 times for transient failures
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter error: %w", err)
		}

		resp, err := c.doRequest(ctx, body)
		if err != nil {
			c.logger.Warn("Request error", zap.Int("attempt", attempt), zap.Error(err))
			lastErr = err
			if !sleepContext(ctx, exponentialBackoff(attempt)) {
				return "", ctx.Err()
			}
			continue
		}

		payload, _ := readLimitedBody(resp.Body, maxResponseBytes)
		resp.Body.Close()

		// 4xx other than 429 will not improve on retry
		if resp.StatusCode != http.StatusOK {
			c.logger.Warn("Gateway error",
				zap.Int("attempt", attempt),
				zap.Int("status", resp.StatusCode),
				zap.String("body", truncate(string(payload), 500)))
			lastErr = fmt.Errorf("%w: status %d", domain.ErrAIUnavailable, resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return "", lastErr
			}
			if !sleepContext(ctx, exponentialBackoff(attempt)) {
				return "", ctx.Err()
			}
			continue
		}

		var chat chatResponse
		if err := json.Unmarshal(payload, &chat); err != nil {
			return "", fmt.Errorf("%w: failed to decode response: %v", domain.ErrAIUnavailable, err)
		}
		if len(chat.Choices) == 0 {
			return "", fmt.Errorf("%w: empty response", domain.ErrAIUnavailable)
		}

		return chat.Choices[0].Message.Content, nil
	}

	c.logger.Error("All retries failed", zap.Error(lastErr))
	return "", lastErr
}

// exponentialBackoff returns the wait before retrying the given attempt
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// readLimitedBody reads at most limit bytes from r
func readLimitedBody(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

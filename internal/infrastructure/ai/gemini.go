package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/adbroll/matcher/internal/domain"
	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiClient completes prompts with the Gemini API
type GeminiClient struct {
	client      *genai.Client
	model       string
	rateLimiter *rate.Limiter
}

// NewGeminiClient creates a Gemini client. Close it when done.
func NewGeminiClient(ctx context.Context, apiKey, model string, requestsPerMinute int) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is not set", domain.ErrAIUnavailable)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 30
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		model:       model,
		rateLimiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), 5),
	}, nil
}

// Complete sends the prompt with system as the system instruction and returns the text parts
func (c *GeminiClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(0)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAIUnavailable, err)
	}

	return responseText(resp)
}

// Close releases the underlying connection
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no content generated", domain.ErrAIUnavailable)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: no text in response", domain.ErrAIUnavailable)
	}
	return b.String(), nil
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ai-workout-planner/internal/shared"
)

const groqAPIURL = "https://api.groq.com/openai/v1/chat/completions"

// GroqClient talks to the Groq OpenAI-compatible chat completions API.
type GroqClient struct {
	apiKey       string
	model        string
	systemPrompt string
	endpoint     string
	httpClient   *http.Client
}

type GroqOption func(*GroqClient)

// WithGroqEndpoint points the client at a different completions URL.
func WithGroqEndpoint(url string) GroqOption {
	return func(c *GroqClient) { c.endpoint = url }
}

func WithGroqHTTPClient(hc *http.Client) GroqOption {
	return func(c *GroqClient) { c.httpClient = hc }
}

// NewGroqClient creates a new Groq API client.
func NewGroqClient(apiKey, model, systemPrompt string, opts ...GroqOption) *GroqClient {
	c := &GroqClient{
		apiKey:       apiKey,
		model:        model,
		systemPrompt: systemPrompt,
		endpoint:     groqAPIURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateContent sends a prompt to the Groq model and returns the generated text.
func (c *GroqClient) GenerateContent(ctx context.Context, prompt string) (ContentResponse, error) {
	messages := make([]groqMessage, 0, 2)
	if c.systemPrompt != "" {
		messages = append(messages, groqMessage{Role: "system", Content: c.systemPrompt})
	}
	messages = append(messages, groqMessage{Role: "user", Content: prompt})

	reqBody := map[string]any{
		"model":           c.model,
		"messages":        messages,
		"temperature":     0.2,
		"response_format": map[string]string{"type": "json_object"},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ContentResponse{}, fmt.Errorf("groq network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ContentResponse{}, &StatusError{
			Status: resp.StatusCode,
			Model:  c.model,
			Err:    fmt.Errorf("groq api error: %s", string(bodyBytes)),
		}
	}

	var groqResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&groqResp); err != nil {
		return ContentResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(groqResp.Choices) == 0 {
		return ContentResponse{}, fmt.Errorf("%s: no content generated", c.model)
	}

	return ContentResponse{
		Content: groqResp.Choices[0].Message.Content,
		Usage: shared.TokenUsage{
			PromptTokens:     groqResp.Usage.PromptTokens,
			CompletionTokens: groqResp.Usage.CompletionTokens,
			TotalTokens:      groqResp.Usage.TotalTokens,
			Model:            c.model,
		},
	}, nil
}

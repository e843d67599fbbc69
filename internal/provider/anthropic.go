package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/felixgeelhaar/specflow/internal/errors"
)

// AnthropicBackend implements the Backend interface for the Anthropic
// messages API
type AnthropicBackend struct {
	apiKey  string
	baseURL string
	client  *http.Client
	config  *BackendConfig
	model   string
}

// Anthropic API request/response structures
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	TopP        float64            `json:"top_p,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason,omitempty"`
	Usage      anthropicUsage     `json:"usage"`
	Error      *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewAnthropicBackend creates a new Anthropic backend instance
func NewAnthropicBackend(config *BackendConfig) (*AnthropicBackend, error) {
	keyEnv := config.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "ANTHROPIC_API_KEY"
	}

	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeProviderConfig,
			fmt.Sprintf("no API key in %s for backend %s", keyEnv, config.ID))
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}

	if config.Model == "" {
		return nil, errors.New(errors.ErrCodeProviderConfig,
			fmt.Sprintf("model is required for backend %s", config.ID))
	}

	return &AnthropicBackend{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 600 * time.Second},
		config:  config,
		model:   config.Model,
	}, nil
}

// Generate implements Backend.Generate
func (b *AnthropicBackend) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	startTime := time.Now()

	anthReq := b.buildRequest(req)

	reqBody, err := json.Marshal(anthReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", b.baseURL+"/messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", b.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	httpResp, err := b.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewProviderTimeoutError(b.config.ID, err)
		}
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, b.statusError(httpResp, respBody)
	}

	var anthResp anthropicResponse
	if err := json.Unmarshal(respBody, &anthResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	// The messages API may interleave thinking blocks with the final text
	content := ""
	reasoning := ""
	for _, block := range anthResp.Content {
		switch block.Type {
		case "text":
			content += block.Text
		case "thinking":
			reasoning += block.Thinking
		}
	}

	return &GenerateResponse{
		Content:      content,
		Reasoning:    reasoning,
		InputTokens:  anthResp.Usage.InputTokens,
		OutputTokens: anthResp.Usage.OutputTokens,
		Model:        anthResp.Model,
		Latency:      time.Since(startTime),
		FinishReason: anthResp.StopReason,
		Backend:      b.config.ID,
	}, nil
}

// statusError maps a non-200 HTTP response to a typed error
func (b *AnthropicBackend) statusError(resp *http.Response, body []byte) error {
	message := string(body)
	var errResp anthropicResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		message = errResp.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return errors.NewProviderRateLimitError(b.config.ID, resp.Header.Get("Retry-After"))
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.NewProviderAuthError(b.config.ID)
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return errors.New(errors.ErrCodeProviderAPI,
			fmt.Sprintf("backend %s returned %d: %s", b.config.ID, resp.StatusCode, message)).
			WithSuggestion("The provider may be experiencing an outage; retrying may help")
	default:
		return errors.New(errors.ErrCodeProviderAPI,
			fmt.Sprintf("backend %s returned %d: %s", b.config.ID, resp.StatusCode, message))
	}
}

// buildRequest constructs an Anthropic API request from our GenerateRequest
func (b *AnthropicBackend) buildRequest(req *GenerateRequest) *anthropicRequest {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = b.config.Capabilities.MaxOutputTokens
	}

	return &anthropicRequest{
		Model: b.model,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.Prompt},
		},
		System:      req.SystemPrompt, // system prompt is separate in Anthropic
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
}

// Capabilities implements Backend.Capabilities
func (b *AnthropicBackend) Capabilities() *Capabilities {
	caps := b.config.Capabilities
	return &caps
}

// Health implements Backend.Health with a minimal one-token request
func (b *AnthropicBackend) Health(ctx context.Context) error {
	req := &anthropicRequest{
		Model:     b.model,
		Messages:  []anthropicMessage{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal health check: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", b.baseURL+"/messages", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", b.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Close implements Backend.Close
func (b *AnthropicBackend) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

// Compile-time verification that AnthropicBackend implements Backend
var _ Backend = (*AnthropicBackend)(nil)

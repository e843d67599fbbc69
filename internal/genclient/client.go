// Package genclient provides the resilient generation-invocation layer:
// one uniform Generate call over interchangeable backends with bounded
// retry, backoff, and an absolute wall-clock timeout.
package genclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/specflow/internal/errors"
	"github.com/felixgeelhaar/specflow/internal/log"
	"github.com/felixgeelhaar/specflow/internal/metrics"
	"github.com/felixgeelhaar/specflow/internal/params"
	"github.com/felixgeelhaar/specflow/internal/provider"
)

// DefaultMaxRetries bounds retry attempts when the caller does not specify
const DefaultMaxRetries = 3

// defaultBaseBackoff is the unit delay scaled per attempt
const defaultBaseBackoff = 1 * time.Second

// ContextDoc is a prior-phase artifact supplied as read-only context
type ContextDoc struct {
	Name    string
	Content string
}

// Input describes one generation call
type Input struct {
	// Prompt is the main instruction for this call
	Prompt string

	// ContextDocs are appended to the system instruction, never to the prompt
	ContextDocs []ContextDoc

	// MaxRetries bounds retry attempts; 0 means DefaultMaxRetries
	MaxRetries int

	// PhaseTag selects phase-specific parameter adjustments
	PhaseTag string

	// MaxTokens is the requested output length; 0 uses the resolved default.
	// Values beyond the backend's declared maximum are silently capped.
	MaxTokens int

	// Overrides are explicit parameter overrides for this call
	Overrides *params.Overrides
}

// Result is the outcome of a successful generation call
type Result struct {
	Content      string
	FinishReason string
	Usage        provider.Usage

	// UsedReasoning is set when the final answer was empty and the
	// backend's reasoning payload was used instead
	UsedReasoning bool

	// CappedOutput is set when the requested output length was capped to
	// the backend maximum
	CappedOutput bool
}

// Registry is the subset of the backend registry the client needs
type Registry interface {
	Get(id string) (provider.Backend, error)
}

// Client invokes one generation backend with retry, backoff, and timeout
type Client struct {
	backendID         string
	registry          Registry
	resolver          *params.Resolver
	systemInstruction string
	logger            *log.Logger
	metrics           *metrics.Metrics
	baseBackoff       time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithSystemInstruction sets the system-level instruction sent on every call
func WithSystemInstruction(instruction string) Option {
	return func(c *Client) { c.systemInstruction = instruction }
}

// WithLogger sets the client logger
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics sets the client metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithBaseBackoff sets the unit backoff delay (mainly for tests)
func WithBaseBackoff(d time.Duration) Option {
	return func(c *Client) { c.baseBackoff = d }
}

// New creates a generation client bound to one backend
func New(backendID string, registry Registry, resolver *params.Resolver, opts ...Option) *Client {
	c := &Client{
		backendID:   backendID,
		registry:    registry,
		resolver:    resolver,
		logger:      log.Default(),
		metrics:     metrics.Nop(),
		baseBackoff: defaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate runs one generation call under an absolute wall-clock timeout.
// Rate-limit errors retry with exponential backoff scaled by attempt number,
// other transient errors retry with linear backoff, and timeouts are
// terminal and never retried. After MaxRetries the call fails terminally
// with the last underlying message.
func (c *Client) Generate(ctx context.Context, in Input) (*Result, error) {
	resolution, err := c.resolver.Resolve(c.backendID, in.PhaseTag, in.Overrides)
	if err != nil {
		return nil, err
	}

	backend, err := c.registry.Get(c.backendID)
	if err != nil {
		return nil, err
	}

	req, capped := c.buildRequest(backend, in, resolution)
	if capped {
		c.logger.Warn("requested output length capped to backend maximum",
			"backend", c.backendID,
			"requested", in.MaxTokens,
			"applied", req.MaxTokens)
	}

	maxRetries := in.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	// One deadline covers the whole call including retries
	ctx, cancel := context.WithTimeout(ctx, resolution.Params.Timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		start := time.Now()
		resp, err := backend.Generate(ctx, req)
		c.metrics.GenerationLatency.WithLabelValues(c.backendID).Observe(time.Since(start).Seconds())

		if err == nil {
			c.metrics.GenerationCalls.WithLabelValues(c.backendID, "success").Inc()
			c.metrics.GenerationTokens.WithLabelValues(c.backendID, "input").Add(float64(resp.InputTokens))
			c.metrics.GenerationTokens.WithLabelValues(c.backendID, "output").Add(float64(resp.OutputTokens))
			return c.buildResult(resp, capped), nil
		}
		lastErr = err

		kind := classify(err)
		switch kind {
		case kindTimeout:
			c.metrics.GenerationCalls.WithLabelValues(c.backendID, "timeout").Inc()
			return nil, errors.NewProviderTimeoutError(c.backendID, err)
		case kindFatal:
			c.metrics.GenerationCalls.WithLabelValues(c.backendID, "error").Inc()
			return nil, err
		}

		if attempt == maxRetries {
			break
		}

		delay := c.backoffFor(kind, attempt)
		c.metrics.GenerationRetries.WithLabelValues(c.backendID, kind.String()).Inc()
		c.logger.Warn("generation call failed, retrying",
			"backend", c.backendID,
			"attempt", attempt+1,
			"kind", kind.String(),
			"backoff", delay.String(),
			"error", err.Error())

		if err := sleepCtx(ctx, delay); err != nil {
			c.metrics.GenerationCalls.WithLabelValues(c.backendID, "timeout").Inc()
			return nil, errors.NewProviderTimeoutError(c.backendID, err)
		}
	}

	c.metrics.GenerationCalls.WithLabelValues(c.backendID, "exhausted").Inc()
	return nil, errors.Wrap(errors.ErrCodeProviderExhausted,
		fmt.Sprintf("generation failed after %d retries", maxRetries), lastErr)
}

// buildRequest assembles the provider request, capping the requested
// output length to the backend's declared maximum
func (c *Client) buildRequest(backend provider.Backend, in Input, resolution *params.Resolution) (*provider.GenerateRequest, bool) {
	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = resolution.Params.MaxOutputTokens
	}

	capped := false
	if limit := backend.Capabilities().MaxOutputTokens; maxTokens > limit {
		maxTokens = limit
		capped = true
	}

	return &provider.GenerateRequest{
		Prompt:       in.Prompt,
		SystemPrompt: c.buildSystemPrompt(in.ContextDocs),
		MaxTokens:    maxTokens,
		Temperature:  resolution.Params.Temperature,
		TopP:         resolution.Params.TopP,
	}, capped
}

// buildSystemPrompt augments the system instruction with context documents
func (c *Client) buildSystemPrompt(docs []ContextDoc) string {
	var b strings.Builder
	b.WriteString(c.systemInstruction)

	for _, doc := range docs {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(fmt.Sprintf("## Context: %s\n\n%s", doc.Name, doc.Content))
	}

	return b.String()
}

// buildResult converts a provider response, preferring the final answer but
// falling back to the reasoning payload when the final answer is empty
func (c *Client) buildResult(resp *provider.GenerateResponse, capped bool) *Result {
	content := resp.Content
	usedReasoning := false
	if strings.TrimSpace(content) == "" && resp.Reasoning != "" {
		content = resp.Reasoning
		usedReasoning = true
		c.logger.Warn("final answer empty, falling back to reasoning payload",
			"backend", c.backendID)
	}

	return &Result{
		Content:      content,
		FinishReason: resp.FinishReason,
		Usage: provider.Usage{
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			TotalTokens:  resp.InputTokens + resp.OutputTokens,
		},
		UsedReasoning: usedReasoning,
		CappedOutput:  capped,
	}
}

// backoffFor computes the delay before the next attempt
func (c *Client) backoffFor(kind errorKind, attempt int) time.Duration {
	if kind == kindRateLimit {
		// Exponential, scaled by attempt number
		return c.baseBackoff << uint(attempt)
	}
	// Linear for other transient errors
	return c.baseBackoff * time.Duration(attempt+1)
}

// TestConnectivity reports whether the backend is reachable
func (c *Client) TestConnectivity(ctx context.Context) bool {
	backend, err := c.registry.Get(c.backendID)
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return backend.Health(ctx) == nil
}

// BackendID returns the backend this client is bound to
func (c *Client) BackendID() string {
	return c.backendID
}

// errorKind buckets generation errors for the retry policy
type errorKind int

const (
	kindFatal errorKind = iota
	kindRateLimit
	kindTransient
	kindTimeout
)

func (k errorKind) String() string {
	switch k {
	case kindRateLimit:
		return "rate_limit"
	case kindTransient:
		return "transient"
	case kindTimeout:
		return "timeout"
	default:
		return "fatal"
	}
}

// classify maps an error to its retry bucket. Typed error codes win;
// message matching is the fallback for errors from arbitrary backends.
func classify(err error) errorKind {
	if err == nil {
		return kindFatal
	}

	if stderrors.Is(err, context.DeadlineExceeded) ||
		errors.HasCode(err, errors.ErrCodeProviderTimeout) {
		return kindTimeout
	}
	if errors.HasCode(err, errors.ErrCodeProviderRateLimit) {
		return kindRateLimit
	}
	if errors.HasCode(err, errors.ErrCodeProviderAuth) ||
		errors.HasCode(err, errors.ErrCodeProviderConfig) ||
		errors.HasCode(err, errors.ErrCodeParamBackendUnknown) {
		return kindFatal
	}
	if errors.HasCode(err, errors.ErrCodeProviderAPI) {
		return kindTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timed out"):
		return kindTimeout
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return kindRateLimit
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "network"),
		strings.Contains(msg, "temporarily unavailable"),
		strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"):
		return kindTransient
	default:
		return kindFatal
	}
}

// sleepCtx waits for the delay or until the context is done, whichever
// comes first, guaranteeing timer release on every exit path
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package provider

import "time"

// GenerateRequest contains all parameters for generating a response
type GenerateRequest struct {
	// Prompt is the main input text for the model
	Prompt string `json:"prompt"`

	// SystemPrompt sets the system-level instructions
	SystemPrompt string `json:"system_prompt,omitempty"`

	// MaxTokens limits the maximum response length
	// Set to 0 to use the backend default
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 = deterministic, higher = creative)
	Temperature float64 `json:"temperature,omitempty"`

	// TopP controls nucleus sampling (alternative to temperature)
	// Range: 0.0 to 1.0
	TopP float64 `json:"top_p,omitempty"`

	// Metadata for tracking and debugging
	Metadata map[string]string `json:"metadata,omitempty"`
}

// GenerateResponse contains the model's response
type GenerateResponse struct {
	// Content is the generated text (the final answer)
	Content string `json:"content"`

	// Reasoning is the backend's secondary reasoning payload, when the
	// backend emits one distinct from the final answer
	Reasoning string `json:"reasoning,omitempty"`

	// InputTokens is tokens in the prompt
	InputTokens int `json:"input_tokens,omitempty"`

	// OutputTokens is tokens in the response
	OutputTokens int `json:"output_tokens,omitempty"`

	// Model is the actual model that generated the response
	Model string `json:"model"`

	// Latency is how long the generation took
	Latency time.Duration `json:"latency"`

	// FinishReason explains why generation stopped
	// Common values: "stop" (natural end), "length" (max tokens), "error"
	FinishReason string `json:"finish_reason"`

	// Backend is the id of the backend that handled this request
	Backend string `json:"backend"`
}

// Usage summarizes token consumption for a generation call
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Family identifies the provider family behind a backend
type Family string

const (
	FamilyAnthropic Family = "anthropic"
	FamilyGemini    Family = "gemini"
	FamilyOpenAI    Family = "openai"
	FamilyLocal     Family = "local"
)

// Capabilities describes what a backend supports and its hard limits
type Capabilities struct {
	// Family is the provider family (anthropic, gemini, openai, local)
	Family Family `yaml:"family" json:"family"`

	// MaxOutputTokens is the maximum output length the backend will honor
	MaxOutputTokens int `yaml:"max_output_tokens" json:"max_output_tokens"`

	// MaxContextTokens is the maximum context window size
	MaxContextTokens int `yaml:"max_context_tokens" json:"max_context_tokens"`

	// TemperatureMin and TemperatureMax bound the provider's valid
	// creativity range
	TemperatureMin float64 `yaml:"temperature_min" json:"temperature_min"`
	TemperatureMax float64 `yaml:"temperature_max" json:"temperature_max"`

	// SupportsReasoning indicates the backend can emit a reasoning payload
	// distinct from the final answer
	SupportsReasoning bool `yaml:"supports_reasoning" json:"supports_reasoning"`
}

// Preset contains a backend's default generation parameters
type Preset struct {
	// Temperature is the default creativity value
	Temperature float64 `yaml:"temperature" json:"temperature"`

	// TopP is the default nucleus sampling value
	TopP float64 `yaml:"top_p" json:"top_p"`

	// MaxOutputTokens is the default output length
	// 0 means "use the backend's maximum"
	MaxOutputTokens int `yaml:"max_output_tokens" json:"max_output_tokens"`

	// Timeout is the default wall-clock timeout for one generation call
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// PhaseTemperature maps a phase tag to a phase-specific temperature
	// adjustment, applied when no explicit override is present
	PhaseTemperature map[string]float64 `yaml:"phase_temperature,omitempty" json:"phase_temperature,omitempty"`
}

// BackendConfig represents one backend entry from specflow.yaml
type BackendConfig struct {
	// ID is the backend identifier, e.g. "demo-model"
	ID string `yaml:"id" json:"id"`

	// Model is the concrete model name sent to the provider API
	Model string `yaml:"model" json:"model"`

	// BaseURL overrides the provider API endpoint
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// APIKeyEnv names the environment variable holding the API key
	APIKeyEnv string `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`

	// Enabled controls if this backend is active
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Capabilities declares the backend's limits
	Capabilities Capabilities `yaml:"capabilities" json:"capabilities"`

	// Preset declares the backend's default parameters
	Preset Preset `yaml:"preset" json:"preset"`
}

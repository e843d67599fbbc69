package provider

import "context"

// Backend is the uniform capability over interchangeable text-generation
// services. The orchestration core never talks to a provider API directly;
// it only sees this interface.
type Backend interface {
	// Generate sends a prompt and returns a complete response
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// Capabilities returns the backend's declared limits
	Capabilities() *Capabilities

	// Health performs a connectivity check on the backend.
	// Returns nil if healthy, error describing the problem otherwise.
	Health(ctx context.Context) error

	// Close cleans up any resources used by the backend
	Close() error
}

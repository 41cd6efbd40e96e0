// Package ai provides provider clients and escalation plumbing for
// AI-assisted column classification. The local pipeline resolves most
// fields on its own; this package handles the small remainder that gets
// escalated to a model endpoint.
package ai

import (
	"context"
	"time"
)

// Client is the provider-neutral chat completion interface. Both the
// OpenAI-compatible and Anthropic clients implement it, as does
// MockClient for tests.
type Client interface {
	// Complete sends a system+user prompt pair and returns the model
	// output with token accounting.
	Complete(ctx context.Context, prompt string, systemMessage string, temperature float64) (*CompletionResult, error)

	// Model returns the configured model name.
	Model() string

	// Endpoint returns the configured endpoint URL.
	Endpoint() string
}

// CompletionResult contains the model output and usage stats.
type CompletionResult struct {
	Content      string
	PromptTokens int
	OutputTokens int
	TotalTokens  int
}

// Config holds connection settings for a provider client.
type Config struct {
	Endpoint string        // Base URL; empty selects the provider's public API
	Model    string        // Model name, e.g. "gpt-4o" or "claude-sonnet-4-5"
	APIKey   string        // Optional for local OpenAI-compatible endpoints
	Timeout  time.Duration // Per-request HTTP timeout; 0 leaves the transport default
}

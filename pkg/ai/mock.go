package ai

import (
	"context"
	"sync"

	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
)

// MockClient is a configurable mock for testing provider interactions.
// Set the function fields to control behavior in tests.
type MockClient struct {
	// CompleteFunc is called when Complete is invoked.
	// If nil, returns an empty result and nil error.
	CompleteFunc func(ctx context.Context, prompt string, systemMessage string, temperature float64) (*CompletionResult, error)

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	// EndpointURL is returned by Endpoint. Defaults to "http://mock-endpoint".
	EndpointURL string

	// Call tracking for verification
	CompleteCalls int
}

// NewMockClient creates a new mock with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		ModelName:   "mock-model",
		EndpointURL: "http://mock-endpoint",
	}
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, prompt string, systemMessage string, temperature float64) (*CompletionResult, error) {
	m.CompleteCalls++
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, systemMessage, temperature)
	}
	return &CompletionResult{}, nil
}

// Model implements Client.
func (m *MockClient) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Endpoint implements Client.
func (m *MockClient) Endpoint() string {
	if m.EndpointURL == "" {
		return "http://mock-endpoint"
	}
	return m.EndpointURL
}

// Reset clears call tracking counters.
func (m *MockClient) Reset() {
	m.CompleteCalls = 0
}

// Ensure MockClient implements Client at compile time.
var _ Client = (*MockClient)(nil)

// MockEscalator is a configurable mock for testing escalation flows.
// SubmitBatch may be called from multiple worker goroutines; call
// tracking is synchronized.
type MockEscalator struct {
	// SubmitBatchFunc is called when SubmitBatch is invoked.
	// If nil, returns an empty outcome and nil error.
	SubmitBatchFunc func(ctx context.Context, regulations []models.Regulation, fields []EscalationField) (*BatchOutcome, error)

	// Availability is returned by Available. Defaults to true via NewMockEscalator.
	Availability bool

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	// Call tracking for verification. Read only after the run under test
	// has finished.
	SubmitBatchCalls int
	SubmittedFields  [][]EscalationField

	mu sync.Mutex
}

// NewMockEscalator creates a new mock escalator that reports available.
func NewMockEscalator() *MockEscalator {
	return &MockEscalator{
		Availability: true,
		ModelName:    "mock-model",
	}
}

// SubmitBatch implements Escalator.
func (m *MockEscalator) SubmitBatch(ctx context.Context, regulations []models.Regulation, fields []EscalationField) (*BatchOutcome, error) {
	m.mu.Lock()
	m.SubmitBatchCalls++
	m.SubmittedFields = append(m.SubmittedFields, fields)
	m.mu.Unlock()
	if m.SubmitBatchFunc != nil {
		return m.SubmitBatchFunc(ctx, regulations, fields)
	}
	return &BatchOutcome{}, nil
}

// Available implements Escalator.
func (m *MockEscalator) Available() bool {
	return m.Availability
}

// Model implements Escalator.
func (m *MockEscalator) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Reset clears call tracking.
func (m *MockEscalator) Reset() {
	m.mu.Lock()
	m.SubmitBatchCalls = 0
	m.SubmittedFields = nil
	m.mu.Unlock()
}

// Ensure MockEscalator implements Escalator at compile time.
var _ Escalator = (*MockEscalator)(nil)

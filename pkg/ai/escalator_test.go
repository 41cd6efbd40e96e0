package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
	"github.com/schemaguard-io/schemaguard-engine/pkg/retry"
)

func fastRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:   1,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	}
}

func escalationFixture() []EscalationField {
	return []EscalationField{
		{
			Column: models.ColumnMetadata{
				TableName:  "patients",
				ColumnName: "mrn",
				DataType:   "varchar",
			},
			TableContext: models.TableContext{
				TableName:  "patients",
				Domain:     models.DomainHealthcare,
				Confidence: 0.85,
			},
			Siblings: []string{"id", "email", "admitted_at"},
			LocalResult: models.FieldAnalysisResult{
				Column:     models.ColumnMetadata{TableName: "patients", ColumnName: "mrn"},
				PIIType:    models.PIITypeNonSensitive,
				Confidence: 0.40,
				Stage:      models.StageDefault,
			},
		},
		{
			Column: models.ColumnMetadata{
				TableName:  "patients",
				ColumnName: "notes",
				DataType:   "text",
			},
			TableContext: models.TableContext{
				TableName:  "patients",
				Domain:     models.DomainHealthcare,
				Confidence: 0.85,
			},
			LocalResult: models.FieldAnalysisResult{
				Column:     models.ColumnMetadata{TableName: "patients", ColumnName: "notes"},
				PIIType:    models.PIITypeNonSensitive,
				Confidence: 0.30,
				Stage:      models.StageDefault,
			},
		},
	}
}

func TestProviderEscalator_SubmitBatch(t *testing.T) {
	client := NewMockClient()
	client.ModelName = "test-model"
	client.CompleteFunc = func(ctx context.Context, prompt, system string, temperature float64) (*CompletionResult, error) {
		if !strings.Contains(prompt, "patients.mrn") || !strings.Contains(prompt, "patients.notes") {
			t.Errorf("expected prompt to reference both fields, got:\n%s", prompt)
		}
		if !strings.Contains(prompt, "table_domain: healthcare") {
			t.Errorf("expected prompt to carry the table domain, got:\n%s", prompt)
		}
		if !strings.Contains(system, "NON_SENSITIVE") {
			t.Errorf("expected system prompt to list the type vocabulary")
		}
		return &CompletionResult{
			Content: `[
				{"field": "patients.mrn", "pii_type": "MEDICAL_RECORD", "confidence": 0.92, "regulations": ["HIPAA"], "rationale": "mrn is a medical record number"},
				{"field": "patients.notes", "pii_type": "HEALTH_CONDITION", "confidence": 1.7, "regulations": ["HIPAA", "NOT_A_REG"], "rationale": "free-text clinical notes"}
			]`,
			PromptTokens: 120,
			OutputTokens: 48,
		}, nil
	}

	esc := NewProviderEscalator(client, fastRetryConfig(), zap.NewNop())

	outcome, err := esc.SubmitBatch(context.Background(), []models.Regulation{models.RegulationHIPAA}, escalationFixture())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcome.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(outcome.Results))
	}

	first := outcome.Results[0]
	if first.FieldRef != "patients.mrn" || first.PIIType != models.PIITypeMedicalRecord {
		t.Errorf("unexpected first verdict: %+v", first)
	}
	if first.Confidence != 0.92 {
		t.Errorf("expected confidence 0.92, got %f", first.Confidence)
	}

	second := outcome.Results[1]
	if second.Confidence != 1.0 {
		t.Errorf("expected out-of-range confidence clamped to 1.0, got %f", second.Confidence)
	}
	if len(second.Regulations) != 1 || second.Regulations[0] != models.RegulationHIPAA {
		t.Errorf("expected unknown regulation tokens dropped, got %v", second.Regulations)
	}

	if outcome.Record.Model != "test-model" {
		t.Errorf("expected record model test-model, got %q", outcome.Record.Model)
	}
	if len(outcome.Record.FieldRefs) != 2 {
		t.Errorf("expected 2 field refs in record, got %d", len(outcome.Record.FieldRefs))
	}
	if outcome.Record.PromptTokens != 120 || outcome.Record.OutputTokens != 48 {
		t.Errorf("expected token accounting in record, got %+v", outcome.Record)
	}
}

func TestProviderEscalator_DropsInvalidVerdicts(t *testing.T) {
	client := NewMockClient()
	client.CompleteFunc = func(ctx context.Context, prompt, system string, temperature float64) (*CompletionResult, error) {
		return &CompletionResult{
			Content: `[
				{"field": "patients.mrn", "pii_type": "SPACESHIP_ID", "confidence": 0.9},
				{"field": "unknown.column", "pii_type": "EMAIL", "confidence": 0.9},
				{"field": "patients.notes", "pii_type": "HEALTH_CONDITION", "confidence": 0.8, "regulations": ["HIPAA"]}
			]`,
		}, nil
	}

	esc := NewProviderEscalator(client, fastRetryConfig(), zap.NewNop())

	outcome, err := esc.SubmitBatch(context.Background(), nil, escalationFixture())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcome.Results) != 1 {
		t.Fatalf("expected only the valid verdict to survive, got %d", len(outcome.Results))
	}
	if outcome.Results[0].FieldRef != "patients.notes" {
		t.Errorf("expected patients.notes, got %q", outcome.Results[0].FieldRef)
	}
}

func TestProviderEscalator_MalformedResponse(t *testing.T) {
	client := NewMockClient()
	client.CompleteFunc = func(ctx context.Context, prompt, system string, temperature float64) (*CompletionResult, error) {
		return &CompletionResult{Content: "Sorry, I cannot help with that."}, nil
	}

	esc := NewProviderEscalator(client, fastRetryConfig(), zap.NewNop())

	_, err := esc.SubmitBatch(context.Background(), nil, escalationFixture())
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}

	// A completed call keeps the breaker closed even when unparseable.
	if esc.breaker.State() != CircuitClosed {
		t.Errorf("expected breaker to stay closed, got %v", esc.breaker.State())
	}
}

func TestProviderEscalator_ProviderFailureTripsBreaker(t *testing.T) {
	client := NewMockClient()
	client.CompleteFunc = func(ctx context.Context, prompt, system string, temperature float64) (*CompletionResult, error) {
		return nil, NewError(ErrorTypeAuth, "authentication failed", false, nil)
	}

	esc := NewProviderEscalator(client, fastRetryConfig(), zap.NewNop())

	_, err := esc.SubmitBatch(context.Background(), nil, escalationFixture())
	if err == nil {
		t.Fatalf("expected error from failing provider")
	}
	if client.CompleteCalls != 1 {
		t.Errorf("expected no retries for a non-retryable error, got %d calls", client.CompleteCalls)
	}
	if esc.breaker.ConsecutiveFailures() != 1 {
		t.Errorf("expected breaker to record the failure, got %d", esc.breaker.ConsecutiveFailures())
	}
}

func TestProviderEscalator_RetriesTransientFailure(t *testing.T) {
	client := NewMockClient()
	client.CompleteFunc = func(ctx context.Context, prompt, system string, temperature float64) (*CompletionResult, error) {
		if client.CompleteCalls == 1 {
			return nil, NewError(ErrorTypeEndpoint, "connection failed", true, nil)
		}
		return &CompletionResult{
			Content: `[{"field": "patients.mrn", "pii_type": "MEDICAL_RECORD", "confidence": 0.9, "regulations": ["HIPAA"]}]`,
		}, nil
	}

	esc := NewProviderEscalator(client, fastRetryConfig(), zap.NewNop())

	outcome, err := esc.SubmitBatch(context.Background(), nil, escalationFixture())
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if client.CompleteCalls != 2 {
		t.Errorf("expected 2 calls (1 failure + 1 retry), got %d", client.CompleteCalls)
	}
	if len(outcome.Results) != 1 {
		t.Errorf("expected 1 result, got %d", len(outcome.Results))
	}
	if esc.breaker.ConsecutiveFailures() != 0 {
		t.Errorf("expected breaker reset after eventual success, got %d", esc.breaker.ConsecutiveFailures())
	}
}

func TestProviderEscalator_OpenBreakerBlocksSubmission(t *testing.T) {
	client := NewMockClient()
	esc := NewProviderEscalator(client, fastRetryConfig(), zap.NewNop())

	for i := 0; i < DefaultCircuitBreakerConfig().Threshold; i++ {
		esc.breaker.RecordFailure()
	}

	_, err := esc.SubmitBatch(context.Background(), nil, escalationFixture())
	if err == nil || !strings.Contains(err.Error(), "escalation blocked") {
		t.Fatalf("expected escalation blocked error, got %v", err)
	}
	if client.CompleteCalls != 0 {
		t.Errorf("expected no provider calls while the breaker is open, got %d", client.CompleteCalls)
	}
}

func TestProviderEscalator_EmptyBatch(t *testing.T) {
	client := NewMockClient()
	esc := NewProviderEscalator(client, fastRetryConfig(), zap.NewNop())

	outcome, err := esc.SubmitBatch(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcome.Results) != 0 {
		t.Errorf("expected no results for empty batch")
	}
	if client.CompleteCalls != 0 {
		t.Errorf("expected no provider calls for empty batch, got %d", client.CompleteCalls)
	}
}

func TestProviderEscalator_Available(t *testing.T) {
	esc := NewProviderEscalator(NewMockClient(), nil, zap.NewNop())
	if !esc.Available() {
		t.Errorf("expected escalator with client to be available")
	}

	noClient := NewProviderEscalator(nil, nil, zap.NewNop())
	if noClient.Available() {
		t.Errorf("expected escalator without client to be unavailable")
	}
}

package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/schemaguard-io/schemaguard-engine/pkg/jsonutil"
	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
	"github.com/schemaguard-io/schemaguard-engine/pkg/prompts"
	"github.com/schemaguard-io/schemaguard-engine/pkg/retry"
)

// escalationTemperature keeps verdicts near-deterministic.
const escalationTemperature = 0.1

// EscalationField is one low-confidence column handed to the model,
// together with everything the local pipeline learned about it. Sample
// values never appear here; the model sees metadata only.
type EscalationField struct {
	Column       models.ColumnMetadata
	TableContext models.TableContext
	Siblings     []string
	LocalResult  models.FieldAnalysisResult
}

// EscalationResult is one validated model verdict.
type EscalationResult struct {
	FieldRef    string
	PIIType     models.PIIType
	Confidence  float64
	Regulations []models.Regulation
	Rationale   string
}

// BatchOutcome carries the verdicts and the transcript accounting for
// one escalation call.
type BatchOutcome struct {
	Results []EscalationResult
	Record  models.EscalationRecord
}

// Escalator submits low-confidence fields for model review. One
// SubmitBatch call is one provider request; callers chunk larger field
// sets and fan the chunks out through the worker pool.
type Escalator interface {
	SubmitBatch(ctx context.Context, regulations []models.Regulation, fields []EscalationField) (*BatchOutcome, error)
	Available() bool
	Model() string
}

// ProviderEscalator escalates fields through a provider Client with
// retry and circuit breaking.
type ProviderEscalator struct {
	client   Client
	breaker  *CircuitBreaker
	retryCfg *retry.Config
	logger   *zap.Logger
}

// NewProviderEscalator creates an escalator backed by the given client.
// A nil retryCfg uses retry defaults.
func NewProviderEscalator(client Client, retryCfg *retry.Config, logger *zap.Logger) *ProviderEscalator {
	return &ProviderEscalator{
		client:   client,
		breaker:  NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		retryCfg: retryCfg,
		logger:   logger.Named("ai-escalation"),
	}
}

// Available reports whether a provider client is configured. Per-call
// health is the circuit breaker's job inside SubmitBatch.
func (e *ProviderEscalator) Available() bool {
	return e.client != nil
}

// Model returns the provider model name.
func (e *ProviderEscalator) Model() string {
	if e.client == nil {
		return ""
	}
	return e.client.Model()
}

// SubmitBatch sends one batch of fields for review and returns the
// validated verdicts. Verdicts that name unknown fields or unknown PII
// types are dropped with a warning; an unparseable response returns
// ErrMalformedResponse so callers keep the local results instead.
func (e *ProviderEscalator) SubmitBatch(
	ctx context.Context,
	regulations []models.Regulation,
	fields []EscalationField,
) (*BatchOutcome, error) {
	if len(fields) == 0 {
		return &BatchOutcome{}, nil
	}

	if ok, err := e.breaker.Allow(); !ok {
		return nil, fmt.Errorf("escalation blocked: %w", err)
	}

	prompt := escalationPrompt(regulations, fields)
	start := time.Now()

	result, err := retry.DoWithResultIfRetryable(ctx, e.retryCfg, func() (*CompletionResult, error) {
		return e.client.Complete(ctx, prompt, prompts.BuildEscalationSystemMessage(piiTypeNames()), escalationTemperature)
	})
	if err != nil {
		e.breaker.RecordFailure()
		return nil, fmt.Errorf("escalation request: %w", err)
	}
	e.breaker.RecordSuccess()

	verdicts, err := ParseJSONResponse[[]escalationVerdict](result.Content)
	if err != nil {
		e.logger.Warn("escalation response did not parse",
			zap.Int("fields", len(fields)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	refs := make([]string, len(fields))
	submitted := make(map[string]bool, len(fields))
	for i, f := range fields {
		refs[i] = f.Column.Ref()
		submitted[refs[i]] = true
	}

	results := make([]EscalationResult, 0, len(verdicts))
	for _, v := range verdicts {
		if !submitted[v.Field] {
			e.logger.Warn("verdict names an unsubmitted field", zap.String("field", v.Field))
			continue
		}
		rawType := jsonutil.FlexibleStringValue(v.PIIType)
		piiType, err := models.ParsePIIType(rawType)
		if err != nil {
			e.logger.Warn("verdict has unknown pii type",
				zap.String("field", v.Field),
				zap.String("pii_type", rawType))
			continue
		}
		results = append(results, EscalationResult{
			FieldRef:    v.Field,
			PIIType:     piiType,
			Confidence:  clamp01(jsonutil.FlexibleFloat64Value(v.Confidence)),
			Regulations: parseLenientRegulations(v.Regulations),
			Rationale:   jsonutil.FlexibleStringValue(v.Rationale),
		})
	}

	e.logger.Info("escalation batch completed",
		zap.Int("fields", len(fields)),
		zap.Int("verdicts", len(results)),
		zap.Duration("elapsed", time.Since(start)))

	return &BatchOutcome{
		Results: results,
		Record: models.EscalationRecord{
			Model:        e.client.Model(),
			FieldRefs:    refs,
			Elapsed:      time.Since(start),
			PromptTokens: result.PromptTokens,
			OutputTokens: result.OutputTokens,
		},
	}, nil
}

// escalationVerdict is the wire shape of one model verdict. pii_type,
// confidence, and rationale are raw because models sometimes swap
// strings and numbers; jsonutil coerces them.
type escalationVerdict struct {
	Field       string          `json:"field"`
	PIIType     json.RawMessage `json:"pii_type"`
	Confidence  json.RawMessage `json:"confidence"`
	Regulations []string        `json:"regulations"`
	Rationale   json.RawMessage `json:"rationale"`
}

// piiTypeNames returns the valid PII type vocabulary as plain strings
// for the prompt builder.
func piiTypeNames() []string {
	names := make([]string, len(models.ValidPIITypes))
	for i, t := range models.ValidPIITypes {
		names[i] = string(t)
	}
	return names
}

// escalationPrompt maps the batch into prompt inputs and renders the
// user message.
func escalationPrompt(regulations []models.Regulation, fields []EscalationField) string {
	regs := make([]string, len(regulations))
	for i, r := range regulations {
		regs[i] = string(r)
	}

	contexts := make([]prompts.FieldContext, len(fields))
	for i, f := range fields {
		contexts[i] = prompts.FieldContext{
			Ref:              f.Column.Ref(),
			DataType:         f.Column.DataType,
			IsNullable:       f.Column.IsNullable,
			TableDomain:      string(f.TableContext.Domain),
			DomainConfidence: f.TableContext.Confidence,
			Siblings:         f.Siblings,
			LocalStage:       string(f.LocalResult.Stage),
			LocalPIIType:     string(f.LocalResult.PIIType),
			LocalConfidence:  f.LocalResult.Confidence,
		}
	}

	return prompts.BuildEscalationPrompt(regs, contexts)
}

// parseLenientRegulations keeps the known regulations from a model
// verdict and drops unknown tokens instead of rejecting the verdict.
func parseLenientRegulations(tokens []string) []models.Regulation {
	var regs []models.Regulation
	for _, t := range tokens {
		reg, err := models.ParseRegulation(t)
		if err != nil {
			continue
		}
		regs = append(regs, reg)
	}
	return regs
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var _ Escalator = (*ProviderEscalator)(nil)

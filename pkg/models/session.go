package models

import (
	"time"

	"github.com/google/uuid"
)

// ClassifyRequest is one classification run over a schema.
type ClassifyRequest struct {
	Schema Schema `json:"schema"`
	// Regulations scopes regulation-specific matching; empty means all
	// supported regulations.
	Regulations []Regulation `json:"regulations,omitempty"`
	// Region and Tenant salt the schema fingerprint so equal schemas in
	// different jurisdictions or tenants never share cache entries.
	Region string `json:"region,omitempty"`
	Tenant string `json:"tenant,omitempty"`
}

// DiagnosticReason labels why a field degraded to a fallback result.
type DiagnosticReason string

const (
	DiagnosticAIUnavailable        DiagnosticReason = "ai_unavailable"
	DiagnosticAITimeout            DiagnosticReason = "ai_timeout"
	DiagnosticAIInvalidResponse    DiagnosticReason = "ai_invalid_response"
	DiagnosticCacheBypass          DiagnosticReason = "cache_bypass"
	DiagnosticLowContextConfidence DiagnosticReason = "low_context_confidence"
	DiagnosticEscalationCeiling    DiagnosticReason = "escalation_ceiling"
	DiagnosticSessionBudget        DiagnosticReason = "session_budget_exceeded"
)

// Diagnostic records one degraded or fallback field and why.
type Diagnostic struct {
	FieldRef string           `json:"field_ref,omitempty"`
	Reason   DiagnosticReason `json:"reason"`
	Detail   string           `json:"detail,omitempty"`
}

// SessionSummary aggregates one session's results.
type SessionSummary struct {
	TotalFields     int                `json:"total_fields"`
	SensitiveFields int                `json:"sensitive_fields"`
	ByPIIType       map[PIIType]int    `json:"by_pii_type,omitempty"`
	ByRegulation    map[Regulation]int `json:"by_regulation,omitempty"`
	// LocalCoverage and AICoverage are fractions of fields in [0,1]
	// resolved by local matching vs the AI collaborator.
	LocalCoverage float64   `json:"local_coverage"`
	AICoverage    float64   `json:"ai_coverage"`
	HighestRisk   RiskLevel `json:"highest_risk"`
}

// EscalationRecord captures one AI escalation exchange for diagnostics.
// Recorded in memory per session, never persisted.
type EscalationRecord struct {
	Model        string        `json:"model"`
	FieldRefs    []string      `json:"field_refs"`
	Elapsed      time.Duration `json:"elapsed_ns"`
	PromptTokens int           `json:"prompt_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
}

// ClassificationSession is the full outcome of one classify request:
// a result for every input field, aggregates, and degradation diagnostics.
type ClassificationSession struct {
	ID                   uuid.UUID             `json:"id"`
	Tenant               string                `json:"tenant,omitempty"`
	Region               string                `json:"region,omitempty"`
	RequestedRegulations []Regulation          `json:"requested_regulations"`
	Fingerprint          string                `json:"fingerprint"`
	Results              []FieldAnalysisResult `json:"results"`
	Summary              SessionSummary        `json:"summary"`
	Diagnostics          []Diagnostic          `json:"diagnostics,omitempty"`
	Escalations          []EscalationRecord    `json:"escalations,omitempty"`
	CacheHit             bool                  `json:"cache_hit"`
	// Incomplete marks sessions cut short by the time budget; every field
	// still carries a usable local result.
	Incomplete bool          `json:"incomplete,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// ComputeSummary rebuilds the aggregate counters from Results.
func (s *ClassificationSession) ComputeSummary() {
	summary := SessionSummary{
		TotalFields:  len(s.Results),
		ByPIIType:    make(map[PIIType]int),
		ByRegulation: make(map[Regulation]int),
		HighestRisk:  RiskLevelNone,
	}

	aiCount := 0
	for i := range s.Results {
		r := &s.Results[i]
		if r.IsSensitive {
			summary.SensitiveFields++
			summary.ByPIIType[r.PIIType]++
			for _, reg := range r.Regulations {
				summary.ByRegulation[reg]++
			}
			summary.HighestRisk = MaxRiskLevel(summary.HighestRisk, r.RiskLevel)
		}
		if r.FromAI {
			aiCount++
		}
	}

	if summary.TotalFields > 0 {
		summary.AICoverage = float64(aiCount) / float64(summary.TotalFields)
		summary.LocalCoverage = 1 - summary.AICoverage
	}

	s.Summary = summary
}

// ResultFor returns the result for a "table.column" reference, or nil.
func (s *ClassificationSession) ResultFor(ref string) *FieldAnalysisResult {
	for i := range s.Results {
		if s.Results[i].Ref() == ref {
			return &s.Results[i]
		}
	}
	return nil
}

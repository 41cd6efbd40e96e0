// Package audit provides compliance audit logging for classification
// activity. Events carry a structured JSON payload so SIEM and
// compliance tooling can ingest them without parsing message text.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
)

// ClassificationEventType categorizes audit events for filtering and alerting.
type ClassificationEventType string

const (
	// EventSchemaClassified is logged once per completed classification run.
	EventSchemaClassified ClassificationEventType = "schema_classified"
	// EventRequestRejected is logged when a classification request fails
	// validation before reaching the pipeline.
	EventRequestRejected ClassificationEventType = "request_rejected"
)

// ClassificationEvent is one auditable event with the context downstream
// tooling needs to reconstruct who classified what, and when.
type ClassificationEvent struct {
	Timestamp time.Time               `json:"timestamp"`
	EventType ClassificationEventType `json:"event_type"`
	SessionID uuid.UUID               `json:"session_id,omitempty"`
	Tenant    string                  `json:"tenant,omitempty"`
	Region    string                  `json:"region,omitempty"`
	Details   any                     `json:"details"`
	Severity  string                  `json:"severity"` // info, warning
}

// SchemaClassifiedDetails summarizes one completed run. Column names and
// verdicts stay out of the audit stream; the session holds those.
type SchemaClassifiedDetails struct {
	Regulations     []models.Regulation `json:"regulations"`
	Fingerprint     string              `json:"fingerprint"`
	TotalFields     int                 `json:"total_fields"`
	SensitiveFields int                 `json:"sensitive_fields"`
	HighestRisk     models.RiskLevel    `json:"highest_risk"`
	CacheHit        bool                `json:"cache_hit"`
	AICoverage      float64             `json:"ai_coverage"`
	Incomplete      bool                `json:"incomplete,omitempty"`
}

// RequestRejectedDetails records why a request never reached the pipeline.
type RequestRejectedDetails struct {
	Tool   string `json:"tool"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// ClassificationAuditor logs classification audit events.
type ClassificationAuditor struct {
	logger *zap.Logger
}

// NewClassificationAuditor creates an auditor with a dedicated logger
// namespace so audit events filter cleanly in log pipelines.
func NewClassificationAuditor(logger *zap.Logger) *ClassificationAuditor {
	return &ClassificationAuditor{logger: logger.Named("compliance_audit")}
}

// RecordSchemaClassified logs one completed classification run. Runs that
// surface critical-risk columns log at WARN so alerting can key on level
// alone; everything else logs at INFO.
func (a *ClassificationAuditor) RecordSchemaClassified(session *models.ClassificationSession) {
	severity := "info"
	if session.Summary.HighestRisk == models.RiskLevelCritical {
		severity = "warning"
	}

	event := ClassificationEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventSchemaClassified,
		SessionID: session.ID,
		Tenant:    session.Tenant,
		Region:    session.Region,
		Details: SchemaClassifiedDetails{
			Regulations:     session.RequestedRegulations,
			Fingerprint:     session.Fingerprint,
			TotalFields:     session.Summary.TotalFields,
			SensitiveFields: session.Summary.SensitiveFields,
			HighestRisk:     session.Summary.HighestRisk,
			CacheHit:        session.CacheHit,
			AICoverage:      session.Summary.AICoverage,
			Incomplete:      session.Incomplete,
		},
		Severity: severity,
	}

	// Marshaling known types does not fail
	eventJSON, _ := json.Marshal(event)

	fields := []zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("session_id", session.ID.String()),
		zap.String("tenant", session.Tenant),
		zap.String("fingerprint", session.Fingerprint),
		zap.Int("total_fields", session.Summary.TotalFields),
		zap.Int("sensitive_fields", session.Summary.SensitiveFields),
		zap.String("highest_risk", string(session.Summary.HighestRisk)),
		zap.Bool("cache_hit", session.CacheHit),
		zap.String("severity", severity),
	}

	if severity == "warning" {
		a.logger.Warn("Schema classified", fields...)
		return
	}
	a.logger.Info("Schema classified", fields...)
}

// RecordRequestRejected logs a request that failed validation. Logged at
// WARN; rejects are caller errors, not system failures, but a burst of
// them is worth noticing.
func (a *ClassificationAuditor) RecordRequestRejected(tool, code, reason, tenant string) {
	event := ClassificationEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventRequestRejected,
		Tenant:    tenant,
		Details: RequestRejectedDetails{
			Tool:   tool,
			Code:   code,
			Reason: reason,
		},
		Severity: "warning",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("Classification request rejected",
		zap.String("event_json", string(eventJSON)),
		zap.String("tool", tool),
		zap.String("code", code),
		zap.String("reason", reason),
		zap.String("tenant", tenant),
		zap.String("severity", "warning"),
	)
}

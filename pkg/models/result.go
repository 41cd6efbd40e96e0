package models

// MatchStage identifies which pipeline stage produced a field result.
type MatchStage string

const (
	StageOverride        MatchStage = "override"
	StageExact           MatchStage = "exact"
	StageRegulationExact MatchStage = "regulation_exact"
	StageAlias           MatchStage = "alias"
	StageFuzzy           MatchStage = "fuzzy"
	StageContext         MatchStage = "context"
	StageRegex           MatchStage = "regex"
	StageDefault         MatchStage = "default"
	// StageAI marks results rewritten by the escalation collaborator.
	StageAI MatchStage = "ai"
)

// FieldAnalysisResult is the classification outcome for one column.
// Immutable once produced. Regulations is non-empty exactly when
// IsSensitive is true.
type FieldAnalysisResult struct {
	Column      ColumnMetadata `json:"column"`
	IsSensitive bool           `json:"is_sensitive"`
	PIIType     PIIType        `json:"pii_type"`
	RiskLevel   RiskLevel      `json:"risk_level"`
	Confidence  float64        `json:"confidence"`
	Regulations []Regulation   `json:"regulations,omitempty"`
	Rationale   string         `json:"rationale,omitempty"`
	Stage       MatchStage     `json:"stage"`
	FromCache   bool           `json:"from_cache,omitempty"`
	FromAI      bool           `json:"from_ai,omitempty"`
}

// Ref returns the "table.column" reference of the classified column.
func (r *FieldAnalysisResult) Ref() string {
	return r.Column.Ref()
}

// HasRegulation reports whether the field carries the given regulation.
func (r *FieldAnalysisResult) HasRegulation(reg Regulation) bool {
	for _, have := range r.Regulations {
		if have == reg {
			return true
		}
	}
	return false
}

package models

// TableContext carries the inferred domain of one table for one scan.
// It is computed fresh per table and never persisted beyond the session.
type TableContext struct {
	TableName string `json:"table_name"`
	// Domain is the winning category; DomainGeneral when no category
	// meaningfully dominates.
	Domain DomainCategory `json:"domain"`
	// Scores holds the raw keyword-match score per candidate domain.
	Scores map[DomainCategory]int `json:"scores,omitempty"`
	// Confidence grades the category call in [0,1]. Low confidence is
	// logged by consumers but never fails a classification.
	Confidence float64 `json:"confidence"`
}

// Dominant reports whether the table resolved to a specific domain.
func (tc *TableContext) Dominant() bool {
	return tc.Domain != DomainGeneral
}

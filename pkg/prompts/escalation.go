// Package prompts builds the model-facing messages for AI escalation.
// Prompt wording lives here, away from transport and retry concerns.
package prompts

import (
	"fmt"
	"strings"
)

// FieldContext is one escalated column as the model sees it: metadata
// and the local pipeline's hypothesis, never data values.
type FieldContext struct {
	Ref              string // "table.column"
	DataType         string
	IsNullable       bool
	TableDomain      string // empty when no dominant table domain
	DomainConfidence float64
	Siblings         []string
	LocalStage       string
	LocalPIIType     string
	LocalConfidence  float64
}

// maxSiblingNames limits how many sibling column names one field carries
// into the prompt.
const maxSiblingNames = 12

// BuildEscalationSystemMessage returns the system message. validTypes is
// the PII type vocabulary verdicts must draw from; output that strays
// from it is dropped by the caller.
func BuildEscalationSystemMessage(validTypes []string) string {
	var b strings.Builder
	b.WriteString("You are a data privacy analyst reviewing database schema metadata. ")
	b.WriteString("You receive column metadata (never data values) together with a rule-based hypothesis for each column. ")
	b.WriteString("Decide the best PII type for every column.\n\n")
	b.WriteString("Respond with ONLY a JSON array, one object per column:\n")
	b.WriteString(`[{"field": "table.column", "pii_type": "<TYPE>", "confidence": 0.0-1.0, "regulations": ["HIPAA"|"GDPR"|"CCPA"|"PCI-DSS"], "rationale": "<one short sentence>"}]`)
	b.WriteString("\n\nValid pii_type values: ")
	b.WriteString(strings.Join(validTypes, ", "))
	b.WriteString(".\nUse NON_SENSITIVE with an empty regulations list for columns that do not store personal data. ")
	b.WriteString("Do not invent types. Do not wrap the JSON in markdown.")
	return b.String()
}

// BuildEscalationPrompt renders the user message for one review batch:
// regulation scope, per-column metadata, and decision guidelines.
func BuildEscalationPrompt(regulations []string, fields []FieldContext) string {
	var prompt strings.Builder

	prompt.WriteString("# Column Sensitivity Review\n\n")

	if len(regulations) > 0 {
		fmt.Fprintf(&prompt, "Regulations in scope: %s\n\n", strings.Join(regulations, ", "))
	}

	prompt.WriteString("## Columns to review\n\n")
	for i, f := range fields {
		fmt.Fprintf(&prompt, "%d. field: %s\n", i+1, f.Ref)
		fmt.Fprintf(&prompt, "   data_type: %s\n", f.DataType)
		fmt.Fprintf(&prompt, "   nullable: %t\n", f.IsNullable)
		if f.TableDomain != "" {
			fmt.Fprintf(&prompt, "   table_domain: %s (confidence %.2f)\n", f.TableDomain, f.DomainConfidence)
		}
		if len(f.Siblings) > 0 {
			siblings := f.Siblings
			if len(siblings) > maxSiblingNames {
				siblings = siblings[:maxSiblingNames]
			}
			fmt.Fprintf(&prompt, "   sibling_columns: %s\n", strings.Join(siblings, ", "))
		}
		fmt.Fprintf(&prompt, "   local_hypothesis: stage=%s type=%s confidence=%.2f\n",
			f.LocalStage, f.LocalPIIType, f.LocalConfidence)
	}

	prompt.WriteString("\n## Analysis Guidelines\n\n")
	prompt.WriteString("**Confirm or sharpen the hypothesis when**:\n")
	prompt.WriteString("- The table domain corroborates it (an mrn column in a healthcare table)\n")
	prompt.WriteString("- Sibling columns form a recognizable cluster (first_name beside last_name and date_of_birth)\n")
	prompt.WriteString("- The data type fits the hypothesized type (date columns for birth dates, numerics for account numbers)\n\n")
	prompt.WriteString("**Overrule the hypothesis when**:\n")
	prompt.WriteString("- The name only coincidentally resembles a sensitive pattern (ssn_batch_size is a counter, not a social security number)\n")
	prompt.WriteString("- The column is operational with no data subject (retry counts, feature flags, schema versions)\n\n")
	prompt.WriteString("When torn between two sensitive types, pick the more specific one and lower the confidence.\n")

	return prompt.String()
}

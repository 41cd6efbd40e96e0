package models

import "fmt"

// PatternKind discriminates how a sensitivity pattern matches a column name.
type PatternKind string

const (
	// PatternExact matches the full normalized column name.
	PatternExact PatternKind = "exact"
	// PatternAlias matches an organization-specific synonym.
	PatternAlias PatternKind = "alias"
	// PatternFuzzy matches by token-set similarity against a stem.
	PatternFuzzy PatternKind = "fuzzy"
	// PatternRegex matches a word-boundary anchored regular expression.
	PatternRegex PatternKind = "regex"
	// PatternContext matches generic names only inside a qualifying table
	// domain (e.g. "id" in a healthcare table).
	PatternContext PatternKind = "context"
)

// ValidPatternKinds contains every supported pattern kind.
var ValidPatternKinds = []PatternKind{
	PatternExact,
	PatternAlias,
	PatternFuzzy,
	PatternRegex,
	PatternContext,
}

// IsValidPatternKind checks if the given kind is supported.
func IsValidPatternKind(k PatternKind) bool {
	for _, v := range ValidPatternKinds {
		if v == k {
			return true
		}
	}
	return false
}

// SensitivityPattern is one curated matching rule. Instances are immutable
// and owned by the pattern library; which fields are meaningful depends on
// Kind:
//   - exact/alias: Value is the normalized name or synonym.
//   - fuzzy: Value is the stem compared by similarity.
//   - regex: Value is the expression source; the library compiles it with
//     word-boundary anchors.
//   - context: Value is the normalized name, Domains gates the table
//     domains it may fire in.
type SensitivityPattern struct {
	ID          string           `json:"id"`
	Kind        PatternKind      `json:"kind"`
	Value       string           `json:"value"`
	PIIType     PIIType          `json:"pii_type"`
	Confidence  float64          `json:"confidence"`
	Regulations []Regulation     `json:"regulations"`
	Priority    int              `json:"priority"`
	Domains     []DomainCategory `json:"domains,omitempty"`
}

// Validate rejects patterns the library must skip rather than load.
func (p *SensitivityPattern) Validate() error {
	if p.Value == "" {
		return fmt.Errorf("pattern %q: empty value", p.ID)
	}
	if !IsValidPatternKind(p.Kind) {
		return fmt.Errorf("pattern %q: unknown kind %q", p.ID, p.Kind)
	}
	if !IsValidPIIType(p.PIIType) {
		return fmt.Errorf("pattern %q: unknown pii type %q", p.ID, p.PIIType)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("pattern %q: confidence %v outside [0,1]", p.ID, p.Confidence)
	}
	for _, reg := range p.Regulations {
		if !IsValidRegulation(reg) {
			return fmt.Errorf("pattern %q: unknown regulation %q", p.ID, reg)
		}
	}
	if p.Kind == PatternContext && len(p.Domains) == 0 {
		return fmt.Errorf("pattern %q: context pattern without domains", p.ID)
	}
	return nil
}

// AppliesTo reports whether the pattern carries the given regulation.
// Patterns with an empty regulation set apply everywhere.
func (p *SensitivityPattern) AppliesTo(reg Regulation) bool {
	if len(p.Regulations) == 0 {
		return true
	}
	for _, r := range p.Regulations {
		if r == reg {
			return true
		}
	}
	return false
}

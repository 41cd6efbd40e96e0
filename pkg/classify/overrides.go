package classify

import (
	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
	"github.com/schemaguard-io/schemaguard-engine/pkg/patterns"
)

// Overrides is the curated table of known cross-category collisions,
// consulted before any generic matching stage. It can settle a column
// outright (audit timestamps are never sensitive) or veto specific PII
// types for the later stages (a *_date column must never match a
// contact-number pattern, however its tokens read).
type Overrides struct {
	temporalMarkers map[string]bool
	temporalVerbs   map[string]bool
	structuralNouns map[string]bool

	// temporalBlocks lists the PII types a temporal column can never
	// take from a generic stage.
	temporalBlocks []models.PIIType
}

// overrideConfidence grades curated rules; they encode reviewed
// decisions, not heuristics.
const overrideConfidence = 0.95

// DefaultOverrides returns the builtin collision table.
func DefaultOverrides() *Overrides {
	return &Overrides{
		temporalMarkers: toSet([]string{
			"date", "at", "time", "timestamp", "datetime", "day", "month",
			"year", "week", "quarter", "hour", "minute", "epoch",
		}),
		temporalVerbs: toSet([]string{
			"created", "updated", "deleted", "modified", "cancelled",
			"canceled", "archived", "published", "expired", "scheduled",
			"completed", "started", "ended", "processed", "sent", "received",
			"approved", "rejected", "closed", "opened", "last", "first",
			"next", "previous", "prev", "start", "end", "begin", "due",
			"effective", "valid",
		}),
		structuralNouns: toSet([]string{
			"host", "file", "path", "table", "column", "schema", "db",
			"database", "domain", "server", "app", "service", "branch",
			"repo", "bucket", "queue", "topic", "class", "index", "package",
			"module", "config", "company", "business", "org", "organization",
			"brand", "store", "shop", "product", "plan", "role", "group",
			"team", "project",
		}),
		temporalBlocks: []models.PIIType{
			models.PIITypePhone,
			models.PIITypeEmail,
		},
	}
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// Classify settles a column without consulting any pattern. It returns
// the forced PII type with a rationale, or ok=false when no curated
// rule claims the column.
//
// The only assigning rules today are pure temporal names: every token
// is a time marker or an audit verb, with at least one marker present.
// "cancelled_date" and "created_at" settle here as NON_SENSITIVE before
// any token of theirs can brush against a contact pattern.
func (o *Overrides) Classify(column models.ColumnMetadata) (models.PIIType, string, bool) {
	tokens := patterns.Tokens(column.ColumnName)
	if len(tokens) == 0 {
		return "", "", false
	}

	markers := 0
	for _, token := range tokens {
		switch {
		case o.temporalMarkers[token]:
			markers++
		case o.temporalVerbs[token]:
		default:
			return "", "", false
		}
	}
	if markers == 0 {
		return "", "", false
	}

	return models.PIITypeNonSensitive, "timestamp or audit column", true
}

// BlockedTypes returns the PII types later stages may not assign to
// this column. A stage whose candidate lands in the blocked set is
// skipped; the pipeline continues with the next stage.
func (o *Overrides) BlockedTypes(column models.ColumnMetadata) map[models.PIIType]bool {
	tokens := patterns.Tokens(column.ColumnName)

	blocked := make(map[models.PIIType]bool)

	hasName := false
	hasStructural := false
	for _, token := range tokens {
		if o.temporalMarkers[token] {
			for _, t := range o.temporalBlocks {
				blocked[t] = true
			}
		}
		if token == "name" {
			hasName = true
		}
		if o.structuralNouns[token] {
			hasStructural = true
		}
	}

	// host_name, table_name, company_name: infrastructure and entity
	// labels, not person names.
	if hasName && hasStructural {
		blocked[models.PIITypePersonName] = true
	}

	return blocked
}

// Package classify implements local column classification: table domain
// resolution, the staged matching pipeline, and the override rules that
// neutralize known cross-category false positives.
package classify

import (
	"go.uber.org/zap"

	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
	"github.com/schemaguard-io/schemaguard-engine/pkg/patterns"
)

// Keyword weights for domain scoring. A hit in the table name outweighs
// a hit in a sibling column because the table name states intent.
const (
	tableNameHitScore = 3
	columnHitScore    = 1

	// dominanceMinScore is the minimum winning score for a specific
	// domain call; below it the table resolves to general.
	dominanceMinScore = 2
)

// domainKeywords maps each candidate domain to its signal vocabulary.
// Tokens are compared in singularized form.
var domainKeywords = map[models.DomainCategory][]string{
	models.DomainHealthcare: {
		"patient", "medical", "clinical", "diagnosis", "treatment", "health",
		"hospital", "provider", "physician", "nurse", "mrn", "icd",
		"prescription", "medication", "allergy", "immunization", "encounter",
		"admission", "discharge", "lab", "specimen", "insurance", "claim",
	},
	models.DomainFinancial: {
		"account", "payment", "transaction", "invoice", "billing", "bank",
		"card", "credit", "debit", "loan", "balance", "currency", "ledger",
		"payroll", "tax", "routing", "iban", "swift", "deposit", "withdrawal",
		"merchant", "statement",
	},
	models.DomainEducation: {
		"student", "course", "enrollment", "grade", "gpa", "transcript",
		"school", "teacher", "instructor", "classroom", "semester", "degree",
		"campus", "tuition", "curriculum", "exam",
	},
	models.DomainBusiness: {
		"customer", "order", "product", "employee", "vendor", "supplier",
		"inventory", "shipment", "department", "company", "contract",
		"project", "sku", "warehouse", "catalog", "subscription",
	},
}

// ContextResolver infers the business domain of a table from its name
// and column vocabulary.
type ContextResolver interface {
	Resolve(tableName string, siblingColumns []string) models.TableContext
}

type keywordContextResolver struct {
	// keywords indexes each domain's vocabulary for O(1) token checks.
	keywords map[models.DomainCategory]map[string]bool
	logger   *zap.Logger
}

var _ ContextResolver = (*keywordContextResolver)(nil)

// NewContextResolver builds the keyword-set resolver.
func NewContextResolver(logger *zap.Logger) ContextResolver {
	indexed := make(map[models.DomainCategory]map[string]bool, len(domainKeywords))
	for domain, words := range domainKeywords {
		set := make(map[string]bool, len(words))
		for _, w := range words {
			set[w] = true
		}
		indexed[domain] = set
	}
	return &keywordContextResolver{
		keywords: indexed,
		logger:   logger.Named("context-resolver"),
	}
}

// Resolve scores the table name and sibling columns against every
// domain vocabulary. The highest score wins when it is dominant; ties
// favor the narrowest domain. A table with no meaningful signal
// resolves to general, never to a specific domain by default.
func (r *keywordContextResolver) Resolve(tableName string, siblingColumns []string) models.TableContext {
	scores := make(map[models.DomainCategory]int, len(r.keywords))

	for domain, vocab := range r.keywords {
		score := 0
		for _, token := range patterns.Tokens(tableName) {
			if vocab[token] {
				score += tableNameHitScore
			}
		}
		for _, column := range siblingColumns {
			for _, token := range patterns.Tokens(column) {
				if vocab[token] {
					score += columnHitScore
				}
			}
		}
		if score > 0 {
			scores[domain] = score
		}
	}

	winner, best, runnerUp := rankDomains(scores)

	ctx := models.TableContext{
		TableName:  tableName,
		Domain:     models.DomainGeneral,
		Scores:     scores,
		Confidence: 0.5,
	}

	if best < dominanceMinScore {
		r.logger.Debug("Table resolved to general domain",
			zap.String("table", tableName),
			zap.Int("best_score", best))
		return ctx
	}

	ctx.Domain = winner
	ctx.Confidence = domainConfidence(best, runnerUp)

	r.logger.Debug("Table domain resolved",
		zap.String("table", tableName),
		zap.String("domain", string(winner)),
		zap.Int("score", best),
		zap.Int("runner_up", runnerUp),
		zap.Float64("confidence", ctx.Confidence))

	return ctx
}

// rankDomains returns the winning domain with the best and runner-up
// scores. Equal scores resolve to the more specific domain, so the
// ordering is deterministic regardless of map iteration.
func rankDomains(scores map[models.DomainCategory]int) (models.DomainCategory, int, int) {
	winner := models.DomainGeneral
	best, runnerUp := 0, 0

	for _, domain := range models.ValidDomainCategories {
		score, ok := scores[domain]
		if !ok {
			continue
		}
		switch {
		case score > best:
			runnerUp = best
			best = score
			winner = domain
		case score == best && domain.Specificity() > winner.Specificity():
			runnerUp = best
			winner = domain
		case score > runnerUp:
			runnerUp = score
		}
	}

	return winner, best, runnerUp
}

// domainConfidence grades a dominant call by its margin over the
// runner-up, bounded to (0.5, 0.95].
func domainConfidence(best, runnerUp int) float64 {
	conf := float64(best) / float64(best+runnerUp)
	if conf > 0.95 {
		conf = 0.95
	}
	if conf <= 0.5 {
		// a tie resolved purely by specificity stays a weak call
		conf = 0.51
	}
	return conf
}

package patterns

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/schemaguard-io/schemaguard-engine/pkg/apperrors"
	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
)

// Library indexes the pattern corpus into the lookup structures local
// classification runs against. All structures are built once by
// NewLibrary and are read-only afterwards, so a single Library is
// safely shared across concurrent scan sessions without locking.
type Library struct {
	exact   map[string]models.SensitivityPattern
	aliases map[string]models.SensitivityPattern
	fuzzy   []models.SensitivityPattern
	regexes []compiledPattern
	context map[models.DomainCategory][]models.SensitivityPattern

	byRegulation    map[models.Regulation][]models.SensitivityPattern
	exactByRegScope map[models.Regulation]map[string]models.SensitivityPattern

	counts map[models.PatternKind]int
	logger *zap.Logger
}

type compiledPattern struct {
	models.SensitivityPattern
	re *regexp.Regexp
}

// NewLibrary builds the lookup structures from flat pattern records.
// Invalid records and uncompilable regexes are skipped with a warning;
// the load only fails when nothing valid remains.
func NewLibrary(records []models.SensitivityPattern, logger *zap.Logger) (*Library, error) {
	lib := &Library{
		exact:           make(map[string]models.SensitivityPattern),
		aliases:         make(map[string]models.SensitivityPattern),
		context:         make(map[models.DomainCategory][]models.SensitivityPattern),
		byRegulation:    make(map[models.Regulation][]models.SensitivityPattern),
		exactByRegScope: make(map[models.Regulation]map[string]models.SensitivityPattern),
		counts:          make(map[models.PatternKind]int),
		logger:          logger.Named("pattern-library"),
	}

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			lib.logger.Warn("Skipping malformed pattern record", zap.Error(err))
			continue
		}

		switch rec.Kind {
		case models.PatternExact:
			lib.insertNamed(lib.exact, rec)
		case models.PatternAlias:
			lib.insertNamed(lib.aliases, rec)
		case models.PatternFuzzy:
			lib.fuzzy = append(lib.fuzzy, rec)
		case models.PatternRegex:
			re, err := regexp.Compile(rec.Value)
			if err != nil {
				lib.logger.Warn("Skipping pattern with invalid regex",
					zap.String("pattern_id", rec.ID),
					zap.Error(err))
				continue
			}
			lib.regexes = append(lib.regexes, compiledPattern{SensitivityPattern: rec, re: re})
		case models.PatternContext:
			for _, domain := range rec.Domains {
				lib.context[domain] = append(lib.context[domain], rec)
			}
		}

		lib.counts[rec.Kind]++
		for _, reg := range rec.Regulations {
			lib.byRegulation[reg] = append(lib.byRegulation[reg], rec)
			if rec.Kind == models.PatternExact {
				scope := lib.exactByRegScope[reg]
				if scope == nil {
					scope = make(map[string]models.SensitivityPattern)
					lib.exactByRegScope[reg] = scope
				}
				if existing, ok := scope[rec.Value]; !ok || rec.Priority > existing.Priority {
					scope[rec.Value] = rec
				}
			}
		}
	}

	if lib.Size() == 0 {
		return nil, fmt.Errorf("build pattern library: %w", apperrors.ErrNoPatternsLoaded)
	}

	// Fixed deterministic order for the fuzzy and regex scans: higher
	// priority first, ID as the final tie-break so rebuilds are stable.
	sort.SliceStable(lib.fuzzy, func(i, j int) bool {
		if lib.fuzzy[i].Priority != lib.fuzzy[j].Priority {
			return lib.fuzzy[i].Priority > lib.fuzzy[j].Priority
		}
		return lib.fuzzy[i].ID < lib.fuzzy[j].ID
	})
	sort.SliceStable(lib.regexes, func(i, j int) bool {
		if lib.regexes[i].Priority != lib.regexes[j].Priority {
			return lib.regexes[i].Priority > lib.regexes[j].Priority
		}
		return lib.regexes[i].ID < lib.regexes[j].ID
	})
	for domain := range lib.context {
		rules := lib.context[domain]
		sort.SliceStable(rules, func(i, j int) bool {
			if rules[i].Priority != rules[j].Priority {
				return rules[i].Priority > rules[j].Priority
			}
			return rules[i].ID < rules[j].ID
		})
	}

	lib.logger.Info("Pattern library loaded",
		zap.Int("exact", lib.counts[models.PatternExact]),
		zap.Int("alias", lib.counts[models.PatternAlias]),
		zap.Int("fuzzy", lib.counts[models.PatternFuzzy]),
		zap.Int("regex", lib.counts[models.PatternRegex]),
		zap.Int("context", lib.counts[models.PatternContext]))

	return lib, nil
}

// insertNamed adds an exact or alias record keyed by normalized value,
// keeping the higher-priority record on collision.
func (l *Library) insertNamed(index map[string]models.SensitivityPattern, rec models.SensitivityPattern) {
	key := NormalizeName(rec.Value)
	if existing, ok := index[key]; ok {
		if rec.Priority <= existing.Priority {
			l.logger.Warn("Duplicate pattern value, keeping higher priority record",
				zap.String("value", key),
				zap.String("kept", existing.ID),
				zap.String("dropped", rec.ID))
			return
		}
		l.logger.Warn("Duplicate pattern value, keeping higher priority record",
			zap.String("value", key),
			zap.String("kept", rec.ID),
			zap.String("dropped", existing.ID))
	}
	index[key] = rec
}

// LookupExact finds a pattern whose value equals the normalized column
// name.
func (l *Library) LookupExact(name string) (models.SensitivityPattern, bool) {
	p, ok := l.exact[NormalizeName(name)]
	return p, ok
}

// LookupAlias finds a pattern in the organization synonym map.
func (l *Library) LookupAlias(name string) (models.SensitivityPattern, bool) {
	p, ok := l.aliases[NormalizeName(name)]
	return p, ok
}

// LookupRegulationExact finds an exact-name pattern scoped to the
// requested regulations, consulting them in the given order. It exists
// for names that appear under multiple regulation pattern sets with
// different PII types; the scoped hit takes precedence.
func (l *Library) LookupRegulationExact(name string, regulations []models.Regulation) (models.SensitivityPattern, bool) {
	key := NormalizeName(name)
	for _, reg := range regulations {
		if scope, ok := l.exactByRegScope[reg]; ok {
			if p, ok := scope[key]; ok {
				return p, true
			}
		}
	}
	return models.SensitivityPattern{}, false
}

// LookupFuzzy returns the highest-similarity fuzzy candidate at or
// above the threshold, along with its similarity score. Ties break to
// the higher priority weight, then the shorter pattern value.
func (l *Library) LookupFuzzy(name string, threshold float64) (models.SensitivityPattern, float64, bool) {
	var (
		best      models.SensitivityPattern
		bestScore float64
		found     bool
	)

	for _, p := range l.fuzzy {
		score := TokenSetRatio(name, p.Value)
		if score < threshold {
			continue
		}
		if !found || betterFuzzy(p, score, best, bestScore) {
			best = p
			bestScore = score
			found = true
		}
	}

	return best, bestScore, found
}

func betterFuzzy(candidate models.SensitivityPattern, score float64, best models.SensitivityPattern, bestScore float64) bool {
	if score != bestScore {
		return score > bestScore
	}
	if candidate.Priority != best.Priority {
		return candidate.Priority > best.Priority
	}
	return len(candidate.Value) < len(best.Value)
}

// LookupRegex returns the first regex pattern matching the column
// name's token form, in the library's fixed priority order. Matching
// against the space-separated token form keeps \b anchors honest:
// a "cell" pattern cannot fire inside "cancelled_date".
func (l *Library) LookupRegex(name string) (models.SensitivityPattern, bool) {
	tokenForm := strings.ReplaceAll(NormalizeName(name), "_", " ")
	for _, cp := range l.regexes {
		if cp.re.MatchString(tokenForm) {
			return cp.SensitivityPattern, true
		}
	}
	return models.SensitivityPattern{}, false
}

// ContextPatterns returns the context rules for a table domain in
// priority order. The general domain carries no context rules.
func (l *Library) ContextPatterns(domain models.DomainCategory) []models.SensitivityPattern {
	return l.context[domain]
}

// RegulationPatterns returns every pattern tagged with the given
// regulation.
func (l *Library) RegulationPatterns(reg models.Regulation) []models.SensitivityPattern {
	return l.byRegulation[reg]
}

// Counts reports how many patterns loaded per kind.
func (l *Library) Counts() map[models.PatternKind]int {
	out := make(map[models.PatternKind]int, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}

// Size reports the total number of loaded patterns.
func (l *Library) Size() int {
	total := 0
	for _, v := range l.counts {
		total += v
	}
	return total
}

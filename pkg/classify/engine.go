package classify

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/schemaguard-io/schemaguard-engine/pkg/config"
	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
	"github.com/schemaguard-io/schemaguard-engine/pkg/patterns"
)

// Stage confidence floors. A stage that accepts a match never reports
// confidence below its floor; the default stage never reports above its
// ceiling.
const (
	floorExact   = 0.90
	floorAlias   = 0.85
	floorFuzzy   = 0.60
	floorContext = 0.50
	floorRegex   = 0.50

	defaultStageConfidence = 0.15

	// typeBonus adjusts confidence by declared-type agreement with the
	// hypothesized PII type. No stored values are ever consulted.
	typeBonus = 0.05
)

// LowContextConfidence marks table domain calls worth flagging: the
// engine logs them, the orchestrator surfaces them as diagnostics.
// Classification proceeds regardless.
const LowContextConfidence = 0.55

// Engine classifies single columns through the ordered matching
// pipeline. Implementations are pure CPU and safe for concurrent use.
type Engine interface {
	ClassifyField(column models.ColumnMetadata, tableCtx models.TableContext, requested []models.Regulation) models.FieldAnalysisResult
}

// stageMatch is one stage's accepted candidate before finalization.
type stageMatch struct {
	pattern    models.SensitivityPattern
	confidence float64
	rationale  string
}

// matchStage is one strategy in the pipeline. Attempt returns nil when
// the stage has no candidate for the column.
type matchStage struct {
	name    models.MatchStage
	attempt func(column models.ColumnMetadata, tableCtx models.TableContext, requested []models.Regulation) *stageMatch
}

type engine struct {
	library   *patterns.Library
	overrides *Overrides
	policy    *RegulationPolicy
	stages    []matchStage
	logger    *zap.Logger
}

var _ Engine = (*engine)(nil)

// NewEngine wires the matching pipeline in its fixed order: override
// rules, regulation-scoped exact, exact, alias, fuzzy, context, regex
// fallback, non-sensitive default. The pipeline short-circuits on the
// first accepted match.
func NewEngine(
	library *patterns.Library,
	overrides *Overrides,
	policy *RegulationPolicy,
	cfg *config.ClassifierConfig,
	logger *zap.Logger,
) Engine {
	e := &engine{
		library:   library,
		overrides: overrides,
		policy:    policy,
		logger:    logger.Named("classify-engine"),
	}

	fuzzyThreshold := cfg.FuzzyThreshold

	e.stages = []matchStage{
		// The regulation-scoped lookup runs ahead of the generic one: when a
		// name exists under several regulation pattern sets with different
		// PII types, the interpretation matching the requested regulations
		// takes precedence over the globally highest-priority one.
		{
			name: models.StageRegulationExact,
			attempt: func(col models.ColumnMetadata, _ models.TableContext, requested []models.Regulation) *stageMatch {
				if len(requested) == 0 {
					return nil
				}
				p, ok := library.LookupRegulationExact(col.ColumnName, requested)
				if !ok {
					return nil
				}
				return &stageMatch{
					pattern:    p,
					confidence: clamp(p.Confidence, floorExact, 1.0),
					rationale:  fmt.Sprintf("column name matches %q within the requested regulation scope", p.Value),
				}
			},
		},
		{
			name: models.StageExact,
			attempt: func(col models.ColumnMetadata, _ models.TableContext, _ []models.Regulation) *stageMatch {
				p, ok := library.LookupExact(col.ColumnName)
				if !ok {
					return nil
				}
				return &stageMatch{
					pattern:    p,
					confidence: clamp(p.Confidence, floorExact, 1.0),
					rationale:  fmt.Sprintf("column name matches %q", p.Value),
				}
			},
		},
		{
			name: models.StageAlias,
			attempt: func(col models.ColumnMetadata, _ models.TableContext, _ []models.Regulation) *stageMatch {
				p, ok := library.LookupAlias(col.ColumnName)
				if !ok {
					return nil
				}
				return &stageMatch{
					pattern:    p,
					confidence: clamp(p.Confidence, floorAlias, 1.0),
					rationale:  fmt.Sprintf("known synonym of %q", p.Value),
				}
			},
		},
		{
			name: models.StageFuzzy,
			attempt: func(col models.ColumnMetadata, _ models.TableContext, _ []models.Regulation) *stageMatch {
				p, similarity, ok := library.LookupFuzzy(col.ColumnName, fuzzyThreshold)
				if !ok {
					return nil
				}
				return &stageMatch{
					pattern:    p,
					confidence: clamp(similarity*p.Confidence, floorFuzzy, 1.0),
					rationale:  fmt.Sprintf("similar to %q (similarity %.2f)", p.Value, similarity),
				}
			},
		},
		{
			name: models.StageContext,
			attempt: func(col models.ColumnMetadata, tableCtx models.TableContext, _ []models.Regulation) *stageMatch {
				if !tableCtx.Dominant() {
					return nil
				}
				normalized := patterns.NormalizeName(col.ColumnName)
				for _, p := range library.ContextPatterns(tableCtx.Domain) {
					if p.Value != normalized {
						continue
					}
					return &stageMatch{
						pattern:    p,
						confidence: clamp(p.Confidence, floorContext, 1.0),
						rationale:  fmt.Sprintf("generic name %q in a %s table", p.Value, tableCtx.Domain),
					}
				}
				return nil
			},
		},
		{
			name: models.StageRegex,
			attempt: func(col models.ColumnMetadata, _ models.TableContext, _ []models.Regulation) *stageMatch {
				p, ok := library.LookupRegex(col.ColumnName)
				if !ok {
					return nil
				}
				return &stageMatch{
					pattern:    p,
					confidence: clamp(p.Confidence, floorRegex, 1.0),
					rationale:  fmt.Sprintf("token pattern %q", p.ID),
				}
			},
		},
	}

	return e
}

// ClassifyField runs the pipeline for one column. It never returns an
// error: an unmatched column is a NON_SENSITIVE result, not a failure.
func (e *engine) ClassifyField(column models.ColumnMetadata, tableCtx models.TableContext, requested []models.Regulation) models.FieldAnalysisResult {
	if tableCtx.Confidence < LowContextConfidence {
		e.logger.Debug("Classifying with low table context confidence",
			zap.String("column", column.Ref()),
			zap.String("domain", string(tableCtx.Domain)),
			zap.Float64("context_confidence", tableCtx.Confidence))
	}

	if piiType, rationale, ok := e.overrides.Classify(column); ok {
		return e.buildResult(column, tableCtx, models.StageOverride, piiType, overrideConfidence, nil, rationale)
	}

	blocked := e.overrides.BlockedTypes(column)

	for _, stage := range e.stages {
		match := stage.attempt(column, tableCtx, requested)
		if match == nil {
			continue
		}
		if blocked[match.pattern.PIIType] {
			e.logger.Debug("Override rule vetoed a stage candidate",
				zap.String("column", column.Ref()),
				zap.String("stage", string(stage.name)),
				zap.String("pii_type", string(match.pattern.PIIType)))
			continue
		}

		confidence := e.adjustForDataType(match.pattern.PIIType, column, match.confidence, stageFloor(stage.name))
		return e.buildResult(column, tableCtx, stage.name, match.pattern.PIIType, confidence, match.pattern.Regulations, match.rationale)
	}

	return e.buildResult(column, tableCtx, models.StageDefault, models.PIITypeNonSensitive, defaultStageConfidence, nil, "no sensitivity pattern matched")
}

// adjustForDataType applies the declared-type agreement bonus, keeping
// the result inside the stage's confidence band.
func (e *engine) adjustForDataType(piiType models.PIIType, column models.ColumnMetadata, confidence, floor float64) float64 {
	maxLength := 0
	if column.MaxLength != nil {
		maxLength = int(*column.MaxLength)
	}
	if patterns.TypeAgreement(piiType, column.DataType, maxLength) {
		confidence += typeBonus
	} else {
		confidence -= typeBonus
	}
	return clamp(confidence, floor, 1.0)
}

func (e *engine) buildResult(
	column models.ColumnMetadata,
	tableCtx models.TableContext,
	stage models.MatchStage,
	piiType models.PIIType,
	confidence float64,
	patternRegs []models.Regulation,
	rationale string,
) models.FieldAnalysisResult {
	result := models.FieldAnalysisResult{
		Column:     column,
		PIIType:    piiType,
		Confidence: confidence,
		Rationale:  rationale,
		Stage:      stage,
	}

	if piiType.Sensitive() {
		result.IsSensitive = true
		result.Regulations = e.policy.Resolve(tableCtx.Domain, patternRegs)
	}
	result.RiskLevel = RiskFor(piiType, result.Regulations)

	return result
}

func stageFloor(stage models.MatchStage) float64 {
	switch stage {
	case models.StageExact, models.StageRegulationExact:
		return floorExact
	case models.StageAlias:
		return floorAlias
	case models.StageFuzzy:
		return floorFuzzy
	case models.StageContext:
		return floorContext
	case models.StageRegex:
		return floorRegex
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

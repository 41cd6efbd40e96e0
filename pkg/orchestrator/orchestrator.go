// Package orchestrator runs the full hybrid classification flow: cache
// lookup, batched local classification, bounded AI escalation, merge,
// and cache store. It owns the degradation policy; collaborator
// failures downgrade the session instead of failing it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/schemaguard-io/schemaguard-engine/pkg/ai"
	"github.com/schemaguard-io/schemaguard-engine/pkg/apperrors"
	"github.com/schemaguard-io/schemaguard-engine/pkg/batch"
	"github.com/schemaguard-io/schemaguard-engine/pkg/classify"
	"github.com/schemaguard-io/schemaguard-engine/pkg/config"
	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
	"github.com/schemaguard-io/schemaguard-engine/pkg/schemacache"
)

const (
	// escalationChunkSize caps how many fields ride in one provider
	// request. Chunks fan out concurrently through the worker pool.
	escalationChunkSize = 10

	// fallbackConfidence is the confidence of the default verdict applied
	// to columns whose classification never ran. Matches the pipeline's
	// default stage.
	fallbackConfidence = 0.15
)

// Orchestrator classifies whole schemas. Safe for concurrent use; each
// call is one independent session.
type Orchestrator interface {
	ClassifySchema(ctx context.Context, req models.ClassifyRequest) (*models.ClassificationSession, error)
}

type hybridOrchestrator struct {
	engine    classify.Engine
	resolver  classify.ContextResolver
	processor batch.Processor
	cache     schemacache.SchemaCache
	escalator ai.Escalator // nil when no AI collaborator is configured
	policy    *classify.RegulationPolicy
	pool      *ai.WorkerPool
	cfg       *config.Config
	logger    *zap.Logger
}

// NewOrchestrator creates the orchestrator. escalator may be nil; the
// orchestrator then keeps local results for low-confidence fields and
// reports the degradation in session diagnostics.
func NewOrchestrator(
	engine classify.Engine,
	resolver classify.ContextResolver,
	processor batch.Processor,
	cache schemacache.SchemaCache,
	escalator ai.Escalator,
	cfg *config.Config,
	logger *zap.Logger,
) Orchestrator {
	return &hybridOrchestrator{
		engine:    engine,
		resolver:  resolver,
		processor: processor,
		cache:     cache,
		escalator: escalator,
		policy:    classify.DefaultRegulationPolicy(),
		pool:      ai.NewWorkerPool(ai.WorkerPoolConfig{MaxConcurrent: cfg.AI.MaxConcurrent}, logger),
		cfg:       cfg,
		logger:    logger.Named("orchestrator"),
	}
}

var _ Orchestrator = (*hybridOrchestrator)(nil)

// ClassifySchema runs one classification session. Every input column
// gets exactly one result in canonical schema order; degraded paths are
// recorded in the session diagnostics rather than returned as errors.
// Only invalid input or caller cancellation fails the call.
func (o *hybridOrchestrator) ClassifySchema(ctx context.Context, req models.ClassifyRequest) (*models.ClassificationSession, error) {
	if req.Schema.TotalColumns() == 0 {
		return nil, fmt.Errorf("classify request rejected: %w", apperrors.ErrEmptySchema)
	}
	for _, reg := range req.Regulations {
		if !models.IsValidRegulation(reg) {
			return nil, fmt.Errorf("regulation %q: %w", reg, apperrors.ErrUnknownRegulation)
		}
	}

	start := time.Now()
	if budget := o.cfg.Classifier.SessionBudgetSeconds; budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(budget)*time.Second)
		defer cancel()
	}

	fingerprint := o.cache.Fingerprint(req.Schema, req.Regulations, req.Region, req.Tenant)
	session := &models.ClassificationSession{
		ID:                   uuid.New(),
		Tenant:               req.Tenant,
		Region:               req.Region,
		RequestedRegulations: req.Regulations,
		Fingerprint:          fingerprint.Hash,
		CreatedAt:            start,
	}

	o.logger.Info("Classification session started",
		zap.String("session_id", session.ID.String()),
		zap.Int("tables", len(req.Schema)),
		zap.Int("total_columns", req.Schema.TotalColumns()))

	// Cache stage. A full adaptation ends the session here; a partial one
	// shrinks the schema to the columns the cached entry could not cover.
	working := req.Schema
	var cached []models.FieldAnalysisResult
	if hit, ok := o.cache.Lookup(ctx, fingerprint); ok {
		adapted, leftover := o.cache.Adapt(hit.Entry, req.Schema)
		session.CacheHit = true
		if len(leftover) == 0 {
			session.Results = adapted
			finalize(session, start)
			if hit.Outcome == schemacache.OutcomeSimilar {
				// Re-store under the new fingerprint so the next lookup
				// for this exact schema hits without a similarity scan.
				o.cache.Store(ctx, fingerprint, session.Results)
			}
			o.logger.Info("Session served from cache",
				zap.String("session_id", session.ID.String()),
				zap.String("tier", hit.Tier),
				zap.String("outcome", string(hit.Outcome)),
				zap.Float64("similarity", hit.Similarity))
			return session, nil
		}
		cached = adapted
		working = leftoverSchema(leftover)
		o.logger.Info("Partial cache hit",
			zap.String("session_id", session.ID.String()),
			zap.Int("adapted", len(adapted)),
			zap.Int("leftover", len(leftover)))
	}

	// Table contexts resolve against the full original schema so leftover
	// columns still see the complete sibling vocabulary.
	contexts := make(map[string]models.TableContext, len(req.Schema))
	for _, table := range req.Schema.TableNames() {
		contexts[table] = o.resolver.Resolve(table, req.Schema.SiblingColumnNames(table))
	}
	for _, table := range working.TableNames() {
		// The general fallback is the deliberate no-signal outcome; only a
		// weak call on a specific domain changes matching behavior.
		tc := contexts[table]
		if tc.Dominant() && tc.Confidence < classify.LowContextConfidence {
			session.Diagnostics = append(session.Diagnostics, models.Diagnostic{
				Reason: models.DiagnosticLowContextConfidence,
				Detail: fmt.Sprintf("table %q resolved to domain %q with confidence %.2f", table, tc.Domain, tc.Confidence),
			})
		}
	}

	outcome := o.processor.Process(ctx, working, func(ctx context.Context, b batch.Batch) ([]models.FieldAnalysisResult, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results := make([]models.FieldAnalysisResult, 0, len(b.Columns))
		for _, col := range b.Columns {
			results = append(results, o.engine.ClassifyField(col, contexts[col.TableName], req.Regulations))
		}
		return results, nil
	})

	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("classification session cancelled: %w", err)
	}

	fresh := make(map[string]models.FieldAnalysisResult, len(outcome.Results))
	for i := range outcome.Results {
		fresh[outcome.Results[i].Ref()] = outcome.Results[i]
	}

	// Failed batches leave their columns unclassified; the session budget
	// is the only way our classify callback fails. Fill defaults so the
	// session still covers every input column.
	if len(outcome.Failures) > 0 {
		session.Incomplete = true
		for _, failure := range outcome.Failures {
			session.Diagnostics = append(session.Diagnostics, models.Diagnostic{
				Reason: models.DiagnosticSessionBudget,
				Detail: fmt.Sprintf("batch %s abandoned: %v", failure.Batch.Label, failure.Err),
			})
			for _, col := range failure.Batch.Columns {
				fresh[col.Ref()] = fallbackResult(col)
			}
		}
	}

	if ctx.Err() == nil {
		o.escalate(ctx, session, req, contexts, fresh)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		session.Incomplete = true
	}

	cachedByRef := make(map[string]models.FieldAnalysisResult, len(cached))
	for i := range cached {
		cachedByRef[cached[i].Ref()] = cached[i]
	}

	ordered := req.Schema.OrderedColumns()
	session.Results = make([]models.FieldAnalysisResult, 0, len(ordered))
	for _, col := range ordered {
		ref := col.Ref()
		if r, ok := cachedByRef[ref]; ok {
			session.Results = append(session.Results, r)
			continue
		}
		if r, ok := fresh[ref]; ok {
			session.Results = append(session.Results, r)
			continue
		}
		session.Results = append(session.Results, fallbackResult(col))
	}

	if session.Incomplete {
		session.Diagnostics = append(session.Diagnostics, models.Diagnostic{
			Reason: models.DiagnosticCacheBypass,
			Detail: "incomplete session not cached",
		})
	} else {
		o.cache.Store(ctx, fingerprint, session.Results)
	}

	finalize(session, start)
	o.logger.Info("Classification session finished",
		zap.String("session_id", session.ID.String()),
		zap.Int("fields", len(session.Results)),
		zap.Int("sensitive", session.Summary.SensitiveFields),
		zap.Int("escalations", len(session.Escalations)),
		zap.Bool("cache_hit", session.CacheHit),
		zap.Bool("incomplete", session.Incomplete),
		zap.Duration("elapsed", session.Elapsed))
	return session, nil
}

// escalate hands the lowest-confidence fresh results to the AI
// collaborator, bounded by the escalation ceiling. Verdicts overwrite
// the local results in place; every field kept local gets a diagnostic
// naming why.
func (o *hybridOrchestrator) escalate(
	ctx context.Context,
	session *models.ClassificationSession,
	req models.ClassifyRequest,
	contexts map[string]models.TableContext,
	fresh map[string]models.FieldAnalysisResult,
) {
	threshold := o.cfg.Classifier.EscalationThreshold
	var candidates []models.FieldAnalysisResult
	for _, r := range fresh {
		if r.Confidence < threshold {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return
	}

	if o.escalator == nil || !o.escalator.Available() {
		session.Diagnostics = append(session.Diagnostics, models.Diagnostic{
			Reason: models.DiagnosticAIUnavailable,
			Detail: fmt.Sprintf("no AI collaborator available; %d low-confidence fields keep local results", len(candidates)),
		})
		return
	}

	// Most uncertain first; ties break on the field reference so the
	// escalated set is deterministic.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence < candidates[j].Confidence
		}
		return candidates[i].Ref() < candidates[j].Ref()
	})

	allowed := 0
	if ceiling := o.cfg.Classifier.EscalationCeiling; ceiling > 0 {
		allowed = int(math.Ceil(ceiling * float64(req.Schema.TotalColumns())))
	}
	if allowed > len(candidates) {
		allowed = len(candidates)
	}
	for _, r := range candidates[allowed:] {
		session.Diagnostics = append(session.Diagnostics, models.Diagnostic{
			FieldRef: r.Ref(),
			Reason:   models.DiagnosticEscalationCeiling,
			Detail:   fmt.Sprintf("confidence %.2f below threshold %.2f but escalation ceiling reached", r.Confidence, threshold),
		})
	}
	if allowed == 0 {
		return
	}

	chunks := chunkFields(o.buildEscalationFields(candidates[:allowed], req, contexts), escalationChunkSize)
	items := make([]ai.WorkItem[*ai.BatchOutcome], 0, len(chunks))
	fieldsByID := make(map[string][]ai.EscalationField, len(chunks))
	for i, chunk := range chunks {
		chunk := chunk
		id := fmt.Sprintf("escalation[%d/%d]", i+1, len(chunks))
		fieldsByID[id] = chunk
		items = append(items, ai.WorkItem[*ai.BatchOutcome]{
			ID: id,
			Execute: func(ctx context.Context) (*ai.BatchOutcome, error) {
				return o.escalator.SubmitBatch(ctx, req.Regulations, chunk)
			},
		})
	}

	for _, res := range ai.Process(ctx, o.pool, items, nil) {
		fields := fieldsByID[res.ID]
		if res.Err != nil {
			o.keepLocalAfterFailure(session, fields, res.Err)
			continue
		}
		o.applyVerdicts(session, contexts, fresh, fields, res.Result)
	}
}

// keepLocalAfterFailure records one diagnostic per submitted field and
// leaves their local results untouched.
func (o *hybridOrchestrator) keepLocalAfterFailure(
	session *models.ClassificationSession,
	fields []ai.EscalationField,
	err error,
) {
	reason := models.DiagnosticAIUnavailable
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = models.DiagnosticAITimeout
	case errors.Is(err, ai.ErrMalformedResponse):
		reason = models.DiagnosticAIInvalidResponse
	}
	for _, f := range fields {
		session.Diagnostics = append(session.Diagnostics, models.Diagnostic{
			FieldRef: f.Column.Ref(),
			Reason:   reason,
			Detail:   err.Error(),
		})
	}
	o.logger.Warn("Escalation batch failed; fields keep local results",
		zap.Int("fields", len(fields)),
		zap.Error(err))
}

// applyVerdicts overwrites local results with model verdicts. A field
// the model did not answer keeps its local result and gets an
// invalid-response diagnostic.
func (o *hybridOrchestrator) applyVerdicts(
	session *models.ClassificationSession,
	contexts map[string]models.TableContext,
	fresh map[string]models.FieldAnalysisResult,
	fields []ai.EscalationField,
	outcome *ai.BatchOutcome,
) {
	session.Escalations = append(session.Escalations, outcome.Record)

	verdicts := make(map[string]ai.EscalationResult, len(outcome.Results))
	for _, v := range outcome.Results {
		verdicts[v.FieldRef] = v
	}

	for _, f := range fields {
		ref := f.Column.Ref()
		v, ok := verdicts[ref]
		if !ok {
			session.Diagnostics = append(session.Diagnostics, models.Diagnostic{
				FieldRef: ref,
				Reason:   models.DiagnosticAIInvalidResponse,
				Detail:   "model returned no verdict for submitted field",
			})
			continue
		}

		r := fresh[ref]
		r.PIIType = v.PIIType
		r.Confidence = v.Confidence
		r.Stage = models.StageAI
		r.FromAI = true
		r.IsSensitive = v.PIIType.Sensitive()
		regs := v.Regulations
		if !r.IsSensitive {
			regs = nil
		} else if len(regs) == 0 {
			// The model named a type but no regulations; fall back to the
			// domain mapping the local pipeline would have used.
			regs = o.policy.Resolve(contexts[f.Column.TableName].Domain, nil)
		}
		r.Regulations = regs
		r.RiskLevel = classify.RiskFor(v.PIIType, regs)
		if v.Rationale != "" {
			r.Rationale = v.Rationale
		}
		fresh[ref] = r
	}
}

func (o *hybridOrchestrator) buildEscalationFields(
	picked []models.FieldAnalysisResult,
	req models.ClassifyRequest,
	contexts map[string]models.TableContext,
) []ai.EscalationField {
	fields := make([]ai.EscalationField, 0, len(picked))
	for _, r := range picked {
		fields = append(fields, ai.EscalationField{
			Column:       r.Column,
			TableContext: contexts[r.Column.TableName],
			Siblings:     req.Schema.SiblingColumnNames(r.Column.TableName),
			LocalResult:  r,
		})
	}
	return fields
}

func chunkFields(fields []ai.EscalationField, size int) [][]ai.EscalationField {
	if len(fields) == 0 {
		return nil
	}
	chunks := make([][]ai.EscalationField, 0, (len(fields)+size-1)/size)
	for start := 0; start < len(fields); start += size {
		end := start + size
		if end > len(fields) {
			end = len(fields)
		}
		chunks = append(chunks, fields[start:end])
	}
	return chunks
}

// leftoverSchema rebuilds a schema holding only the columns a cached
// entry could not cover.
func leftoverSchema(columns []models.ColumnMetadata) models.Schema {
	schema := make(models.Schema)
	for _, col := range columns {
		schema[col.TableName] = append(schema[col.TableName], col)
	}
	return schema
}

// fallbackResult is the default verdict for columns whose classification
// never ran. The session invariant is one result per input column.
func fallbackResult(column models.ColumnMetadata) models.FieldAnalysisResult {
	return models.FieldAnalysisResult{
		Column:     column,
		PIIType:    models.PIITypeNonSensitive,
		RiskLevel:  models.RiskLevelNone,
		Confidence: fallbackConfidence,
		Stage:      models.StageDefault,
		Rationale:  "classification abandoned, default applied",
	}
}

func finalize(session *models.ClassificationSession, start time.Time) {
	session.ComputeSummary()
	session.Elapsed = time.Since(start)
}

// Package batch partitions schemas into bounded classification batches,
// runs them with limited concurrency, and merges the per-batch results
// back into canonical schema order.
package batch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/schemaguard-io/schemaguard-engine/pkg/ai"
	"github.com/schemaguard-io/schemaguard-engine/pkg/config"
	"github.com/schemaguard-io/schemaguard-engine/pkg/logging"
	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
)

// Batch is one unit of classification work. Small schemas form a single
// whole-schema batch; larger ones get one batch per table, and oversized
// tables are split into numbered sub-batches.
type Batch struct {
	// Label identifies the batch in logs and failure flags: "schema" for
	// a whole-schema batch, the table name for per-table batches, and
	// "table[i/n]" for sub-batches.
	Label string
	// Table is the source table, empty for a whole-schema batch.
	Table   string
	Columns []models.ColumnMetadata
}

// Failure records one batch whose classification returned an error. The
// run continues; the failed batch's columns are simply absent from the
// merged results.
type Failure struct {
	Batch Batch
	Err   error
}

// Outcome is the merged result of one partitioned run.
type Outcome struct {
	// Results follow canonical schema order regardless of batch
	// completion order.
	Results  []models.FieldAnalysisResult
	Failures []Failure
}

// ClassifyFunc classifies one batch of columns.
type ClassifyFunc func(ctx context.Context, b Batch) ([]models.FieldAnalysisResult, error)

// Processor partitions schemas and runs batches concurrently.
type Processor interface {
	Partition(schema models.Schema) []Batch
	Process(ctx context.Context, schema models.Schema, classify ClassifyFunc) Outcome
}

type processor struct {
	cfg    config.BatchConfig
	pool   *ai.WorkerPool
	logger *zap.Logger
}

// NewProcessor creates a batch processor. Non-positive limits fall back
// to the configuration defaults.
func NewProcessor(cfg *config.BatchConfig, logger *zap.Logger) Processor {
	normalized := *cfg
	if normalized.SingleBatchMax < 1 {
		normalized.SingleBatchMax = 20
	}
	if normalized.TableSplitThreshold < 1 {
		normalized.TableSplitThreshold = 75
	}
	if normalized.SubBatchSize < 1 {
		normalized.SubBatchSize = 50
	}

	return &processor{
		cfg:    normalized,
		pool:   ai.NewWorkerPool(ai.WorkerPoolConfig{MaxConcurrent: normalized.MaxWorkers}, logger),
		logger: logger.Named("batch-processor"),
	}
}

var _ Processor = (*processor)(nil)

// Partition splits the schema into batches. Schemas at or below the
// single-batch limit stay whole; otherwise each table becomes a batch,
// and tables at or above the split threshold are chunked into
// sub-batches.
func (p *processor) Partition(schema models.Schema) []Batch {
	total := schema.TotalColumns()
	if total == 0 {
		return nil
	}
	if total <= p.cfg.SingleBatchMax {
		return []Batch{{Label: "schema", Columns: schema.OrderedColumns()}}
	}

	var batches []Batch
	for _, table := range schema.TableNames() {
		cols := schema.TableColumns(table)
		if len(cols) == 0 {
			continue
		}
		if len(cols) < p.cfg.TableSplitThreshold {
			batches = append(batches, Batch{Label: table, Table: table, Columns: cols})
			continue
		}

		parts := chunkColumns(cols, p.cfg.SubBatchSize)
		for i, part := range parts {
			batches = append(batches, Batch{
				Label:   fmt.Sprintf("%s[%d/%d]", table, i+1, len(parts)),
				Table:   table,
				Columns: part,
			})
		}
	}
	return batches
}

// Process partitions the schema, classifies batches with bounded
// concurrency, and merges the results back into schema order. A failed
// batch is recorded and skipped; the other batches are unaffected.
func (p *processor) Process(ctx context.Context, schema models.Schema, classify ClassifyFunc) Outcome {
	batches := p.Partition(schema)
	if len(batches) == 0 {
		return Outcome{}
	}

	byLabel := make(map[string]Batch, len(batches))
	items := make([]ai.WorkItem[[]models.FieldAnalysisResult], 0, len(batches))
	for _, b := range batches {
		b := b
		byLabel[b.Label] = b
		items = append(items, ai.WorkItem[[]models.FieldAnalysisResult]{
			ID: b.Label,
			Execute: func(ctx context.Context) ([]models.FieldAnalysisResult, error) {
				return classify(ctx, b)
			},
		})
	}

	completed := ai.Process(ctx, p.pool, items, nil)

	index := make(map[string]models.FieldAnalysisResult, schema.TotalColumns())
	var failures []Failure
	for _, r := range completed {
		if r.Err != nil {
			failed := byLabel[r.ID]
			names := make([]string, len(failed.Columns))
			for i, col := range failed.Columns {
				names[i] = col.ColumnName
			}
			p.logger.Warn("Batch classification failed",
				zap.String("batch", r.ID),
				zap.Int("columns", len(failed.Columns)),
				zap.String("column_names", logging.SanitizeFieldList(strings.Join(names, ", "))),
				zap.Error(r.Err))
			failures = append(failures, Failure{Batch: failed, Err: r.Err})
			continue
		}
		for _, result := range r.Result {
			index[result.Column.Ref()] = result
		}
	}
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Batch.Label < failures[j].Batch.Label
	})

	merged := make([]models.FieldAnalysisResult, 0, len(index))
	for _, col := range schema.OrderedColumns() {
		if result, ok := index[col.Ref()]; ok {
			merged = append(merged, result)
		}
	}

	return Outcome{Results: merged, Failures: failures}
}

func chunkColumns(cols []models.ColumnMetadata, size int) [][]models.ColumnMetadata {
	chunks := make([][]models.ColumnMetadata, 0, (len(cols)+size-1)/size)
	for start := 0; start < len(cols); start += size {
		end := start + size
		if end > len(cols) {
			end = len(cols)
		}
		chunks = append(chunks, cols[start:end])
	}
	return chunks
}

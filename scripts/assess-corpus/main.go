// assess-corpus evaluates the LOCAL portion of the classification
// pipeline against a labeled column corpus:
// - Did the pattern stages produce the expected PII type for each column?
// - Which stage resolved each column, and at what confidence?
//
// This tool does NOT call an AI provider - all checks run the local
// engine only. A score of 100 means every labeled column classified as
// expected. This is achievable for a corpus drawn from the builtin
// recognizers.
//
// Corpus format (JSON):
//
//	{
//	  "tables": {
//	    "users": [
//	      {"column_name": "email", "data_type": "varchar", "expected": "EMAIL"},
//	      {"column_name": "created_at", "data_type": "timestamptz", "expected": "NON_SENSITIVE"}
//	    ]
//	  }
//	}
//
// Usage: go run ./scripts/assess-corpus <corpus.json>
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/schemaguard-io/schemaguard-engine/pkg/classify"
	"github.com/schemaguard-io/schemaguard-engine/pkg/config"
	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
	"github.com/schemaguard-io/schemaguard-engine/pkg/patterns"
)

// LabeledColumn is one corpus entry with its expected verdict.
type LabeledColumn struct {
	ColumnName string `json:"column_name"`
	DataType   string `json:"data_type"`
	Expected   string `json:"expected"`
}

// Corpus groups labeled columns by table so sibling context applies.
type Corpus struct {
	Tables map[string][]LabeledColumn `json:"tables"`
}

// Mismatch records one column that classified differently than labeled.
type Mismatch struct {
	Field      string  `json:"field"`
	Expected   string  `json:"expected"`
	Got        string  `json:"got"`
	Stage      string  `json:"stage"`
	Confidence float64 `json:"confidence"`
}

// AssessmentResult contains the full assessment output.
type AssessmentResult struct {
	CorpusFile    string         `json:"corpus_file"`
	TotalColumns  int            `json:"total_columns"`
	Correct       int            `json:"correct"`
	ByStage       map[string]int `json:"by_stage"`
	Mismatches    []Mismatch     `json:"mismatches"`
	WouldEscalate int            `json:"would_escalate"`
	FinalScore    int            `json:"final_score"`
	Summary       string         `json:"summary"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <corpus.json>\n", os.Args[0])
		os.Exit(1)
	}
	corpusFile := os.Args[1]

	data, err := os.ReadFile(corpusFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read corpus: %v\n", err)
		os.Exit(1)
	}

	var corpus Corpus
	if err := json.Unmarshal(data, &corpus); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse corpus: %v\n", err)
		os.Exit(1)
	}

	logger := zap.NewNop()
	records, err := patterns.LoadRecords("", logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load pattern corpus: %v\n", err)
		os.Exit(1)
	}
	library, err := patterns.NewLibrary(records, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build pattern library: %v\n", err)
		os.Exit(1)
	}

	classifierCfg := &config.ClassifierConfig{
		FuzzyThreshold:      0.75,
		EscalationThreshold: 0.70,
	}
	engine := classify.NewEngine(library, classify.DefaultOverrides(), classify.DefaultRegulationPolicy(), classifierCfg, logger)
	resolver := classify.NewContextResolver(logger)

	result := AssessmentResult{
		CorpusFile: corpusFile,
		ByStage:    make(map[string]int),
	}

	// Deterministic table order keeps reports diffable across runs.
	tableNames := make([]string, 0, len(corpus.Tables))
	for name := range corpus.Tables {
		tableNames = append(tableNames, name)
	}
	sort.Strings(tableNames)

	for _, tableName := range tableNames {
		cols := corpus.Tables[tableName]
		siblings := make([]string, len(cols))
		for i, c := range cols {
			siblings[i] = c.ColumnName
		}
		tableCtx := resolver.Resolve(tableName, siblings)

		for i, c := range cols {
			column := models.ColumnMetadata{
				TableName:       tableName,
				ColumnName:      c.ColumnName,
				DataType:        c.DataType,
				OrdinalPosition: i + 1,
			}
			verdict := engine.ClassifyField(column, tableCtx, nil)

			result.TotalColumns++
			result.ByStage[string(verdict.Stage)]++
			if verdict.Confidence < classifierCfg.EscalationThreshold {
				result.WouldEscalate++
			}

			if string(verdict.PIIType) == c.Expected {
				result.Correct++
				continue
			}
			result.Mismatches = append(result.Mismatches, Mismatch{
				Field:      column.Ref(),
				Expected:   c.Expected,
				Got:        string(verdict.PIIType),
				Stage:      string(verdict.Stage),
				Confidence: verdict.Confidence,
			})
		}
	}

	if result.TotalColumns > 0 {
		result.FinalScore = 100 * result.Correct / result.TotalColumns
	}
	result.Summary = fmt.Sprintf("%d/%d columns classified as labeled (%d would escalate to AI review)",
		result.Correct, result.TotalColumns, result.WouldEscalate)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))

	if result.Correct < result.TotalColumns {
		os.Exit(2)
	}
}

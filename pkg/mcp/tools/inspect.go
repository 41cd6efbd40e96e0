package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/schemaguard-io/schemaguard-engine/pkg/classify"
	"github.com/schemaguard-io/schemaguard-engine/pkg/config"
	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
	"github.com/schemaguard-io/schemaguard-engine/pkg/patterns"
)

// InspectToolDeps contains dependencies for the pattern inspection tool.
type InspectToolDeps struct {
	Library    *patterns.Library
	Engine     classify.Engine
	Resolver   classify.ContextResolver
	Classifier *config.ClassifierConfig
	Logger     *zap.Logger
}

// patternProbe reports one matching stage's attempt against the column
// name: whether it fired and which pattern it found.
type patternProbe struct {
	Stage      models.MatchStage `json:"stage"`
	Matched    bool              `json:"matched"`
	PatternID  string            `json:"pattern_id,omitempty"`
	PIIType    models.PIIType    `json:"pii_type,omitempty"`
	Value      string            `json:"value,omitempty"`
	Similarity float64           `json:"similarity,omitempty"`
}

// inspectPatternsResult is the JSON payload of one inspection.
type inspectPatternsResult struct {
	ColumnName     string                     `json:"column_name"`
	NormalizedName string                     `json:"normalized_name"`
	TableContext   models.TableContext        `json:"table_context"`
	Probes         []patternProbe             `json:"probes"`
	Verdict        models.FieldAnalysisResult `json:"verdict"`
}

// RegisterInspectTool adds the inspect_patterns tool to the MCP server.
func RegisterInspectTool(s *server.MCPServer, deps *InspectToolDeps) {
	tool := mcp.NewTool(
		"inspect_patterns",
		mcp.WithDescription(
			"Explain how the local pattern engine sees a single column name. "+
				"Reports the normalized name, the resolved table domain, every matching stage's probe "+
				"(exact, alias, fuzzy, context, regex), and the final local verdict with stage and confidence. "+
				"Use this to debug why a column did or did not match a sensitivity pattern. "+
				"Example: inspect_patterns(column_name='user_email_addr', table_name='patients', sibling_columns='diagnosis,mrn')",
		),
		mcp.WithString(
			"column_name",
			mcp.Required(),
			mcp.Description("Column name to inspect (e.g., 'email_address', 'fname')"),
		),
		mcp.WithString(
			"data_type",
			mcp.Description("Optional - declared column type for the agreement check (defaults to 'varchar')"),
		),
		mcp.WithString(
			"table_name",
			mcp.Description("Optional - owning table name; feeds table domain resolution"),
		),
		mcp.WithString(
			"sibling_columns",
			mcp.Description("Optional - comma-separated names of the other columns in the table; feeds table domain resolution"),
		),
		mcp.WithString(
			"regulations",
			mcp.Description("Optional - comma-separated regulation scope (GDPR, CCPA, HIPAA, PCI-DSS)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		columnName, err := req.RequireString("column_name")
		if err != nil {
			return nil, err
		}
		columnName = trimString(columnName)
		if columnName == "" {
			return NewErrorResult("invalid_parameters", "parameter 'column_name' cannot be empty"), nil
		}

		dataType := trimString(getOptionalString(req, "data_type"))
		if dataType == "" {
			dataType = "varchar"
		}
		tableName := trimString(getOptionalString(req, "table_name"))

		var regulations []models.Regulation
		if raw := trimString(getOptionalString(req, "regulations")); raw != "" {
			regulations, err = models.ParseRegulations(splitCommaList(raw))
			if err != nil {
				return NewErrorResultWithDetails("unknown_regulation", err.Error(),
					map[string]any{"supported": models.ValidRegulations}), nil
			}
		}

		// The resolver scores the whole column list; the inspected column
		// counts as its own sibling exactly once.
		siblings := splitCommaList(getOptionalString(req, "sibling_columns"))
		present := false
		for _, name := range siblings {
			if name == columnName {
				present = true
				break
			}
		}
		if !present {
			siblings = append(siblings, columnName)
		}

		tableCtx := deps.Resolver.Resolve(tableName, siblings)

		column := models.ColumnMetadata{
			TableName:       tableName,
			ColumnName:      columnName,
			DataType:        dataType,
			OrdinalPosition: 1,
		}
		verdict := deps.Engine.ClassifyField(column, tableCtx, regulations)

		result := inspectPatternsResult{
			ColumnName:     columnName,
			NormalizedName: patterns.NormalizeName(columnName),
			TableContext:   tableCtx,
			Probes:         collectProbes(deps.Library, columnName, tableCtx, regulations, deps.Classifier.FuzzyThreshold),
			Verdict:        verdict,
		}

		out, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal inspection result: %w", err)
		}
		return mcp.NewToolResultText(string(out)), nil
	})
}

// collectProbes runs each matching stage's lookup in pipeline order.
// Probes are independent: a probe reports its own hit even when an
// earlier stage would have short-circuited the real pipeline.
func collectProbes(
	lib *patterns.Library,
	name string,
	tableCtx models.TableContext,
	regulations []models.Regulation,
	fuzzyThreshold float64,
) []patternProbe {
	var probes []patternProbe

	if len(regulations) > 0 {
		probe := patternProbe{Stage: models.StageRegulationExact}
		if p, ok := lib.LookupRegulationExact(name, regulations); ok {
			fillProbe(&probe, p)
		}
		probes = append(probes, probe)
	}

	probe := patternProbe{Stage: models.StageExact}
	if p, ok := lib.LookupExact(name); ok {
		fillProbe(&probe, p)
	}
	probes = append(probes, probe)

	probe = patternProbe{Stage: models.StageAlias}
	if p, ok := lib.LookupAlias(name); ok {
		fillProbe(&probe, p)
	}
	probes = append(probes, probe)

	probe = patternProbe{Stage: models.StageFuzzy}
	if p, similarity, ok := lib.LookupFuzzy(name, fuzzyThreshold); ok {
		fillProbe(&probe, p)
		probe.Similarity = similarity
	}
	probes = append(probes, probe)

	if tableCtx.Dominant() {
		probe = patternProbe{Stage: models.StageContext}
		normalized := patterns.NormalizeName(name)
		for _, p := range lib.ContextPatterns(tableCtx.Domain) {
			if p.Value == normalized {
				fillProbe(&probe, p)
				break
			}
		}
		probes = append(probes, probe)
	}

	probe = patternProbe{Stage: models.StageRegex}
	if p, ok := lib.LookupRegex(name); ok {
		fillProbe(&probe, p)
	}
	probes = append(probes, probe)

	return probes
}

func fillProbe(probe *patternProbe, p models.SensitivityPattern) {
	probe.Matched = true
	probe.PatternID = p.ID
	probe.PIIType = p.PIIType
	probe.Value = p.Value
}

package tools

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schemaguard-io/schemaguard-engine/pkg/classify"
	"github.com/schemaguard-io/schemaguard-engine/pkg/config"
	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
	"github.com/schemaguard-io/schemaguard-engine/pkg/patterns"
)

func registerInspect(t *testing.T) *server.MCPServer {
	t.Helper()
	logger := zap.NewNop()

	records, err := patterns.LoadRecords("", logger)
	require.NoError(t, err)
	library, err := patterns.NewLibrary(records, logger)
	require.NoError(t, err)

	classifierCfg := &config.ClassifierConfig{
		FuzzyThreshold:      0.75,
		EscalationThreshold: 0.70,
	}
	engine := classify.NewEngine(library, classify.DefaultOverrides(), classify.DefaultRegulationPolicy(), classifierCfg, logger)

	s := newTestMCPServer()
	RegisterInspectTool(s, &InspectToolDeps{
		Library:    library,
		Engine:     engine,
		Resolver:   classify.NewContextResolver(logger),
		Classifier: classifierCfg,
		Logger:     logger,
	})
	return s
}

func probeByStage(t *testing.T, probes []patternProbe, stage models.MatchStage) patternProbe {
	t.Helper()
	for _, p := range probes {
		if p.Stage == stage {
			return p
		}
	}
	t.Fatalf("no %s probe in %+v", stage, probes)
	return patternProbe{}
}

func TestRegisterInspectTool(t *testing.T) {
	srv := registerInspect(t)
	assert.Contains(t, listToolNames(t, srv), "inspect_patterns")
}

func TestInspectTool_ExactMatch(t *testing.T) {
	srv := registerInspect(t)

	text, isError := callTool(t, srv, "inspect_patterns", map[string]any{
		"column_name": "email_address",
	})
	require.False(t, isError, "unexpected error result: %s", text)

	var got inspectPatternsResult
	require.NoError(t, json.Unmarshal([]byte(text), &got))

	assert.Equal(t, "email_address", got.ColumnName)
	assert.Equal(t, "email_address", got.NormalizedName)
	assert.Equal(t, models.DomainGeneral, got.TableContext.Domain)

	exact := probeByStage(t, got.Probes, models.StageExact)
	assert.True(t, exact.Matched)
	assert.Equal(t, models.PIITypeEmail, exact.PIIType)

	assert.Equal(t, models.StageExact, got.Verdict.Stage)
	assert.Equal(t, models.PIITypeEmail, got.Verdict.PIIType)
	assert.True(t, got.Verdict.IsSensitive)
}

func TestInspectTool_FuzzyProbeReportsSimilarity(t *testing.T) {
	srv := registerInspect(t)

	text, isError := callTool(t, srv, "inspect_patterns", map[string]any{
		"column_name": "user_email_addr",
	})
	require.False(t, isError)

	var got inspectPatternsResult
	require.NoError(t, json.Unmarshal([]byte(text), &got))

	exact := probeByStage(t, got.Probes, models.StageExact)
	assert.False(t, exact.Matched)

	fuzzy := probeByStage(t, got.Probes, models.StageFuzzy)
	assert.True(t, fuzzy.Matched)
	assert.Equal(t, models.PIITypeEmail, fuzzy.PIIType)
	assert.GreaterOrEqual(t, fuzzy.Similarity, 0.75)

	assert.Equal(t, models.StageFuzzy, got.Verdict.Stage)
}

func TestInspectTool_ContextProbeInHealthcareTable(t *testing.T) {
	srv := registerInspect(t)

	text, isError := callTool(t, srv, "inspect_patterns", map[string]any{
		"column_name":     "id",
		"data_type":       "uuid",
		"table_name":      "patients",
		"sibling_columns": "diagnosis, mrn",
	})
	require.False(t, isError)

	var got inspectPatternsResult
	require.NoError(t, json.Unmarshal([]byte(text), &got))

	assert.Equal(t, models.DomainHealthcare, got.TableContext.Domain)
	assert.Greater(t, got.TableContext.Confidence, 0.5)

	contextProbe := probeByStage(t, got.Probes, models.StageContext)
	assert.True(t, contextProbe.Matched)
	assert.Equal(t, models.PIITypeMedicalRecord, contextProbe.PIIType)
	assert.Equal(t, "id", contextProbe.Value)

	assert.Equal(t, models.StageContext, got.Verdict.Stage)
	assert.Equal(t, models.PIITypeMedicalRecord, got.Verdict.PIIType)
}

func TestInspectTool_ContextProbeAbsentForGeneralTables(t *testing.T) {
	srv := registerInspect(t)

	text, isError := callTool(t, srv, "inspect_patterns", map[string]any{
		"column_name": "widget_count",
		"table_name":  "widgets",
	})
	require.False(t, isError)

	var got inspectPatternsResult
	require.NoError(t, json.Unmarshal([]byte(text), &got))

	assert.Equal(t, models.DomainGeneral, got.TableContext.Domain)
	for _, p := range got.Probes {
		assert.NotEqual(t, models.StageContext, p.Stage,
			"general tables have no context stage to probe")
	}
	assert.Equal(t, models.StageDefault, got.Verdict.Stage)
	assert.False(t, got.Verdict.IsSensitive)
}

func TestInspectTool_RegulationScopedProbe(t *testing.T) {
	srv := registerInspect(t)

	text, isError := callTool(t, srv, "inspect_patterns", map[string]any{
		"column_name": "email_address",
		"regulations": "gdpr",
	})
	require.False(t, isError)

	var got inspectPatternsResult
	require.NoError(t, json.Unmarshal([]byte(text), &got))

	// The scoped probe appears whenever a regulation filter is given,
	// matched or not.
	found := false
	for _, p := range got.Probes {
		if p.Stage == models.StageRegulationExact {
			found = true
		}
	}
	assert.True(t, found, "expected a regulation_exact probe when a scope is requested")
	assert.Contains(t, got.Verdict.Regulations, models.RegulationGDPR)
}

func TestInspectTool_EmptyColumnName(t *testing.T) {
	srv := registerInspect(t)

	text, isError := callTool(t, srv, "inspect_patterns", map[string]any{
		"column_name": "  ",
	})
	require.True(t, isError)
	assert.Equal(t, "invalid_parameters", decodeErrorResponse(t, text).Code)
}

func TestInspectTool_UnknownRegulationParameter(t *testing.T) {
	srv := registerInspect(t)

	text, isError := callTool(t, srv, "inspect_patterns", map[string]any{
		"column_name": "email_address",
		"regulations": "SOX",
	})
	require.True(t, isError)
	assert.Equal(t, "unknown_regulation", decodeErrorResponse(t, text).Code)
}

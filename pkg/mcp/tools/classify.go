// Package tools provides MCP tool implementations for schemaguard-engine.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/schemaguard-io/schemaguard-engine/pkg/apperrors"
	"github.com/schemaguard-io/schemaguard-engine/pkg/audit"
	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
	"github.com/schemaguard-io/schemaguard-engine/pkg/orchestrator"
)

// ClassifyToolDeps contains dependencies for the schema classification tool.
type ClassifyToolDeps struct {
	Orchestrator orchestrator.Orchestrator
	Auditor      *audit.ClassificationAuditor
	Logger       *zap.Logger
}

// RegisterClassifyTool adds the classify_schema tool to the MCP server.
func RegisterClassifyTool(s *server.MCPServer, deps *ClassifyToolDeps) {
	tool := mcp.NewTool(
		"classify_schema",
		mcp.WithDescription(
			"Classify every column of a database schema for PII and sensitive data. "+
				"Runs the hybrid pipeline: cached verdicts are reused, the local pattern engine classifies the rest, "+
				"and low-confidence edge cases may be escalated to an AI reviewer. "+
				"Returns one verdict per column with PII type, confidence, matched stage, applicable regulations, "+
				"and risk level, plus a session summary and any degradation diagnostics. "+
				`Example: classify_schema(schema='{"users":[{"column_name":"email","data_type":"varchar","ordinal_position":1}]}')`,
		),
		mcp.WithString(
			"schema",
			mcp.Required(),
			mcp.Description("JSON object mapping table names to column arrays. Each column requires column_name, data_type, and ordinal_position, and may carry is_nullable, is_primary_key, and max_length"),
		),
		mcp.WithString(
			"regulations",
			mcp.Description("Optional - comma-separated regulation scope (GDPR, CCPA, HIPAA, PCI-DSS); empty means all supported regulations"),
		),
		mcp.WithString(
			"region",
			mcp.Description("Optional - deployment region; schemas classified under different regions never share cached verdicts"),
		),
		mcp.WithString(
			"tenant",
			mcp.Description("Optional - tenant identifier; schemas classified for different tenants never share cached verdicts"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tenant := trimString(getOptionalString(req, "tenant"))

		schemaJSON, err := req.RequireString("schema")
		if err != nil {
			return nil, err
		}
		schemaJSON = trimString(schemaJSON)
		if schemaJSON == "" {
			deps.Auditor.RecordRequestRejected("classify_schema", "invalid_parameters", "empty schema parameter", tenant)
			return NewErrorResult("invalid_parameters", "parameter 'schema' cannot be empty"), nil
		}

		var schema models.Schema
		if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
			deps.Auditor.RecordRequestRejected("classify_schema", "invalid_schema_json", err.Error(), tenant)
			return NewErrorResult("invalid_schema_json",
				fmt.Sprintf("parameter 'schema' is not a valid schema document: %v", err)), nil
		}
		// Columns usually arrive without a table_name of their own; the
		// map key is authoritative for those.
		for table, cols := range schema {
			for i := range cols {
				if cols[i].TableName == "" {
					cols[i].TableName = table
				}
			}
		}

		var regulations []models.Regulation
		if raw := trimString(getOptionalString(req, "regulations")); raw != "" {
			regulations, err = models.ParseRegulations(splitCommaList(raw))
			if err != nil {
				deps.Auditor.RecordRequestRejected("classify_schema", "unknown_regulation", err.Error(), tenant)
				return NewErrorResultWithDetails("unknown_regulation", err.Error(),
					map[string]any{"supported": models.ValidRegulations}), nil
			}
		}

		session, err := deps.Orchestrator.ClassifySchema(ctx, models.ClassifyRequest{
			Schema:      schema,
			Regulations: regulations,
			Region:      trimString(getOptionalString(req, "region")),
			Tenant:      tenant,
		})
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrEmptySchema):
				deps.Logger.Debug("classify_schema rejected", zap.Error(err))
				deps.Auditor.RecordRequestRejected("classify_schema", "empty_schema", err.Error(), tenant)
				return NewErrorResult("empty_schema", err.Error()), nil
			case errors.Is(err, apperrors.ErrUnknownRegulation):
				deps.Logger.Debug("classify_schema rejected", zap.Error(err))
				deps.Auditor.RecordRequestRejected("classify_schema", "unknown_regulation", err.Error(), tenant)
				return NewErrorResultWithDetails("unknown_regulation", err.Error(),
					map[string]any{"supported": models.ValidRegulations}), nil
			}
			return nil, fmt.Errorf("classification failed: %w", err)
		}

		deps.Auditor.RecordSchemaClassified(session)

		out, err := json.Marshal(session)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal classification session: %w", err)
		}
		return mcp.NewToolResultText(string(out)), nil
	})
}

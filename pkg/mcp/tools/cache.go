package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/schemaguard-io/schemaguard-engine/pkg/schemacache"
)

// CacheToolDeps contains dependencies for the cache statistics tool.
type CacheToolDeps struct {
	Cache  schemacache.SchemaCache
	Logger *zap.Logger
}

// RegisterCacheStatsTool adds the cache_stats tool to the MCP server.
func RegisterCacheStatsTool(s *server.MCPServer, deps *CacheToolDeps) {
	tool := mcp.NewTool(
		"cache_stats",
		mcp.WithDescription(
			"Returns schema cache occupancy and lookup counters: in-memory entries, "+
				"exact fingerprint hits, similarity hits, misses, and degraded tier operations. "+
				"Use this to judge how much classification work the cache is absorbing.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats := deps.Cache.Stats(ctx)
		out, err := json.Marshal(stats)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal cache stats: %w", err)
		}
		return mcp.NewToolResultText(string(out)), nil
	})
}

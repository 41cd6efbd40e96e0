package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schemaguard-io/schemaguard-engine/pkg/config"
	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
	"github.com/schemaguard-io/schemaguard-engine/pkg/schemacache"
)

func registerCacheStats(cache schemacache.SchemaCache) *server.MCPServer {
	s := newTestMCPServer()
	RegisterCacheStatsTool(s, &CacheToolDeps{Cache: cache, Logger: zap.NewNop()})
	return s
}

func TestRegisterCacheStatsTool(t *testing.T) {
	cache := schemacache.New(&config.CacheConfig{MaxEntries: 8, TTLMinutes: 5, SimilarityThreshold: 0.95}, nil, nil, zap.NewNop())
	srv := registerCacheStats(cache)
	assert.Contains(t, listToolNames(t, srv), "cache_stats")
}

func TestCacheStatsTool_Execute(t *testing.T) {
	cache := schemacache.New(&config.CacheConfig{MaxEntries: 8, TTLMinutes: 5, SimilarityThreshold: 0.95}, nil, nil, zap.NewNop())
	srv := registerCacheStats(cache)

	text, isError := callTool(t, srv, "cache_stats", nil)
	require.False(t, isError)

	var stats schemacache.Stats
	require.NoError(t, json.Unmarshal([]byte(text), &stats))
	assert.Zero(t, stats.MemoryEntries)
	assert.Zero(t, stats.ExactHits)
	assert.Zero(t, stats.Misses)
}

func TestCacheStatsTool_ReflectsActivity(t *testing.T) {
	cache := schemacache.New(&config.CacheConfig{MaxEntries: 8, TTLMinutes: 5, SimilarityThreshold: 0.95}, nil, nil, zap.NewNop())
	srv := registerCacheStats(cache)

	ctx := context.Background()
	schema := models.Schema{
		"users": {{TableName: "users", ColumnName: "email", DataType: "varchar", OrdinalPosition: 1}},
	}
	fingerprint := cache.Fingerprint(schema, nil, "", "")

	_, found := cache.Lookup(ctx, fingerprint)
	require.False(t, found)

	cache.Store(ctx, fingerprint, []models.FieldAnalysisResult{{
		Column:  schema["users"][0],
		PIIType: models.PIITypeEmail,
		Stage:   models.StageExact,
	}})

	text, isError := callTool(t, srv, "cache_stats", nil)
	require.False(t, isError)

	var stats schemacache.Stats
	require.NoError(t, json.Unmarshal([]byte(text), &stats))
	assert.Equal(t, 1, stats.MemoryEntries)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Zero(t, stats.ExactHits)
}
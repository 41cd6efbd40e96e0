package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/schemaguard-io/schemaguard-engine/pkg/ai"
	"github.com/schemaguard-io/schemaguard-engine/pkg/audit"
	"github.com/schemaguard-io/schemaguard-engine/pkg/batch"
	"github.com/schemaguard-io/schemaguard-engine/pkg/classify"
	"github.com/schemaguard-io/schemaguard-engine/pkg/config"
	"github.com/schemaguard-io/schemaguard-engine/pkg/database"
	"github.com/schemaguard-io/schemaguard-engine/pkg/handlers"
	"github.com/schemaguard-io/schemaguard-engine/pkg/logging"
	"github.com/schemaguard-io/schemaguard-engine/pkg/mcp"
	"github.com/schemaguard-io/schemaguard-engine/pkg/mcp/tools"
	"github.com/schemaguard-io/schemaguard-engine/pkg/middleware"
	"github.com/schemaguard-io/schemaguard-engine/pkg/orchestrator"
	"github.com/schemaguard-io/schemaguard-engine/pkg/patterns"
	"github.com/schemaguard-io/schemaguard-engine/pkg/repositories"
	"github.com/schemaguard-io/schemaguard-engine/pkg/retry"
	"github.com/schemaguard-io/schemaguard-engine/pkg/schemacache"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("persistent_cache", cfg.Database.IsConfigured()),
		zap.Bool("redis_cache", cfg.Redis.Host != ""),
		zap.Bool("ai_escalation", cfg.AI.IsAvailable()))

	ctx := context.Background()

	records, err := patterns.LoadRecords(cfg.Patterns.File, logger)
	if err != nil {
		logger.Fatal("Failed to load pattern corpus", zap.Error(err))
	}
	library, err := patterns.NewLibrary(records, logger)
	if err != nil {
		logger.Fatal("Failed to build pattern library", zap.Error(err))
	}
	logger.Info("Pattern library ready", zap.Int("patterns", library.Size()))

	engine := classify.NewEngine(library, classify.DefaultOverrides(), classify.DefaultRegulationPolicy(), &cfg.Classifier, logger)
	resolver := classify.NewContextResolver(logger)
	processor := batch.NewProcessor(&cfg.Batch, logger)

	// Cache tiers that fail to come up are skipped; classification
	// degrades to the remaining tiers rather than refusing to start.
	var persistent schemacache.PersistentStore
	if cfg.Database.IsConfigured() {
		if repo := connectPersistentTier(ctx, cfg, logger); repo != nil {
			persistent = repo
		}
	}

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Warn("Redis cache tier unavailable, continuing without it",
			zap.String("error", logging.SanitizeError(err)))
		redisClient = nil
	}

	cache := schemacache.New(&cfg.Cache, redisClient, persistent, logger)

	var escalator ai.Escalator
	if cfg.AI.IsAvailable() {
		client, err := ai.NewClientFromConfig(&cfg.AI, logger)
		if err != nil {
			logger.Fatal("Failed to build AI client", zap.Error(err))
		}
		retryCfg := retry.DefaultConfig()
		if cfg.AI.MaxRetries > 0 {
			retryCfg.MaxRetries = cfg.AI.MaxRetries
		}
		escalator = ai.NewProviderEscalator(client, retryCfg, logger)
		logger.Info("AI escalation enabled",
			zap.String("provider", cfg.AI.Provider),
			zap.String("model", cfg.AI.Model))
	}

	orch := orchestrator.NewOrchestrator(engine, resolver, processor, cache, escalator, cfg, logger)
	auditor := audit.NewClassificationAuditor(logger)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, logger)
	healthHandler.RegisterRoutes(mux)

	mcpServer := mcp.NewServer("schemaguard-engine", cfg.Version, logger)
	tools.RegisterClassifyTool(mcpServer.MCP(), &tools.ClassifyToolDeps{
		Orchestrator: orch,
		Auditor:      auditor,
		Logger:       logger,
	})
	tools.RegisterInspectTool(mcpServer.MCP(), &tools.InspectToolDeps{
		Library:    library,
		Engine:     engine,
		Resolver:   resolver,
		Classifier: &cfg.Classifier,
		Logger:     logger,
	})
	tools.RegisterCacheStatsTool(mcpServer.MCP(), &tools.CacheToolDeps{Cache: cache, Logger: logger})

	// The MCP endpoint gets JSON-RPC-aware logging; everything else gets
	// the plain request logger.
	mux.Handle("/mcp", middleware.MCPRequestLogger(logger)(mcpServer.NewStreamableHTTPServer()))
	handler := middleware.RequestLogger(logger)(mux)

	addr := fmt.Sprintf("%s:%s", cfg.BindAddr, cfg.Port)
	logger.Info("Starting schemaguard-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

// connectPersistentTier brings up the Postgres cache tier: migrations,
// connection pool, and a sweep of entries past their TTL. Returns nil
// when the tier cannot be reached.
func connectPersistentTier(ctx context.Context, cfg *config.Config, logger *zap.Logger) repositories.CacheEntryRepository {
	dsn := cfg.Database.ConnectionString()

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		logger.Warn("Persistent cache tier unavailable, continuing without it",
			zap.String("error", logging.SanitizeError(err)))
		return nil
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		sqlDB.Close()
		logger.Warn("Persistent cache tier unavailable, continuing without it",
			zap.String("error", logging.SanitizeError(err)))
		return nil
	}
	sqlDB.Close()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            dsn,
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Warn("Persistent cache tier unavailable, continuing without it",
			zap.String("error", logging.SanitizeError(err)))
		return nil
	}

	repo := repositories.NewCacheEntryRepository(db)
	logger.Info("Persistent cache tier connected",
		zap.String("dsn", logging.SanitizeConnectionString(dsn)))

	ttl := time.Duration(cfg.Cache.TTLMinutes) * time.Minute
	deleted, err := repo.DeleteExpired(ctx, time.Now().Add(-ttl))
	if err != nil {
		logger.Warn("Expired cache sweep failed", zap.Error(err))
	} else if deleted > 0 {
		logger.Info("Swept expired cache entries", zap.Int64("deleted", deleted))
	}

	return repo
}

// cleanup-cache removes stale rows from the persistent schema cache.
//
// An entry is stale when its created_at is older than the -older-than
// window. The engine sweeps expired entries at boot; this tool covers
// manual cleanup between restarts, and forcing reclassification by
// clearing the whole cache with -older-than=0.
//
// Usage: go run ./scripts/cleanup-cache [-dry-run=false] [-older-than=24h]
//
// Database connection: Uses standard PG* environment variables
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
)

func main() {
	dryRun := flag.Bool("dry-run", true, "Show what would be deleted without actually deleting")
	olderThan := flag.Duration("older-than", 24*time.Hour, "Delete entries created longer ago than this")
	flag.Parse()

	ctx := context.Background()

	conn, err := pgx.Connect(ctx, buildConnString())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	cutoff := time.Now().Add(-*olderThan)

	if *dryRun {
		var count int
		err := conn.QueryRow(ctx,
			`SELECT count(*) FROM engine_schema_cache WHERE created_at < $1`, cutoff).Scan(&count)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to count stale entries: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("DRY RUN: would delete %d cache entries created before %s\n", count, cutoff.Format(time.RFC3339))
		fmt.Println("Re-run with -dry-run=false to delete them")
		return
	}

	result, err := conn.Exec(ctx,
		`DELETE FROM engine_schema_cache WHERE created_at < $1`, cutoff)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to delete stale entries: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d cache entries created before %s\n", result.RowsAffected(), cutoff.Format(time.RFC3339))
}

func buildConnString() string {
	host := getEnvOrDefault("PGHOST", "localhost")
	port := getEnvOrDefault("PGPORT", "5432")
	user := getEnvOrDefault("PGUSER", "schemaguard")
	password := os.Getenv("PGPASSWORD")
	dbname := getEnvOrDefault("PGDATABASE", "schemaguard")

	connStr := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		host, port, user, dbname)
	if password != "" {
		connStr += fmt.Sprintf(" password=%s", password)
	}
	return connStr
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

package config

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	pgPool     *pgxpool.Pool
	pgPoolOnce sync.Once
)

// InitPostgres initializes the warehouse connection pool from WAREHOUSE_DATABASE_URL.
// The raw order tables may live in a Postgres warehouse instead of the MySQL
// application database; RECORD_SOURCE=postgres selects it.
func InitPostgres(ctx context.Context) error {
	var err error
	pgPoolOnce.Do(func() {
		dbURL := os.Getenv("WAREHOUSE_DATABASE_URL")
		if dbURL == "" {
			err = fmt.Errorf("WAREHOUSE_DATABASE_URL environment variable not set")
			return
		}

		cfg, parseErr := pgxpool.ParseConfig(dbURL)
		if parseErr != nil {
			err = fmt.Errorf("failed to parse warehouse database config: %w", parseErr)
			return
		}
		if maxConns := intFromEnv("WAREHOUSE_MAX_CONNS", 0); maxConns > 0 {
			cfg.MaxConns = int32(maxConns)
		}

		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
	})
	return err
}

func GetPostgresPool() *pgxpool.Pool {
	return pgPool
}

func ClosePostgres() {
	if pgPool != nil {
		pgPool.Close()
	}
}

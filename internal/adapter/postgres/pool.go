package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/edict-ingest/internal/config"
)

// applicationName tags importer sessions in pg_stat_activity.
const applicationName = "edict-importer"

// NewPool connects the importer to PostgreSQL and pings once, so a bad DSN
// fails the run before any input file is opened.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("importer pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		host := poolCfg.ConnConfig.Host
		return nil, fmt.Errorf("importer pool: ping %s/%s: %w", host, poolCfg.ConnConfig.Database, err)
	}

	return pool, nil
}

// poolConfig maps DatabaseConfig onto pgxpool settings. An import holds one
// write transaction at a time, so MaxConns stays small by default.
func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("importer pool: parse DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	return poolCfg, nil
}

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbApplicationName = "idvault"

// NewDBPool opens the record database pool and waits up to cfg.DBConnectTimeout
// for a first connection. Tables are provisioned outside the process;
// CheckRecordSchema verifies they exist.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse IDVAULT_DATABASE_URL: %w", err)
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 && cfg.DBMinConns <= pcfg.MaxConns {
		pcfg.MinConns = cfg.DBMinConns
	}
	if _, ok := pcfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		pcfg.ConnConfig.RuntimeParams["application_name"] = dbApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("open record pool: %w", err)
	}

	if err := PingDB(ctx, pool, nonZeroDuration(cfg.DBConnectTimeout, 3*time.Second)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect record database: %w", err)
	}

	return pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

// requiredTables lists the tables the runtime reads and writes in cfg.DBSchema.
func requiredTables(cfg Config) []string {
	tables := []string{"records"}
	if cfg.AuditEnabled {
		tables = append(tables, "audit_log")
	}
	return tables
}

// CheckRecordSchema fails when a table the runtime needs is missing from schema.
func CheckRecordSchema(ctx context.Context, pool *pgxpool.Pool, schema string, tables []string) error {
	for _, t := range tables {
		name := pgx.Identifier{schema, t}.Sanitize()

		var present bool
		if err := pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, name).Scan(&present); err != nil {
			return fmt.Errorf("check table %s: %w", name, err)
		}
		if !present {
			return fmt.Errorf("table %s is missing; provision the schema before starting", name)
		}
	}
	return nil
}

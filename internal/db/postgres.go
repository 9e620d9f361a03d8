package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joshbrooks/viewedmodels/internal/views"
)

// pgConn is the subset of *pgxpool.Pool the client uses
type pgConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresClient manages a connection pool to PostgreSQL
type PostgresClient struct {
	conn pgConn
	pool *pgxpool.Pool
}

// NewPostgresClient creates a new PostgreSQL client. When schemaName is
// set and not "public" it becomes the search_path of every connection.
func NewPostgresClient(ctx context.Context, connString, schemaName string) (*PostgresClient, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if schemaName != "" && schemaName != "public" {
		cfg.ConnConfig.RuntimeParams["search_path"] = schemaName
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{conn: pool, pool: pool}, nil
}

// Dialect returns views.Postgres
func (c *PostgresClient) Dialect() views.Dialect {
	return views.Postgres
}

// Exec runs a single statement outside any explicit transaction
func (c *PostgresClient) Exec(ctx context.Context, stmt string) error {
	_, err := c.conn.Exec(ctx, stmt)
	return err
}

// WithinTx runs fn inside a transaction
func (c *PostgresClient) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Execer) error) error {
	return pgx.BeginFunc(ctx, c.conn, func(tx pgx.Tx) error {
		return fn(ctx, pgxTx{tx: tx})
	})
}

// Close closes the connection pool
func (c *PostgresClient) Close() error {
	if c.pool != nil {
		c.pool.Close()
	}
	return nil
}

// GetPool returns the underlying connection pool
func (c *PostgresClient) GetPool() *pgxpool.Pool {
	return c.pool
}

type pgxTx struct {
	tx pgx.Tx
}

func (t pgxTx) Exec(ctx context.Context, stmt string) error {
	_, err := t.tx.Exec(ctx, stmt)
	return err
}

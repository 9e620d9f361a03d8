package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/joshbrooks/viewedmodels/internal/views"
)

// sqlSession implements Session over database/sql
type sqlSession struct {
	db      *sql.DB
	dialect views.Dialect
}

// Dialect returns the SQL flavour of the connection
func (s *sqlSession) Dialect() views.Dialect {
	return s.dialect
}

// Exec runs a single statement in autocommit mode
func (s *sqlSession) Exec(ctx context.Context, stmt string) error {
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

// WithinTx runs fn inside a transaction
func (s *sqlSession) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Execer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(ctx, sqlTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *sqlSession) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *sqlSession) GetDB() *sql.DB {
	return s.db
}

type sqlTx struct {
	tx *sql.Tx
}

func (t sqlTx) Exec(ctx context.Context, stmt string) error {
	_, err := t.tx.ExecContext(ctx, stmt)
	return err
}

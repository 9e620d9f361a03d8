package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joshbrooks/viewedmodels/internal/schema"
	"github.com/joshbrooks/viewedmodels/internal/views"
)

// PostgresCatalog handles view introspection on PostgreSQL
type PostgresCatalog struct {
	client *PostgresClient
	schema string
}

// NewPostgresCatalog creates a new catalog reader for schemaName
func NewPostgresCatalog(client *PostgresClient, schemaName string) *PostgresCatalog {
	if schemaName == "" {
		schemaName = "public"
	}
	return &PostgresCatalog{
		client: client,
		schema: schemaName,
	}
}

// ExtractSchema extracts the views of the schema.
// If names is empty, extracts all views and materialized views.
func (e *PostgresCatalog) ExtractSchema(ctx context.Context, names []string) (*schema.Schema, error) {
	extracted, err := e.listViews(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("failed to list views: %w", err)
	}

	for i := range extracted {
		v := &extracted[i]

		columns, err := e.extractColumns(ctx, v.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to extract columns of %s: %w", v.Name, err)
		}
		v.Columns = columns

		if v.Materialized {
			indexes, err := e.extractIndexes(ctx, v.Name)
			if err != nil {
				return nil, fmt.Errorf("failed to extract indexes of %s: %w", v.Name, err)
			}
			v.Indexes = indexes
		}
	}

	return &schema.Schema{Name: e.schema, Views: extracted}, nil
}

// listViews returns the views to extract with their kind and comment
func (e *PostgresCatalog) listViews(ctx context.Context, requested []string) ([]schema.View, error) {
	query := `
		SELECT
			c.relname,
			c.relkind = 'm' AS is_materialized,
			COALESCE(obj_description(c.oid, 'pg_class'), '') AS comment
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
			AND c.relkind IN ('v', 'm')
			AND (cardinality($2::text[]) = 0 OR c.relname = ANY($2))
		ORDER BY c.relname
	`

	filter := make([]string, 0, len(requested))
	for _, name := range requested {
		filter = append(filter, relName(name))
	}

	rows, err := e.client.conn.Query(ctx, query, e.schema, filter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []schema.View
	for rows.Next() {
		var v schema.View
		if err := rows.Scan(&v.Name, &v.Materialized, &v.Comment); err != nil {
			return nil, err
		}
		result = append(result, v)
	}

	return result, rows.Err()
}

// extractColumns extracts the columns of a view in attribute order
func (e *PostgresCatalog) extractColumns(ctx context.Context, viewName string) ([]schema.Column, error) {
	query := `
		SELECT
			a.attname,
			format_type(a.atttypid, a.atttypmod),
			NOT a.attnotnull
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
			AND c.relname = $2
			AND a.attnum > 0
			AND NOT a.attisdropped
		ORDER BY a.attnum
	`

	rows, err := e.client.conn.Query(ctx, query, e.schema, viewName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var col schema.Column
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable); err != nil {
			return nil, err
		}
		col.Type = normalizeFormatType(col.Type)
		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// normalizeFormatType maps verbose format_type output to the short names
// used in definition fields
func normalizeFormatType(t string) string {
	switch {
	case t == "timestamp with time zone":
		return "timestamptz"
	case t == "timestamp without time zone":
		return "timestamp"
	case t == "double precision":
		return "double"
	case strings.HasPrefix(t, "character varying"):
		return "varchar"
	case strings.HasPrefix(t, "numeric"):
		return "numeric"
	default:
		return t
	}
}

// extractIndexes extracts index information of a materialized view
func (e *PostgresCatalog) extractIndexes(ctx context.Context, viewName string) ([]schema.Index, error) {
	query := `
		SELECT
			i.relname AS index_name,
			ix.indisunique AS is_unique,
			array_agg(a.attname ORDER BY array_position(ix.indkey, a.attnum)) AS column_names
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE t.relkind = 'm'
			AND n.nspname = $1
			AND t.relname = $2
		GROUP BY i.relname, ix.indisunique
		ORDER BY i.relname
	`

	rows, err := e.client.conn.Query(ctx, query, e.schema, viewName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []schema.Index
	for rows.Next() {
		var idx schema.Index
		if err := rows.Scan(&idx.Name, &idx.IsUnique, &idx.Columns); err != nil {
			return nil, err
		}
		indexes = append(indexes, idx)
	}

	return indexes, rows.Err()
}

// RelationExists reports whether a table or view called name exists
func (e *PostgresCatalog) RelationExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := e.client.conn.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, e.qualify(name)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", name, err)
	}
	return exists, nil
}

// Comment returns the comment of a view, or "" if it has none or does not exist
func (e *PostgresCatalog) Comment(ctx context.Context, name string) (string, error) {
	var comment string
	err := e.client.conn.QueryRow(ctx,
		`SELECT COALESCE(obj_description(to_regclass($1), 'pg_class'), '')`, e.qualify(name)).Scan(&comment)
	if err != nil {
		return "", fmt.Errorf("failed to read comment of %s: %w", name, err)
	}
	return comment, nil
}

// Now returns the server's transaction timestamp
func (e *PostgresCatalog) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := e.client.conn.QueryRow(ctx, `SELECT now()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("failed to read server time: %w", err)
	}
	return now, nil
}

// qualify returns the quoted, schema-qualified form of name
func (e *PostgresCatalog) qualify(name string) string {
	if !strings.Contains(name, ".") {
		name = e.schema + "." + name
	}
	return views.Postgres.QuoteIdent(name)
}

// relName strips an optional schema prefix
func relName(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

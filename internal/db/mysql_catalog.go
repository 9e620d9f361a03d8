package db

import (
	"context"
	"fmt"
	"time"

	"github.com/joshbrooks/viewedmodels/internal/schema"
)

// MySQLCatalog handles view introspection on MySQL
type MySQLCatalog struct {
	client     *MySQLClient
	schemaName string
}

// NewMySQLCatalog creates a new MySQL catalog reader
func NewMySQLCatalog(client *MySQLClient, schemaName string) *MySQLCatalog {
	return &MySQLCatalog{
		client:     client,
		schemaName: schemaName,
	}
}

// ExtractSchema extracts the views of the schema.
// If names is empty, extracts all views.
func (e *MySQLCatalog) ExtractSchema(ctx context.Context, names []string) (*schema.Schema, error) {
	viewNames, err := e.getViewNames(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("failed to get view names: %w", err)
	}

	extracted := make([]schema.View, 0, len(viewNames))
	for _, name := range viewNames {
		columns, err := e.extractColumns(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to extract columns of %s: %w", name, err)
		}
		extracted = append(extracted, schema.View{Name: name, Columns: columns})
	}

	return &schema.Schema{Name: e.schemaName, Views: extracted}, nil
}

// getViewNames returns the existing views, restricted to requested when set
func (e *MySQLCatalog) getViewNames(ctx context.Context, requested []string) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.views
		WHERE table_schema = ?
		ORDER BY table_name
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query, e.schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	want := make(map[string]bool, len(requested))
	for _, name := range requested {
		want[relName(name)] = true
	}

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if len(want) == 0 || want[name] {
			names = append(names, name)
		}
	}

	return names, rows.Err()
}

// extractColumns extracts column information for a view
func (e *MySQLCatalog) extractColumns(ctx context.Context, viewName string) ([]schema.Column, error) {
	query := `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query, e.schemaName, viewName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var col schema.Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable); err != nil {
			return nil, err
		}
		col.Nullable = nullable == "YES"
		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// RelationExists reports whether a table or view called name exists
func (e *MySQLCatalog) RelationExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := e.client.GetDB().QueryRowContext(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?`,
		e.schemaName, relName(name)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", name, err)
	}
	return count > 0, nil
}

// Comment always returns "": MySQL views carry no comment
func (e *MySQLCatalog) Comment(ctx context.Context, name string) (string, error) {
	return "", nil
}

// Now returns the server's current UTC time
func (e *MySQLCatalog) Now(ctx context.Context) (time.Time, error) {
	var now string
	if err := e.client.GetDB().QueryRowContext(ctx, `SELECT DATE_FORMAT(UTC_TIMESTAMP(6), '%Y-%m-%dT%H:%i:%s.%fZ')`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("failed to read server time: %w", err)
	}
	return time.Parse("2006-01-02T15:04:05.000000Z", now)
}

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/joshbrooks/viewedmodels/internal/schema"
	"github.com/joshbrooks/viewedmodels/internal/views"
)

// SQLiteCatalog handles view introspection on SQLite
type SQLiteCatalog struct {
	client *SQLiteClient
}

// NewSQLiteCatalog creates a new SQLite catalog reader
func NewSQLiteCatalog(client *SQLiteClient) *SQLiteCatalog {
	return &SQLiteCatalog{
		client: client,
	}
}

// ExtractSchema extracts the views of the database.
// If names is empty, extracts all views.
func (e *SQLiteCatalog) ExtractSchema(ctx context.Context, names []string) (*schema.Schema, error) {
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

	return &schema.Schema{Name: "main", Views: extracted}, nil
}

// getViewNames returns the existing views, restricted to requested when set
func (e *SQLiteCatalog) getViewNames(ctx context.Context, requested []string) ([]string, error) {
	query := `
		SELECT name
		FROM sqlite_master
		WHERE type = 'view'
		ORDER BY name
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query)
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
func (e *SQLiteCatalog) extractColumns(ctx context.Context, viewName string) ([]schema.Column, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", views.SQLite.QuoteIdent(viewName))

	rows, err := e.client.GetDB().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var cid, notNull, pk int
		var name, colType string
		var defaultValue any

		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pk); err != nil {
			return nil, err
		}

		columns = append(columns, schema.Column{
			Name:     name,
			Type:     colType,
			Nullable: notNull == 0,
		})
	}

	return columns, rows.Err()
}

// RelationExists reports whether a table or view called name exists
func (e *SQLiteCatalog) RelationExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := e.client.GetDB().QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?`,
		relName(name)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", name, err)
	}
	return count > 0, nil
}

// Comment always returns "": SQLite cannot store comments on views
func (e *SQLiteCatalog) Comment(ctx context.Context, name string) (string, error) {
	return "", nil
}

// Now returns the database's current UTC time
func (e *SQLiteCatalog) Now(ctx context.Context) (time.Time, error) {
	var now string
	err := e.client.GetDB().QueryRowContext(ctx, `SELECT strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`).Scan(&now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read database time: %w", err)
	}
	return time.Parse("2006-01-02T15:04:05.000Z", now)
}

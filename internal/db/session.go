package db

import (
	"context"
	"time"

	"github.com/joshbrooks/viewedmodels/internal/schema"
	"github.com/joshbrooks/viewedmodels/internal/views"
)

// Execer runs a single SQL statement
type Execer interface {
	Exec(ctx context.Context, stmt string) error
}

// Session executes DDL against one database
type Session interface {
	Execer

	// Dialect reports which SQL flavour the session speaks
	Dialect() views.Dialect

	// WithinTx runs fn inside a transaction. The transaction commits when
	// fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Execer) error) error

	Close() error
}

// Catalog answers questions about relations that already exist
type Catalog interface {
	// ExtractSchema lists existing views. If names is empty, every view in
	// the schema is returned; otherwise only the named views that exist.
	ExtractSchema(ctx context.Context, names []string) (*schema.Schema, error)

	// RelationExists reports whether a table or view called name exists
	RelationExists(ctx context.Context, name string) (bool, error)

	// Comment returns the comment stored on a view, or "" if none
	Comment(ctx context.Context, name string) (string, error)

	// Now returns the database's current time
	Now(ctx context.Context) (time.Time, error)
}

// Database couples a session with the catalog of the same connection
type Database interface {
	Session
	Catalog
}

type database struct {
	Session
	Catalog
}

// NewDatabase combines a session and a catalog
func NewDatabase(s Session, c Catalog) Database {
	return &database{Session: s, Catalog: c}
}

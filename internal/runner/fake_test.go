package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/joshbrooks/viewedmodels/internal/db"
	"github.com/joshbrooks/viewedmodels/internal/schema"
	"github.com/joshbrooks/viewedmodels/internal/views"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeDB records statements. A statement containing a key of failOn
// fails with the mapped error.
type fakeDB struct {
	mu        sync.Mutex
	dialect   views.Dialect
	log       []string
	committed []string
	failOn    map[string]error
	comments  map[string]string
	tables    map[string]bool
	existing  *schema.Schema
	inTx      bool
	pending   []string
}

func newFakeDB(d views.Dialect) *fakeDB {
	return &fakeDB{
		dialect:  d,
		failOn:   make(map[string]error),
		comments: make(map[string]string),
		tables:   make(map[string]bool),
		existing: &schema.Schema{Name: "public"},
	}
}

var _ db.Database = (*fakeDB)(nil)

func (f *fakeDB) Dialect() views.Dialect { return f.dialect }

func (f *fakeDB) Exec(ctx context.Context, stmt string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, stmt)
	for key, err := range f.failOn {
		if strings.Contains(stmt, key) {
			return err
		}
	}
	if f.inTx {
		f.pending = append(f.pending, stmt)
	} else {
		f.committed = append(f.committed, stmt)
	}
	return nil
}

func (f *fakeDB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx db.Execer) error) error {
	f.mu.Lock()
	f.log = append(f.log, "BEGIN")
	f.inTx = true
	f.pending = nil
	f.mu.Unlock()

	err := fn(ctx, f)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inTx = false
	if err != nil {
		f.log = append(f.log, "ROLLBACK")
		f.pending = nil
		return err
	}
	f.log = append(f.log, "COMMIT")
	f.committed = append(f.committed, f.pending...)
	f.pending = nil
	return nil
}

func (f *fakeDB) Close() error { return nil }

func (f *fakeDB) ExtractSchema(ctx context.Context, names []string) (*schema.Schema, error) {
	return f.existing, nil
}

func (f *fakeDB) RelationExists(ctx context.Context, name string) (bool, error) {
	return f.tables[name], nil
}

func (f *fakeDB) Comment(ctx context.Context, name string) (string, error) {
	return f.comments[name], nil
}

func (f *fakeDB) Now(ctx context.Context) (time.Time, error) {
	return fixedNow, nil
}

// statements returns the logged statements, leaving out comments,
// savepoints and transaction control
func (f *fakeDB) statements() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.log {
		switch {
		case strings.HasPrefix(s, "COMMENT ON"),
			strings.Contains(s, "SAVEPOINT"),
			s == "BEGIN", s == "COMMIT", s == "ROLLBACK":
			continue
		}
		out = append(out, s)
	}
	return out
}

func (f *fakeDB) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = nil
	f.committed = nil
}

func mustRegistry(defs ...views.Definition) *views.Registry {
	reg := views.NewRegistry()
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			panic(err)
		}
	}
	return reg
}

func view(name, body string, deps ...string) views.Definition {
	def := views.Definition{Name: name, Body: body}
	for _, dep := range deps {
		if table, ok := strings.CutPrefix(dep, "table:"); ok {
			def.Dependencies = append(def.Dependencies, views.TableRef(table))
		} else {
			def.Dependencies = append(def.Dependencies, views.ViewRef(dep))
		}
	}
	return def
}

func matview(name, body string, deps ...string) views.Definition {
	def := view(name, body, deps...)
	def.Materialized = true
	return def
}

var errRejected = errors.New("syntax error at or near \"FORM\"")

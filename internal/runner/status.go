package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/joshbrooks/viewedmodels/internal/views"
)

// ViewStatus compares one definition with what the database holds
type ViewStatus struct {
	Name         string
	App          string
	Materialized bool
	Exists       bool
	// KindMatches is false when a view exists as the wrong kind
	KindMatches bool
	// MissingFields lists declared fields the database view lacks
	MissingFields []string
	// Checksum is the checksum of the current definition
	Checksum string
	// Current is true when the stamped checksum equals Checksum
	Current     bool
	LastUpdated time.Time
}

// Status reports the state of every selected definition
func (r *Runner) Status(ctx context.Context) ([]ViewStatus, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	defs, err := r.reg.Sort(r.opts.Apps)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	existing, err := r.db.ExtractSchema(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("failed to read existing views: %w", err)
	}

	d := r.db.Dialect()
	statuses := make([]ViewStatus, 0, len(defs))
	for _, def := range defs {
		st := ViewStatus{
			Name:         def.Name,
			App:          def.App,
			Materialized: def.Materialized,
			Checksum:     views.Checksum(d, def),
		}

		if v := existing.Find(def.Name); v != nil {
			st.Exists = true
			st.KindMatches = v.Materialized == def.Materialized

			have := make(map[string]bool, len(v.Columns))
			for _, c := range v.Columns {
				have[c.Name] = true
			}
			for _, f := range def.Fields {
				if !have[f.Name] {
					st.MissingFields = append(st.MissingFields, f.Name)
				}
			}

			if meta, ok := ParseComment(v.Comment); ok {
				st.Current = meta.Checksum == st.Checksum
				st.LastUpdated = meta.LastUpdated
			}
		}

		statuses = append(statuses, st)
	}
	return statuses, nil
}

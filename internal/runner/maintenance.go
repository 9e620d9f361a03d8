package runner

import (
	"context"
	"time"

	"github.com/joshbrooks/viewedmodels/internal/logging"
	"github.com/joshbrooks/viewedmodels/internal/views"
)

// Refresh refreshes every selected materialized view in dependency order
// and updates last_updated in its comment. A view whose last update is
// younger than minAge is skipped; minAge <= 0 refreshes everything.
func (r *Runner) Refresh(ctx context.Context, minAge time.Duration) (*Result, error) {
	var now time.Time
	return r.maintain(ctx, OpRefresh, func(ctx context.Context, d views.Dialect, def views.Definition) ([]Step, error) {
		if now.IsZero() {
			var err error
			if now, err = r.db.Now(ctx); err != nil {
				return nil, err
			}
		}

		var comment string
		if minAge > 0 || d.SupportsComments() {
			var err error
			if comment, err = r.db.Comment(ctx, def.Name); err != nil {
				return nil, err
			}
		}

		if minAge > 0 {
			if meta, ok := ParseComment(comment); ok && !meta.LastUpdated.IsZero() {
				if age := now.Sub(meta.LastUpdated); age < minAge {
					logging.Info("view refreshed recently, skipping", "view", def.Name, "age", age.String())
					return nil, nil
				}
			}
		}

		steps := []Step{{View: def.Name, Op: OpRefresh, Statement: views.RefreshStatement(d, def)}}
		if d.SupportsComments() {
			// the checksum keeps describing the body of the last recreate
			steps = append(steps, Step{
				View:      def.Name,
				Op:        OpComment,
				Statement: views.CommentStatement(d, def, TouchComment(comment, now)),
			})
		}
		return steps, nil
	})
}

// Vacuum runs VACUUM ANALYZE on every selected materialized view.
// VACUUM cannot run inside a transaction, so statements autocommit.
func (r *Runner) Vacuum(ctx context.Context) (*Result, error) {
	return r.maintain(ctx, OpVacuum, func(ctx context.Context, d views.Dialect, def views.Definition) ([]Step, error) {
		return []Step{{View: def.Name, Op: OpVacuum, Statement: views.VacuumStatement(d, def)}}, nil
	})
}

// SetStatistics sets the planner statistics target of every declared
// field of the selected materialized views. target <= 0 uses
// DefaultStatisticsTarget.
func (r *Runner) SetStatistics(ctx context.Context, target int) (*Result, error) {
	if target <= 0 {
		target = DefaultStatisticsTarget
	}
	return r.maintain(ctx, OpStatistics, func(ctx context.Context, d views.Dialect, def views.Definition) ([]Step, error) {
		stmts := views.StatisticsStatements(d, def, target)
		steps := make([]Step, len(stmts))
		for i, stmt := range stmts {
			steps[i] = Step{View: def.Name, Op: OpStatistics, Statement: stmt}
		}
		return steps, nil
	})
}

// maintain runs build's statements for each selected materialized view in
// dependency order. A view for which build returns no steps is skipped.
func (r *Runner) maintain(ctx context.Context, op Op, build func(context.Context, views.Dialect, views.Definition) ([]Step, error)) (*Result, error) {
	start := time.Now()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	d := r.db.Dialect()
	defs, err := r.materialized(d)
	if err != nil {
		return nil, err
	}

	result := &Result{Op: op, DryRun: r.opts.DryRun}
	t := newTracker()
	for _, def := range defs {
		if err := ctx.Err(); err != nil {
			t.fill(result)
			return result, err
		}

		steps, err := build(ctx, d, def)
		if err != nil {
			t.fill(result)
			return result, err
		}
		if len(steps) == 0 {
			t.markSkipped(def.Name)
			continue
		}
		if r.opts.DryRun {
			result.Steps = append(result.Steps, steps...)
			continue
		}

		ok, err := r.runSteps(ctx, r.db, def.Name, steps, t, false)
		if err != nil {
			t.fill(result)
			return result, err
		}
		if ok {
			t.markDone(def.Name)
			logging.Debug("maintenance done", "view", def.Name, "op", string(op))
		}
	}

	t.fill(result)
	result.Elapsed = time.Since(start)
	if len(result.Failures) > 0 {
		return result, &RecreateError{Failures: result.Failures}
	}
	return result, nil
}

// materialized returns the selected materialized views in dependency order
func (r *Runner) materialized(d views.Dialect) ([]views.Definition, error) {
	ordered, err := r.reg.Sort(r.opts.Apps)
	if err != nil {
		return nil, err
	}

	var out []views.Definition
	for _, def := range ordered {
		if !def.Materialized {
			continue
		}
		if err := views.CheckSupported(d, def); err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

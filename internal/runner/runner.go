package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joshbrooks/viewedmodels/internal/db"
	"github.com/joshbrooks/viewedmodels/internal/logging"
	"github.com/joshbrooks/viewedmodels/internal/views"
)

const savepointName = "viewedmodels_step"

// Result reports what a run did
type Result struct {
	Op Op
	// Done lists the views handled successfully, in execution order
	Done []string
	// Skipped lists views left alone, either because a dependency failed
	// or because they did not need work
	Skipped  []string
	Failures []*SQLExecutionError
	// Plan is set by Recreate
	Plan *Plan
	// Steps lists the statements a dry-run maintenance call would execute
	Steps   []Step
	DryRun  bool
	Elapsed time.Duration
}

// Runner executes view definitions against a database
type Runner struct {
	db   db.Database
	reg  *views.Registry
	opts Options
}

// New creates a runner. Zero Policy and Parallel values take their defaults.
func New(database db.Database, reg *views.Registry, opts Options) *Runner {
	if opts.Policy == "" {
		opts.Policy = FailFast
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	return &Runner{db: database, reg: reg, opts: opts}
}

// Plan returns the statements Recreate would execute, without comments
func (r *Runner) Plan() (*Plan, error) {
	return BuildPlan(r.reg, r.db.Dialect(), r.opts)
}

// Recreate drops every selected view in reverse dependency order and then
// creates them in dependency order
func (r *Runner) Recreate(ctx context.Context) (*Result, error) {
	start := time.Now()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	plan, err := r.Plan()
	if err != nil {
		return nil, err
	}
	if err := r.checkTables(ctx, plan); err != nil {
		return nil, err
	}
	if err := r.matchExistingKinds(ctx, plan); err != nil {
		return nil, err
	}

	result := &Result{Op: OpCreate, Plan: plan, DryRun: r.opts.DryRun}
	if r.opts.DryRun {
		result.Elapsed = time.Since(start)
		return result, nil
	}

	if err := r.addCommentSteps(ctx, plan); err != nil {
		return nil, err
	}

	transactional := r.opts.Transactional
	if transactional && !plan.Dialect.SupportsTransactionalDDL() {
		logging.Warn("dialect commits DDL implicitly, running without a transaction", "dialect", plan.Dialect)
		transactional = false
	}

	logging.Info("recreating views", "count", len(plan.Views), "dialect", plan.Dialect,
		"transactional", transactional, "policy", r.opts.Policy)

	t := newTracker()
	switch {
	case transactional:
		err = r.db.WithinTx(ctx, func(ctx context.Context, tx db.Execer) error {
			return r.runSequential(ctx, tx, plan, t, r.opts.Policy == BestEffort)
		})
	case r.opts.Parallel > 1:
		err = r.runLevels(ctx, plan, t)
	default:
		err = r.runSequential(ctx, r.db, plan, t, false)
	}

	t.fill(result)
	result.Elapsed = time.Since(start)
	if err != nil {
		if transactional {
			// rolled back
			result.Done = nil
		}
		return result, err
	}
	if len(result.Failures) > 0 {
		return result, &RecreateError{Failures: result.Failures}
	}

	logging.Info("views recreated", "count", len(result.Done), "skipped", len(result.Skipped),
		"elapsed", result.Elapsed.String())
	return result, nil
}

func (r *Runner) runSequential(ctx context.Context, ex db.Execer, plan *Plan, t *tracker, savepoints bool) error {
	for i := len(plan.Views) - 1; i >= 0; i-- {
		v := plan.Views[i]
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.runSteps(ctx, ex, v.Name(), []Step{v.Drop}, t, savepoints); err != nil {
			return err
		}
	}

	for _, v := range plan.Views {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.blocked(v) {
			continue
		}
		ok, err := r.runSteps(ctx, ex, v.Name(), v.Create, t, savepoints)
		if err != nil {
			return err
		}
		if ok {
			t.markDone(v.Name())
			logging.Debug("view created", "view", v.Name())
		}
	}
	return nil
}

// runLevels drops level by level in reverse, then creates level by level.
// Views of one level run concurrently on separate pooled connections.
func (r *Runner) runLevels(ctx context.Context, plan *Plan, t *tracker) error {
	for i := len(plan.Levels) - 1; i >= 0; i-- {
		err := r.runLevel(ctx, plan.Levels[i], func(v *ViewPlan) []Step { return []Step{v.Drop} }, t, false)
		if err != nil {
			return err
		}
	}
	for _, level := range plan.Levels {
		err := r.runLevel(ctx, level, func(v *ViewPlan) []Step { return v.Create }, t, true)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runLevel(ctx context.Context, level []*ViewPlan, steps func(*ViewPlan) []Step, t *tracker, create bool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallel)

	for _, v := range level {
		if create && t.blocked(v) {
			continue
		}
		g.Go(func() error {
			ok, err := r.runSteps(gctx, r.db, v.Name(), steps(v), t, false)
			if err != nil {
				return err
			}
			if ok && create {
				t.markDone(v.Name())
			}
			return nil
		})
	}
	return g.Wait()
}

// runSteps executes the steps of one view. Under BestEffort a failure is
// recorded and reported as ok == false with a nil error.
func (r *Runner) runSteps(ctx context.Context, ex db.Execer, view string, steps []Step, t *tracker, savepoint bool) (bool, error) {
	if len(steps) == 0 {
		return true, nil
	}
	if savepoint {
		if err := ex.Exec(ctx, "SAVEPOINT "+savepointName); err != nil {
			return false, &SQLExecutionError{View: view, Op: steps[0].Op, Statement: "SAVEPOINT " + savepointName, Err: err}
		}
	}

	for _, s := range steps {
		logging.Debug("executing statement", "view", view, "op", string(s.Op), "sql", s.Statement)
		if r.opts.DryRun {
			continue
		}
		err := ex.Exec(ctx, s.Statement)
		if err == nil {
			continue
		}

		execErr := &SQLExecutionError{View: view, Op: s.Op, Statement: s.Statement, Err: err}
		if r.opts.Policy != BestEffort {
			return false, execErr
		}
		logging.Error("statement failed", "view", view, "op", string(s.Op), "error", err.Error())
		t.fail(execErr)

		if savepoint {
			if err := ex.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); err != nil {
				return false, fmt.Errorf("failed to roll back to savepoint: %w", err)
			}
			if err := ex.Exec(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
				return false, fmt.Errorf("failed to release savepoint: %w", err)
			}
		}
		return false, nil
	}

	if savepoint {
		if err := ex.Exec(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
			return false, fmt.Errorf("failed to release savepoint: %w", err)
		}
	}
	return true, nil
}

// checkTables verifies that every external table a selected view reads exists
func (r *Runner) checkTables(ctx context.Context, plan *Plan) error {
	if !r.opts.CheckTables {
		return nil
	}
	checked := make(map[string]bool)
	for _, v := range plan.Views {
		for _, table := range v.Tables {
			if checked[table] {
				continue
			}
			exists, err := r.db.RelationExists(ctx, table)
			if err != nil {
				return err
			}
			if !exists {
				return &MissingTableError{View: v.Name(), Table: table}
			}
			checked[table] = true
		}
	}
	return nil
}

// matchExistingKinds rewrites the drop of every view whose existing
// relation is of the other kind. DROP ... IF EXISTS rejects a view that
// exists as the wrong object type.
func (r *Runner) matchExistingKinds(ctx context.Context, plan *Plan) error {
	if !plan.Dialect.SupportsMaterialized() || len(plan.Views) == 0 {
		return nil
	}

	existing, err := r.db.ExtractSchema(ctx, plan.Names())
	if err != nil {
		return fmt.Errorf("failed to read existing views: %w", err)
	}
	for _, v := range plan.Views {
		ev := existing.Find(v.Name())
		if ev == nil || ev.Materialized == v.Definition.Materialized {
			continue
		}
		def := v.Definition
		def.Materialized = ev.Materialized
		v.Drop.Statement = views.DropStatement(plan.Dialect, def, r.opts.Cascade)
		logging.Info("view changes kind", "view", v.Name(), "from", def.Kind(), "to", v.Definition.Kind())
	}
	return nil
}

// addCommentSteps appends a metadata comment to every view's create steps.
// Existing comments are read now, before the views are dropped.
func (r *Runner) addCommentSteps(ctx context.Context, plan *Plan) error {
	if !plan.Dialect.SupportsComments() || len(plan.Views) == 0 {
		return nil
	}

	now, err := r.db.Now(ctx)
	if err != nil {
		return err
	}
	for _, v := range plan.Views {
		step, err := r.commentStep(ctx, plan.Dialect, v.Definition, now)
		if err != nil {
			return err
		}
		v.Create = append(v.Create, step)
	}
	return nil
}

func (r *Runner) commentStep(ctx context.Context, d views.Dialect, def views.Definition, now time.Time) (Step, error) {
	existing, err := r.db.Comment(ctx, def.Name)
	if err != nil {
		return Step{}, err
	}
	comment := StampComment(existing, views.Checksum(d, def), now)
	return Step{View: def.Name, Op: OpComment, Statement: views.CommentStatement(d, def, comment)}, nil
}

func (r *Runner) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.Timeout > 0 {
		return context.WithTimeout(ctx, r.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

// tracker collects per-view outcomes; safe for concurrent use
type tracker struct {
	mu       sync.Mutex
	done     []string
	skipped  []string
	failures []*SQLExecutionError
	failed   map[string]bool
	skip     map[string]bool
}

func newTracker() *tracker {
	return &tracker{
		failed: make(map[string]bool),
		skip:   make(map[string]bool),
	}
}

func (t *tracker) markDone(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = append(t.done, name)
}

func (t *tracker) markSkipped(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.skipped = append(t.skipped, name)
	t.skip[name] = true
}

func (t *tracker) fail(err *SQLExecutionError) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = append(t.failures, err)
	t.failed[err.View] = true
}

// blocked marks v skipped when its own drop failed or any dependency
// failed or was skipped
func (t *tracker) blocked(v *ViewPlan) bool {
	t.mu.Lock()
	var cause string
	if t.failed[v.Name()] {
		cause = v.Name()
	}
	for _, dep := range v.Deps {
		if cause == "" && (t.failed[dep] || t.skip[dep]) {
			cause = dep
		}
	}
	t.mu.Unlock()

	if cause == "" {
		return false
	}
	t.markSkipped(v.Name())
	logging.Warn("skipping view", "view", v.Name(), "because", cause)
	return true
}

func (t *tracker) fill(result *Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	result.Done = append([]string(nil), t.done...)
	result.Skipped = append([]string(nil), t.skipped...)
	result.Failures = append([]*SQLExecutionError(nil), t.failures...)
}

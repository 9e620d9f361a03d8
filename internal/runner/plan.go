package runner

import (
	"github.com/joshbrooks/viewedmodels/internal/views"
)

// Op names the kind of statement being executed
type Op string

const (
	OpDrop       Op = "drop"
	OpCreate     Op = "create"
	OpIndex      Op = "index"
	OpComment    Op = "comment"
	OpRefresh    Op = "refresh"
	OpVacuum     Op = "vacuum"
	OpStatistics Op = "statistics"
)

// Step is one statement for one view
type Step struct {
	View      string
	Op        Op
	Statement string
}

// ViewPlan holds the statements that recreate a single view
type ViewPlan struct {
	Definition views.Definition
	Drop       Step
	// Create holds the CREATE statement followed by index and comment statements
	Create []Step
	// Deps are the registered views this view depends on
	Deps []string
	// Tables are the external tables this view reads
	Tables []string
}

// Name returns the view name
func (v *ViewPlan) Name() string {
	return v.Definition.Name
}

// Plan is the ordered set of statements of a recreate
type Plan struct {
	Dialect views.Dialect
	// Views are in creation order
	Views []*ViewPlan
	// Levels group Views so that a view only depends on earlier levels
	Levels [][]*ViewPlan
}

// Steps returns every statement in execution order: drops in reverse
// creation order, then creates in creation order
func (p *Plan) Steps() []Step {
	var steps []Step
	for i := len(p.Views) - 1; i >= 0; i-- {
		steps = append(steps, p.Views[i].Drop)
	}
	for _, v := range p.Views {
		steps = append(steps, v.Create...)
	}
	return steps
}

// Names returns the view names in creation order
func (p *Plan) Names() []string {
	names := make([]string, len(p.Views))
	for i, v := range p.Views {
		names[i] = v.Name()
	}
	return names
}

// BuildPlan orders the registry and renders the statements of a recreate.
// Cycles and unresolved references are reported before anything is built.
func BuildPlan(reg *views.Registry, d views.Dialect, opts Options) (*Plan, error) {
	ordered, err := reg.Sort(opts.Apps)
	if err != nil {
		return nil, err
	}
	levels, err := reg.Levels(opts.Apps)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Dialect: d}
	byName := make(map[string]*ViewPlan, len(ordered))
	for _, def := range ordered {
		if err := views.CheckSupported(d, def); err != nil {
			return nil, err
		}

		v := &ViewPlan{
			Definition: def,
			Drop:       Step{View: def.Name, Op: OpDrop, Statement: views.DropStatement(d, def, opts.Cascade)},
			Create:     []Step{{View: def.Name, Op: OpCreate, Statement: views.CreateStatement(d, def)}},
		}
		for _, stmt := range views.IndexStatements(d, def) {
			v.Create = append(v.Create, Step{View: def.Name, Op: OpIndex, Statement: stmt})
		}
		for _, ref := range def.Dependencies {
			if ref.External {
				v.Tables = append(v.Tables, ref.Name)
			} else {
				v.Deps = append(v.Deps, ref.Name)
			}
		}

		plan.Views = append(plan.Views, v)
		byName[def.Name] = v
	}

	for _, level := range levels {
		l := make([]*ViewPlan, 0, len(level))
		for _, def := range level {
			l = append(l, byName[def.Name])
		}
		plan.Levels = append(plan.Levels, l)
	}

	return plan, nil
}

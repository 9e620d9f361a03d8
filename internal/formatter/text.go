package formatter

import (
	"fmt"
	"io"

	"github.com/joshbrooks/viewedmodels/internal/runner"
)

// TextFormatter writes statements as a SQL script
type TextFormatter struct {
	writer io.Writer
	// Transaction wraps the script in BEGIN/COMMIT
	Transaction bool
}

// NewTextFormatter creates a new SQL script formatter
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// FormatPlan writes every statement of a recreate plan in execution order
func (f *TextFormatter) FormatPlan(plan *runner.Plan) error {
	_, _ = fmt.Fprintf(f.writer, "-- %d view(s), dialect %s\n", len(plan.Views), plan.Dialect)
	return f.Format(plan.Steps())
}

// Format writes steps, each preceded by a comment naming its view
func (f *TextFormatter) Format(steps []runner.Step) error {
	if f.Transaction {
		if _, err := fmt.Fprintln(f.writer, "BEGIN;"); err != nil {
			return err
		}
	}

	var section runner.Op
	for _, step := range steps {
		if step.Op != section && (step.Op == runner.OpDrop || step.Op == runner.OpCreate) {
			section = step.Op
			_, _ = fmt.Fprintln(f.writer)
		}
		_, _ = fmt.Fprintf(f.writer, "-- %s %s\n", step.Op, step.View)
		if _, err := fmt.Fprintf(f.writer, "%s;\n", step.Statement); err != nil {
			return err
		}
	}

	if f.Transaction {
		if _, err := fmt.Fprintln(f.writer, "COMMIT;"); err != nil {
			return err
		}
	}
	return nil
}

package formatter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joshbrooks/viewedmodels/internal/runner"
	"github.com/joshbrooks/viewedmodels/internal/views"
)

const (
	formatMarkdown = "markdown"
	formatSQL      = "sql"
)

// MultiFileFormatter writes one file per view into a directory
type MultiFileFormatter struct {
	OutputDir    string
	OutputFormat string // "sql" or "markdown"
}

// NewMultiFileFormatter creates a new multi-file formatter
func NewMultiFileFormatter(outputDir, format string) *MultiFileFormatter {
	return &MultiFileFormatter{
		OutputDir:    outputDir,
		OutputFormat: format,
	}
}

// Format writes an overview file and one file per view of the plan
func (f *MultiFileFormatter) Format(plan *runner.Plan) error {
	if f.OutputFormat != formatMarkdown && f.OutputFormat != formatSQL {
		return fmt.Errorf("unsupported output format: %s", f.OutputFormat)
	}

	// Create output directory if it doesn't exist
	if err := os.MkdirAll(f.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := f.writeOverview(plan); err != nil {
		return fmt.Errorf("failed to write overview: %w", err)
	}

	defs := make([]views.Definition, len(plan.Views))
	for i, v := range plan.Views {
		defs[i] = v.Definition
	}
	dependents := Dependents(defs)

	for i, v := range plan.Views {
		if err := f.writeViewFile(i, v, plan.Dialect, dependents[v.Name()]); err != nil {
			return fmt.Errorf("failed to write view file for %s: %w", v.Name(), err)
		}
	}

	return nil
}

// FileName returns the file a view is written to. SQL files are numbered
// in creation order so that running them sorted by name recreates the views.
func (f *MultiFileFormatter) FileName(position int, name string) string {
	if f.OutputFormat == formatSQL {
		return fmt.Sprintf("%03d_%s.sql", position+1, name)
	}
	return name + ".md"
}

// writeOverview writes the overview file
func (f *MultiFileFormatter) writeOverview(plan *runner.Plan) error {
	ext := ".md"
	if f.OutputFormat == formatSQL {
		ext = ".txt"
	}
	file, err := os.Create(filepath.Join(f.OutputDir, "_overview"+ext))
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if f.OutputFormat == formatMarkdown {
		_, _ = fmt.Fprintf(file, "# Views Overview\n\n")
		_, _ = fmt.Fprintf(file, "Each view has a corresponding file: `<view_name>.md`\n\n")
		_, _ = fmt.Fprintf(file, "## Views\n\n")
	} else {
		_, _ = fmt.Fprintf(file, "VIEWS OVERVIEW\n")
		_, _ = fmt.Fprintf(file, "Files are numbered in creation order: NNN_<view_name>.sql\n\n")
	}

	// Sort views alphabetically
	sorted := make([]*runner.ViewPlan, len(plan.Views))
	copy(sorted, plan.Views)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name() < sorted[j].Name()
	})

	for _, v := range sorted {
		line := v.Name()
		if f.OutputFormat == formatMarkdown {
			line = "- **" + line + "**"
		}
		if v.Definition.Materialized {
			line += " [materialized]"
		}
		if len(v.Deps) > 0 {
			line += fmt.Sprintf(" (depends on: %s)", strings.Join(v.Deps, ", "))
		}
		_, _ = fmt.Fprintln(file, line)
	}

	return nil
}

// writeViewFile writes a single view to its own file
func (f *MultiFileFormatter) writeViewFile(position int, v *runner.ViewPlan, d views.Dialect, dependents []string) error {
	file, err := os.Create(filepath.Join(f.OutputDir, f.FileName(position, v.Name())))
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if f.OutputFormat == formatMarkdown {
		return NewMarkdownFormatter(file, d).FormatView(v.Definition, dependents)
	}

	steps := append([]runner.Step{v.Drop}, v.Create...)
	return NewTextFormatter(file).Format(steps)
}

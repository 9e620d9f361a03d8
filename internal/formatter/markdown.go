package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/joshbrooks/viewedmodels/internal/views"
)

// MarkdownFormatter documents view definitions as markdown
type MarkdownFormatter struct {
	writer  io.Writer
	dialect views.Dialect
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter(w io.Writer, d views.Dialect) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w, dialect: d}
}

// Format writes all definitions, in the order given
func (f *MarkdownFormatter) Format(defs []views.Definition) error {
	_, _ = fmt.Fprintln(f.writer, "# Views")
	_, _ = fmt.Fprintln(f.writer)

	dependents := Dependents(defs)
	for _, def := range defs {
		if err := f.FormatView(def, dependents[def.Name]); err != nil {
			return err
		}
	}
	return nil
}

// FormatView writes a single definition (exported for use by multifile formatter)
func (f *MarkdownFormatter) FormatView(def views.Definition, dependents []string) error {
	_, _ = fmt.Fprintf(f.writer, "## %s\n\n", def.Name)

	meta := []string{"**Kind:** " + strings.ToLower(def.Kind())}
	if def.App != "" {
		meta = append(meta, "**App:** "+def.App)
	}
	if def.Concurrently {
		meta = append(meta, "**Refresh:** concurrently")
	}
	_, _ = fmt.Fprintln(f.writer, strings.Join(meta, " | "))
	_, _ = fmt.Fprintln(f.writer)

	if len(def.Fields) > 0 {
		_, _ = fmt.Fprintln(f.writer, "### Fields")
		_, _ = fmt.Fprintln(f.writer)
		for _, field := range def.Fields {
			_, _ = fmt.Fprintf(f.writer, "- **%s:** %s\n", field.Name, field.Type)
		}
		_, _ = fmt.Fprintln(f.writer)
	}

	f.formatIndexes(def.Indexes)
	f.formatDependencies(def.Dependencies, dependents)

	_, _ = fmt.Fprintln(f.writer, "### SQL")
	_, _ = fmt.Fprintln(f.writer)
	_, _ = fmt.Fprintln(f.writer, "```sql")
	_, _ = fmt.Fprintln(f.writer, strings.TrimSpace(views.RenderBody(f.dialect, def)))
	_, err := fmt.Fprintf(f.writer, "```\n\n")
	return err
}

func (f *MarkdownFormatter) formatIndexes(indexes []views.Index) {
	if len(indexes) == 0 {
		return
	}
	_, _ = fmt.Fprintln(f.writer, "### Indexes")
	_, _ = fmt.Fprintln(f.writer)
	for _, idx := range indexes {
		unique := ""
		if idx.Unique {
			unique = " UNIQUE"
		}
		_, _ = fmt.Fprintf(f.writer, "- %s (%s)%s\n", idx.Name, strings.Join(idx.Columns, ", "), unique)
	}
	_, _ = fmt.Fprintln(f.writer)
}

func (f *MarkdownFormatter) formatDependencies(refs []views.Reference, dependents []string) {
	if len(refs) > 0 {
		_, _ = fmt.Fprintln(f.writer, "### Depends on")
		_, _ = fmt.Fprintln(f.writer)
		for _, ref := range refs {
			if ref.External {
				_, _ = fmt.Fprintf(f.writer, "- %s (table)\n", ref.Name)
			} else {
				_, _ = fmt.Fprintf(f.writer, "- %s\n", ref.Name)
			}
		}
		_, _ = fmt.Fprintln(f.writer)
	}

	if len(dependents) > 0 {
		_, _ = fmt.Fprintln(f.writer, "### Used by")
		_, _ = fmt.Fprintln(f.writer)
		for _, name := range dependents {
			_, _ = fmt.Fprintf(f.writer, "- %s\n", name)
		}
		_, _ = fmt.Fprintln(f.writer)
	}
}

// Dependents maps each view name to the views that depend on it
func Dependents(defs []views.Definition) map[string][]string {
	out := make(map[string][]string)
	for _, def := range defs {
		for _, ref := range def.Dependencies {
			if !ref.External {
				out[ref.Name] = append(out[ref.Name], def.Name)
			}
		}
	}
	return out
}

package schema

import "strings"

// Schema represents the views present in a database schema
type Schema struct {
	Name  string
	Views []View
}

// View represents a view or materialized view found in the database
type View struct {
	Name         string
	Materialized bool
	Columns      []Column
	Indexes      []Index
	Comment      string
}

// Column represents a view column
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// Index represents an index on a materialized view
type Index struct {
	Name     string
	Columns  []string
	IsUnique bool
}

// Find returns the view called name. A schema-qualified name matches
// only when its schema part equals the schema's name.
func (s *Schema) Find(name string) *View {
	if schemaName, rel, ok := strings.Cut(name, "."); ok {
		if s.Name != "" && schemaName != s.Name {
			return nil
		}
		name = rel
	}
	for i := range s.Views {
		if s.Views[i].Name == name {
			return &s.Views[i]
		}
	}
	return nil
}

// ColumnNames returns the view's column names in order
func (v *View) ColumnNames() []string {
	names := make([]string, len(v.Columns))
	for i, c := range v.Columns {
		names[i] = c.Name
	}
	return names
}

package views

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// FieldType is the semantic scalar type of a view column
type FieldType string

const (
	FieldInteger     FieldType = "integer"
	FieldBigint      FieldType = "bigint"
	FieldSmallint    FieldType = "smallint"
	FieldNumeric     FieldType = "numeric"
	FieldReal        FieldType = "real"
	FieldDouble      FieldType = "double"
	FieldText        FieldType = "text"
	FieldVarchar     FieldType = "varchar"
	FieldBoolean     FieldType = "boolean"
	FieldDate        FieldType = "date"
	FieldTimestamp   FieldType = "timestamp"
	FieldTimestampTZ FieldType = "timestamptz"
	FieldUUID        FieldType = "uuid"
	FieldJSON        FieldType = "json"
	FieldJSONB       FieldType = "jsonb"
)

var knownFieldTypes = map[FieldType]bool{
	FieldInteger: true, FieldBigint: true, FieldSmallint: true,
	FieldNumeric: true, FieldReal: true, FieldDouble: true,
	FieldText: true, FieldVarchar: true, FieldBoolean: true,
	FieldDate: true, FieldTimestamp: true, FieldTimestampTZ: true,
	FieldUUID: true, FieldJSON: true, FieldJSONB: true,
}

// Valid reports whether t is a known field type
func (t FieldType) Valid() bool {
	return knownFieldTypes[t]
}

// Field is a declared view column
type Field struct {
	Name string
	Type FieldType
}

// Fields is an ordered column name to type mapping.
// In YAML it is written as a mapping; declaration order is kept.
type Fields []Field

// UnmarshalYAML decodes a mapping node preserving key order
func (f *Fields) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: fields must be a mapping of column name to type", node.Line)
	}
	out := make(Fields, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: type of field %q must be a scalar", val.Line, key.Value)
		}
		out = append(out, Field{Name: key.Value, Type: FieldType(strings.ToLower(val.Value))})
	}
	*f = out
	return nil
}

// Names returns the column names in declaration order
func (f Fields) Names() []string {
	names := make([]string, len(f))
	for i, field := range f {
		names[i] = field.Name
	}
	return names
}

// Reference points at a relation a view selects from.
// A non-external reference must name another registered definition;
// an external one names a physical table and never constrains ordering.
type Reference struct {
	Name     string
	External bool
}

// ViewRef returns a reference to a registered view
func ViewRef(name string) Reference {
	return Reference{Name: name}
}

// TableRef returns a reference to an external table
func TableRef(name string) Reference {
	return Reference{Name: name, External: true}
}

func (r Reference) String() string {
	if r.External {
		return "table:" + r.Name
	}
	return r.Name
}

// UnmarshalYAML accepts either a plain name (a view) or a
// single-key mapping {view: name} / {table: name}
func (r *Reference) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*r = ViewRef(node.Value)
		return nil
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: dependency mapping must have exactly one key (view or table)", node.Line)
		}
		key, val := node.Content[0].Value, node.Content[1].Value
		switch key {
		case "view":
			*r = ViewRef(val)
		case "table":
			*r = TableRef(val)
		default:
			return fmt.Errorf("line %d: unknown dependency kind %q (must be view or table)", node.Line, key)
		}
		return nil
	default:
		return fmt.Errorf("line %d: invalid dependency", node.Line)
	}
}

// Index is an index created on a materialized view after creation
type Index struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique"`
}

// Definition declares one view
type Definition struct {
	Name         string      `yaml:"name"`
	App          string      `yaml:"app"`
	Materialized bool        `yaml:"materialized"`
	Concurrently bool        `yaml:"concurrently"`
	Body         string      `yaml:"sql"`
	Dependencies []Reference `yaml:"dependencies"`
	Fields       Fields      `yaml:"fields"`
	Indexes      []Index     `yaml:"indexes"`
}

// Kind returns the SQL object type of the definition
func (d Definition) Kind() string {
	if d.Materialized {
		return "MATERIALIZED VIEW"
	}
	return "VIEW"
}

// HasUniqueIndex reports whether a unique index is declared
func (d Definition) HasUniqueIndex() bool {
	for _, idx := range d.Indexes {
		if idx.Unique {
			return true
		}
	}
	return false
}

// Validate checks fields, indexes and refresh options of a definition
func (d Definition) Validate() error {
	seen := make(map[string]bool)
	for _, f := range d.Fields {
		if f.Name == "" {
			return fmt.Errorf("field name is required")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field: %s", f.Name)
		}
		seen[f.Name] = true
		if !f.Type.Valid() {
			return fmt.Errorf("field %s: unknown type %q", f.Name, f.Type)
		}
	}

	if len(d.Indexes) > 0 && !d.Materialized {
		return fmt.Errorf("indexes can only be declared on materialized views")
	}
	for j, idx := range d.Indexes {
		if idx.Name == "" {
			return fmt.Errorf("index %d: name is required", j)
		}
		if len(idx.Columns) == 0 {
			return fmt.Errorf("index %s: at least one column is required", idx.Name)
		}
	}

	if d.Concurrently {
		if !d.Materialized {
			return fmt.Errorf("concurrently requires materialized: true")
		}
		if !d.HasUniqueIndex() {
			return fmt.Errorf("concurrently requires a unique index")
		}
	}

	return nil
}

func (d Definition) clone() Definition {
	c := d
	c.Dependencies = append([]Reference(nil), d.Dependencies...)
	c.Fields = append(Fields(nil), d.Fields...)
	c.Indexes = make([]Index, len(d.Indexes))
	for i, idx := range d.Indexes {
		idx.Columns = append([]string(nil), idx.Columns...)
		c.Indexes[i] = idx
	}
	if d.Indexes == nil {
		c.Indexes = nil
	}
	return c
}

package definitions

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joshbrooks/viewedmodels/internal/views"
)

// File is the on-disk layout of a definitions file
type File struct {
	Schema string  `yaml:"schema"`
	Views  []Entry `yaml:"views"`
}

// Entry is one view as written in the file. The body comes either
// inline (sql) or from a file relative to the definitions file (sql_file).
type Entry struct {
	views.Definition `yaml:",inline"`
	SQLFile          string `yaml:"sql_file"`
}

// Loaded is the result of loading a definitions file
type Loaded struct {
	Path     string
	Schema   string
	Registry *views.Registry
}

// LoadDefinitions reads, validates and registers view definitions from a YAML file
func LoadDefinitions(path string) (*Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported file format: %s (expected .yaml or .yml)", ext)
	}

	file, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Pull sql_file bodies in before validation
	baseDir := filepath.Dir(path)
	for i := range file.Views {
		entry := &file.Views[i]
		if entry.SQLFile == "" || entry.Body != "" {
			continue
		}
		sqlPath := entry.SQLFile
		if !filepath.IsAbs(sqlPath) {
			sqlPath = filepath.Join(baseDir, sqlPath)
		}
		body, err := os.ReadFile(sqlPath)
		if err != nil {
			return nil, fmt.Errorf("view %s: failed to read sql_file: %w", entry.Name, err)
		}
		entry.Body = string(body)
		entry.SQLFile = ""
	}

	if err := ValidateFile(file); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	registry := views.NewRegistry()
	for _, entry := range file.Views {
		if err := registry.Register(entry.Definition); err != nil {
			return nil, err
		}
	}

	return &Loaded{Path: path, Schema: file.Schema, Registry: registry}, nil
}

// Parse decodes a definitions document. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &file, nil
}

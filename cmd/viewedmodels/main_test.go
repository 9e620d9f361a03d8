package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joshbrooks/viewedmodels/internal/views"
)

func TestParseList(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"aims", []string{"aims"}},
		{"aims, search ,", []string{"aims", "search"}},
		{" , ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseList(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("parseList(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("parseList(%q) = %v, want %v", tt.input, got, tt.want)
				}
			}
		})
	}
}

func TestDatabaseURLFromFlags(t *testing.T) {
	tests := []struct {
		name    string
		pg      string
		my      string
		sqlite  string
		want    string
		wantErr bool
	}{
		{name: "none", want: ""},
		{name: "postgres", pg: "postgres://localhost/db", want: "postgres://localhost/db"},
		{name: "mysql without scheme", my: "root@tcp(localhost:3306)/db", want: "mysql://root@tcp(localhost:3306)/db"},
		{name: "mysql with scheme", my: "mysql://root@tcp(localhost:3306)/db", want: "mysql://root@tcp(localhost:3306)/db"},
		{name: "sqlite", sqlite: "test.db", want: "sqlite://test.db"},
		{name: "two databases", pg: "postgres://localhost/db", sqlite: "test.db", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := databaseURLFromFlags(tt.pg, tt.my, tt.sqlite)
			if (err != nil) != tt.wantErr {
				t.Fatalf("databaseURLFromFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("databaseURLFromFlags() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveDialect(t *testing.T) {
	tests := []struct {
		name    string
		dialect string
		url     string
		want    views.Dialect
		wantErr bool
	}{
		{name: "default", want: views.Postgres},
		{name: "from mysql url", url: "mysql://root@tcp(localhost)/db", want: views.MySQL},
		{name: "from sqlite url", url: "sqlite://test.db", want: views.SQLite},
		{name: "flag wins", dialect: "SQLite", url: "postgres://localhost/db", want: views.SQLite},
		{name: "unknown", dialect: "oracle", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveDialect(tt.dialect, tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveDialect() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("resolveDialect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlanCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "views.yaml")
	content := `
views:
  - name: b
    sql: SELECT * FROM {a}
    dependencies: [a]
  - name: a
    sql: SELECT 1 AS id
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write definitions: %v", err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"plan", "-f", path, "--dialect", "sqlite", "--transactional=false"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	got := out.String()
	if !strings.HasPrefix(got, "-- 2 view(s), dialect sqlite") {
		t.Errorf("Unexpected header:\n%s", got)
	}
	if strings.Contains(got, "BEGIN;") {
		t.Errorf("Expected no transaction wrapper:\n%s", got)
	}

	order := []string{"-- drop b", "-- drop a", "-- create a", "-- create b"}
	last := -1
	for _, marker := range order {
		idx := strings.Index(got, marker)
		if idx < 0 {
			t.Fatalf("Missing %q in output:\n%s", marker, got)
		}
		if idx < last {
			t.Errorf("%q out of order in output:\n%s", marker, got)
		}
		last = idx
	}
}

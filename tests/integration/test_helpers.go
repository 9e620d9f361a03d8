//go:build integration
// +build integration

package integration

import (
	"context"
	"testing"

	"github.com/joshbrooks/viewedmodels"
	"github.com/joshbrooks/viewedmodels/internal/schema"
)

// scenarioRegistry registers three views where b reads a and c reads b,
// in an order that differs from the dependency order
func scenarioRegistry(t *testing.T) *viewedmodels.Registry {
	t.Helper()

	return mustRegistry(t,
		viewedmodels.Definition{
			Name:         "it_c",
			Body:         "SELECT id, total * 2 AS doubled FROM {it_b}",
			Dependencies: []viewedmodels.Reference{viewedmodels.ViewRef("it_b")},
		},
		viewedmodels.Definition{
			Name:         "it_a",
			Body:         "SELECT id, amount FROM {it_orders}",
			Dependencies: []viewedmodels.Reference{viewedmodels.TableRef("it_orders")},
		},
		viewedmodels.Definition{
			Name:         "it_b",
			Body:         "SELECT id, sum(amount) AS total FROM {it_a} GROUP BY id",
			Dependencies: []viewedmodels.Reference{viewedmodels.ViewRef("it_a")},
		},
	)
}

// mustRegistry registers defs in order, failing the test on error
func mustRegistry(t *testing.T, defs ...viewedmodels.Definition) *viewedmodels.Registry {
	t.Helper()

	reg := viewedmodels.NewRegistry()
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			t.Fatalf("Failed to register %s: %v", def.Name, err)
		}
	}
	return reg
}

// execAll runs setup statements outside any transaction
func execAll(t *testing.T, database viewedmodels.Database, stmts ...string) {
	t.Helper()

	ctx := context.Background()
	for _, stmt := range stmts {
		if err := database.Exec(ctx, stmt); err != nil {
			t.Fatalf("Failed to execute %q: %v", stmt, err)
		}
	}
}

// extract reads the named views back from the database
func extract(t *testing.T, database viewedmodels.Database, names []string) *schema.Schema {
	t.Helper()

	s, err := database.ExtractSchema(context.Background(), names)
	if err != nil {
		t.Fatalf("Failed to extract schema: %v", err)
	}
	return s
}

// verifyViewsExist checks that every expected view is present
func verifyViewsExist(t *testing.T, s *schema.Schema, expected []string) {
	t.Helper()

	for _, name := range expected {
		if s.Find(name) == nil {
			t.Errorf("Expected view %s not found in schema", name)
		}
	}
}

// verifyColumns checks that expected columns exist in a view
func verifyColumns(t *testing.T, view *schema.View, expectedColumns []string) {
	t.Helper()

	columnMap := make(map[string]bool)
	for _, col := range view.Columns {
		columnMap[col.Name] = true
	}

	for _, colName := range expectedColumns {
		if !columnMap[colName] {
			t.Errorf("Expected column %s not found in %s view", colName, view.Name)
		}
	}
}

// verifyOrder checks that got lists the names in the expected order
func verifyOrder(t *testing.T, got, expected []string) {
	t.Helper()

	if len(got) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("Expected %v, got %v", expected, got)
		}
	}
}

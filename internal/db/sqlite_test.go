package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/joshbrooks/viewedmodels/internal/views"
)

func newTestSQLite(t *testing.T) *SQLiteClient {
	t.Helper()
	client, err := NewSQLiteClient(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open SQLite: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if err := client.Exec(context.Background(), `CREATE TABLE orders (id INTEGER PRIMARY KEY, amount REAL NOT NULL)`); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	return client
}

func TestSQLiteClient_WithinTx(t *testing.T) {
	ctx := context.Background()
	client := newTestSQLite(t)
	catalog := NewSQLiteCatalog(client)

	if client.Dialect() != views.SQLite {
		t.Errorf("Expected sqlite dialect, got %s", client.Dialect())
	}

	boom := errors.New("boom")
	err := client.WithinTx(ctx, func(ctx context.Context, tx Execer) error {
		if err := tx.Exec(ctx, `CREATE VIEW v_orders AS SELECT id FROM orders`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	exists, err := catalog.RelationExists(ctx, "v_orders")
	if err != nil {
		t.Fatalf("RelationExists failed: %v", err)
	}
	if exists {
		t.Error("View should have been rolled back")
	}

	err = client.WithinTx(ctx, func(ctx context.Context, tx Execer) error {
		return tx.Exec(ctx, `CREATE VIEW v_orders AS SELECT id FROM orders`)
	})
	if err != nil {
		t.Fatalf("WithinTx failed: %v", err)
	}

	exists, err = catalog.RelationExists(ctx, "v_orders")
	if err != nil {
		t.Fatalf("RelationExists failed: %v", err)
	}
	if !exists {
		t.Error("View should exist after commit")
	}
}

func TestSQLiteCatalog_ExtractSchema(t *testing.T) {
	ctx := context.Background()
	client := newTestSQLite(t)
	catalog := NewSQLiteCatalog(client)

	for _, stmt := range []string{
		`CREATE VIEW "big_orders" AS SELECT id, amount FROM orders WHERE amount > 100`,
		`CREATE VIEW "order_ids" AS SELECT id FROM orders`,
	} {
		if err := client.Exec(ctx, stmt); err != nil {
			t.Fatalf("Failed to create view: %v", err)
		}
	}

	s, err := catalog.ExtractSchema(ctx, nil)
	if err != nil {
		t.Fatalf("ExtractSchema failed: %v", err)
	}
	if len(s.Views) != 2 {
		t.Fatalf("Expected 2 views, got %d", len(s.Views))
	}

	big := s.Find("big_orders")
	if big == nil {
		t.Fatal("big_orders not found")
	}
	names := big.ColumnNames()
	if len(names) != 2 || names[0] != "id" || names[1] != "amount" {
		t.Errorf("Unexpected columns: %v", names)
	}

	s, err = catalog.ExtractSchema(ctx, []string{"order_ids", "missing"})
	if err != nil {
		t.Fatalf("ExtractSchema failed: %v", err)
	}
	if len(s.Views) != 1 || s.Views[0].Name != "order_ids" {
		t.Errorf("Expected only order_ids, got %+v", s.Views)
	}
}

func TestSQLiteCatalog_RelationExists(t *testing.T) {
	ctx := context.Background()
	catalog := NewSQLiteCatalog(newTestSQLite(t))

	tests := []struct {
		name string
		want bool
	}{
		{"orders", true},
		{"main.orders", true},
		{"nope", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := catalog.RelationExists(ctx, tt.name)
			if err != nil {
				t.Fatalf("RelationExists failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("RelationExists(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestSQLiteCatalog_Now(t *testing.T) {
	now, err := NewSQLiteCatalog(newTestSQLite(t)).Now(context.Background())
	if err != nil {
		t.Fatalf("Now failed: %v", err)
	}
	if now.IsZero() {
		t.Error("Expected a non-zero time")
	}
}

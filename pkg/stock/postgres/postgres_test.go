package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"backoffice/pkg/stock"
)

func openTestDB(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := New(db)
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.Exec("DELETE FROM ingredients WHERE id LIKE 'pgtest-%'"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	return repo
}

func TestRepository(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()

	in := stock.Ingredient{ID: "pgtest-tomato", CompanyID: 1, Name: "Tomato", OnHand: decimal.NewFromInt(10)}
	if err := repo.Create(ctx, in); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, in); !errors.Is(err, stock.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	applied, err := repo.ConditionalDecrement(ctx, in.ID, decimal.RequireFromString("3.5"))
	if err != nil || !applied {
		t.Fatalf("decrement: applied=%v err=%v", applied, err)
	}
	applied, err = repo.ConditionalDecrement(ctx, in.ID, decimal.NewFromInt(7))
	if err != nil || applied {
		t.Fatalf("expected decrement beyond stock to be refused: applied=%v err=%v", applied, err)
	}
	if err := repo.Increment(ctx, in.ID, decimal.RequireFromString("0.5")); err != nil {
		t.Fatalf("increment: %v", err)
	}
	q, err := repo.ReadQuantity(ctx, in.ID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !q.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("expected 7, got %s", q)
	}

	if q, err := repo.ReadQuantity(ctx, "pgtest-ghost"); err != nil || !q.IsZero() {
		t.Fatalf("expected zero for unknown ingredient, got %s err=%v", q, err)
	}

	in.Name = "Cherry tomato"
	in.OnHand = decimal.NewFromInt(100)
	if err := repo.Update(ctx, in); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := repo.Get(ctx, in.ID)
	if err != nil || got.Name != "Cherry tomato" || !got.OnHand.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("expected rename without stock change, got %+v err=%v", got, err)
	}

	if err := repo.Delete(ctx, in.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, in.ID); !errors.Is(err, stock.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCounts(t *testing.T) {
	repo := openTestDB(t)
	counts := NewCounts(repo.db)
	ctx := context.Background()
	if err := counts.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	const company = 990002
	t.Cleanup(func() { repo.db.Exec("DELETE FROM stock_counts WHERE company_id=$1", company) })

	first := stock.Count{CompanyID: company, IngredientID: "pgtest-flour", Counted: decimal.NewFromInt(4), Previous: decimal.NewFromInt(5), CountedBy: "ayse", CountedAt: time.Now().UTC().Add(-time.Hour)}
	second := stock.Count{CompanyID: company, IngredientID: "pgtest-sugar", Counted: decimal.NewFromInt(1), CountedAt: time.Now().UTC()}
	for _, c := range []*stock.Count{&first, &second} {
		if err := counts.AddCount(ctx, c); err != nil {
			t.Fatalf("add: %v", err)
		}
		if c.ID == 0 {
			t.Fatal("expected id to be assigned")
		}
	}
	all, err := counts.ListCounts(ctx, company, "")
	if err != nil || len(all) != 2 || all[0].ID != second.ID {
		t.Fatalf("list: %+v err=%v", all, err)
	}
	flour, err := counts.ListCounts(ctx, company, "pgtest-flour")
	if err != nil || len(flour) != 1 || flour[0].CountedBy != "ayse" || !flour[0].Previous.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("filtered list: %+v err=%v", flour, err)
	}
}

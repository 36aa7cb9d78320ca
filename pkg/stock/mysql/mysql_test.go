package mysql

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"backoffice/pkg/stock"
)

func TestRepository(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set, skipping integration test")
	}
	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	repo := New(db)
	ctx := context.Background()
	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo.Delete(ctx, "mytest-cheese")

	in := stock.Ingredient{ID: "mytest-cheese", CompanyID: 1, Name: "Cheese", OnHand: decimal.NewFromInt(1)}
	if err := repo.Create(ctx, in); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, in); !errors.Is(err, stock.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	applied, err := repo.ConditionalDecrement(ctx, in.ID, decimal.NewFromInt(5))
	if err != nil || applied {
		t.Fatalf("expected refused decrement, applied=%v err=%v", applied, err)
	}
	applied, err = repo.ConditionalDecrement(ctx, in.ID, decimal.RequireFromString("0.25"))
	if err != nil || !applied {
		t.Fatalf("expected applied decrement, applied=%v err=%v", applied, err)
	}
	q, err := repo.ReadQuantity(ctx, in.ID)
	if err != nil || !q.Equal(decimal.RequireFromString("0.75")) {
		t.Fatalf("expected 0.75, got %s err=%v", q, err)
	}
	if err := repo.Delete(ctx, in.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

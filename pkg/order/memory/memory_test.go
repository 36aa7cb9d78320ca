package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"backoffice/pkg/order"
)

func TestRepository(t *testing.T) {
	ctx := context.Background()
	repo := New()
	o := order.Order{ID: "1", CompanyID: 1, Lines: []order.Line{{MenuItemID: "latte", Name: "Latte", Price: decimal.NewFromInt(45), Quantity: 2}}}
	if err := repo.Create(ctx, &o); err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.ReceiptNo != 1 {
		t.Fatalf("expected receipt 1, got %d", o.ReceiptNo)
	}
	got, err := repo.Get(ctx, "1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Lines[0].Name != "Latte" {
		t.Fatalf("expected Latte, got %s", got.Lines[0].Name)
	}
	o.Status = order.StatusPaid
	if err := repo.Update(ctx, o); err != nil {
		t.Fatalf("update: %v", err)
	}
	second := order.Order{ID: "2", CompanyID: 1}
	repo.Create(ctx, &second)
	list, err := repo.List(ctx, 1)
	if err != nil || len(list) != 2 {
		t.Fatalf("list: %v len=%d", err, len(list))
	}
	if list[0].ID != "2" || list[1].Status != order.StatusPaid {
		t.Fatalf("unexpected list %+v", list)
	}
	if err := repo.Update(ctx, order.Order{ID: "missing"}); err != order.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.Get(ctx, "missing"); err != order.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestComputeTotal(t *testing.T) {
	lines := []order.Line{
		{Price: decimal.RequireFromString("35.00"), Quantity: 2},
		{Price: decimal.RequireFromString("0.333"), Quantity: 3},
	}
	if got := order.ComputeTotal(lines); !got.Equal(decimal.RequireFromString("71")) {
		t.Fatalf("expected 71, got %s", got)
	}
}

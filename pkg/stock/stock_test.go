package stock

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRequirementsAggregate(t *testing.T) {
	r := NewRequirements()
	for _, add := range []struct {
		id  string
		qty string
	}{
		{"tomato", "0.1"},
		{"bun", "2"},
		{"tomato", "0.1"},
		{"tomato", "0.1"},
		{"salt", "0"},
	} {
		if err := r.Add(add.id, decimal.RequireFromString(add.qty)); err != nil {
			t.Fatalf("add %s: %v", add.id, err)
		}
	}

	if r.Len() != 2 {
		t.Fatalf("expected 2 ingredients, got %d", r.Len())
	}
	if got := r.Quantity("tomato"); !got.Equal(decimal.RequireFromString("0.3")) {
		t.Fatalf("expected exact 0.3 tomato, got %s", got)
	}

	sorted := r.Sorted()
	if sorted[0].IngredientID != "bun" || sorted[1].IngredientID != "tomato" {
		t.Fatalf("unexpected order: %+v", sorted)
	}
}

func TestRequirementsRejectNegative(t *testing.T) {
	r := NewRequirements()
	err := r.Add("tomato", decimal.NewFromInt(-1))
	var invalid *InvalidQuantityError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidQuantityError, got %v", err)
	}
	if r.Len() != 0 {
		t.Fatal("negative quantity must not be recorded")
	}
}

func TestIngredientValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      Ingredient
		wantErr bool
	}{
		{"ok", Ingredient{ID: "bun", Name: "Bun", OnHand: decimal.NewFromInt(5)}, false},
		{"missing id", Ingredient{Name: "Bun"}, true},
		{"missing name", Ingredient{ID: "bun"}, true},
		{"negative on hand", Ingredient{ID: "bun", Name: "Bun", OnHand: decimal.NewFromInt(-1)}, true},
		{"negative threshold", Ingredient{ID: "bun", Name: "Bun", MinThreshold: decimal.NewFromInt(-1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.in.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBelowThreshold(t *testing.T) {
	i := Ingredient{OnHand: decimal.NewFromInt(2), MinThreshold: decimal.NewFromInt(3)}
	if !i.BelowThreshold() {
		t.Fatal("expected item below threshold")
	}
}

// racingStore is a single-ingredient Store whose conditional decrements
// can be made to lose every race.
type racingStore struct {
	onHand     decimal.Decimal
	alwaysLose bool
}

func (s *racingStore) ConditionalDecrement(_ context.Context, _ string, amount decimal.Decimal) (bool, error) {
	if s.alwaysLose || s.onHand.LessThan(amount) {
		return false, nil
	}
	s.onHand = s.onHand.Sub(amount)
	return true, nil
}

func (s *racingStore) Increment(_ context.Context, _ string, amount decimal.Decimal) error {
	s.onHand = s.onHand.Add(amount)
	return nil
}

func (s *racingStore) ReadQuantity(context.Context, string) (decimal.Decimal, error) {
	return s.onHand, nil
}

func TestRecount(t *testing.T) {
	tests := []struct {
		name    string
		onHand  string
		counted string
	}{
		{"shrinkage", "10", "7.5"},
		{"found stock", "2", "6"},
		{"unchanged", "4", "4"},
		{"empty shelf", "3", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &racingStore{onHand: decimal.RequireFromString(tt.onHand)}
			prev, err := Recount(context.Background(), s, "flour", decimal.RequireFromString(tt.counted))
			if err != nil {
				t.Fatalf("recount: %v", err)
			}
			if !prev.Equal(decimal.RequireFromString(tt.onHand)) {
				t.Fatalf("expected previous %s, got %s", tt.onHand, prev)
			}
			if !s.onHand.Equal(decimal.RequireFromString(tt.counted)) {
				t.Fatalf("expected %s on hand, got %s", tt.counted, s.onHand)
			}
		})
	}
}

func TestRecountGivesUpWhenStockKeepsMoving(t *testing.T) {
	s := &racingStore{onHand: decimal.NewFromInt(10), alwaysLose: true}
	if _, err := Recount(context.Background(), s, "flour", decimal.NewFromInt(5)); !errors.Is(err, ErrCountConflict) {
		t.Fatalf("expected ErrCountConflict, got %v", err)
	}
	var inv *InvalidQuantityError
	if _, err := Recount(context.Background(), s, "flour", decimal.NewFromInt(-1)); !errors.As(err, &inv) {
		t.Fatalf("expected InvalidQuantityError, got %v", err)
	}
}

func TestCountValidate(t *testing.T) {
	if err := (Count{IngredientID: "flour", Counted: decimal.NewFromInt(3)}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (Count{Counted: decimal.NewFromInt(3)}).Validate(); err == nil {
		t.Fatal("expected error without ingredient")
	}
	if err := (Count{IngredientID: "flour", Counted: decimal.NewFromInt(-3)}).Validate(); err == nil {
		t.Fatal("expected error for negative count")
	}
}

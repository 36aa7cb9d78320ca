// Package stock defines ingredient stock records and the storage capabilities
// used to reserve them.
package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Ingredient is a stock-tracked item consumed by menu recipes.
type Ingredient struct {
	ID           string          `json:"id"`
	CompanyID    int64           `json:"company_id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit,omitempty"`
	OnHand       decimal.Decimal `json:"on_hand" swaggertype:"number"`
	MinThreshold decimal.Decimal `json:"min_threshold" swaggertype:"number"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Validate checks the fields an administrator may set.
func (i Ingredient) Validate() error {
	if i.ID == "" {
		return errors.New("ingredient id is required")
	}
	if i.Name == "" {
		return errors.New("ingredient name is required")
	}
	if i.OnHand.IsNegative() {
		return &InvalidQuantityError{IngredientID: i.ID, Quantity: i.OnHand}
	}
	if i.MinThreshold.IsNegative() {
		return &InvalidQuantityError{IngredientID: i.ID, Quantity: i.MinThreshold}
	}
	return nil
}

// BelowThreshold reports whether the item should be reordered.
func (i Ingredient) BelowThreshold() bool {
	return i.OnHand.LessThan(i.MinThreshold)
}

// Count is a physical stock take of one ingredient. Recording it moves the
// ingredient's on-hand quantity to Counted.
type Count struct {
	ID           int64           `json:"id"`
	CompanyID    int64           `json:"company_id"`
	IngredientID string          `json:"ingredient_id"`
	Counted      decimal.Decimal `json:"counted" swaggertype:"number"`
	Previous     decimal.Decimal `json:"previous" swaggertype:"number"`
	CountedBy    string          `json:"counted_by"`
	Note         string          `json:"note,omitempty"`
	CountedAt    time.Time       `json:"counted_at"`
}

// Validate checks the fields a counter may set.
func (c Count) Validate() error {
	if c.IngredientID == "" {
		return errors.New("ingredient_id is required")
	}
	if c.Counted.IsNegative() {
		return &InvalidQuantityError{IngredientID: c.IngredientID, Quantity: c.Counted}
	}
	return nil
}

// CountRepository keeps the stock count history.
type CountRepository interface {
	// AddCount stores c and assigns its ID.
	AddCount(ctx context.Context, c *Count) error
	// ListCounts returns a company's counts, newest first. An empty
	// ingredientID lists every ingredient.
	ListCounts(ctx context.Context, companyID int64, ingredientID string) ([]Count, error)
}

// Store is the per-ingredient conditional write capability the reservation
// engine relies on. Each call must be atomic for a single ingredient.
type Store interface {
	// ConditionalDecrement subtracts amount iff the stored quantity is at
	// least amount, and reports whether the write applied.
	ConditionalDecrement(ctx context.Context, id string, amount decimal.Decimal) (bool, error)
	// Increment adds amount to the stored quantity.
	Increment(ctx context.Context, id string, amount decimal.Decimal) error
	// ReadQuantity returns the on-hand quantity, zero for unknown ids.
	ReadQuantity(ctx context.Context, id string) (decimal.Decimal, error)
}

// Repository adds administrative CRUD on top of Store.
type Repository interface {
	Store
	Create(ctx context.Context, i Ingredient) error
	Get(ctx context.Context, id string) (Ingredient, error)
	List(ctx context.Context, companyID int64) ([]Ingredient, error)
	// Update replaces the descriptive fields. OnHand is left alone; it
	// only moves through the Store methods.
	Update(ctx context.Context, i Ingredient) error
	Delete(ctx context.Context, id string) error
}

const recountAttempts = 3

// Recount moves id's on-hand quantity to counted with the Store's atomic
// operations and returns the quantity it replaced. Sales landing between
// the read and the write are retried a few times before ErrCountConflict.
func Recount(ctx context.Context, s Store, id string, counted decimal.Decimal) (decimal.Decimal, error) {
	if counted.IsNegative() {
		return decimal.Zero, &InvalidQuantityError{IngredientID: id, Quantity: counted}
	}
	for n := 0; n < recountAttempts; n++ {
		cur, err := s.ReadQuantity(ctx, id)
		if err != nil {
			return decimal.Zero, err
		}
		delta := counted.Sub(cur)
		switch delta.Sign() {
		case 0:
			return cur, nil
		case 1:
			return cur, s.Increment(ctx, id, delta)
		}
		ok, err := s.ConditionalDecrement(ctx, id, delta.Neg())
		if err != nil {
			return decimal.Zero, err
		}
		if ok {
			return cur, nil
		}
	}
	return decimal.Zero, ErrCountConflict
}

var (
	// ErrNotFound indicates the requested ingredient does not exist.
	ErrNotFound = errors.New("ingredient not found")
	// ErrExists indicates an ingredient with the same id already exists.
	ErrExists = errors.New("ingredient already exists")
	// ErrCountConflict is returned when stock keeps moving during a recount.
	ErrCountConflict = errors.New("stock changed while applying count")
)

// InvalidQuantityError is returned for negative quantities.
type InvalidQuantityError struct {
	IngredientID string
	Quantity     decimal.Decimal
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %s for ingredient %s", e.Quantity, e.IngredientID)
}

// Shortfall describes one ingredient that cannot cover its requirement.
type Shortfall struct {
	IngredientID string          `json:"ingredient_id"`
	Needed       decimal.Decimal `json:"needed" swaggertype:"number"`
	Available    decimal.Decimal `json:"available" swaggertype:"number"`
}

// Requirement is one ingredient's total need for an order.
type Requirement struct {
	IngredientID string
	Quantity     decimal.Decimal
}

// Requirements aggregates ingredient needs across order lines.
type Requirements struct {
	m map[string]decimal.Decimal
}

// NewRequirements returns an empty aggregation.
func NewRequirements() *Requirements {
	return &Requirements{m: make(map[string]decimal.Decimal)}
}

// Add sums qty into id's total. Zero quantities are ignored.
func (r *Requirements) Add(id string, qty decimal.Decimal) error {
	if qty.IsNegative() {
		return &InvalidQuantityError{IngredientID: id, Quantity: qty}
	}
	if qty.IsZero() {
		return nil
	}
	r.m[id] = r.m[id].Add(qty)
	return nil
}

// Len is the number of distinct ingredients.
func (r *Requirements) Len() int {
	if r == nil {
		return 0
	}
	return len(r.m)
}

// Quantity returns the total need for id.
func (r *Requirements) Quantity(id string) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return r.m[id]
}

// Sorted returns the requirements ordered by ingredient id.
func (r *Requirements) Sorted() []Requirement {
	if r == nil {
		return nil
	}
	out := make([]Requirement, 0, len(r.m))
	for id, q := range r.m {
		out = append(out, Requirement{IngredientID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IngredientID < out[j].IngredientID })
	return out
}

// Package memory implements an in-memory ingredient stock repository.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"backoffice/pkg/stock"
)

// Repository provides an in-memory implementation of stock.Repository.
type Repository struct {
	mu    sync.RWMutex
	items map[string]stock.Ingredient
}

var _ stock.Repository = (*Repository)(nil)

// New creates a new in-memory repository.
func New() *Repository {
	return &Repository{items: make(map[string]stock.Ingredient)}
}

// Create stores a new ingredient.
func (r *Repository) Create(ctx context.Context, i stock.Ingredient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[i.ID]; ok {
		return stock.ErrExists
	}
	now := time.Now().UTC()
	i.CreatedAt, i.UpdatedAt = now, now
	r.items[i.ID] = i
	return nil
}

// Get retrieves an ingredient by ID.
func (r *Repository) Get(ctx context.Context, id string) (stock.Ingredient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.items[id]
	if !ok {
		return stock.Ingredient{}, stock.ErrNotFound
	}
	return i, nil
}

// List returns the ingredients of a company ordered by ID.
func (r *Repository) List(ctx context.Context, companyID int64) ([]stock.Ingredient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]stock.Ingredient, 0, len(r.items))
	for _, i := range r.items {
		if i.CompanyID == companyID {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

// Update replaces an existing ingredient's descriptive fields.
func (r *Repository) Update(ctx context.Context, i stock.Ingredient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.items[i.ID]
	if !ok {
		return stock.ErrNotFound
	}
	i.OnHand = old.OnHand
	i.CreatedAt = old.CreatedAt
	i.UpdatedAt = time.Now().UTC()
	r.items[i.ID] = i
	return nil
}

// Delete removes an ingredient by ID.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return stock.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

// ConditionalDecrement subtracts amount when enough stock is on hand.
func (r *Repository) ConditionalDecrement(ctx context.Context, id string, amount decimal.Decimal) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.items[id]
	if !ok || i.OnHand.LessThan(amount) {
		return false, nil
	}
	i.OnHand = i.OnHand.Sub(amount)
	i.UpdatedAt = time.Now().UTC()
	r.items[id] = i
	return true, nil
}

// Increment adds amount to an existing ingredient.
func (r *Repository) Increment(ctx context.Context, id string, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.items[id]
	if !ok {
		return stock.ErrNotFound
	}
	i.OnHand = i.OnHand.Add(amount)
	i.UpdatedAt = time.Now().UTC()
	r.items[id] = i
	return nil
}

// ReadQuantity returns the on-hand quantity, zero for unknown ingredients.
func (r *Repository) ReadQuantity(ctx context.Context, id string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.items[id]
	if !ok {
		return decimal.Zero, nil
	}
	return i.OnHand, nil
}

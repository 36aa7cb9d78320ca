package memory

import (
	"context"
	"sort"
	"sync"

	"backoffice/pkg/stock"
)

// Counts provides an in-memory implementation of stock.CountRepository.
type Counts struct {
	mu     sync.RWMutex
	counts []stock.Count
	seq    int64
}

var _ stock.CountRepository = (*Counts)(nil)

// NewCounts creates an empty count history.
func NewCounts() *Counts {
	return &Counts{}
}

// AddCount appends c to the history.
func (r *Counts) AddCount(ctx context.Context, c *stock.Count) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	c.ID = r.seq
	r.counts = append(r.counts, *c)
	return nil
}

// ListCounts returns a company's counts, newest first.
func (r *Counts) ListCounts(ctx context.Context, companyID int64, ingredientID string) ([]stock.Count, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]stock.Count, 0, len(r.counts))
	for _, c := range r.counts {
		if c.CompanyID != companyID || (ingredientID != "" && c.IngredientID != ingredientID) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CountedAt.Equal(out[b].CountedAt) {
			return out[a].CountedAt.After(out[b].CountedAt)
		}
		return out[a].ID > out[b].ID
	})
	return out, nil
}

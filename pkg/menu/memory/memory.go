// Package memory implements an in-memory menu repository.
package memory

import (
	"context"
	"sort"
	"sync"

	"backoffice/pkg/menu"
)

// Repository provides an in-memory implementation of menu.Repository.
type Repository struct {
	mu         sync.RWMutex
	items      map[string]menu.Item
	categories map[int64]menu.Category
	catSeq     int64
}

// New creates a new in-memory repository.
func New() *Repository {
	return &Repository{items: make(map[string]menu.Item), categories: make(map[int64]menu.Category)}
}

func (r *Repository) Create(ctx context.Context, i menu.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[i.ID] = i
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (menu.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.items[id]
	if !ok {
		return menu.Item{}, menu.ErrNotFound
	}
	return i, nil
}

func (r *Repository) GetMany(ctx context.Context, ids []string) (map[string]menu.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]menu.Item, len(ids))
	for _, id := range ids {
		if i, ok := r.items[id]; ok {
			out[id] = i
		}
	}
	return out, nil
}

func (r *Repository) List(ctx context.Context, companyID int64) ([]menu.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]menu.Item, 0, len(r.items))
	for _, i := range r.items {
		if i.CompanyID == companyID {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

func (r *Repository) Update(ctx context.Context, i menu.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.items[i.ID]
	if !ok {
		return menu.ErrNotFound
	}
	i.CreatedAt = old.CreatedAt
	r.items[i.ID] = i
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return menu.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *Repository) CreateCategory(ctx context.Context, c *menu.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catSeq++
	c.ID = r.catSeq
	r.categories[c.ID] = *c
	return nil
}

func (r *Repository) GetCategory(ctx context.Context, id int64) (menu.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.categories[id]
	if !ok {
		return menu.Category{}, menu.ErrCategoryNotFound
	}
	return c, nil
}

func (r *Repository) ListCategories(ctx context.Context, companyID int64) ([]menu.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]menu.Category, 0, len(r.categories))
	for _, c := range r.categories {
		if c.CompanyID == companyID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

func (r *Repository) UpdateCategory(ctx context.Context, c menu.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.categories[c.ID]
	if !ok {
		return menu.ErrCategoryNotFound
	}
	c.CreatedAt = old.CreatedAt
	r.categories[c.ID] = c
	return nil
}

func (r *Repository) DeleteCategory(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.categories[id]; !ok {
		return menu.ErrCategoryNotFound
	}
	delete(r.categories, id)
	for key, i := range r.items {
		if i.CategoryID != nil && *i.CategoryID == id {
			i.CategoryID = nil
			r.items[key] = i
		}
	}
	return nil
}

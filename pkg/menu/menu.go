// Package menu holds sellable menu items and the recipes that tie them to
// stock ingredients.
package menu

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// RecipeLine is the quantity of one ingredient a single unit consumes.
type RecipeLine struct {
	IngredientID string          `json:"ingredient_id"`
	Quantity     decimal.Decimal `json:"quantity" swaggertype:"number"`
}

// Item is a sellable menu entry.
type Item struct {
	ID          string          `json:"id"`
	CompanyID   int64           `json:"company_id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price" swaggertype:"number"`
	Description string          `json:"description,omitempty"`
	CategoryID  *int64          `json:"category_id,omitempty"`
	Recipe      []RecipeLine    `json:"recipe"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Validate checks an item before it is stored.
func (i Item) Validate() error {
	if i.Name == "" {
		return errors.New("menu item name is required")
	}
	if i.Price.IsNegative() {
		return errors.New("menu item price must not be negative")
	}
	for _, l := range i.Recipe {
		if l.IngredientID == "" {
			return errors.New("recipe line without ingredient")
		}
		if l.Quantity.IsNegative() {
			return errors.New("recipe quantity must not be negative")
		}
	}
	return nil
}

// Category groups menu items on the till.
type Category struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository defines behavior for persisting menu items and their
// categories.
type Repository interface {
	Create(ctx context.Context, i Item) error
	Get(ctx context.Context, id string) (Item, error)
	// GetMany returns the items found among ids, keyed by id.
	GetMany(ctx context.Context, ids []string) (map[string]Item, error)
	List(ctx context.Context, companyID int64) ([]Item, error)
	Update(ctx context.Context, i Item) error
	Delete(ctx context.Context, id string) error

	// CreateCategory stores c and assigns its ID.
	CreateCategory(ctx context.Context, c *Category) error
	GetCategory(ctx context.Context, id int64) (Category, error)
	ListCategories(ctx context.Context, companyID int64) ([]Category, error)
	UpdateCategory(ctx context.Context, c Category) error
	// DeleteCategory removes c and clears it from the items filed under it.
	DeleteCategory(ctx context.Context, id int64) error
}

var (
	// ErrNotFound indicates the requested menu item does not exist.
	ErrNotFound = errors.New("menu item not found")
	// ErrCategoryNotFound indicates the requested category does not exist.
	ErrCategoryNotFound = errors.New("category not found")
)

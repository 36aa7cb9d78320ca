package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"backoffice/pkg/menu"
)

const Schema = `CREATE TABLE IF NOT EXISTS menu_items (
	id          TEXT PRIMARY KEY,
	company_id  BIGINT NOT NULL DEFAULT 1,
	name        TEXT NOT NULL,
	price       NUMERIC NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category_id BIGINT,
	recipe      JSONB NOT NULL DEFAULT '[]',
	active      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// CategorySchema creates the menu_categories table.
const CategorySchema = `CREATE TABLE IF NOT EXISTS menu_categories (
	id         BIGSERIAL PRIMARY KEY,
	company_id BIGINT NOT NULL DEFAULT 1,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const columns = "id,company_id,name,price,description,category_id,recipe,active,created_at"

// Repository persists menu items in PostgreSQL.
type Repository struct {
	db *sql.DB
}

// New creates a PostgreSQL repository.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return errors.Wrap(err, "create menu_items table")
	}
	_, err := r.db.ExecContext(ctx, CategorySchema)
	return errors.Wrap(err, "create menu_categories table")
}

// Create inserts a new menu item.
func (r *Repository) Create(ctx context.Context, i menu.Item) error {
	recipe, err := json.Marshal(recipeOrEmpty(i.Recipe))
	if err != nil {
		return errors.Wrap(err, "encode recipe")
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO menu_items (id,company_id,name,price,description,category_id,recipe,active) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)",
		i.ID, i.CompanyID, i.Name, i.Price, i.Description, i.CategoryID, string(recipe), i.Active)
	return errors.Wrap(err, "insert menu item")
}

// Get retrieves a menu item by ID.
func (r *Repository) Get(ctx context.Context, id string) (menu.Item, error) {
	i, err := scan(r.db.QueryRowContext(ctx, "SELECT "+columns+" FROM menu_items WHERE id=$1", id))
	if err == sql.ErrNoRows {
		return menu.Item{}, menu.ErrNotFound
	}
	return i, errors.Wrap(err, "select menu item")
}

// GetMany fetches the listed items in one round trip.
func (r *Repository) GetMany(ctx context.Context, ids []string) (map[string]menu.Item, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+columns+" FROM menu_items WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "select menu items")
	}
	defer rows.Close()
	out := make(map[string]menu.Item, len(ids))
	for rows.Next() {
		i, err := scan(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan menu item")
		}
		out[i.ID] = i
	}
	return out, rows.Err()
}

// List fetches all menu items of a company.
func (r *Repository) List(ctx context.Context, companyID int64) ([]menu.Item, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+columns+" FROM menu_items WHERE company_id=$1 ORDER BY name", companyID)
	if err != nil {
		return nil, errors.Wrap(err, "list menu items")
	}
	defer rows.Close()
	var out []menu.Item
	for rows.Next() {
		i, err := scan(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan menu item")
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// Update updates an existing menu item.
func (r *Repository) Update(ctx context.Context, i menu.Item) error {
	recipe, err := json.Marshal(recipeOrEmpty(i.Recipe))
	if err != nil {
		return errors.Wrap(err, "encode recipe")
	}
	res, err := r.db.ExecContext(ctx,
		"UPDATE menu_items SET company_id=$2, name=$3, price=$4, description=$5, category_id=$6, recipe=$7, active=$8 WHERE id=$1",
		i.ID, i.CompanyID, i.Name, i.Price, i.Description, i.CategoryID, string(recipe), i.Active)
	if err != nil {
		return errors.Wrap(err, "update menu item")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return menu.ErrNotFound
	}
	return nil
}

// Delete removes a menu item by ID.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM menu_items WHERE id=$1", id)
	if err != nil {
		return errors.Wrap(err, "delete menu item")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return menu.ErrNotFound
	}
	return nil
}

// CreateCategory inserts c and reads back its id.
func (r *Repository) CreateCategory(ctx context.Context, c *menu.Category) error {
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO menu_categories (company_id,name,created_at) VALUES ($1,$2,$3) RETURNING id",
		c.CompanyID, c.Name, c.CreatedAt).Scan(&c.ID)
	return errors.Wrap(err, "insert category")
}

// GetCategory retrieves a category by ID.
func (r *Repository) GetCategory(ctx context.Context, id int64) (menu.Category, error) {
	var c menu.Category
	err := r.db.QueryRowContext(ctx, "SELECT id,company_id,name,created_at FROM menu_categories WHERE id=$1", id).
		Scan(&c.ID, &c.CompanyID, &c.Name, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return menu.Category{}, menu.ErrCategoryNotFound
	}
	return c, errors.Wrap(err, "select category")
}

// ListCategories fetches a company's categories by name.
func (r *Repository) ListCategories(ctx context.Context, companyID int64) ([]menu.Category, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id,company_id,name,created_at FROM menu_categories WHERE company_id=$1 ORDER BY name", companyID)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	defer rows.Close()
	var out []menu.Category
	for rows.Next() {
		var c menu.Category
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Name, &c.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan category")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCategory renames a category.
func (r *Repository) UpdateCategory(ctx context.Context, c menu.Category) error {
	res, err := r.db.ExecContext(ctx, "UPDATE menu_categories SET company_id=$2, name=$3 WHERE id=$1", c.ID, c.CompanyID, c.Name)
	if err != nil {
		return errors.Wrap(err, "update category")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return menu.ErrCategoryNotFound
	}
	return nil
}

// DeleteCategory removes a category and unfiles its items in one
// transaction.
func (r *Repository) DeleteCategory(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM menu_categories WHERE id=$1", id)
	if err != nil {
		return errors.Wrap(err, "delete category")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return menu.ErrCategoryNotFound
	}
	if _, err := tx.ExecContext(ctx, "UPDATE menu_items SET category_id=NULL WHERE category_id=$1", id); err != nil {
		return errors.Wrap(err, "unfile menu items")
	}
	return errors.Wrap(tx.Commit(), "commit")
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (menu.Item, error) {
	var (
		i        menu.Item
		category sql.NullInt64
		recipe   []byte
	)
	if err := s.Scan(&i.ID, &i.CompanyID, &i.Name, &i.Price, &i.Description, &category, &recipe, &i.Active, &i.CreatedAt); err != nil {
		return menu.Item{}, err
	}
	if category.Valid {
		i.CategoryID = &category.Int64
	}
	if err := json.Unmarshal(recipe, &i.Recipe); err != nil {
		return menu.Item{}, errors.Wrap(err, "decode recipe")
	}
	return i, nil
}

func recipeOrEmpty(r []menu.RecipeLine) []menu.RecipeLine {
	if r == nil {
		return []menu.RecipeLine{}
	}
	return r
}

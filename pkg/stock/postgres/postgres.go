// Package postgres persists ingredient stock in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"backoffice/pkg/stock"
)

// Schema creates the ingredients table. The CHECK constraint backs the
// non-negativity invariant at the storage level too.
const Schema = `CREATE TABLE IF NOT EXISTS ingredients (
	id            TEXT PRIMARY KEY,
	company_id    BIGINT NOT NULL DEFAULT 1,
	name          TEXT NOT NULL,
	unit          TEXT NOT NULL DEFAULT '',
	on_hand       NUMERIC NOT NULL DEFAULT 0 CHECK (on_hand >= 0),
	min_threshold NUMERIC NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const uniqueViolation = "23505"

// Repository persists ingredients in PostgreSQL.
type Repository struct {
	db *sql.DB
}

var _ stock.Repository = (*Repository)(nil)

// New creates a PostgreSQL repository.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the table if needed.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, Schema)
	return errors.Wrap(err, "create ingredients table")
}

// Create inserts a new ingredient.
func (r *Repository) Create(ctx context.Context, i stock.Ingredient) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO ingredients (id,company_id,name,unit,on_hand,min_threshold) VALUES ($1,$2,$3,$4,$5,$6)",
		i.ID, i.CompanyID, i.Name, i.Unit, i.OnHand, i.MinThreshold)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return stock.ErrExists
	}
	return errors.Wrap(err, "insert ingredient")
}

// Get retrieves an ingredient by ID.
func (r *Repository) Get(ctx context.Context, id string) (stock.Ingredient, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id,company_id,name,unit,on_hand,min_threshold,created_at,updated_at FROM ingredients WHERE id=$1", id)
	i, err := scan(row)
	if err == sql.ErrNoRows {
		return stock.Ingredient{}, stock.ErrNotFound
	}
	return i, errors.Wrap(err, "select ingredient")
}

// List fetches the ingredients of a company.
func (r *Repository) List(ctx context.Context, companyID int64) ([]stock.Ingredient, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id,company_id,name,unit,on_hand,min_threshold,created_at,updated_at FROM ingredients WHERE company_id=$1 ORDER BY id", companyID)
	if err != nil {
		return nil, errors.Wrap(err, "list ingredients")
	}
	defer rows.Close()
	var out []stock.Ingredient
	for rows.Next() {
		i, err := scan(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan ingredient")
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// Update overwrites an ingredient's descriptive fields. on_hand is only
// written by the conditional updates below.
func (r *Repository) Update(ctx context.Context, i stock.Ingredient) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE ingredients SET company_id=$2, name=$3, unit=$4, min_threshold=$5, updated_at=now() WHERE id=$1",
		i.ID, i.CompanyID, i.Name, i.Unit, i.MinThreshold)
	if err != nil {
		return errors.Wrap(err, "update ingredient")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return stock.ErrNotFound
	}
	return nil
}

// Delete removes an ingredient by ID.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM ingredients WHERE id=$1", id)
	if err != nil {
		return errors.Wrap(err, "delete ingredient")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return stock.ErrNotFound
	}
	return nil
}

// ConditionalDecrement relies on the row-level atomicity of a single UPDATE.
func (r *Repository) ConditionalDecrement(ctx context.Context, id string, amount decimal.Decimal) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE ingredients SET on_hand = on_hand - $2, updated_at=now() WHERE id=$1 AND on_hand >= $2",
		id, amount)
	if err != nil {
		return false, errors.Wrapf(err, "decrement ingredient %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "decrement ingredient %s", id)
	}
	return n == 1, nil
}

// Increment adds amount to the stored quantity.
func (r *Repository) Increment(ctx context.Context, id string, amount decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE ingredients SET on_hand = on_hand + $2, updated_at=now() WHERE id=$1", id, amount)
	if err != nil {
		return errors.Wrapf(err, "increment ingredient %s", id)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return stock.ErrNotFound
	}
	return nil
}

// ReadQuantity returns the on-hand quantity, zero for unknown ingredients.
func (r *Repository) ReadQuantity(ctx context.Context, id string) (decimal.Decimal, error) {
	var q decimal.Decimal
	err := r.db.QueryRowContext(ctx, "SELECT on_hand FROM ingredients WHERE id=$1", id).Scan(&q)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	return q, errors.Wrapf(err, "read ingredient %s", id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (stock.Ingredient, error) {
	var i stock.Ingredient
	err := s.Scan(&i.ID, &i.CompanyID, &i.Name, &i.Unit, &i.OnHand, &i.MinThreshold, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

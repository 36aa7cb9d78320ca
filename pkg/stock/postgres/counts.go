package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"backoffice/pkg/stock"
)

// CountSchema creates the stock count history table. Ingredients may live
// in another backend, so ingredient_id carries no foreign key.
const CountSchema = `CREATE TABLE IF NOT EXISTS stock_counts (
	id            BIGSERIAL PRIMARY KEY,
	company_id    BIGINT NOT NULL DEFAULT 1,
	ingredient_id TEXT NOT NULL,
	counted       NUMERIC NOT NULL,
	previous      NUMERIC NOT NULL,
	counted_by    TEXT NOT NULL DEFAULT '',
	note          TEXT NOT NULL DEFAULT '',
	counted_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Counts persists stock counts in PostgreSQL.
type Counts struct {
	db *sql.DB
}

var _ stock.CountRepository = (*Counts)(nil)

// NewCounts creates a PostgreSQL count history.
func NewCounts(db *sql.DB) *Counts {
	return &Counts{db: db}
}

// Migrate creates the table if needed.
func (r *Counts) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, CountSchema)
	return errors.Wrap(err, "create stock_counts table")
}

// AddCount inserts c and reads back its id.
func (r *Counts) AddCount(ctx context.Context, c *stock.Count) error {
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO stock_counts (company_id,ingredient_id,counted,previous,counted_by,note,counted_at) VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id",
		c.CompanyID, c.IngredientID, c.Counted, c.Previous, c.CountedBy, c.Note, c.CountedAt,
	).Scan(&c.ID)
	return errors.Wrap(err, "insert stock count")
}

// ListCounts fetches a company's counts, newest first.
func (r *Counts) ListCounts(ctx context.Context, companyID int64, ingredientID string) ([]stock.Count, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id,company_id,ingredient_id,counted,previous,counted_by,note,counted_at FROM stock_counts WHERE company_id=$1 AND ($2::text = '' OR ingredient_id=$2) ORDER BY counted_at DESC, id DESC",
		companyID, ingredientID)
	if err != nil {
		return nil, errors.Wrap(err, "list stock counts")
	}
	defer rows.Close()
	var out []stock.Count
	for rows.Next() {
		var c stock.Count
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.IngredientID, &c.Counted, &c.Previous, &c.CountedBy, &c.Note, &c.CountedAt); err != nil {
			return nil, errors.Wrap(err, "scan stock count")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

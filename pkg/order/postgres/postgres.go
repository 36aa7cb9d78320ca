package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"backoffice/pkg/order"
)

const Schema = `CREATE TABLE IF NOT EXISTS orders (
	id          TEXT PRIMARY KEY,
	receipt_no  BIGSERIAL UNIQUE,
	company_id  BIGINT NOT NULL DEFAULT 1,
	table_label TEXT NOT NULL DEFAULT '',
	customer    TEXT NOT NULL DEFAULT '',
	lines       JSONB NOT NULL,
	total       NUMERIC NOT NULL,
	note        TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	payments    JSONB NOT NULL DEFAULT '[]',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const columns = "id,receipt_no,company_id,table_label,customer,lines,total,note,status,payments,created_at"

// Repository persists orders in PostgreSQL.
type Repository struct {
	db *sql.DB
}

// New creates a PostgreSQL repository.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, Schema)
	return errors.Wrap(err, "create orders table")
}

// Create inserts a new order and reads back the receipt number the
// sequence assigned.
func (r *Repository) Create(ctx context.Context, o *order.Order) error {
	lines, payments, err := encode(*o)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx,
		"INSERT INTO orders (id,company_id,table_label,customer,lines,total,note,status,payments,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING receipt_no",
		o.ID, o.CompanyID, o.Table, o.Customer, lines, o.Total, o.Note, string(o.Status), payments, o.CreatedAt,
	).Scan(&o.ReceiptNo)
	return errors.Wrap(err, "insert order")
}

// Get retrieves an order by ID.
func (r *Repository) Get(ctx context.Context, id string) (order.Order, error) {
	o, err := scan(r.db.QueryRowContext(ctx, "SELECT "+columns+" FROM orders WHERE id=$1", id))
	if err == sql.ErrNoRows {
		return order.Order{}, order.ErrNotFound
	}
	return o, errors.Wrap(err, "select order")
}

// List fetches a company's orders, newest receipt first.
func (r *Repository) List(ctx context.Context, companyID int64) ([]order.Order, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+columns+" FROM orders WHERE company_id=$1 ORDER BY receipt_no DESC", companyID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()
	var orders []order.Order
	for rows.Next() {
		o, err := scan(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Update updates an existing order.
func (r *Repository) Update(ctx context.Context, o order.Order) error {
	lines, payments, err := encode(o)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		"UPDATE orders SET table_label=$2, customer=$3, lines=$4, total=$5, note=$6, status=$7, payments=$8 WHERE id=$1",
		o.ID, o.Table, o.Customer, lines, o.Total, o.Note, string(o.Status), payments)
	if err != nil {
		return errors.Wrap(err, "update order")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return order.ErrNotFound
	}
	return nil
}

// encode renders the JSONB columns as text; lib/pq sends []byte as bytea.
func encode(o order.Order) (string, string, error) {
	lines := o.Lines
	if lines == nil {
		lines = []order.Line{}
	}
	payments := o.Payments
	if payments == nil {
		payments = []order.Payment{}
	}
	l, err := json.Marshal(lines)
	if err != nil {
		return "", "", errors.Wrap(err, "encode lines")
	}
	p, err := json.Marshal(payments)
	if err != nil {
		return "", "", errors.Wrap(err, "encode payments")
	}
	return string(l), string(p), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (order.Order, error) {
	var (
		o        order.Order
		status   string
		lines    []byte
		payments []byte
	)
	if err := s.Scan(&o.ID, &o.ReceiptNo, &o.CompanyID, &o.Table, &o.Customer, &lines, &o.Total, &o.Note, &status, &payments, &o.CreatedAt); err != nil {
		return order.Order{}, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return order.Order{}, errors.Wrap(err, "decode lines")
	}
	if err := json.Unmarshal(payments, &o.Payments); err != nil {
		return order.Order{}, errors.Wrap(err, "decode payments")
	}
	return o, nil
}

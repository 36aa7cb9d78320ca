package order

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status of an order's settlement.
type Status string

const (
	StatusOpen Status = "open"
	StatusPaid Status = "paid"
)

// Line is one menu item on an order, priced at ordering time.
type Line struct {
	MenuItemID string          `json:"menu_item_id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price" swaggertype:"number"`
	Quantity   int             `json:"quantity"`
}

// Payment records money taken against an order.
type Payment struct {
	Method     string            `json:"method"`
	Amount     decimal.Decimal   `json:"amount" swaggertype:"number"`
	Details    map[string]string `json:"details,omitempty"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// Order represents a point-of-sale ticket.
type Order struct {
	ID        string          `json:"id"`
	ReceiptNo int64           `json:"receipt_no"`
	CompanyID int64           `json:"company_id"`
	Table     string          `json:"table,omitempty"`
	Customer  string          `json:"customer,omitempty"`
	Lines     []Line          `json:"items"`
	Total     decimal.Decimal `json:"total" swaggertype:"number"`
	Note      string          `json:"note,omitempty"`
	Status    Status          `json:"status"`
	Payments  []Payment       `json:"payments"`
	CreatedAt time.Time       `json:"created_at"`
}

// ComputeTotal sums price times quantity over the lines, rounded to cents.
func ComputeTotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total.Round(2)
}

// Paid sums the recorded payments.
func (o Order) Paid() decimal.Decimal {
	paid := decimal.Zero
	for _, p := range o.Payments {
		paid = paid.Add(p.Amount)
	}
	return paid
}

// Repository defines behavior for persisting orders.
type Repository interface {
	// Create stores o and assigns its receipt number.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, companyID int64) ([]Order, error)
	Update(ctx context.Context, o Order) error
}

// ErrNotFound indicates the requested order does not exist.
var ErrNotFound = errors.New("order not found")

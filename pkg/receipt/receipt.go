// Package receipt sends order tickets to the kitchen/receipt printers.
// Drivers publish a JSON Ticket; the printer bridge on the other side of
// the broker renders it.
package receipt

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"backoffice/pkg/logger"
	"backoffice/pkg/order"
)

// Printer delivers a ticket for an order.
type Printer interface {
	Print(ctx context.Context, t Ticket) error
	Close() error
}

// Ticket is the printable rendering of an order.
type Ticket struct {
	OrderID   string          `json:"order_id"`
	ReceiptNo int64           `json:"receipt_no"`
	CompanyID int64           `json:"company_id"`
	Table     string          `json:"table,omitempty"`
	Customer  string          `json:"customer,omitempty"`
	Lines     []order.Line    `json:"items"`
	Total     decimal.Decimal `json:"total"`
	Paid      decimal.Decimal `json:"paid"`
	Change    decimal.Decimal `json:"change"`
	Note      string          `json:"note,omitempty"`
	Reprint   bool            `json:"reprint"`
	PrintedAt time.Time       `json:"printed_at"`
}

// NewTicket renders o. Change is never negative.
func NewTicket(o order.Order, reprint bool) Ticket {
	paid := o.Paid()
	change := paid.Sub(o.Total)
	if change.IsNegative() {
		change = decimal.Zero
	}
	return Ticket{
		OrderID:   o.ID,
		ReceiptNo: o.ReceiptNo,
		CompanyID: o.CompanyID,
		Table:     o.Table,
		Customer:  o.Customer,
		Lines:     o.Lines,
		Total:     o.Total,
		Paid:      paid,
		Change:    change,
		Note:      o.Note,
		Reprint:   reprint,
		PrintedAt: time.Now().UTC(),
	}
}

// LogPrinter writes tickets to the service log. It is the default driver
// when no broker is configured.
type LogPrinter struct {
	log *logger.Logger
}

func NewLogPrinter(log *logger.Logger) *LogPrinter {
	return &LogPrinter{log: log}
}

func (p *LogPrinter) Print(ctx context.Context, t Ticket) error {
	p.log.Info(ctx, "receipt printed",
		"order_id", t.OrderID,
		"receipt_no", t.ReceiptNo,
		"items", len(t.Lines),
		"total", t.Total.String(),
		"reprint", t.Reprint,
	)
	return nil
}

func (p *LogPrinter) Close() error { return nil }

// inject copies the trace context of ctx into a broker header carrier.
func inject(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// Package pos turns point-of-sale requests into persisted orders. Stock for
// every recipe ingredient is reserved before the order is saved, so an
// order that exists always has its ingredients deducted.
package pos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"backoffice/pkg/logger"
	"backoffice/pkg/menu"
	"backoffice/pkg/metrics"
	"backoffice/pkg/order"
	"backoffice/pkg/otel"
	"backoffice/pkg/receipt"
	"backoffice/pkg/reservation"
	"backoffice/pkg/stock"
)

var (
	// ErrInvalidOrder wraps every request validation failure.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrMenuItemUnavailable is returned for unknown or inactive menu items
	// and for items whose recipe points at another company's stock.
	ErrMenuItemUnavailable = errors.New("menu item unavailable")
	// ErrOrderSettled is returned when paying an order that is already paid.
	ErrOrderSettled = errors.New("order already paid")
)

// Ingredients looks up the stock records recipes refer to.
type Ingredients interface {
	Get(ctx context.Context, id string) (stock.Ingredient, error)
}

// Reserver is the stock reservation capability PlaceOrder depends on.
type Reserver interface {
	Reserve(ctx context.Context, req *stock.Requirements) reservation.Outcome
	Release(ctx context.Context, req *stock.Requirements)
}

// LineRequest asks for Quantity units of a menu item. A zero quantity
// means one.
type LineRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int    `json:"quantity"`
}

// OrderRequest is a new order as entered at the till.
type OrderRequest struct {
	CompanyID int64         `json:"company_id"`
	Table     string        `json:"table,omitempty"`
	Customer  string        `json:"customer,omitempty"`
	Note      string        `json:"note,omitempty"`
	Items     []LineRequest `json:"items"`
}

// PaymentRequest is money taken together with the order.
type PaymentRequest struct {
	Method  string            `json:"method"`
	Amount  decimal.Decimal   `json:"amount" swaggertype:"number"`
	Details map[string]string `json:"details,omitempty"`
}

// Service places orders.
type Service struct {
	menu        menu.Repository
	orders      order.Repository
	ingredients Ingredients
	stock       Reserver
	printer     receipt.Printer
	log         *logger.Logger
	metrics     *metrics.Metrics
	timeout     time.Duration
	now         func() time.Time
	newID       func() string

	// payMu serializes read-modify-write of order payments.
	payMu sync.Mutex
}

// New creates a Service. timeout bounds each stock reservation; zero means
// the caller's context alone. m may be nil.
func New(menuRepo menu.Repository, orders order.Repository, ingredients Ingredients, reserver Reserver,
	printer receipt.Printer, log *logger.Logger, m *metrics.Metrics, timeout time.Duration) *Service {
	return &Service{
		menu:        menuRepo,
		orders:      orders,
		ingredients: ingredients,
		stock:       reserver,
		printer:     printer,
		log:         log,
		metrics:     m,
		timeout:     timeout,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

// PlaceOrder validates req, reserves the ingredients it consumes and saves
// the order. pay is optional; the order is marked paid when it covers the
// total. Stock failures are returned as *reservation.InsufficientStockError
// or *reservation.StoreError and nothing is saved.
func (s *Service) PlaceOrder(ctx context.Context, req OrderRequest, pay *PaymentRequest) (*order.Order, error) {
	ctx, span := otel.AddSpan(ctx, "pos.PlaceOrder",
		attribute.Int64("company_id", req.CompanyID),
		attribute.Int("items", len(req.Items)),
		attribute.Bool("with_payment", pay != nil))
	defer span.End()

	if err := validate(req, pay); err != nil {
		return nil, err
	}

	lines, needs, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	rctx, cancel := s.reservationContext(ctx)
	outcome := s.stock.Reserve(rctx, needs)
	cancel()
	if err := outcome.AsError(); err != nil {
		return nil, err
	}

	o := &order.Order{
		ID:        s.newID(),
		CompanyID: req.CompanyID,
		Table:     req.Table,
		Customer:  req.Customer,
		Lines:     lines,
		Total:     order.ComputeTotal(lines),
		Note:      req.Note,
		Status:    order.StatusOpen,
		Payments:  []order.Payment{},
		CreatedAt: s.now(),
	}
	if pay != nil {
		o.Payments = append(o.Payments, order.Payment{
			Method:     pay.Method,
			Amount:     pay.Amount,
			Details:    pay.Details,
			RecordedAt: o.CreatedAt,
		})
		if o.Paid().GreaterThanOrEqual(o.Total) {
			o.Status = order.StatusPaid
		}
	}

	if err := s.orders.Create(ctx, o); err != nil {
		s.log.Error(ctx, "saving order failed, releasing reserved stock", "error", err)
		s.stock.Release(ctx, needs)
		return nil, fmt.Errorf("save order: %w", err)
	}
	span.SetAttributes(attribute.String("order_id", o.ID))
	s.log.Info(ctx, "order placed", "order_id", o.ID, "receipt_no", o.ReceiptNo,
		"total", o.Total.String(), "status", string(o.Status))

	if err := s.printer.Print(ctx, receipt.NewTicket(*o, false)); err != nil {
		s.metrics.PrintFailed()
		s.log.Warn(ctx, "receipt printing failed", "order_id", o.ID, "error", err)
	}
	return o, nil
}

// Reprint sends an existing order to the printer again.
func (s *Service) Reprint(ctx context.Context, id string) (order.Order, error) {
	ctx, span := otel.AddSpan(ctx, "pos.Reprint", attribute.String("order_id", id))
	defer span.End()

	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	if err := s.printer.Print(ctx, receipt.NewTicket(o, true)); err != nil {
		s.metrics.PrintFailed()
		return order.Order{}, fmt.Errorf("print receipt: %w", err)
	}
	return o, nil
}

// AddPayment records pay against an unpaid order and marks it paid once the
// payments cover the total.
func (s *Service) AddPayment(ctx context.Context, id string, pay PaymentRequest) (order.Order, error) {
	ctx, span := otel.AddSpan(ctx, "pos.AddPayment", attribute.String("order_id", id))
	defer span.End()

	if err := validatePayment(pay); err != nil {
		return order.Order{}, err
	}

	s.payMu.Lock()
	defer s.payMu.Unlock()

	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	if o.Status == order.StatusPaid {
		return order.Order{}, ErrOrderSettled
	}
	o.Payments = append(o.Payments, order.Payment{
		Method:     pay.Method,
		Amount:     pay.Amount,
		Details:    pay.Details,
		RecordedAt: s.now(),
	})
	if o.Paid().GreaterThanOrEqual(o.Total) {
		o.Status = order.StatusPaid
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return order.Order{}, fmt.Errorf("update order: %w", err)
	}
	s.log.Info(ctx, "payment recorded", "order_id", o.ID, "amount", pay.Amount.String(),
		"paid", o.Paid().String(), "status", string(o.Status))
	return o, nil
}

func validate(req OrderRequest, pay *PaymentRequest) error {
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidOrder)
	}
	for _, it := range req.Items {
		if it.MenuItemID == "" {
			return fmt.Errorf("%w: item without menu_item_id", ErrInvalidOrder)
		}
		if it.Quantity < 0 {
			return fmt.Errorf("%w: quantity of %s must be at least 1", ErrInvalidOrder, it.MenuItemID)
		}
	}
	if pay != nil {
		return validatePayment(*pay)
	}
	return nil
}

func validatePayment(pay PaymentRequest) error {
	if pay.Method == "" {
		return fmt.Errorf("%w: payment method is required", ErrInvalidOrder)
	}
	if pay.Amount.IsNegative() {
		return fmt.Errorf("%w: payment amount must not be negative", ErrInvalidOrder)
	}
	return nil
}

// resolve prices the lines and sums what their recipes consume. Every
// recipe ingredient that exists must belong to the ordering company;
// missing ones are left for the reservation to report as shortfalls.
func (s *Service) resolve(ctx context.Context, req OrderRequest) ([]order.Line, *stock.Requirements, error) {
	ids := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.MenuItemID)
	}
	items, err := s.menu.GetMany(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load menu items: %w", err)
	}

	lines := make([]order.Line, 0, len(req.Items))
	needs := stock.NewRequirements()
	owners := make(map[string]int64)
	for _, it := range req.Items {
		item, ok := items[it.MenuItemID]
		if !ok || !item.Active || item.CompanyID != req.CompanyID {
			return nil, nil, fmt.Errorf("%w: %s", ErrMenuItemUnavailable, it.MenuItemID)
		}
		if err := s.checkRecipe(ctx, item, owners); err != nil {
			return nil, nil, err
		}
		q := it.Quantity
		if q == 0 {
			q = 1
		}
		lines = append(lines, order.Line{MenuItemID: item.ID, Name: item.Name, Price: item.Price, Quantity: q})
		for _, r := range item.Recipe {
			if err := needs.Add(r.IngredientID, r.Quantity.Mul(decimal.NewFromInt(int64(q)))); err != nil {
				return nil, nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
			}
		}
	}
	return lines, needs, nil
}

func (s *Service) checkRecipe(ctx context.Context, item menu.Item, owners map[string]int64) error {
	for _, r := range item.Recipe {
		owner, seen := owners[r.IngredientID]
		if !seen {
			ing, err := s.ingredients.Get(ctx, r.IngredientID)
			switch {
			case errors.Is(err, stock.ErrNotFound):
				owner = item.CompanyID
			case err != nil:
				return &reservation.StoreError{Phase: "lookup", IngredientID: r.IngredientID, Err: err}
			default:
				owner = ing.CompanyID
			}
			owners[r.IngredientID] = owner
		}
		if owner != item.CompanyID {
			return fmt.Errorf("%w: %s uses ingredient %s of another company", ErrMenuItemUnavailable, item.ID, r.IngredientID)
		}
	}
	return nil
}

func (s *Service) reservationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Package reservation deducts the ingredients an order consumes from shared
// stock, all or nothing, using per-ingredient conditional writes and
// compensating increments instead of a multi-document transaction.
//
// A reservation runs in three steps. A read-only pre-check collects every
// shortfall so callers get a complete report without any mutation. The
// reservation pass then issues one conditional decrement per ingredient in
// ascending id order, recording each applied write. On the first refused or
// failed write the recorded writes are undone in the order they were made.
//
// The conditional decrement is the authoritative guard: stock may change
// between the pre-check and the write, in which case only the ingredient
// that lost the race is reported.
package reservation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"backoffice/pkg/logger"
	"backoffice/pkg/metrics"
	"backoffice/pkg/otel"
	"backoffice/pkg/stock"
)

// Status tags an Outcome.
type Status int

const (
	Reserved Status = iota
	InsufficientStock
	StoreFailed
)

func (s Status) String() string {
	switch s {
	case Reserved:
		return "reserved"
	case InsufficientStock:
		return "insufficient_stock"
	case StoreFailed:
		return "store_failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of one reservation attempt. Shortfalls is set for
// InsufficientStock and Err for StoreFailed.
type Outcome struct {
	Status     Status
	Shortfalls []stock.Shortfall
	Err        error
}

// AsError converts the outcome to an error: nil, *InsufficientStockError or
// *StoreError.
func (o Outcome) AsError() error {
	switch o.Status {
	case Reserved:
		return nil
	case InsufficientStock:
		return &InsufficientStockError{Shortfalls: o.Shortfalls}
	default:
		return o.Err
	}
}

// InsufficientStockError lists every ingredient that could not be covered.
type InsufficientStockError struct {
	Shortfalls []stock.Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s (needed %s, available %s)", s.IngredientID, s.Needed, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

// StoreError is an infrastructure failure while talking to the stock store.
type StoreError struct {
	Phase        string
	IngredientID string
	Err          error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("stock store failure during %s of %s: %v", e.Phase, e.IngredientID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Engine reserves stock against a stock.Store.
type Engine struct {
	store           stock.Store
	log             *logger.Logger
	metrics         *metrics.Metrics
	rollbackTimeout time.Duration
}

// New creates an Engine. m may be nil.
func New(store stock.Store, log *logger.Logger, m *metrics.Metrics, rollbackTimeout time.Duration) *Engine {
	return &Engine{store: store, log: log, metrics: m, rollbackTimeout: rollbackTimeout}
}

// Reserve decrements every requirement or none of them. It never panics on
// store failures; every exit is one of the three outcome statuses.
func (e *Engine) Reserve(ctx context.Context, req *stock.Requirements) (out Outcome) {
	start := time.Now()
	ctx, span := otel.AddSpan(ctx, "reservation.Reserve", attribute.Int("ingredients", req.Len()))
	defer func() {
		span.SetAttributes(attribute.String("outcome", out.Status.String()))
		if out.Status == StoreFailed {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, "stock store failure")
		}
		span.End()
		e.metrics.ObserveReservation(out.Status.String(), time.Since(start).Seconds())
	}()

	reqs := req.Sorted()
	if len(reqs) == 0 {
		return Outcome{Status: Reserved}
	}

	var shortfalls []stock.Shortfall
	for _, r := range reqs {
		available, err := e.store.ReadQuantity(ctx, r.IngredientID)
		if err != nil {
			return e.storeFailed(ctx, "pre-check", r.IngredientID, err)
		}
		if available.LessThan(r.Quantity) {
			shortfalls = append(shortfalls, stock.Shortfall{IngredientID: r.IngredientID, Needed: r.Quantity, Available: available})
		}
	}
	if len(shortfalls) > 0 {
		e.log.Info(ctx, "stock reservation refused", "shortfalls", len(shortfalls))
		return Outcome{Status: InsufficientStock, Shortfalls: shortfalls}
	}

	var applied []stock.Requirement
	for _, r := range reqs {
		ok, err := e.store.ConditionalDecrement(ctx, r.IngredientID, r.Quantity)
		if err != nil {
			failed := e.storeFailed(ctx, "reserve", r.IngredientID, err)
			e.compensate(ctx, applied)
			return failed
		}
		if !ok {
			lost := e.lostRace(ctx, r)
			e.compensate(ctx, applied)
			return Outcome{Status: InsufficientStock, Shortfalls: []stock.Shortfall{lost}}
		}
		applied = append(applied, r)
	}

	e.log.Debug(ctx, "stock reserved", "ingredients", len(applied))
	return Outcome{Status: Reserved}
}

// Release returns previously reserved stock, e.g. when the order that
// reserved it could not be saved. Failures are logged as reconciliation
// issues.
func (e *Engine) Release(ctx context.Context, req *stock.Requirements) {
	e.compensate(ctx, req.Sorted())
}

func (e *Engine) storeFailed(ctx context.Context, phase, id string, err error) Outcome {
	serr := &StoreError{Phase: phase, IngredientID: id, Err: err}
	e.log.Error(ctx, "stock store failure", "phase", phase, "ingredient_id", id, "error", err)
	return Outcome{Status: StoreFailed, Err: serr}
}

// lostRace re-reads an ingredient whose conditional write was refused after
// the pre-check passed.
func (e *Engine) lostRace(ctx context.Context, r stock.Requirement) stock.Shortfall {
	rctx, cancel := e.detached(ctx)
	defer cancel()

	available, err := e.store.ReadQuantity(rctx, r.IngredientID)
	if err != nil {
		e.log.Warn(ctx, "re-reading contended ingredient", "ingredient_id", r.IngredientID, "error", err)
		available = decimal.Zero
	}
	e.log.Info(ctx, "stock reservation lost race", "ingredient_id", r.IngredientID,
		"needed", r.Quantity.String(), "available", available.String())
	return stock.Shortfall{IngredientID: r.IngredientID, Needed: r.Quantity, Available: available}
}

// compensate undoes applied decrements in the order they were made. It runs
// detached from ctx cancellation so a caller timeout cannot skip it.
func (e *Engine) compensate(ctx context.Context, applied []stock.Requirement) {
	if len(applied) == 0 {
		return
	}
	rctx, cancel := e.detached(ctx)
	defer cancel()

	for _, r := range applied {
		if err := e.store.Increment(rctx, r.IngredientID, r.Quantity); err != nil {
			e.metrics.ReconcileFailed()
			e.log.Error(ctx, "stock reconciliation required: compensating increment failed",
				"ingredient_id", r.IngredientID, "amount", r.Quantity.String(), "error", err)
		}
	}
	e.log.Info(ctx, "stock reservation compensated", "ingredients", len(applied))
}

func (e *Engine) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.rollbackTimeout)
}

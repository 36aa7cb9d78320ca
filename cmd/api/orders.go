package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"backoffice/pkg/order"
	"backoffice/pkg/otel"
	"backoffice/pkg/pos"
	"backoffice/pkg/reservation"
)

// orderPayRequest is an order together with the payment taken for it.
type orderPayRequest struct {
	Order   pos.OrderRequest    `json:"order"`
	Payment *pos.PaymentRequest `json:"payment"`
}

// createOrderHandler places an order and reserves its ingredients.
// @Summary Create order
// @Accept json
// @Produce json
// @Param order body pos.OrderRequest true "Order"
// @Success 201 {object} order.Order
// @Failure 400 {object} errorResponse
// @Failure 409 {object} errorResponse "insufficient_stock with shortfall details"
// @Failure 422 {object} errorResponse
// @Failure 503 {object} errorResponse "stock_update_failed"
// @Security ApiKeyAuth
// @Router /pos/orders [post]
func createOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "createOrderHandler")
	defer span.End()

	var req pos.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	placeOrder(w, r.WithContext(ctx), req, nil)
}

// orderPayHandler places an order and records its payment in one step.
// @Summary Create order and pay
// @Accept json
// @Produce json
// @Param order body orderPayRequest true "Order and payment"
// @Success 201 {object} order.Order
// @Failure 400 {object} errorResponse
// @Failure 409 {object} errorResponse "insufficient_stock with shortfall details"
// @Failure 422 {object} errorResponse
// @Failure 503 {object} errorResponse "stock_update_failed"
// @Security ApiKeyAuth
// @Router /pos/order-pay [post]
func orderPayHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "orderPayHandler")
	defer span.End()

	var req orderPayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Order.Items) == 0 {
		writeError(w, http.StatusBadRequest, "order payload required")
		return
	}
	placeOrder(w, r.WithContext(ctx), req.Order, req.Payment)
}

func placeOrder(w http.ResponseWriter, r *http.Request, req pos.OrderRequest, pay *pos.PaymentRequest) {
	ctx := r.Context()
	if req.CompanyID == 0 {
		req.CompanyID = defaultCompanyID
	}
	o, err := service.PlaceOrder(ctx, req, pay)
	if err != nil {
		var (
			insufficient *reservation.InsufficientStockError
			storeErr     *reservation.StoreError
		)
		switch {
		case errors.As(err, &insufficient):
			writeJSON(w, http.StatusConflict, errorResponse{Error: "insufficient_stock", Details: insufficient.Shortfalls})
		case errors.As(err, &storeErr):
			writeError(w, http.StatusServiceUnavailable, "stock_update_failed")
		case errors.Is(err, pos.ErrInvalidOrder):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, pos.ErrMenuItemUnavailable):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			log.Error(ctx, "place order", "error", err)
			writeError(w, http.StatusInternalServerError, "order_failed")
		}
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// listOrdersHandler lists orders.
// @Summary List orders
// @Produce json
// @Param company_id query int false "Company ID" default(1)
// @Success 200 {array} order.Order
// @Security ApiKeyAuth
// @Router /pos/orders [get]
func listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "listOrdersHandler")
	defer span.End()

	cid, err := companyID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company_id")
		return
	}
	list, err := orders.List(ctx, cid)
	if err != nil {
		log.Error(ctx, "list orders", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []order.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

// getOrderHandler retrieves an order by ID.
// @Summary Get order
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} order.Order
// @Failure 404 {object} errorResponse
// @Security ApiKeyAuth
// @Router /pos/orders/{id} [get]
func getOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "getOrderHandler")
	defer span.End()

	o, err := orders.Get(ctx, mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Error(ctx, "get order", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// printOrderHandler re-sends an order to the receipt printer.
// @Summary Reprint order
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} order.Order
// @Failure 404 {object} errorResponse
// @Failure 502 {object} errorResponse
// @Security ApiKeyAuth
// @Router /pos/orders/{id}/print [post]
func printOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "printOrderHandler")
	defer span.End()

	o, err := service.Reprint(ctx, mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Error(ctx, "reprint order", "error", err)
		writeError(w, http.StatusBadGateway, "print_failed")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// addPaymentHandler records a payment against an open order.
// @Summary Add payment
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param payment body pos.PaymentRequest true "Payment"
// @Success 200 {object} order.Order
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse "order already paid"
// @Security ApiKeyAuth
// @Router /pos/orders/{id}/payments [post]
func addPaymentHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "addPaymentHandler")
	defer span.End()

	var pay pos.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&pay); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, err := service.AddPayment(ctx, mux.Vars(r)["id"], pay)
	if err != nil {
		switch {
		case errors.Is(err, pos.ErrInvalidOrder):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, order.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, pos.ErrOrderSettled):
			writeError(w, http.StatusConflict, err.Error())
		default:
			log.Error(ctx, "add payment", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, o)
}

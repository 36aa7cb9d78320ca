package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"

	"backoffice/pkg/logger"
	"backoffice/pkg/menu"
	menumem "backoffice/pkg/menu/memory"
	"backoffice/pkg/order"
	ordermem "backoffice/pkg/order/memory"
	"backoffice/pkg/pos"
	"backoffice/pkg/receipt"
	"backoffice/pkg/reservation"
	"backoffice/pkg/session"
	"backoffice/pkg/stock"
	stockmem "backoffice/pkg/stock/memory"
)

// brokenStore fails every stock read.
type brokenStore struct {
	*stockmem.Repository
}

func (brokenStore) ReadQuantity(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("connection refused")
}

type testAPI struct {
	router *mux.Router
	cookie *http.Cookie
}

func setup(t *testing.T, store stock.Repository) *testAPI {
	t.Helper()
	decimal.MarshalJSONWithoutQuotes = true
	log = logger.New(io.Discard, logger.LevelDebug, "test", nil)
	tracer = noop.NewTracerProvider().Tracer("test")
	sessions = session.NewMemoryStore()
	if store == nil {
		store = stockmem.New()
	}
	ingredients = store
	counts = stockmem.NewCounts()
	menuRepo = menumem.New()
	orders = ordermem.New()
	engine := reservation.New(ingredients, log, nil, time.Second)
	service = pos.New(menuRepo, orders, ingredients, engine, receipt.NewLogPrinter(log), log, nil, time.Second)

	api := &testAPI{router: newRouter()}
	rec := api.do(t, http.MethodPost, "/login", `{"username":"cashier","password":"x"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected session cookie, got %v", cookies)
	}
	api.cookie = cookies[0]
	return api
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if a.cookie != nil {
		req.AddCookie(a.cookie)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) seed(t *testing.T) {
	t.Helper()
	for _, body := range []string{
		`{"id":"bread","name":"Bread","unit":"pcs","on_hand":10}`,
		`{"id":"beef","name":"Beef","unit":"pcs","on_hand":1}`,
	} {
		if rec := a.do(t, http.MethodPost, "/stock/ingredients", body); rec.Code != http.StatusCreated {
			t.Fatalf("create ingredient: %d %s", rec.Code, rec.Body)
		}
	}
	body := `{"id":"burger","name":"Burger","price":89.9,"recipe":[{"ingredient_id":"bread","quantity":1},{"ingredient_id":"beef","quantity":1}]}`
	if rec := a.do(t, http.MethodPost, "/pos/menu-items", body); rec.Code != http.StatusCreated {
		t.Fatalf("create menu item: %d %s", rec.Code, rec.Body)
	}
}

func TestAuthRequired(t *testing.T) {
	api := setup(t, nil)
	api.cookie = nil
	if rec := api.do(t, http.MethodGet, "/pos/orders", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	api.cookie = &http.Cookie{Name: "session_id", Value: "forged"}
	if rec := api.do(t, http.MethodGet, "/stock/ingredients", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	api := setup(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Request-ID") != "abc" {
		t.Fatalf("unexpected response %d %v", rec.Code, rec.Header())
	}
	rec = api.do(t, http.MethodGet, "/healthz", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected generated request id")
	}
}

func TestIngredientHandlers(t *testing.T) {
	api := setup(t, nil)
	api.seed(t)

	if rec := api.do(t, http.MethodPost, "/stock/ingredients", `{"id":"bread","name":"Bread"}`); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", rec.Code)
	}
	if rec := api.do(t, http.MethodPost, "/stock/ingredients", `{"id":"salt","name":"Salt","on_hand":-1}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative stock, got %d", rec.Code)
	}
	rec := api.do(t, http.MethodPut, "/stock/ingredients/beef", `{"name":"Ground beef","unit":"pcs","on_hand":5,"min_threshold":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body)
	}
	rec = api.do(t, http.MethodGet, "/stock/ingredients/beef", "")
	var got stock.Ingredient
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Name != "Ground beef" || !got.OnHand.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected rename without stock change, got %+v", got)
	}
	rec = api.do(t, http.MethodGet, "/stock/ingredients", "")
	var list []stock.Ingredient
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list) != 2 {
		t.Fatalf("expected 2 ingredients, got %d", len(list))
	}
	rec = api.do(t, http.MethodGet, "/stock/ingredients?below_threshold=true", "")
	list = nil
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list) != 1 || list[0].ID != "beef" {
		t.Fatalf("expected only beef below threshold, got %+v", list)
	}
	if rec := api.do(t, http.MethodGet, "/stock/ingredients?below_threshold=maybe", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := api.do(t, http.MethodDelete, "/stock/ingredients/beef", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, "/stock/ingredients/beef", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMenuHandlers(t *testing.T) {
	api := setup(t, nil)
	api.seed(t)

	if rec := api.do(t, http.MethodPost, "/pos/menu-items", `{"name":"","price":1}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec := api.do(t, http.MethodGet, "/pos/menu-items/burger", "")
	var item menu.Item
	if err := json.NewDecoder(rec.Body).Decode(&item); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !item.Active || len(item.Recipe) != 2 {
		t.Fatalf("unexpected item %+v", item)
	}
	if rec := api.do(t, http.MethodPut, "/pos/menu-items/ghost", `{"name":"Ghost","price":1}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPlaceOrder(t *testing.T) {
	api := setup(t, nil)
	api.seed(t)

	rec := api.do(t, http.MethodPost, "/pos/orders", `{"table":"3","items":[{"menu_item_id":"burger","quantity":1}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: %d %s", rec.Code, rec.Body)
	}
	var placed struct {
		ID        string  `json:"id"`
		ReceiptNo int64   `json:"receipt_no"`
		Total     float64 `json:"total"`
		Status    string  `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&placed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if placed.ReceiptNo != 1 || placed.Total != 89.9 || placed.Status != "open" {
		t.Fatalf("unexpected order %+v", placed)
	}

	rec = api.do(t, http.MethodPost, "/pos/orders", `{"items":[{"menu_item_id":"burger","quantity":2}]}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", rec.Code, rec.Body)
	}
	var refused struct {
		Error   string `json:"error"`
		Details []struct {
			IngredientID string  `json:"ingredient_id"`
			Needed       float64 `json:"needed"`
			Available    float64 `json:"available"`
		} `json:"details"`
	}
	json.NewDecoder(rec.Body).Decode(&refused)
	if refused.Error != "insufficient_stock" || len(refused.Details) != 1 {
		t.Fatalf("unexpected body %+v", refused)
	}
	if d := refused.Details[0]; d.IngredientID != "beef" || d.Needed != 2 || d.Available != 0 {
		t.Fatalf("unexpected shortfall %+v", d)
	}

	if rec := api.do(t, http.MethodPost, "/pos/orders", `{"items":[{"menu_item_id":"pizza"}]}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if rec := api.do(t, http.MethodPost, "/pos/orders", `{"items":`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := api.do(t, http.MethodPost, "/pos/orders", `{"items":[]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	if rec := api.do(t, http.MethodPost, "/pos/orders/"+placed.ID+"/print", ""); rec.Code != http.StatusOK {
		t.Fatalf("reprint: %d", rec.Code)
	}
	if rec := api.do(t, http.MethodPost, "/pos/orders/missing/print", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, "/pos/orders/"+placed.ID, ""); rec.Code != http.StatusOK {
		t.Fatalf("get order: %d", rec.Code)
	}
	rec = api.do(t, http.MethodGet, "/pos/orders", "")
	var list []json.RawMessage
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list) != 1 {
		t.Fatalf("expected 1 order, got %d", len(list))
	}
}

func TestOrderPay(t *testing.T) {
	api := setup(t, nil)
	api.seed(t)

	if rec := api.do(t, http.MethodPost, "/pos/order-pay", `{"payment":{"method":"cash","amount":10}}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without order, got %d", rec.Code)
	}
	rec := api.do(t, http.MethodPost, "/pos/order-pay",
		`{"order":{"items":[{"menu_item_id":"burger"}]},"payment":{"method":"cash","amount":100}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("order-pay: %d %s", rec.Code, rec.Body)
	}
	var placed struct {
		Status   string `json:"status"`
		Payments []struct {
			Method string  `json:"method"`
			Amount float64 `json:"amount"`
		} `json:"payments"`
	}
	json.NewDecoder(rec.Body).Decode(&placed)
	if placed.Status != "paid" || len(placed.Payments) != 1 || placed.Payments[0].Amount != 100 {
		t.Fatalf("unexpected order %+v", placed)
	}
}

func TestPlaceOrderStoreFailure(t *testing.T) {
	api := setup(t, brokenStore{stockmem.New()})
	if rec := api.do(t, http.MethodPost, "/stock/ingredients", `{"id":"water","name":"Water","on_hand":5}`); rec.Code != http.StatusCreated {
		t.Fatalf("create ingredient: %d", rec.Code)
	}
	if rec := api.do(t, http.MethodPost, "/pos/menu-items", `{"id":"soup","name":"Soup","price":5,"recipe":[{"ingredient_id":"water","quantity":1}]}`); rec.Code != http.StatusCreated {
		t.Fatalf("create menu item: %d", rec.Code)
	}
	rec := api.do(t, http.MethodPost, "/pos/orders", `{"items":[{"menu_item_id":"soup"}]}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d %s", rec.Code, rec.Body)
	}
	var body errorResponse
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Error != "stock_update_failed" {
		t.Fatalf("unexpected body %+v", body)
	}
	rec = api.do(t, http.MethodGet, "/pos/orders", "")
	if rec.Body.String() != "[]\n" {
		t.Fatalf("expected no orders, got %s", rec.Body)
	}
}

func TestLogout(t *testing.T) {
	api := setup(t, nil)
	if rec := api.do(t, http.MethodPost, "/logout", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: %d", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, "/pos/orders", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestMenuItemReferences(t *testing.T) {
	api := setup(t, nil)
	api.seed(t)
	if err := ingredients.Create(context.Background(), stock.Ingredient{ID: "lamb", CompanyID: 2, Name: "Lamb", OnHand: decimal.NewFromInt(9)}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	for name, body := range map[string]string{
		"foreign ingredient": `{"name":"Kebab","price":10,"recipe":[{"ingredient_id":"lamb","quantity":1}]}`,
		"missing ingredient": `{"name":"Kebab","price":10,"recipe":[{"ingredient_id":"ghost","quantity":1}]}`,
		"missing category":   `{"name":"Kebab","price":10,"category_id":42}`,
	} {
		if rec := api.do(t, http.MethodPost, "/pos/menu-items", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d %s", name, rec.Code, rec.Body)
		}
	}
	if rec := api.do(t, http.MethodPut, "/pos/menu-items/burger", `{"name":"Burger","price":90,"recipe":[{"ingredient_id":"lamb","quantity":1}]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on update, got %d", rec.Code)
	}
}

func TestCategoryHandlers(t *testing.T) {
	api := setup(t, nil)
	api.seed(t)

	if rec := api.do(t, http.MethodPost, "/pos/categories", `{"name":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec := api.do(t, http.MethodPost, "/pos/categories", `{"name":"Mains"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create category: %d %s", rec.Code, rec.Body)
	}
	var c menu.Category
	json.NewDecoder(rec.Body).Decode(&c)
	if c.ID == 0 || c.CompanyID != defaultCompanyID {
		t.Fatalf("unexpected category %+v", c)
	}

	body := fmt.Sprintf(`{"name":"Burger","price":89.9,"category_id":%d,"recipe":[{"ingredient_id":"bread","quantity":1}]}`, c.ID)
	if rec := api.do(t, http.MethodPut, "/pos/menu-items/burger", body); rec.Code != http.StatusOK {
		t.Fatalf("file burger: %d %s", rec.Code, rec.Body)
	}
	path := fmt.Sprintf("/pos/categories/%d", c.ID)
	if rec := api.do(t, http.MethodPut, path, `{"name":"Burgers"}`); rec.Code != http.StatusOK {
		t.Fatalf("rename: %d", rec.Code)
	}
	rec = api.do(t, http.MethodGet, "/pos/categories", "")
	var list []menu.Category
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list) != 1 || list[0].Name != "Burgers" {
		t.Fatalf("unexpected categories %+v", list)
	}
	if rec := api.do(t, http.MethodDelete, path, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := api.do(t, http.MethodDelete, path, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := api.do(t, http.MethodPut, "/pos/categories/abc", `{"name":"x"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for malformed id, got %d", rec.Code)
	}
	item, _ := menuRepo.Get(context.Background(), "burger")
	if item.CategoryID != nil {
		t.Fatalf("expected burger unfiled, got %d", *item.CategoryID)
	}
}

func TestStockCounts(t *testing.T) {
	api := setup(t, nil)
	api.seed(t)

	rec := api.do(t, http.MethodPost, "/stock/counts", `{"ingredient_id":"bread","counted":7.5,"note":"weekly count"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("count: %d %s", rec.Code, rec.Body)
	}
	var c struct {
		ID        int64   `json:"id"`
		Counted   float64 `json:"counted"`
		Previous  float64 `json:"previous"`
		CountedBy string  `json:"counted_by"`
	}
	json.NewDecoder(rec.Body).Decode(&c)
	if c.ID == 0 || c.Counted != 7.5 || c.Previous != 10 || c.CountedBy != "cashier" {
		t.Fatalf("unexpected count %+v", c)
	}
	if q, _ := ingredients.ReadQuantity(context.Background(), "bread"); !q.Equal(decimal.RequireFromString("7.5")) {
		t.Fatalf("expected 7.5 bread after count, got %s", q)
	}

	if rec := api.do(t, http.MethodPost, "/stock/counts", `{"ingredient_id":"bread","counted":-1}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := api.do(t, http.MethodPost, "/stock/counts", `{"ingredient_id":"ghost","counted":1}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := api.do(t, http.MethodPost, "/stock/counts", `{"ingredient_id":"bread","company_id":2,"counted":1}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another company's ingredient, got %d", rec.Code)
	}

	api.do(t, http.MethodPost, "/stock/counts", `{"ingredient_id":"beef","counted":4}`)
	rec = api.do(t, http.MethodGet, "/stock/counts?ingredient_id=bread", "")
	var history []stock.Count
	json.NewDecoder(rec.Body).Decode(&history)
	if len(history) != 1 || history[0].Note != "weekly count" {
		t.Fatalf("unexpected history %+v", history)
	}
	rec = api.do(t, http.MethodGet, "/stock/counts", "")
	history = nil
	json.NewDecoder(rec.Body).Decode(&history)
	if len(history) != 2 {
		t.Fatalf("expected 2 counts, got %d", len(history))
	}
}

func TestAddPayment(t *testing.T) {
	api := setup(t, nil)
	api.seed(t)

	rec := api.do(t, http.MethodPost, "/pos/orders", `{"items":[{"menu_item_id":"burger"}]}`)
	var placed order.Order
	json.NewDecoder(rec.Body).Decode(&placed)
	path := "/pos/orders/" + placed.ID + "/payments"

	if rec := api.do(t, http.MethodPost, path, `{"method":"","amount":10}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = api.do(t, http.MethodPost, path, `{"method":"card","amount":89.9}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("pay: %d %s", rec.Code, rec.Body)
	}
	var paid order.Order
	json.NewDecoder(rec.Body).Decode(&paid)
	if paid.Status != order.StatusPaid || len(paid.Payments) != 1 {
		t.Fatalf("unexpected order %+v", paid)
	}
	if rec := api.do(t, http.MethodPost, path, `{"method":"cash","amount":1}`); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if rec := api.do(t, http.MethodPost, "/pos/orders/missing/payments", `{"method":"cash","amount":1}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

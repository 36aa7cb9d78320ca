package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"backoffice/docs"
	"backoffice/pkg/config"
	"backoffice/pkg/logger"
	"backoffice/pkg/menu"
	"backoffice/pkg/metrics"
	"backoffice/pkg/order"
	"backoffice/pkg/otel"
	"backoffice/pkg/pos"
	"backoffice/pkg/reservation"
	"backoffice/pkg/session"
	"backoffice/pkg/stock"
)

const shutdownTimeout = 10 * time.Second

var (
	sessions    session.Store
	ingredients stock.Repository
	counts      stock.CountRepository
	menuRepo    menu.Repository
	orders      order.Repository
	service     *pos.Service
	log         *logger.Logger
	tracer      trace.Tracer
)

// @title Back-office POS API
// @version 1.0
// @description Stock, menu and point-of-sale orders for small businesses
// @host localhost:8443
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in cookie
// @name session_id
func main() {
	if err := run(); err != nil {
		if log != nil {
			log.Error(context.Background(), "service stopped", "error", err)
			log.Sync()
		}
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	log = logger.New(os.Stdout, logger.ParseLevel(cfg.LogLevel), cfg.ServiceName, otel.GetTraceID)
	defer log.Sync()

	// Quantities and prices go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	tp, shutdownTracing, err := otel.InitTracing(log, otel.Config{
		ServiceName: cfg.ServiceName,
		Host:        cfg.Tracing.Host,
		Probability: cfg.Tracing.Probability,
	})
	if err != nil {
		return err
	}
	tracer = tp.Tracer(cfg.ServiceName)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ctx := context.Background()
	var closers []func() error

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		if db, err = sql.Open("postgres", cfg.DatabaseURL); err != nil {
			return err
		}
		closers = append(closers, db.Close)
	}
	redisClient := openRedis(cfg)
	if redisClient != nil {
		closers = append(closers, redisClient.Close)
	}

	ingredients, err = openStock(ctx, cfg, db, redisClient)
	if err != nil {
		return err
	}
	if menuRepo, orders, counts, err = openCatalog(ctx, db); err != nil {
		return err
	}
	sessions = openSessions(redisClient)

	printer, err := openPrinter(cfg, log)
	if err != nil {
		return err
	}
	closers = append(closers, printer.Close)

	engine := reservation.New(ingredients, log, m, cfg.Reservation.RollbackTimeout)
	service = pos.New(menuRepo, orders, ingredients, engine, printer, log, m, cfg.Reservation.Timeout)

	docs.SwaggerInfo.Host = hostFor(cfg.HTTP.Addr)
	r := newRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		log.Info(gctx, "listening", "addr", cfg.HTTP.Addr, "stock_driver", cfg.Stock.Driver, "receipt_driver", cfg.Receipt.Driver)
		var err error
		if cfg.HTTP.CertFile != "" {
			err = srv.ListenAndServeTLS(cfg.HTTP.CertFile, cfg.HTTP.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(sctx); err != nil {
			errs = append(errs, err)
		}
		if err := shutdownTracing(sctx); err != nil {
			errs = append(errs, err)
		}
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func newRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, traceMiddleware)
	r.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/login", loginHandler).Methods(http.MethodPost)
	r.HandleFunc("/logout", logoutHandler).Methods(http.MethodPost)

	st := r.PathPrefix("/stock/ingredients").Subrouter()
	st.Use(authMiddleware)
	st.HandleFunc("", listIngredientsHandler).Methods(http.MethodGet)
	st.HandleFunc("", createIngredientHandler).Methods(http.MethodPost)
	st.HandleFunc("/{id}", getIngredientHandler).Methods(http.MethodGet)
	st.HandleFunc("/{id}", updateIngredientHandler).Methods(http.MethodPut)
	st.HandleFunc("/{id}", deleteIngredientHandler).Methods(http.MethodDelete)

	sc := r.PathPrefix("/stock/counts").Subrouter()
	sc.Use(authMiddleware)
	sc.HandleFunc("", listCountsHandler).Methods(http.MethodGet)
	sc.HandleFunc("", createCountHandler).Methods(http.MethodPost)

	p := r.PathPrefix("/pos").Subrouter()
	p.Use(authMiddleware)
	p.HandleFunc("/menu-items", listMenuItemsHandler).Methods(http.MethodGet)
	p.HandleFunc("/menu-items", createMenuItemHandler).Methods(http.MethodPost)
	p.HandleFunc("/menu-items/{id}", getMenuItemHandler).Methods(http.MethodGet)
	p.HandleFunc("/menu-items/{id}", updateMenuItemHandler).Methods(http.MethodPut)
	p.HandleFunc("/menu-items/{id}", deleteMenuItemHandler).Methods(http.MethodDelete)
	p.HandleFunc("/categories", listCategoriesHandler).Methods(http.MethodGet)
	p.HandleFunc("/categories", createCategoryHandler).Methods(http.MethodPost)
	p.HandleFunc("/categories/{id}", updateCategoryHandler).Methods(http.MethodPut)
	p.HandleFunc("/categories/{id}", deleteCategoryHandler).Methods(http.MethodDelete)
	p.HandleFunc("/orders", createOrderHandler).Methods(http.MethodPost)
	p.HandleFunc("/orders", listOrdersHandler).Methods(http.MethodGet)
	p.HandleFunc("/orders/{id}", getOrderHandler).Methods(http.MethodGet)
	p.HandleFunc("/orders/{id}/print", printOrderHandler).Methods(http.MethodPost)
	p.HandleFunc("/orders/{id}/payments", addPaymentHandler).Methods(http.MethodPost)
	p.HandleFunc("/order-pay", orderPayHandler).Methods(http.MethodPost)
	return r
}

// healthHandler reports liveness.
// @Summary Health check
// @Produce json
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

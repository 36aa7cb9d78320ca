package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"backoffice/pkg/config"
	"backoffice/pkg/logger"
	"backoffice/pkg/menu"
	menumem "backoffice/pkg/menu/memory"
	menupg "backoffice/pkg/menu/postgres"
	"backoffice/pkg/order"
	ordermem "backoffice/pkg/order/memory"
	orderpg "backoffice/pkg/order/postgres"
	"backoffice/pkg/receipt"
	"backoffice/pkg/session"
	"backoffice/pkg/stock"
	stockmem "backoffice/pkg/stock/memory"
	stockmysql "backoffice/pkg/stock/mysql"
	stockpg "backoffice/pkg/stock/postgres"
	stockredis "backoffice/pkg/stock/redis"
)

func openRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
}

// openStock returns the ingredient store named by stock.driver.
func openStock(ctx context.Context, cfg config.Config, db *sql.DB, rdb *redis.Client) (stock.Repository, error) {
	switch cfg.Stock.Driver {
	case "postgres":
		repo := stockpg.New(db)
		return repo, repo.Migrate(ctx)
	case "mysql":
		gdb, err := stockmysql.Open(cfg.Stock.MySQLDSN)
		if err != nil {
			return nil, err
		}
		repo := stockmysql.New(gdb)
		return repo, repo.Migrate(ctx)
	case "redis":
		return stockredis.New(rdb), nil
	case "memory":
		return stockmem.New(), nil
	default:
		return nil, fmt.Errorf("unknown stock driver %q", cfg.Stock.Driver)
	}
}

// openCatalog keeps menu items, orders and the stock count history in
// Postgres when a database is configured and in memory otherwise.
func openCatalog(ctx context.Context, db *sql.DB) (menu.Repository, order.Repository, stock.CountRepository, error) {
	if db == nil {
		return menumem.New(), ordermem.New(), stockmem.NewCounts(), nil
	}
	m := menupg.New(db)
	if err := m.Migrate(ctx); err != nil {
		return nil, nil, nil, err
	}
	o := orderpg.New(db)
	if err := o.Migrate(ctx); err != nil {
		return nil, nil, nil, err
	}
	c := stockpg.NewCounts(db)
	if err := c.Migrate(ctx); err != nil {
		return nil, nil, nil, err
	}
	return m, o, c, nil
}

func openSessions(rdb *redis.Client) session.Store {
	if rdb == nil {
		return session.NewMemoryStore()
	}
	return session.NewRedisStore(rdb)
}

func openPrinter(cfg config.Config, log *logger.Logger) (receipt.Printer, error) {
	switch cfg.Receipt.Driver {
	case "kafka":
		return receipt.NewKafkaPrinter(receipt.NewKafkaWriter(cfg.Receipt.KafkaBrokers, cfg.Receipt.KafkaTopic)), nil
	case "amqp":
		conn, ch, err := receipt.SetupConn(cfg.Receipt.AMQPURL)
		if err != nil {
			return nil, err
		}
		return receipt.NewAMQPPrinter(conn, ch), nil
	case "log":
		return receipt.NewLogPrinter(log), nil
	default:
		return nil, fmt.Errorf("unknown receipt driver %q", cfg.Receipt.Driver)
	}
}

// hostFor turns a listen address into the host shown in the API docs.
func hostFor(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

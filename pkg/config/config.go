// Package config loads service configuration from an optional YAML file and
// the environment. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceName string `yaml:"service_name"`
	LogLevel    string `yaml:"log_level"`

	HTTP struct {
		Addr     string `yaml:"addr"`
		CertFile string `yaml:"cert_file"`
		KeyFile  string `yaml:"key_file"`
	} `yaml:"http"`

	DatabaseURL string `yaml:"database_url"`
	RedisAddr   string `yaml:"redis_addr"`

	Stock struct {
		// Driver is one of memory, postgres, mysql, redis.
		Driver   string `yaml:"driver"`
		MySQLDSN string `yaml:"mysql_dsn"`
	} `yaml:"stock"`

	Reservation struct {
		Timeout         time.Duration `yaml:"timeout"`
		RollbackTimeout time.Duration `yaml:"rollback_timeout"`
	} `yaml:"reservation"`

	Receipt struct {
		// Driver is one of log, kafka, amqp.
		Driver       string   `yaml:"driver"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
		KafkaTopic   string   `yaml:"kafka_topic"`
		AMQPURL      string   `yaml:"amqp_url"`
	} `yaml:"receipt"`

	Tracing struct {
		Host        string  `yaml:"host"`
		Probability float64 `yaml:"probability"`
	} `yaml:"tracing"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	var c Config
	c.ServiceName = "backoffice"
	c.LogLevel = "info"
	c.HTTP.Addr = ":8443"
	c.Stock.Driver = "memory"
	c.Reservation.Timeout = 5 * time.Second
	c.Reservation.RollbackTimeout = 10 * time.Second
	c.Receipt.Driver = "log"
	c.Receipt.KafkaTopic = "receipts"
	c.Tracing.Probability = 1.0
	return c
}

// Load reads path (if non-empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

func (c *Config) applyEnv() error {
	c.ServiceName = getEnv("SERVICE_NAME", c.ServiceName)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.CertFile = getEnv("TLS_CERT_FILE", c.HTTP.CertFile)
	c.HTTP.KeyFile = getEnv("TLS_KEY_FILE", c.HTTP.KeyFile)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.Stock.Driver = getEnv("STOCK_DRIVER", c.Stock.Driver)
	c.Stock.MySQLDSN = getEnv("MYSQL_DSN", c.Stock.MySQLDSN)
	c.Receipt.Driver = getEnv("RECEIPT_DRIVER", c.Receipt.Driver)
	c.Receipt.KafkaTopic = getEnv("KAFKA_RECEIPT_TOPIC", c.Receipt.KafkaTopic)
	c.Receipt.AMQPURL = getEnv("AMQP_URL", c.Receipt.AMQPURL)
	c.Tracing.Host = getEnv("OTEL_HOST", c.Tracing.Host)

	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		c.Receipt.KafkaBrokers = strings.Split(v, ",")
	}

	var err error
	if c.Reservation.Timeout, err = getDuration("RESERVATION_TIMEOUT", c.Reservation.Timeout); err != nil {
		return err
	}
	if c.Reservation.RollbackTimeout, err = getDuration("ROLLBACK_TIMEOUT", c.Reservation.RollbackTimeout); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("OTEL_SAMPLE_PROBABILITY"); ok {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("OTEL_SAMPLE_PROBABILITY: %w", err)
		}
		c.Tracing.Probability = p
	}
	return nil
}

// Validate checks driver names and the dependencies each driver needs.
func (c Config) Validate() error {
	switch c.Stock.Driver {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("stock driver postgres requires DATABASE_URL")
		}
	case "mysql":
		if c.Stock.MySQLDSN == "" {
			return fmt.Errorf("stock driver mysql requires MYSQL_DSN")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("stock driver redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown stock driver %q", c.Stock.Driver)
	}

	switch c.Receipt.Driver {
	case "log":
	case "kafka":
		if len(c.Receipt.KafkaBrokers) == 0 {
			return fmt.Errorf("receipt driver kafka requires KAFKA_BROKERS")
		}
	case "amqp":
		if c.Receipt.AMQPURL == "" {
			return fmt.Errorf("receipt driver amqp requires AMQP_URL")
		}
	default:
		return fmt.Errorf("unknown receipt driver %q", c.Receipt.Driver)
	}

	if c.Reservation.Timeout <= 0 || c.Reservation.RollbackTimeout <= 0 {
		return fmt.Errorf("reservation timeouts must be positive")
	}
	if c.Tracing.Probability < 0 || c.Tracing.Probability > 1 {
		return fmt.Errorf("tracing probability must be within [0,1], got %v", c.Tracing.Probability)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type DBConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	// AutoMigrate applies the bundled schema at startup.
	AutoMigrate bool
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Redis-backed features (idempotency, rate limit, events) are disabled when Addr is empty.
	IdempotencyTTL time.Duration
	RateLimit      int
	RateWindow     time.Duration
	RateBlock      time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// PricingConfig holds fee percentages and card prices. Every value defaults to
// zero: product owners supply them explicitly.
type PricingConfig struct {
	DepositFeePercent  decimal.Decimal
	WithdrawFeePercent decimal.Decimal
	SendFeePercent     decimal.Decimal
	ExchangeFeePercent decimal.Decimal
	CardPriceVirtual   decimal.Decimal
	CardPricePhysical  decimal.Decimal
}

type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
	Auth    AuthConfig
	Pricing PricingConfig
	LogDir  string
}

// Load reads config.env when present and then the process environment.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	dbCfg, err := LoadConfigDB()
	if err != nil {
		return nil, err
	}

	p := &parser{}
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		DB: *dbCfg,
		Redis: RedisConfig{
			Addr:           os.Getenv("REDIS_ADDR"),
			Password:       os.Getenv("REDIS_PASSWORD"),
			DB:             p.int("REDIS_DB", 0),
			IdempotencyTTL: p.duration("IDEMPOTENCY_TTL", 24*time.Hour),
			RateLimit:      p.int("RATE_LIMIT", 60),
			RateWindow:     p.duration("RATE_WINDOW", time.Minute),
			RateBlock:      p.duration("RATE_BLOCK", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_TOPIC", "wallet.activity"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			Issuer:    os.Getenv("JWT_ISSUER"),
		},
		Pricing: PricingConfig{
			DepositFeePercent:  p.decimal("DEPOSIT_FEE_PERCENT"),
			WithdrawFeePercent: p.decimal("WITHDRAW_FEE_PERCENT"),
			SendFeePercent:     p.decimal("SEND_FEE_PERCENT"),
			ExchangeFeePercent: p.decimal("EXCHANGE_FEE_PERCENT"),
			CardPriceVirtual:   p.decimal("CARD_PRICE_VIRTUAL"),
			CardPricePhysical:  p.decimal("CARD_PRICE_PHYSICAL"),
		},
		LogDir: getEnv("LOG_DIR", "logs"),
	}
	if p.err != nil {
		return nil, p.err
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

func LoadConfigDB() (*DBConfig, error) {
	port, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	maxOpen, err := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}

	maxIdle, err := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}

	return &DBConfig{
		Host:         getEnv("DB_HOST", "localhost"),
		Port:         port,
		User:         os.Getenv("DB_USER"),
		Password:     os.Getenv("DB_PASSWORD"),
		Name:         os.Getenv("DB_NAME"),
		SSLMode:      getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns: maxOpen,
		MaxIdleConns: maxIdle,
		AutoMigrate:  strings.EqualFold(os.Getenv("DB_AUTO_MIGRATE"), "true"),
	}, nil
}

// parser keeps the first conversion error so Load can report it once.
type parser struct {
	err error
}

func (p *parser) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return v
}

func (p *parser) decimal(key string) decimal.Decimal {
	raw := os.Getenv(key)
	if raw == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("invalid %s: %w", key, err)
		}
		return decimal.Zero
	}
	if v.IsNegative() && p.err == nil {
		p.err = fmt.Errorf("invalid %s: must not be negative", key)
	}
	return v
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

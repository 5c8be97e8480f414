package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	AppEnv  string
	AppPort string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	// Empty disables distributed locks.
	RedisAddr string

	SystemActorID string

	// Empty disables the manual job trigger endpoint.
	OpsToken string

	CarrierBaseURL      string
	CarrierAPIKey       string
	CarrierCallInterval time.Duration
	WalletBaseURL       string
	WalletAPIKey        string
	ShopStatsBaseURL    string
	HTTPTimeout         time.Duration
	HTTPMaxRetries      int

	SettlementFeeRate   decimal.Decimal
	CompletionRateDelta decimal.Decimal

	JobBatchSize int
	Schedules    Schedules
}

// Schedules holds the cron spec of every reconciliation job.
type Schedules struct {
	WaitingCancel    string
	PendingCancel    string
	ProcessingCancel string
	DeliveredDone    string
	ShippedSettle    string
	OrderTracking    string
	RefundTracking   string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:  os.Getenv("APP_ENV"),
		AppPort: getEnv("APP_PORT", "8080"),

		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),

		RedisAddr: os.Getenv("REDIS_ADDR"),

		SystemActorID: getEnv("SYSTEM_ACTOR_ID", "system"),
		OpsToken:      os.Getenv("OPS_TOKEN"),

		CarrierBaseURL:      os.Getenv("CARRIER_BASE_URL"),
		CarrierAPIKey:       os.Getenv("CARRIER_API_KEY"),
		CarrierCallInterval: getDuration("CARRIER_CALL_INTERVAL", 500*time.Millisecond),
		WalletBaseURL:       os.Getenv("WALLET_BASE_URL"),
		WalletAPIKey:        os.Getenv("WALLET_API_KEY"),
		ShopStatsBaseURL:    os.Getenv("SHOP_STATS_BASE_URL"),
		HTTPTimeout:         getDuration("HTTP_TIMEOUT", 15*time.Second),
		HTTPMaxRetries:      getInt("HTTP_MAX_RETRIES", 3),

		SettlementFeeRate:   getDecimal("SETTLEMENT_FEE_RATE", "0.10"),
		CompletionRateDelta: getDecimal("COMPLETION_RATE_DELTA", "0.5"),

		JobBatchSize: getInt("JOB_BATCH_SIZE", 200),
		Schedules: Schedules{
			WaitingCancel:    getEnv("JOB_WAITING_CANCEL_SCHEDULE", "@every 1m"),
			PendingCancel:    getEnv("JOB_PENDING_CANCEL_SCHEDULE", "@every 15m"),
			ProcessingCancel: getEnv("JOB_PROCESSING_CANCEL_SCHEDULE", "@every 15m"),
			DeliveredDone:    getEnv("JOB_DELIVERED_COMPLETE_SCHEDULE", "@every 1h"),
			ShippedSettle:    getEnv("JOB_SHIPPED_SETTLE_SCHEDULE", "@every 1h"),
			OrderTracking:    getEnv("JOB_ORDER_TRACKING_SCHEDULE", "@every 10m"),
			RefundTracking:   getEnv("JOB_REFUND_TRACKING_SCHEDULE", "@every 10m"),
		},
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getDecimal(key, fallback string) decimal.Decimal {
	v := getEnv(key, fallback)
	d, err := decimal.NewFromString(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %s", key, v, fallback)
		return decimal.RequireFromString(fallback)
	}
	return d
}

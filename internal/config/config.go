package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr           string
	DatabaseURL        string
	JWTSecret          string
	AdminEmail         string
	AdminPasswordHash  string
	CORSAllowedOrigins []string
	Easykash           EasykashConfig
	Payments           PaymentsConfig
	Telegram           TelegramConfig
	Logging            LoggingConfig
}

type EasykashConfig struct {
	BaseURL    string
	PrivateKey string
	SecretKey  string
}

type PaymentsConfig struct {
	Currency        string
	AmountTolerance decimal.Decimal
	RedirectURL     string
}

type TelegramConfig struct {
	BotToken     string
	OrdersChatID int64
}

type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:           getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		AdminEmail:         os.Getenv("ADMIN_EMAIL"),
		AdminPasswordHash:  os.Getenv("ADMIN_PASSWORD_HASH"),
		CORSAllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "*")),
		Easykash: EasykashConfig{
			BaseURL:    os.Getenv("EASYKASH_BASE_URL"),
			PrivateKey: os.Getenv("EASYKASH_PRIVATE_KEY"),
			SecretKey:  os.Getenv("EASYKASH_SECRET_KEY"),
		},
		Payments: PaymentsConfig{
			Currency:        getenv("PAYMENT_CURRENCY", "EGP"),
			AmountTolerance: getenvDecimal("PAYMENT_AMOUNT_TOLERANCE", decimal.NewFromInt(1)),
			RedirectURL:     os.Getenv("PAYMENT_REDIRECT_URL"),
		},
		Telegram: TelegramConfig{
			BotToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
			OrdersChatID: getenvInt64("TELEGRAM_ORDERS_CHAT_ID", 0),
		},
		Logging: LoggingConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "text"),
			File:   os.Getenv("LOG_FILE"),
		},
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if cfg.Easykash.PrivateKey == "" {
		missing = append(missing, "EASYKASH_PRIVATE_KEY")
	}
	if cfg.Easykash.SecretKey == "" {
		missing = append(missing, "EASYKASH_SECRET_KEY")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := decimal.NewFromString(v)
	if err != nil {
		return def
	}
	return parsed
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

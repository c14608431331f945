// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the server needs. Zero values are never used
// directly; Load fills defaults.
type Config struct {
	Port string

	DatabaseDriver string
	DatabaseURL    string

	OpenAIAPIKey   string
	OpenAIBaseURL  string
	ChatModel      string
	EmbeddingModel string

	SessionTimeout time.Duration
	OTPTTL         time.Duration

	APIRateLimit   int
	VoiceRateLimit int
	RateWindow     time.Duration

	PublicBaseURL         string
	ReceptionNumber       string
	ReceptionSpoken       string
	TwilioAuthToken       string
	TwilioPhoneNumber     string
	AMQPURL               string
	OTPExchange           string
	PostgresNotifyChannel string
	AdminJWTSecret        string
	FAQDir                string
	LogLevel              string
	LogFormat             string
}

// Load reads the environment. It only fails on values that are present but
// malformed.
func Load() (Config, error) {
	cfg := Config{
		Port:                  getenv("PORT", "8080"),
		DatabaseDriver:        getenv("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:           getenv("DATABASE_URL", "hospital.db"),
		OpenAIAPIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:         os.Getenv("OPENAI_BASE_URL"),
		ChatModel:             getenv("OPENAI_MODEL_CHAT", "gpt-4o-mini"),
		EmbeddingModel:        getenv("OPENAI_MODEL_EMBED", "text-embedding-3-small"),
		RateWindow:            time.Minute,
		PublicBaseURL:         getenv("PUBLIC_BASE_URL", "http://localhost:8080"),
		ReceptionNumber:       os.Getenv("HOSPITAL_RECEPTION_NUMBER"),
		ReceptionSpoken:       getenv("HOSPITAL_RECEPTION_SPOKEN", "011-2345-6700"),
		TwilioAuthToken:       os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioPhoneNumber:     os.Getenv("TWILIO_PHONE_NUMBER"),
		AMQPURL:               os.Getenv("AMQP_URL"),
		OTPExchange:           getenv("OTP_EXCHANGE", "otp.issued"),
		PostgresNotifyChannel: getenv("POSTGRES_NOTIFY_CHANNEL", "otp_issued"),
		AdminJWTSecret:        os.Getenv("ADMIN_JWT_SECRET"),
		FAQDir:                os.Getenv("FAQ_DIR"),
		LogLevel:              getenv("LOG_LEVEL", "info"),
		LogFormat:             getenv("LOG_FORMAT", "text"),
	}

	minutes, err := getint("SESSION_TIMEOUT_MINUTES", 30)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTimeout = time.Duration(minutes) * time.Minute

	ttl, err := getint("OTP_TTL_SECONDS", 300)
	if err != nil {
		return Config{}, err
	}
	cfg.OTPTTL = time.Duration(ttl) * time.Second

	if cfg.APIRateLimit, err = getint("API_RATE_LIMIT", 30); err != nil {
		return Config{}, err
	}
	if cfg.VoiceRateLimit, err = getint("VOICE_RATE_LIMIT", 60); err != nil {
		return Config{}, err
	}

	switch cfg.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return Config{}, fmt.Errorf("DATABASE_DRIVER must be sqlite or postgres, got %q", cfg.DatabaseDriver)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}

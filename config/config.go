package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"

	"tixhub/internal/services/bank/paystack"
)

type MailConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	TLS         bool
	FromName    string
	FromAddress string
}

type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
}

// Enabled reports whether status updates should be published.
func (c PubNubConfig) Enabled() bool {
	return c.PublishKey != "" && c.SubscribeKey != ""
}

type Config struct {
	// Server configuration
	Environment   string
	ServerBaseURL string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	Paystack paystack.Config
	Mail     MailConfig
	PubNub   PubNubConfig

	// Ticket configuration
	TicketSigningKey    string
	FulfillmentLockTTL  time.Duration
	FreeOnlyForUnpriced bool

	// Rate limiting
	RateLimitPerMinute int

	// Monitoring
	EnableMetrics   bool
	MetricsInterval time.Duration
}

// LoadConfig reads the environment, after merging a .env file when one exists.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("godotenv.Load()", "error", err)
	}

	emailUser := getEnv("EMAIL_USER", "")

	return &Config{
		// Server
		Environment:   getEnv("ENVIRONMENT", "development"),
		ServerBaseURL: getEnv("SERVER_BASE_URL", "http://localhost:8090"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		Paystack: paystack.Config{
			SecretKey: getEnv("PAYSTACK_SECRET_KEY", ""),
			BaseURL:   getEnv("PAYSTACK_BASE_URL", paystack.DefaultBaseURL),
			Timeout:   getEnvAsDuration("PAYSTACK_TIMEOUT", "10s"),
		},

		Mail: MailConfig{
			Host:        getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:        getEnvAsInt("SMTP_PORT", 587),
			Username:    emailUser,
			Password:    getEnv("EMAIL_PASS", ""),
			TLS:         getEnvAsBool("SMTP_TLS", false),
			FromName:    getEnv("MAIL_FROM_NAME", "Tixhub"),
			FromAddress: getEnv("MAIL_FROM_ADDRESS", emailUser),
		},

		PubNub: PubNubConfig{
			PublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
			SubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
			SecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		},

		TicketSigningKey:    getEnv("TICKET_SIGNING_KEY", ""),
		FulfillmentLockTTL:  getEnvAsDuration("FULFILLMENT_LOCK_TTL", "2m"),
		FreeOnlyForUnpriced: getEnvAsBool("FREE_TICKETS_UNPRICED_ONLY", false),

		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),

		// Monitoring
		EnableMetrics:   getEnvAsBool("ENABLE_METRICS", true),
		MetricsInterval: getEnvAsDuration("METRICS_INTERVAL", "30s"),
	}
}

func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.ServerBaseURL, validation.Required, is.URL),
		validation.Field(&c.RedisURL, validation.Required),
		validation.Field(&c.FulfillmentLockTTL, validation.Min(time.Second)),
		validation.Field(&c.RateLimitPerMinute, validation.Min(1)),
		// blake2b keys are limited to 64 bytes
		validation.Field(&c.TicketSigningKey, validation.Length(0, 64)),
	); err != nil {
		return err
	}

	if err := validation.ValidateStruct(&c.Paystack,
		validation.Field(&c.Paystack.SecretKey, validation.Required),
		validation.Field(&c.Paystack.BaseURL, validation.Required, is.URL),
	); err != nil {
		return errors.New("paystack: " + err.Error())
	}

	if err := validation.ValidateStruct(&c.Mail,
		validation.Field(&c.Mail.Host, validation.Required),
		validation.Field(&c.Mail.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Mail.FromAddress, validation.Required, is.EmailFormat),
	); err != nil {
		return errors.New("mail: " + err.Error())
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the JSON API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health service (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty keeps all data in memory.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// OTPReturnToClient enables dev OTP mode: codes are returned to the caller and
	// readable from GET /dev/otp/{challengeId}. Rejected when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`
	// OTPTTL is how long a challenge stays valid.
	OTPTTL time.Duration `mapstructure:"OTP_TTL"`
	// OTPMaxAttempts is the number of wrong codes before the channel locks.
	OTPMaxAttempts int `mapstructure:"OTP_MAX_ATTEMPTS"`
	// LockTimeout bounds the wait for a busy cheque.
	LockTimeout time.Duration `mapstructure:"LOCK_TIMEOUT"`

	ThrottleMaxConcurrent int           `mapstructure:"THROTTLE_MAX_CONCURRENT"`
	ThrottleMinInterval   time.Duration `mapstructure:"THROTTLE_MIN_INTERVAL"`
	ThrottleQueueSize     int           `mapstructure:"THROTTLE_QUEUE_SIZE"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or a path to it.
	// Empty outside production generates an ephemeral key at startup.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or a path to it; derived from the private key when empty.
	JWTPublicKey string        `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string        `mapstructure:"JWT_ISSUER"`
	JWTAudience  string        `mapstructure:"JWT_AUDIENCE"`
	JWTAccessTTL time.Duration `mapstructure:"JWT_ACCESS_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31).
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// SMSLocalAPIKey enables SMS delivery of codes through SMS Local.
	SMSLocalAPIKey  string `mapstructure:"SMS_LOCAL_API_KEY"`
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`
	SMSLocalSender  string `mapstructure:"SMS_LOCAL_SENDER"`
	// WhatsAppWebhookURL and EmailWebhookURL enable delivery on those channels.
	WhatsAppWebhookURL string `mapstructure:"WHATSAPP_WEBHOOK_URL"`
	EmailWebhookURL    string `mapstructure:"EMAIL_WEBHOOK_URL"`
	NotifyWebhookToken string `mapstructure:"NOTIFY_WEBHOOK_TOKEN"`

	// ArtifactDir is where uploaded recipient photos and signatures are stored.
	ArtifactDir      string `mapstructure:"ARTIFACT_DIR"`
	ArtifactMaxBytes int64  `mapstructure:"ARTIFACT_MAX_BYTES"`

	// OverridePolicyFile optionally replaces the built-in override approval Rego module.
	OverridePolicyFile string `mapstructure:"OVERRIDE_POLICY_FILE"`

	// OTLPEndpoint enables OpenTelemetry export when set (e.g. "localhost:4317").
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// KafkaBrokers is a comma-separated broker list. When set, custody events are published.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// EventsTopic is the Kafka topic for custody events.
	EventsTopic string `mapstructure:"CUSTODY_EVENTS_TOPIC"`

	// Worker-only: consumer group and Loki push URL.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	LokiURL      string `mapstructure:"LOKI_URL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OTP_MAX_ATTEMPTS", 3)
	v.SetDefault("LOCK_TIMEOUT", "2s")
	v.SetDefault("THROTTLE_MAX_CONCURRENT", 3)
	v.SetDefault("THROTTLE_MIN_INTERVAL", "200ms")
	v.SetDefault("THROTTLE_QUEUE_SIZE", 1024)
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "cheque-custody")
	v.SetDefault("JWT_AUDIENCE", "cheque-custody-api")
	v.SetDefault("JWT_ACCESS_TTL", "8h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://app.smslocal.in/api/smsapi")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("WHATSAPP_WEBHOOK_URL", "")
	v.SetDefault("EMAIL_WEBHOOK_URL", "")
	v.SetDefault("NOTIFY_WEBHOOK_TOKEN", "")
	v.SetDefault("ARTIFACT_DIR", "./data/artifacts")
	v.SetDefault("ARTIFACT_MAX_BYTES", 10<<20)
	v.SetDefault("OVERRIDE_POLICY_FILE", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("CUSTODY_EVENTS_TOPIC", "custody-events")
	v.SetDefault("KAFKA_GROUP_ID", "custody-events-worker")
	v.SetDefault("LOKI_URL", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if c.OTPReturnToClient && c.IsProduction() {
		return errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}
	if c.IsProduction() && strings.TrimSpace(c.JWTPrivateKey) == "" {
		return errors.New("config: JWT_PRIVATE_KEY must be set when APP_ENV=production")
	}
	if c.OTPTTL <= 0 {
		return errors.New("config: OTP_TTL must be positive")
	}
	if c.OTPMaxAttempts < 1 {
		return errors.New("config: OTP_MAX_ATTEMPTS must be at least 1")
	}
	if c.LockTimeout <= 0 {
		return errors.New("config: LOCK_TIMEOUT must be positive")
	}
	if c.ThrottleMaxConcurrent < 1 {
		return errors.New("config: THROTTLE_MAX_CONCURRENT must be at least 1")
	}
	if c.ThrottleMinInterval < 0 {
		return errors.New("config: THROTTLE_MIN_INTERVAL must not be negative")
	}
	if c.ThrottleQueueSize < 1 {
		return errors.New("config: THROTTLE_QUEUE_SIZE must be at least 1")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.ArtifactMaxBytes <= 0 {
		return errors.New("config: ARTIFACT_MAX_BYTES must be positive")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// DispatchMinInterval returns THROTTLE_MIN_INTERVAL in the form throttle.Config
// expects: 0 means no spacing and maps to a negative interval.
func (c *Config) DispatchMinInterval() time.Duration {
	if c.ThrottleMinInterval == 0 {
		return -1
	}
	return c.ThrottleMinInterval
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables event publishing.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
}

// GatewayConfig configures the external payment gateway client.
type GatewayConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	SecretKey      string        `mapstructure:"secret_key"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
}

// PaymentConfig carries the business parameters of the payment intent flow.
type PaymentConfig struct {
	DepositAmount          int64         `mapstructure:"deposit_amount"`
	IntentTTL              time.Duration `mapstructure:"intent_ttl"`
	MaxPendingApplications int64         `mapstructure:"max_pending_applications"`
	ReconcileGracePeriod   time.Duration `mapstructure:"reconcile_grace_period"`
	MaxCompensationRetries int           `mapstructure:"max_compensation_retries"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ----------------- DEFAULTS -----------------

func (c *PaymentConfig) ApplyDefaults() {
	if c.DepositAmount <= 0 {
		c.DepositAmount = 10000
	}
	if c.IntentTTL <= 0 {
		c.IntentTTL = 30 * time.Minute
	}
	if c.MaxPendingApplications <= 0 {
		c.MaxPendingApplications = 10
	}
	if c.ReconcileGracePeriod <= 0 {
		c.ReconcileGracePeriod = time.Minute
	}
	if c.MaxCompensationRetries <= 0 {
		c.MaxCompensationRetries = 5
	}
}

// ----------------- ENV -----------------

// LoadConfigFromEnv builds a Config from environment variables for container
// deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("HTTP_BASE_URL", ""),
			AllowedOrigins:    getEnv("HTTP_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			Source:          getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Security: SecurityConfig{
			JWTSigningKey: getEnv("JWT_SIGNING_KEY", ""),
		},
		Gateway: GatewayConfig{
			BaseURL:        getEnv("GATEWAY_BASE_URL", "https://api.tosspayments.com"),
			SecretKey:      getEnv("GATEWAY_SECRET_KEY", ""),
			ConfirmTimeout: 10 * time.Second,
		},
		Payment: PaymentConfig{
			DepositAmount:          int64(getEnvAsInt("PAYMENT_DEPOSIT_AMOUNT", 10000)),
			IntentTTL:              getEnvAsDuration("PAYMENT_INTENT_TTL", 30*time.Minute),
			MaxPendingApplications: int64(getEnvAsInt("PAYMENT_MAX_PENDING_APPLICATIONS", 10)),
			ReconcileGracePeriod:   getEnvAsDuration("PAYMENT_RECONCILE_GRACE_PERIOD", time.Minute),
			MaxCompensationRetries: getEnvAsInt("PAYMENT_MAX_COMPENSATION_RETRIES", 5),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
			Logging: LoggingConfig{Level: "info", Format: "json"},
		},
	}
	cfg.Payment.ApplyDefaults()
	return cfg
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gateway config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *GatewayConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if c.SecretKey == "" {
		return errors.New("secret_key is required")
	}
	return nil
}

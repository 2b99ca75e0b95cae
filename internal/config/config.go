// AngelaMos | 2026
// config.go

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

type Config struct {
	App       AppConfig       `koanf:"app"`
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	JWT       JWTConfig       `koanf:"jwt"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	CORS      CORSConfig      `koanf:"cors"`
	Log       LogConfig       `koanf:"log"`
	Otel      OtelConfig      `koanf:"otel"`
	Economy   EconomyConfig   `koanf:"economy"`
	Rewards   RewardsConfig   `koanf:"rewards"`
	Notify    NotifyConfig    `koanf:"notify"`
	Mail      MailConfig      `koanf:"mail"`
	Storage   StorageConfig   `koanf:"storage"`
	Admin     AdminConfig     `koanf:"admin"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

type AppConfig struct {
	Name               string `koanf:"name"`
	Version            string `koanf:"version"`
	Environment        string `koanf:"environment"`
	Timezone           string `koanf:"timezone"`
	ExposeErrorDetails bool   `koanf:"expose_error_details"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
}

type JWTConfig struct {
	PrivateKeyPath    string        `koanf:"private_key_path"`
	AccessTokenExpire time.Duration `koanf:"access_token_expire"`
	Issuer            string        `koanf:"issuer"`
	Audience          string        `koanf:"audience"`
}

type RateLimitConfig struct {
	Requests       int `koanf:"requests"`
	Burst          int `koanf:"burst"`
	AccessRequests int `koanf:"access_requests"`
	AccessBurst    int `koanf:"access_burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// EconomyConfig holds every coin amount the capsule lifecycle charges or
// pays out.
type EconomyConfig struct {
	SignupCoins        int `koanf:"signup_coins"`
	AdminCoins         int `koanf:"admin_coins"`
	PrivateCapsuleFee  int `koanf:"private_capsule_fee"`
	SharedAccessFee    int `koanf:"shared_access_fee"`
	ViewRewardInterval int `koanf:"view_reward_interval"`
	ViewRewardCoins    int `koanf:"view_reward_coins"`
}

type RewardsConfig struct {
	Workers       int           `koanf:"workers"`
	QueueSize     int           `koanf:"queue_size"`
	CreditTimeout time.Duration `koanf:"credit_timeout"`
}

type NotifyConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Schedule string        `koanf:"schedule"`
	LockTTL  time.Duration `koanf:"lock_ttl"`
	BaseURL  string        `koanf:"base_url"`
}

type MailConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

type StorageConfig struct {
	Enabled        bool   `koanf:"enabled"`
	Bucket         string `koanf:"bucket"`
	Region         string `koanf:"region"`
	Endpoint       string `koanf:"endpoint"`
	UsePathStyle   bool   `koanf:"use_path_style"`
	MaxUploadBytes int64  `koanf:"max_upload_bytes"`
}

type AdminConfig struct {
	SetupToken string `koanf:"setup_token"`
}

type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

var (
	cfg  *Config
	once sync.Once
)

func Load(configPath string) (*Config, error) {
	var loadErr error

	once.Do(func() {
		cfg, loadErr = load(configPath)
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return cfg, nil
}

func load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	c := &Config{}
	if err := k.Unmarshal("", c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call Load() first")
	}
	return cfg
}

func defaultValues() map[string]any {
	return map[string]any{
		"app.name":                 "Eternal Vault",
		"app.version":              "1.0.0",
		"app.environment":          "development",
		"app.timezone":             "UTC",
		"app.expose_error_details": false,

		"server.host":             "0.0.0.0",
		"server.port":             5000,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",

		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",
		"database.auto_migrate":       true,

		"redis.pool_size":      10,
		"redis.min_idle_conns": 5,

		"jwt.access_token_expire": "1h",
		"jwt.issuer":              "eternal-vault",
		"jwt.audience":            "eternal-vault-api",
		"jwt.private_key_path":    "keys/private.pem",

		"rate_limit.requests":        100,
		"rate_limit.burst":           20,
		"rate_limit.access_requests": 10,
		"rate_limit.access_burst":    5,

		"cors.allowed_origins": []string{"http://localhost:5173"},
		"cors.allowed_methods": []string{
			"GET",
			"POST",
			"PUT",
			"DELETE",
			"OPTIONS",
		},
		"cors.allowed_headers": []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
			"X-Setup-Token",
		},
		"cors.allow_credentials": true,
		"cors.max_age":           300,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "eternal-vault",

		"economy.signup_coins":         100,
		"economy.admin_coins":          1000,
		"economy.private_capsule_fee":  20,
		"economy.shared_access_fee":    25,
		"economy.view_reward_interval": 100,
		"economy.view_reward_coins":    10,

		"rewards.workers":        2,
		"rewards.queue_size":     256,
		"rewards.credit_timeout": "5s",

		"notify.enabled":  true,
		"notify.schedule": "0 0 * * *",
		"notify.lock_ttl": "23h",
		"notify.base_url": "http://localhost:5173",

		"mail.port": 587,
		"mail.from": "no-reply@eternalvault.local",

		"storage.enabled":          false,
		"storage.region":           "us-east-1",
		"storage.bucket":           "capsule-media",
		"storage.use_path_style":   false,
		"storage.max_upload_bytes": 25 << 20,

		"metrics.enabled": true,
	}
}

func loadDefaults(k *koanf.Koanf) error {
	for key, value := range defaultValues() {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}
	return nil
}

var envKeyMap = map[string]string{
	"DATABASE_URL":                "database.url",
	"DATABASE_AUTO_MIGRATE":       "database.auto_migrate",
	"REDIS_URL":                   "redis.url",
	"ENVIRONMENT":                 "app.environment",
	"APP_TIMEZONE":                "app.timezone",
	"EXPOSE_ERROR_DETAILS":        "app.expose_error_details",
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"JWT_PRIVATE_KEY_PATH":        "jwt.private_key_path",
	"JWT_ACCESS_TOKEN_EXPIRE":     "jwt.access_token_expire",
	"JWT_ISSUER":                  "jwt.issuer",
	"JWT_AUDIENCE":                "jwt.audience",
	"RATE_LIMIT_REQUESTS":         "rate_limit.requests",
	"RATE_LIMIT_BURST":            "rate_limit.burst",
	"OTEL_ENDPOINT":               "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
	"OTEL_SERVICE_NAME":           "otel.service_name",
	"OTEL_ENABLED":                "otel.enabled",
	"OTEL_INSECURE":               "otel.insecure",
	"OTEL_SAMPLE_RATE":            "otel.sample_rate",
	"NOTIFY_ENABLED":              "notify.enabled",
	"NOTIFY_SCHEDULE":             "notify.schedule",
	"NOTIFY_BASE_URL":             "notify.base_url",
	"SMTP_HOST":                   "mail.host",
	"SMTP_PORT":                   "mail.port",
	"EMAIL_USER":                  "mail.username",
	"EMAIL_PASS":                  "mail.password",
	"EMAIL_FROM":                  "mail.from",
	"S3_ENABLED":                  "storage.enabled",
	"S3_BUCKET":                   "storage.bucket",
	"S3_REGION":                   "storage.region",
	"S3_ENDPOINT":                 "storage.endpoint",
	"S3_USE_PATH_STYLE":           "storage.use_path_style",
	"ADMIN_SETUP_TOKEN":           "admin.setup_token",
	"METRICS_ENABLED":             "metrics.enabled",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func validate(c *Config) error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.JWT.PrivateKeyPath == "" {
		return fmt.Errorf("JWT_PRIVATE_KEY_PATH is required")
	}

	if c.JWT.AccessTokenExpire <= 0 {
		return fmt.Errorf("jwt.access_token_expire must be positive")
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf(
					"CORS wildcard '*' cannot be used with AllowCredentials",
				)
			}
		}
	}

	if c.IsProduction() {
		if c.Otel.Enabled && c.Otel.Insecure {
			return fmt.Errorf("OTEL_INSECURE must be false in production")
		}
		if c.App.ExposeErrorDetails {
			return fmt.Errorf("EXPOSE_ERROR_DETAILS must be false in production")
		}
	}

	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("app.timezone %q: %w", c.App.Timezone, err)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	if err := c.Economy.validate(); err != nil {
		return err
	}

	if c.Rewards.Workers < 1 || c.Rewards.QueueSize < 1 {
		return fmt.Errorf("rewards.workers and rewards.queue_size must be at least 1")
	}

	if c.Notify.Enabled {
		if _, err := cron.ParseStandard(c.Notify.Schedule); err != nil {
			return fmt.Errorf("notify.schedule %q: %w", c.Notify.Schedule, err)
		}
	}

	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when storage is enabled")
	}

	return nil
}

func (e EconomyConfig) validate() error {
	if e.SignupCoins < 0 || e.AdminCoins < 0 {
		return fmt.Errorf("economy: starting balances cannot be negative")
	}
	if e.PrivateCapsuleFee <= 0 || e.SharedAccessFee <= 0 {
		return fmt.Errorf("economy: fees must be positive")
	}
	if e.ViewRewardInterval <= 0 || e.ViewRewardCoins <= 0 {
		return fmt.Errorf("economy: view reward interval and amount must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// Location returns the timezone used to decide what "today" is.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Terminal     TerminalConfig
	DB           DBConfig
	Queue        QueueConfig
	Sync         SyncConfig
	SalesAPI     SalesAPIConfig
	Connectivity ConnectivityConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Queue.validate(); err != nil {
		return nil, err
	}
	if err := cfg.SalesAPI.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"POS_APP_ENV" required:"true"`
	Port         string `envconfig:"POS_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"POS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"POS_LOG_WARN_STACK" default:"false"`
	// CORSOrigins lists the register front end origins allowed to call the
	// terminal API.
	CORSOrigins []string `envconfig:"POS_APP_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type TerminalConfig struct {
	ID      string `envconfig:"POS_TERMINAL_ID" required:"true"`
	StoreID string `envconfig:"POS_TERMINAL_STORE_ID"`
}

type DBConfig struct {
	DSN         string        `envconfig:"POS_DB_DSN"`
	Path        string        `envconfig:"POS_DB_PATH" default:"pos.db"`
	BusyTimeout time.Duration `envconfig:"POS_DB_BUSY_TIMEOUT" default:"5s"`

	MaxOpenConns    int           `envconfig:"POS_DB_MAX_OPEN_CONNS" default:"1"`
	MaxIdleConns    int           `envconfig:"POS_DB_MAX_IDLE_CONNS" default:"1"`
	ConnMaxLifetime time.Duration `envconfig:"POS_DB_CONN_MAX_LIFETIME" default:"0"`
}

type QueueConfig struct {
	Backend     string        `envconfig:"POS_QUEUE_BACKEND" default:"sqlite"`
	BoltPath    string        `envconfig:"POS_QUEUE_BOLT_PATH" default:"pos-queue.bolt"`
	BoltTimeout time.Duration `envconfig:"POS_QUEUE_BOLT_TIMEOUT" default:"1s"`
}

type SyncConfig struct {
	TickInterval  time.Duration `envconfig:"POS_SYNC_TICK_INTERVAL" default:"15s"`
	MaxBackoff    time.Duration `envconfig:"POS_SYNC_MAX_BACKOFF" default:"5m"`
	JitterWindow  time.Duration `envconfig:"POS_SYNC_JITTER_WINDOW" default:"2s"`
	SubmitTimeout time.Duration `envconfig:"POS_SYNC_SUBMIT_TIMEOUT" default:"10s"`
	DirectTimeout time.Duration `envconfig:"POS_SYNC_DIRECT_TIMEOUT" default:"3s"`
}

type SalesAPIConfig struct {
	BaseURL              string        `envconfig:"POS_SALES_API_BASE_URL" required:"true"`
	Token                string        `envconfig:"POS_SALES_API_TOKEN"`
	Timeout              time.Duration `envconfig:"POS_SALES_API_TIMEOUT" default:"10s"`
	BreakerFailures      uint32        `envconfig:"POS_SALES_API_BREAKER_FAILURES" default:"5"`
	BreakerOpenTimeout   time.Duration `envconfig:"POS_SALES_API_BREAKER_OPEN_TIMEOUT" default:"30s"`
	BreakerHalfOpenProbe uint32        `envconfig:"POS_SALES_API_BREAKER_HALF_OPEN_REQUESTS" default:"1"`
	PromotionsCacheTTL   time.Duration `envconfig:"POS_SALES_API_PROMOTIONS_TTL" default:"1m"`
	// StockPlannerURL defaults to BaseURL when empty.
	StockPlannerURL string `envconfig:"POS_STOCK_PLANNER_URL"`
}

// PlannerURL is the base URL of the stock planner.
func (s SalesAPIConfig) PlannerURL() string {
	if strings.TrimSpace(s.StockPlannerURL) != "" {
		return s.StockPlannerURL
	}
	return s.BaseURL
}

type ConnectivityConfig struct {
	ProbeInterval time.Duration `envconfig:"POS_CONNECTIVITY_PROBE_INTERVAL" default:"5s"`
	ProbeTimeout  time.Duration `envconfig:"POS_CONNECTIVITY_PROBE_TIMEOUT" default:"2s"`
}

// RedisConfig is part of the sales stub configuration.
type RedisConfig struct {
	URL          string        `envconfig:"POS_REDIS_URL"`
	Address      string        `envconfig:"POS_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"POS_REDIS_PASSWORD"`
	DB           int           `envconfig:"POS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"POS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"POS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"POS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"POS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"POS_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyTTL       time.Duration `envconfig:"POS_REDIS_IDEMPOTENCY_TTL" default:"720h"`
}

// StubConfig configures cmd/sales-stub.
type StubConfig struct {
	Port         string        `envconfig:"POS_STUB_PORT" default:"9090"`
	FixturesPath string        `envconfig:"POS_STUB_FIXTURES"`
	ClaimTTL     time.Duration `envconfig:"POS_STUB_CLAIM_TTL" default:"30s"`
}

// StubProcess is the configuration of the sales stub process. It does not
// require any of the terminal settings.
type StubProcess struct {
	App   AppConfig
	Redis RedisConfig
	Stub  StubConfig
}

func LoadStub() (*StubProcess, error) {
	var cfg StubProcess
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing stub config: %w", err)
	}
	return &cfg, nil
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"POS_CRON_INTERVAL" default:"1m"`
	StaleThreshold time.Duration `envconfig:"POS_CRON_STALE_THRESHOLD" default:"30m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate   bool `envconfig:"POS_AUTO_MIGRATE" default:"true"`
	StockPlanning bool `envconfig:"POS_FEATURE_STOCK_PLANNING" default:"false"`
}

// IsBolt reports whether the durable queue should use the bolt file store.
func (q QueueConfig) IsBolt() bool {
	return strings.EqualFold(strings.TrimSpace(q.Backend), QueueBackendBolt)
}

func (q QueueConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(q.Backend)) {
	case QueueBackendSQLite, QueueBackendBolt:
		return nil
	default:
		return fmt.Errorf("%s must be one of %q or %q, got %q", EnvQueueBackend, QueueBackendSQLite, QueueBackendBolt, q.Backend)
	}
}

func (s SalesAPIConfig) validate() error {
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", EnvSalesAPIBaseURL, s.BaseURL)
	}
	if s.PromotionsCacheTTL <= 0 {
		return fmt.Errorf("%s must be positive, got %s", EnvPromotionsTTL, s.PromotionsCacheTTL)
	}
	return nil
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.TrimSpace(db.Path) == "" {
		return fmt.Errorf("either %s or %s is required", EnvDBDSN, EnvDBPath)
	}

	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "FULL")
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", fmt.Sprintf("%d", db.BusyTimeout.Milliseconds()))

	db.DSN = fmt.Sprintf("file:%s?%s", db.Path, q.Encode())
	return nil
}

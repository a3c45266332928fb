package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the envconfig prefix shared by every service binary.
const EnvPrefix = "baggage"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App       AppConfig
	Ops       OpsConfig
	DB        DBConfig
	Redis     RedisConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	Simulator SimulatorConfig
	Watchdog  WatchdogConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BAGGAGE_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"BAGGAGE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BAGGAGE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// OpsConfig drives the healthz/metrics listener every binary exposes.
type OpsConfig struct {
	Port string `envconfig:"BAGGAGE_OPS_PORT" default:"9090"`
}

type DBConfig struct {
	Driver string `envconfig:"BAGGAGE_DB_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"BAGGAGE_DB_DSN" default:"baggage.db"`

	MaxOpenConns    int           `envconfig:"BAGGAGE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BAGGAGE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BAGGAGE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BAGGAGE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"BAGGAGE_DB_AUTO_MIGRATE" default:"false"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func (db DBConfig) validate() error {
	if db.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	switch strings.ToLower(db.Driver) {
	case DriverSQLite, DriverPostgres:
		return nil
	default:
		return fmt.Errorf("unsupported database driver %q", db.Driver)
	}
}

type RedisConfig struct {
	URL          string        `envconfig:"BAGGAGE_REDIS_URL"`
	Address      string        `envconfig:"BAGGAGE_REDIS_ADDR"`
	Password     string        `envconfig:"BAGGAGE_REDIS_PASSWORD"`
	DB           int           `envconfig:"BAGGAGE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BAGGAGE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BAGGAGE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BAGGAGE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BAGGAGE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BAGGAGE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BAGGAGE_GCP_PROJECT_ID"`
	ApplicationCredentials string `envconfig:"BAGGAGE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	EventsTopic        string `envconfig:"BAGGAGE_PUBSUB_EVENTS_TOPIC" default:"baggage-events"`
	EventsSubscription string `envconfig:"BAGGAGE_PUBSUB_EVENTS_SUBSCRIPTION" default:"baggage-events-watchdog"`

	ConnectAttempts int           `envconfig:"BAGGAGE_PUBSUB_CONNECT_ATTEMPTS" default:"5"`
	ConnectDelay    time.Duration `envconfig:"BAGGAGE_PUBSUB_CONNECT_DELAY" default:"5s"`
	PublishTimeout  time.Duration `envconfig:"BAGGAGE_PUBSUB_PUBLISH_TIMEOUT" default:"10s"`
}

// SimulatorConfig tunes the lifecycle tracker's scheduling loop.
type SimulatorConfig struct {
	TickInterval       time.Duration `envconfig:"BAGGAGE_SIM_TICK_INTERVAL" default:"5s"`
	GenerationInterval time.Duration `envconfig:"BAGGAGE_SIM_GENERATION_INTERVAL" default:"30s"`
	MaxActive          int           `envconfig:"BAGGAGE_SIM_MAX_ACTIVE" default:"10"`
	RecoveryLimit      int           `envconfig:"BAGGAGE_SIM_RECOVERY_LIMIT" default:"10"`

	LoadDelayMin    time.Duration `envconfig:"BAGGAGE_SIM_LOAD_DELAY_MIN" default:"30s"`
	LoadDelayMax    time.Duration `envconfig:"BAGGAGE_SIM_LOAD_DELAY_MAX" default:"2m"`
	DeliverDelayMin time.Duration `envconfig:"BAGGAGE_SIM_DELIVER_DELAY_MIN" default:"1m"`
	DeliverDelayMax time.Duration `envconfig:"BAGGAGE_SIM_DELIVER_DELAY_MAX" default:"3m"`

	WeightMinKg float64 `envconfig:"BAGGAGE_SIM_WEIGHT_MIN_KG" default:"5"`
	WeightMaxKg float64 `envconfig:"BAGGAGE_SIM_WEIGHT_MAX_KG" default:"30"`
}

type WatchdogConfig struct {
	Timeout        time.Duration `envconfig:"BAGGAGE_WATCHDOG_TIMEOUT" default:"10m"`
	SweepInterval  time.Duration `envconfig:"BAGGAGE_WATCHDOG_SWEEP_INTERVAL" default:"30s"`
	ReportPath     string        `envconfig:"BAGGAGE_WATCHDOG_REPORT_PATH" default:"lost_reports.csv"`
	IdempotencyTTL time.Duration `envconfig:"BAGGAGE_WATCHDOG_IDEMPOTENCY_TTL" default:"720h"`
}

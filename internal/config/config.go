package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	Logger LoggerConfig

	// EventStore selects the aggregation backend: "postgres" or "clickhouse".
	EventStore string

	DB         DBConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
	Metrics    MetricsConfig
	RateLimit  RateLimitConfig
}

type LoggerConfig struct {
	Level string
}

type DBConfig struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

type ClickHouseConfig struct {
	Addr     string
	Database string
	User     string
	Password string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type MetricsConfig struct {
	Enabled  bool
	Exporter string
	Endpoint string
}

type RateLimitConfig struct {
	Enabled                 bool
	IngestOrgRate           float64
	IngestOrgBurst          int
	IngestSubscriptionRate  float64
	IngestSubscriptionBurst int
	LockTTLSeconds          int
}

// Load reads configuration from the environment, with .env bootstrap for
// local development.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("TARIFA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app_name", "tarifa")
	v.SetDefault("app_version", "0.1.0")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("event_store", "postgres")
	v.SetDefault("db.type", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.name", "tarifa")
	v.SetDefault("db.user", "tarifa")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_idle_conn", 10)
	v.SetDefault("db.max_open_conn", 50)
	v.SetDefault("clickhouse.addr", "")
	v.SetDefault("clickhouse.database", "tarifa")
	v.SetDefault("redis.addr", "")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.ingest_org_rate", 100.0)
	v.SetDefault("ratelimit.ingest_org_burst", 200)
	v.SetDefault("ratelimit.ingest_subscription_rate", 25.0)
	v.SetDefault("ratelimit.ingest_subscription_burst", 50)
	v.SetDefault("ratelimit.lock_ttl_seconds", 30)
	v.SetDefault("metrics.exporter", "grpc")
	v.SetDefault("metrics.endpoint", "localhost:4317")

	cfg := Config{
		AppName:     v.GetString("app_name"),
		AppVersion:  v.GetString("app_version"),
		Environment: v.GetString("environment"),
		Logger: LoggerConfig{
			Level: v.GetString("log_level"),
		},
		EventStore: strings.ToLower(strings.TrimSpace(v.GetString("event_store"))),
		DB: DBConfig{
			Type:            v.GetString("db.type"),
			Host:            v.GetString("db.host"),
			Port:            v.GetString("db.port"),
			Name:            v.GetString("db.name"),
			User:            v.GetString("db.user"),
			Password:        v.GetString("db.password"),
			SSLMode:         v.GetString("db.sslmode"),
			MaxIdleConn:     v.GetInt("db.max_idle_conn"),
			MaxOpenConn:     v.GetInt("db.max_open_conn"),
			ConnMaxLifetime: v.GetInt("db.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("db.conn_max_idle_time"),
		},
		ClickHouse: ClickHouseConfig{
			Addr:     v.GetString("clickhouse.addr"),
			Database: v.GetString("clickhouse.database"),
			User:     v.GetString("clickhouse.user"),
			Password: v.GetString("clickhouse.password"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Metrics: MetricsConfig{
			Enabled:  v.GetBool("metrics.enabled"),
			Exporter: strings.ToLower(v.GetString("metrics.exporter")),
			Endpoint: v.GetString("metrics.endpoint"),
		},
		RateLimit: RateLimitConfig{
			Enabled:                 v.GetBool("ratelimit.enabled"),
			IngestOrgRate:           v.GetFloat64("ratelimit.ingest_org_rate"),
			IngestOrgBurst:          v.GetInt("ratelimit.ingest_org_burst"),
			IngestSubscriptionRate:  v.GetFloat64("ratelimit.ingest_subscription_rate"),
			IngestSubscriptionBurst: v.GetInt("ratelimit.ingest_subscription_burst"),
			LockTTLSeconds:          v.GetInt("ratelimit.lock_ttl_seconds"),
		},
	}

	return cfg, nil
}

// Module wires configuration loading for the application.
var Module = fx.Module("config",
	fx.Provide(Load),
)

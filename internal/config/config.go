package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log         LogConfig                   `mapstructure:"log"`
	HTTP        HTTPConfig                  `mapstructure:"http"`
	MySQL       DatabaseConfig              `mapstructure:"mysql"`
	ClickHouse  DatabaseConfig              `mapstructure:"clickhouse"`
	Redis       RedisConfig                 `mapstructure:"redis"`
	Connections map[string]ConnectionConfig `mapstructure:"connections"`
	Checkpoint  CheckpointConfig            `mapstructure:"checkpoint"`
	Lease       LeaseConfig                 `mapstructure:"lease"`
	Dispatcher  DispatcherConfig            `mapstructure:"dispatcher"`
	Bindings    []BindingConfig             `mapstructure:"bindings"`
	Functions   []FunctionConfig            `mapstructure:"functions"`
	Admin       AdminConfig                 `mapstructure:"admin"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// ConnectionConfig is a named broker set referenced by bindings.
type ConnectionConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	MinBytes int      `mapstructure:"min_bytes"`
	MaxBytes int      `mapstructure:"max_bytes"`
}

type CheckpointConfig struct {
	Backend string `mapstructure:"backend"` // redis | mysql | memory
}

type LeaseConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	RenewInterval time.Duration `mapstructure:"renew_interval"`
}

// DispatcherConfig holds per-binding defaults.
type DispatcherConfig struct {
	MaxBatchSize int           `mapstructure:"max_batch_size"`
	MaxBatchWait time.Duration `mapstructure:"max_batch_wait"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// BindingConfig is one trigger binding: which stream to read, under which
// consumer group, and which function target receives the events.
type BindingConfig struct {
	Name          string        `mapstructure:"name"`
	Stream        string        `mapstructure:"stream"`
	ConsumerGroup string        `mapstructure:"consumer_group"`
	Connection    string        `mapstructure:"connection"`
	Cardinality   string        `mapstructure:"cardinality"` // one | many
	Target        string        `mapstructure:"target"`
	OnError       string        `mapstructure:"on_error"` // skip | halt
	StartAt       string        `mapstructure:"start_at"` // earliest | latest
	MaxBatchSize  int           `mapstructure:"max_batch_size"`
	MaxBatchWait  time.Duration `mapstructure:"max_batch_wait"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

// FunctionConfig is one HTTP endpoint inside a target group.
type FunctionConfig struct {
	Name      string        `mapstructure:"name"`
	Target    string        `mapstructure:"target"`
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	Path      string        `mapstructure:"path"`
	TimeoutMs int           `mapstructure:"timeout_ms"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

type AdminConfig struct {
	Tokens    []string        `mapstructure:"tokens"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (SGATE_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (SGATE_*)
	v.SetEnvPrefix("SGATE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

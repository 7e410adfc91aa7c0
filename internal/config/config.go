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
	Log        LogConfig        `mapstructure:"log"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	MySQL      DatabaseConfig   `mapstructure:"mysql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Outbox     OutboxConfig     `mapstructure:"outbox"`
	SyncQueue  SyncQueueConfig  `mapstructure:"sync_queue"`
	Credential CredentialConfig `mapstructure:"credential"`
	DeviceSync DeviceSyncConfig `mapstructure:"device_sync"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
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

type KafkaConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	BatchMax int      `mapstructure:"batch_max"`
}

type OutboxConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	BatchSize         int           `mapstructure:"batch_size"`
	MaxRetries        int           `mapstructure:"max_retries"`
	Retention         time.Duration `mapstructure:"retention"`
	RetentionInterval time.Duration `mapstructure:"retention_interval"`
}

type SyncQueueConfig struct {
	Store           string        `mapstructure:"store"` // "memory" | "redis"
	MaxAttempts     int           `mapstructure:"max_attempts"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
	DrainInterval   time.Duration `mapstructure:"drain_interval"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type CredentialConfig struct {
	Issuer          string        `mapstructure:"issuer"`
	Audience        string        `mapstructure:"audience"`
	PrivateKey      string        `mapstructure:"private_key"` // base64 ed25519 seed or full key
	PublicKey       string        `mapstructure:"public_key"`  // base64 ed25519 public key
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
	RenewWindow     time.Duration `mapstructure:"renew_window"`
	PermissionTTL   time.Duration `mapstructure:"permission_ttl"`
	RevocationStore string        `mapstructure:"revocation_store"` // "memory" | "redis"
}

type DeviceSyncConfig struct {
	StorePath   string        `mapstructure:"store_path"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RemoteURL   string        `mapstructure:"remote_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Interval    time.Duration `mapstructure:"interval"`
}

type RateLimitConfig struct {
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies
// env overrides (FIELDSYNC_*).
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

	// env override (FIELDSYNC_*)
	v.SetEnvPrefix("FIELDSYNC")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

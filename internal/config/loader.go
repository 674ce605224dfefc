// Package config loads booking server settings from flags, an optional
// config file and BOOKING_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config captures the booking server configuration.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Lock      LockConfig      `mapstructure:"lock"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Booking   BookingConfig   `mapstructure:"booking"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StorageConfig struct {
	// Driver is one of memory, sqlite or postgres.
	Driver      string `mapstructure:"driver"`
	SQLiteDSN   string `mapstructure:"sqlite_dsn"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// LockTTLMargin is the minimum gap between lock.timeout and lock.ttl. A lock
// acquired at the end of its wait must outlive the storage work done under it,
// which can block for up to the SQLite busy timeout.
const LockTTLMargin = 5 * time.Second

type LockConfig struct {
	// Backend is local or redis.
	Backend string        `mapstructure:"backend"`
	Timeout time.Duration `mapstructure:"timeout"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type BookingConfig struct {
	// ReservationPolicy is on_create or on_approval.
	ReservationPolicy string `mapstructure:"reservation_policy"`
}

type KafkaConfig struct {
	// Brokers left empty disables notifications.
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EnvPrefix prefixes every environment variable, e.g. BOOKING_HTTP_PORT.
const EnvPrefix = "BOOKING"

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_dsn", "booking.db")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.timeout", 5*time.Second)
	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("booking.reservation_policy", "on_create")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "booking-events")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.service_name", "room-booking")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load parses args (without the program name) and the environment.
//
// Flags override environment variables, which override the config file,
// which overrides defaults. Missing and invalid keys are reported together.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("booking-server", pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to a YAML, JSON or TOML config file")
	fs.Int("http-port", 8080, "HTTP listen port")
	fs.String("storage-driver", "sqlite", "storage backend: memory, sqlite or postgres")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"http.port":      "http-port",
		"storage.driver": "storage-driver",
		"log.level":      "log-level",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return Config{}, fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports missing and invalid settings.
func (c Config) Validate() error {
	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 4)

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		invalid = append(invalid, "http.port")
	}

	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Storage.SQLiteDSN) == "" {
			missing = append(missing, "storage.sqlite_dsn")
		}
	case "postgres":
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			missing = append(missing, "storage.postgres_dsn")
		}
	default:
		invalid = append(invalid, "storage.driver")
	}

	switch c.Lock.Backend {
	case "local":
	case "redis":
		if strings.TrimSpace(c.Redis.Addr) == "" {
			missing = append(missing, "redis.addr")
		}
	default:
		invalid = append(invalid, "lock.backend")
	}
	if c.Lock.Timeout <= 0 {
		invalid = append(invalid, "lock.timeout")
	}
	if c.Lock.TTL < c.Lock.Timeout+LockTTLMargin {
		invalid = append(invalid, "lock.ttl")
	}

	switch c.Booking.ReservationPolicy {
	case "on_create", "on_approval":
	default:
		invalid = append(invalid, "booking.reservation_policy")
	}

	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		missing = append(missing, "telemetry.endpoint")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		invalid = append(invalid, "log.level")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		invalid = append(invalid, "log.format")
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", ")))
	}
	if len(invalid) > 0 {
		errs = append(errs, fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", ")))
	}
	return errors.Join(errs...)
}

// splitList accepts both repeated values and comma separated strings.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

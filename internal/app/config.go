package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/coachsync/coachsync/internal/collab"
	"github.com/coachsync/coachsync/internal/database"
)

// Config represents the runtime configuration for the CoachSync backend.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Collab     CollabConfig     `mapstructure:"collab"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	LogLevel       string   `mapstructure:"log_level"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CollabConfig tunes the realtime session engine.
type CollabConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	MailboxSize       int           `mapstructure:"mailbox_size"`
	SnapshotHistory   int           `mapstructure:"snapshot_history"`
	MaxMessageLength  int           `mapstructure:"max_message_length"`
	MaxParticipants   int           `mapstructure:"max_participants"`
	IdleArchiveAfter  time.Duration `mapstructure:"idle_archive_after"`
	CleanupSchedule   string        `mapstructure:"cleanup_schedule"`
}

// AuthConfig captures connection-token settings.
type AuthConfig struct {
	Token TokenSettings `mapstructure:"token"`
}

// TokenSettings configures signed connection tokens.
type TokenSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("COACHSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// DatabaseSettings converts the database section into the driver-facing form.
func (c *Config) DatabaseSettings() database.Config {
	cfg := database.Config{
		Driver: c.Database.Driver,
		Path:   c.Database.Path,
		DSN:    c.Database.DSN,
	}

	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "postgres":
		cfg.Host = c.Database.Postgres.Host
		cfg.Port = c.Database.Postgres.Port
		cfg.Name = c.Database.Postgres.Database
		cfg.User = c.Database.Postgres.Username
		cfg.Password = c.Database.Postgres.Password
	case "mysql":
		cfg.Host = c.Database.MySQL.Host
		cfg.Port = c.Database.MySQL.Port
		cfg.Name = c.Database.MySQL.Database
		cfg.User = c.Database.MySQL.Username
		cfg.Password = c.Database.MySQL.Password
	}

	return cfg
}

// CollabSettings converts the collab section into engine settings.
func (c *Config) CollabSettings() collab.Settings {
	return collab.Settings{
		HeartbeatInterval:      c.Collab.HeartbeatInterval,
		HeartbeatTimeout:       c.Collab.HeartbeatTimeout,
		SweepInterval:          c.Collab.SweepInterval,
		SendBuffer:             c.Collab.SendBuffer,
		MailboxSize:            c.Collab.MailboxSize,
		SnapshotHistory:        c.Collab.SnapshotHistory,
		MaxMessageLength:       c.Collab.MaxMessageLength,
		MaxParticipantsDefault: c.Collab.MaxParticipants,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/coachsync.sqlite")

	v.SetDefault("collab.heartbeat_interval", "25s")
	v.SetDefault("collab.heartbeat_timeout", "60s")
	v.SetDefault("collab.sweep_interval", "10s")
	v.SetDefault("collab.send_buffer", 64)
	v.SetDefault("collab.mailbox_size", 256)
	v.SetDefault("collab.snapshot_history", 50)
	v.SetDefault("collab.max_message_length", 4000)
	v.SetDefault("collab.max_participants", 16)
	v.SetDefault("collab.idle_archive_after", "30m")
	v.SetDefault("collab.cleanup_schedule", "@every 5m")

	v.SetDefault("auth.token.issuer", "coachsync")
	v.SetDefault("auth.token.ttl", "5m")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

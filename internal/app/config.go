package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the coursehub server.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Vault       VaultConfig       `mapstructure:"vault"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Features    FeatureConfig     `mapstructure:"features"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	LTI         LTIConfig         `mapstructure:"lti"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	LogLevel    string `mapstructure:"log_level"`
	LogEncoding string `mapstructure:"log_encoding"`
	// Templates overrides the embedded page templates with a directory on disk.
	Templates string `mapstructure:"templates"`
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
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port"`
	Database string            `mapstructure:"database"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	Options  map[string]string `mapstructure:"options"`
}

// AuthConfig captures identity token settings. Tokens are issued by the
// platform's login front end; this service only verifies them.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// VaultConfig holds the master key used to encrypt tool shared secrets at rest.
type VaultConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles the metrics endpoint.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// FeatureConfig supplies defaults for platform tools. Values stored in the
// system settings table win over these.
type FeatureConfig struct {
	Messaging       bool `mapstructure:"messaging"`
	Social          bool `mapstructure:"social"`
	ExtendedProfile bool `mapstructure:"extended_profile"`
}

// MaintenanceConfig controls scheduled purges.
type MaintenanceConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	MessageSchedule      string `mapstructure:"message_schedule"`
	AuditSchedule        string `mapstructure:"audit_schedule"`
	MessageRetentionDays int    `mapstructure:"message_retention_days"`
	AuditRetentionDays   int    `mapstructure:"audit_retention_days"`
}

// LTIConfig describes this platform when acting as a tool consumer.
type LTIConfig struct {
	InstanceGUID   string   `mapstructure:"instance_guid"`
	InstanceName   string   `mapstructure:"instance_name"`
	Locale         string   `mapstructure:"locale"`
	ReturnURL      string   `mapstructure:"return_url"`
	ContentItemURL string   `mapstructure:"content_item_return_url"`
	AcceptTypes    []string `mapstructure:"accept_media_types"`
}

// LoadConfig reads config.yaml from ./config and the supplied paths, then applies
// COURSEHUB_* environment overrides.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("COURSEHUB")
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_encoding", "json")
	v.SetDefault("server.templates", "")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/coursehub.sqlite")

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "coursehub")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")

	v.SetDefault("vault.encryption_key", "")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")

	v.SetDefault("features.messaging", true)
	v.SetDefault("features.social", false)
	v.SetDefault("features.extended_profile", true)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.message_schedule", "@daily")
	v.SetDefault("maintenance.audit_schedule", "@daily")
	v.SetDefault("maintenance.message_retention_days", 30)
	v.SetDefault("maintenance.audit_retention_days", 90)

	v.SetDefault("lti.instance_guid", "")
	v.SetDefault("lti.instance_name", "coursehub")
	v.SetDefault("lti.locale", "en")
	v.SetDefault("lti.return_url", "")
	v.SetDefault("lti.content_item_return_url", "")
	v.SetDefault("lti.accept_media_types", "application/vnd.ims.lti.v1.ltilink")
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

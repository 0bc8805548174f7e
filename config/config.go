package config

import "time"

type AppConfig struct {
	Port                  int    `mapstructure:"port"                   validate:"required,numeric,min=1,max=65535"`
	LogLevel              string `mapstructure:"log_level"              validate:"oneof=trace debug info warn error"`
	HumanReadableOutput   bool   `mapstructure:"human_readable_output"`
	ProductionEnvironment bool   `mapstructure:"production_environment"`
	// TrustedProxies lists the proxies whose forwarding headers set the client IP.
	TrustedProxies []string `mapstructure:"trusted_proxies"`

	Database      DatabaseConfig     `mapstructure:"database"`
	Auth          AuthConfig         `mapstructure:"auth"`
	CORS          CORSConfig         `mapstructure:"cors"`
	CDN           CDNConfig          `mapstructure:"cdn"`
	Persistence   PersistenceConfig  `mapstructure:"persistence"`
	Announcements AnnouncementConfig `mapstructure:"announcements"`
	RateLimit     RateLimitConfig    `mapstructure:"rate_limit"`
	Images        ImageConfig        `mapstructure:"images"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"   validate:"oneof=postgres sqlite"`
	Host     string `mapstructure:"host"     validate:"required_if=Driver postgres"`
	Port     int    `mapstructure:"port"     validate:"required_if=Driver postgres,max=65535"`
	Username string `mapstructure:"username" validate:"required_if=Driver postgres"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database" validate:"required_if=Driver postgres"`
	SSLMode  string `mapstructure:"sslmode"`
	// Path is the sqlite file (or DSN) used when Driver is sqlite.
	Path string `mapstructure:"path" validate:"required_if=Driver sqlite"`
}

type AuthConfig struct {
	SubmitKey string `mapstructure:"submit_key" validate:"required"`
}

type CORSConfig struct {
	Origin string `mapstructure:"origin" validate:"required,url"`
}

type CDNConfig struct {
	// URL is prepended to stored blob paths to build public links. It must
	// end with a slash.
	URL string `mapstructure:"url" validate:"required,url,endswith=/"`
}

type PersistenceConfig struct {
	Type       string      `mapstructure:"type"        validate:"oneof=filesystem s3 minio memory"`
	StorageDir string      `mapstructure:"storage_dir"`
	S3         S3Config    `mapstructure:"s3"`
	Retry      RetryConfig `mapstructure:"retry"`
}

type S3Config struct {
	Endpoint  string        `mapstructure:"endpoint"`
	Region    string        `mapstructure:"region"`
	Bucket    string        `mapstructure:"bucket"`
	KeyID     string        `mapstructure:"key_id"`
	AccessKey string        `mapstructure:"access_key"`
	UseSSL    bool          `mapstructure:"use_ssl"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type RetryConfig struct {
	Attempts        int           `mapstructure:"attempts"         validate:"min=1,max=20"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
}

type AnnouncementConfig struct {
	// WebhookURL is a Discord webhook. Announcements are disabled when empty.
	WebhookURL string `mapstructure:"webhook_url" validate:"omitempty,url"`
}

type RateLimitConfig struct {
	RedisURL            string        `mapstructure:"redis_url"`
	IncrementsPerWindow int           `mapstructure:"increments_per_window" validate:"min=1"`
	Window              time.Duration `mapstructure:"window"                validate:"required"`
}

type ImageConfig struct {
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	FetchRetries int           `mapstructure:"fetch_retries" validate:"min=0,max=10"`
}

// DefaultValue is a single viper default applied before the config file and
// environment are read.
type DefaultValue struct {
	Key   string
	Value any
}

var Defaults = []DefaultValue{
	{Key: "port", Value: 5566},
	{Key: "log_level", Value: "info"},
	{Key: "human_readable_output", Value: false},
	{Key: "production_environment", Value: true},
	{Key: "trusted_proxies", Value: []string{}},

	{Key: "database.driver", Value: "postgres"},
	{Key: "database.host", Value: "localhost"},
	{Key: "database.port", Value: 5432},
	{Key: "database.username", Value: "plugin_store"},
	{Key: "database.password", Value: ""},
	{Key: "database.database", Value: "plugin_store"},
	{Key: "database.sslmode", Value: "disable"},
	{Key: "database.path", Value: "plugin_store.db"},

	{Key: "auth.submit_key", Value: ""},

	{Key: "cors.origin", Value: "https://steamloopback.host"},

	{Key: "cdn.url", Value: "https://cdn.tzatzikiweeb.moe/file/steam-deck-homebrew/"},

	{Key: "persistence.type", Value: "filesystem"},
	{Key: "persistence.storage_dir", Value: "storage"},
	{Key: "persistence.s3.endpoint", Value: ""},
	{Key: "persistence.s3.region", Value: ""},
	{Key: "persistence.s3.bucket", Value: ""},
	{Key: "persistence.s3.key_id", Value: ""},
	{Key: "persistence.s3.access_key", Value: ""},
	{Key: "persistence.s3.use_ssl", Value: true},
	{Key: "persistence.s3.timeout", Value: "60s"},
	{Key: "persistence.retry.attempts", Value: 5},
	{Key: "persistence.retry.initial_interval", Value: "5s"},

	{Key: "announcements.webhook_url", Value: ""},

	{Key: "rate_limit.redis_url", Value: ""},
	{Key: "rate_limit.increments_per_window", Value: 2},
	{Key: "rate_limit.window", Value: "24h"},

	{Key: "images.fetch_timeout", Value: "15s"},
	{Key: "images.fetch_retries", Value: 3},
}

var Cfg = &AppConfig{}

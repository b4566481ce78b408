package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	OSMLR     OSMLRConfig     `mapstructure:"osmlr"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Region    RegionConfig    `mapstructure:"region"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	ReadTimeout    int `mapstructure:"read_timeout"`
	WriteTimeout   int `mapstructure:"write_timeout"`
	RequestTimeout int `mapstructure:"request_timeout"`
}

// OSMLRConfig locates the geometry tile host.
type OSMLRConfig struct {
	TileURL string `mapstructure:"tile_url"`
	Timeout int    `mapstructure:"timeout"`
}

func (o OSMLRConfig) TimeoutDuration() time.Duration {
	return time.Duration(o.Timeout) * time.Second
}

// RoutingConfig locates the Valhalla routing service.
type RoutingConfig struct {
	Host    string `mapstructure:"host"`
	Scheme  string `mapstructure:"scheme"`
	Costing string `mapstructure:"costing"`
	Timeout int    `mapstructure:"timeout"`
}

func (r RoutingConfig) TimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

// RegionConfig is the region pipeline policy.
type RegionConfig struct {
	MaxArea          float64 `mapstructure:"max_area"`
	ClipBuffer       float64 `mapstructure:"clip_buffer"`
	SourceName       string  `mapstructure:"source_name"`
	FetchConcurrency int     `mapstructure:"fetch_concurrency"`
	// MaxTiles caps the geometry tiles one query may touch.
	MaxTiles int `mapstructure:"max_tiles"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User), url.QueryEscape(d.Password), d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr      string `mapstructure:"addr"`
	KeyPrefix string `mapstructure:"key_prefix"`
	RouteTTL  int    `mapstructure:"route_ttl"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	OTLPAddr    string `mapstructure:"otlp_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: ANALYST_OSMLR_TILE_URL → osmlr.tile_url
	v.SetEnvPrefix("ANALYST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.request_timeout", 30)
	v.SetDefault("osmlr.tile_url", "https://osmlr-tiles.s3.amazonaws.com/v1.1/geojson/")
	v.SetDefault("osmlr.timeout", 30)
	v.SetDefault("routing.host", "routing-prod.opentraffic.io")
	v.SetDefault("routing.scheme", "https")
	v.SetDefault("routing.costing", "auto")
	v.SetDefault("routing.timeout", 15)
	v.SetDefault("region.max_area", 0.01)
	v.SetDefault("region.clip_buffer", 0.0003)
	v.SetDefault("region.source_name", "routes")
	v.SetDefault("region.fetch_concurrency", 8)
	v.SetDefault("region.max_tiles", 64)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "analyst")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "analyst")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.key_prefix", "analyst:")
	v.SetDefault("valkey.route_ttl", 3600)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_addr", "localhost:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "server.request_timeout must be positive")
	}
	if u, err := url.Parse(c.OSMLR.TileURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("osmlr.tile_url must be an absolute URL, got %q", c.OSMLR.TileURL))
	}
	if c.OSMLR.Timeout <= 0 {
		errs = append(errs, "osmlr.timeout must be positive")
	}
	if c.Routing.Host == "" {
		errs = append(errs, "routing.host is required")
	}
	if c.Routing.Scheme != "http" && c.Routing.Scheme != "https" {
		errs = append(errs, fmt.Sprintf("routing.scheme must be http or https, got %q", c.Routing.Scheme))
	}
	if c.Routing.Timeout <= 0 {
		errs = append(errs, "routing.timeout must be positive")
	}
	if c.Region.MaxArea <= 0 {
		errs = append(errs, "region.max_area must be positive")
	}
	if c.Region.ClipBuffer < 0 {
		errs = append(errs, "region.clip_buffer must not be negative")
	}
	if c.Region.SourceName == "" {
		errs = append(errs, "region.source_name is required")
	}
	if c.Region.FetchConcurrency <= 0 {
		errs = append(errs, "region.fetch_concurrency must be positive")
	}
	if c.Region.MaxTiles <= 0 {
		errs = append(errs, "region.max_tiles must be positive")
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Valkey.RouteTTL <= 0 {
		errs = append(errs, "valkey.route_ttl must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/ulule/limiter/v3"
)

// headerNamePattern matches an HTTP header field name token.
var headerNamePattern = regexp.MustCompile(`^[A-Za-z0-9!#$%&'*+.^_|~-]+$`)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Query    QueryConfig    `koanf:"query"`
	Events   EventsConfig   `koanf:"events"`
	Realtime RealtimeConfig `koanf:"realtime"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string          `koanf:"host"`
	Port        int             `koanf:"port"`
	Mode        string          `koanf:"mode"`
	Timeout     string          `koanf:"timeout"`
	ActorHeader string          `koanf:"actor_header"`
	CORS        CORSConfig      `koanf:"cors"`
	RateLimit   RateLimitConfig `koanf:"rate_limit"`
}

// CORSConfig holds CORS middleware settings.
type CORSConfig struct {
	AllowOrigins     []string `koanf:"allow_origins"`
	AllowMethods     []string `koanf:"allow_methods"`
	AllowHeaders     []string `koanf:"allow_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           string   `koanf:"max_age"`
}

// RateLimitConfig holds per-client rate limiting settings. Rate uses the
// "<limit>-<period>" notation, e.g. "100-M" for 100 requests per minute.
type RateLimitConfig struct {
	Enabled bool   `koanf:"enabled"`
	Rate    string `koanf:"rate"`
}

// Parsed returns the limiter rate described by Rate.
func (r RateLimitConfig) Parsed() (limiter.Rate, error) {
	return limiter.NewRateFromFormatted(r.Rate)
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver      string         `koanf:"driver"`
	AutoMigrate bool           `koanf:"auto_migrate"`
	SQLite      SQLiteConfig   `koanf:"sqlite"`
	Postgres    PostgresConfig `koanf:"postgres"`
	Pool        PoolConfig     `koanf:"pool"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`
}

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	ConnMaxLifetime string `koanf:"conn_max_lifetime"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level           string `koanf:"level"`
	Format          string `koanf:"format"`
	Color           *bool  `koanf:"color"`
	FilePath        string `koanf:"file_path"`
	MaxSizeMB       int    `koanf:"max_size_mb"`
	RetentionDays   int    `koanf:"retention_days"`
	MaxBackups      int    `koanf:"max_backups"`
	CompressRotated *bool  `koanf:"compress_rotated"`
}

// QueryConfig tunes the list and mutation layer shared by all resources.
type QueryConfig struct {
	DefaultLimit         int    `koanf:"default_limit"`
	MaxLimit             int    `koanf:"max_limit"`
	SchemaMode           string `koanf:"schema_mode"`
	AggregationCacheSize int    `koanf:"aggregation_cache_size"`
}

// EventsConfig holds change-notification bus settings.
type EventsConfig struct {
	BufferSize      int    `koanf:"buffer_size"`
	DeliveryTimeout string `koanf:"delivery_timeout"`
	LogLevel        string `koanf:"log_level"`
}

// RealtimeConfig holds WebSocket fan-out settings.
type RealtimeConfig struct {
	Enabled      bool     `koanf:"enabled"`
	Path         string   `koanf:"path"`
	AllowOrigins []string `koanf:"allow_origins"`
	SendBuffer   int      `koanf:"send_buffer"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// Load reads configuration from a YAML file and overlays environment variables.
// Environment variables use the prefix "APP__" and double-underscore as the
// hierarchy separator. Single underscores are preserved as part of the key name.
// For example, APP__SERVER__PORT=9090 overrides server.port and
// APP__DATABASE__POOL__MAX_IDLE_CONNS=20 overrides database.pool.max_idle_conns.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Load YAML config file.
	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}

	// Overlay environment variables with prefix APP__.
	// APP__SERVER__PORT -> server.port
	// APP__DATABASE__POOL__MAX_IDLE_CONNS -> database.pool.max_idle_conns
	if err := k.Load(env.Provider("APP__", ".", func(s string) string {
		key := strings.TrimPrefix(s, "APP__")
		key = strings.ToLower(key)
		key = strings.ReplaceAll(key, "__", ".")
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints and supported values.
func (c *Config) Validate() error {
	// Validate server.mode.
	mode := strings.TrimSpace(c.Server.Mode)
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		c.Server.Mode = mode
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", c.Server.Mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}

	// Validate server.port range.
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", c.Server.Port)
	}

	// Validate server.host.
	host := strings.TrimSpace(c.Server.Host)
	if host == "" {
		return fmt.Errorf("server.host is required")
	}
	c.Server.Host = host

	// Validate database.driver.
	switch c.Database.Driver {
	case "sqlite", "postgres":
		// ok
	default:
		return fmt.Errorf("invalid database.driver %q: must be one of %q, %q", c.Database.Driver, "sqlite", "postgres")
	}

	if c.Database.Driver == "sqlite" {
		sqlitePath := strings.TrimSpace(c.Database.SQLite.Path)
		if sqlitePath == "" {
			return fmt.Errorf("database.sqlite.path is required when driver is sqlite")
		}
		c.Database.SQLite.Path = sqlitePath
	}

	// When driver is postgres, required connection fields must be valid.
	if c.Database.Driver == "postgres" {
		host := strings.TrimSpace(c.Database.Postgres.Host)
		if host == "" {
			return fmt.Errorf("database.postgres.host is required when driver is postgres")
		}
		if c.Database.Postgres.Port < 1 || c.Database.Postgres.Port > 65535 {
			return fmt.Errorf("invalid database.postgres.port %d: must be between 1 and 65535", c.Database.Postgres.Port)
		}
		user := strings.TrimSpace(c.Database.Postgres.User)
		if user == "" {
			return fmt.Errorf("database.postgres.user is required when driver is postgres")
		}
		dbName := strings.TrimSpace(c.Database.Postgres.DBName)
		if dbName == "" {
			return fmt.Errorf("database.postgres.dbname is required when driver is postgres")
		}
		sslMode := strings.TrimSpace(c.Database.Postgres.SSLMode)

		switch sslMode {
		case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
			// ok
		default:
			return fmt.Errorf("invalid database.postgres.sslmode %q: must be one of %q, %q, %q, %q, %q, %q", c.Database.Postgres.SSLMode, "disable", "allow", "prefer", "require", "verify-ca", "verify-full")
		}
		if c.Server.Mode == gin.ReleaseMode {
			switch sslMode {
			case "require", "verify-ca", "verify-full":
				// ok
			default:
				return fmt.Errorf("invalid database.postgres.sslmode %q for server.mode %q: must be one of %q, %q, %q", c.Database.Postgres.SSLMode, gin.ReleaseMode, "require", "verify-ca", "verify-full")
			}
		}

		c.Database.Postgres.Host = host
		c.Database.Postgres.User = user
		c.Database.Postgres.DBName = dbName
		c.Database.Postgres.SSLMode = sslMode
	}

	// Normalize optional duration fields: whitespace-only means unset.
	c.Server.Timeout = strings.TrimSpace(c.Server.Timeout)
	c.Server.CORS.MaxAge = strings.TrimSpace(c.Server.CORS.MaxAge)
	c.Database.Pool.ConnMaxLifetime = strings.TrimSpace(c.Database.Pool.ConnMaxLifetime)

	// Validate server.timeout (optional; must be a valid Go duration if set).
	if t := c.Server.Timeout; t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("invalid server.timeout %q: %w", c.Server.Timeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid server.timeout %q: must be greater than 0", c.Server.Timeout)
		}
	}

	// Validate server.cors.max_age (optional; must be a valid Go duration if set).
	if ma := c.Server.CORS.MaxAge; ma != "" {
		d, err := time.ParseDuration(ma)
		if err != nil {
			return fmt.Errorf("invalid server.cors.max_age %q: must be a valid duration (e.g. \"24h\", \"3600s\"): %w", c.Server.CORS.MaxAge, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid server.cors.max_age %q: must be greater than 0", c.Server.CORS.MaxAge)
		}
	}

	// Validate database.pool.conn_max_lifetime (optional; must be positive if set).
	if lm := c.Database.Pool.ConnMaxLifetime; lm != "" {
		d, err := time.ParseDuration(lm)
		if err != nil {
			return fmt.Errorf("invalid database.pool.conn_max_lifetime %q: %w", c.Database.Pool.ConnMaxLifetime, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid database.pool.conn_max_lifetime %q: must be greater than 0", c.Database.Pool.ConnMaxLifetime)
		}
	}

	// Validate server.rate_limit (when enabled, rate must parse).
	if c.Server.RateLimit.Enabled {
		c.Server.RateLimit.Rate = strings.TrimSpace(c.Server.RateLimit.Rate)
		rate, err := c.Server.RateLimit.Parsed()
		if err != nil {
			return fmt.Errorf("invalid server.rate_limit.rate %q: %w", c.Server.RateLimit.Rate, err)
		}
		if rate.Limit <= 0 {
			return fmt.Errorf("invalid server.rate_limit.rate %q: limit must be positive", c.Server.RateLimit.Rate)
		}
	}

	// Validate server.actor_header (optional; must be a plain header token).
	c.Server.ActorHeader = strings.TrimSpace(c.Server.ActorHeader)
	if h := c.Server.ActorHeader; h != "" && !headerNamePattern.MatchString(h) {
		return fmt.Errorf("invalid server.actor_header %q: must be a valid HTTP header name", h)
	}

	if err := c.validateQuery(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	if err := c.validateEndpoints(); err != nil {
		return err
	}

	// Validate log.level.
	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Log.Level = level
	default:
		return fmt.Errorf("invalid log.level %q: must be one of %q, %q, %q, %q", c.Log.Level, "debug", "info", "warn", "error")
	}

	// Validate log.format.
	format := strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch format {
	case "text", "json":
		c.Log.Format = format
	default:
		return fmt.Errorf("invalid log.format %q: must be one of %q, %q", c.Log.Format, "text", "json")
	}

	return nil
}

func (c *Config) validateQuery() error {
	q := &c.Query
	if q.DefaultLimit < 0 {
		return fmt.Errorf("invalid query.default_limit %d: must not be negative", q.DefaultLimit)
	}
	if q.MaxLimit < 0 {
		return fmt.Errorf("invalid query.max_limit %d: must not be negative", q.MaxLimit)
	}
	if q.DefaultLimit > 0 && q.MaxLimit > 0 && q.DefaultLimit > q.MaxLimit {
		return fmt.Errorf("invalid query.default_limit %d: must not exceed query.max_limit %d", q.DefaultLimit, q.MaxLimit)
	}

	mode := strings.ToLower(strings.TrimSpace(q.SchemaMode))
	switch mode {
	case "":
		mode = "strict"
	case "strict", "permissive":
	default:
		return fmt.Errorf("invalid query.schema_mode %q: must be one of %q, %q", q.SchemaMode, "strict", "permissive")
	}
	q.SchemaMode = mode
	return nil
}

func (c *Config) validateEvents() error {
	e := &c.Events
	if e.BufferSize < 0 {
		return fmt.Errorf("invalid events.buffer_size %d: must not be negative", e.BufferSize)
	}

	e.DeliveryTimeout = strings.TrimSpace(e.DeliveryTimeout)
	if t := e.DeliveryTimeout; t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("invalid events.delivery_timeout %q: %w", t, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid events.delivery_timeout %q: must be greater than 0", t)
		}
	}

	level := strings.ToLower(strings.TrimSpace(e.LogLevel))
	switch level {
	case "", "off", "debug", "info":
		e.LogLevel = level
	default:
		return fmt.Errorf("invalid events.log_level %q: must be one of %q, %q, %q", e.LogLevel, "off", "debug", "info")
	}
	return nil
}

func (c *Config) validateEndpoints() error {
	if c.Realtime.Enabled {
		path, err := normalizePath("realtime.path", c.Realtime.Path, "/ws")
		if err != nil {
			return err
		}
		c.Realtime.Path = path
		if c.Realtime.SendBuffer < 0 {
			return fmt.Errorf("invalid realtime.send_buffer %d: must not be negative", c.Realtime.SendBuffer)
		}
	}
	if c.Metrics.Enabled {
		path, err := normalizePath("metrics.path", c.Metrics.Path, "/metrics")
		if err != nil {
			return err
		}
		c.Metrics.Path = path
	}
	if c.Realtime.Enabled && c.Metrics.Enabled && c.Realtime.Path == c.Metrics.Path {
		return fmt.Errorf("realtime.path and metrics.path must differ, both are %q", c.Metrics.Path)
	}
	return nil
}

func normalizePath(name, value, fallback string) (string, error) {
	p := strings.TrimSpace(value)
	if p == "" {
		return fallback, nil
	}
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("invalid %s %q: must start with '/'", name, value)
	}
	if strings.HasPrefix(p, "/api/") {
		return "", fmt.Errorf("invalid %s %q: must not be under /api/", name, value)
	}
	return p, nil
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the AdPulse analytics service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Geo        GeoConfig        `yaml:"geo"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Env             string        `yaml:"env"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig points at the campaign management PostgreSQL database.
// When Enabled is false the service uses an in-memory campaign directory
// holding Campaigns.
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`

	Campaigns []CampaignSeed `yaml:"campaigns"`
}

// CampaignSeed is a campaign loaded into the in-memory directory.
type CampaignSeed struct {
	ID    string `yaml:"id"`
	Owner string `yaml:"owner"`
	Name  string `yaml:"name"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// ClickHouseConfig configures the event store. When Enabled is false events
// are kept in memory.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
	Debug    bool   `yaml:"debug"`
}

// RedisConfig configures the campaign lookup cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	Enabled   bool     `yaml:"enabled"`
	MasterKey string   `yaml:"master_key"`
	SkipPaths []string `yaml:"skip_paths"`

	// Headers carrying the identity forwarded by the gateway.
	RequesterHeader string `yaml:"requester_header"`
	RoleHeader      string `yaml:"role_header"`
}

// RateLimitConfig sets a global and a per-client bucket for each traffic
// class. A zero per-client rate or burst means a tenth of the class budget.
type RateLimitConfig struct {
	Enabled       bool    `yaml:"enabled"`
	RPS           float64 `yaml:"rps"`
	Burst         int     `yaml:"burst"`
	IPRPS         float64 `yaml:"ip_rps"`
	IPBurst       int     `yaml:"ip_burst"`
	IngestRPS     float64 `yaml:"ingest_rps"`
	IngestBurst   int     `yaml:"ingest_burst"`
	IngestIPRPS   float64 `yaml:"ingest_ip_rps"`
	IngestIPBurst int     `yaml:"ingest_ip_burst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// GeoConfig configures GeoIP enrichment of ingested events.
type GeoConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// KafkaConfig configures the optional mirror of ingested events.
type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// AnalyticsConfig holds the tunables of the aggregation engine.
type AnalyticsConfig struct {
	TopCampaignsLimit     int           `yaml:"top_campaigns_limit"`
	LocationLimit         int           `yaml:"location_limit"`
	DefaultSimulationDays int           `yaml:"default_simulation_days"`
	MaxSimulationDays     int           `yaml:"max_simulation_days"`
	InsertBatchSize       int           `yaml:"insert_batch_size"`
	QueryTimeout          time.Duration `yaml:"query_timeout"`
	CampaignCacheTTL      time.Duration `yaml:"campaign_cache_ttl"`
	MaxClockSkew          time.Duration `yaml:"max_clock_skew"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			Env:             "development",
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "adpulse",
			Password: "adpulse_secret",
			DBName:   "adpulse",
			SSLMode:  "disable",
			MaxConns: 25,
			MinConns: 5,
		},
		ClickHouse: ClickHouseConfig{
			Addr:     "localhost:9000",
			Database: "default",
			Username: "default",
			Table:    "ad_events",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Auth: AuthConfig{
			Enabled:         true,
			SkipPaths:       []string{"/health", "/metrics"},
			RequesterHeader: "X-Requester-ID",
			RoleHeader:      "X-Requester-Role",
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			RPS:           200,
			Burst:         50,
			IPRPS:         20,
			IPBurst:       5,
			IngestRPS:     1000,
			IngestBurst:   200,
			IngestIPRPS:   500,
			IngestIPBurst: 200,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "adpulse",
		},
		Geo: GeoConfig{
			DatabasePath: "/app/data/GeoLite2-City.mmdb",
		},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			Topic:        "ad-events",
			WriteTimeout: 10 * time.Second,
		},
		Analytics: AnalyticsConfig{
			TopCampaignsLimit:     5,
			LocationLimit:         10,
			DefaultSimulationDays: 7,
			MaxSimulationDays:     90,
			InsertBatchSize:       1000,
			QueryTimeout:          15 * time.Second,
			CampaignCacheTTL:      time.Minute,
			MaxClockSkew:          5 * time.Minute,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// ADPULSE_CONFIG_FILE, and environment variables, in that order of precedence
// from lowest to highest.
func Load() (*Config, error) {
	cfg := Default()

	if path := getEnv("ADPULSE_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("ADPULSE_HTTP_ADDR", c.Server.Addr)
	c.Server.Env = getEnv("ADPULSE_ENV", c.Server.Env)
	c.Server.ShutdownTimeout = getDurationEnv("ADPULSE_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.Enabled = getBoolEnv("ADPULSE_DB_ENABLED", c.Database.Enabled)
	c.Database.Host = getEnv("ADPULSE_DB_HOST", c.Database.Host)
	c.Database.Port = getIntEnv("ADPULSE_DB_PORT", c.Database.Port)
	c.Database.User = getEnv("ADPULSE_DB_USER", c.Database.User)
	c.Database.Password = getEnv("ADPULSE_DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("ADPULSE_DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("ADPULSE_DB_SSLMODE", c.Database.SSLMode)
	c.Database.MaxConns = getIntEnv("ADPULSE_DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getIntEnv("ADPULSE_DB_MIN_CONNS", c.Database.MinConns)
	c.Database.Campaigns = getCampaignsEnv("ADPULSE_DB_CAMPAIGNS", c.Database.Campaigns)

	c.ClickHouse.Enabled = getBoolEnv("ADPULSE_CLICKHOUSE_ENABLED", c.ClickHouse.Enabled)
	c.ClickHouse.Addr = getEnv("ADPULSE_CLICKHOUSE_ADDR", c.ClickHouse.Addr)
	c.ClickHouse.Database = getEnv("ADPULSE_CLICKHOUSE_DATABASE", c.ClickHouse.Database)
	c.ClickHouse.Username = getEnv("ADPULSE_CLICKHOUSE_USERNAME", c.ClickHouse.Username)
	c.ClickHouse.Password = getEnv("ADPULSE_CLICKHOUSE_PASSWORD", c.ClickHouse.Password)
	c.ClickHouse.Table = getEnv("ADPULSE_CLICKHOUSE_TABLE", c.ClickHouse.Table)
	c.ClickHouse.Debug = getBoolEnv("ADPULSE_CLICKHOUSE_DEBUG", c.ClickHouse.Debug)

	c.Redis.Enabled = getBoolEnv("ADPULSE_REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnv("ADPULSE_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("ADPULSE_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getIntEnv("ADPULSE_REDIS_DB", c.Redis.DB)

	c.Auth.Enabled = getBoolEnv("ADPULSE_AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.MasterKey = getEnv("ADPULSE_API_KEY_MASTER", c.Auth.MasterKey)
	c.Auth.SkipPaths = getSliceEnv("ADPULSE_AUTH_SKIP_PATHS", c.Auth.SkipPaths)
	c.Auth.RequesterHeader = getEnv("ADPULSE_AUTH_REQUESTER_HEADER", c.Auth.RequesterHeader)
	c.Auth.RoleHeader = getEnv("ADPULSE_AUTH_ROLE_HEADER", c.Auth.RoleHeader)

	c.RateLimit.Enabled = getBoolEnv("ADPULSE_RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.RPS = getFloatEnv("ADPULSE_RATE_LIMIT_RPS", c.RateLimit.RPS)
	c.RateLimit.Burst = getIntEnv("ADPULSE_RATE_LIMIT_BURST", c.RateLimit.Burst)
	c.RateLimit.IngestRPS = getFloatEnv("ADPULSE_RATE_LIMIT_INGEST_RPS", c.RateLimit.IngestRPS)
	c.RateLimit.IngestBurst = getIntEnv("ADPULSE_RATE_LIMIT_INGEST_BURST", c.RateLimit.IngestBurst)
	c.RateLimit.IPRPS = getFloatEnv("ADPULSE_RATE_LIMIT_IP_RPS", c.RateLimit.IPRPS)
	c.RateLimit.IPBurst = getIntEnv("ADPULSE_RATE_LIMIT_IP_BURST", c.RateLimit.IPBurst)
	c.RateLimit.IngestIPRPS = getFloatEnv("ADPULSE_RATE_LIMIT_INGEST_IP_RPS", c.RateLimit.IngestIPRPS)
	c.RateLimit.IngestIPBurst = getIntEnv("ADPULSE_RATE_LIMIT_INGEST_IP_BURST", c.RateLimit.IngestIPBurst)

	c.Log.Level = getEnv("ADPULSE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("ADPULSE_LOG_FORMAT", c.Log.Format)

	c.Metrics.Enabled = getBoolEnv("ADPULSE_METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Path = getEnv("ADPULSE_METRICS_PATH", c.Metrics.Path)
	c.Metrics.Namespace = getEnv("ADPULSE_METRICS_NAMESPACE", c.Metrics.Namespace)

	c.Geo.Enabled = getBoolEnv("ADPULSE_GEO_ENABLED", c.Geo.Enabled)
	c.Geo.DatabasePath = getEnv("ADPULSE_GEO_DB_PATH", c.Geo.DatabasePath)

	c.Kafka.Enabled = getBoolEnv("ADPULSE_KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Brokers = getSliceEnv("ADPULSE_KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.Topic = getEnv("ADPULSE_KAFKA_TOPIC", c.Kafka.Topic)
	c.Kafka.WriteTimeout = getDurationEnv("ADPULSE_KAFKA_WRITE_TIMEOUT", c.Kafka.WriteTimeout)

	a := &c.Analytics
	a.TopCampaignsLimit = getIntEnv("ADPULSE_TOP_CAMPAIGNS_LIMIT", a.TopCampaignsLimit)
	a.LocationLimit = getIntEnv("ADPULSE_LOCATION_LIMIT", a.LocationLimit)
	a.DefaultSimulationDays = getIntEnv("ADPULSE_DEFAULT_SIMULATION_DAYS", a.DefaultSimulationDays)
	a.MaxSimulationDays = getIntEnv("ADPULSE_MAX_SIMULATION_DAYS", a.MaxSimulationDays)
	a.InsertBatchSize = getIntEnv("ADPULSE_INSERT_BATCH_SIZE", a.InsertBatchSize)
	a.QueryTimeout = getDurationEnv("ADPULSE_QUERY_TIMEOUT", a.QueryTimeout)
	a.CampaignCacheTTL = getDurationEnv("ADPULSE_CAMPAIGN_CACHE_TTL", a.CampaignCacheTTL)
	a.MaxClockSkew = getDurationEnv("ADPULSE_MAX_CLOCK_SKEW", a.MaxClockSkew)
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("ADPULSE_API_KEY_MASTER is required when auth is enabled")
	}
	if c.Auth.RequesterHeader == "" || c.Auth.RoleHeader == "" {
		return fmt.Errorf("requester and role headers must be set")
	}
	for _, seed := range c.Database.Campaigns {
		if seed.ID == "" || seed.Owner == "" {
			return fmt.Errorf("seed campaigns need an id and an owner, got %q@%q", seed.ID, seed.Owner)
		}
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka brokers and topic are required when kafka is enabled")
	}

	a := c.Analytics
	if a.MaxSimulationDays < 1 {
		return fmt.Errorf("max simulation days must be positive, got %d", a.MaxSimulationDays)
	}
	if a.DefaultSimulationDays < 1 || a.DefaultSimulationDays > a.MaxSimulationDays {
		return fmt.Errorf("default simulation days must be within 1..%d, got %d", a.MaxSimulationDays, a.DefaultSimulationDays)
	}
	if a.InsertBatchSize < 1 {
		return fmt.Errorf("insert batch size must be positive, got %d", a.InsertBatchSize)
	}
	if a.TopCampaignsLimit < 1 || a.LocationLimit < 1 {
		return fmt.Errorf("ranking limits must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}

// getCampaignsEnv parses a comma-separated list of id@owner pairs.
func getCampaignsEnv(key string, def []CampaignSeed) []CampaignSeed {
	entries := getSliceEnv(key, nil)
	if entries == nil {
		return def
	}
	seeds := make([]CampaignSeed, 0, len(entries))
	for _, entry := range entries {
		id, owner, _ := strings.Cut(entry, "@")
		seeds = append(seeds, CampaignSeed{
			ID:    strings.TrimSpace(id),
			Owner: strings.TrimSpace(owner),
			Name:  strings.TrimSpace(id),
		})
	}
	return seeds
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. KOLSCORE_SERVER_ADDR.
const EnvPrefix = "KOLSCORE"

// Vote store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Renderers.
const (
	RendererChrome = "chrome"
	RendererHTTP   = "http"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file, .env and environment variables.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Scrape     ScrapeConfig     `mapstructure:"scrape"`
	Votes      VotesConfig      `mapstructure:"votes"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Mongo      MongoConfig      `mapstructure:"mongo"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigin        string        `mapstructure:"cors_origin"`
}

// LogConfig selects level and output format (text | json).
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ScrapeConfig drives the render → extract → score pipeline.
type ScrapeConfig struct {
	Renderer          string        `mapstructure:"renderer"`
	URLTemplate       string        `mapstructure:"url_template"`
	Budget            time.Duration `mapstructure:"budget"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	ChromePath        string        `mapstructure:"chrome_path"`
	NoSandbox         bool          `mapstructure:"no_sandbox"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	CacheSize         int           `mapstructure:"cache_size"`
}

// VotesConfig selects the vote store.
type VotesConfig struct {
	Backend            string `mapstructure:"backend"`
	RequireWalletVoter bool   `mapstructure:"require_wallet_voter"`
	RecentDefault      int    `mapstructure:"recent_default"`
	RecentMax          int    `mapstructure:"recent_max"`
}

// RateLimitConfig sets per-client limits. Reads cover tally and voter lookups.
type RateLimitConfig struct {
	MaxKeys    int           `mapstructure:"max_keys"`
	VoteLimit  int           `mapstructure:"vote_limit"`
	VoteWindow time.Duration `mapstructure:"vote_window"`
	ReadLimit  int           `mapstructure:"read_limit"`
	ReadWindow time.Duration `mapstructure:"read_window"`
	TrustProxy bool          `mapstructure:"trust_proxy"`
}

// StreamConfig configures live vote streams.
type StreamConfig struct {
	SubscriberBuffer int           `mapstructure:"subscriber_buffer"`
	Heartbeat        time.Duration `mapstructure:"heartbeat"`
}

// PostgresConfig defines the votes database.
type PostgresConfig struct {
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

// MongoConfig defines the votes document store.
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// ClickHouseConfig enables the scrape audit log when DSN is set.
type ClickHouseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig moves the scrape cache to Redis when URL is set.
type RedisConfig struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SetDefaults registers every key so environment overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_origin", "*")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("scrape.renderer", RendererChrome)
	v.SetDefault("scrape.url_template", "https://app.cielo.finance/profile/{address}/pnl/tokens?timeframe={window}")
	v.SetDefault("scrape.budget", 75*time.Second)
	v.SetDefault("scrape.navigation_timeout", 60*time.Second)
	v.SetDefault("scrape.settle_delay", 2*time.Second)
	v.SetDefault("scrape.chrome_path", "")
	v.SetDefault("scrape.no_sandbox", false)
	v.SetDefault("scrape.cache_ttl", 5*time.Minute)
	v.SetDefault("scrape.cache_size", 2048)

	v.SetDefault("votes.backend", BackendMemory)
	v.SetDefault("votes.require_wallet_voter", false)
	v.SetDefault("votes.recent_default", 10)
	v.SetDefault("votes.recent_max", 50)

	v.SetDefault("ratelimit.max_keys", 500)
	v.SetDefault("ratelimit.vote_limit", 10)
	v.SetDefault("ratelimit.vote_window", time.Minute)
	v.SetDefault("ratelimit.read_limit", 30)
	v.SetDefault("ratelimit.read_window", time.Minute)
	v.SetDefault("ratelimit.trust_proxy", true)

	v.SetDefault("stream.subscriber_buffer", 64)
	v.SetDefault("stream.heartbeat", 15*time.Second)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.migrate", true)
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "kol_scoreboard")
	v.SetDefault("mongo.collection", "votes")
	v.SetDefault("clickhouse.dsn", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.key_prefix", "kolscore:scrape:")
}

// NewViper returns a viper instance with defaults and environment binding.
// Callers may bind command-line flags before passing it to Load.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads .env (if present), then configFile or config.yaml from ".",
// "./config", then the environment, and validates the result.
// Precedence: flags > env > file > defaults.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks backend selections and the settings they require.
func (c *Config) Validate() error {
	var errs []error

	switch c.Votes.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for votes.backend=postgres"))
		}
	case BackendMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("mongo.uri is required for votes.backend=mongo"))
		}
		if c.Mongo.Database == "" || c.Mongo.Collection == "" {
			errs = append(errs, errors.New("mongo.database and mongo.collection must be set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown votes.backend %q", c.Votes.Backend))
	}

	switch c.Scrape.Renderer {
	case RendererChrome, RendererHTTP:
	default:
		errs = append(errs, fmt.Errorf("unknown scrape.renderer %q", c.Scrape.Renderer))
	}
	if !strings.Contains(c.Scrape.URLTemplate, "{address}") {
		errs = append(errs, errors.New("scrape.url_template must contain {address}"))
	}
	if c.Scrape.Budget <= 0 {
		errs = append(errs, errors.New("scrape.budget must be positive"))
	}

	if c.RateLimit.VoteLimit <= 0 || c.RateLimit.VoteWindow <= 0 {
		errs = append(errs, errors.New("ratelimit.vote_limit and ratelimit.vote_window must be positive"))
	}
	if c.RateLimit.ReadLimit <= 0 || c.RateLimit.ReadWindow <= 0 {
		errs = append(errs, errors.New("ratelimit.read_limit and ratelimit.read_window must be positive"))
	}
	if c.Votes.RecentDefault <= 0 || c.Votes.RecentMax < c.Votes.RecentDefault {
		errs = append(errs, errors.New("votes.recent_default must be positive and not exceed votes.recent_max"))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Redis     RedisConfig
	JWT       JWTConfig
	OIDC      OIDCConfig
	Spotify   SpotifyConfig
	RateLimit RateLimitConfig
	Queue     QueueConfig
	Gateway   GatewayConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins string
}

// StoreConfig selects the request store: memory, redis or sqlite
type StoreConfig struct {
	Driver     string
	SQLitePath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type JWTConfig struct {
	Secret     string
	Expiration int // minutes
}

// TTL returns the access token lifetime.
func (c JWTConfig) TTL() time.Duration {
	return time.Duration(c.Expiration) * time.Minute
}

type OIDCConfig struct {
	Issuer   string
	ClientID string
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	APIURL       string
	AccountsURL  string
	Timeout      time.Duration
	CacheTTL     time.Duration
}

type RateLimitConfig struct {
	SubmitPerMin int
	SearchPerMin int
}

type QueueConfig struct {
	ReorderPolicy         string
	RejectMode            string
	LockBackend           string // local or redis
	LockTTL               time.Duration
	LockWait              time.Duration
	NormalizeAfterReorder bool
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("SPOTIFY_CLIENT_ID")
	readSecret("SPOTIFY_CLIENT_SECRET")
	readSecret("OIDC_CLIENT_ID")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.allowed_origins", "ALLOWED_ORIGINS")
	_ = viper.BindEnv("store.driver", "STORE_DRIVER")
	_ = viper.BindEnv("store.sqlite_path", "SQLITE_PATH")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("redis.prefix", "REDIS_PREFIX")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("oidc.issuer", "OIDC_ISSUER")
	_ = viper.BindEnv("oidc.client_id", "OIDC_CLIENT_ID")
	_ = viper.BindEnv("spotify.client_id", "SPOTIFY_CLIENT_ID")
	_ = viper.BindEnv("spotify.client_secret", "SPOTIFY_CLIENT_SECRET")
	_ = viper.BindEnv("spotify.api_url", "SPOTIFY_API_URL")
	_ = viper.BindEnv("spotify.accounts_url", "SPOTIFY_ACCOUNTS_URL")
	_ = viper.BindEnv("spotify.timeout", "SPOTIFY_TIMEOUT")
	_ = viper.BindEnv("spotify.cache_ttl", "SPOTIFY_CACHE_TTL")
	_ = viper.BindEnv("ratelimit.submit_per_min", "RATELIMIT_SUBMIT_PER_MIN")
	_ = viper.BindEnv("ratelimit.search_per_min", "RATELIMIT_SEARCH_PER_MIN")
	_ = viper.BindEnv("queue.reorder_policy", "QUEUE_REORDER_POLICY")
	_ = viper.BindEnv("queue.reject_mode", "QUEUE_REJECT_MODE")
	_ = viper.BindEnv("queue.lock_backend", "QUEUE_LOCK_BACKEND")
	_ = viper.BindEnv("queue.lock_ttl", "QUEUE_LOCK_TTL")
	_ = viper.BindEnv("queue.lock_wait", "QUEUE_LOCK_WAIT")
	_ = viper.BindEnv("queue.normalize_after_reorder", "QUEUE_NORMALIZE_AFTER_REORDER")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")
	viper.SetDefault("store.driver", "redis")
	viper.SetDefault("store.sqlite_path", "requestr.db")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "requestr")
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 30)
	viper.SetDefault("ratelimit.submit_per_min", 10)
	viper.SetDefault("ratelimit.search_per_min", 60)

	// Spotify defaults
	viper.SetDefault("spotify.api_url", "https://api.spotify.com/v1")
	viper.SetDefault("spotify.accounts_url", "https://accounts.spotify.com")
	viper.SetDefault("spotify.timeout", 10)    // seconds
	viper.SetDefault("spotify.cache_ttl", 3600) // seconds

	// Queue defaults
	viper.SetDefault("queue.reorder_policy", "lenient")
	viper.SetDefault("queue.reject_mode", "soft")
	viper.SetDefault("queue.lock_backend", "local")
	viper.SetDefault("queue.lock_ttl", 5000)  // milliseconds
	viper.SetDefault("queue.lock_wait", 2000) // milliseconds
	viper.SetDefault("queue.normalize_after_reorder", false)

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:           viper.GetString("server.port"),
			Env:            viper.GetString("server.env"),
			LogLevel:       viper.GetString("server.log_level"),
			AllowedOrigins: viper.GetString("server.allowed_origins"),
		},
		Store: StoreConfig{
			Driver:     viper.GetString("store.driver"),
			SQLitePath: viper.GetString("store.sqlite_path"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
			Prefix:   viper.GetString("redis.prefix"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		OIDC: OIDCConfig{
			Issuer:   viper.GetString("oidc.issuer"),
			ClientID: viper.GetString("oidc.client_id"),
		},
		Spotify: SpotifyConfig{
			ClientID:     viper.GetString("spotify.client_id"),
			ClientSecret: viper.GetString("spotify.client_secret"),
			APIURL:       viper.GetString("spotify.api_url"),
			AccountsURL:  viper.GetString("spotify.accounts_url"),
			Timeout:      time.Duration(viper.GetInt("spotify.timeout")) * time.Second,
			CacheTTL:     time.Duration(viper.GetInt("spotify.cache_ttl")) * time.Second,
		},
		RateLimit: RateLimitConfig{
			SubmitPerMin: viper.GetInt("ratelimit.submit_per_min"),
			SearchPerMin: viper.GetInt("ratelimit.search_per_min"),
		},
		Queue: QueueConfig{
			ReorderPolicy:         viper.GetString("queue.reorder_policy"),
			RejectMode:            viper.GetString("queue.reject_mode"),
			LockBackend:           viper.GetString("queue.lock_backend"),
			LockTTL:               time.Duration(viper.GetInt("queue.lock_ttl")) * time.Millisecond,
			LockWait:              time.Duration(viper.GetInt("queue.lock_wait")) * time.Millisecond,
			NormalizeAfterReorder: viper.GetBool("queue.normalize_after_reorder"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}

// Origins splits the comma-separated allowed origins list.
func (c ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

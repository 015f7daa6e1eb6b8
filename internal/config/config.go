package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/guarzo/mltrends/internal/auth"
	"github.com/guarzo/mltrends/internal/cache"
	"github.com/guarzo/mltrends/internal/enrich"
	"github.com/guarzo/mltrends/internal/model"
	"github.com/guarzo/mltrends/internal/search"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	Port      string
	GinMode   string
	LogLevel  string
	LogFormat string

	APIBaseURL   string
	TokenURL     string
	ClientID     string
	ClientSecret string

	CacheBackend string
	RedisURL     string
	CacheFile    string
	SQLiteDSN    string
	PostgresDSN  string
	CacheTTL     time.Duration

	SearchRPS   float64
	HTTPTimeout time.Duration

	BatchSize  int
	BatchDelay time.Duration
	PageSize   int

	WarmSchedule string
	WarmSites    []string

	AllowedOrigins []string
}

// Load reads environment variables into a Config with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "release"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		APIBaseURL:     getEnv("ML_API_BASE_URL", search.DefaultBaseURL),
		TokenURL:       getEnv("ML_TOKEN_URL", auth.DefaultTokenURL),
		ClientID:       strings.TrimSpace(os.Getenv("ML_CLIENT_ID")),
		ClientSecret:   strings.TrimSpace(os.Getenv("ML_CLIENT_SECRET")),
		RedisURL:       strings.TrimSpace(os.Getenv("REDIS_URL")),
		CacheFile:      getEnv("CACHE_FILE", "mltrends-cache.json"),
		SQLiteDSN:      getEnv("SQLITE_DSN", "mltrends-cache.db"),
		PostgresDSN:    strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
		WarmSchedule:   strings.TrimSpace(os.Getenv("WARM_SCHEDULE")),
		WarmSites:      splitList(os.Getenv("WARM_SITES"), true),
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS"), false),
	}

	cfg.CacheBackend = strings.ToLower(getEnv("CACHE_BACKEND", defaultBackend(cfg.RedisURL)))

	var err error
	if cfg.CacheTTL, err = parseDurationEnv("CACHE_TTL", cache.DefaultEnrichmentTTL); err != nil {
		return Config{}, err
	}
	if cfg.HTTPTimeout, err = parseDurationEnv("HTTP_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.BatchDelay, err = parseDurationEnv("BATCH_DELAY", enrich.DefaultBatchDelay); err != nil {
		return Config{}, err
	}
	if cfg.SearchRPS, err = parseFloatEnv("SEARCH_RPS", 0); err != nil {
		return Config{}, err
	}
	if cfg.BatchSize, err = parseIntEnv("BATCH_SIZE", enrich.DefaultBatchSize); err != nil {
		return Config{}, err
	}
	if cfg.PageSize, err = parseIntEnv("PAGE_SIZE", enrich.DefaultPageSize); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate ensures the combination of settings is usable.
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}

	switch c.CacheBackend {
	case cache.BackendMemory, cache.BackendFile, cache.BackendSQLite:
	case cache.BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis cache backend")
		}
	case cache.BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required for the postgres cache backend")
		}
	default:
		return fmt.Errorf("%w: %q", cache.ErrUnknownBackend, c.CacheBackend)
	}

	if (c.ClientID == "") != (c.ClientSecret == "") {
		return errors.New("set both ML_CLIENT_ID and ML_CLIENT_SECRET, or neither")
	}
	if c.BatchSize <= 0 {
		return errors.New("BATCH_SIZE must be positive")
	}
	if c.PageSize <= 0 {
		return errors.New("PAGE_SIZE must be positive")
	}
	if c.BatchDelay < 0 {
		return errors.New("BATCH_DELAY must not be negative")
	}
	if c.SearchRPS < 0 {
		return errors.New("SEARCH_RPS must not be negative")
	}
	for _, site := range c.WarmSites {
		if _, err := model.LookupSite(site); err != nil {
			return fmt.Errorf("WARM_SITES: %w", err)
		}
	}
	return nil
}

// Cache returns the cache.Config described by c. Remote backends get an
// in-process layer in front of them.
func (c Config) Cache() cache.Config {
	return cache.Config{
		Backend:     c.CacheBackend,
		FilePath:    c.CacheFile,
		RedisURL:    c.RedisURL,
		SQLiteDSN:   c.SQLiteDSN,
		PostgresDSN: c.PostgresDSN,
		Layered:     c.CacheBackend == cache.BackendRedis || c.CacheBackend == cache.BackendPostgres,
	}
}

// Auth returns the OAuth client settings.
func (c Config) Auth() auth.Config {
	return auth.Config{ClientID: c.ClientID, ClientSecret: c.ClientSecret, TokenURL: c.TokenURL}
}

// Search returns the direct search client settings.
func (c Config) Search() search.Config {
	return search.Config{
		BaseURL:           c.APIBaseURL,
		Timeout:           c.HTTPTimeout,
		RequestsPerSecond: c.SearchRPS,
	}
}

// Batch returns batch session options for site.
func (c Config) Batch(site string) enrich.Options {
	return enrich.Options{
		Site:       site,
		Limit:      c.PageSize,
		BatchSize:  c.BatchSize,
		BatchDelay: c.BatchDelay,
	}
}

func defaultBackend(redisURL string) string {
	if redisURL != "" {
		return cache.BackendRedis
	}
	return cache.BackendMemory
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func parseDurationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string, defaultVal int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func parseFloatEnv(key string, defaultVal float64) (float64, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return f, nil
}

// splitList splits a comma separated value, dropping blanks.
func splitList(raw string, upper bool) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if upper {
			part = strings.ToUpper(part)
		}
		out = append(out, part)
	}
	return out
}

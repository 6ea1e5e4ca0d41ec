package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/retreivo/itemmatch/internal/domain/match"
)

// Config holds the itemmatch service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Matching  MatchingConfig  `yaml:"matching"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	// RateLimitPerMin caps store/match requests per client IP; 0 disables the limiter.
	RateLimitPerMin int `yaml:"rate_limit_per_min"`
	// MaxBodyMB bounds request bodies (images arrive base64-encoded inline).
	MaxBodyMB int `yaml:"max_body_mb"`
}

// MatchingConfig holds the matching policy. Zero values take the defaults.
type MatchingConfig struct {
	DistanceNormalization float64 `yaml:"distance_normalization"`
	MaxVisualMatches      int     `yaml:"max_visual_matches"`

	VisualWeight   float64 `yaml:"visual_weight"`
	MetadataWeight float64 `yaml:"metadata_weight"`

	RatioWeight     float64 `yaml:"ratio_weight"`
	PartialWeight   float64 `yaml:"partial_weight"`
	TokenSortWeight float64 `yaml:"token_sort_weight"`

	InclusionThreshold int `yaml:"inclusion_threshold"`
	ApproveThreshold   int `yaml:"approve_threshold"`
	VerifyThreshold    int `yaml:"verify_threshold"`
	TopK               int `yaml:"top_k"`

	// FallbackEnabled returns the legacy placeholder candidates when nothing matches.
	FallbackEnabled bool `yaml:"fallback_enabled"`
}

// ExtractorConfig holds descriptor extractor settings. An empty BaseURL disables image matching.
type ExtractorConfig struct {
	BaseURL          string `yaml:"base_url"`
	TimeoutSec       int    `yaml:"timeout_sec"`
	FailureThreshold uint32 `yaml:"failure_threshold"`
	OpenTimeoutSec   int    `yaml:"open_timeout_sec"`
	HalfOpenRequests uint32 `yaml:"half_open_requests"`
}

// CacheConfig holds the Redis-backed extraction cache settings.
type CacheConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	TTLSec           int      `yaml:"ttl_sec"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes a YAML document, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxBodyMB <= 0 {
		c.HTTP.MaxBodyMB = 16
	}

	m := &c.Matching
	d := match.DefaultPolicy()
	if m.DistanceNormalization <= 0 {
		m.DistanceNormalization = d.DistanceNormalization
	}
	if m.MaxVisualMatches <= 0 {
		m.MaxVisualMatches = d.MaxVisualMatches
	}
	if m.VisualWeight == 0 && m.MetadataWeight == 0 {
		m.VisualWeight, m.MetadataWeight = d.VisualWeight, d.MetadataWeight
	}
	if m.RatioWeight == 0 && m.PartialWeight == 0 && m.TokenSortWeight == 0 {
		m.RatioWeight, m.PartialWeight, m.TokenSortWeight = d.RatioWeight, d.PartialWeight, d.TokenSortWeight
	}
	if m.InclusionThreshold <= 0 {
		m.InclusionThreshold = d.InclusionThreshold
	}
	if m.ApproveThreshold <= 0 {
		m.ApproveThreshold = d.ApproveThreshold
	}
	if m.VerifyThreshold <= 0 {
		m.VerifyThreshold = d.VerifyThreshold
	}
	if m.TopK <= 0 {
		m.TopK = d.TopK
	}

	if c.Extractor.TimeoutSec <= 0 {
		c.Extractor.TimeoutSec = 15
	}
	if c.Extractor.FailureThreshold == 0 {
		c.Extractor.FailureThreshold = 5
	}
	if c.Extractor.OpenTimeoutSec <= 0 {
		c.Extractor.OpenTimeoutSec = 30
	}
	if c.Extractor.HalfOpenRequests == 0 {
		c.Extractor.HalfOpenRequests = 1
	}

	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 24 * 60 * 60
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.RateLimitPerMin < 0 {
		return fmt.Errorf("http.rate_limit_per_min must not be negative, got %d", c.HTTP.RateLimitPerMin)
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("matching: %w", err)
	}
	if c.Extractor.BaseURL != "" {
		u, err := url.Parse(c.Extractor.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("extractor.base_url must be an absolute URL, got %q", c.Extractor.BaseURL)
		}
	}
	if c.Cache.Enabled && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required when cache.enabled is true")
	}
	return nil
}

// Policy converts the matching section into a match.Policy.
func (c *Config) Policy() match.Policy {
	m := c.Matching
	return match.Policy{
		DistanceNormalization: m.DistanceNormalization,
		MaxVisualMatches:      m.MaxVisualMatches,
		VisualWeight:          m.VisualWeight,
		MetadataWeight:        m.MetadataWeight,
		RatioWeight:           m.RatioWeight,
		PartialWeight:         m.PartialWeight,
		TokenSortWeight:       m.TokenSortWeight,
		InclusionThreshold:    m.InclusionThreshold,
		ApproveThreshold:      m.ApproveThreshold,
		VerifyThreshold:       m.VerifyThreshold,
		TopK:                  m.TopK,
		FallbackEnabled:       m.FallbackEnabled,
	}
}

// ExtractorTimeout returns the per-request extractor timeout.
func (c *Config) ExtractorTimeout() time.Duration {
	return time.Duration(c.Extractor.TimeoutSec) * time.Second
}

// CacheTTL returns the extraction cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSec) * time.Second
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// Relative to the source file, for tests run from package directories.
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(ref []byte) []byte {
		expr := string(ref[2 : len(ref)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

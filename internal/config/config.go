package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	RequestTimeout  time.Duration
	UpstreamTimeout time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	BreakerEnabled          bool
	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerTimeout          time.Duration

	CacheBackend       string // "in_memory" or "memcached"
	CacheSweepInterval time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	AQICNKey  string
	EBirdKey  string
	OpenAQKey string

	AQICNBaseURL     string
	EBirdBaseURL     string
	OpenAQBaseURL    string
	NewsURL          string
	DeforestationURL string
	ForestStatsURL   string

	AQITTL           time.Duration
	BirdTTL          time.Duration
	HotspotTTL       time.Duration
	PollutionTTL     time.Duration
	DeforestationTTL time.Duration

	SpeciesCSVPath string
	AllowedOrigins []string

	ShutdownTimeout time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Upstream struct {
		Timeout string `yaml:"timeout"`

		AQICNURL         string `yaml:"aqicn_url"`
		EBirdURL         string `yaml:"ebird_url"`
		OpenAQURL        string `yaml:"openaq_url"`
		NewsURL          string `yaml:"news_url"`
		DeforestationURL string `yaml:"deforestation_url"`
		ForestStatsURL   string `yaml:"forest_stats_url"`
	} `yaml:"upstream"`

	Cache struct {
		Backend       string `yaml:"backend"`
		SweepInterval string `yaml:"sweep_interval"`
		TTL           struct {
			AQI           string `yaml:"aqi"`
			Birds         string `yaml:"birds"`
			Hotspots      string `yaml:"hotspots"`
			Pollution     string `yaml:"pollution"`
			Deforestation string `yaml:"deforestation"`
		} `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`

		BreakerEnabled          *bool  `yaml:"breaker_enabled"`
		BreakerFailureThreshold int    `yaml:"breaker_failure_threshold"`
		BreakerSuccessThreshold int    `yaml:"breaker_success_threshold"`
		BreakerTimeout          string `yaml:"breaker_timeout"`
	} `yaml:"reliability"`

	Species struct {
		CSVPath string `yaml:"csv_path"`
	} `yaml:"species"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	AQICNKey  string `yaml:"aqicn_api_key"`
	EBirdKey  string `yaml:"ebird_api_key"`
	OpenAQKey string `yaml:"openaq_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), after
// loading a .env file when one exists. Provider API keys come from the
// AQICN_API_KEY / EBIRD_API_KEY / OPENAQ_API_KEY env vars or from
// config/secrets.yaml, falling back to "demo-key" so the service starts
// against the providers' demo tiers. Call from project root.
func Load() (*Config, error) {
	// A missing .env is fine; env vars win over file values either way.
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)
	cfg.UpstreamTimeout = parseDuration(fc.Upstream.Timeout, 10*time.Second)

	if err := loadKeys(cfg, cwd); err != nil {
		return nil, err
	}

	cfg.AQICNBaseURL = defaultStr(fc.Upstream.AQICNURL, "https://api.waqi.info")
	cfg.EBirdBaseURL = defaultStr(fc.Upstream.EBirdURL, "https://api.ebird.org/v2")
	cfg.OpenAQBaseURL = defaultStr(fc.Upstream.OpenAQURL, "https://api.openaq.org/v2")
	cfg.NewsURL = defaultStr(fc.Upstream.NewsURL, "https://www.theguardian.com/environment")
	cfg.DeforestationURL = defaultStr(fc.Upstream.DeforestationURL, "https://earthobservatory.nasa.gov/topic/land")
	cfg.ForestStatsURL = defaultStr(fc.Upstream.ForestStatsURL, "https://production-api.globalforestwatch.org/v1/umd-loss-gain")

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CacheSweepInterval = parseDuration(fc.Cache.SweepInterval, 10*time.Minute)

	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.AQITTL = parseDuration(fc.Cache.TTL.AQI, 5*time.Minute)
	cfg.BirdTTL = parseDuration(fc.Cache.TTL.Birds, time.Hour)
	cfg.HotspotTTL = parseDuration(fc.Cache.TTL.Hotspots, 24*time.Hour)
	cfg.PollutionTTL = parseDuration(fc.Cache.TTL.Pollution, time.Hour)
	cfg.DeforestationTTL = parseDuration(fc.Cache.TTL.Deforestation, 24*time.Hour)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}

	cfg.BreakerEnabled = true
	if fc.Reliability.BreakerEnabled != nil {
		cfg.BreakerEnabled = *fc.Reliability.BreakerEnabled
	}
	cfg.BreakerFailureThreshold = fc.Reliability.BreakerFailureThreshold
	if cfg.BreakerFailureThreshold <= 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerSuccessThreshold = fc.Reliability.BreakerSuccessThreshold
	if cfg.BreakerSuccessThreshold <= 0 {
		cfg.BreakerSuccessThreshold = 2
	}
	cfg.BreakerTimeout = parseDuration(fc.Reliability.BreakerTimeout, 30*time.Second)

	cfg.SpeciesCSVPath = defaultStr(fc.Species.CSVPath, filepath.Join("data", "species-filter-results.csv"))
	cfg.AllowedOrigins = fc.CORS.AllowedOrigins
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadKeys resolves provider API keys: env first, then config/secrets.yaml,
// then the demo fallback.
func loadKeys(cfg *Config, cwd string) error {
	var sec secretsFile
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	secretsData, err := os.ReadFile(secretsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("read secrets file: %w", err)
		}
	} else if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return fmt.Errorf("parse secrets file: %w", err)
	}

	cfg.AQICNKey = firstNonEmpty(os.Getenv("AQICN_API_KEY"), sec.AQICNKey, "demo-key")
	cfg.EBirdKey = firstNonEmpty(os.Getenv("EBIRD_API_KEY"), sec.EBirdKey, "demo-key")
	cfg.OpenAQKey = firstNonEmpty(os.Getenv("OPENAQ_API_KEY"), sec.OpenAQKey, "demo-key")
	return nil
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func defaultStr(s, defaultVal string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// validate performs post-load validation of configuration values.
// RequestTimeout must exceed the upstream timeout so handlers outlive their
// fetches; it is auto-adjusted when it does not.
func validate(cfg *Config) error {
	if cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.UpstreamTimeout {
		cfg.RequestTimeout = cfg.UpstreamTimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	return nil
}

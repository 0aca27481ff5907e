package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/AngelCh415/funnel-insights/internal/analytics"
)

type Config struct {
	CrmURL           string
	SinkURL          string
	SinkSecret       string
	Port             string
	HTTPTimeout      time.Duration
	LogLevel         slog.Level
	DatabaseURL      string
	RedisURL         string
	CacheTTL         time.Duration
	ExcludedStatuses []string
	CORSOrigins      []string
	Thresholds       analytics.Thresholds
}

// fileConfig is the optional YAML layer. Environment variables win over it.
type fileConfig struct {
	Port             string                       `yaml:"port"`
	CacheTTLSeconds  int                          `yaml:"cache_ttl_seconds"`
	ExcludedStatuses []string                     `yaml:"excluded_statuses"`
	CORSOrigins      []string                     `yaml:"cors_origins"`
	Thresholds       analytics.ThresholdOverrides `yaml:"thresholds"`
}

// Load reads .env (if any), then the YAML file at path (CONFIG_FILE when path
// is empty, skipped when both are empty), then the environment. Invalid
// thresholds reject the whole configuration.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	var fc fileConfig
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	to := 15 * time.Second
	if v := os.Getenv("HTTP_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			to = d
		}
	}
	lvl := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		lvl = slog.LevelDebug
	}
	ttl := 1800
	if fc.CacheTTLSeconds > 0 {
		ttl = fc.CacheTTLSeconds
	}
	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("CACHE_TTL_SECONDS must be a positive integer, got %q", v)
		}
		ttl = n
	}

	ov, err := envOverrides(fc.Thresholds)
	if err != nil {
		return Config{}, err
	}
	th, err := analytics.NewThresholds(ov)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		CrmURL:           os.Getenv("CRM_API_URL"),
		SinkURL:          os.Getenv("SINK_URL"),
		SinkSecret:       os.Getenv("SINK_SECRET"),
		Port:             envOr("PORT", coalesce(fc.Port, "8080")),
		HTTPTimeout:      to,
		LogLevel:         lvl,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		CacheTTL:         time.Duration(ttl) * time.Second,
		ExcludedStatuses: fc.ExcludedStatuses,
		CORSOrigins:      fc.CORSOrigins,
		Thresholds:       th,
	}
	if v := os.Getenv("EXCLUDED_STATUSES"); v != "" {
		cfg.ExcludedStatuses = csv(v)
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = csv(v)
	}
	return cfg, nil
}

func envOverrides(base analytics.ThresholdOverrides) (analytics.ThresholdOverrides, error) {
	if v := os.Getenv("MIN_VOLUME"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return base, fmt.Errorf("MIN_VOLUME: %w", err)
		}
		base.MinVolume = &n
	}
	if v := os.Getenv("NO_SALES_MIN_REALIZED"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return base, fmt.Errorf("NO_SALES_MIN_REALIZED: %w", err)
		}
		base.NoSalesMinRealized = &n
	}
	floats := []struct {
		env string
		dst **float64
	}{
		{"DISQ_WARNING", &base.DisqualificationWarning},
		{"DISQ_CRITICAL", &base.DisqualificationCritical},
		{"NOSHOW_WARNING", &base.NoShowWarning},
		{"SALES_DROP_CRITICAL", &base.SalesDropCritical},
		{"UNTRACKED_SHARE", &base.UntrackedShare},
		{"LOW_CONVERSION", &base.LowConversionCeiling},
		{"DISQ_RISE", &base.DisqualificationRise},
		{"DISQ_RISE_FLOOR", &base.DisqualificationRiseFloor},
	}
	for _, f := range floats {
		v := os.Getenv(f.env)
		if v == "" {
			continue
		}
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return base, fmt.Errorf("%s: %w", f.env, err)
		}
		*f.dst = &x
	}
	return base, nil
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func coalesce(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func csv(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

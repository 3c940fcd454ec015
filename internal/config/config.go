// MIT License
//
// Copyright (c) 2026 Kolin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
)

// Config holds every runtime setting. All values come from the environment,
// optionally seeded from a .env file.
type Config struct {
	Server   ServerConfig
	Reporter ReporterConfig
	GeoIP    GeoIPConfig
	Pages    PagesConfig
	Database DatabaseConfig
	LogLevel string
}

type ServerConfig struct {
	ListenAddr      string
	TrustedProxies  []string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
	GinMode         string
}

type ReporterConfig struct {
	WebhookURL    string // STATS_WH
	Timeout       time.Duration
	HTTPTimeout   time.Duration
	StatsInterval time.Duration
}

type GeoIPConfig struct {
	IPInfoToken string
	CityDBPath  string
	ASNDBPath   string
	CacheSize   int
}

type PagesConfig struct {
	Dir   string
	Watch bool
}

type DatabaseConfig struct {
	Path          string // empty disables the geo warm-start store
	RetentionDays int    // 0 keeps cached geo rows forever
}

const (
	DefaultListenAddr      = ":8000"
	DefaultMaxBodyBytes    = 0 // unlimited
	DefaultShutdownTimeout = 10 * time.Second
	DefaultReportTimeout   = 30 * time.Second
	DefaultGeoCacheSize    = 100
	DefaultTemplatesDir    = "templates"
	DefaultLogLevel        = "info"
	DefaultRetentionDays   = 30
)

// Load reads envFile (if present) into the process environment without
// overriding variables that are already set, then builds a Config.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			ListenAddr:      getEnv("LISTEN_ADDR", DefaultListenAddr),
			TrustedProxies:  getEnvList("TRUSTED_PROXIES"),
			ShutdownTimeout: DefaultShutdownTimeout,
			GinMode:         os.Getenv("GIN_MODE"),
		},
		Reporter: ReporterConfig{
			WebhookURL: os.Getenv("STATS_WH"),
		},
		GeoIP: GeoIPConfig{
			IPInfoToken: os.Getenv("IPINFO_TOKEN"),
			CityDBPath:  os.Getenv("GEOIP_CITY_PATH"),
			ASNDBPath:   os.Getenv("GEOIP_ASN_PATH"),
		},
		Pages: PagesConfig{
			Dir: getEnv("TEMPLATES_DIR", DefaultTemplatesDir),
		},
		Database: DatabaseConfig{
			Path: os.Getenv("DATABASE_PATH"),
		},
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", DefaultLogLevel)),
	}

	var err error
	if cfg.Server.MaxBodyBytes, err = getEnvInt64("MAX_BODY_BYTES", DefaultMaxBodyBytes); err != nil {
		return nil, err
	}
	if cfg.Server.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout); err != nil {
		return nil, err
	}
	if cfg.Reporter.Timeout, err = getEnvDuration("REPORT_TIMEOUT", DefaultReportTimeout); err != nil {
		return nil, err
	}
	if cfg.Reporter.HTTPTimeout, err = getEnvDuration("HTTP_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.Reporter.StatsInterval, err = getEnvDuration("STATS_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.GeoIP.CacheSize, err = getEnvInt("GEO_CACHE_SIZE", DefaultGeoCacheSize); err != nil {
		return nil, err
	}
	if cfg.Database.RetentionDays, err = getEnvInt("DB_RETENTION_DAYS", DefaultRetentionDays); err != nil {
		return nil, err
	}
	if cfg.Pages.Watch, err = getEnvBool("TEMPLATES_WATCH", true); err != nil {
		return nil, err
	}

	if cfg.GeoIP.CacheSize <= 0 {
		return nil, fmt.Errorf("GEO_CACHE_SIZE must be positive, got %d", cfg.GeoIP.CacheSize)
	}
	if cfg.Server.MaxBodyBytes < 0 {
		return nil, fmt.Errorf("MAX_BODY_BYTES must not be negative, got %d", cfg.Server.MaxBodyBytes)
	}

	return cfg, nil
}

// Logger builds the process logger at the configured level.
func (c *Config) Logger() *pterm.Logger {
	return pterm.DefaultLogger.
		WithLevel(ParseLogLevel(c.LogLevel)).
		WithTime(true)
}

func ParseLogLevel(level string) pterm.LogLevel {
	switch strings.ToLower(level) {
	case "trace":
		return pterm.LogLevelTrace
	case "debug":
		return pterm.LogLevelDebug
	case "warn", "warning":
		return pterm.LogLevelWarn
	case "error":
		return pterm.LogLevelError
	default:
		return pterm.LogLevelInfo
	}
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvInt64(key string, def int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

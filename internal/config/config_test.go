package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pterm/pterm"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LISTEN_ADDR", "TRUSTED_PROXIES", "MAX_BODY_BYTES", "SHUTDOWN_TIMEOUT",
		"STATS_WH", "REPORT_TIMEOUT", "HTTP_TIMEOUT", "STATS_INTERVAL",
		"IPINFO_TOKEN", "GEOIP_CITY_PATH", "GEOIP_ASN_PATH", "GEO_CACHE_SIZE",
		"TEMPLATES_DIR", "TEMPLATES_WATCH", "DATABASE_PATH", "DB_RETENTION_DAYS", "LOG_LEVEL", "GIN_MODE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.ListenAddr != DefaultListenAddr {
		t.Errorf("Expected listen addr %q, got %q", DefaultListenAddr, cfg.Server.ListenAddr)
	}
	if cfg.GeoIP.CacheSize != 100 {
		t.Errorf("Expected geo cache size 100, got %d", cfg.GeoIP.CacheSize)
	}
	if cfg.Server.MaxBodyBytes != DefaultMaxBodyBytes {
		t.Errorf("Expected max body %d, got %d", DefaultMaxBodyBytes, cfg.Server.MaxBodyBytes)
	}
	if cfg.Reporter.Timeout != DefaultReportTimeout {
		t.Errorf("Expected report timeout %v, got %v", DefaultReportTimeout, cfg.Reporter.Timeout)
	}
	if !cfg.Pages.Watch {
		t.Error("Expected template watching enabled by default")
	}
	if cfg.Pages.Dir != DefaultTemplatesDir {
		t.Errorf("Expected templates dir %q, got %q", DefaultTemplatesDir, cfg.Pages.Dir)
	}
	if cfg.Database.Path != "" {
		t.Errorf("Expected database disabled, got %q", cfg.Database.Path)
	}
	if cfg.Server.TrustedProxies != nil {
		t.Errorf("Expected no trusted proxies, got %v", cfg.Server.TrustedProxies)
	}
	if cfg.Database.RetentionDays != DefaultRetentionDays {
		t.Errorf("Expected retention %d days, got %d", DefaultRetentionDays, cfg.Database.RetentionDays)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("STATS_WH", "https://discord.com/api/webhooks/1/abc")
	t.Setenv("IPINFO_TOKEN", "tok")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 10.0.0.0/8 ,")
	t.Setenv("REPORT_TIMEOUT", "5s")
	t.Setenv("TEMPLATES_WATCH", "false")
	t.Setenv("GEO_CACHE_SIZE", "42")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("Expected listen addr ':9999', got %q", cfg.Server.ListenAddr)
	}
	if cfg.Reporter.WebhookURL != "https://discord.com/api/webhooks/1/abc" {
		t.Errorf("Unexpected webhook URL %q", cfg.Reporter.WebhookURL)
	}
	if cfg.GeoIP.IPInfoToken != "tok" {
		t.Errorf("Expected token 'tok', got %q", cfg.GeoIP.IPInfoToken)
	}
	if len(cfg.Server.TrustedProxies) != 2 || cfg.Server.TrustedProxies[1] != "10.0.0.0/8" {
		t.Errorf("Unexpected trusted proxies %v", cfg.Server.TrustedProxies)
	}
	if cfg.Reporter.Timeout != 5*time.Second {
		t.Errorf("Expected report timeout 5s, got %v", cfg.Reporter.Timeout)
	}
	if cfg.Pages.Watch {
		t.Error("Expected template watching disabled")
	}
	if cfg.GeoIP.CacheSize != 42 {
		t.Errorf("Expected cache size 42, got %d", cfg.GeoIP.CacheSize)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("IPINFO_TOKEN")

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("IPINFO_TOKEN=from-file\nLOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("IPINFO_TOKEN") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.GeoIP.IPInfoToken != "from-file" {
		t.Errorf("Expected token from env file, got %q", cfg.GeoIP.IPInfoToken)
	}
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("Expected missing env file to be ignored, got %v", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"REPORT_TIMEOUT":  "soon",
		"GEO_CACHE_SIZE":  "0",
		"MAX_BODY_BYTES":  "lots",
		"TEMPLATES_WATCH": "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			if _, err := Load(""); err == nil {
				t.Errorf("Expected error for %s=%q", key, value)
			}
		})
	}
}

func TestLoad_MaxBodyBytes(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_BODY_BYTES", "0")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected 0 (unlimited) to be accepted, got %v", err)
	}
	if cfg.Server.MaxBodyBytes != 0 {
		t.Errorf("Expected unlimited body, got %d", cfg.Server.MaxBodyBytes)
	}

	t.Setenv("MAX_BODY_BYTES", "-1")
	if _, err := Load(""); err == nil {
		t.Error("Expected error for negative MAX_BODY_BYTES")
	}
}

func TestParseLogLevel(t *testing.T) {
	if ParseLogLevel("TRACE") != pterm.LogLevelTrace {
		t.Error("Expected trace level")
	}
	if ParseLogLevel("warning") != pterm.LogLevelWarn {
		t.Error("Expected warn level")
	}
	if ParseLogLevel("nonsense") != pterm.LogLevelInfo {
		t.Error("Expected info level as fallback")
	}
}

package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"catchall/internal/config"

	"github.com/pterm/pterm"
)

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	if cmd.Use != "catchall" {
		t.Errorf("Expected use 'catchall', got %q", cmd.Use)
	}
	for _, name := range []string{"env-file", "log-level"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("Expected persistent flag %q", name)
		}
	}
	for _, name := range []string{"addr", "templates"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("Expected flag %q", name)
		}
	}

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	if !names["serve"] || !names["version"] {
		t.Errorf("Expected serve and version subcommands, got %v", names)
	}
}

func TestVersionCmd(t *testing.T) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out.String(), "catchall version ") {
		t.Errorf("Unexpected version output %q", out.String())
	}
}

func TestServeOptions_Apply(t *testing.T) {
	cfg := &config.Config{
		Server:   config.ServerConfig{ListenAddr: ":8000"},
		Pages:    config.PagesConfig{Dir: "templates"},
		LogLevel: "info",
	}
	opts := &serveOptions{addr: ":9000", logLevel: "debug"}
	opts.apply(cfg)

	if cfg.Server.ListenAddr != ":9000" || cfg.LogLevel != "debug" {
		t.Errorf("Expected flags to override config, got %+v", cfg)
	}
	if cfg.Pages.Dir != "templates" {
		t.Errorf("Expected unset flag to keep config value, got %q", cfg.Pages.Dir)
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestApp_RunAndShutdown(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{
			ListenAddr:      freeAddr(t),
			MaxBodyBytes:    1 << 20,
			ShutdownTimeout: 2 * time.Second,
			GinMode:         "test",
		},
		Reporter: config.ReporterConfig{Timeout: time.Second},
		GeoIP:    config.GeoIPConfig{CacheSize: 10},
		Pages:    config.PagesConfig{Dir: dir, Watch: true},
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "db", "catchall.db"), RetentionDays: 1},
	}
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace).WithWriter(io.Discard)

	a, err := newApp(cfg, logger)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.Close()

	info := a.bannerInfo()
	if info.Sink != "noop" || info.Resolvers != "ipinfo" || !info.Watch {
		t.Errorf("Unexpected startup summary %+v", info)
	}
	if a.cleanup == nil || a.reporter.Stats().GeoPruned != 0 {
		t.Errorf("Expected cleanup wired into reporter stats, got %+v", a.reporter.Stats())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + cfg.Server.ListenAddr + "/probe")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Server never came up: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

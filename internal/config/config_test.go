package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewConfig verifies that NewConfig returns a Config with all expected default values.
// Changing a default must be intentional, so each one is pinned here.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("worker bounds are 100 and 200", func(t *testing.T) {
		t.Parallel()
		if cfg.WorkerFloor != 100 || cfg.WorkerCeiling != 200 {
			t.Errorf("expected 100/200, got %d/%d", cfg.WorkerFloor, cfg.WorkerCeiling)
		}
	})

	t.Run("page thresholds are 500 and 2000", func(t *testing.T) {
		t.Parallel()
		if cfg.SmallDocPages != 500 || cfg.LargeDocPages != 2000 {
			t.Errorf("expected 500/2000, got %d/%d", cfg.SmallDocPages, cfg.LargeDocPages)
		}
	})

	t.Run("timeout is 10 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 10*time.Second {
			t.Errorf("expected 10s, got %v", cfg.Timeout)
		}
	})

	t.Run("one retry after one second", func(t *testing.T) {
		t.Parallel()
		if cfg.Retries != 1 || cfg.RetryBackoff != time.Second {
			t.Errorf("expected 1 retry after 1s, got %d after %v", cfg.Retries, cfg.RetryBackoff)
		}
	})

	t.Run("tolerance is 2 points", func(t *testing.T) {
		t.Parallel()
		if cfg.OverflowTolerance != 2.0 {
			t.Errorf("expected 2.0, got %v", cfg.OverflowTolerance)
		}
	})

	t.Run("courier is ignored", func(t *testing.T) {
		t.Parallel()
		if len(cfg.IgnoreFonts) != 1 || cfg.IgnoreFonts[0] != "courier" {
			t.Errorf("unexpected IgnoreFonts: %v", cfg.IgnoreFonts)
		}
	})

	t.Run("history and cache are enabled", func(t *testing.T) {
		t.Parallel()
		if !cfg.SaveToDB || !cfg.UseCache {
			t.Error("expected SaveToDB and UseCache to be true")
		}
		if cfg.CacheTTL != 24*time.Hour {
			t.Errorf("expected 24h cache TTL, got %v", cfg.CacheTTL)
		}
		if cfg.DBDir != XDGDataDir() {
			t.Errorf("expected DBDir %q, got %q", XDGDataDir(), cfg.DBDir)
		}
	})
}

// TestConfigValidate tests the Validate method with various configurations.
// Each case breaks exactly one rule.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.Target = "manual.pdf"
		return cfg
	}

	t.Run("valid config returns nil", func(t *testing.T) {
		t.Parallel()
		if err := validConfig().Validate(); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"missing target", func(c *Config) { c.Target = "" }, ErrNoTarget},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidTimeout},
		{"zero floor", func(c *Config) { c.WorkerFloor = 0 }, ErrInvalidWorkerBounds},
		{"ceiling below floor", func(c *Config) { c.WorkerCeiling = 50 }, ErrInvalidWorkerBounds},
		{"thresholds out of order", func(c *Config) { c.LargeDocPages = 10 }, ErrInvalidThresholds},
		{"negative small threshold", func(c *Config) { c.SmallDocPages = -1 }, ErrInvalidThresholds},
		{"negative retries", func(c *Config) { c.Retries = -1 }, ErrInvalidRetries},
		{"negative backoff", func(c *Config) { c.RetryBackoff = -time.Second }, ErrInvalidRetries},
		{"negative redirects", func(c *Config) { c.MaxRedirects = -1 }, ErrInvalidRedirects},
		{"negative tolerance", func(c *Config) { c.OverflowTolerance = -0.5 }, ErrInvalidTolerance},
		{"negative rate", func(c *Config) { c.RateLimit = -1 }, ErrInvalidRateLimit},
		{"json and markdown", func(c *Config) { c.JSONReport, c.MarkdownReport = true, true }, ErrConflictingReportFormats},
		{"links-only and tables-only", func(c *Config) { c.LinksOnly, c.TablesOnly = true, true }, ErrConflictingScope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("zero retries and redirects are allowed", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.Retries = 0
		cfg.MaxRedirects = 0
		cfg.OverflowTolerance = 0
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})
}

// TestApplySettings tests that file settings overlay defaults.
func TestApplySettings(t *testing.T) {
	t.Parallel()

	t.Run("zero values keep defaults", func(t *testing.T) {
		t.Parallel()
		cfg := NewConfig()
		cfg.ApplySettings(Settings{})
		if cfg.Retries != DefaultRetries || cfg.OverflowTolerance != DefaultOverflowTolerance {
			t.Error("empty settings must not change defaults")
		}
		if len(cfg.IgnoreFonts) != 1 {
			t.Errorf("expected default ignore fonts, got %v", cfg.IgnoreFonts)
		}
	})

	t.Run("explicit zeros through pointers", func(t *testing.T) {
		t.Parallel()
		zero := 0
		zeroTol := 0.0
		cfg := NewConfig()
		cfg.ApplySettings(Settings{Retries: &zero, OverflowTolerance: &zeroTol, IgnoreFonts: []string{}})
		if cfg.Retries != 0 {
			t.Errorf("expected 0 retries, got %d", cfg.Retries)
		}
		if cfg.OverflowTolerance != 0 {
			t.Errorf("expected 0 tolerance, got %v", cfg.OverflowTolerance)
		}
		if len(cfg.IgnoreFonts) != 0 {
			t.Errorf("expected no ignored fonts, got %v", cfg.IgnoreFonts)
		}
	})

	t.Run("non-zero values override", func(t *testing.T) {
		t.Parallel()
		cfg := NewConfig()
		cfg.ApplySettings(Settings{
			WorkerFloor:   4,
			WorkerCeiling: 8,
			Timeout:       3 * time.Second,
			MaxRedirects:  2,
			RateLimit:     5,
			UserAgent:     "agent",
			Proxy:         "127.0.0.1:1080",
			CacheTTL:      time.Hour,
		})
		if cfg.WorkerFloor != 4 || cfg.WorkerCeiling != 8 {
			t.Errorf("unexpected worker bounds %d/%d", cfg.WorkerFloor, cfg.WorkerCeiling)
		}
		if cfg.Timeout != 3*time.Second || cfg.MaxRedirects != 2 {
			t.Errorf("unexpected timeout/redirects %v/%d", cfg.Timeout, cfg.MaxRedirects)
		}
		if cfg.RateLimit != 5 || cfg.UserAgent != "agent" || cfg.ProxyAddress != "127.0.0.1:1080" {
			t.Error("unexpected rate, agent or proxy")
		}
		if cfg.CacheTTL != time.Hour {
			t.Errorf("unexpected cache TTL %v", cfg.CacheTTL)
		}
	})
}

// TestLoadConfigFile tests YAML loading.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("missing file returns ErrConfigNotFound", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("parses settings and hosts", func(t *testing.T) {
		t.Parallel()
		content := `settings:
  timeout: 5s
  retries: 0
  overflowTolerance: 1.5
  ignoreFonts: [courier, mono]
defaults:
  headers:
    X-Team: docs
hosts:
  internal.example.com:
    headers:
      Authorization: Bearer abc
    rateLimit: 2
  legacy.example.org:
    skip: true
`
		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}

		cf, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cf.Settings.Timeout != 5*time.Second {
			t.Errorf("expected 5s timeout, got %v", cf.Settings.Timeout)
		}
		if cf.Settings.Retries == nil || *cf.Settings.Retries != 0 {
			t.Error("expected explicit zero retries")
		}
		if cf.Settings.OverflowTolerance == nil || *cf.Settings.OverflowTolerance != 1.5 {
			t.Error("expected tolerance 1.5")
		}
		if len(cf.Settings.IgnoreFonts) != 2 {
			t.Errorf("unexpected ignore fonts %v", cf.Settings.IgnoreFonts)
		}
		if cf.Defaults.Headers["X-Team"] != "docs" {
			t.Error("default header not parsed")
		}
		if !cf.Hosts["legacy.example.org"].Skip {
			t.Error("skip flag not parsed")
		}
	})

	t.Run("invalid YAML returns error", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(path, []byte("settings: [unclosed"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfigFile(path); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("empty file yields empty hosts map", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		cf, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cf.Hosts == nil {
			t.Error("expected non-nil Hosts map")
		}
	})
}

// TestFindConfigFile tests explicit path resolution.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("explicit existing path", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
			t.Fatal(err)
		}
		if got := FindConfigFile(path); got != path {
			t.Errorf("expected %q, got %q", path, got)
		}
	})

	t.Run("explicit missing path", func(t *testing.T) {
		t.Parallel()
		if got := FindConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); got != "" {
			t.Errorf("expected empty result, got %q", got)
		}
	})
}

// TestGetHostConfig tests per-host lookups and merging.
func TestGetHostConfig(t *testing.T) {
	t.Parallel()

	cf := &File{
		Defaults: HostConfig{
			Headers:   map[string]string{"X-Team": "docs", "Accept": "*/*"},
			RateLimit: 10,
		},
		Hosts: map[string]HostConfig{
			"example.com": {
				Headers:        map[string]string{"Accept": "text/html"},
				IgnorePatterns: []string{"/drafts/*"},
			},
			"api.example.com": {RateLimit: 1},
			"legacy.test":     {Skip: true},
		},
	}

	t.Run("unknown host gets defaults", func(t *testing.T) {
		t.Parallel()
		hc := cf.GetHostConfig("other.org")
		if hc.RateLimit != 10 || hc.Headers["X-Team"] != "docs" {
			t.Errorf("unexpected config %+v", hc)
		}
	})

	t.Run("exact host merges headers", func(t *testing.T) {
		t.Parallel()
		hc := cf.GetHostConfig("example.com")
		if hc.Headers["Accept"] != "text/html" || hc.Headers["X-Team"] != "docs" {
			t.Errorf("unexpected headers %v", hc.Headers)
		}
		if hc.RateLimit != 10 {
			t.Errorf("expected inherited rate 10, got %v", hc.RateLimit)
		}
	})

	t.Run("subdomain falls back to parent", func(t *testing.T) {
		t.Parallel()
		hc := cf.GetHostConfig("www.example.com")
		if len(hc.IgnorePatterns) != 1 {
			t.Errorf("expected parent ignore patterns, got %v", hc.IgnorePatterns)
		}
	})

	t.Run("most specific entry wins", func(t *testing.T) {
		t.Parallel()
		hc := cf.GetHostConfig("API.example.com.")
		if hc.RateLimit != 1 {
			t.Errorf("expected rate 1, got %v", hc.RateLimit)
		}
		if len(hc.IgnorePatterns) != 0 {
			t.Error("parent patterns must not leak into a more specific entry")
		}
	})

	t.Run("defaults are not mutated by merging", func(t *testing.T) {
		t.Parallel()
		_ = cf.GetHostConfig("example.com")
		if cf.Defaults.Headers["Accept"] != "*/*" {
			t.Error("defaults were modified")
		}
	})

	t.Run("nil hosts map", func(t *testing.T) {
		t.Parallel()
		empty := &File{Defaults: HostConfig{Skip: true}}
		if !empty.GetHostConfig("example.com").Skip {
			t.Error("expected defaults")
		}
	})
}

// TestHostConfigIgnores tests skip and glob matching.
func TestHostConfigIgnores(t *testing.T) {
	t.Parallel()

	hc := HostConfig{IgnorePatterns: []string{"/drafts/*", "/", "[invalid"}}

	tests := []struct {
		path string
		want bool
	}{
		{"/drafts/page", true},
		{"/drafts/a/b", false},
		{"/docs", false},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			if got := hc.Ignores(tt.path); got != tt.want {
				t.Errorf("Ignores(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}

	t.Run("skip ignores everything", func(t *testing.T) {
		t.Parallel()
		if !(HostConfig{Skip: true}).Ignores("/anything") {
			t.Error("expected skip to ignore every path")
		}
	})
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	npmerrors "github.com/matzehuels/npmscout/pkg/errors"
)

// env returns a Getenv over m with isolated XDG directories.
func env(t *testing.T, m map[string]string) func(string) string {
	t.Helper()
	dir := t.TempDir()
	base := map[string]string{
		"XDG_CONFIG_HOME": filepath.Join(dir, "config"),
		"XDG_CACHE_HOME":  filepath.Join(dir, "cache"),
	}
	for k, v := range m {
		base[k] = v
	}
	return func(k string) string { return base[k] }
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func noDotenv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	getenv := env(t, nil)
	cfg, err := Load(LoadOptions{Getenv: getenv, EnvFile: noDotenv(t)})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Search.PageSize != 100 || cfg.Search.RequestsPerBurst != 60 || cfg.Search.Cooldown.Duration != time.Minute {
		t.Errorf("search defaults = %+v", cfg.Search)
	}
	if cfg.Cache.TTL.Duration != 24*time.Hour {
		t.Errorf("ttl = %v, want 24h", cfg.Cache.TTL)
	}
	if cfg.Enrich.Workers != 20 || len(cfg.Enrich.Periods) != 3 {
		t.Errorf("enrich defaults = %+v", cfg.Enrich)
	}
	want := filepath.Join(getenv("XDG_CACHE_HOME"), AppName, "cache.db")
	if cfg.Cache.Path != want {
		t.Errorf("cache path = %q, want %q", cfg.Cache.Path, want)
	}
	if !npmerrors.Is(cfg.RequireAPIKey(), npmerrors.ErrCodeConfig) {
		t.Error("missing API key should be a configuration error")
	}
}

func TestLoadPrecedence(t *testing.T) {
	getenv := env(t, map[string]string{
		"NPMSCOUT_PAGE_SIZE": "25",
	})
	writeFile(t, DefaultConfigPath(getenv), `
api_key = "from-file"
log_level = "debug"

[search]
page_size = 50
requests_per_burst = 10
cooldown = "30s"

[cache]
ttl = "1h"
`)
	dotenv := writeFile(t, filepath.Join(t.TempDir(), ".env"), "LIBRARIES_IO_API_KEY=from-dotenv\nNPMSCOUT_COOLDOWN=5s\n")

	cfg, err := Load(LoadOptions{Getenv: getenv, EnvFile: dotenv})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"api key from dotenv over file", cfg.APIKey, "from-dotenv"},
		{"page size from env over file", cfg.Search.PageSize, 25},
		{"cooldown from dotenv over file", cfg.Search.Cooldown.Duration, 5 * time.Second},
		{"requests per burst from file", cfg.Search.RequestsPerBurst, 10},
		{"ttl from file", cfg.Cache.TTL.Duration, time.Hour},
		{"log level from file", cfg.LogLevel, "debug"},
		{"untouched default", cfg.Enrich.Workers, 20},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestProcessEnvBeatsDotenv(t *testing.T) {
	getenv := env(t, map[string]string{"LIBRARIES_IO_API_KEY": "from-env"})
	dotenv := writeFile(t, filepath.Join(t.TempDir(), ".env"), "LIBRARIES_IO_API_KEY=from-dotenv\n")

	cfg, err := Load(LoadOptions{Getenv: getenv, EnvFile: dotenv})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKey != "from-env" {
		t.Errorf("api key = %q, want from-env", cfg.APIKey)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		t.Errorf("RequireAPIKey: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		env     map[string]string
		explicit bool
		wantMsg string
	}{
		{name: "explicit file missing", explicit: true, wantMsg: "read config"},
		{name: "unknown key", file: "colour = \"blue\"\n", wantMsg: "unknown keys"},
		{name: "bad toml", file: "api_key = \n", wantMsg: "read config"},
		{name: "bad duration in file", file: "[cache]\nttl = \"soon\"\n", wantMsg: "read config"},
		{name: "bad int env", env: map[string]string{"NPMSCOUT_WORKERS": "many"}, wantMsg: "NPMSCOUT_WORKERS"},
		{name: "bad duration env", env: map[string]string{"NPMSCOUT_CACHE_TTL": "forever"}, wantMsg: "NPMSCOUT_CACHE_TTL"},
		{name: "page size out of range", env: map[string]string{"NPMSCOUT_PAGE_SIZE": "500"}, wantMsg: "page_size"},
		{name: "zero workers", env: map[string]string{"NPMSCOUT_WORKERS": "0"}, wantMsg: "enrich.workers"},
		{name: "bad endpoint", env: map[string]string{"NPMSCOUT_REGISTRY_URL": "ftp://registry"}, wantMsg: "endpoints.registry"},
		{name: "bad log level", env: map[string]string{"NPMSCOUT_LOG_LEVEL": "loud"}, wantMsg: "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := env(t, tt.env)
			opts := LoadOptions{Getenv: getenv, EnvFile: noDotenv(t)}
			if tt.file != "" {
				writeFile(t, DefaultConfigPath(getenv), tt.file)
			}
			if tt.explicit {
				opts.ConfigFile = filepath.Join(t.TempDir(), "nope.toml")
			}

			_, err := Load(opts)
			if !npmerrors.Is(err, npmerrors.ErrCodeConfig) {
				t.Fatalf("err = %v, want CONFIG_ERROR", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %q, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestExplicitConfigFile(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "custom.toml"), `
[enrich]
workers = 4
periods = ["last-week"]
file_tree = true

[http]
rate_limit = 2.5
rate_burst = 5
`)
	cfg, err := Load(LoadOptions{ConfigFile: path, Getenv: env(t, nil), EnvFile: noDotenv(t)})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Enrich.Workers != 4 || !cfg.Enrich.FileTree || len(cfg.Enrich.Periods) != 1 {
		t.Errorf("enrich = %+v", cfg.Enrich)
	}
	if cfg.HTTP.RateLimit != 2.5 || cfg.HTTP.RateBurst != 5 {
		t.Errorf("http = %+v", cfg.HTTP)
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatal(err)
	}
	if d.Duration != 90*time.Second {
		t.Errorf("d = %v", d)
	}
	b, _ := d.MarshalText()
	if string(b) != "1m30s" {
		t.Errorf("MarshalText = %q", b)
	}
}

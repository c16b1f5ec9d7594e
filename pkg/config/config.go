// Package config loads npmscout settings.
//
// Sources are applied in order, later ones winning:
//
//  1. Built-in defaults ([Default])
//  2. A TOML file: the path given explicitly, or
//     $XDG_CONFIG_HOME/npmscout/config.toml when it exists
//  3. A .env file (read without modifying the process environment)
//  4. The process environment (LIBRARIES_IO_API_KEY, NPMSCOUT_*)
//
// Command-line flags are applied by the caller on top of the loaded value.
// Every failure is a CONFIG_ERROR.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/matzehuels/npmscout/pkg/buildinfo"
	npmerrors "github.com/matzehuels/npmscout/pkg/errors"
	"github.com/matzehuels/npmscout/pkg/model"
)

// AppName names the configuration and cache directories.
const AppName = "npmscout"

// Duration is a time.Duration read from strings such as "90s" or "24h".
type Duration struct{ time.Duration }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Config holds every setting.
type Config struct {
	APIKey   string `toml:"api_key"`
	LogLevel string `toml:"log_level"`

	Endpoints Endpoints `toml:"endpoints"`
	Cache     Cache     `toml:"cache"`
	Search    Search    `toml:"search"`
	Enrich    Enrich    `toml:"enrich"`
	HTTP      HTTP      `toml:"http"`
	Server    Server    `toml:"server"`
}

// Endpoints are the provider base URLs.
type Endpoints struct {
	Search    string `toml:"search"`
	Registry  string `toml:"registry"`
	Downloads string `toml:"downloads"`
	Unpkg     string `toml:"unpkg"`
}

// Cache configures the package cache.
type Cache struct {
	Path       string   `toml:"path"`
	TTL        Duration `toml:"ttl"`
	HotEntries int64    `toml:"hot_entries"` // 0 disables the in-memory tier
	Disabled   bool     `toml:"disabled"`
}

// Search configures the burst fetcher.
type Search struct {
	MaxResults       int      `toml:"max_results"`
	PageSize         int      `toml:"page_size"`
	RequestsPerBurst int      `toml:"requests_per_burst"`
	Cooldown         Duration `toml:"cooldown"`
	Deadline         Duration `toml:"deadline"`
	StopOnEmptyPage  bool     `toml:"stop_on_empty_page"`
}

// Enrich configures the enrichment pipeline.
type Enrich struct {
	Workers  int      `toml:"workers"`
	Periods  []string `toml:"periods"`
	FileTree bool     `toml:"file_tree"`
}

// HTTP configures the shared provider client.
type HTTP struct {
	UserAgent       string   `toml:"user_agent"`
	Timeout         Duration `toml:"timeout"`
	Retries         int      `toml:"retries"`
	RetryBase       Duration `toml:"retry_base"`
	RateLimit       float64  `toml:"rate_limit"` // Requests per second, 0 = unlimited
	RateBurst       int      `toml:"rate_burst"`
	BreakerFailures uint32   `toml:"breaker_failures"` // 0 disables the breaker
	BreakerCooldown Duration `toml:"breaker_cooldown"`
}

// Server configures the HTTP API.
type Server struct {
	Addr string `toml:"addr"`
}

// Default returns the built-in defaults. Cache.Path is resolved by [Load].
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Endpoints: Endpoints{
			Search:    "https://libraries.io/api",
			Registry:  "https://registry.npmjs.org",
			Downloads: "https://api.npmjs.org/downloads/point",
			Unpkg:     "https://unpkg.com",
		},
		Cache: Cache{
			TTL:        Duration{24 * time.Hour},
			HotEntries: 1024,
		},
		Search: Search{
			MaxResults:       100,
			PageSize:         100,
			RequestsPerBurst: 60,
			Cooldown:         Duration{60 * time.Second},
			StopOnEmptyPage:  true,
		},
		Enrich: Enrich{
			Workers: 20,
			Periods: slices.Clone(model.DefaultPeriods),
		},
		HTTP: HTTP{
			UserAgent:       buildinfo.UserAgent(AppName),
			Timeout:         Duration{10 * time.Second},
			Retries:         3,
			RetryBase:       Duration{time.Second},
			BreakerFailures: 5,
			BreakerCooldown: Duration{30 * time.Second},
		},
		Server: Server{Addr: "127.0.0.1:8080"},
	}
}

// LoadOptions selects the sources read by [Load].
type LoadOptions struct {
	// ConfigFile is an explicit TOML path; it must exist. Empty selects the
	// default path, which may be absent.
	ConfigFile string

	// EnvFile is a dotenv path; absent files are ignored. Empty means ".env".
	EnvFile string

	// Getenv reads the environment (default os.Getenv).
	Getenv func(string) string
}

// Load builds a validated configuration.
func Load(opts LoadOptions) (*Config, error) {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	cfg := Default()

	path, required := opts.ConfigFile, true
	if path == "" {
		path, required = DefaultConfigPath(opts.Getenv), false
	}
	if err := cfg.loadFile(path, required); err != nil {
		return nil, err
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	dotenv, err := readDotenv(envFile)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) string {
		if v := opts.Getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if cfg.Cache.Path == "" {
		cfg.Cache.Path = filepath.Join(CacheDir(opts.Getenv), "cache.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return npmerrors.Wrap(npmerrors.ErrCodeConfig, err, "read config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return npmerrors.New(npmerrors.ErrCodeConfig, "unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func readDotenv(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, npmerrors.Wrap(npmerrors.ErrCodeConfig, err, "read %s", path)
	}
	return env, nil
}

// applyEnv overlays environment variables. Unset or empty variables leave
// the current value.
func (c *Config) applyEnv(get func(string) string) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"LIBRARIES_IO_API_KEY", &c.APIKey},
		{"NPMSCOUT_API_KEY", &c.APIKey},
		{"NPMSCOUT_LOG_LEVEL", &c.LogLevel},
		{"NPMSCOUT_SEARCH_URL", &c.Endpoints.Search},
		{"NPMSCOUT_REGISTRY_URL", &c.Endpoints.Registry},
		{"NPMSCOUT_DOWNLOADS_URL", &c.Endpoints.Downloads},
		{"NPMSCOUT_UNPKG_URL", &c.Endpoints.Unpkg},
		{"NPMSCOUT_CACHE_PATH", &c.Cache.Path},
		{"NPMSCOUT_USER_AGENT", &c.HTTP.UserAgent},
		{"NPMSCOUT_ADDR", &c.Server.Addr},
	}
	for _, s := range strs {
		if v := strings.TrimSpace(get(s.key)); v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"NPMSCOUT_MAX_RESULTS", &c.Search.MaxResults},
		{"NPMSCOUT_PAGE_SIZE", &c.Search.PageSize},
		{"NPMSCOUT_REQUESTS_PER_BURST", &c.Search.RequestsPerBurst},
		{"NPMSCOUT_WORKERS", &c.Enrich.Workers},
		{"NPMSCOUT_HTTP_RETRIES", &c.HTTP.Retries},
	}
	for _, i := range ints {
		v := strings.TrimSpace(get(i.key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return npmerrors.New(npmerrors.ErrCodeConfig, "%s: not an integer: %q", i.key, v)
		}
		*i.dst = n
	}

	durations := []struct {
		key string
		dst *Duration
	}{
		{"NPMSCOUT_CACHE_TTL", &c.Cache.TTL},
		{"NPMSCOUT_COOLDOWN", &c.Search.Cooldown},
		{"NPMSCOUT_DEADLINE", &c.Search.Deadline},
		{"NPMSCOUT_HTTP_TIMEOUT", &c.HTTP.Timeout},
	}
	for _, d := range durations {
		v := strings.TrimSpace(get(d.key))
		if v == "" {
			continue
		}
		if err := d.dst.UnmarshalText([]byte(v)); err != nil {
			return npmerrors.New(npmerrors.ErrCodeConfig, "%s: invalid duration %q", d.key, v)
		}
	}

	if v := strings.TrimSpace(get("NPMSCOUT_NO_CACHE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return npmerrors.New(npmerrors.ErrCodeConfig, "NPMSCOUT_NO_CACHE: not a boolean: %q", v)
		}
		c.Cache.Disabled = b
	}
	return nil
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(slices.Contains(logLevels, c.LogLevel), "log_level must be one of %s, got %q", strings.Join(logLevels, ", "), c.LogLevel)
	check(c.Search.PageSize >= 1 && c.Search.PageSize <= 100, "search.page_size must be between 1 and 100, got %d", c.Search.PageSize)
	check(c.Search.RequestsPerBurst >= 1, "search.requests_per_burst must be positive, got %d", c.Search.RequestsPerBurst)
	check(c.Search.MaxResults >= 0, "search.max_results must not be negative, got %d", c.Search.MaxResults)
	check(c.Search.Cooldown.Duration >= 0, "search.cooldown must not be negative")
	check(c.Search.Deadline.Duration >= 0, "search.deadline must not be negative")
	check(c.Cache.TTL.Duration > 0, "cache.ttl must be positive")
	check(c.Cache.HotEntries >= 0, "cache.hot_entries must not be negative")
	check(c.Enrich.Workers >= 1, "enrich.workers must be positive, got %d", c.Enrich.Workers)
	for _, p := range c.Enrich.Periods {
		check(slices.Contains(model.DefaultPeriods, p), "enrich.periods: unknown period %q", p)
	}
	check(c.HTTP.Timeout.Duration > 0, "http.timeout must be positive")
	check(c.HTTP.Retries >= 1, "http.retries must be at least 1, got %d", c.HTTP.Retries)
	check(c.HTTP.RateLimit >= 0, "http.rate_limit must not be negative")

	for name, u := range map[string]string{
		"endpoints.search":    c.Endpoints.Search,
		"endpoints.registry":  c.Endpoints.Registry,
		"endpoints.downloads": c.Endpoints.Downloads,
		"endpoints.unpkg":     c.Endpoints.Unpkg,
	} {
		if err := npmerrors.ValidateURL(u); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
		}
	}

	if len(problems) > 0 {
		slices.Sort(problems)
		return npmerrors.New(npmerrors.ErrCodeConfig, "invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RequireAPIKey reports a CONFIG_ERROR when no search API key is set.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return npmerrors.New(npmerrors.ErrCodeConfig,
			"a Libraries.io API key is required: set LIBRARIES_IO_API_KEY or api_key in %s", DefaultConfigPath(os.Getenv))
	}
	return nil
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/npmscout/config.toml, falling
// back to ~/.config. It returns "" when no home directory is known.
func DefaultConfigPath(getenv func(string) string) string {
	if dir := getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName, "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", AppName, "config.toml")
}

// CacheDir returns the cache directory using XDG standard (~/.cache/npmscout/).
func CacheDir(getenv func(string) string) string {
	if dir := getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName)
	}
	return filepath.Join(home, ".cache", AppName)
}

// Package cli implements the npmscout command-line interface.
package cli

import (
	"io"
	"net/url"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/matzehuels/npmscout/internal/metrics"
	"github.com/matzehuels/npmscout/pkg/cache"
	"github.com/matzehuels/npmscout/pkg/config"
	"github.com/matzehuels/npmscout/pkg/enrich"
	"github.com/matzehuels/npmscout/pkg/httputil"
	"github.com/matzehuels/npmscout/pkg/integrations"
	"github.com/matzehuels/npmscout/pkg/integrations/librariesio"
	"github.com/matzehuels/npmscout/pkg/integrations/npm"
	"github.com/matzehuels/npmscout/pkg/integrations/unpkg"
	"github.com/matzehuels/npmscout/pkg/observability"
	"github.com/matzehuels/npmscout/pkg/pipeline"
	"github.com/matzehuels/npmscout/pkg/search"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = config.AppName

	// hotTierBytes bounds the in-memory cache tier.
	hotTierBytes = 64 << 20

	defaultRegistryHost = "registry.npmjs.org"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// Set by persistent flags.
	configFile string
	envFile    string
	verbose    bool
	noCache    bool

	getenv func(string) string
	cfg    *config.Config
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		getenv: os.Getenv,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// loadConfig reads the configuration once per invocation.
func (c *CLI) loadConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: c.configFile,
		EnvFile:    c.envFile,
		Getenv:     c.getenv,
	})
	if err != nil {
		return nil, err
	}
	if c.noCache {
		cfg.Cache.Disabled = true
	}
	c.cfg = cfg
	return cfg, nil
}

// =============================================================================
// Services Factory
// =============================================================================

// services is the wired application: provider clients, the cache and the
// search and enrichment pipelines, all reporting to one metrics registry.
type services struct {
	cfg      *config.Config
	logger   *log.Logger
	registry *prometheus.Registry

	npm      *npm.Client
	files    *enrich.CachedFiles
	search   *librariesio.Client
	store    *cache.Store
	enricher *enrich.Pipeline
	runner   *pipeline.Runner
}

// newServices builds the services from cfg.
func newServices(cfg *config.Config, logger *log.Logger) (*services, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	hooks := metrics.New(reg).Hooks()

	store := newStore(cfg, logger, hooks)

	registry := npm.NewClient(newHTTPClient(cfg, "npm", hooks, logger), cfg.Endpoints.Registry, cfg.Endpoints.Downloads)
	keyer := newKeyer(cfg)
	files := enrich.NewCachedFiles(
		unpkg.NewClient(newHTTPClient(cfg, "unpkg", hooks, logger), cfg.Endpoints.Unpkg), store, keyer)
	searcher := librariesio.NewClient(newHTTPClient(cfg, "librariesio", hooks, logger), cfg.Endpoints.Search, cfg.APIKey)

	sourceOpts := []enrich.SourceOption{
		enrich.WithDownloads(registry, cfg.Enrich.Periods),
		enrich.WithSourceLogger(logger),
	}
	if cfg.Enrich.FileTree {
		sourceOpts = append(sourceOpts, enrich.WithFileTree(files))
	}
	enricher := enrich.NewPipeline(enrich.NewRegistrySource(registry, sourceOpts...), store, enrich.Options{
		Workers: cfg.Enrich.Workers,
		Keyer:   keyer,
		Hooks:   hooks,
		Logger:  logger,
	})

	runner := pipeline.NewRunner(searcher, search.Options{
		PageSize:         cfg.Search.PageSize,
		RequestsPerBurst: cfg.Search.RequestsPerBurst,
		Cooldown:         cfg.Search.Cooldown.Duration,
		StopOnEmptyPage:  cfg.Search.StopOnEmptyPage,
		Deadline:         cfg.Search.Deadline.Duration,
		Hooks:            hooks,
		Logger:           logger,
	}, enricher, logger)

	return &services{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		npm:      registry,
		files:    files,
		search:   searcher,
		store:    store,
		enricher: enricher,
		runner:   runner,
	}, nil
}

// Close releases the cache.
func (s *services) Close() error {
	return s.store.Close()
}

// newHTTPClient creates the shared client for one provider. Each provider
// gets its own breaker so an outage of one does not block the others.
func newHTTPClient(cfg *config.Config, provider string, hooks observability.Hooks, logger *log.Logger) *integrations.Client {
	headers := map[string]string{"User-Agent": cfg.HTTP.UserAgent}
	return integrations.NewClient(headers,
		integrations.WithTimeout(cfg.HTTP.Timeout.Duration),
		integrations.WithRetry(httputil.Policy{
			Attempts:  cfg.HTTP.Retries,
			BaseDelay: cfg.HTTP.RetryBase.Duration,
			MaxDelay:  30 * time.Second,
		}),
		integrations.WithRateLimit(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst),
		integrations.WithLogger(logger),
		integrations.WithCircuitBreaker(provider, cfg.HTTP.BreakerFailures, cfg.HTTP.BreakerCooldown.Duration),
		integrations.WithHooks(hooks.HTTP),
	)
}

// newKeyer namespaces cache keys by registry host when a mirror is
// configured, so records from different registries never mix.
func newKeyer(cfg *config.Config) cache.Keyer {
	keyer := cache.NewDefaultKeyer()
	u, err := url.Parse(cfg.Endpoints.Registry)
	if err != nil || u.Host == defaultRegistryHost {
		return keyer
	}
	return cache.NewScopedKeyer(keyer, u.Host+":")
}

// newStore opens the SQLite cache, fronted by an in-memory tier when
// configured. A disabled cache stores nothing. A cache that cannot be opened
// is logged and replaced by one that stores nothing, so every command still
// works without it.
func newStore(cfg *config.Config, logger *log.Logger, hooks observability.Hooks) *cache.Store {
	opts := []cache.Option{cache.WithLogger(logger), cache.WithHooks(hooks.Cache)}
	if cfg.Cache.Disabled {
		return cache.NewStore(cache.NewNullBackend(), cfg.Cache.TTL.Duration, opts...)
	}

	db, err := cache.OpenSQLite(cfg.Cache.Path)
	if err != nil {
		logger.Warn("cache unavailable, continuing without it", "path", cfg.Cache.Path, "err", err)
		return cache.NewStore(cache.NewNullBackend(), cfg.Cache.TTL.Duration, opts...)
	}
	var backend cache.Backend = db
	if cfg.Cache.HotEntries > 0 {
		tiered, err := cache.NewTieredBackend(db, cfg.Cache.HotEntries, hotTierBytes)
		if err != nil {
			logger.Warn("in-memory cache tier unavailable", "err", err)
		} else {
			backend = tiered
		}
	}
	return cache.NewStore(backend, cfg.Cache.TTL.Duration, opts...)
}

package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/npmscout/internal/server"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search API over HTTP",
		Long: `Serve search, package details, file listings and cache statistics as a
JSON HTTP API, with Prometheus metrics on /metrics.

Endpoints:
  GET /api/search?q=<query>&max=<n>&enrich=true&refresh=true&ordered=true
  GET /api/details?name=<package>&refresh=true
  GET /api/tree?name=<package>&version=<version>
  GET /api/readme?name=<package>&version=<version>
  GET /api/cache/stats
  GET /healthz
  GET /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			logger := loggerFromContext(cmd.Context())
			if err := svc.cfg.RequireAPIKey(); err != nil {
				logger.Warn("search is unavailable", "err", err)
			}
			if addr == "" {
				addr = svc.cfg.Server.Addr
			}

			srv := server.New(server.Config{
				Searcher: svc.runner,
				Enricher: svc.enricher,
				Files:    svc.files,
				Cache:    svc.store,
				Gatherer: svc.registry,
				Logger:   logger,
			})
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, 127.0.0.1:8080)")
	return cmd
}

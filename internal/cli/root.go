package cli

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/npmscout/pkg/buildinfo"
)

// RootCommand creates the root cobra command with all subcommands registered.
//
// Persistent flags:
//   - --config: TOML configuration file (default $XDG_CONFIG_HOME/npmscout/config.toml)
//   - --env-file: dotenv file (default .env)
//   - --verbose (-v): debug logging, overriding log_level
//   - --no-cache: neither read nor write the package cache
//
// The configuration is loaded before any subcommand runs, and the logger is
// attached to the command context.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "npmscout searches, enriches and caches npm package metadata",
		Long: `npmscout searches npm packages through Libraries.io, enriches the results
with registry metadata and download counts, and keeps them in a local cache.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			level, err := log.ParseLevel(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("log level: %w", err)
			}
			if c.verbose {
				level = log.DebugLevel
			}
			c.SetLogLevel(level)
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "configuration file")
	flags.StringVar(&c.envFile, "env-file", "", "dotenv file (default .env)")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	flags.BoolVar(&c.noCache, "no-cache", false, "disable the package cache")

	root.AddCommand(c.searchCommand())
	root.AddCommand(c.detailsCommand())
	root.AddCommand(c.treeCommand())
	root.AddCommand(c.readmeCommand())
	root.AddCommand(c.downloadCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// open loads the configuration and wires the application. Commands that
// search pass requireKey.
func (c *CLI) open(cmd *cobra.Command, requireKey bool) (*services, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	if requireKey {
		if err := cfg.RequireAPIKey(); err != nil {
			return nil, err
		}
	}
	return newServices(cfg, loggerFromContext(cmd.Context()))
}

package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the package cache",
	}

	cmd.AddCommand(c.cacheStatsCommand())
	cmd.AddCommand(c.cacheSweepCommand())
	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheStatsCommand creates the "cache stats" subcommand.
func (c *CLI) cacheStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show how many cached packages are fresh or expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			out := cmd.OutOrStdout()
			if svc.cfg.Cache.Disabled {
				printWarning(out, "Cache is disabled")
				return nil
			}
			st := svc.store.Stats(cmd.Context())
			printKeyValue(out, "Path", svc.cfg.Cache.Path)
			printKeyValue(out, "TTL", svc.store.TTL().String())
			printKeyValue(out, "Entries", humanize.Comma(int64(st.Total)))
			printKeyValue(out, "Valid", humanize.Comma(int64(st.Valid)))
			printKeyValue(out, "Expired", humanize.Comma(int64(st.Expired)))
			return nil
		},
	}
}

// cacheSweepCommand creates the "cache sweep" subcommand.
func (c *CLI) cacheSweepCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			maxAge := svc.store.TTL()
			if olderThan > 0 {
				maxAge = olderThan
			}
			n := svc.store.SweepExpired(cmd.Context(), maxAge)
			printSuccess(cmd.OutOrStdout(), "Removed %s entries older than %s", humanize.Comma(int64(n)), maxAge)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age limit (default: the cache TTL)")
	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			out := cmd.OutOrStdout()
			n := svc.store.Clear(cmd.Context())
			if n == 0 {
				printInfo(out, "Cache is empty")
				return nil
			}
			printSuccess(out, "Cleared %s cached entries", humanize.Comma(int64(n)))
			printDetail(out, "Database: %s", svc.cfg.Cache.Path)
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache database path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.Cache.Path)
			return nil
		},
	}
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/npmscout/pkg/integrations"
)

// detailsCommand creates the details command.
func (c *CLI) detailsCommand() *cobra.Command {
	var refresh, asJSON bool

	cmd := &cobra.Command{
		Use:   "details <package>",
		Short: "Show registry metadata and download counts for a package",
		Example: `  npmscout details lodash
  npmscout details @types/node --refresh`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			p := svc.enricher
			if refresh {
				p = p.Derive(true, false)
			}
			start := time.Now()
			pkg, err := p.Lookup(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), pkg)
			}
			printPackage(cmd.OutOrStdout(), pkg, pkg.EnrichedAt.Before(start))
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

// treeCommand creates the tree command.
func (c *CLI) treeCommand() *cobra.Command {
	var version string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tree <package>",
		Short: "List the files of a published package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			name := integrations.NormalizePkgName(args[0])
			root, err := svc.files.FetchTree(cmd.Context(), name, version)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), root)
			}
			printTree(cmd.OutOrStdout(), root)
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "package version or dist-tag (default latest)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

// readmeCommand creates the readme command.
func (c *CLI) readmeCommand() *cobra.Command {
	var version string

	cmd := &cobra.Command{
		Use:   "readme <package>",
		Short: "Print the README of a published package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			name := integrations.NormalizePkgName(args[0])
			file, content, err := svc.files.FetchReadme(cmd.Context(), name, version)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			loggerFromContext(cmd.Context()).Debug("readme", "package", name, "file", file)
			_, err = io.WriteString(cmd.OutOrStdout(), content)
			return err
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "package version or dist-tag (default latest)")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	npmerrors "github.com/matzehuels/npmscout/pkg/errors"
	"github.com/matzehuels/npmscout/pkg/integrations"
	"github.com/matzehuels/npmscout/pkg/tarball"
)

// downloadCommand creates the download command.
func (c *CLI) downloadCommand() *cobra.Command {
	var (
		version string
		dir     string
		extract bool
	)

	cmd := &cobra.Command{
		Use:   "download <package>",
		Short: "Download a package tarball",
		Long: `Download the tarball of a published package version.

With --extract the archive is unpacked next to it into <name>-<version>/.
Entries that would escape the target directory abort the extraction, and
links are never extracted.`,
		Example: `  npmscout download lodash --version 4.17.21 --extract
  npmscout download @types/node --dir ./vendor`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			logger := loggerFromContext(ctx)
			name := integrations.NormalizePkgName(args[0])
			if err := npmerrors.ValidateNpmPackageName(name); err != nil {
				return err
			}

			info, err := svc.npm.FetchPackage(ctx, name, version)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if info.TarballURL == "" {
				return npmerrors.New(npmerrors.ErrCodeNotFound, "%s@%s has no tarball", name, info.Version)
			}

			prog := newProgress(logger)
			spinner := newSpinnerTo(ctx, cmd.ErrOrStderr(), fmt.Sprintf("Downloading %s@%s", name, info.Version))
			spinner.Start()
			d := tarball.NewDownloader(svc.npm.Client, logger)
			path, n, err := d.Download(ctx, info.TarballURL, dir, tarball.FileName(name, info.Version))
			spinner.Stop()
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Downloaded %s@%s", name, info.Version))
			printSuccess(out, "Downloaded %s@%s (%s)", name, info.Version, humanize.Bytes(uint64(n)))
			printFile(out, path)

			if !extract {
				return nil
			}
			dest := strings.TrimSuffix(path, filepath.Ext(path))
			sum, err := tarball.ExtractFile(path, dest, tarball.Limits{})
			if err != nil {
				return fmt.Errorf("extract %s: %w", path, err)
			}
			printSuccess(out, "Extracted %s files (%s)", humanize.Comma(int64(sum.Files)), humanize.Bytes(uint64(sum.Bytes)))
			printFile(out, dest)
			for _, s := range sum.Skipped {
				printDetail(out, "skipped %s", s)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "package version or dist-tag (default latest)")
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "directory to write the tarball to")
	cmd.Flags().BoolVarP(&extract, "extract", "x", false, "extract the tarball after downloading")
	return cmd
}

// Package tarball downloads npm package tarballs and extracts them safely.
//
// npm tarballs are gzip-compressed tar archives whose entries live under a
// single top-level directory, usually "package/". [Extract] strips that
// directory and rejects any entry that would land outside the destination.
package tarball

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	npmerrors "github.com/matzehuels/npmscout/pkg/errors"
)

// Extraction limits.
const (
	DefaultMaxBytes = 512 << 20
	DefaultMaxFiles = 20_000
)

// ErrTooLarge is returned when an archive exceeds the extraction limits.
var ErrTooLarge = errors.New("archive exceeds extraction limits")

// Opener streams the body at a URL. [integrations.Client] implements it.
type Opener interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// Downloader fetches tarballs to disk.
type Downloader struct {
	client Opener
	logger *log.Logger
}

// NewDownloader creates a downloader. A nil logger uses log.Default().
func NewDownloader(client Opener, logger *log.Logger) *Downloader {
	if logger == nil {
		logger = log.Default()
	}
	return &Downloader{client: client, logger: logger}
}

// FileName returns "<name>-<version>.tgz" with a scope's "@" dropped and its
// "/" replaced, so "@types/node" becomes "types-node-<version>.tgz".
func FileName(name, version string) string {
	name = strings.TrimPrefix(name, "@")
	name = strings.ReplaceAll(name, "/", "-")
	return name + "-" + version + ".tgz"
}

// Download writes the tarball at url to dir/filename and returns the path and
// byte count. The file appears only once fully written.
func (d *Downloader) Download(ctx context.Context, url, dir, filename string) (string, int64, error) {
	if err := npmerrors.ValidateURL(url); err != nil {
		return "", 0, err
	}
	if err := npmerrors.ValidatePath(filename); err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create %s: %w", dir, err)
	}

	body, err := d.client.Open(ctx, url)
	if err != nil {
		return "", 0, err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, fmt.Errorf("download %s: %w", url, err)
	}

	dst := filepath.Join(dir, filename)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", 0, err
	}
	d.logger.Info("downloaded tarball", "path", dst, "bytes", n)
	return dst, n, nil
}

// Limits bounds an extraction. Zero fields take the defaults.
type Limits struct {
	MaxBytes int64
	MaxFiles int
}

func (l Limits) withDefaults() Limits {
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultMaxBytes
	}
	if l.MaxFiles <= 0 {
		l.MaxFiles = DefaultMaxFiles
	}
	return l
}

// Summary describes an extraction.
type Summary struct {
	Files   int
	Bytes   int64
	Skipped []string // Links and special files, which are never extracted
}

// ExtractFile extracts the gzip tarball at src into dest.
func ExtractFile(src, dest string, limits Limits) (Summary, error) {
	f, err := os.Open(src)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()
	return Extract(f, dest, limits)
}

// Extract reads a gzip tarball from r into dest, stripping the top-level
// directory. Entries with absolute paths or ".." segments fail the whole
// extraction with INVALID_PATH.
func Extract(r io.Reader, dest string, limits Limits) (Summary, error) {
	limits = limits.withDefaults()
	var sum Summary

	gz, err := gzip.NewReader(r)
	if err != nil {
		return sum, fmt.Errorf("not a gzip archive: %w", err)
	}
	defer gz.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return sum, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return sum, err
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return sum, nil
		}
		if err != nil {
			return sum, fmt.Errorf("read archive: %w", err)
		}

		rel, err := entryPath(hdr.Name)
		if err != nil {
			return sum, err
		}
		if rel == "" {
			continue
		}
		target := filepath.Join(root, filepath.FromSlash(rel))
		if !within(root, target) {
			return sum, npmerrors.New(npmerrors.ErrCodeInvalidPath, "archive entry escapes destination: %q", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return sum, err
			}
		case tar.TypeReg:
			if sum.Files+1 > limits.MaxFiles || sum.Bytes+hdr.Size > limits.MaxBytes {
				return sum, fmt.Errorf("%w: %d files, %d bytes", ErrTooLarge, limits.MaxFiles, limits.MaxBytes)
			}
			n, err := writeFile(target, tr, hdr)
			if err != nil {
				return sum, err
			}
			sum.Files++
			sum.Bytes += n
		default:
			sum.Skipped = append(sum.Skipped, rel)
		}
	}
}

// entryPath validates name and strips its first component. It returns ""
// for the top-level directory itself.
func entryPath(name string) (string, error) {
	if err := npmerrors.ValidatePath(name); err != nil {
		return "", err
	}
	clean := path.Clean(strings.TrimPrefix(name, "./"))
	_, rest, found := strings.Cut(clean, "/")
	if !found {
		return "", nil
	}
	return rest, nil
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func writeFile(target string, r io.Reader, hdr *tar.Header) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	mode := os.FileMode(0o644)
	if hdr.FileInfo().Mode()&0o111 != 0 {
		mode = 0o755
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, io.LimitReader(r, hdr.Size))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

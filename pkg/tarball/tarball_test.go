package tarball

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	npmerrors "github.com/matzehuels/npmscout/pkg/errors"
	"github.com/matzehuels/npmscout/pkg/httputil"
	"github.com/matzehuels/npmscout/pkg/integrations"
)

type entry struct {
	name     string
	body     string
	typeflag byte
	mode     int64
}

func buildTarball(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Typeflag: e.typeflag, Mode: e.mode}
		if hdr.Typeflag == 0 {
			hdr.Typeflag = tar.TypeReg
		}
		if hdr.Mode == 0 {
			hdr.Mode = 0o644
		}
		switch hdr.Typeflag {
		case tar.TypeReg:
			hdr.Size = int64(len(e.body))
		case tar.TypeSymlink:
			hdr.Linkname = e.body
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	data := buildTarball(t,
		entry{name: "package/", typeflag: tar.TypeDir},
		entry{name: "package/package.json", body: `{"name":"demo"}`},
		entry{name: "package/lib/index.js", body: "module.exports = 1\n"},
		entry{name: "package/bin/cli.js", body: "#!/usr/bin/env node\n", mode: 0o755},
		entry{name: "package/link", body: "/etc/passwd", typeflag: tar.TypeSymlink},
	)
	dest := t.TempDir()

	sum, err := Extract(bytes.NewReader(data), dest, Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Files != 3 {
		t.Errorf("files = %d, want 3", sum.Files)
	}
	if len(sum.Skipped) != 1 || sum.Skipped[0] != "link" {
		t.Errorf("skipped = %v, want [link]", sum.Skipped)
	}

	got, err := os.ReadFile(filepath.Join(dest, "lib", "index.js"))
	if err != nil || string(got) != "module.exports = 1\n" {
		t.Errorf("lib/index.js = %q, %v", got, err)
	}
	info, err := os.Stat(filepath.Join(dest, "bin", "cli.js"))
	if err != nil || info.Mode().Perm()&0o100 == 0 {
		t.Errorf("bin/cli.js should stay executable: %v %v", info, err)
	}
	if _, err := os.Lstat(filepath.Join(dest, "link")); !os.IsNotExist(err) {
		t.Error("symlinks must not be extracted")
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{"parent segment", "package/../../evil.sh"},
		{"absolute", "/etc/cron.d/evil"},
		{"backslash", `package\..\evil`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent := t.TempDir()
			dest := filepath.Join(parent, "out")
			data := buildTarball(t, entry{name: tt.entry, body: "boom"})

			_, err := Extract(bytes.NewReader(data), dest, Limits{})
			if !npmerrors.Is(err, npmerrors.ErrCodeInvalidPath) {
				t.Fatalf("err = %v, want INVALID_PATH", err)
			}
			if _, err := os.Stat(filepath.Join(parent, "evil.sh")); !os.IsNotExist(err) {
				t.Error("file written outside the destination")
			}
		})
	}
}

func TestExtractLimits(t *testing.T) {
	data := buildTarball(t,
		entry{name: "package/a.txt", body: "aaaa"},
		entry{name: "package/b.txt", body: "bbbb"},
	)

	if _, err := Extract(bytes.NewReader(data), t.TempDir(), Limits{MaxFiles: 1}); !errors.Is(err, ErrTooLarge) {
		t.Errorf("file limit: err = %v", err)
	}
	if _, err := Extract(bytes.NewReader(data), t.TempDir(), Limits{MaxBytes: 6}); !errors.Is(err, ErrTooLarge) {
		t.Errorf("byte limit: err = %v", err)
	}
}

func TestExtractNotGzip(t *testing.T) {
	if _, err := Extract(bytes.NewReader([]byte("plain text")), t.TempDir(), Limits{}); err == nil {
		t.Error("expected an error for non-gzip input")
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name, version, want string
	}{
		{"lodash", "4.17.21", "lodash-4.17.21.tgz"},
		{"@types/node", "20.1.0", "types-node-20.1.0.tgz"},
	}
	for _, tt := range tests {
		if got := FileName(tt.name, tt.version); got != tt.want {
			t.Errorf("FileName(%q, %q) = %q, want %q", tt.name, tt.version, got, tt.want)
		}
	}
}

func TestDownloadAndExtract(t *testing.T) {
	data := buildTarball(t, entry{name: "package/index.js", body: "ok"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lodash/-/lodash-4.17.21.tgz" {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(server.Close)

	hc := integrations.NewClient(nil,
		integrations.WithHTTPClient(server.Client()),
		integrations.WithRetry(httputil.Policy{Attempts: 1}),
		integrations.WithLogger(log.New(io.Discard)),
	)
	d := NewDownloader(hc, log.New(io.Discard))
	dir := t.TempDir()

	path, n, err := d.Download(context.Background(), server.URL+"/lodash/-/lodash-4.17.21.tgz", dir, FileName("lodash", "4.17.21"))
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(data)) || filepath.Base(path) != "lodash-4.17.21.tgz" {
		t.Errorf("path = %s, bytes = %d", path, n)
	}

	sum, err := ExtractFile(path, filepath.Join(dir, "lodash"), Limits{})
	if err != nil || sum.Files != 1 {
		t.Fatalf("extract: %+v, %v", sum, err)
	}

	_, _, err = d.Download(context.Background(), server.URL+"/missing.tgz", dir, "missing.tgz")
	if !errors.Is(err, integrations.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "missing.tgz")); !os.IsNotExist(err) {
		t.Error("a failed download must not leave a file")
	}
}

package npm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matzehuels/npmscout/pkg/integrations"
	"github.com/matzehuels/npmscout/pkg/model"
)

// Default endpoints.
const (
	DefaultRegistryURL  = "https://registry.npmjs.org"
	DefaultDownloadsURL = "https://api.npmjs.org/downloads/point"
)

// PackageInfo is the registry view of one package version.
type PackageInfo struct {
	Name             string
	Version          string
	Description      string
	License          string
	Author           string
	Maintainers      []model.Maintainer
	Keywords         []string
	Repository       string
	HomePage         string
	Dependencies     map[string]string
	DevDependencies  map[string]string
	PeerDependencies map[string]string
	Deprecated       string
	TarballURL       string
	FileCount        int
	UnpackedSize     int64
	VersionsCount    int
	CreatedAt        time.Time
	ModifiedAt       time.Time
	PublishedAt      time.Time // Publication time of Version
}

type Client struct {
	*integrations.Client
	baseURL      string
	downloadsURL string
}

// NewClient creates a registry client on top of the shared HTTP client.
// Empty URLs select the public npm endpoints.
func NewClient(hc *integrations.Client, registryURL, downloadsURL string) *Client {
	if registryURL == "" {
		registryURL = DefaultRegistryURL
	}
	if downloadsURL == "" {
		downloadsURL = DefaultDownloadsURL
	}
	return &Client{
		Client:       hc,
		baseURL:      strings.TrimRight(registryURL, "/"),
		downloadsURL: strings.TrimRight(downloadsURL, "/"),
	}
}

// FetchPackage fetches the registry document for pkg and extracts version.
// An empty version selects the "latest" dist-tag; other dist-tags ("next")
// are resolved too.
func (c *Client) FetchPackage(ctx context.Context, pkg, version string) (*PackageInfo, error) {
	pkg = integrations.NormalizePkgName(pkg)

	var data registryResponse
	if err := c.Get(ctx, c.baseURL+"/"+integrations.PackagePath(pkg), &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return nil, fmt.Errorf("%w: npm package %s", err, pkg)
		}
		return nil, err
	}

	resolved := resolveVersion(&data, version)
	v, ok := data.Versions[resolved]
	if !ok {
		return nil, fmt.Errorf("%w: npm package %s version %q", integrations.ErrNotFound, pkg, version)
	}

	return &PackageInfo{
		Name:             data.Name,
		Version:          resolved,
		Description:      firstNonEmpty(v.Description, data.Description),
		License:          extractField(v.License, "type"),
		Author:           extractField(v.Author, "name"),
		Maintainers:      maintainers(data.Maintainers),
		Keywords:         keywords(v.Keywords),
		Repository:       integrations.NormalizeRepoURL(extractField(v.Repository, "url")),
		HomePage:         v.HomePage,
		Dependencies:     v.Dependencies,
		DevDependencies:  v.DevDependencies,
		PeerDependencies: v.PeerDependencies,
		Deprecated:       deprecation(v.Deprecated),
		TarballURL:       v.Dist.Tarball,
		FileCount:        v.Dist.FileCount,
		UnpackedSize:     v.Dist.UnpackedSize,
		VersionsCount:    len(data.Versions),
		CreatedAt:        parseTime(data.Time["created"]),
		ModifiedAt:       parseTime(data.Time["modified"]),
		PublishedAt:      parseTime(data.Time[resolved]),
	}, nil
}

// FetchDownloads returns the download count of pkg for period
// (see [model.PeriodLastWeek] and friends).
func (c *Client) FetchDownloads(ctx context.Context, pkg, period string) (int64, error) {
	pkg = integrations.NormalizePkgName(pkg)
	var data downloadsResponse
	if err := c.Get(ctx, c.downloadsURL+"/"+period+"/"+pkg, &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return 0, fmt.Errorf("%w: downloads for %s", err, pkg)
		}
		return 0, err
	}
	return data.Downloads, nil
}

// Downloads fetches every period. Periods that fail are left out of the map
// and their errors are joined.
func (c *Client) Downloads(ctx context.Context, pkg string, periods []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(periods))
	var errs []error
	for _, p := range periods {
		n, err := c.FetchDownloads(ctx, pkg, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		counts[p] = n
	}
	return counts, errors.Join(errs...)
}

func resolveVersion(data *registryResponse, version string) string {
	if version == "" || version == "latest" {
		return data.DistTags["latest"]
	}
	if tagged, ok := data.DistTags[version]; ok {
		return tagged
	}
	return version
}

func extractField(v any, field string) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if s, ok := val[field].(string); ok {
			return s
		}
	}
	return ""
}

// keywords accepts both the array form and the legacy comma-separated string.
func keywords(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, k := range val {
			if s, ok := k.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, k := range strings.Split(val, ",") {
			if k = strings.TrimSpace(k); k != "" {
				out = append(out, k)
			}
		}
		return out
	}
	return nil
}

// deprecation normalizes the "deprecated" field, which is a message or a bool.
func deprecation(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "deprecated"
		}
	}
	return ""
}

func maintainers(in []person) []model.Maintainer {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.Maintainer, 0, len(in))
	for _, p := range in {
		out = append(out, model.Maintainer{Name: p.Name, Email: p.Email})
	}
	return out
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

type registryResponse struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	DistTags    map[string]string         `json:"dist-tags"`
	Versions    map[string]versionDetails `json:"versions"`
	Time        map[string]string         `json:"time"`
	Maintainers []person                  `json:"maintainers"`
}

type person struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type versionDetails struct {
	Description      string            `json:"description"`
	License          any               `json:"license"`
	Author           any               `json:"author"`
	Repository       any               `json:"repository"`
	HomePage         string            `json:"homepage"`
	Keywords         any               `json:"keywords"`
	Deprecated       any               `json:"deprecated"`
	Dependencies     map[string]string `json:"dependencies"`
	DevDependencies  map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
	Dist             distInfo          `json:"dist"`
}

type distInfo struct {
	Tarball      string `json:"tarball"`
	FileCount    int    `json:"fileCount"`
	UnpackedSize int64  `json:"unpackedSize"`
}

type downloadsResponse struct {
	Downloads int64  `json:"downloads"`
	Package   string `json:"package"`
}

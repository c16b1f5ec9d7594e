package enrich

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/npmscout/pkg/integrations"
	"github.com/matzehuels/npmscout/pkg/integrations/npm"
	"github.com/matzehuels/npmscout/pkg/model"
)

// Source turns a search hit into an enriched record.
type Source interface {
	Enrich(ctx context.Context, r model.SearchResult) (*model.EnrichedPackage, error)
}

// Registry fetches the registry document of a package version.
// An empty version means the "latest" dist-tag.
type Registry interface {
	FetchPackage(ctx context.Context, pkg, version string) (*npm.PackageInfo, error)
}

// DownloadCounter fetches download counts per period. It may return a
// partial map together with an error.
type DownloadCounter interface {
	Downloads(ctx context.Context, pkg string, periods []string) (map[string]int64, error)
}

// TreeFetcher lists the files of a published package version.
type TreeFetcher interface {
	FetchTree(ctx context.Context, pkg, version string) (*model.FileNode, error)
}

// RegistrySource enriches from the npm registry, which is required, and
// optionally from the download-count API and unpkg. Failures of the optional
// sources are logged and leave their fields empty.
type RegistrySource struct {
	registry  Registry
	downloads DownloadCounter
	periods   []string
	tree      TreeFetcher
	logger    *log.Logger
	now       func() time.Time
}

// SourceOption configures a [RegistrySource].
type SourceOption func(*RegistrySource)

// WithDownloads adds download counts for periods (nil = [model.DefaultPeriods]).
func WithDownloads(d DownloadCounter, periods []string) SourceOption {
	return func(s *RegistrySource) {
		s.downloads = d
		if len(periods) > 0 {
			s.periods = periods
		}
	}
}

// WithFileTree adds the package file listing.
func WithFileTree(t TreeFetcher) SourceOption {
	return func(s *RegistrySource) { s.tree = t }
}

// WithSourceLogger sets the logger for optional-source failures.
func WithSourceLogger(l *log.Logger) SourceOption {
	return func(s *RegistrySource) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSourceClock sets the clock used for EnrichedAt.
func WithSourceClock(now func() time.Time) SourceOption {
	return func(s *RegistrySource) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRegistrySource creates a source backed by registry.
func NewRegistrySource(registry Registry, opts ...SourceOption) *RegistrySource {
	s := &RegistrySource{
		registry: registry,
		periods:  model.DefaultPeriods,
		logger:   log.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enrich implements [Source].
func (s *RegistrySource) Enrich(ctx context.Context, r model.SearchResult) (*model.EnrichedPackage, error) {
	info, err := s.registry.FetchPackage(ctx, r.Name, "")
	if err != nil {
		return nil, err
	}

	p := model.FromSearchResult(r)
	merge(&p, info)

	if s.downloads != nil {
		counts, err := s.downloads.Downloads(ctx, info.Name, s.periods)
		if err != nil {
			s.logger.Warn("download counts incomplete", "package", info.Name, "err", err)
		}
		if len(counts) > 0 {
			p.Downloads = counts
		}
	}
	if s.tree != nil {
		tree, err := s.tree.FetchTree(ctx, info.Name, info.Version)
		if err != nil {
			s.logger.Warn("file tree unavailable", "package", info.Name, "err", err)
		} else {
			p.FileTree = tree
		}
	}

	p.Enriched = true
	p.EnrichedAt = s.now().UTC()
	return &p, nil
}

// merge overlays registry fields on p. Registry values win when present;
// search values remain as fallbacks.
func merge(p *model.EnrichedPackage, info *npm.PackageInfo) {
	if info.Name != "" {
		p.Name = info.Name
	}
	if info.Version != "" {
		p.LatestVersion = info.Version
	}
	if info.Description != "" {
		p.Description = info.Description
	}
	if info.HomePage != "" {
		p.Homepage = info.HomePage
	}
	if info.Repository != "" {
		p.RepositoryURL = integrations.NormalizeRepoURL(info.Repository)
	}
	if len(info.Keywords) > 0 {
		p.Keywords = info.Keywords
	}
	if info.License != "" {
		p.License = info.License
	}
	if !info.PublishedAt.IsZero() {
		p.PublishedAt = info.PublishedAt
	}

	p.Author = info.Author
	p.Maintainers = info.Maintainers
	p.Dependencies = info.Dependencies
	p.DevDependencies = info.DevDependencies
	p.PeerDependencies = info.PeerDependencies
	p.VersionsCount = info.VersionsCount
	p.CreatedAt = info.CreatedAt
	p.ModifiedAt = info.ModifiedAt
	p.LatestPublishedAt = info.PublishedAt
	p.FileCount = info.FileCount
	p.UnpackedSize = info.UnpackedSize
	p.TarballURL = info.TarballURL
	p.Deprecated = info.Deprecated
}

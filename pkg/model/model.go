// Package model defines the package records that flow from search through
// enrichment to the cache and the CLI.
//
// A [SearchResult] is what the search provider returns for one hit. An
// [EnrichedPackage] is a superset assembled from the npm registry, the
// download-count API and unpkg. Both are plain values with no identity beyond
// their name; the cache key is derived from name and version.
package model

import "time"

// SearchResult is one hit returned by the search provider.
type SearchResult struct {
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	LatestVersion   string    `json:"latest_version,omitempty"`
	Homepage        string    `json:"homepage,omitempty"`
	RepositoryURL   string    `json:"repository_url,omitempty"`
	Stars           int       `json:"stars"`
	DependentsCount int       `json:"dependents_count"`
	Rank            int       `json:"rank"`
	Keywords        []string  `json:"keywords,omitempty"`
	Licenses        string    `json:"licenses,omitempty"`
	PublishedAt     time.Time `json:"latest_release_published_at"`
}

// Maintainer is an npm account with publish rights.
type Maintainer struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Download periods understood by the npm download-count API.
const (
	PeriodLastDay   = "last-day"
	PeriodLastWeek  = "last-week"
	PeriodLastMonth = "last-month"
)

// DefaultPeriods are the download periods fetched during enrichment.
var DefaultPeriods = []string{PeriodLastDay, PeriodLastWeek, PeriodLastMonth}

// EnrichedPackage is a search result extended with registry metadata.
// Enriched is false for a fallback record built by [FromSearchResult].
type EnrichedPackage struct {
	SearchResult

	Author            string            `json:"author,omitempty"`
	Maintainers       []Maintainer      `json:"maintainers,omitempty"`
	License           string            `json:"license,omitempty"`
	Dependencies      map[string]string `json:"dependencies,omitempty"`
	DevDependencies   map[string]string `json:"dev_dependencies,omitempty"`
	PeerDependencies  map[string]string `json:"peer_dependencies,omitempty"`
	VersionsCount     int               `json:"versions_count"`
	CreatedAt         time.Time         `json:"created_at"`
	ModifiedAt        time.Time         `json:"modified_at"`
	LatestPublishedAt time.Time         `json:"latest_published_at"`
	FileCount         int               `json:"file_count,omitempty"`
	UnpackedSize      int64             `json:"unpacked_size,omitempty"`
	TarballURL        string            `json:"tarball_url,omitempty"`
	Deprecated        string            `json:"deprecated,omitempty"`
	Downloads         map[string]int64  `json:"downloads,omitempty"`
	FileTree          *FileNode         `json:"file_tree,omitempty"`
	Enriched          bool              `json:"enriched"`
	EnrichedAt        time.Time         `json:"enriched_at"`
}

// FromSearchResult builds the unenriched fallback record for r.
func FromSearchResult(r SearchResult) EnrichedPackage {
	return EnrichedPackage{SearchResult: r, License: r.Licenses}
}

// WeeklyDownloads returns the last-week count, or 0 when unknown.
func (p *EnrichedPackage) WeeklyDownloads() int64 {
	return p.Downloads[PeriodLastWeek]
}

// Node types in a [FileNode] tree.
const (
	NodeFile      = "file"
	NodeDirectory = "directory"
)

// FileNode is one entry of a package file listing.
type FileNode struct {
	Path  string     `json:"path"`
	Type  string     `json:"type"`
	Size  int64      `json:"size,omitempty"`
	Files []FileNode `json:"files,omitempty"`
}

// IsDir reports whether n is a directory.
func (n *FileNode) IsDir() bool { return n.Type == NodeDirectory }

// Walk calls fn for n and every descendant in depth-first order, passing the
// depth (0 for n). Returning false from fn skips the node's children.
func (n *FileNode) Walk(fn func(node *FileNode, depth int) bool) {
	n.walk(fn, 0)
}

func (n *FileNode) walk(fn func(*FileNode, int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for i := range n.Files {
		n.Files[i].walk(fn, depth+1)
	}
}

// Stats returns the number of files and their total size.
func (n *FileNode) Stats() (files int, size int64) {
	n.Walk(func(node *FileNode, _ int) bool {
		if !node.IsDir() {
			files++
			size += node.Size
		}
		return true
	})
	return files, size
}

// Find returns the node with the given path, or nil.
func (n *FileNode) Find(path string) *FileNode {
	var found *FileNode
	n.Walk(func(node *FileNode, _ int) bool {
		if found != nil {
			return false
		}
		if node.Path == path {
			found = node
			return false
		}
		return true
	})
	return found
}

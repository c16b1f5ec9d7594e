package enrich

import (
	"context"

	"github.com/matzehuels/npmscout/pkg/cache"
	"github.com/matzehuels/npmscout/pkg/integrations"
	"github.com/matzehuels/npmscout/pkg/model"
)

// Files lists and reads the contents of published packages.
type Files interface {
	TreeFetcher
	FetchReadme(ctx context.Context, pkg, version string) (name, content string, err error)
}

// CachedFiles serves file listings from the cache before asking the CDN.
// READMEs are not cached.
type CachedFiles struct {
	files Files
	store *cache.Store
	keyer cache.Keyer
}

// NewCachedFiles wraps files. A nil keyer selects [cache.DefaultKeyer].
func NewCachedFiles(files Files, store *cache.Store, keyer cache.Keyer) *CachedFiles {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if store == nil {
		store = cache.NewStore(nil, 0)
	}
	return &CachedFiles{files: files, store: store, keyer: keyer}
}

// FetchTree returns the file listing of pkg at version ("" for latest).
func (c *CachedFiles) FetchTree(ctx context.Context, pkg, version string) (*model.FileNode, error) {
	pkg = integrations.NormalizePkgName(pkg)

	var root *model.FileNode
	err := integrations.Cached(ctx, c.store, c.keyer.TreeKey(pkg, version), false, &root, func() error {
		var err error
		root, err = c.files.FetchTree(ctx, pkg, version)
		return err
	})
	if err != nil {
		return nil, err
	}
	return root, nil
}

// FetchReadme returns the README file name and content.
func (c *CachedFiles) FetchReadme(ctx context.Context, pkg, version string) (string, string, error) {
	return c.files.FetchReadme(ctx, integrations.NormalizePkgName(pkg), version)
}

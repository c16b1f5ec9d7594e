// Package npm provides an HTTP client for the npm registry and the npm
// download-count API.
//
// # Overview
//
// This package fetches package metadata from the npm registry
// (https://registry.npmjs.org) and download counts from
// https://api.npmjs.org/downloads/point.
//
// # Usage
//
//	hc := integrations.NewClient(map[string]string{"User-Agent": ua})
//	client := npm.NewClient(hc, "", "")
//
//	pkg, err := client.FetchPackage(ctx, "express", "")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(pkg.Name, pkg.Version, pkg.TarballURL)
//
//	counts, err := client.Downloads(ctx, "express", model.DefaultPeriods)
//
// # PackageInfo
//
// [Client.FetchPackage] returns a [PackageInfo] for one version containing:
//
//   - Name, Version: Package identity
//   - Dependencies, DevDependencies, PeerDependencies: name to range maps
//   - Maintainers, Author, License, Keywords: Package metadata
//   - Repository, HomePage: Normalized URLs
//   - TarballURL, FileCount, UnpackedSize: From the version's dist block
//   - CreatedAt, ModifiedAt, PublishedAt: From the document's time map
//
// # Version Selection
//
// An empty version selects the "latest" dist-tag. Any other dist-tag is
// resolved through dist-tags; anything else is looked up verbatim.
//
// Caching is not done here; callers wrap results with [integrations.Cached]
// or store enriched records in a [cache.Store].
//
// [cache.Store]: github.com/matzehuels/npmscout/pkg/cache.Store
package npm

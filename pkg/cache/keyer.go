package cache

import "strings"

// Key namespaces. The part of a key before the first ':' names its type in
// logs and metrics.
const (
	PackagePrefix = "pkg"
	TreePrefix    = "tree"
)

// Keyer derives cache keys. Implementations must be deterministic: the same
// inputs always produce the same key.
type Keyer interface {
	// PackageKey returns the key for an enriched package record.
	PackageKey(name, version string) string

	// TreeKey returns the key for a package file listing.
	TreeKey(name, version string) string
}

// DefaultKeyer implements [Keyer] with SHA-256 digests.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// PackageKey returns "pkg:" + sha256_hex(lower(name) + "@" + version).
// An empty version is keyed as "latest".
func (DefaultKeyer) PackageKey(name, version string) string {
	return PackagePrefix + ":" + Hash([]byte(packageRef(name, version)))
}

// TreeKey returns "tree:" + a digest of the package reference.
func (DefaultKeyer) TreeKey(name, version string) string {
	return hashKey(TreePrefix, packageRef(name, version))
}

func packageRef(name, version string) string {
	if version == "" {
		version = "latest"
	}
	return strings.ToLower(name) + "@" + version
}

// KeyType returns the namespace of a key (text before the first ':').
func KeyType(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "unknown"
}

package cache

import "strings"

// ScopedKeyer wraps a Keyer with a scope so that several caches can share
// one table without colliding, e.g. one namespace per registry mirror. The
// scope goes after the key type, so [KeyType] still reports "pkg" or "tree":
//
//	mirrorKeyer := NewScopedKeyer(NewDefaultKeyer(), "registry.npmmirror.com:")
//	mirrorKeyer.PackageKey("express", "") // "pkg:registry.npmmirror.com:<hash>"
type ScopedKeyer struct {
	inner Keyer
	scope string
}

// NewScopedKeyer creates a keyer that inserts scope into all generated keys.
func NewScopedKeyer(inner Keyer, scope string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner: inner,
		scope: scope,
	}
}

// PackageKey generates a scoped package key.
func (k *ScopedKeyer) PackageKey(name, version string) string {
	return k.scoped(k.inner.PackageKey(name, version))
}

// TreeKey generates a scoped file listing key.
func (k *ScopedKeyer) TreeKey(name, version string) string {
	return k.scoped(k.inner.TreeKey(name, version))
}

func (k *ScopedKeyer) scoped(key string) string {
	typ, rest, ok := strings.Cut(key, ":")
	if !ok {
		return k.scope + key
	}
	return typ + ":" + k.scope + rest
}

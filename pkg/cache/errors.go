package cache

import "errors"

// ErrClosed is returned by backends after Close has been called.
var ErrClosed = errors.New("cache closed")

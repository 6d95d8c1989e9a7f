package driven

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by ContentCache.Get when no live entry exists.
var ErrCacheMiss = errors.New("cache miss")

// ContentCache defines the driven port for the file-body content cache. It
// is external to review-state logic; entries are keyed by (owner, repo, ref,
// path) and expire after the configured TTL.
type ContentCache interface {
	Get(ctx context.Context, owner, repo, ref, path string) (string, error)
	Set(ctx context.Context, owner, repo, ref, path, content string) error
	// Prune removes expired entries. Safe to call periodically.
	Prune(ctx context.Context) (int64, error)
}

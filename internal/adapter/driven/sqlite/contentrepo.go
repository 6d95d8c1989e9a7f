package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/reviewdeck/reviewdeck/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ContentCache = (*ContentRepo)(nil)

// ContentRepo caches fetched file contents keyed by (owner, repo, ref, path)
// with a TTL, so re-opening a PR does not re-download unchanged blobs.
type ContentRepo struct {
	db  *DB
	ttl time.Duration
}

// NewContentRepo creates a ContentRepo with the given entry TTL. A zero or
// negative TTL defaults to one hour.
func NewContentRepo(db *DB, ttl time.Duration) *ContentRepo {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ContentRepo{db: db, ttl: ttl}
}

// Get returns the cached content, or driven.ErrCacheMiss when the entry is
// absent or expired.
func (r *ContentRepo) Get(ctx context.Context, owner, repo, ref, path string) (string, error) {
	const query = `
		SELECT content, expires_at
		FROM content_cache
		WHERE owner = ? AND repo = ? AND ref = ? AND path = ?
	`

	var content, expiresAt string
	err := r.db.Reader.QueryRowContext(ctx, query, owner, repo, ref, path).Scan(&content, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", driven.ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("get cached content %s/%s@%s:%s: %w", owner, repo, ref, path, err)
	}

	expiry, err := parseTime(expiresAt)
	if err != nil {
		return "", fmt.Errorf("parse expires_at: %w", err)
	}
	if time.Now().UTC().After(expiry) {
		return "", driven.ErrCacheMiss
	}

	return content, nil
}

// Set stores or refreshes a cache entry, resetting its expiry.
func (r *ContentRepo) Set(ctx context.Context, owner, repo, ref, path, content string) error {
	const query = `
		INSERT INTO content_cache (owner, repo, ref, path, content, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner, repo, ref, path) DO UPDATE SET
			content = excluded.content,
			expires_at = excluded.expires_at
	`

	now := time.Now().UTC()
	_, err := r.db.Writer.ExecContext(ctx, query,
		owner, repo, ref, path, content,
		now.Add(r.ttl).Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("cache content %s/%s@%s:%s: %w", owner, repo, ref, path, err)
	}
	return nil
}

// Prune deletes expired entries and reports how many were removed.
func (r *ContentRepo) Prune(ctx context.Context) (int64, error) {
	const query = `DELETE FROM content_cache WHERE expires_at < ?`

	res, err := r.db.Writer.ExecContext(ctx, query, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("prune content cache: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune content cache rows: %w", err)
	}
	return n, nil
}

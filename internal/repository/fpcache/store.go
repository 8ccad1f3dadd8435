// Package fpcache is a content-addressable cache keyed by input fingerprints.
//
// A Store holds raw bytes with a per-entry TTL. Tier wraps a Store for one
// pipeline stage, encoding values as JSON and reporting hits and misses.
// Backend failures never surface to callers: they are logged and read as misses.
package fpcache

import (
	"context"
	"time"
)

// Store is a byte-level cache backend.
type Store interface {
	// Get returns the value stored under key. Expired entries are not returned.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Put stores value under key for ttl. The last Put wins.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration)
	// Sweep removes expired entries and returns how many were removed.
	Sweep(ctx context.Context) int
}

// Entry is a snapshot of one cached value.
type Entry struct {
	Key       string
	Value     []byte
	CreatedAt time.Time
	ExpiresAt time.Time
	HitCount  int64
}

// Expired reports whether the entry is past its expiry at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

package repository

import (
	"context"
	"time"
)

// Cache is the shared key-value store behind the symbol and price caches.
// Writes are last-write-wins overwrites, so callers need no locking.
type Cache interface {
	// Get returns ok=false on a miss or an expired entry.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int64, error)
	// Clear removes every entry this cache owns.
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Cache keys.
const (
	SymbolsKey = "okx:symbols"
)

func PriceKey(pair string) string {
	return "price:" + pair
}

func HistoryKey(pair, date string) string {
	return "hist:" + pair + ":" + date
}

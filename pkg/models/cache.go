package models

import "time"

// CacheEntry stores a live decision result.
type CacheEntry struct {
	Key       string    `json:"key"`
	Result    Result    `json:"result"`
	CreatedAt time.Time `json:"created_at"`
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

package clientdata

import "time"

// TTL constants for cached data.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// TTLCurrentPrice is the default freshness window of a cached quote
	TTLCurrentPrice = 5 * time.Minute

	// MaxStalePrice is how long an expired quote is kept as an upstream-failure fallback
	MaxStalePrice = 7 * 24 * time.Hour
)

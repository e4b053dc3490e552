package cache

import (
	"strings"
	"time"

	"finfeed/internal/config"
)

// Namespace is the Redis key prefix for the finfeed application.
const Namespace = "finfeed"

// TTLClass represents a config-driven TTL bucket.
type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Short:  durationOrDefault(cfg.Short, 10*time.Second),
		Medium: durationOrDefault(cfg.Medium, time.Minute),
		Long:   durationOrDefault(cfg.Long, 5*time.Minute),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Duration returns the configured duration for the given TTL class.
func (t TTLSet) Duration(class TTLClass) time.Duration {
	switch class {
	case TTLShort:
		return t.Short
	case TTLMedium:
		return t.Medium
	case TTLLong:
		return t.Long
	default:
		return 0
	}
}

// Scaled applies a multiplier to a TTL class, useful for half/double TTL variants.
func (t TTLSet) Scaled(class TTLClass, factor float64) time.Duration {
	base := t.Duration(class)
	if base <= 0 || factor <= 0 {
		return base
	}
	return time.Duration(float64(base) * factor)
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// --- Record Hot Keys ----------------------------------------------------

// BarLatestKey stores the most recent bar per (source, ticker) as a msgpack
// blob.
func BarLatestKey(source, ticker string) string {
	return formatKey("bar", "latest", source, ticker)
}

// NewsLatestKey stores the most recent news item per (source, ticker).
func NewsLatestKey(source, ticker string) string {
	return formatKey("news", "latest", source, ticker)
}

// --- Checkpoint & Session Keys -------------------------------------------

// CheckpointKey caches a positive done-marker for one unit so resumes skip
// the Postgres lookup.
func CheckpointKey(sessionID, ticker, provider, endpoint string) string {
	return formatKey("checkpoint", sessionID, ticker, provider, endpoint)
}

// SessionSummaryKey stores the finished cycle summary payload.
func SessionSummaryKey(sessionID string) string {
	return formatKey("session", sessionID, "summary")
}

// --- TTL Helpers ------------------------------------------------------------

// BarLatestTTL returns the short-lived TTL for hot record keys.
func BarLatestTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLShort)
}

// CheckpointTTL returns the TTL for cached checkpoint markers. Checkpoints
// are immutable once written, so a long TTL is safe.
func CheckpointTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLLong)
}

// SessionSummaryTTL returns the TTL for finished cycle summaries.
func SessionSummaryTTL(ttl TTLSet) time.Duration {
	return ttl.Scaled(TTLLong, 2)
}

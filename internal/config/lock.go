package config

import (
	"os"
	"strconv"
	"time"
)

// LockConfig defines the tunables of the distributed seat lock layer.
// TTL bounds the lifetime of a single seat lock; it must comfortably exceed
// the expected end-to-end booking submission latency, because expiry is the
// only cancellation mechanism for abandoned selections.  SessionTTLBuffer is
// added on top of TTL for the per-session seat index so the index always
// outlives the locks it tracks.  MaxSeatsPerSession caps how many seats one
// session may hold at once, computed over the union of already-held and
// newly requested seats.  Prefix namespaces every key in the shared store.
type LockConfig struct {
	TTL                time.Duration
	SessionTTLBuffer   time.Duration
	MaxSeatsPerSession int
	Prefix             string
}

// LoadLockConfig reads environment variables to build a LockConfig.
// Defaults are used when variables are not set or fail to parse, so the
// lock layer always starts with sane bounds.
func LoadLockConfig() LockConfig {
	cfg := LockConfig{
		TTL:                parseDur(getenv("LOCK_TTL", "600s")),
		SessionTTLBuffer:   parseDur(getenv("LOCK_SESSION_TTL_BUFFER", "60s")),
		MaxSeatsPerSession: atoi(getenv("LOCK_MAX_SEATS_PER_SESSION", "10")),
		Prefix:             getenv("LOCK_PREFIX", "seatlock"),
	}
	if cfg.TTL < time.Second {
		cfg.TTL = time.Second
	}
	if cfg.SessionTTLBuffer < 0 {
		cfg.SessionTTLBuffer = 0
	}
	if cfg.MaxSeatsPerSession < 1 {
		cfg.MaxSeatsPerSession = 1
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "seatlock"
	}
	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(s string) int {
	i, _ := strconv.Atoi(s)
	return i
}

func parseDur(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Second
	}
	return d
}

package runner

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/zeebo/blake3"

	"github.com/danshapiro/gamecrew/internal/llm"
)

// BackoffConfig configures delays between attempts of the same turn.
type BackoffConfig struct {
	InitialDelay time.Duration
	Factor       float64
	MaxDelay     time.Duration
	Jitter       bool
}

func DefaultBackoff() BackoffConfig {
	// Jitter is off by default so runs are reproducible.
	return BackoffConfig{
		InitialDelay: 500 * time.Millisecond,
		Factor:       2.0,
		MaxDelay:     30 * time.Second,
	}
}

// DelayForAttempt returns the wait before retry number attempt (1-indexed).
func DelayForAttempt(attempt int, cfg BackoffConfig, jitterSeed string) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	factor := cfg.Factor
	if factor <= 0 {
		factor = 1.0
	}

	base := float64(cfg.InitialDelay) * math.Pow(factor, float64(attempt-1))
	if cfg.MaxDelay > 0 {
		base = math.Min(base, float64(cfg.MaxDelay))
	}
	if cfg.Jitter {
		base *= 0.5 + jitterUnit(jitterSeed) // [0.5, 1.5]
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

func jitterUnit(seed string) float64 {
	sum := blake3.Sum256([]byte(seed))
	u := binary.BigEndian.Uint64(sum[:8])
	return float64(u) / float64(^uint64(0))
}

// retryAfter extracts a server-provided delay from err, if any.
func retryAfter(err error) (time.Duration, bool) {
	var le llm.Error
	if errors.As(err, &le) {
		if d := le.RetryAfter(); d != nil && *d > 0 {
			return *d, true
		}
	}
	return 0, false
}

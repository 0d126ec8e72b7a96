package sqlite

import (
	"math/rand/v2"
	"strings"
	"time"
)

// RetryConfig controls backoff behavior for busy-database retries.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	JitterPct  float64
}

// DefaultRetryConfig returns the retry settings used across the store:
// 6 retries, 40ms base delay, 30% jitter. With WAL mode and a busy
// timeout the lock should clear well inside this window.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 6,
		BaseDelay:  40 * time.Millisecond,
		JitterPct:  0.3,
	}
}

// RetryOnDBLock runs fn, retrying on "database is locked" with the
// default config. Any other error returns immediately.
func RetryOnDBLock(fn func() error) error {
	return RetryOnDBLockWithConfig(DefaultRetryConfig(), fn)
}

// RetryOnDBLockWithConfig is RetryOnDBLock with explicit settings.
func RetryOnDBLockWithConfig(cfg RetryConfig, fn func() error) error {
	return retryLocked(cfg, fn, time.Sleep)
}

func retryLocked(cfg RetryConfig, fn func() error, sleep func(time.Duration)) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !isDBLocked(err) || attempt >= cfg.MaxRetries {
			return err
		}
		delay := cfg.BaseDelay << attempt
		delay += time.Duration(float64(delay) * cfg.JitterPct * rand.Float64())
		sleep(delay)
	}
}

func isDBLocked(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "database is locked")
}

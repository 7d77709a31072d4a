package delivery

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = time.Second
	DefaultJitter     = 500 * time.Millisecond
)

// Backoff returns the deterministic part of the delay before the next
// attempt: base * 2^retryCount, saturating instead of overflowing.
func Backoff(retryCount int, base time.Duration) time.Duration {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= 62 || base > time.Duration(math.MaxInt64>>uint(retryCount)) {
		return time.Duration(math.MaxInt64 / 2)
	}
	return base << uint(retryCount)
}

// NextAttempt returns when an item that has failed retryCount times becomes
// due again. The result lies in [now+Backoff, now+Backoff+jitter], rounded up
// to the millisecond the store persists.
func NextAttempt(now time.Time, retryCount int, base, jitter time.Duration) time.Time {
	return nextAttempt(now, retryCount, base, jitter, randomJitter)
}

func nextAttempt(now time.Time, retryCount int, base, jitter time.Duration, rnd func(time.Duration) time.Duration) time.Time {
	delay := Backoff(retryCount, base)
	if jitter > 0 {
		if rnd == nil {
			rnd = randomJitter
		}
		extra := rnd(jitter)
		if extra < 0 {
			extra = 0
		}
		if extra > jitter {
			extra = jitter
		}
		delay += extra
	}
	return ceilMillis(now.Add(delay))
}

// ceilMillis rounds t up to a whole millisecond so persisting it never moves
// the instant earlier.
func ceilMillis(t time.Time) time.Time {
	truncated := t.Truncate(time.Millisecond)
	if truncated.Equal(t) {
		return t
	}
	return truncated.Add(time.Millisecond)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(limit) + 1))
}

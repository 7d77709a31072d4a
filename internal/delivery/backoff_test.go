package delivery

import (
	"testing"
	"time"
)

func TestNextAttemptStaysWithinBounds(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	base := time.Second
	jitter := 500 * time.Millisecond

	for retry := 0; retry <= 6; retry++ {
		low := now.Add(base * time.Duration(1<<retry))
		high := low.Add(jitter)
		for i := 0; i < 200; i++ {
			got := NextAttempt(now, retry, base, jitter)
			if got.Before(low) || got.After(high) {
				t.Fatalf("retry %d: %s outside [%s, %s]", retry, got, low, high)
			}
		}
	}
}

func TestNextAttemptClampsInjectedJitter(t *testing.T) {
	now := time.Unix(0, 0)
	tooBig := func(limit time.Duration) time.Duration { return limit * 3 }
	got := nextAttempt(now, 0, time.Second, 100*time.Millisecond, tooBig)
	if want := now.Add(1100 * time.Millisecond); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
	negative := func(time.Duration) time.Duration { return -time.Hour }
	got = nextAttempt(now, 0, time.Second, 100*time.Millisecond, negative)
	if want := now.Add(time.Second); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestBackoffSaturates(t *testing.T) {
	if got := Backoff(3, 10*time.Millisecond); got != 80*time.Millisecond {
		t.Fatalf("expected 80ms, got %s", got)
	}
	if got := Backoff(0, 0); got != DefaultBaseDelay {
		t.Fatalf("expected default base delay, got %s", got)
	}
	huge := Backoff(80, time.Second)
	if huge <= 0 {
		t.Fatalf("expected saturated positive delay, got %s", huge)
	}
	if Backoff(40, time.Hour) <= 0 {
		t.Fatal("expected no overflow")
	}
}

func TestNextAttemptRoundsUpToWholeMillisecond(t *testing.T) {
	now := time.Date(2026, 1, 1, 8, 30, 7, 752_700_000, time.UTC)
	got := NextAttempt(now, 0, time.Second, 0)

	floor := now.Add(time.Second)
	if got.Before(floor) {
		t.Fatalf("next attempt %s is before %s", got, floor)
	}
	if got.Nanosecond()%int(time.Millisecond) != 0 {
		t.Fatalf("expected whole milliseconds, got %s", got)
	}
	if want := time.Date(2026, 1, 1, 8, 30, 8, 753_000_000, time.UTC); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}

	exact := time.Date(2026, 1, 1, 8, 30, 7, 752_000_000, time.UTC)
	if got := NextAttempt(exact, 1, time.Second, 0); !got.Equal(exact.Add(2 * time.Second)) {
		t.Fatalf("whole-millisecond instant should not move, got %s", got)
	}
}

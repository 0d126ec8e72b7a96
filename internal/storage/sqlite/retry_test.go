package sqlite

import (
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsAfterLock(t *testing.T) {
	calls := 0
	var slept []time.Duration
	err := retryLocked(DefaultRetryConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	}, func(d time.Duration) { slept = append(slept, d) })
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(slept) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(slept))
	}
	if slept[1] < slept[0] {
		t.Fatalf("expected growing backoff, got %v then %v", slept[0], slept[1])
	}
}

func TestRetryGivesUp(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond}
	calls := 0
	err := retryLocked(cfg, func() error {
		calls++
		return errors.New("database is locked")
	}, func(time.Duration) {})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Fatalf("expected initial attempt plus 2 retries, got %d calls", calls)
	}
}

func TestRetryPassesThroughOtherErrors(t *testing.T) {
	calls := 0
	sentinel := errors.New("no such table")
	err := retryLocked(DefaultRetryConfig(), func() error {
		calls++
		return sentinel
	}, func(time.Duration) { t.Fatal("must not sleep for non-lock errors") })
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected single call, got %d", calls)
	}
}

package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func failing() error { return errBackend }
func healthy() error { return nil }

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 3})
	for i := 0; i < 2; i++ {
		if err := b.Do(failing); !errors.Is(err, errBackend) {
			t.Fatalf("Do() error = %v, want backend error", err)
		}
	}
	if b.Open() {
		t.Error("breaker opened below the failure threshold")
	}
	if err := b.Do(healthy); err != nil {
		t.Errorf("Do(healthy) error = %v", err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 3, ResetTimeout: time.Hour})
	for i := 0; i < 3; i++ {
		_ = b.Do(failing)
	}
	if !b.Open() {
		t.Fatal("breaker still closed after hitting the threshold")
	}

	calls := 0
	err := b.Do(func() error { calls++; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Do() error = %v, want ErrOpen", err)
	}
	if calls != 0 {
		t.Errorf("backend called %d times through an open breaker", calls)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 2})
	_ = b.Do(failing)
	_ = b.Do(healthy)
	_ = b.Do(failing)
	if b.Open() {
		t.Error("breaker opened even though failures were not consecutive")
	}
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{
		Name:         "test",
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		ProbeBudget:  2,
	})
	_ = b.Do(failing)
	if !b.Open() {
		t.Fatal("breaker did not open")
	}

	time.Sleep(20 * time.Millisecond)
	for i := 0; i < 2; i++ {
		if err := b.Do(healthy); err != nil {
			t.Fatalf("probe %d error = %v", i, err)
		}
	}
	if b.Open() {
		t.Error("breaker still open after successful probes")
	}
	if err := b.Do(healthy); err != nil {
		t.Errorf("Do() error after recovery = %v", err)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{
		Name:         "test",
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		ProbeBudget:  3,
	})
	_ = b.Do(failing)
	time.Sleep(20 * time.Millisecond)

	if err := b.Do(failing); !errors.Is(err, errBackend) {
		t.Fatalf("probe error = %v, want backend error", err)
	}
	if !b.Open() {
		t.Error("breaker closed again after a failed probe")
	}
}

package runner

import (
	"testing"
	"time"
)

func TestExponentialBackoffStrategy(t *testing.T) {
	strategy := ExponentialBackoffStrategy{
		Base:   10 * time.Millisecond,
		Factor: 2,
		Max:    50 * time.Millisecond,
	}

	expected := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		50 * time.Millisecond,
	}
	for attempt, want := range expected {
		if got := strategy.SleepDuration(attempt, nil); got != want {
			t.Errorf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}

	if got := strategy.SleepDuration(-3, nil); got != 10*time.Millisecond {
		t.Errorf("negative attempt should clamp to base, got %s", got)
	}
}

func TestConstantAndNoDelayStrategies(t *testing.T) {
	if got := (NoDelayStrategy{}).SleepDuration(5, nil); got != 0 {
		t.Errorf("expected no delay, got %s", got)
	}
	if got := (ConstantDelayStrategy{Delay: time.Second}).SleepDuration(9, nil); got != time.Second {
		t.Errorf("expected constant delay, got %s", got)
	}
	if got := (ConstantDelayStrategy{Delay: -time.Second}).SleepDuration(0, nil); got != 0 {
		t.Errorf("negative delay should clamp to zero, got %s", got)
	}
}

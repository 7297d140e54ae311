package llm

import (
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(clock *fakeClock, models ...ModelLimits) *Limiter {
	l := NewLimiter(nil, WithClock(clock.Now))
	for _, m := range models {
		l.Register(m)
	}
	return l
}

var (
	flash     = ModelLimits{Model: "gemini-2.5-flash", Provider: "google", RPM: 15, RPD: 500, Priority: 1}
	flashLite = ModelLimits{Model: "gemini-2.5-flash-lite", Provider: "google", RPM: 30, RPD: 1500, Priority: 2}
)

func TestMinuteCeiling(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(clock, ModelLimits{Model: "m", RPM: 3, RPD: 100, Priority: 1})

	for i := 0; i < 3; i++ {
		if !l.Available("m") {
			t.Fatalf("Available = false after %d dispatches, want true", i)
		}
		l.Record("m")
		clock.Advance(time.Second)
	}

	if l.Available("m") {
		t.Error("Available = true at RPM ceiling, want false")
	}

	// Oldest stamp ages past the window: 60s after it was recorded.
	clock.Advance(59 * time.Second)
	if !l.Available("m") {
		t.Error("Available = false after oldest stamp aged out, want true")
	}
}

func TestDailyCeilingAndReset(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 23, 50, 0, 0, time.UTC)}
	l := newTestLimiter(clock, ModelLimits{Model: "m", RPM: 100, RPD: 2, Priority: 1})

	l.Record("m")
	clock.Advance(2 * time.Minute)
	l.Record("m")
	clock.Advance(2 * time.Minute)

	if l.Available("m") {
		t.Error("Available = true at RPD ceiling, want false")
	}

	// Date rollover resets the daily counter before evaluation.
	clock.Advance(24 * time.Hour)
	if !l.Available("m") {
		t.Error("Available = false after daily reset, want true")
	}
	if _, day := l.Usage("m"); day != 0 {
		t.Errorf("daily count after reset = %d, want 0", day)
	}
}

func TestDisabledModelNeverAvailable(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(clock, flash)

	l.Disable(flash.Model)
	if l.Available(flash.Model) {
		t.Error("disabled model reported available")
	}
}

func TestUnknownModel(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(clock, flash)

	if l.Available("nope") {
		t.Error("unknown model reported available")
	}
	l.Record("nope") // must not panic

	minute, day := l.Usage("nope")
	if minute != 0 || day != 0 {
		t.Errorf("Usage for unknown model = %d/%d, want 0/0", minute, day)
	}
}

func TestUsageCounters(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(clock, flash)

	l.Record(flash.Model)
	l.Record(flash.Model)
	clock.Advance(2 * time.Minute)
	l.Record(flash.Model)

	minute, day := l.Usage(flash.Model)
	if minute != 1 {
		t.Errorf("minute count = %d, want 1 (older stamps pruned)", minute)
	}
	if day != 3 {
		t.Errorf("day count = %d, want 3", day)
	}
}

func TestSelectPrefersHighCapacityByDefault(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(clock, flash, flashLite)

	m, err := l.Select(false)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if m.Model != flashLite.Model {
		t.Errorf("Select(false) = %s, want %s", m.Model, flashLite.Model)
	}
}

func TestSelectComplexPrefersHighPriority(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(clock, flash, flashLite)

	m, err := l.Select(true)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if m.Model != flash.Model {
		t.Errorf("Select(true) = %s, want %s", m.Model, flash.Model)
	}
}

func TestSelectFallsBackWhenHighPrioritySaturated(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	small := flash
	small.RPM = 1
	l := newTestLimiter(clock, small, flashLite)

	l.Record(small.Model)

	m, err := l.Select(true)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if m.Model != flashLite.Model {
		t.Errorf("Select(true) with flash saturated = %s, want %s", m.Model, flashLite.Model)
	}
}

func TestSelectAllSaturated(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	a := ModelLimits{Model: "a", RPM: 1, RPD: 10, Priority: 1}
	b := ModelLimits{Model: "b", RPM: 1, RPD: 10, Priority: 2}
	l := newTestLimiter(clock, a, b)

	l.Record("a")
	l.Record("b")

	if _, err := l.Select(false); err != ErrAllModelsSaturated {
		t.Errorf("Select with all saturated = %v, want ErrAllModelsSaturated", err)
	}
}

// Package llm tracks per-model request quotas and picks the backend
// model for each dispatch under a priority policy.
package llm

import (
	"log/slog"
	"sync"
	"time"
)

// ModelLimits is the static quota configuration for one backend model.
// Priority orders preference: the lowest value is reserved for complex
// requests, the highest value is the default high-capacity choice.
type ModelLimits struct {
	Model    string `yaml:"model"`
	Provider string `yaml:"provider"`
	RPM      int    `yaml:"rpm"`
	RPD      int    `yaml:"rpd"`
	Priority int    `yaml:"priority"`
}

// modelState is owned by the Limiter and guarded by its mutex. stamps
// holds dispatch times inside the trailing minute; dailyCount resets
// when the wall-clock date rolls over.
type modelState struct {
	limits     ModelLimits
	stamps     []time.Time
	dailyCount int
	lastReset  string
	disabled   bool
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) {
		l.now = now
	}
}

// Limiter owns all mutable rate-limit state for the process. One
// instance is constructed at startup and shared by every request
// handler; the mutex spans each check-or-record operation so concurrent
// requests cannot grossly overshoot a ceiling.
type Limiter struct {
	mu sync.Mutex

	models []*modelState
	now    func() time.Time
	logger *slog.Logger
}

// NewLimiter creates an empty limiter. Models are added with Register.
func NewLimiter(logger *slog.Logger, opts ...LimiterOption) *Limiter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	l := &Limiter{now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register adds a model. Registration order is preserved and breaks
// priority ties deterministically.
func (l *Limiter) Register(limits ModelLimits) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.models = append(l.models, &modelState{
		limits:    limits,
		lastReset: l.now().Format(time.DateOnly),
	})
}

// Disable marks a model permanently unavailable, used when its provider
// is not configured. The pipeline keeps running on the remaining models.
func (l *Limiter) Disable(model string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if st := l.lookup(model); st != nil {
		st.disabled = true
		l.logger.Warn("model disabled", "model", model)
	}
}

// Available reports whether a dispatch to model would stay inside its
// per-day and per-minute ceilings.
func (l *Limiter) Available(model string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.lookup(model)
	if st == nil {
		return false
	}
	return l.available(st)
}

// Record counts one successful outbound dispatch against model. It must
// be called exactly once per completed call, never for failed or aborted
// calls, and is never rolled back: the remote provider has consumed the
// quota regardless of what happens downstream.
func (l *Limiter) Record(model string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.lookup(model)
	if st == nil {
		return
	}
	l.rollDaily(st)
	st.stamps = append(st.stamps, l.now())
	st.dailyCount++
}

// Usage returns the current minute and day counters for model, for
// diagnostics and stats endpoints.
func (l *Limiter) Usage(model string) (minute, day int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.lookup(model)
	if st == nil {
		return 0, 0
	}
	l.rollDaily(st)
	l.prune(st)
	return len(st.stamps), st.dailyCount
}

// Models returns the registered limits in registration order.
func (l *Limiter) Models() []ModelLimits {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]ModelLimits, len(l.models))
	for i, st := range l.models {
		out[i] = st.limits
	}
	return out
}

func (l *Limiter) lookup(model string) *modelState {
	for _, st := range l.models {
		if st.limits.Model == model {
			return st
		}
	}
	return nil
}

func (l *Limiter) available(st *modelState) bool {
	if st.disabled {
		return false
	}
	l.rollDaily(st)
	if st.dailyCount >= st.limits.RPD {
		return false
	}
	l.prune(st)
	return len(st.stamps) < st.limits.RPM
}

func (l *Limiter) rollDaily(st *modelState) {
	today := l.now().Format(time.DateOnly)
	if st.lastReset != today {
		st.dailyCount = 0
		st.lastReset = today
	}
}

func (l *Limiter) prune(st *modelState) {
	cutoff := l.now().Add(-time.Minute)
	kept := st.stamps[:0]
	for _, ts := range st.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	st.stamps = kept
}

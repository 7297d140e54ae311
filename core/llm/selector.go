package llm

import (
	"errors"
	"sort"
)

// ErrAllModelsSaturated is returned when every configured model is rate
// limited or disabled. Callers surface it as a retryable "service busy"
// condition, never as a silent empty response.
var ErrAllModelsSaturated = errors.New("llm: all models are rate limited")

// Select picks the model for one dispatch. Complex requests walk models
// in ascending priority order so the high-priority model is tried first;
// everything else walks descending order, preferring the high-capacity
// model and keeping the high-priority one as a fallback. The first
// available model wins.
func (l *Limiter) Select(isComplex bool) (ModelLimits, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ordered := make([]*modelState, len(l.models))
	copy(ordered, l.models)
	sort.SliceStable(ordered, func(i, j int) bool {
		if isComplex {
			return ordered[i].limits.Priority < ordered[j].limits.Priority
		}
		return ordered[i].limits.Priority > ordered[j].limits.Priority
	})

	for _, st := range ordered {
		if l.available(st) {
			return st.limits, nil
		}
	}
	return ModelLimits{}, ErrAllModelsSaturated
}

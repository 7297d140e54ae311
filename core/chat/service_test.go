package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/azzcolabs/concierge/core/llm"
	"github.com/azzcolabs/concierge/core/persona"
	"github.com/azzcolabs/concierge/core/prompt"
	"github.com/azzcolabs/concierge/core/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu        sync.Mutex
	calls     int
	lastReq   *providers.Request
	reply     string
	err       error
	healthErr error
}

func (f *fakeProvider) Name() string { return "google" }

func (f *fakeProvider) Generate(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &providers.Response{Content: f.reply, Model: req.Model, Provider: f.Name()}, nil
}

func (f *fakeProvider) HealthCheck(ctx context.Context) error { return f.healthErr }

func (f *fakeProvider) ValidateConfig() error { return nil }

func (f *fakeProvider) SupportsModel(model string) bool { return true }

func (f *fakeProvider) Close() error { return nil }

type captureRecorder struct {
	mu      sync.Mutex
	records []Record
}

func (c *captureRecorder) Record(rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

func newTestService(t *testing.T, fake *fakeProvider, recorder Recorder) (*Service, *llm.Limiter) {
	t.Helper()

	detector, err := persona.NewDetector(persona.DefaultTable(), persona.DefaultWeights())
	require.NoError(t, err)

	composer, err := prompt.NewComposer(persona.DefaultTable(), prompt.DefaultLibrary())
	require.NoError(t, err)

	limiter := llm.NewLimiter(nil)
	limiter.Register(llm.ModelLimits{Model: "gemini-2.5-flash", Provider: "google", RPM: 15, RPD: 500, Priority: 1})
	limiter.Register(llm.ModelLimits{Model: "gemini-2.5-flash-lite", Provider: "google", RPM: 30, RPD: 1500, Priority: 2})

	registry := providers.NewRegistry()
	require.NoError(t, registry.Register(providers.ProviderTypeGoogle, fake))

	return NewService(detector, composer, limiter, registry, recorder, nil, DefaultOptions()), limiter
}

func TestGenerateRejectsBlankMessage(t *testing.T) {
	fake := &fakeProvider{reply: "bonjour"}
	svc, _ := newTestService(t, fake, nil)

	for _, msg := range []string{"", "   ", "\n\t"} {
		_, err := svc.Generate(context.Background(), msg, nil, "v1", "s1")
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
	assert.Equal(t, 0, fake.calls, "provider must not be called for blank input")
}

func TestGenerateEndToEndGeneralFallback(t *testing.T) {
	fake := &fakeProvider{reply: "CONTEXTE: Nos tarifs dépendent du périmètre\n\n\n\nParlons-en"}
	recorder := &captureRecorder{}
	svc, limiter := newTestService(t, fake, recorder)

	// No persona keyword and no topic tag in this message.
	result, err := svc.Generate(context.Background(), "Combien pour un devis complet ?", nil, "visitor-1", "session-1")
	require.NoError(t, err)

	assert.Equal(t, persona.Professional, result.Persona)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Empty(t, result.TopicTags)

	// Weak match counts as complex, so the high-priority model serves it.
	assert.Equal(t, "gemini-2.5-flash", result.Model)
	assert.Equal(t, "google", result.Provider)

	// The general template rode along in the system instructions.
	general := prompt.DefaultLibrary().General()
	assert.Contains(t, fake.lastReq.System, general.Instructions)
	assert.NotContains(t, fake.lastReq.System, prompt.UserMessageMarker)

	// Cleaned output: no scaffold label, terminal punctuation.
	assert.NotContains(t, result.Response, "CONTEXTE:")
	assert.Regexp(t, `[.!?]$`, result.Response)
	assert.NotContains(t, result.Response, "\n\n\n")

	// Exactly one dispatch was recorded.
	_, day := limiter.Usage("gemini-2.5-flash")
	assert.Equal(t, 1, day)

	require.Len(t, recorder.records, 1)
	assert.Equal(t, "visitor-1", recorder.records[0].VisitorID)
	assert.Equal(t, "session-1", recorder.records[0].SessionID)
	assert.Equal(t, result.Response, recorder.records[0].Response)
}

func TestGenerateConfidentRequestUsesHighCapacityModel(t *testing.T) {
	fake := &fakeProvider{reply: "Avec plaisir."}
	svc, _ := newTestService(t, fake, nil)

	result, err := svc.Generate(context.Background(), "Je cherche un emploi", nil, "v1", "s1")
	require.NoError(t, err)

	assert.Equal(t, persona.Candidate, result.Persona)
	assert.Equal(t, "gemini-2.5-flash-lite", result.Model)
}

func TestGenerateBoundsHistoryWindow(t *testing.T) {
	fake := &fakeProvider{reply: "ok."}
	svc, _ := newTestService(t, fake, nil)

	history := make([]persona.Turn, 12)
	for i := range history {
		role := persona.RoleUser
		if i%2 == 1 {
			role = persona.RoleAssistant
		}
		history[i] = persona.Turn{Role: role, Content: fmt.Sprintf("tour %d", i)}
	}

	_, err := svc.Generate(context.Background(), "Je cherche un emploi", history, "v1", "s1")
	require.NoError(t, err)

	// 5 trailing turns plus the current message.
	require.Len(t, fake.lastReq.Messages, 6)
	assert.Equal(t, "tour 7", fake.lastReq.Messages[0].Content)
	assert.Equal(t, "Je cherche un emploi", fake.lastReq.Messages[5].Content)
	assert.Equal(t, providers.RoleUser, fake.lastReq.Messages[5].Role)
}

func TestGenerateProviderFailureDoesNotRecordDispatch(t *testing.T) {
	boom := &providers.ProviderError{Provider: "google", Status: 500, Message: "boom"}
	fake := &fakeProvider{err: boom}
	recorder := &captureRecorder{}
	svc, limiter := newTestService(t, fake, recorder)

	_, err := svc.Generate(context.Background(), "Je cherche un emploi", nil, "v1", "s1")

	var pe *providers.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Empty(t, recorder.records, "failed generations must not reach the sink")

	for _, m := range limiter.Models() {
		_, day := limiter.Usage(m.Model)
		assert.Zero(t, day, "failed call must not count against quota")
	}
}

func TestGenerateRateLimitedErrorPropagates(t *testing.T) {
	fake := &fakeProvider{err: fmt.Errorf("google: %w", providers.ErrRateLimited)}
	svc, _ := newTestService(t, fake, nil)

	_, err := svc.Generate(context.Background(), "Je cherche un emploi", nil, "v1", "s1")
	assert.ErrorIs(t, err, providers.ErrRateLimited)
}

func TestGenerateAllModelsSaturated(t *testing.T) {
	fake := &fakeProvider{reply: "ok."}

	detector, err := persona.NewDetector(persona.DefaultTable(), persona.DefaultWeights())
	require.NoError(t, err)
	composer, err := prompt.NewComposer(persona.DefaultTable(), prompt.DefaultLibrary())
	require.NoError(t, err)

	limiter := llm.NewLimiter(nil)
	limiter.Register(llm.ModelLimits{Model: "m", Provider: "google", RPM: 1, RPD: 1, Priority: 1})
	limiter.Record("m")

	registry := providers.NewRegistry()
	require.NoError(t, registry.Register(providers.ProviderTypeGoogle, fake))

	svc := NewService(detector, composer, limiter, registry, nil, nil, DefaultOptions())

	_, err = svc.Generate(context.Background(), "Je cherche un emploi", nil, "v1", "s1")
	assert.ErrorIs(t, err, llm.ErrAllModelsSaturated)
	assert.Equal(t, 0, fake.calls)
}

func TestCheckHealth(t *testing.T) {
	fake := &fakeProvider{reply: "ok."}
	svc, _ := newTestService(t, fake, nil)

	h := svc.CheckHealth(context.Background())
	assert.True(t, h.Available)
	assert.Equal(t, "google", h.Provider)
	assert.Equal(t, "gemini-2.5-flash-lite", h.Model)

	fake.healthErr = errors.New("down")
	h = svc.CheckHealth(context.Background())
	assert.False(t, h.Available)
	assert.Equal(t, "down", h.Error)
}

func TestGenerateReportsDuration(t *testing.T) {
	fake := &fakeProvider{reply: "ok."}
	recorder := &captureRecorder{}
	svc, _ := newTestService(t, fake, recorder)

	_, err := svc.Generate(context.Background(), "Je cherche un emploi", nil, "v1", "s1")
	require.NoError(t, err)

	require.Len(t, recorder.records, 1)
	assert.GreaterOrEqual(t, recorder.records[0].Duration, time.Duration(0))
}

func TestIsComplexThresholds(t *testing.T) {
	fake := &fakeProvider{reply: "ok."}
	svc, _ := newTestService(t, fake, nil)

	long := strings.Repeat("emploi ", 40)
	det := persona.Detection{Confidence: 3}

	assert.True(t, svc.isComplex(long, nil, det), "long message is complex")
	assert.True(t, svc.isComplex("emploi", nil, persona.Detection{Confidence: 0.2}), "weak match is complex")
	assert.False(t, svc.isComplex("emploi", []string{"jobboat"}, det))
}

func TestGenerateFallsBackToModelCapableProvider(t *testing.T) {
	fake := &fakeProvider{reply: "Réponse."}

	detector, err := persona.NewDetector(persona.DefaultTable(), persona.DefaultWeights())
	require.NoError(t, err)
	composer, err := prompt.NewComposer(persona.DefaultTable(), prompt.DefaultLibrary())
	require.NoError(t, err)

	// The model is registered under a provider alias the registry does
	// not know; resolution falls through to model capability.
	limiter := llm.NewLimiter(nil)
	limiter.Register(llm.ModelLimits{Model: "gemini-2.5-flash-lite", Provider: "gemini", RPM: 30, RPD: 1500, Priority: 2})

	registry := providers.NewRegistry()
	require.NoError(t, registry.Register(providers.ProviderTypeGoogle, fake))

	svc := NewService(detector, composer, limiter, registry, nil, nil, DefaultOptions())

	result, err := svc.Generate(context.Background(), "Je cherche un emploi", nil, "v1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "Réponse.", result.Response)
	assert.Equal(t, 1, fake.calls)
}

func TestCheckHealthSaturatedStillProbesDefaultProvider(t *testing.T) {
	fake := &fakeProvider{reply: "ok"}
	svc, limiter := newTestService(t, fake, nil)

	limiter.Disable("gemini-2.5-flash")
	limiter.Disable("gemini-2.5-flash-lite")

	h := svc.CheckHealth(context.Background())
	assert.False(t, h.Available)
	assert.Equal(t, "google", h.Provider)
	assert.Contains(t, h.Error, "rate limited")
}

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azzcolabs/concierge/core/analytics"
	"github.com/azzcolabs/concierge/core/chat"
	"github.com/azzcolabs/concierge/core/llm"
	"github.com/azzcolabs/concierge/core/notes"
	"github.com/azzcolabs/concierge/core/persona"
	"github.com/azzcolabs/concierge/core/prompt"
	"github.com/azzcolabs/concierge/core/providers"
	"github.com/azzcolabs/concierge/core/session"
)

type stubProvider struct {
	reply string
	err   error
	calls int
}

func (p *stubProvider) Name() string { return "google" }

func (p *stubProvider) Generate(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &providers.Response{Content: p.reply, Model: req.Model, Provider: p.Name()}, nil
}

func (p *stubProvider) HealthCheck(ctx context.Context) error { return p.err }
func (p *stubProvider) ValidateConfig() error                 { return nil }
func (p *stubProvider) SupportsModel(model string) bool       { return true }
func (p *stubProvider) Close() error                          { return nil }

type fixture struct {
	server   *Server
	sessions *session.Store
	store    *analytics.Store
	provider *stubProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	detector, err := persona.NewDetector(persona.DefaultTable(), persona.DefaultWeights())
	require.NoError(t, err)
	composer, err := prompt.NewComposer(persona.DefaultTable(), prompt.DefaultLibrary())
	require.NoError(t, err)

	limiter := llm.NewLimiter(nil)
	limiter.Register(llm.ModelLimits{Model: "gemini-2.5-flash", Provider: "google", RPM: 15, RPD: 500, Priority: 1})
	limiter.Register(llm.ModelLimits{Model: "gemini-2.5-flash-lite", Provider: "google", RPM: 30, RPD: 1500, Priority: 2})

	provider := &stubProvider{reply: "Bonjour, voici notre réponse."}
	registry := providers.NewRegistry()
	require.NoError(t, registry.Register(providers.ProviderTypeGoogle, provider))

	store, err := analytics.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	service := chat.NewService(detector, composer, limiter, registry, nil, nil, chat.Options{})
	sessions, err := session.NewStore(16, 8)
	require.NoError(t, err)

	notesStore, err := notes.NewStore(store.DB())
	require.NoError(t, err)

	srv := New(service, sessions, store, notesStore, nil, nil, Options{
		AllowedOrigins:  []string{"https://azzco.example"},
		NotesWriteToken: "write-secret",
	})
	return &fixture{server: srv, sessions: sessions, store: store, provider: provider}
}

func postMessage(t *testing.T, handler http.Handler, body string) (*httptest.ResponseRecorder, messageResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chatbot/message", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestMessageEndpointHappyPath(t *testing.T) {
	f := newFixture(t)
	handler := f.server.Handler()

	rec, resp := postMessage(t, handler, `{"message":"Je cherche un emploi","sessionId":"s-1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bonjour, voici notre réponse.", resp.Response)
	assert.Equal(t, "candidate", resp.Persona)
	assert.Equal(t, "s-1", resp.SessionID)
	assert.NotEmpty(t, resp.VisitorID)
	assert.False(t, resp.Degraded)

	// Both turns of the exchange land in the session history.
	history := f.sessions.History("s-1")
	require.Len(t, history, 2)
	assert.Equal(t, persona.RoleUser, history[0].Role)
	assert.Equal(t, persona.RoleAssistant, history[1].Role)
}

func TestMessageEndpointGeneratesIDs(t *testing.T) {
	f := newFixture(t)

	_, resp := postMessage(t, f.server.Handler(), `{"message":"Bonjour"}`)
	assert.NotEmpty(t, resp.VisitorID)
	assert.NotEmpty(t, resp.SessionID)
}

func TestBlankMessageDegradesPolitely(t *testing.T) {
	f := newFixture(t)

	rec, resp := postMessage(t, f.server.Handler(), `{"message":"   ","sessionId":"s-1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Degraded)
	assert.Equal(t, replyEmptyMessage, resp.Response)
	assert.Zero(t, f.provider.calls)
	assert.Empty(t, f.sessions.History("s-1"))
}

func TestRateLimitedDegradesToBusy(t *testing.T) {
	f := newFixture(t)
	f.provider.err = providers.ErrRateLimited

	_, resp := postMessage(t, f.server.Handler(), `{"message":"Bonjour"}`)
	assert.True(t, resp.Degraded)
	assert.Equal(t, replyBusy, resp.Response)
}

func TestProviderFailureDegradesToUnavailable(t *testing.T) {
	f := newFixture(t)
	f.provider.err = &providers.ProviderError{Provider: "google", Status: 500, Message: "boom"}

	_, resp := postMessage(t, f.server.Handler(), `{"message":"Bonjour","sessionId":"s-1"}`)
	assert.True(t, resp.Degraded)
	assert.Equal(t, replyUnavailable, resp.Response)
	assert.Empty(t, f.sessions.History("s-1"))
}

func TestInvalidBodyIsRejected(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chatbot/message", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/chatbot/health", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var health chat.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.True(t, health.Available)
	assert.Equal(t, "google", health.Provider)
}

func TestStatsEndpoint(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.LogVisitor(context.Background(), analytics.Visitor{VisitorID: "v-1"}))

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/stats", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var stats analytics.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Visitors)
}

func TestCORSPreflightAndOrigin(t *testing.T) {
	f := newFixture(t)
	handler := f.server.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/chatbot/message", nil)
	req.Header.Set("Origin", "https://azzco.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://azzco.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/chatbot/message", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

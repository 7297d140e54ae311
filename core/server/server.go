// Package server exposes the chatbot over HTTP for the marketing site
// widget. The message endpoint always answers 200 with a well-formed
// payload: pipeline failures degrade to polite French copy instead of
// surfacing as transport errors to the browser.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/azzcolabs/concierge/core/analytics"
	"github.com/azzcolabs/concierge/core/chat"
	"github.com/azzcolabs/concierge/core/geo"
	"github.com/azzcolabs/concierge/core/llm"
	"github.com/azzcolabs/concierge/core/notes"
	"github.com/azzcolabs/concierge/core/persona"
	"github.com/azzcolabs/concierge/core/providers"
	"github.com/azzcolabs/concierge/core/session"
)

// Canned replies for degraded answers. The widget renders these
// verbatim.
const (
	replyEmptyMessage = "Je n'ai pas reçu votre message. Pouvez-vous réessayer ?"
	replyBusy         = "Je reçois beaucoup de questions en ce moment. Merci de réessayer dans quelques instants."
	replyUnavailable  = "Je rencontre des difficultés techniques. N'hésitez pas à nous contacter directement via le formulaire de contact."
)

const maxMessageBytes = 8 << 10

// Options configure the HTTP layer.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	GeoEnabled     bool

	// NotesWriteToken, when set, is required in the x-notes-token
	// header on note mutations.
	NotesWriteToken string
}

// ChatService is the slice of the chat pipeline the HTTP layer needs.
// The live deployment swaps the implementation on configuration reload.
type ChatService interface {
	Generate(ctx context.Context, userMessage string, history []persona.Turn, visitorID, sessionID string) (*chat.Result, error)
	CheckHealth(ctx context.Context) chat.Health
}

// Server routes widget traffic to the chat pipeline.
type Server struct {
	service  ChatService
	sessions *session.Store
	store    *analytics.Store
	notes    *notes.Store
	geo      *geo.Client
	logger   *slog.Logger
	opts     Options
	mux      *http.ServeMux
}

// New assembles the handler. store, notesStore and geo are optional;
// when nil the corresponding endpoints and lookups degrade gracefully.
func New(
	service ChatService,
	sessions *session.Store,
	store *analytics.Store,
	notesStore *notes.Store,
	geoClient *geo.Client,
	logger *slog.Logger,
	opts Options,
) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	s := &Server{
		service:  service,
		sessions: sessions,
		store:    store,
		notes:    notesStore,
		geo:      geoClient,
		logger:   logger,
		opts:     opts,
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /api/chatbot/message", s.handleMessage)
	s.mux.HandleFunc("GET /api/chatbot/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/analytics/stats", s.handleStats)
	s.registerNotesRoutes()
	return s
}

// Handler returns the root handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.cors(s.mux)
}

type messageRequest struct {
	Message   string `json:"message"`
	VisitorID string `json:"visitorId"`
	SessionID string `json:"sessionId"`
	Referrer  string `json:"referrer"`
}

type messageResponse struct {
	Response   string   `json:"response"`
	Persona    string   `json:"persona"`
	Confidence float64  `json:"confidence"`
	TopicTags  []string `json:"topicTags"`
	Model      string   `json:"model,omitempty"`
	VisitorID  string   `json:"visitorId"`
	SessionID  string   `json:"sessionId"`
	Degraded   bool     `json:"degraded,omitempty"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	if req.VisitorID == "" {
		req.VisitorID = uuid.NewString()
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	s.logVisitor(r, req)

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	history := s.sessions.History(req.SessionID)
	result, err := s.service.Generate(ctx, req.Message, history, req.VisitorID, req.SessionID)
	if err != nil {
		writeJSON(w, http.StatusOK, s.degraded(req, err))
		return
	}

	s.sessions.Append(req.SessionID, persona.Turn{
		Role:    persona.RoleUser,
		Content: req.Message,
		Persona: result.Persona,
	})
	s.sessions.Append(req.SessionID, persona.Turn{
		Role:    persona.RoleAssistant,
		Content: result.Response,
	})

	writeJSON(w, http.StatusOK, messageResponse{
		Response:   result.Response,
		Persona:    string(result.Persona),
		Confidence: result.Confidence,
		TopicTags:  result.TopicTags,
		Model:      result.Model,
		VisitorID:  req.VisitorID,
		SessionID:  req.SessionID,
	})
}

// degraded maps a pipeline error to the canned reply the widget shows.
// The HTTP status stays 200: the widget treats any non-200 as a dead
// backend and hides itself.
func (s *Server) degraded(req messageRequest, err error) messageResponse {
	reply := replyUnavailable
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		reply = replyEmptyMessage
	case errors.Is(err, llm.ErrAllModelsSaturated), errors.Is(err, providers.ErrRateLimited):
		reply = replyBusy
	}

	s.logger.Warn("chat pipeline degraded", "error", err, "visitor", req.VisitorID)

	return messageResponse{
		Response:  reply,
		Persona:   string(persona.Professional),
		TopicTags: []string{},
		VisitorID: req.VisitorID,
		SessionID: req.SessionID,
		Degraded:  true,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.service.CheckHealth(r.Context())
	status := http.StatusOK
	if !health.Available {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "analytics disabled"})
		return
	}
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// logVisitor records the visitor off the request path. Geo lookup and
// insert failures stay in the log.
func (s *Server) logVisitor(r *http.Request, req messageRequest) {
	if s.store == nil {
		return
	}

	ip := clientIP(r)
	userAgent := r.UserAgent()
	referrer := req.Referrer
	if referrer == "" {
		referrer = r.Referer()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		visitor := analytics.Visitor{
			VisitorID: req.VisitorID,
			IPAddress: ip,
			UserAgent: userAgent,
			Referrer:  referrer,
		}
		if s.geo != nil && s.opts.GeoEnabled {
			if loc, err := s.geo.Lookup(ctx, ip); err == nil {
				visitor.Country = loc.Country
				visitor.City = loc.City
			}
		}
		if err := s.store.LogVisitor(ctx, visitor); err != nil {
			s.logger.Warn("visitor logging failed", "error", err)
		}
	}()
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

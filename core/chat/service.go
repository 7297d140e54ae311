// Package chat orchestrates the chatbot pipeline: persona detection,
// prompt composition, model selection, provider dispatch and response
// cleaning.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/azzcolabs/concierge/core/llm"
	"github.com/azzcolabs/concierge/core/persona"
	"github.com/azzcolabs/concierge/core/prompt"
	"github.com/azzcolabs/concierge/core/providers"
)

// Result is the externally visible outcome of one generation.
type Result struct {
	Response   string     `json:"response"`
	Persona    persona.ID `json:"persona"`
	Confidence float64    `json:"confidence"`
	TopicTags  []string   `json:"topicTags"`
	Model      string     `json:"model"`
	Provider   string     `json:"provider"`
}

// Record is the payload handed to the analytics sink after a
// successful generation.
type Record struct {
	VisitorID   string
	SessionID   string
	UserMessage string
	Response    string
	Persona     persona.ID
	TopicTags   []string
	Duration    time.Duration
}

// Recorder is a best-effort side channel for interaction records.
// Implementations must not block the pipeline; failures stay inside the
// sink and never surface here.
type Recorder interface {
	Record(rec Record)
}

// Health is the outcome of a provider round-trip check.
type Health struct {
	Available bool   `json:"available"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Error     string `json:"error,omitempty"`
}

// Options tune the pipeline. Zero values fall back to production
// defaults.
type Options struct {
	// HistoryWindow bounds how many trailing turns ride along with the
	// user message.
	HistoryWindow int

	// Complexity thresholds: messages longer than ComplexMessageLength,
	// carrying more than ComplexTagCount tags, or detected below
	// ComplexConfidenceFloor bias toward the high-priority model.
	ComplexMessageLength   int
	ComplexTagCount        int
	ComplexConfidenceFloor float64

	// Sampling parameters passed through verbatim to the provider.
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	TopK        *int
}

// DefaultOptions returns the production pipeline settings.
func DefaultOptions() Options {
	temperature := 0.7
	topP := 0.9
	topK := 40
	return Options{
		HistoryWindow:          5,
		ComplexMessageLength:   200,
		ComplexTagCount:        5,
		ComplexConfidenceFloor: 0.5,
		MaxTokens:              500,
		Temperature:            &temperature,
		TopP:                   &topP,
		TopK:                   &topK,
	}
}

// Service wires the pipeline stages together. It is safe for concurrent
// use: the only shared mutable state is owned by the limiter.
type Service struct {
	detector *persona.Detector
	composer *prompt.Composer
	limiter  *llm.Limiter
	registry *providers.Registry
	recorder Recorder
	logger   *slog.Logger
	opts     Options
}

// NewService assembles the pipeline.
func NewService(
	detector *persona.Detector,
	composer *prompt.Composer,
	limiter *llm.Limiter,
	registry *providers.Registry,
	recorder Recorder,
	logger *slog.Logger,
	opts Options,
) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	def := DefaultOptions()
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = def.HistoryWindow
	}
	if opts.ComplexMessageLength <= 0 {
		opts.ComplexMessageLength = def.ComplexMessageLength
	}
	if opts.ComplexTagCount <= 0 {
		opts.ComplexTagCount = def.ComplexTagCount
	}
	if opts.ComplexConfidenceFloor <= 0 {
		opts.ComplexConfidenceFloor = def.ComplexConfidenceFloor
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}

	return &Service{
		detector: detector,
		composer: composer,
		limiter:  limiter,
		registry: registry,
		recorder: recorder,
		logger:   logger,
		opts:     opts,
	}
}

// Generate runs the full pipeline for one user message. The stages run
// strictly in order: detect, compose, select model, dispatch, clean,
// assemble. Typed errors propagate; no fallback text is ever fabricated
// here.
func (s *Service) Generate(ctx context.Context, userMessage string, history []persona.Turn, visitorID, sessionID string) (*Result, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, ErrInvalidInput
	}

	start := time.Now()

	detection := s.detector.Detect(userMessage, history)
	tags := s.detector.TopicTags(userMessage)
	composed := s.composer.Compose(tags, detection.Persona, userMessage)

	model, err := s.limiter.Select(s.isComplex(userMessage, tags, detection))
	if err != nil {
		return nil, err
	}

	provider, err := s.resolveProvider(model)
	if err != nil {
		return nil, err
	}

	req := &providers.Request{
		Model:       model.Model,
		System:      composed.System,
		Messages:    s.buildMessages(history, userMessage),
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
		TopP:        s.opts.TopP,
		TopK:        s.opts.TopK,
	}

	resp, err := provider.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	// The remote call completed: it counts against quota no matter what
	// happens downstream.
	s.limiter.Record(model.Model)

	result := assemble(detection, tags, Clean(resp.Content), resp)
	duration := time.Since(start)

	if s.recorder != nil {
		s.recorder.Record(Record{
			VisitorID:   visitorID,
			SessionID:   sessionID,
			UserMessage: userMessage,
			Response:    result.Response,
			Persona:     result.Persona,
			TopicTags:   result.TopicTags,
			Duration:    duration,
		})
	}

	s.logger.Info("chat response generated",
		"persona", result.Persona,
		"confidence", result.Confidence,
		"tags", result.TopicTags,
		"model", result.Model,
		"duration", duration,
	)

	return result, nil
}

// CheckHealth performs a minimal round trip against the preferred
// available model.
func (s *Service) CheckHealth(ctx context.Context) Health {
	model, err := s.limiter.Select(false)
	if err != nil {
		// Every model is saturated or disabled; the default provider
		// can still answer whether the backend itself is reachable.
		provider, derr := s.registry.Default()
		if derr != nil {
			return Health{Available: false, Error: err.Error()}
		}
		h := Health{Provider: provider.Name(), Error: err.Error()}
		if herr := provider.HealthCheck(ctx); herr != nil {
			h.Error = herr.Error()
			return h
		}
		return h
	}

	provider, err := s.resolveProvider(model)
	if err != nil {
		return Health{Available: false, Model: model.Model, Error: err.Error()}
	}

	h := Health{Provider: provider.Name(), Model: model.Model}
	if err := provider.HealthCheck(ctx); err != nil {
		h.Error = err.Error()
		return h
	}
	h.Available = true
	return h
}

// resolveProvider maps a selected model to its provider: by the
// registered provider type first, then by asking each provider whether
// it supports the model. The fallback covers models registered under a
// provider alias the registry does not know.
func (s *Service) resolveProvider(model llm.ModelLimits) (providers.Provider, error) {
	provider, err := s.registry.Get(providers.ProviderType(model.Provider))
	if err == nil {
		return provider, nil
	}
	return s.registry.GetForModel(model.Model)
}

// isComplex classifies a request for model selection: long messages,
// many topic tags or a weak persona match bias toward the high-priority
// model.
func (s *Service) isComplex(message string, tags []string, detection persona.Detection) bool {
	return len(message) > s.opts.ComplexMessageLength ||
		len(tags) > s.opts.ComplexTagCount ||
		detection.Confidence < s.opts.ComplexConfidenceFloor
}

// buildMessages assembles the provider message list: the trailing
// history window in chronological order, then the current user message.
func (s *Service) buildMessages(history []persona.Turn, userMessage string) []providers.Message {
	if len(history) > s.opts.HistoryWindow {
		history = history[len(history)-s.opts.HistoryWindow:]
	}

	messages := make([]providers.Message, 0, len(history)+1)
	for _, turn := range history {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		role := providers.RoleUser
		if turn.Role == persona.RoleAssistant {
			role = providers.RoleAssistant
		}
		messages = append(messages, providers.Message{Role: role, Content: strings.TrimSpace(turn.Content)})
	}

	messages = append(messages, providers.Message{Role: providers.RoleUser, Content: strings.TrimSpace(userMessage)})
	return messages
}

// assemble maps the pipeline outputs onto the final result. No
// branching beyond direct field mapping.
func assemble(detection persona.Detection, tags []string, cleaned string, resp *providers.Response) *Result {
	return &Result{
		Response:   cleaned,
		Persona:    detection.Persona,
		Confidence: detection.Confidence,
		TopicTags:  tags,
		Model:      resp.Model,
		Provider:   resp.Provider,
	}
}

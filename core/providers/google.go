package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Supported Gemini models
var googleModels = map[string]bool{
	"gemini-2.5-flash":      true,
	"gemini-2.5-flash-lite": true,
}

// GoogleProvider implements Provider for Google's Gemini models. It is
// the primary backend in production.
type GoogleProvider struct {
	client *genai.Client
	config GoogleConfig
}

// NewGoogleProvider creates a Gemini provider with the given
// configuration.
func NewGoogleProvider(ctx context.Context, config GoogleConfig) (*GoogleProvider, error) {
	if config.Model == "" {
		config.Model = DefaultGoogleConfig().Model
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultGoogleConfig().MaxTokens
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultGoogleConfig().Timeout
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("google client: %w", err)
	}

	return &GoogleProvider{client: client, config: config}, nil
}

// Name returns the provider identifier.
func (p *GoogleProvider) Name() string {
	return string(ProviderTypeGoogle)
}

// Generate performs one non-streaming generation request.
func (p *GoogleProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	result, err := p.client.Models.GenerateContent(ctx, model, p.convertMessages(req.Messages), p.buildConfig(req))
	if err != nil {
		return nil, p.wrapErr(err)
	}

	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("google: %w", ErrEmptyGeneration)
	}

	return &Response{Content: text, Model: model, Provider: p.Name()}, nil
}

// HealthCheck performs a minimal round trip against the configured
// model.
func (p *GoogleProvider) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromText("ping", genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{MaxOutputTokens: 8}

	if _, err := p.client.Models.GenerateContent(ctx, p.config.Model, contents, cfg); err != nil {
		return p.wrapErr(err)
	}
	return nil
}

// ValidateConfig checks if the provider configuration is valid.
func (p *GoogleProvider) ValidateConfig() error {
	return p.config.Validate()
}

// SupportsModel checks if the provider supports the given model.
func (p *GoogleProvider) SupportsModel(model string) bool {
	return googleModels[model]
}

// DefaultModel returns the provider's default model.
func (p *GoogleProvider) DefaultModel() string {
	return p.config.Model
}

// Close cleans up any resources.
func (p *GoogleProvider) Close() error {
	return nil
}

// buildConfig constructs the Gemini generation config from a Request.
func (p *GoogleProvider) buildConfig(req *Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}
	cfg.MaxOutputTokens = int32(maxTokens)

	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.TopP != nil {
		cfg.TopP = genai.Ptr(float32(*req.TopP))
	}
	if req.TopK != nil {
		cfg.TopK = genai.Ptr(float32(*req.TopK))
	}

	return cfg
}

// convertMessages converts generic messages to Gemini contents. Gemini
// has no system role: system messages are folded in as user turns.
func (p *GoogleProvider) convertMessages(messages []Message) []*genai.Content {
	result := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			role = genai.Role(genai.RoleModel)
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		result = append(result, genai.NewContentFromText(msg.Content, role))
	}
	return result
}

func (p *GoogleProvider) wrapErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return wrapStatus(p.Name(), apiErr.Code, apiErr.Message, err)
	}
	return &ProviderError{Provider: p.Name(), Message: err.Error(), Err: err}
}

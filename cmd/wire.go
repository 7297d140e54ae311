package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/azzcolabs/concierge/core/chat"
	"github.com/azzcolabs/concierge/core/config"
	"github.com/azzcolabs/concierge/core/llm"
	"github.com/azzcolabs/concierge/core/persona"
	"github.com/azzcolabs/concierge/core/prompt"
	"github.com/azzcolabs/concierge/core/providers"
)

// newLogger builds the process-wide structured logger.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

// buildService assembles the chat pipeline from the configuration.
// Models whose provider has no API key are registered but disabled, so
// the selector skips them instead of dispatching into a 401.
func buildService(ctx context.Context, cfg *config.Config, recorder chat.Recorder, logger *slog.Logger) (*chat.Service, *providers.Registry, error) {
	table := persona.DefaultTable()
	if cfg.Chat.PersonaTable != "" {
		loaded, err := persona.LoadTable(cfg.Chat.PersonaTable)
		if err != nil {
			return nil, nil, err
		}
		table = loaded
	}

	library := prompt.DefaultLibrary()
	if cfg.Chat.PromptLibrary != "" {
		loaded, err := prompt.LoadLibrary(cfg.Chat.PromptLibrary)
		if err != nil {
			return nil, nil, err
		}
		library = loaded
	}

	weights := persona.Weights{Keyword: cfg.Chat.KeywordWeight, Continuity: cfg.Chat.ContinuityBias}
	detector, err := persona.NewDetector(table, weights)
	if err != nil {
		return nil, nil, err
	}
	composer, err := prompt.NewComposer(table, library)
	if err != nil {
		return nil, nil, err
	}

	registry := providers.NewRegistry()
	configured := make(map[string]bool)

	if key := cfg.Providers.Google.APIKey; key != "" {
		gc := providers.DefaultGoogleConfig()
		gc.APIKey = key
		gc.Timeout = cfg.Chat.Timeout
		gc.MaxTokens = cfg.Chat.MaxTokens
		if cfg.Providers.Google.Model != "" {
			gc.Model = cfg.Providers.Google.Model
		}
		if err := registry.RegisterGoogle(ctx, gc); err != nil {
			return nil, nil, err
		}
		configured[string(providers.ProviderTypeGoogle)] = true
	}
	if key := cfg.Providers.Anthropic.APIKey; key != "" {
		ac := providers.DefaultAnthropicConfig()
		ac.APIKey = key
		ac.Timeout = cfg.Chat.Timeout
		ac.MaxTokens = cfg.Chat.MaxTokens
		if cfg.Providers.Anthropic.Model != "" {
			ac.Model = cfg.Providers.Anthropic.Model
		}
		if err := registry.RegisterAnthropic(ac); err != nil {
			return nil, nil, err
		}
		configured[string(providers.ProviderTypeAnthropic)] = true
	}
	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		oc := providers.DefaultOpenAIConfig()
		oc.APIKey = key
		oc.Timeout = cfg.Chat.Timeout
		oc.MaxTokens = cfg.Chat.MaxTokens
		if cfg.Providers.OpenAI.Model != "" {
			oc.Model = cfg.Providers.OpenAI.Model
		}
		if err := registry.RegisterOpenAI(oc); err != nil {
			return nil, nil, err
		}
		configured[string(providers.ProviderTypeOpenAI)] = true
	}

	if len(configured) == 0 {
		return nil, nil, fmt.Errorf("no provider API key configured (set GOOGLE_AI_API_KEY, ANTHROPIC_API_KEY or OPENAI_API_KEY)")
	}
	if cfg.Providers.Default != "" && registry.Has(providers.ProviderType(cfg.Providers.Default)) {
		if err := registry.SetDefault(providers.ProviderType(cfg.Providers.Default)); err != nil {
			return nil, nil, err
		}
	}

	limiter := llm.NewLimiter(logger)
	for _, limits := range cfg.ModelLimits() {
		limiter.Register(limits)
		if !configured[limits.Provider] {
			limiter.Disable(limits.Model)
			logger.Warn("model disabled, provider has no API key",
				"model", limits.Model, "provider", limits.Provider)
		}
	}

	opts := chat.Options{
		HistoryWindow: cfg.Chat.HistoryWindow,
		MaxTokens:     cfg.Chat.MaxTokens,
	}
	if cfg.Chat.Temperature > 0 {
		opts.Temperature = &cfg.Chat.Temperature
	}
	if cfg.Chat.TopP > 0 {
		opts.TopP = &cfg.Chat.TopP
	}
	if cfg.Chat.TopK > 0 {
		opts.TopK = &cfg.Chat.TopK
	}

	service := chat.NewService(detector, composer, limiter, registry, recorder, logger, opts)
	return service, registry, nil
}

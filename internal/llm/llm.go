// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm provides the completion service used by planning, synthesis,
// and the AI deep research sources. Every provider satisfies Completer.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/trendlab/pkg/types"
)

// ErrUnavailable is returned by completers that cannot reach a model.
var ErrUnavailable = errors.New("llm unavailable")

// Request is one completion call.
type Request struct {
	// System is the system prompt.
	System string
	// Prompt is the user prompt.
	Prompt string
	// JSON asks the provider for a JSON object response when it supports it.
	JSON bool
	// Temperature is the sampling temperature; zero leaves the provider default.
	Temperature float32
}

// Completer returns the model's text answer to a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Unavailable is a Completer that always fails. It stands in when no
// provider is configured so callers exercise their fallbacks.
type Unavailable struct {
	Reason string
}

// Complete always returns ErrUnavailable.
func (u Unavailable) Complete(context.Context, Request) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrUnavailable, u.Reason)
}

// Default models per provider.
const (
	DefaultGeminiModel    = "gemini-2.5-pro"
	DefaultOpenAIModel    = "gpt-4o"
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
)

// New builds the completer selected by cfg. A missing API key is not an
// error: it yields an Unavailable completer and a warning.
func New(ctx context.Context, cfg types.LLMConfig, client *http.Client, log *zap.Logger) (Completer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Provider == types.ProviderNone || cfg.Provider == "" {
		return Unavailable{Reason: "no llm provider configured"}, nil
	}
	if cfg.APIKey == "" {
		log.Warn("llm: no api key, planning and synthesis will use fallbacks",
			zap.String("provider", string(cfg.Provider)))
		return Unavailable{Reason: fmt.Sprintf("no api key for %s", cfg.Provider)}, nil
	}

	switch cfg.Provider {
	case types.ProviderGemini:
		model := cfg.Model
		if model == "" {
			model = DefaultGeminiModel
		}
		return NewGemini(ctx, cfg.APIKey, model, client)
	case types.ProviderOpenAI:
		model := cfg.Model
		if model == "" {
			model = DefaultOpenAIModel
		}
		return NewOpenAI(cfg.APIKey, model, cfg.BaseURL, client), nil
	case types.ProviderAnthropic:
		model := cfg.Model
		if model == "" {
			model = DefaultAnthropicModel
		}
		return &Anthropic{APIKey: cfg.APIKey, Model: model, Client: client}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// DecodeJSON unmarshals a model answer into v. It tolerates Markdown code
// fences and prose around a single JSON object.
func DecodeJSON(text string, v any) error {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start < 0 || end <= start {
			return fmt.Errorf("no JSON object in model answer")
		}
		s = s[start : end+1]
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("parsing model JSON: %w", err)
	}
	return nil
}

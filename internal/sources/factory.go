// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/trendlab/internal/httputil"
	"github.com/pdiddy/trendlab/internal/llm"
	"github.com/pdiddy/trendlab/pkg/types"
)

// Catalog names with a dedicated client.
const (
	NameOpenFoodFacts = "Open Food Facts"
	NamePubMed        = "PubMed"
	NameGoogleTrends  = "Google Trends"
	NamePerplexity    = "Perplexity API"
	NameGemini        = "Gemini API"
	NameEurostat      = "Eurostat"
	NameUSDA          = "USDA FoodData Central"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultAITimeout = 30 * time.Second
	defaultUSDAKey   = "DEMO_KEY"
)

// Factory builds source clients from catalog descriptors. Limiters are
// kept per source name, so a source keeps one request budget across jobs.
type Factory struct {
	cfg    types.SourcesConfig
	client *http.Client
	log    *zap.Logger

	mu         sync.Mutex
	limiters   map[string]*httputil.Limiter
	completers map[string]llm.Completer
}

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the logger handed to clients.
func WithLogger(log *zap.Logger) Option {
	return func(f *Factory) { f.log = log }
}

// WithCompleter sets the model behind an AI research source, overriding
// the credential-based construction.
func WithCompleter(sourceName string, c llm.Completer) Option {
	return func(f *Factory) { f.completers[sourceName] = c }
}

// NewFactory returns a factory whose clients share client for HTTP.
func NewFactory(cfg types.SourcesConfig, client *http.Client, opts ...Option) *Factory {
	if client == nil {
		client = http.DefaultClient
	}
	f := &Factory{
		cfg:        cfg,
		client:     client,
		log:        zap.NewNop(),
		limiters:   make(map[string]*httputil.Limiter),
		completers: make(map[string]llm.Completer),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Create returns the client for desc. Known sources get their dedicated
// client, industry sites the industry scraper, and everything else the
// generic homepage scraper.
func (f *Factory) Create(desc types.SourceDescriptor) Client {
	get := f.getter(desc.Name)
	switch desc.Name {
	case NameOpenFoodFacts:
		return &OpenFoodFacts{get: get}
	case NamePubMed:
		return &PubMed{get: get}
	case NameGoogleTrends:
		return &GoogleTrends{}
	case NamePerplexity:
		return f.aiResearch(desc, "Perplexity", f.modelOr(f.cfg.PerplexityModel, "llama-3.1-sonar-large-128k-online"), "perplexity-api-key")
	case NameGemini:
		return f.aiResearch(desc, "Gemini", f.modelOr(f.cfg.GeminiModel, llm.DefaultGeminiModel), "gemini-api-key")
	case NameEurostat:
		return &Eurostat{get: get}
	case NameUSDA:
		key := f.cfg.USDAAPIKey
		if key == "" {
			key = defaultUSDAKey
		}
		return &USDA{get: get, apiKey: key}
	}
	if desc.Kind == types.KindIndustry {
		return &Industry{desc: desc, get: get, log: f.log}
	}
	return &Generic{desc: desc, get: get}
}

// Timeout returns the per-call timeout for desc: longer for AI research.
func (f *Factory) Timeout(desc types.SourceDescriptor) time.Duration {
	if desc.Kind == types.KindAIDeepResearch {
		if f.cfg.AITimeout > 0 {
			return f.cfg.AITimeout
		}
		return defaultAITimeout
	}
	if f.cfg.Timeout > 0 {
		return f.cfg.Timeout
	}
	return defaultTimeout
}

func (f *Factory) getter(name string) httputil.Getter {
	return httputil.Getter{
		Client:    f.client,
		Limiter:   f.limiter(name),
		UserAgent: f.cfg.UserAgent,
	}
}

func (f *Factory) limiter(name string) *httputil.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[name]
	if !ok {
		l = httputil.NewLimiter(f.cfg.RequestDelay)
		f.limiters[name] = l
	}
	return l
}

func (f *Factory) modelOr(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}

func (f *Factory) aiResearch(desc types.SourceDescriptor, label, model, credential string) *AIResearch {
	return &AIResearch{
		name:       desc.Name,
		url:        desc.URL,
		model:      model,
		label:      label,
		llm:        f.researchCompleter(desc.Name, model),
		credential: credential,
		limiter:    f.limiter(desc.Name),
		log:        f.log,
	}
}

// researchCompleter returns the model for an AI source, building it from
// credentials on first use. It returns nil when the credential is missing.
func (f *Factory) researchCompleter(name, model string) llm.Completer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.completers[name]; ok {
		return c
	}

	var c llm.Completer
	switch name {
	case NamePerplexity:
		if f.cfg.PerplexityAPIKey != "" {
			c = llm.NewPerplexity(f.cfg.PerplexityAPIKey, model, f.client)
		}
	case NameGemini:
		if f.cfg.GeminiAPIKey != "" {
			g, err := llm.NewGemini(context.Background(), f.cfg.GeminiAPIKey, model, f.client)
			if err != nil {
				f.log.Warn("sources: could not create Gemini client", zap.Error(err))
				return nil
			}
			c = g
		}
	}
	if c != nil {
		f.completers[name] = c
	}
	return c
}

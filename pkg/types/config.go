// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request timeout for simple source APIs (default 10s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "trendlab/1.0 research bot").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent" validate:"required"`
}

// SourcesConfig holds settings for the source clients.
type SourcesConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// AITimeout is the per-call timeout for AI deep research sources (default 30s).
	AITimeout time.Duration `json:"ai_timeout" yaml:"ai_timeout" mapstructure:"ai_timeout" validate:"gt=0"`

	// RequestDelay is the minimum spacing between outbound requests of one
	// source (default 500ms).
	RequestDelay time.Duration `json:"request_delay" yaml:"request_delay" mapstructure:"request_delay" validate:"gte=0"`

	// ResultLimit is the per-source record limit (default 10).
	ResultLimit int `json:"result_limit" yaml:"result_limit" mapstructure:"result_limit" validate:"min=1,max=100"`

	// RegistryFile overrides the embedded source catalog when set.
	RegistryFile string `json:"registry_file,omitempty" yaml:"registry_file,omitempty" mapstructure:"registry_file"`

	// PerplexityModel is the model used by the Perplexity research source.
	PerplexityModel string `json:"perplexity_model" yaml:"perplexity_model" mapstructure:"perplexity_model"`

	// GeminiModel is the model used by the Gemini research source.
	GeminiModel string `json:"gemini_model" yaml:"gemini_model" mapstructure:"gemini_model"`

	// PerplexityAPIKey enables the Perplexity research source.
	PerplexityAPIKey string `json:"perplexity_api_key,omitempty" yaml:"perplexity_api_key,omitempty" mapstructure:"perplexity_api_key"`

	// GeminiAPIKey enables the Gemini research source.
	GeminiAPIKey string `json:"gemini_api_key,omitempty" yaml:"gemini_api_key,omitempty" mapstructure:"gemini_api_key"`

	// USDAAPIKey is the FoodData Central key (default "DEMO_KEY").
	USDAAPIKey string `json:"usda_api_key,omitempty" yaml:"usda_api_key,omitempty" mapstructure:"usda_api_key"`
}

// CollectionConfig controls the data collection phase.
type CollectionConfig struct {
	// Concurrency is the number of sources fetched at once; 1 is sequential (default 4).
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency" validate:"min=1,max=8"`

	// MaxKeywords caps the search terms derived from a description when the
	// brief has no keywords (default 3).
	MaxKeywords int `json:"max_keywords" yaml:"max_keywords" mapstructure:"max_keywords" validate:"min=1"`
}

// LLMProvider selects the completion backend.
type LLMProvider string

const (
	ProviderGemini    LLMProvider = "gemini"
	ProviderOpenAI    LLMProvider = "openai"
	ProviderAnthropic LLMProvider = "anthropic"
	ProviderNone      LLMProvider = "none"
)

// LLMConfig holds settings for the completion service used by planning and synthesis.
type LLMConfig struct {
	// Provider is gemini, openai, anthropic, or none.
	Provider LLMProvider `json:"provider" yaml:"provider" mapstructure:"provider" validate:"oneof=gemini openai anthropic none"`

	// Model is the model identifier; empty selects the provider default.
	Model string `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`

	// APIKey authenticates against the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url" validate:"omitempty,url"`

	// Timeout bounds every completion call (default 60s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`

	// Temperature is the sampling temperature (default 0.7).
	Temperature float32 `json:"temperature" yaml:"temperature" mapstructure:"temperature" validate:"gte=0,lte=2"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is sqlite3 or postgres.
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite3 postgres"`

	// DSN is the sqlite file path or the postgres connection string.
	DSN string `json:"dsn" yaml:"dsn" mapstructure:"dsn" validate:"required"`
}

// RenderFormat is one report output format.
type RenderFormat string

const (
	FormatMarkdown RenderFormat = "markdown"
	FormatHTML     RenderFormat = "html"
	FormatDOCX     RenderFormat = "docx"
)

// RenderConfig holds settings for report rendering.
type RenderConfig struct {
	// OutputDir is where rendered reports are written (default "output/reports").
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir" validate:"required"`

	// Formats lists the formats to write; the first is the result handle.
	Formats []RenderFormat `json:"formats" yaml:"formats" mapstructure:"formats" validate:"min=1,dive,oneof=markdown html docx"`
}

// ServerConfig holds settings for the HTTP API.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr" validate:"required"`

	// EventBuffer is the per-job event channel capacity (default 256).
	EventBuffer int `json:"event_buffer" yaml:"event_buffer" mapstructure:"event_buffer" validate:"min=1"`
	// EventRetained is how many finished jobs the event bus remembers
	// (default 1024).
	EventRetained int `json:"event_retained" yaml:"event_retained" mapstructure:"event_retained" validate:"min=1"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `json:"level" yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`

	// Development switches to the human-readable console encoder.
	Development bool `json:"development" yaml:"development" mapstructure:"development"`
}

// Config groups all component configurations.
type Config struct {
	Sources    SourcesConfig    `json:"sources" yaml:"sources" mapstructure:"sources"`
	Collection CollectionConfig `json:"collection" yaml:"collection" mapstructure:"collection"`
	LLM        LLMConfig        `json:"llm" yaml:"llm" mapstructure:"llm"`
	Store      StoreConfig      `json:"store" yaml:"store" mapstructure:"store"`
	Render     RenderConfig     `json:"render" yaml:"render" mapstructure:"render"`
	Server     ServerConfig     `json:"server" yaml:"server" mapstructure:"server"`
	Log        LogConfig        `json:"log" yaml:"log" mapstructure:"log"`
}

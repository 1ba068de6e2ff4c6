// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config builds the runtime configuration from viper (config file,
// TRENDLAB_* environment variables, defaults) and the loaded secrets, then
// validates it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/pdiddy/trendlab/internal/secrets"
	"github.com/pdiddy/trendlab/pkg/types"
)

const (
	// Name is the config file base name (trendlab.yaml).
	Name = "trendlab"
	// EnvPrefix prefixes environment overrides, e.g. TRENDLAB_LLM_PROVIDER.
	EnvPrefix = "TRENDLAB"
)

// New returns a viper instance with defaults, environment binding, and the
// config file search path. When cfgFile is empty it looks for trendlab.yaml
// in the working directory and ~/.config/trendlab. A missing config file is
// not an error.
func New(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(Name)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", Name))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

// SetDefaults registers every configuration key with its default. Keys
// must be registered for AutomaticEnv to reach them during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("sources.timeout", 10*time.Second)
	v.SetDefault("sources.ai_timeout", 30*time.Second)
	v.SetDefault("sources.user_agent", "trendlab/1.0 research bot")
	v.SetDefault("sources.request_delay", 500*time.Millisecond)
	v.SetDefault("sources.result_limit", 10)
	v.SetDefault("sources.registry_file", "")
	v.SetDefault("sources.perplexity_model", "llama-3.1-sonar-large-128k-online")
	v.SetDefault("sources.gemini_model", "gemini-2.5-pro")
	v.SetDefault("sources.perplexity_api_key", "")
	v.SetDefault("sources.gemini_api_key", "")
	v.SetDefault("sources.usda_api_key", "")

	v.SetDefault("collection.concurrency", 4)
	v.SetDefault("collection.max_keywords", 3)

	v.SetDefault("llm.provider", string(types.ProviderGemini))
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.temperature", 0.7)

	v.SetDefault("store.driver", "sqlite3")
	v.SetDefault("store.dsn", "trendlab.db")

	v.SetDefault("render.output_dir", "output/reports")
	v.SetDefault("render.formats", []string{"markdown", "html", "docx"})

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.event_buffer", 256)
	v.SetDefault("server.event_retained", 1024)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load unmarshals v into a Config, fills empty credentials from secrets,
// and validates the result.
func Load(v *viper.Viper, creds map[string]string) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	applySecrets(&cfg, creds)
	if err := Validate(cfg); err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}

func applySecrets(cfg *types.Config, creds map[string]string) {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = creds[key]
		}
	}
	fill(&cfg.Sources.PerplexityAPIKey, secrets.PerplexityAPIKey)
	fill(&cfg.Sources.GeminiAPIKey, secrets.GeminiAPIKey)
	fill(&cfg.Sources.USDAAPIKey, secrets.USDAAPIKey)

	switch cfg.LLM.Provider {
	case types.ProviderGemini:
		fill(&cfg.LLM.APIKey, secrets.GeminiAPIKey)
	case types.ProviderOpenAI:
		fill(&cfg.LLM.APIKey, secrets.OpenAIAPIKey)
	case types.ProviderAnthropic:
		fill(&cfg.LLM.APIKey, secrets.AnthropicAPIKey)
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report keys the way they appear in trendlab.yaml.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks cfg against its struct tags and returns one error listing
// every offending key.
func Validate(cfg types.Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", configKey(fe), fe.ActualTag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// configKey turns "Config.sources.result_limit" into "sources.result_limit".
func configKey(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

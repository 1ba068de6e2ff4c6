// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files
// and, optionally, a .env file. Each file in the directory represents one secret: the
// filename is the key name and the file contents (trimmed) are the value. Dotenv keys
// are normalized to the same kebab-case names, so PERPLEXITY_API_KEY becomes
// perplexity-api-key.
//
// Supported keys: perplexity-api-key, gemini-api-key, openai-api-key, anthropic-api-key,
// usda-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Well-known secret names.
const (
	PerplexityAPIKey = "perplexity-api-key"
	GeminiAPIKey     = "gemini-api-key"
	OpenAIAPIKey     = "openai-api-key"
	AnthropicAPIKey  = "anthropic-api-key"
	USDAAPIKey       = "usda-api-key"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files produce a warning on stderr but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// LoadDotEnv parses a .env file without touching the process environment.
// Keys are normalized with NormalizeKey. A missing file yields an empty map.
func LoadDotEnv(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading dotenv file %s: %w", path, err)
	}

	secrets := make(map[string]string, len(env))
	for k, v := range env {
		v = strings.TrimSpace(v)
		if v != "" {
			secrets[NormalizeKey(k)] = v
		}
	}
	return secrets, nil
}

// NormalizeKey maps an environment-style name to a secret file name:
// lower case, underscores replaced by hyphens.
func NormalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "_", "-")
}

// LoadAll reads the secrets directory and the dotenv file and merges them.
// File secrets win over dotenv values.
func LoadAll(dir, dotenvPath string) (map[string]string, error) {
	merged, err := LoadDotEnv(dotenvPath)
	if err != nil {
		return nil, err
	}
	files, err := Load(dir)
	if err != nil {
		return nil, err
	}
	for k, v := range files {
		merged[k] = v
	}
	return merged, nil
}

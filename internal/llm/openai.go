// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// PerplexityBaseURL is the OpenAI-compatible Perplexity endpoint.
const PerplexityBaseURL = "https://api.perplexity.ai"

// OpenAI completes requests against the OpenAI chat completions API or any
// compatible endpoint (Perplexity, gateways).
type OpenAI struct {
	client *openai.Client
	model  string
	// jsonMode is false for endpoints that reject response_format.
	jsonMode bool
}

// NewOpenAI creates a chat-completions completer. An empty baseURL targets
// api.openai.com.
func NewOpenAI(apiKey, model, baseURL string, client *http.Client) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if client != nil {
		cfg.HTTPClient = client
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model, jsonMode: true}
}

// NewPerplexity creates a completer for Perplexity's online models.
func NewPerplexity(apiKey, model string, client *http.Client) *OpenAI {
	c := NewOpenAI(apiKey, model, PerplexityBaseURL, client)
	c.jsonMode = false
	return c
}

// Complete sends one chat completion.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	ccr := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    msgs,
		Temperature: req.Temperature,
	}
	if req.JSON && o.jsonMode {
		ccr.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, ccr)
	if err != nil {
		return "", fmt.Errorf("calling chat completions API: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("chat completions API returned empty content")
	}
	return resp.Choices[0].Message.Content, nil
}

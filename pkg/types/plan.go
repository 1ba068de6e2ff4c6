// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "sort"

// Plan size bounds. A plan whose source union falls outside this range is
// never used as-is.
const (
	MinPlanSources = 8
	MaxPlanSources = 20
)

// PlanProvenance records who produced the plan a job runs with.
type PlanProvenance string

const (
	ProvenanceLLM      PlanProvenance = "llm"
	ProvenanceFallback PlanProvenance = "fallback"
	ProvenanceUser     PlanProvenance = "user"
)

// AutomatedSources is the per-kind source selection of a plan. Values are
// registry names.
type AutomatedSources struct {
	General          []string          `json:"general" yaml:"general"`
	AIDeepResearch   []string          `json:"ai_deep_research" yaml:"ai_deep_research"`
	StatisticalDBs   map[string]string `json:"statistical_dbs" yaml:"statistical_dbs"`
	IndustryWebsites []string          `json:"industry_websites" yaml:"industry_websites"`
}

// Names returns the deduplicated union of all selected names. Order is
// general, AI, statistical (by country code), industry.
func (a AutomatedSources) Names() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(n string) {
		if n == "" || seen[n] {
			return
		}
		seen[n] = true
		names = append(names, n)
	}
	for _, n := range a.General {
		add(n)
	}
	for _, n := range a.AIDeepResearch {
		add(n)
	}
	countries := make([]string, 0, len(a.StatisticalDBs))
	for cc := range a.StatisticalDBs {
		countries = append(countries, cc)
	}
	sort.Strings(countries)
	for _, cc := range countries {
		add(a.StatisticalDBs[cc])
	}
	for _, n := range a.IndustryWebsites {
		add(n)
	}
	return names
}

// ResearchPlan is the bounded source selection and framing for one job.
type ResearchPlan struct {
	// ResearchObjectives lists what the report should answer.
	ResearchObjectives []string `json:"research_objectives" yaml:"research_objectives"`

	// AutomatedSources is the source selection.
	AutomatedSources AutomatedSources `json:"automated_sources" yaml:"automated_sources"`

	// ExpectedDataPoints is the planner's estimate of records to collect.
	ExpectedDataPoints int `json:"expected_data_points" yaml:"expected_data_points"`

	// AnalysisApproach is a free-text description of the method.
	AnalysisApproach string `json:"analysis_approach" yaml:"analysis_approach"`

	// ReportStructure lists the intended report sections.
	ReportStructure []string `json:"report_structure" yaml:"report_structure"`

	// EstimatedDuration is the estimated run time in minutes.
	EstimatedDuration int `json:"estimated_duration" yaml:"estimated_duration"`
}

// SourceCount returns the size of the selected source union.
func (p ResearchPlan) SourceCount() int {
	return len(p.AutomatedSources.Names())
}

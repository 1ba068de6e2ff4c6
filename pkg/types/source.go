// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types holds the data model shared across trendlab packages: source
// descriptors, normalized records, research plans, jobs, attempts, reports,
// progress events, and configuration.
package types

// SourceKind groups catalog entries by how they are queried.
type SourceKind string

const (
	KindGeneral        SourceKind = "general"
	KindAIDeepResearch SourceKind = "ai_deep_research"
	KindStatistical    SourceKind = "statistical"
	KindIndustry       SourceKind = "industry"
)

// SourceKinds lists every kind in catalog order.
var SourceKinds = []SourceKind{KindGeneral, KindAIDeepResearch, KindStatistical, KindIndustry}

// SourceDescriptor identifies one external data provider. Name is unique
// within a registry.
type SourceDescriptor struct {
	// Name is the display name and registry key (e.g. "PubMed").
	Name string `json:"name" yaml:"name"`

	// URL is the provider's public homepage.
	URL string `json:"url" yaml:"url"`

	// Kind is the source family.
	Kind SourceKind `json:"kind" yaml:"kind"`

	// CountryCode is set for statistical databases only (e.g. "DE", "EU").
	CountryCode string `json:"country_code,omitempty" yaml:"country_code,omitempty"`
}

// Record is one normalized search result returned by a source client.
type Record struct {
	Title       string         `json:"title" yaml:"title"`
	Description string         `json:"description" yaml:"description"`
	URL         string         `json:"url" yaml:"url"`
	Data        map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// Finding is the collected output of one successful source attempt, as
// handed to synthesis.
type Finding struct {
	SourceName string   `json:"source_name" yaml:"source_name"`
	SourceURL  string   `json:"source_url" yaml:"source_url"`
	Records    []Record `json:"records" yaml:"records"`
}

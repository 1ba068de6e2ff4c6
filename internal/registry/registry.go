// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package registry holds the static catalog of data sources that research
// plans select from. It performs no network calls.
package registry

import (
	_ "embed"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/trendlab/pkg/types"
)

//go:embed sources.yaml
var defaultCatalog []byte

// Registry is an immutable, name-indexed source catalog.
type Registry struct {
	all       []types.SourceDescriptor
	byName    map[string]int
	byCountry map[string]int
}

// catalogFile mirrors sources.yaml.
type catalogFile struct {
	General     []types.SourceDescriptor `yaml:"general"`
	AI          []types.SourceDescriptor `yaml:"ai_deep_research"`
	Statistical []types.SourceDescriptor `yaml:"statistical"`
	Industry    []types.SourceDescriptor `yaml:"industry"`
}

// Default returns the embedded catalog. It panics if the embedded file is
// invalid, which is caught by the package tests.
func Default() *Registry {
	r, err := Load(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("registry: embedded catalog: %v", err))
	}
	return r
}

// LoadFile reads a catalog from path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	return Load(data)
}

// Load parses a YAML catalog. Names must be unique, URLs non-empty, and
// statistical entries must carry a unique country code. A catalog smaller
// than the minimum plan size is rejected since no valid plan could be drawn
// from it.
func Load(data []byte) (*Registry, error) {
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	r := &Registry{
		byName:    make(map[string]int),
		byCountry: make(map[string]int),
	}
	groups := []struct {
		kind    types.SourceKind
		entries []types.SourceDescriptor
	}{
		{types.KindGeneral, cf.General},
		{types.KindAIDeepResearch, cf.AI},
		{types.KindStatistical, cf.Statistical},
		{types.KindIndustry, cf.Industry},
	}
	for _, g := range groups {
		for _, d := range g.entries {
			d.Kind = g.kind
			if err := r.add(d); err != nil {
				return nil, err
			}
		}
	}
	if len(r.all) < types.MinPlanSources {
		return nil, fmt.Errorf("catalog has %d sources, need at least %d", len(r.all), types.MinPlanSources)
	}
	return r, nil
}

func (r *Registry) add(d types.SourceDescriptor) error {
	if d.Name == "" {
		return fmt.Errorf("catalog entry with empty name (url %q)", d.URL)
	}
	if d.URL == "" {
		return fmt.Errorf("source %q has no url", d.Name)
	}
	if _, dup := r.byName[d.Name]; dup {
		return fmt.Errorf("duplicate source name %q", d.Name)
	}
	if d.Kind == types.KindStatistical {
		if d.CountryCode == "" {
			return fmt.Errorf("statistical source %q has no country code", d.Name)
		}
		if _, dup := r.byCountry[d.CountryCode]; dup {
			return fmt.Errorf("duplicate country code %q", d.CountryCode)
		}
		r.byCountry[d.CountryCode] = len(r.all)
	} else {
		d.CountryCode = ""
	}
	r.byName[d.Name] = len(r.all)
	r.all = append(r.all, d)
	return nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (types.SourceDescriptor, bool) {
	i, ok := r.byName[name]
	if !ok {
		return types.SourceDescriptor{}, false
	}
	return r.all[i], true
}

// Statistical returns the statistical database for a country code.
func (r *Registry) Statistical(countryCode string) (types.SourceDescriptor, bool) {
	i, ok := r.byCountry[countryCode]
	if !ok {
		return types.SourceDescriptor{}, false
	}
	return r.all[i], true
}

// ByKind returns the descriptors of one kind in catalog order.
func (r *Registry) ByKind(kind types.SourceKind) []types.SourceDescriptor {
	var out []types.SourceDescriptor
	for _, d := range r.all {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// All returns a copy of every descriptor in catalog order.
func (r *Registry) All() []types.SourceDescriptor {
	out := make([]types.SourceDescriptor, len(r.all))
	copy(out, r.all)
	return out
}

// Len returns the number of registered sources.
func (r *Registry) Len() int { return len(r.all) }

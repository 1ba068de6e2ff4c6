// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/trendlab/pkg/types"
)

func TestDefaultCatalog(t *testing.T) {
	r := Default()

	counts := map[types.SourceKind]int{}
	for _, d := range r.All() {
		counts[d.Kind]++
	}
	assert.Equal(t, 3, counts[types.KindGeneral])
	assert.Equal(t, 2, counts[types.KindAIDeepResearch])
	assert.Equal(t, 34, counts[types.KindStatistical])
	assert.Equal(t, 5, counts[types.KindIndustry])
	assert.Equal(t, 44, r.Len())
}

func TestDefaultCatalogOrder(t *testing.T) {
	r := Default()

	var general []string
	for _, d := range r.ByKind(types.KindGeneral) {
		general = append(general, d.Name)
	}
	want := []string{"Open Food Facts", "PubMed", "Google Trends"}
	if diff := cmp.Diff(want, general); diff != "" {
		t.Errorf("general sources mismatch (-want +got):\n%s", diff)
	}
}

func TestLookup(t *testing.T) {
	r := Default()

	d, ok := r.Lookup("PubMed")
	require.True(t, ok)
	assert.Equal(t, types.KindGeneral, d.Kind)
	assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov", d.URL)
	assert.Empty(t, d.CountryCode)

	_, ok = r.Lookup("Nonexistent Source")
	assert.False(t, ok)
}

func TestStatistical(t *testing.T) {
	r := Default()

	tests := []struct {
		country string
		want    string
	}{
		{"EU", "Eurostat"},
		{"USA", "USDA FoodData Central"},
		{"DE", "GENESIS Datenbank"},
		{"NO", "Statistics Norway"},
		{"TR", "Turkish Statistical Institute"},
	}
	for _, tt := range tests {
		t.Run(tt.country, func(t *testing.T) {
			d, ok := r.Statistical(tt.country)
			if !ok {
				t.Fatalf("Statistical(%q) not found", tt.country)
			}
			if d.Name != tt.want {
				t.Errorf("Statistical(%q) = %q, want %q", tt.country, d.Name, tt.want)
			}
			if d.CountryCode != tt.country {
				t.Errorf("CountryCode = %q, want %q", d.CountryCode, tt.country)
			}
		})
	}

	_, ok := r.Statistical("XX")
	assert.False(t, ok)
}

func TestAllReturnsCopy(t *testing.T) {
	r := Default()
	all := r.All()
	all[0].Name = "mutated"

	d, ok := r.Lookup("Open Food Facts")
	require.True(t, ok)
	assert.Equal(t, "Open Food Facts", d.Name)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"duplicate name", "general:\n  - {name: A, url: http://a}\nindustry:\n  - {name: A, url: http://b}\n"},
		{"empty url", "general:\n  - {name: A}\n"},
		{"empty name", "general:\n  - {url: http://a}\n"},
		{"statistical without country", "statistical:\n  - {name: S, url: http://s}\n"},
		{"duplicate country", "statistical:\n  - {country_code: DE, name: S1, url: http://s}\n  - {country_code: DE, name: S2, url: http://t}\n"},
		{"malformed yaml", "general: [\n"},
		{"too few sources", "general:\n  - {name: A, url: http://a}\nstatistical:\n  - {country_code: DE, name: S, url: http://s}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load([]byte(tt.yaml)); err == nil {
				t.Errorf("Load() expected error for %s", tt.name)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := `general:
  - {name: Local, url: http://localhost}
  - {name: Mirror, url: http://mirror}
ai_deep_research:
  - {name: Perplexity API, url: https://api.perplexity.ai}
statistical:
  - {country_code: DE, name: Destatis, url: http://destatis}
  - {country_code: FR, name: INSEE, url: http://insee}
industry:
  - {name: Trade One, url: http://one}
  - {name: Trade Two, url: http://two}
  - {name: Trade Three, url: http://three}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	r, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8, r.Len())
	assert.Len(t, r.ByKind(types.KindAIDeepResearch), 1)

	d, ok := r.Statistical("DE")
	require.True(t, ok)
	assert.Equal(t, types.KindStatistical, d.Kind)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

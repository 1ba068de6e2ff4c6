// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/trendlab/internal/httputil"
	"github.com/pdiddy/trendlab/pkg/types"
)

// Base URLs are declared as vars so tests can substitute httptest servers.
var (
	openFoodFactsBase = "https://world.openfoodfacts.org"
	pubMedBase        = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	googleTrendsBase  = "https://trends.google.com"
)

// OpenFoodFacts searches the Open Food Facts product database.
type OpenFoodFacts struct {
	get httputil.Getter
}

// Name returns the catalog name.
func (c *OpenFoodFacts) Name() string { return NameOpenFoodFacts }

// Search queries /cgi/search.pl with the first two keywords.
func (c *OpenFoodFacts) Search(ctx context.Context, keywords []string, limit int) ([]types.Record, error) {
	terms := queryTerms(keywords, 2)
	if len(terms) == 0 {
		return nil, nil
	}

	params := url.Values{
		"search_terms":  {strings.Join(terms, " ")},
		"search_simple": {"1"},
		"action":        {"process"},
		"json":          {"1"},
		"page_size":     {strconv.Itoa(limit)},
	}

	var resp offResponse
	if err := c.get.GetJSON(ctx, openFoodFactsBase+"/cgi/search.pl?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("Open Food Facts search: %w", err)
	}

	records := make([]types.Record, 0, len(resp.Products))
	for _, p := range resp.Products {
		title := p.ProductName
		if title == "" {
			title = "Unknown Product"
		}
		records = append(records, types.Record{
			Title:       title,
			Description: strings.Trim(p.Brands+" - "+p.Categories, " -"),
			URL:         "https://world.openfoodfacts.org/product/" + p.Code,
			Data: map[string]any{
				"ingredients":     p.IngredientsText,
				"nutrition_grade": p.NutritionGrade,
				"categories":      p.Categories,
				"proteins_100g":   p.Nutriments.Proteins100g,
			},
		})
	}
	return records, nil
}

type offResponse struct {
	Products []offProduct `json:"products"`
}

type offProduct struct {
	Code            string `json:"code"`
	ProductName     string `json:"product_name"`
	Brands          string `json:"brands"`
	Categories      string `json:"categories"`
	IngredientsText string `json:"ingredients_text"`
	NutritionGrade  string `json:"nutrition_grade_fr"`
	Nutriments      struct {
		Proteins100g float64 `json:"proteins_100g"`
	} `json:"nutriments"`
}

// PubMed searches the NCBI E-utilities in two steps: esearch for ids, then
// esummary for article metadata.
type PubMed struct {
	get httputil.Getter
}

// Name returns the catalog name.
func (c *PubMed) Name() string { return NamePubMed }

// Search matches the first three keywords against title and abstract.
func (c *PubMed) Search(ctx context.Context, keywords []string, limit int) ([]types.Record, error) {
	terms := queryTerms(keywords, 3)
	if len(terms) == 0 {
		return nil, nil
	}
	clauses := make([]string, len(terms))
	for i, t := range terms {
		clauses[i] = t + "[Title/Abstract]"
	}

	searchParams := url.Values{
		"db":      {"pubmed"},
		"term":    {strings.Join(clauses, " AND ")},
		"retmax":  {strconv.Itoa(limit)},
		"retmode": {"json"},
		"sort":    {"relevance"},
	}
	var sr pubMedSearchResponse
	if err := c.get.GetJSON(ctx, pubMedBase+"/esearch.fcgi?"+searchParams.Encode(), &sr); err != nil {
		return nil, fmt.Errorf("PubMed esearch: %w", err)
	}

	ids := sr.Result.IDList
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	summaryParams := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(ids, ",")},
		"retmode": {"json"},
	}
	var sum pubMedSummaryResponse
	if err := c.get.GetJSON(ctx, pubMedBase+"/esummary.fcgi?"+summaryParams.Encode(), &sum); err != nil {
		return nil, fmt.Errorf("PubMed esummary: %w", err)
	}

	var records []types.Record
	for _, id := range ids {
		raw, ok := sum.Result[id]
		if !ok {
			continue
		}
		var a pubMedArticle
		if err := json.Unmarshal(raw, &a); err != nil {
			continue
		}
		var authors []string
		for i, au := range a.Authors {
			if i == 3 {
				break
			}
			authors = append(authors, au.Name)
		}
		title := a.Title
		if title == "" {
			title = "Unknown Title"
		}
		records = append(records, types.Record{
			Title:       title,
			Description: strings.TrimSpace(a.Source + " " + a.PubDate),
			URL:         "https://pubmed.ncbi.nlm.nih.gov/" + id + "/",
			Data: map[string]any{
				"pmid":    id,
				"authors": strings.Join(authors, ", "),
				"pubdate": a.PubDate,
				"journal": a.Source,
			},
		})
	}
	return records, nil
}

type pubMedSearchResponse struct {
	Result struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// pubMedSummaryResponse keys articles by PMID next to a "uids" list, so
// entries are decoded one id at a time.
type pubMedSummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

type pubMedArticle struct {
	Title   string `json:"title"`
	Source  string `json:"source"`
	PubDate string `json:"pubdate"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

// GoogleTrends has no public API. It emits one pointer record per keyword
// so the corpus records which terms were tracked.
type GoogleTrends struct{}

// Name returns the catalog name.
func (c *GoogleTrends) Name() string { return NameGoogleTrends }

// Search returns up to five synthetic trend records.
func (c *GoogleTrends) Search(_ context.Context, keywords []string, limit int) ([]types.Record, error) {
	var records []types.Record
	for _, kw := range queryTerms(keywords, 5) {
		if limit > 0 && len(records) >= limit {
			break
		}
		records = append(records, types.Record{
			Title:       "Trend Analysis: " + kw,
			Description: "Google Trends interest for " + kw,
			URL:         googleTrendsBase + "/explore?" + url.Values{"q": {kw}, "geo": {"DE"}}.Encode(),
			Data: map[string]any{
				"keyword":   kw,
				"synthetic": true,
			},
		})
	}
	return records, nil
}

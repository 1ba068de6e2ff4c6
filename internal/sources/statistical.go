// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/trendlab/internal/httputil"
	"github.com/pdiddy/trendlab/pkg/types"
)

var (
	eurostatBase = "https://ec.europa.eu/eurostat/api/dissemination"
	usdaBase     = "https://api.nal.usda.gov/fdc/v1"
)

// Eurostat searches the Eurostat dataset catalogue.
type Eurostat struct {
	get httputil.Getter
}

// Name returns the catalog name.
func (c *Eurostat) Name() string { return NameEurostat }

// Search queries the catalogue with the first three keywords.
func (c *Eurostat) Search(ctx context.Context, keywords []string, limit int) ([]types.Record, error) {
	terms := queryTerms(keywords, 3)
	if len(terms) == 0 {
		return nil, nil
	}

	params := url.Values{
		"query": {strings.Join(terms, " ")},
		"lang":  {"en"},
	}
	var resp eurostatResponse
	if err := c.get.GetJSON(ctx, eurostatBase+"/catalogue/search?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("Eurostat catalogue search: %w", err)
	}

	var records []types.Record
	for _, d := range resp.Datasets {
		if limit > 0 && len(records) >= limit {
			break
		}
		title := d.Title
		if title == "" {
			title = "Unknown Dataset"
		}
		records = append(records, types.Record{
			Title:       title,
			Description: d.Description,
			URL:         "https://ec.europa.eu/eurostat/databrowser/view/" + d.Code,
			Data: map[string]any{
				"code":        d.Code,
				"last_update": d.LastUpdate,
			},
		})
	}
	return records, nil
}

type eurostatResponse struct {
	Datasets []struct {
		Code        string `json:"code"`
		Title       string `json:"title"`
		Description string `json:"description"`
		LastUpdate  string `json:"lastUpdate"`
	} `json:"datasets"`
}

// USDA searches FoodData Central.
type USDA struct {
	get    httputil.Getter
	apiKey string
}

// Name returns the catalog name.
func (c *USDA) Name() string { return NameUSDA }

// Search queries /foods/search with the first two keywords.
func (c *USDA) Search(ctx context.Context, keywords []string, limit int) ([]types.Record, error) {
	terms := queryTerms(keywords, 2)
	if len(terms) == 0 {
		return nil, nil
	}

	params := url.Values{
		"query":    {strings.Join(terms, " ")},
		"pageSize": {strconv.Itoa(limit)},
		"api_key":  {c.apiKey},
	}
	var resp usdaResponse
	if err := c.get.GetJSON(ctx, usdaBase+"/foods/search?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("USDA foods search: %w", err)
	}

	records := make([]types.Record, 0, len(resp.Foods))
	for _, f := range resp.Foods {
		nutrients := make([]map[string]any, 0, 5)
		for i, n := range f.FoodNutrients {
			if i == 5 {
				break
			}
			nutrients = append(nutrients, map[string]any{
				"name":  n.NutrientName,
				"value": n.Value,
				"unit":  n.UnitName,
			})
		}
		title := f.Description
		if title == "" {
			title = "Unknown Food"
		}
		records = append(records, types.Record{
			Title:       title,
			Description: strings.Trim(f.BrandOwner+" - "+f.DataType, " -"),
			URL:         fmt.Sprintf("https://fdc.nal.usda.gov/fdc-app.html#/food-details/%d", f.FDCID),
			Data: map[string]any{
				"fdc_id":    f.FDCID,
				"data_type": f.DataType,
				"nutrients": nutrients,
			},
		})
	}
	return records, nil
}

type usdaResponse struct {
	Foods []struct {
		FDCID         int    `json:"fdcId"`
		Description   string `json:"description"`
		BrandOwner    string `json:"brandOwner"`
		DataType      string `json:"dataType"`
		FoodNutrients []struct {
			NutrientName string  `json:"nutrientName"`
			Value        float64 `json:"value"`
			UnitName     string  `json:"unitName"`
		} `json:"foodNutrients"`
	} `json:"foods"`
}

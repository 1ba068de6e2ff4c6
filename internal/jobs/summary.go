// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"github.com/montanaflynn/stats"

	"github.com/pdiddy/trendlab/pkg/types"
)

// Summary aggregates the source attempts of a job.
type Summary struct {
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	Pending     int     `json:"pending"`
	TotalItems  int     `json:"total_items"`
	MeanItems   float64 `json:"mean_items"`
	MedianItems float64 `json:"median_items"`
}

// Summarize counts attempts by outcome. Mean and median are taken over
// the item counts of successful attempts and are zero when none succeeded.
func Summarize(attempts []types.SourceAttempt) Summary {
	s := Summary{Total: len(attempts)}
	var items stats.Float64Data
	for _, a := range attempts {
		switch a.Status {
		case types.AttemptSuccess:
			s.Succeeded++
			s.TotalItems += a.FoundItems
			items = append(items, float64(a.FoundItems))
		case types.AttemptError:
			s.Failed++
		default:
			s.Pending++
		}
	}
	if len(items) == 0 {
		return s
	}
	if mean, err := stats.Mean(items); err == nil {
		s.MeanItems, _ = stats.Round(mean, 2)
	}
	if median, err := stats.Median(items); err == nil {
		s.MedianItems = median
	}
	return s
}

package analysis

import (
	"math"
	"sort"
	"strconv"

	"github.com/guarzo/mltrends/internal/model"
)

// Explain recomputes the score breakdown of an already enriched item.
func Explain(item model.EnrichedTrendItem, w Weights) ScoreBreakdown {
	s := productStats{
		avgPrice:  item.AvgPrice,
		minPrice:  item.MinPrice,
		maxPrice:  item.MaxPrice,
		totalSold: item.TotalSold,
	}
	if item.FreeShippingPercentage != nil {
		s.freeShippingPct = *item.FreeShippingPercentage
	}
	for _, p := range item.Products {
		if p.AvailableQuantity > 0 {
			s.available += p.AvailableQuantity
		}
	}
	return score(item.TotalResults, s, w)
}

// RankByOpportunity returns a copy of items sorted by score, highest first.
// Ties keep their trend order.
func RankByOpportunity(items []model.EnrichedTrendItem) []model.EnrichedTrendItem {
	out := make([]model.EnrichedTrendItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score() > out[j].Score()
	})
	return out
}

// ReportOpportunities renders enriched items as CSV rows, header first.
// With showWhy set a breakdown column computed with w is appended.
func ReportOpportunities(items []model.EnrichedTrendItem, w Weights, showWhy bool) [][]string {
	header := []string{"Keyword", "TrendType", "Score", "TotalResults", "AvgPrice", "MinPrice", "MaxPrice", "TotalSold", "FreeShipping_%", "TopProduct", "URL"}
	if showWhy {
		header = append(header, "Breakdown")
	}
	out := [][]string{header}

	for _, item := range items {
		top := ""
		if len(item.Products) > 0 {
			top = item.Products[0].Permalink
		}
		row := []string{
			item.Keyword,
			string(item.TrendType),
			strconv.Itoa(item.Score()),
			strconv.Itoa(item.TotalResults),
			price(item.AvgPrice),
			price(item.MinPrice),
			price(item.MaxPrice),
			optionalInt(item.TotalSold),
			percent(item.FreeShippingPercentage),
			top,
			item.URL,
		}
		if showWhy {
			row = append(row, Explain(item, w).String())
		}
		out = append(out, row)
	}
	return out
}

func price(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(round2(*v), 'f', 2, 64)
}

func percent(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(round2(*v), 'f', 1, 64) + "%"
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

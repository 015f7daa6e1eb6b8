package analysis

import (
	"fmt"
	"math"

	"github.com/guarzo/mltrends/internal/model"
)

// MaxProducts is the number of top search results kept per trend.
const MaxProducts = 3

// Weights are the per-factor caps of the opportunity score. They sum to 100.
type Weights struct {
	Name         string
	SearchVolume float64
	SoldQuantity float64
	FreeShipping float64
	PriceRange   float64
	Availability float64
}

var (
	// OnDemandWeights is used when a single trend is enriched on request.
	OnDemandWeights = Weights{
		Name:         "on_demand",
		SearchVolume: 30,
		SoldQuantity: 25,
		FreeShipping: 20,
		PriceRange:   15,
		Availability: 10,
	}

	// BatchWeights is used by the progressive batch enricher. Sold quantity
	// carries more weight than search volume here.
	BatchWeights = Weights{
		Name:         "batch",
		SearchVolume: 25,
		SoldQuantity: 35,
		FreeShipping: 20,
		PriceRange:   10,
		Availability: 10,
	}
)

// WeightsByName resolves a preset name as accepted by the CLI and API.
func WeightsByName(name string) (Weights, error) {
	switch name {
	case "", BatchWeights.Name:
		return BatchWeights, nil
	case OnDemandWeights.Name, "ondemand":
		return OnDemandWeights, nil
	default:
		return Weights{}, fmt.Errorf("unknown weight preset %q", name)
	}
}

// Normalization points: the volume, sold and availability factors reach
// their cap at these raw values.
const (
	searchVolumeSaturation = 10000.0
	soldSaturation         = 1000.0
	availabilitySaturation = 100.0
	priceRangeMultiplier   = 10.0
)

// ScoreBreakdown holds each factor's contribution after capping.
type ScoreBreakdown struct {
	SearchVolume float64
	SoldQuantity float64
	FreeShipping float64
	PriceRange   float64
	Availability float64
}

// Total is the rounded, clamped opportunity score.
func (b ScoreBreakdown) Total() int {
	sum := b.SearchVolume + b.SoldQuantity + b.FreeShipping + b.PriceRange + b.Availability
	score := int(math.Round(sum))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func (b ScoreBreakdown) String() string {
	return fmt.Sprintf("Vol:%.1f Sold:%.1f Ship:%.1f Range:%.1f Avail:%.1f",
		b.SearchVolume, b.SoldQuantity, b.FreeShipping, b.PriceRange, b.Availability)
}

// Calculate builds the enriched view of trend from one search response.
func Calculate(trend model.TrendItem, resp *model.SearchResponse, w Weights) model.EnrichedTrendItem {
	item, _ := CalculateWithBreakdown(trend, resp, w)
	return item
}

// CalculateWithBreakdown is Calculate plus the per-factor contributions.
func CalculateWithBreakdown(trend model.TrendItem, resp *model.SearchResponse, w Weights) (model.EnrichedTrendItem, ScoreBreakdown) {
	if resp == nil {
		resp = model.EmptySearchResponse(trend.Keyword, MaxProducts)
	}

	products := topProducts(resp.Results)
	stats := summarize(products)

	item := model.EnrichedTrendItem{
		TrendItem:              trend,
		Products:               products,
		TotalResults:           resp.Paging.Total,
		AvgPrice:               stats.avgPrice,
		MinPrice:               stats.minPrice,
		MaxPrice:               stats.maxPrice,
		TotalSold:              stats.totalSold,
		FreeShippingPercentage: &stats.freeShippingPct,
	}

	breakdown := score(resp.Paging.Total, stats, w)
	total := breakdown.Total()
	item.OpportunityScore = &total
	return item, breakdown
}

type productStats struct {
	avgPrice, minPrice, maxPrice *float64
	totalSold                    *int
	freeShippingPct              float64
	available                    int
}

func topProducts(results []model.SearchProduct) []model.SearchProduct {
	n := len(results)
	if n > MaxProducts {
		n = MaxProducts
	}
	out := make([]model.SearchProduct, n)
	copy(out, results[:n])
	return out
}

func summarize(products []model.SearchProduct) productStats {
	var s productStats

	var sum, lo, hi float64
	priced := 0
	for _, p := range products {
		if p.Price <= 0 {
			continue
		}
		if priced == 0 || p.Price < lo {
			lo = p.Price
		}
		if priced == 0 || p.Price > hi {
			hi = p.Price
		}
		sum += p.Price
		priced++
	}
	if priced > 0 {
		avg := sum / float64(priced)
		s.avgPrice, s.minPrice, s.maxPrice = &avg, &lo, &hi
	}

	sold, soldSeen := 0, false
	freeShipping := 0
	for _, p := range products {
		if p.SoldQuantity > 0 {
			sold += p.SoldQuantity
			soldSeen = true
		}
		if p.Shipping.FreeShipping {
			freeShipping++
		}
		if p.AvailableQuantity > 0 {
			s.available += p.AvailableQuantity
		}
	}
	if soldSeen {
		s.totalSold = &sold
	}
	if len(products) > 0 {
		s.freeShippingPct = float64(freeShipping) / float64(len(products)) * 100
	}
	return s
}

func score(total int, s productStats, w Weights) ScoreBreakdown {
	var b ScoreBreakdown

	b.SearchVolume = capped(float64(total)/searchVolumeSaturation*w.SearchVolume, w.SearchVolume)
	if s.totalSold != nil {
		b.SoldQuantity = capped(float64(*s.totalSold)/soldSaturation*w.SoldQuantity, w.SoldQuantity)
	}
	b.FreeShipping = capped(s.freeShippingPct/100*w.FreeShipping, w.FreeShipping)
	if s.minPrice != nil && s.maxPrice != nil && *s.minPrice > 0 {
		ratio := (*s.maxPrice - *s.minPrice) / *s.minPrice
		b.PriceRange = capped(ratio*priceRangeMultiplier, w.PriceRange)
	}
	b.Availability = capped(float64(s.available)/availabilitySaturation*w.Availability, w.Availability)

	return b
}

func capped(v, limit float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(limit, v)
}

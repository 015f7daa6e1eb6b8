package model

// TrendType classifies a trend by its position in the marketplace trend list.
type TrendType string

const (
	TrendFastestGrowing TrendType = "fastest_growing"
	TrendMostWanted     TrendType = "most_wanted"
	TrendMostPopular    TrendType = "most_popular"
)

// TrendTypeAt derives the trend type from the item's ordinal position in the
// original list.
func TrendTypeAt(index int) TrendType {
	switch {
	case index < 10:
		return TrendFastestGrowing
	case index < 30:
		return TrendMostWanted
	default:
		return TrendMostPopular
	}
}

// TrendItem is a keyword the marketplace reports as currently popular.
type TrendItem struct {
	Keyword   string    `json:"keyword"`
	URL       string    `json:"url"`
	TrendType TrendType `json:"trend_type,omitempty"`
}

// WithTrendTypes returns a copy of items with TrendType recomputed from each
// item's position.
func WithTrendTypes(items []TrendItem) []TrendItem {
	out := make([]TrendItem, len(items))
	for i, item := range items {
		item.TrendType = TrendTypeAt(i)
		out[i] = item
	}
	return out
}

// Shipping is the subset of listing shipping data we read.
type Shipping struct {
	FreeShipping bool `json:"free_shipping"`
}

// SearchProduct is a single listing returned by the marketplace search.
type SearchProduct struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Price             float64  `json:"price"`
	CurrencyID        string   `json:"currency_id"`
	SoldQuantity      int      `json:"sold_quantity"`
	AvailableQuantity int      `json:"available_quantity"`
	Shipping          Shipping `json:"shipping"`
	Condition         string   `json:"condition"`
	Permalink         string   `json:"permalink,omitempty"`
	Thumbnail         string   `json:"thumbnail,omitempty"`
}

type Paging struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// SearchResponse is the result of one search call.
type SearchResponse struct {
	Query   string          `json:"query"`
	Paging  Paging          `json:"paging"`
	Results []SearchProduct `json:"results"`
}

// EmptySearchResponse is the "no data available" terminal response.
func EmptySearchResponse(query string, limit int) *SearchResponse {
	return &SearchResponse{
		Query:   query,
		Paging:  Paging{Total: 0, Offset: 0, Limit: limit},
		Results: []SearchProduct{},
	}
}

// EnrichedTrendItem is a trend plus product statistics and an opportunity
// score. Nil pointer fields mean the metric could not be computed.
type EnrichedTrendItem struct {
	TrendItem

	Products               []SearchProduct `json:"products"`
	TotalResults           int             `json:"total_results"`
	AvgPrice               *float64        `json:"avg_price,omitempty"`
	MinPrice               *float64        `json:"min_price,omitempty"`
	MaxPrice               *float64        `json:"max_price,omitempty"`
	TotalSold              *int            `json:"total_sold,omitempty"`
	FreeShippingPercentage *float64        `json:"free_shipping_percentage,omitempty"`
	OpportunityScore       *int            `json:"opportunity_score,omitempty"`
}

// Placeholder is the zero-valued record used when enrichment of a trend
// failed inside a batch.
func Placeholder(trend TrendItem) EnrichedTrendItem {
	zero := 0
	return EnrichedTrendItem{
		TrendItem:        trend,
		Products:         []SearchProduct{},
		TotalResults:     0,
		OpportunityScore: &zero,
	}
}

// Score returns the opportunity score, or 0 when it is undefined.
func (e EnrichedTrendItem) Score() int {
	if e.OpportunityScore == nil {
		return 0
	}
	return *e.OpportunityScore
}

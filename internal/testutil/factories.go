package testutil

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/guarzo/mltrends/internal/model"
)

// Trends returns n trends named "trend 0".."trend n-1" with trend types set.
func Trends(n int) []model.TrendItem {
	items := make([]model.TrendItem, n)
	for i := range items {
		items[i] = model.TrendItem{
			Keyword: fmt.Sprintf("trend %d", i),
			URL:     fmt.Sprintf("https://listado.mercadolibre.com.ar/trend-%d", i),
		}
	}
	return model.WithTrendTypes(items)
}

// SearchResponse builds a response for query with the given total and products.
func SearchResponse(query string, total int, products ...model.SearchProduct) *model.SearchResponse {
	if products == nil {
		products = []model.SearchProduct{}
	}
	return &model.SearchResponse{
		Query:   query,
		Paging:  model.Paging{Total: total, Limit: 3},
		Results: products,
	}
}

// TestDataFactory provides methods for generating dynamic test data
type TestDataFactory struct {
	rand *rand.Rand
}

// NewTestDataFactory creates a new test data factory with a seeded random generator
func NewTestDataFactory(seed int64) *TestDataFactory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &TestDataFactory{
		rand: rand.New(rand.NewSource(seed)),
	}
}

var keywords = []string{"zapatillas", "celular", "termo", "aire acondicionado", "notebook", "bicicleta", "perfume"}

// Keyword returns a random keyword, sometimes with a model suffix.
func (f *TestDataFactory) Keyword() string {
	kw := keywords[f.rand.Intn(len(keywords))]
	if f.rand.Intn(2) == 0 {
		kw = fmt.Sprintf("%s %d", kw, f.rand.Intn(20)+1)
	}
	return kw
}

// Product returns a well-formed listing.
func (f *TestDataFactory) Product() model.SearchProduct {
	id := fmt.Sprintf("MLA%d", f.rand.Int63n(1e10))
	return model.SearchProduct{
		ID:                id,
		Title:             f.Keyword(),
		Price:             float64(f.rand.Intn(500000)+100) / 100,
		CurrencyID:        "ARS",
		SoldQuantity:      f.rand.Intn(2000),
		AvailableQuantity: f.rand.Intn(500),
		Shipping:          model.Shipping{FreeShipping: f.rand.Intn(2) == 0},
		Condition:         "new",
		Permalink:         "https://articulo.mercadolibre.com.ar/" + id,
	}
}

// MessyProduct returns a listing that may carry the out-of-range values
// real search results contain: negative or placeholder prices and
// negative quantities.
func (f *TestDataFactory) MessyProduct() model.SearchProduct {
	p := f.Product()
	switch f.rand.Intn(4) {
	case 0:
		p.Price = f.rand.Float64()*1e6 - 1e5
	case 1:
		p.Price = 99999999
	}
	if f.rand.Intn(5) == 0 {
		p.SoldQuantity = -f.rand.Intn(100)
	}
	if f.rand.Intn(5) == 0 {
		p.AvailableQuantity = -1
	}
	return p
}

// RandomSearchResponse returns up to maxProducts messy products and a
// random total.
func (f *TestDataFactory) RandomSearchResponse(maxProducts int) *model.SearchResponse {
	products := make([]model.SearchProduct, f.rand.Intn(maxProducts+1))
	for i := range products {
		products[i] = f.MessyProduct()
	}
	return SearchResponse(f.Keyword(), f.rand.Intn(1_000_000), products...)
}

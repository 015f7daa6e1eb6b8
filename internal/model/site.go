package model

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownSite = errors.New("unknown site")

// Site describes one marketplace country the dashboard supports.
type Site struct {
	Code       string
	Country    string
	Currency   string
	TrendsHost string
}

// sites is the fixed allow-list of marketplace country codes.
var sites = map[string]Site{
	"MLA": {Code: "MLA", Country: "Argentina", Currency: "ARS", TrendsHost: "tendencias.mercadolibre.com.ar"},
	"MLB": {Code: "MLB", Country: "Brasil", Currency: "BRL", TrendsHost: "tendencias.mercadolivre.com.br"},
	"MLC": {Code: "MLC", Country: "Chile", Currency: "CLP", TrendsHost: "tendencias.mercadolibre.cl"},
	"MLM": {Code: "MLM", Country: "México", Currency: "MXN", TrendsHost: "tendencias.mercadolibre.com.mx"},
	"MCO": {Code: "MCO", Country: "Colombia", Currency: "COP", TrendsHost: "tendencias.mercadolibre.com.co"},
	"MLU": {Code: "MLU", Country: "Uruguay", Currency: "UYU", TrendsHost: "tendencias.mercadolibre.com.uy"},
	"MPE": {Code: "MPE", Country: "Perú", Currency: "PEN", TrendsHost: "tendencias.mercadolibre.com.pe"},
}

var siteOrder = []string{"MLA", "MLB", "MLC", "MLM", "MCO", "MLU", "MPE"}

// Sites returns the supported site codes in display order.
func Sites() []string {
	out := make([]string, len(siteOrder))
	copy(out, siteOrder)
	return out
}

// LookupSite normalizes code and returns its configuration.
func LookupSite(code string) (Site, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if site, ok := sites[normalized]; ok {
		return site, nil
	}
	return Site{}, fmt.Errorf("%w: %q", ErrUnknownSite, code)
}

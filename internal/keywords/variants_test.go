package keywords

import (
	"reflect"
	"strings"
	"testing"
)

func TestVariants(t *testing.T) {
	tests := []struct {
		name    string
		keyword string
		want    []string
	}{
		{
			name:    "stop word and short tokens dropped",
			keyword: "samsung galaxy s24 de 256gb",
			want:    []string{"samsung galaxy s24 de 256gb", "samsung galaxy s24", "samsung galaxy", "samsung"},
		},
		{
			name:    "single word",
			keyword: "Celular",
			want:    []string{"Celular"},
		},
		{
			name:    "empty keyword",
			keyword: "",
			want:    []string{""},
		},
		{
			name:    "two significant tokens",
			keyword: "Zapatillas Nike",
			want:    []string{"Zapatillas Nike", "zapatillas"},
		},
		{
			name:    "short first token is not used alone",
			keyword: "pro max cargador",
			want:    []string{"pro max cargador", "pro max"},
		},
		{
			name:    "lowercase duplicate of original collapses",
			keyword: "samsung galaxy s24",
			want:    []string{"samsung galaxy s24", "samsung galaxy", "samsung"},
		},
		{
			name:    "spanish connectors",
			keyword: "Mochila para notebook con ruedas",
			want:    []string{"Mochila para notebook con ruedas", "mochila notebook ruedas", "mochila notebook", "mochila"},
		},
		{
			name:    "accented tokens counted by rune",
			keyword: "cámara fotográfica",
			want:    []string{"cámara fotográfica", "cámara"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Variants(tt.keyword)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Variants(%q) = %q, want %q", tt.keyword, got, tt.want)
			}
		})
	}
}

func TestVariants_Properties(t *testing.T) {
	keywords := []string{
		"samsung galaxy s24 de 256gb",
		"Aire Acondicionado Split Frio Calor",
		"funda de la el los las con para iphone",
		"  espacios   dobles  ",
		"LA CASA DE PAPEL",
		"x",
		"juego de sábanas para cama king",
	}

	for _, kw := range keywords {
		variants := Variants(kw)

		if variants[0] != kw {
			t.Errorf("first variant of %q must be the keyword itself, got %q", kw, variants[0])
		}

		seen := make(map[string]bool)
		for i, v := range variants {
			if seen[v] {
				t.Errorf("duplicate variant %q for %q", v, kw)
			}
			seen[v] = true

			if i == 0 {
				continue
			}
			for _, tok := range strings.Fields(v) {
				if _, stop := stopWords[tok]; stop {
					t.Errorf("variant %q of %q contains stop word %q", v, kw, tok)
				}
			}
		}
	}
}

package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestEscapeCSVCell(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"keyword", "zapatillas nike", "zapatillas nike"},
		{"number", "123.45", "123.45"},
		{"hash", "#1 ventas", "#1 ventas"},
		{"internal_equal", "A=B", "A=B"},

		{"formula_equal", "=SUM(A1:A10)", "'=SUM(A1:A10)"},
		{"formula_plus", "+123", "'+123"},
		{"formula_minus", "-123", "'-123"},
		{"formula_at", "@SUM(A:A)", "'@SUM(A:A)"},
		{"formula_pipe", "|echo test", "'|echo test"},
		{"formula_percent", "%PATH%", "'%PATH%"},

		{"tab_start", "\t=EXEC()", "'\t=EXEC()"},
		{"newline_start", "\n=FORMULA()", "'\n=FORMULA()"},
		{"carriage_return", "\r=DATA()", "'\r=DATA()"},

		{"keyword_discount", "-50% celulares", "'-50% celulares"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EscapeCSVCell(tt.input)
			if result != tt.expected {
				t.Errorf("EscapeCSVCell(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestWriteCSV(t *testing.T) {
	rows := [][]string{
		{"Keyword", "Score"},
		{"=HYPERLINK(\"x\")", "87"},
		{"aire acondicionado, split", "42"},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	got, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	want := [][]string{
		{"Keyword", "Score"},
		{"'=HYPERLINK(\"x\")", "87"},
		{"aire acondicionado, split", "42"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "MLA.csv")
	if err := WriteFile(path, [][]string{{"Keyword"}, {"termo"}}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "Keyword\ntermo\n" {
		t.Errorf("unexpected file contents %q", data)
	}
}

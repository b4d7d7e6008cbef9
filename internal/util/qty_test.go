package util

import "testing"

func TestParseQty(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  float64
	}{
		{name: "unit suffix", input: "Roulement 6204-2RS 25 pcs", want: 25},
		{name: "french unit", input: "Cable H07V-K 1.5 mm2 noir 100 m", want: 100},
		{name: "qty prefix", input: "Vanne DN50 Qté: 4", want: 4},
		{name: "thousand with space", input: "Rondelle M8 1 000 pcs", want: 1000},
		{name: "thousand dot", input: "Vis CHC M6x20 1.000 pcs", want: 1000},
		{name: "decimal comma", input: "Joint torique 2,5 m", want: 2.5},
		{name: "last number wins", input: "Filtre G4 592x592x48 10 pcs", want: 10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed := ParseQty(tc.input)
			if parsed.Qty == nil {
				t.Fatalf("qty is nil")
			}
			if *parsed.Qty != tc.want {
				t.Fatalf("got %v want %v", *parsed.Qty, tc.want)
			}
		})
	}
}

func TestParseQtyNone(t *testing.T) {
	parsed := ParseQty("courroie trapezoidale profil SPZ")
	if parsed.Qty != nil {
		t.Fatalf("expected nil qty, got %v", *parsed.Qty)
	}
}

func TestNormalizeUnit(t *testing.T) {
	parsed := ParseQty("Palier UCP205 12 pièces")
	if parsed.Unit == nil || *parsed.Unit != "pcs" {
		t.Fatalf("unit=%v", parsed.Unit)
	}
}

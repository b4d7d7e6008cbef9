package pipeline

import "testing"

func TestParseTextLinesQtyFirst(t *testing.T) {
	items := parseTextLines("2 x Vanne DN50\n10 pcs Roulement 6204\n")
	if len(items) != 2 {
		t.Fatalf("len=%d", len(items))
	}
	if items[0].Qty != 2 || items[0].Description != "Vanne DN50" {
		t.Fatalf("item0=%+v", items[0])
	}
	if items[1].Qty != 10 {
		t.Fatalf("item1=%+v", items[1])
	}
}

func TestParseTextLinesTrailingQty(t *testing.T) {
	items := parseTextLines("Cable U1000 R2V 3G2.5 100 m\nContacteur LC1D18 4 pcs\n")
	if len(items) != 2 {
		t.Fatalf("len=%d", len(items))
	}
	if items[0].Qty != 100 {
		t.Fatalf("qty0=%g", items[0].Qty)
	}
	if items[0].Unit == nil || *items[0].Unit != "m" {
		t.Fatalf("unit0=%v", items[0].Unit)
	}
	if items[1].Qty != 4 {
		t.Fatalf("qty1=%g", items[1].Qty)
	}
	if items[1].RefCode == nil || *items[1].RefCode != "LC1D18" {
		t.Fatalf("refCode=%v", items[1].RefCode)
	}
}

func TestParseTextLinesSkipsNoise(t *testing.T) {
	text := "Bonjour,\n" +
		"Vanne papillon DN80 2 pcs\n" +
		"Merci d'avance\n" +
		"Cordialement,\n" +
		"Tél: 01 02 03 04 05\n"
	items := parseTextLines(text)
	if len(items) != 1 {
		t.Fatalf("len=%d items=%+v", len(items), items)
	}
	if items[0].Qty != 2 {
		t.Fatalf("qty=%g", items[0].Qty)
	}
}

func TestParseTextLinesFoldsWrappedDescription(t *testing.T) {
	items := parseTextLines("Moteur asynchrone 4kW 1500tr 2 pcs\navec bride de fixation en fonte\n")
	if len(items) != 1 {
		t.Fatalf("len=%d", len(items))
	}
	if got := items[0].Description; got != "Moteur asynchrone 4kW 1500tr avec bride de fixation en fonte" {
		t.Fatalf("description=%q", got)
	}
}

func TestParseTextLinesNumberedList(t *testing.T) {
	items := parseTextLines("1. Pompe centrifuge 5 pcs\n2. Garniture mecanique 5 pcs\n")
	if len(items) != 2 {
		t.Fatalf("len=%d", len(items))
	}
	if items[0].Qty != 5 || items[1].Qty != 5 {
		t.Fatalf("qty=%g,%g", items[0].Qty, items[1].Qty)
	}
}

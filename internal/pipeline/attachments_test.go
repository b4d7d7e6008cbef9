package pipeline

import (
	"strings"
	"testing"

	"rfqdesk/internal"
	"rfqdesk/internal/config"
)

type fakeBrands struct{ names []string }

func (f *fakeBrands) DetectBrands(text string) []string {
	norm := strings.ToLower(text)
	out := []string{}
	for _, name := range f.names {
		if strings.Contains(norm, strings.ToLower(name)) {
			out = append(out, name)
		}
	}
	return out
}

func testAttachmentClassifier(t *testing.T, brands internal.BrandDetector) *AttachmentClassifier {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	return NewAttachmentClassifier(cfg, brands)
}

func TestClassifyAttachmentsMixedMessage(t *testing.T) {
	a := testAttachmentClassifier(t, &fakeBrands{names: []string{"ABB"}})
	attachments := []internal.Attachment{
		{Filename: "image001.png", ContentType: "image/png", ContentID: "img1", Size: 4096},
		{Filename: "Liste_pieces_ABB.xlsx", ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Size: 18000},
		{Filename: "fiche_technique_ABB.pdf", ContentType: "application/pdf", Size: 220000},
	}

	classified := a.Classify(attachments)
	if len(classified) != 3 {
		t.Fatalf("len=%d", len(classified))
	}
	if classified[0].Category != internal.CategoryDecorativeImage {
		t.Fatalf("image: %s", classified[0].Category)
	}
	if classified[1].Category != internal.CategoryRequestDocument {
		t.Fatalf("xlsx: %s", classified[1].Category)
	}
	if classified[1].Brand == nil || *classified[1].Brand != "ABB" {
		t.Fatalf("xlsx brand=%v", classified[1].Brand)
	}
	if classified[2].Category != internal.CategoryTechnicalSheet {
		t.Fatalf("pdf: %s", classified[2].Category)
	}
	if classified[2].RelatedTo == nil || *classified[2].RelatedTo != "Liste_pieces_ABB.xlsx" {
		t.Fatalf("sheet relatedTo=%v", classified[2].RelatedTo)
	}

	groups := GroupAttachments(classified)
	if len(groups) != 1 {
		t.Fatalf("groups=%d", len(groups))
	}
	if len(groups[0].Documents) != 1 || len(groups[0].TechnicalSheets) != 1 {
		t.Fatalf("group shape: docs=%d sheets=%d", len(groups[0].Documents), len(groups[0].TechnicalSheets))
	}
	if groups[0].Brand == nil || *groups[0].Brand != "ABB" {
		t.Fatalf("group brand=%v", groups[0].Brand)
	}
}

func TestDecorativeImageRules(t *testing.T) {
	a := testAttachmentClassifier(t, nil)

	cases := []struct {
		name string
		att  internal.Attachment
		want bool
	}{
		{"inline name", internal.Attachment{Filename: "image002.jpg", ContentType: "image/jpeg", Size: 900000}, true},
		{"content id", internal.Attachment{Filename: "plan.png", ContentType: "image/png", ContentID: "cid-7", Size: 800000}, true},
		{"small image", internal.Attachment{Filename: "chart.png", ContentType: "image/png", Size: 12000}, true},
		{"large photo", internal.Attachment{Filename: "photo_piece.jpg", ContentType: "image/jpeg", Size: 300000}, false},
		{"document", internal.Attachment{Filename: "liste.xlsx", ContentType: "application/octet-stream", Size: 12000}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := a.isDecorativeImage(tc.att); got != tc.want {
				t.Fatalf("got=%t want=%t", got, tc.want)
			}
		})
	}
}

func TestGroupAttachmentsPartition(t *testing.T) {
	a := testAttachmentClassifier(t, &fakeBrands{names: []string{"ABB", "Siemens"}})
	attachments := []internal.Attachment{
		{Filename: "demande_ABB.xlsx", Size: 9000},
		{Filename: "demande_Siemens.xlsx", Size: 9000},
		{Filename: "besoin_divers.pdf", Size: 40000},
	}

	groups := GroupAttachments(a.Classify(attachments))
	if len(groups) != 3 {
		t.Fatalf("groups=%d", len(groups))
	}

	// Every request document lands in exactly one group.
	seen := map[string]int{}
	for _, g := range groups {
		for _, doc := range g.Documents {
			seen[doc.Attachment.Filename]++
		}
	}
	for _, att := range attachments {
		if seen[att.Filename] != 1 {
			t.Fatalf("document %s appears %d times", att.Filename, seen[att.Filename])
		}
	}
}

func TestGroupAttachmentsMergesSingleBrand(t *testing.T) {
	a := testAttachmentClassifier(t, &fakeBrands{names: []string{"Legrand"}})
	attachments := []internal.Attachment{
		{Filename: "demande_Legrand_1.xlsx", Size: 9000},
		{Filename: "demande_Legrand_2.xlsx", Size: 9000},
	}

	groups := GroupAttachments(a.Classify(attachments))
	if len(groups) != 1 {
		t.Fatalf("groups=%d", len(groups))
	}
	if len(groups[0].Documents) != 2 {
		t.Fatalf("docs=%d", len(groups[0].Documents))
	}
	if groups[0].Brand == nil || *groups[0].Brand != "Legrand" {
		t.Fatalf("brand=%v", groups[0].Brand)
	}
}

func TestGroupAttachmentsMergedGroupKeepsRelatedSheetsOnly(t *testing.T) {
	legrand := "Legrand"
	siemens := "Siemens"
	related := "demande_Legrand_1.xlsx"
	classified := []internal.ClassifiedAttachment{
		{Attachment: internal.Attachment{Filename: "demande_Legrand_1.xlsx"}, Category: internal.CategoryRequestDocument, Brand: &legrand},
		{Attachment: internal.Attachment{Filename: "demande_Legrand_2.xlsx"}, Category: internal.CategoryRequestDocument, Brand: &legrand},
		{Attachment: internal.Attachment{Filename: "fiche_technique_Legrand.pdf"}, Category: internal.CategoryTechnicalSheet, Brand: &legrand},
		{Attachment: internal.Attachment{Filename: "notice_demande_Legrand_1.pdf"}, Category: internal.CategoryTechnicalSheet, RelatedTo: &related},
		{Attachment: internal.Attachment{Filename: "catalogue_Siemens.pdf"}, Category: internal.CategoryTechnicalSheet, Brand: &siemens},
	}

	groups := GroupAttachments(classified)
	if len(groups) != 1 {
		t.Fatalf("groups=%d", len(groups))
	}
	if len(groups[0].TechnicalSheets) != 2 {
		t.Fatalf("sheets=%d", len(groups[0].TechnicalSheets))
	}
	for _, sheet := range groups[0].TechnicalSheets {
		if sheet.Attachment.Filename == "catalogue_Siemens.pdf" {
			t.Fatal("unrelated sheet of another brand must stay out of the merged group")
		}
	}
}

func TestGroupAttachmentsNoDocuments(t *testing.T) {
	a := testAttachmentClassifier(t, nil)
	attachments := []internal.Attachment{
		{Filename: "image001.png", ContentType: "image/png", ContentID: "x", Size: 2048},
	}
	if groups := GroupAttachments(a.Classify(attachments)); len(groups) != 0 {
		t.Fatalf("groups=%d", len(groups))
	}
}

package pipeline

import (
	"path/filepath"
	"regexp"
	"strings"

	"rfqdesk/internal"
	"rfqdesk/internal/config"
	"rfqdesk/internal/util"
)

var (
	inlineImageName = regexp.MustCompile(`(?i)^(image|logo|signature|banner|icon)[\d_-]*\.(png|gif|jpe?g|bmp|svg)$`)
	documentExts    = map[string]bool{".pdf": true, ".xlsx": true, ".xls": true, ".docx": true, ".doc": true, ".txt": true, ".csv": true}
)

var technicalSheetNames = []string{
	"fiche technique", "fiche_technique", "fiche-technique", "ft_", "datasheet",
	"data sheet", "data_sheet", "notice", "manuel", "manual", "catalogue",
	"catalog", "brochure", "plaquette", "doc technique", "certificat",
}

var requestDocumentNames = []string{
	"demande", "rfq", "consultation", "besoin", "liste", "request", "articles",
	"pieces", "a chiffrer", "a_chiffrer",
}

// AttachmentClassifier categorizes attachments and tags brands so the
// extractor only pays for documents that can actually carry line items.
type AttachmentClassifier struct {
	cfg    config.Config
	brands internal.BrandDetector
}

func NewAttachmentClassifier(cfg config.Config, brands internal.BrandDetector) *AttachmentClassifier {
	return &AttachmentClassifier{cfg: cfg, brands: brands}
}

func (a *AttachmentClassifier) Classify(attachments []internal.Attachment) []internal.ClassifiedAttachment {
	out := make([]internal.ClassifiedAttachment, 0, len(attachments))

	substantive := 0
	for _, att := range attachments {
		if isDocument(att) {
			substantive++
		}
	}

	for _, att := range attachments {
		out = append(out, a.classifyOne(att, substantive))
	}

	a.pairTechnicalSheets(out)
	return out
}

func (a *AttachmentClassifier) classifyOne(att internal.Attachment, substantiveDocs int) internal.ClassifiedAttachment {
	name := util.Normalize(att.Filename)

	if a.isDecorativeImage(att) {
		return internal.ClassifiedAttachment{
			Attachment: att,
			Category:   internal.CategoryDecorativeImage,
			Confidence: util.IntPtr(95),
		}
	}

	if !isDocument(att) {
		return internal.ClassifiedAttachment{Attachment: att, Category: internal.CategoryOther}
	}

	brand := a.detectBrand(att)

	if containsAny(name, technicalSheetNames) {
		return internal.ClassifiedAttachment{
			Attachment: att,
			Category:   internal.CategoryTechnicalSheet,
			Brand:      brand,
			Confidence: util.IntPtr(85),
		}
	}

	if containsAny(name, requestDocumentNames) {
		return internal.ClassifiedAttachment{
			Attachment: att,
			Category:   internal.CategoryRequestDocument,
			Brand:      brand,
			Confidence: util.IntPtr(90),
		}
	}

	// No name signal either way. The sole substantive document in a message
	// is almost always the request list; with several candidates we still
	// prefer request_document over dropping a possible list.
	confidence := 60
	if substantiveDocs == 1 {
		confidence = 75
	}
	return internal.ClassifiedAttachment{
		Attachment: att,
		Category:   internal.CategoryRequestDocument,
		Brand:      brand,
		Confidence: util.IntPtr(confidence),
	}
}

func (a *AttachmentClassifier) isDecorativeImage(att internal.Attachment) bool {
	if !strings.HasPrefix(strings.ToLower(att.ContentType), "image/") && !inlineImageName.MatchString(att.Filename) {
		return false
	}
	if inlineImageName.MatchString(att.Filename) {
		return true
	}
	if att.ContentID != "" {
		return true
	}
	return att.Size > 0 && att.Size < a.cfg.DecorativeImageMaxBytes
}

func (a *AttachmentClassifier) detectBrand(att internal.Attachment) *string {
	if a.brands == nil {
		return nil
	}
	probe := att.Filename
	if text := textPreview(att); text != "" {
		probe += "\n" + text
	}
	brands := a.brands.DetectBrands(probe)
	if len(brands) == 0 {
		return nil
	}
	return util.StringPtr(brands[0])
}

// pairTechnicalSheets links each sheet to a request document sharing a
// filename stem or a brand. The link is a back-reference by filename, not
// ownership.
func (a *AttachmentClassifier) pairTechnicalSheets(classified []internal.ClassifiedAttachment) {
	for i := range classified {
		if classified[i].Category != internal.CategoryTechnicalSheet {
			continue
		}
		sheetStem := filenameStem(classified[i].Attachment.Filename)
		for j := range classified {
			if classified[j].Category != internal.CategoryRequestDocument {
				continue
			}
			docStem := filenameStem(classified[j].Attachment.Filename)
			sameStem := sheetStem != "" && docStem != "" &&
				(strings.Contains(sheetStem, docStem) || strings.Contains(docStem, sheetStem))
			sameBrand := classified[i].Brand != nil && classified[j].Brand != nil &&
				*classified[i].Brand == *classified[j].Brand
			if sameStem || sameBrand {
				classified[i].RelatedTo = util.StringPtr(classified[j].Attachment.Filename)
				break
			}
		}
	}
}

// GroupAttachments partitions request documents into processing groups:
// none → empty (caller falls back to body extraction), one → one group,
// several sharing a single brand → merged, otherwise one group each.
// Technical sheets follow their back-reference or their brand.
func GroupAttachments(classified []internal.ClassifiedAttachment) []internal.AttachmentGroup {
	docs := make([]internal.ClassifiedAttachment, 0, len(classified))
	sheets := make([]internal.ClassifiedAttachment, 0)
	for _, ca := range classified {
		switch ca.Category {
		case internal.CategoryRequestDocument:
			docs = append(docs, ca)
		case internal.CategoryTechnicalSheet:
			sheets = append(sheets, ca)
		}
	}

	if len(docs) == 0 {
		return nil
	}

	if brand := sharedBrand(docs); len(docs) > 1 && brand != nil {
		// Every request document is in this group, so any back-reference
		// lands here; unrelated sheets of another brand stay out.
		group := internal.AttachmentGroup{Documents: docs, Brand: brand}
		for _, sheet := range sheets {
			byRef := sheet.RelatedTo != nil
			byBrand := sheet.Brand != nil && *sheet.Brand == *brand
			if byRef || byBrand {
				group.TechnicalSheets = append(group.TechnicalSheets, sheet)
			}
		}
		return []internal.AttachmentGroup{group}
	}

	groups := make([]internal.AttachmentGroup, 0, len(docs))
	for _, doc := range docs {
		group := internal.AttachmentGroup{Documents: []internal.ClassifiedAttachment{doc}, Brand: doc.Brand}
		for _, sheet := range sheets {
			byRef := sheet.RelatedTo != nil && *sheet.RelatedTo == doc.Attachment.Filename
			byBrand := sheet.RelatedTo == nil && sheet.Brand != nil && doc.Brand != nil && *sheet.Brand == *doc.Brand
			if byRef || byBrand {
				group.TechnicalSheets = append(group.TechnicalSheets, sheet)
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// sharedBrand returns the single brand detected across every document, or
// nil when any document disagrees or lacks a brand. Documents with no brand
// are never folded into a brand group.
func sharedBrand(docs []internal.ClassifiedAttachment) *string {
	var brand *string
	for _, doc := range docs {
		if doc.Brand == nil {
			return nil
		}
		if brand == nil {
			brand = doc.Brand
			continue
		}
		if *doc.Brand != *brand {
			return nil
		}
	}
	return brand
}

func isDocument(att internal.Attachment) bool {
	return documentExts[strings.ToLower(filepath.Ext(att.Filename))]
}

func filenameStem(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	return util.NormalizeSpaces(util.Normalize(base))
}

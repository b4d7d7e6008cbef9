package pipeline

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"rfqdesk/internal"
	"rfqdesk/internal/config"
	"rfqdesk/internal/util"
)

var ignorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[-_=*]{2,}$`),
	regexp.MustCompile(`(?i)^(merci|thank)`),
	regexp.MustCompile(`(?i)^(cordialement|regards|salutations|sincerely)`),
	regexp.MustCompile(`(?i)^(bonjour|bonsoir|hello|dear)\b`),
	regexp.MustCompile(`(?i)^t[ée]l[:\s.]`),
	regexp.MustCompile(`(?i)^(e-?mail|mail)[:\s]`),
	regexp.MustCompile(`(?i)^(http|www\.)`),
	regexp.MustCompile(`(?i)^page\s+\d+`),
}

// Lines that open with a quantity: "2 x Vanne DN50", "10 pcs roulement 6204".
// Quantities at the start of a line are small; longer digit runs are codes.
var qtyFirstLine = regexp.MustCompile(`(?i)^(\d{1,3}(?:[.,]\d+)?)\s*(?:x\s+|pcs\s+|pces?\s+|pi[eè]ces?\s+|u\s+)([A-Za-z].{2,})$`)

// Numbered list rows: "1. description ... 5 pcs" / "03 - description".
var listMarker = regexp.MustCompile(`^\s*\d{1,3}\s*[.)\-]\s+`)

// External reference captures demand a digit so prose after the keyword
// ("RFQ for bearings") never produces a reference.
var externalRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bn[/.]?\s*r[ée]f\.?\s*:?\s*([A-Z0-9/_-]{0,16}\d[A-Z0-9/_-]{0,16})`),
	regexp.MustCompile(`(?i)\bvotre\s+r[ée]f[ée]rence\s*:?\s*([A-Z0-9/_-]{0,16}\d[A-Z0-9/_-]{0,16})`),
	regexp.MustCompile(`(?i)\brfq\s*(?:n[o°]?\.?|#)?\s*:?\s*([A-Z0-9/_-]{0,16}\d[A-Z0-9/_-]{0,16})`),
	regexp.MustCompile(`(?i)\bconsultation\s+n[o°]?\s*:?\s*([A-Z0-9/_-]{0,16}\d[A-Z0-9/_-]{0,16})`),
}

// Extractor converts request documents or the message body into line items.
// It never fails the pipeline: unparseable content yields an empty result
// and lets the orchestrator synthesize a placeholder.
type Extractor struct {
	cfg config.Config
}

func NewExtractor(cfg config.Config) *Extractor {
	return &Extractor{cfg: cfg}
}

// ExtractFromGroup runs the layered extraction over every document in the
// group and returns the merged result. Per-document failures become
// warnings on the result, never errors.
func (e *Extractor) ExtractFromGroup(group internal.AttachmentGroup) (internal.ExtractionResult, []string) {
	result := internal.ExtractionResult{}
	warnings := []string{}

	for _, doc := range group.Documents {
		items, method, err := e.extractDocument(doc.Attachment)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("attachment %s skipped: %v", doc.Attachment.Filename, err))
			continue
		}
		if doc.Brand != nil {
			for i := range items {
				if items[i].Brand == nil {
					items[i].Brand = doc.Brand
				}
			}
		}
		result.Items = append(result.Items, items...)
		if result.Method == "" && len(items) > 0 {
			result.Method = method
		}
		if result.ExternalRef == nil {
			result.ExternalRef = findExternalRef(documentText(doc.Attachment))
		}
	}

	result.Items = dedupeItems(result.Items)
	if len(result.Items) == 0 {
		result.NeedsVerification = true
	}
	return result, warnings
}

// ExtractFromBody applies the same pattern extraction to the message text,
// trying HTML tables before free-form lines.
func (e *Extractor) ExtractFromBody(msg internal.InboundMessage) internal.ExtractionResult {
	result := internal.ExtractionResult{Method: internal.MethodBody}

	if msg.BodyHTML != "" {
		result.Items = parseHTMLTables(msg.BodyHTML)
	}
	if len(result.Items) == 0 {
		result.Items = parseTextLines(util.TrimSignature(msg.Body))
	}
	result.Items = dedupeItems(result.Items)
	result.ExternalRef = findExternalRef(msg.Subject + "\n" + msg.Body)
	if len(result.Items) == 0 {
		result.NeedsVerification = true
	}
	return result
}

func (e *Extractor) extractDocument(att internal.Attachment) ([]internal.LineItem, internal.ExtractionMethod, error) {
	switch strings.ToLower(filepath.Ext(att.Filename)) {
	case ".xlsx", ".xls":
		items, err := parseXLSX(att.Content)
		return items, internal.MethodXLSX, err
	case ".pdf":
		items, err := parsePDF(att.Content)
		return items, internal.MethodPDF, err
	case ".docx":
		items, err := parseDOCX(att.Content)
		return items, internal.MethodDOCX, err
	case ".txt", ".csv":
		return parseTextLines(string(att.Content)), internal.MethodBody, nil
	default:
		return nil, "", fmt.Errorf("unsupported document type: %s", att.Filename)
	}
}

func parseXLSX(content []byte) ([]internal.LineItem, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := []internal.LineItem{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}

		descIdx, qtyIdx, refIdx, unitIdx := -1, -1, -1, -1
		for i, row := range rows {
			cells := normalizeCells(row)
			if len(cells) == 0 {
				continue
			}
			if i < 5 && descIdx < 0 {
				descIdx, qtyIdx, refIdx, unitIdx = inferColumns(cells)
				if descIdx >= 0 || qtyIdx >= 0 {
					continue
				}
			}
			if descIdx < 0 {
				descIdx, qtyIdx, refIdx, unitIdx = 0, 1, -1, 2
			}

			desc := pickCell(cells, descIdx, 0)
			if strings.TrimSpace(desc) == "" {
				continue
			}
			qtyCell := pickCell(cells, qtyIdx, -1)
			parsed := util.ParseQty(qtyCell)
			if parsed.Qty == nil {
				parsed = util.ParseQty(strings.Join(cells, " "))
			}

			item := newLineItem(desc, parsed)
			if ref := pickCell(cells, refIdx, -1); ref != "" {
				item.RefCode = util.StringPtr(ref)
			} else if code := firstCodeToken(desc); code != "" {
				item.RefCode = util.StringPtr(code)
			}
			if unit := pickCell(cells, unitIdx, -1); unit != "" && item.Unit == nil {
				item.Unit = util.StringPtr(unit)
			}
			out = append(out, item)
		}
	}
	return out, nil
}

func parsePDF(content []byte) ([]internal.LineItem, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}
	return parseTextLines(text.String()), nil
}

// parseDOCX pulls paragraph text out of word/document.xml. Runs inside one
// paragraph concatenate; paragraphs become lines.
func parseDOCX(content []byte) ([]internal.LineItem, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			docXML, err = io.ReadAll(rc)
			_ = rc.Close()
			if err != nil {
				return nil, err
			}
			break
		}
	}
	if docXML == nil {
		return nil, fmt.Errorf("word/document.xml not found")
	}

	var lines []string
	var current strings.Builder
	decoder := xml.NewDecoder(bytes.NewReader(docXML))
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
			}
			if t.Name.Local == "p" {
				if line := current.String(); strings.TrimSpace(line) != "" {
					lines = append(lines, line)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	if line := current.String(); strings.TrimSpace(line) != "" {
		lines = append(lines, line)
	}

	return parseTextLines(strings.Join(lines, "\n")), nil
}

func parseHTMLTables(html string) []internal.LineItem {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	out := []internal.LineItem{}
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return
		}

		headers := []string{}
		rows.First().Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			headers = append(headers, util.Normalize(strings.TrimSpace(cell.Text())))
		})
		descIdx, qtyIdx, refIdx, unitIdx := inferColumns(headers)

		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, util.NormalizeSpaces(cell.Text()))
			})
			if len(cells) == 0 {
				return
			}

			desc := pickCell(cells, descIdx, 0)
			if strings.TrimSpace(desc) == "" {
				return
			}
			qtyCell := pickCell(cells, qtyIdx, -1)
			if qtyCell == "" {
				for _, c := range cells {
					if strings.IndexFunc(c, isDigit) >= 0 {
						qtyCell = c
						break
					}
				}
			}
			parsed := util.ParseQty(qtyCell)

			item := newLineItem(desc, parsed)
			if ref := pickCell(cells, refIdx, -1); ref != "" {
				item.RefCode = util.StringPtr(ref)
			}
			if unit := pickCell(cells, unitIdx, -1); unit != "" && item.Unit == nil {
				item.Unit = util.StringPtr(unit)
			}
			out = append(out, item)
		})
	})
	return out
}

// parseTextLines is the line-anchored layer shared by PDF, DOCX, plain text
// attachments and the body fallback. Wrapped descriptions are folded into
// the previous item.
func parseTextLines(text string) []internal.LineItem {
	out := []internal.LineItem{}
	for _, rawLine := range splitLines(text) {
		line := util.NormalizeSpaces(rawLine)
		if line == "" || isLikelyNoise(line) {
			continue
		}

		trimmed := listMarker.ReplaceAllString(line, "")

		if m := qtyFirstLine.FindStringSubmatch(trimmed); m != nil {
			parsed := util.ParseQty(m[1] + " pcs")
			item := newLineItem(m[2], util.ParsedQty{Qty: parsed.Qty, QtyRaw: parsed.QtyRaw})
			if code := firstCodeToken(m[2]); code != "" {
				item.RefCode = util.StringPtr(code)
			}
			out = append(out, item)
			continue
		}

		parsed := util.ParseQty(trimmed)
		if parsed.Qty == nil {
			// Continuation of a wrapped description, or noise.
			if len(out) > 0 && looksLikeContinuation(trimmed) {
				out[len(out)-1].Description = util.NormalizeSpaces(out[len(out)-1].Description + " " + trimmed)
			}
			continue
		}

		desc := trimmed
		if parsed.QtyRaw != nil {
			if idx := strings.LastIndex(desc, *parsed.QtyRaw); idx >= 0 {
				desc = desc[:idx] + " " + desc[idx+len(*parsed.QtyRaw):]
			}
		}
		desc = util.NormalizeSpaces(desc)
		if len([]rune(desc)) < 3 || strings.IndexFunc(desc, isLetter) < 0 {
			continue
		}

		item := newLineItem(desc, parsed)
		if code := firstCodeToken(desc); code != "" {
			item.RefCode = util.StringPtr(code)
		}
		out = append(out, item)
	}
	return out
}

func newLineItem(desc string, parsed util.ParsedQty) internal.LineItem {
	item := internal.LineItem{Description: util.NormalizeSpaces(desc), Unit: parsed.Unit}
	if parsed.Qty != nil && *parsed.Qty > 0 {
		item.Qty = *parsed.Qty
	} else {
		item.Qty = 1
		item.IsEstimated = true
	}
	return item
}

func findExternalRef(text string) *string {
	for _, re := range externalRefPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			ref := strings.TrimSpace(m[len(m)-1])
			if validExternalRef(ref) {
				return util.StringPtr(ref)
			}
		}
	}
	return nil
}

// validExternalRef keeps only captures that can identify a request: at
// least three characters, at least one digit.
func validExternalRef(ref string) bool {
	return len(ref) >= 3 && strings.IndexFunc(ref, isDigit) >= 0
}

// documentText returns a bounded text preview of an attachment, used for
// external-reference detection and brand probing.
func documentText(att internal.Attachment) string {
	switch strings.ToLower(filepath.Ext(att.Filename)) {
	case ".txt", ".csv":
		return util.Window(string(att.Content), 4000)
	case ".pdf":
		r, err := pdf.NewReader(bytes.NewReader(att.Content), int64(len(att.Content)))
		if err != nil || r.NumPage() == 0 {
			return ""
		}
		p := r.Page(1)
		if p.V.IsNull() {
			return ""
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return ""
		}
		return util.Window(text, 4000)
	case ".xlsx", ".xls":
		f, err := excelize.OpenReader(bytes.NewReader(att.Content))
		if err != nil {
			return ""
		}
		defer f.Close()
		var b strings.Builder
		for _, sheet := range f.GetSheetList() {
			rows, err := f.GetRows(sheet)
			if err != nil {
				continue
			}
			for i, row := range rows {
				if i >= 20 {
					break
				}
				b.WriteString(strings.Join(row, " "))
				b.WriteString("\n")
			}
			break
		}
		return b.String()
	default:
		return ""
	}
}

func textPreview(att internal.Attachment) string {
	return documentText(att)
}

func looksLikeContinuation(line string) bool {
	r := []rune(line)
	if len(r) == 0 || len(r) > 60 {
		return false
	}
	first := r[0]
	return first >= 'a' && first <= 'z'
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimRight(p, " \t"))
	}
	return out
}

func isLikelyNoise(line string) bool {
	for _, re := range ignorePatterns {
		if re.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

func dedupeItems(items []internal.LineItem) []internal.LineItem {
	seen := map[string]struct{}{}
	out := make([]internal.LineItem, 0, len(items))
	for _, item := range items {
		key := fmt.Sprintf("%s|%g", util.NormalizeSpaces(util.Normalize(item.Description)), item.Qty)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func firstCodeToken(text string) string {
	for _, token := range strings.Fields(text) {
		token = strings.Trim(token, ".,;:()")
		if util.LooksLikeCode(token) {
			return util.NormalizeCode(token)
		}
	}
	return ""
}

func inferColumns(headers []string) (descIdx, qtyIdx, refIdx, unitIdx int) {
	norm := make([]string, 0, len(headers))
	for _, h := range headers {
		norm = append(norm, util.Normalize(h))
	}
	descIdx = findHeaderIndex(norm, []string{"designation", "description", "libelle", "article", "produit", "item", "name"})
	qtyIdx = findHeaderIndex(norm, []string{"qte", "qty", "quantite", "quantity", "nombre", "nb"})
	refIdx = findHeaderIndex(norm, []string{"reference", "ref", "code", "part", "sku"})
	unitIdx = findHeaderIndex(norm, []string{"unite", "unit", "u.", "ud"})
	return
}

func findHeaderIndex(headers []string, probes []string) int {
	for i, h := range headers {
		for _, probe := range probes {
			if strings.Contains(h, probe) {
				return i
			}
		}
	}
	return -1
}

func pickCell(cells []string, idx, fallback int) string {
	if idx >= 0 && idx < len(cells) {
		return strings.TrimSpace(cells[idx])
	}
	if fallback >= 0 && fallback < len(cells) {
		return strings.TrimSpace(cells[fallback])
	}
	return ""
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		out = append(out, util.NormalizeSpaces(c))
	}
	return out
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

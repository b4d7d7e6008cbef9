package pipeline

import "regexp"

// Rules holds every keyword and pattern table the message classifier scores
// against. It is built once at startup and passed around by value so tests
// can swap individual tables without touching package state.
type Rules struct {
	// Strict purchase-order patterns. Any hit short-circuits the whole
	// classification, no scoring happens.
	PurchaseOrder []*regexp.Regexp

	// Unambiguous request phrasing. Checked before any offer heuristic so an
	// explicit request always wins.
	ExplicitRequest []*regexp.Regexp

	RequestKeywords []string
	OfferKeywords   []string

	// Structural offer cues used by the hard rule: a quote number plus a
	// validity clause plus totals or bank details is an offer no matter what
	// the scores say.
	QuoteNumber []*regexp.Regexp
	Validity    []*regexp.Regexp
	Totals      []*regexp.Regexp
	BankDetails []*regexp.Regexp

	// Attachment filename cues.
	RequestFilenames []string
	OfferFilenames   []string

	// Internal reference carried in subjects of already-processed requests.
	InternalRef *regexp.Regexp

	// External request numbers quoted by clients ("N/Réf", "RFQ n° ...").
	ExternalRef []*regexp.Regexp

	ReplyMarker *regexp.Regexp
}

func DefaultRules() Rules {
	return Rules{
		PurchaseOrder: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bpurchase\s+order\b`),
			regexp.MustCompile(`(?i)\bbon\s+de\s+commande\b`),
			regexp.MustCompile(`(?i)\bnotre\s+commande\b`),
			regexp.MustCompile(`(?i)\border\s+confirmation\b`),
			regexp.MustCompile(`(?i)\bconfirmation\s+de\s+commande\b`),
			regexp.MustCompile(`(?i)\bpo\s*#?\s*\d{3,}`),
			regexp.MustCompile(`(?i)^po[\s:#-]`),
		},
		ExplicitRequest: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\brfq\b`),
			regexp.MustCompile(`(?i)\brequest\s+for\s+quot(e|ation)\b`),
			regexp.MustCompile(`(?i)\bdemande\s+de\s+prix\b`),
			regexp.MustCompile(`(?i)\bdemande\s+de\s+cotation\b`),
			regexp.MustCompile(`(?i)\bdemande\s+de\s+devis\b`),
			regexp.MustCompile(`(?i)\bplease\s+quote\b`),
			regexp.MustCompile(`(?i)\bmerci\s+de\s+(nous\s+)?(chiffrer|coter)\b`),
			regexp.MustCompile(`(?i)\bveuillez\s+(nous\s+)?(chiffrer|coter)\b`),
			regexp.MustCompile(`(?i)\bappel\s+d'?offres?\b`),
		},
		RequestKeywords: []string{
			"demande de prix", "consultation", "prix et delai", "meilleur prix",
			"meilleur delai", "votre offre", "offre de prix", "chiffrage",
			"devis", "cotation", "disponibilite", "availability", "best price",
			"lead time", "delai de livraison", "quotation needed", "besoin de",
			"pouvez-vous nous", "could you quote", "prix pour",
		},
		OfferKeywords: []string{
			"notre offre", "our quotation", "our offer", "ci-joint notre",
			"proforma", "pro forma", "facture", "invoice", "net price",
			"prix net", "remise", "discount", "conditions de paiement",
			"payment terms", "port et emballage", "delivery terms", "incoterm",
			"net 30", "a reception de votre commande",
		},
		QuoteNumber: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(quotation|quote|offre|offer|devis|proforma)\s*(n[o°]?\.?|#|no\.?|num(ero)?\.?)?\s*:?\s*[A-Z]{0,4}[-/]?\d{3,}`),
			regexp.MustCompile(`(?i)\bQ-\d{3,}\b`),
			regexp.MustCompile(`(?i)\bn[o°]\s*(de\s+)?(devis|offre)\s*:?\s*\S+`),
		},
		Validity: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bvalid(ity|e)?\s+(until|for|jusqu)`),
			regexp.MustCompile(`(?i)\bvalidit[ée]\b`),
			regexp.MustCompile(`(?i)\bvalable\s+(jusqu|pendant|\d+)`),
			regexp.MustCompile(`(?i)\boffer\s+valid\b`),
			regexp.MustCompile(`(?i)\bvalid\s+\d+\s+(days?|jours?)\b`),
		},
		Totals: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(total|montant)\s*(ht|ttc|h\.t\.)?\s*:?\s*[\d\s.,]+\s*(eur|usd|€|\$|chf|gbp)`),
			regexp.MustCompile(`(?i)\bgrand\s+total\b`),
			regexp.MustCompile(`(?i)\btotal\s+amount\b`),
			regexp.MustCompile(`(?i)\bmontant\s+total\b`),
		},
		BankDetails: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\biban\b`),
			regexp.MustCompile(`(?i)\bswift\b`),
			regexp.MustCompile(`(?i)\bbic\b\s*:`),
			regexp.MustCompile(`(?i)\bcoordonn[ée]es\s+bancaires\b`),
			regexp.MustCompile(`(?i)\bbank\s+(details|account)\b`),
			regexp.MustCompile(`(?i)\brib\b\s*:?`),
		},
		RequestFilenames: []string{"demande", "rfq", "consultation", "besoin", "liste", "request"},
		OfferFilenames:   []string{"offre", "devis", "quotation", "quote", "proforma", "facture", "invoice"},
		InternalRef:      regexp.MustCompile(`(?i)\bDDP-\d{8}-\d{1,5}\b`),
		// The capture demands a digit: "RFQ for bearings" must never yield
		// "for" as a reference.
		ExternalRef: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bn[/.]?\s*r[ée]f\.?\s*:?\s*([A-Z0-9/_-]{0,16}\d[A-Z0-9/_-]{0,16})`),
			regexp.MustCompile(`(?i)\bvotre\s+r[ée]f[ée]rence\s*:?\s*([A-Z0-9/_-]{0,16}\d[A-Z0-9/_-]{0,16})`),
			regexp.MustCompile(`(?i)\brfq\s*(n[o°]?\.?|#)?\s*:?\s*([A-Z0-9/_-]{0,16}\d[A-Z0-9/_-]{0,16})`),
			regexp.MustCompile(`(?i)\bour\s+ref\.?\s*:?\s*([A-Z0-9/_-]{0,16}\d[A-Z0-9/_-]{0,16})`),
		},
		ReplyMarker: regexp.MustCompile(`(?i)^\s*(re|fw|fwd|tr)\s*:`),
	}
}

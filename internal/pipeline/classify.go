package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"rfqdesk/internal"
	"rfqdesk/internal/config"
	"rfqdesk/internal/util"
)

// Classifier decides what an inbound message is. It is a pure function over
// the message plus two read-only lookups; it never returns an error.
// Anything unclear resolves to a request flagged for review.
type Classifier struct {
	cfg       config.Config
	rules     Rules
	ledger    internal.RequestLedger
	suppliers internal.SupplierDirectory
}

func NewClassifier(cfg config.Config, rules Rules, ledger internal.RequestLedger, suppliers internal.SupplierDirectory) *Classifier {
	return &Classifier{cfg: cfg, rules: rules, ledger: ledger, suppliers: suppliers}
}

func (c *Classifier) Classify(msg internal.InboundMessage) internal.ClassificationVerdict {
	subject := util.Normalize(msg.Subject)
	body := util.Window(util.TrimSignature(util.Normalize(msg.Body)), c.cfg.BodyWindowChars)
	scope := subject + "\n" + body

	// Strict purchase-order exclusion, no scoring downstream.
	for _, re := range c.rules.PurchaseOrder {
		if re.MatchString(subject) || re.MatchString(body) {
			return internal.ClassificationVerdict{
				Verdict: internal.VerdictPurchaseOrder,
				Reasons: []string{fmt.Sprintf("purchase-order pattern %q", re.String())},
			}
		}
	}

	// Explicit request phrasing wins before any offer heuristic runs, but a
	// thread reply re-raising a processed request is still a reminder.
	for _, re := range c.rules.ExplicitRequest {
		if re.MatchString(subject) || re.MatchString(body) {
			verdict := internal.ClassificationVerdict{
				Verdict:        internal.VerdictRequest,
				RequestScore:   c.cfg.RequestScoreMin + c.cfg.RequestScoreMargin,
				Reasons:        []string{fmt.Sprintf("explicit request phrase %q", re.String())},
				TreatAsRequest: true,
			}
			if rem, ok := c.detectReminder(msg); ok {
				return rem
			}
			return verdict
		}
	}

	requestScore, offerScore := 0, 0
	reasons := []string{}

	score := func(target *int, pts int, reason string) {
		*target += pts
		reasons = append(reasons, fmt.Sprintf("%s (+%d)", reason, pts))
	}

	for _, kw := range c.rules.RequestKeywords {
		if strings.Contains(subject, kw) {
			score(&requestScore, 2, "request cue in subject: "+kw)
		} else if strings.Contains(body, kw) {
			score(&requestScore, 1, "request cue in body: "+kw)
		}
	}
	for _, kw := range c.rules.OfferKeywords {
		if strings.Contains(subject, kw) {
			score(&offerScore, 2, "offer cue in subject: "+kw)
		} else if strings.Contains(body, kw) {
			score(&offerScore, 1, "offer cue in body: "+kw)
		}
	}

	hasQuoteNumber := matchAny(c.rules.QuoteNumber, scope)
	hasValidity := matchAny(c.rules.Validity, scope)
	hasTotals := matchAny(c.rules.Totals, scope)
	hasBank := matchAny(c.rules.BankDetails, scope)

	if hasQuoteNumber {
		score(&offerScore, 2, "quote number present")
	}
	if hasValidity {
		score(&offerScore, 2, "validity clause present")
	}
	if hasTotals {
		score(&offerScore, 1, "totals present")
	}
	if hasBank {
		score(&offerScore, 2, "bank details present")
	}

	for _, att := range msg.Attachments {
		name := util.Normalize(att.Filename)
		if containsAny(name, c.rules.RequestFilenames) {
			score(&requestScore, 2, "request-like attachment name: "+att.Filename)
			break
		}
	}
	for _, att := range msg.Attachments {
		name := util.Normalize(att.Filename)
		if containsAny(name, c.rules.OfferFilenames) {
			score(&offerScore, 2, "offer-like attachment name: "+att.Filename)
			break
		}
	}

	if c.suppliers != nil && c.suppliers.IsKnownSupplier(senderEmail(msg.Sender)) {
		score(&offerScore, 2, "sender is a known supplier")
	}

	// Hard rule: quote number + validity + (totals or bank details) is a
	// supplier offer regardless of the score margin.
	if hasQuoteNumber && hasValidity && (hasTotals || hasBank) {
		return internal.ClassificationVerdict{
			Verdict:      internal.VerdictSupplierOffer,
			RequestScore: requestScore,
			OfferScore:   offerScore,
			Reasons:      append(reasons, "hard rule: quote number + validity + totals/bank"),
		}
	}

	if rem, ok := c.detectReminder(msg); ok {
		return rem
	}

	switch {
	case offerScore >= requestScore+c.cfg.OfferScoreMargin && offerScore >= c.cfg.OfferScoreMin:
		return internal.ClassificationVerdict{
			Verdict:      internal.VerdictSupplierOffer,
			RequestScore: requestScore,
			OfferScore:   offerScore,
			Reasons:      append(reasons, "offer score dominates"),
		}
	case requestScore >= offerScore+c.cfg.RequestScoreMargin && requestScore >= c.cfg.RequestScoreMin:
		return internal.ClassificationVerdict{
			Verdict:        internal.VerdictRequest,
			RequestScore:   requestScore,
			OfferScore:     offerScore,
			Reasons:        append(reasons, "request score dominates"),
			TreatAsRequest: true,
		}
	case abs(offerScore-requestScore) <= c.cfg.AmbiguousGap && (offerScore >= c.cfg.RequestScoreMin || requestScore >= c.cfg.RequestScoreMin):
		return internal.ClassificationVerdict{
			Verdict:        internal.VerdictAmbiguous,
			RequestScore:   requestScore,
			OfferScore:     offerScore,
			Reasons:        append(reasons, "near-tie, treated as request pending review"),
			TreatAsRequest: true,
			NeedsReview:    true,
		}
	default:
		// Weak signals either way: never silently drop a possible request.
		return internal.ClassificationVerdict{
			Verdict:        internal.VerdictRequest,
			RequestScore:   requestScore,
			OfferScore:     offerScore,
			Reasons:        append(reasons, "weak signals, defaulting to request"),
			TreatAsRequest: true,
			NeedsReview:    true,
		}
	}
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func containsAny(text string, probes []string) bool {
	for _, probe := range probes {
		if strings.Contains(text, probe) {
			return true
		}
	}
	return false
}

func senderEmail(sender string) string {
	if start := strings.LastIndex(sender, "<"); start >= 0 {
		if end := strings.LastIndex(sender, ">"); end > start {
			return strings.ToLower(strings.TrimSpace(sender[start+1 : end]))
		}
	}
	return strings.ToLower(strings.TrimSpace(sender))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

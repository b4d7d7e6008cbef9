package pipeline

import (
	"fmt"

	"rfqdesk/internal"
	"rfqdesk/internal/config"
)

// Escalation modes.
const (
	EscalateOff      = "off"
	EscalateAlways   = "always"
	EscalateFallback = "fallback"
	EscalateAuto     = "auto"
)

// EscalationDecision records both candidate item counts and the outcome so
// every escalation is auditable.
type EscalationDecision struct {
	Mode          string
	Escalated     bool
	CheapCount    int
	FallbackCount int
	Kept          internal.ExtractionMethod
	Reason        string
}

func (d EscalationDecision) String() string {
	return fmt.Sprintf("mode=%s escalated=%t cheap=%d fallback=%d kept=%s reason=%s",
		d.Mode, d.Escalated, d.CheapCount, d.FallbackCount, d.Kept, d.Reason)
}

// FallbackSelector decides when the cheap extraction result is unreliable
// enough to pay for the higher-cost method, and reconciles the two outputs.
type FallbackSelector struct {
	cfg       config.Config
	extractor internal.FallbackExtractor
}

func NewFallbackSelector(cfg config.Config, extractor internal.FallbackExtractor) *FallbackSelector {
	return &FallbackSelector{cfg: cfg, extractor: extractor}
}

// ShouldEscalate implements the mode matrix: off never, always every time,
// fallback only on zero items, auto on low count, review flag, or a
// majority of suspicious quantities.
func (s *FallbackSelector) ShouldEscalate(itemCount int, needsReview bool, items []internal.LineItem) bool {
	switch s.cfg.EscalationMode {
	case EscalateOff:
		return false
	case EscalateAlways:
		return true
	case EscalateFallback:
		return itemCount == 0
	case EscalateAuto:
		if itemCount < s.cfg.EscalationMinItems {
			return true
		}
		if needsReview {
			return true
		}
		return suspiciousQuantityShare(items) > 0.5
	default:
		return false
	}
}

// Resolve runs the escalation when warranted and keeps whichever result is
// better: in always mode any non-empty fallback output wins, otherwise it
// must strictly beat the cheap item count.
func (s *FallbackSelector) Resolve(cheap internal.ExtractionResult, attachments []internal.Attachment) (internal.ExtractionResult, EscalationDecision, []string) {
	decision := EscalationDecision{
		Mode:       s.cfg.EscalationMode,
		CheapCount: len(cheap.Items),
		Kept:       cheap.Method,
	}

	if s.extractor == nil || !s.ShouldEscalate(len(cheap.Items), cheap.NeedsVerification, cheap.Items) {
		decision.Reason = "no escalation"
		return cheap, decision, nil
	}
	decision.Escalated = true

	escalated, confidence, warnings, err := s.extractor.ExtractViaFallback(attachments)
	if err != nil {
		decision.Reason = fmt.Sprintf("fallback failed: %v", err)
		return cheap, decision, append(warnings, decision.Reason)
	}
	decision.FallbackCount = len(escalated.Items)

	better := len(escalated.Items) > len(cheap.Items)
	if s.cfg.EscalationMode == EscalateAlways {
		better = len(escalated.Items) > 0
	}
	if !better {
		decision.Reason = "fallback output not better, cheap result kept"
		return cheap, decision, warnings
	}

	escalated.Method = internal.MethodFallback
	if confidence < 0.5 {
		escalated.NeedsVerification = true
	}
	if escalated.ExternalRef == nil {
		escalated.ExternalRef = cheap.ExternalRef
	}
	decision.Kept = internal.MethodFallback
	decision.Reason = fmt.Sprintf("fallback won with %d items (confidence %.2f)", len(escalated.Items), confidence)
	return escalated, decision, warnings
}

// suspiciousQuantityShare flags quantities that are multiples of ten between
// 10 and 100, the signature of row or line numbers parsed as quantities.
func suspiciousQuantityShare(items []internal.LineItem) float64 {
	if len(items) == 0 {
		return 0
	}
	suspicious := 0
	for _, item := range items {
		q := item.Qty
		if q >= 10 && q <= 100 && q == float64(int(q)) && int(q)%10 == 0 {
			suspicious++
		}
	}
	return float64(suspicious) / float64(len(items))
}

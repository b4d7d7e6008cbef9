package pipeline

import (
	"errors"
	"testing"

	"rfqdesk/internal"
	"rfqdesk/internal/config"
)

type fakeFallback struct {
	result     internal.ExtractionResult
	confidence float64
	warnings   []string
	err        error
	calls      int
}

func (f *fakeFallback) ExtractViaFallback(attachments []internal.Attachment) (internal.ExtractionResult, float64, []string, error) {
	f.calls++
	return f.result, f.confidence, f.warnings, f.err
}

func mkItems(n int, qty float64) []internal.LineItem {
	out := make([]internal.LineItem, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, internal.LineItem{Description: "item", Qty: qty})
	}
	return out
}

func testSelector(t *testing.T, mode string, fb internal.FallbackExtractor) *FallbackSelector {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg.EscalationMode = mode
	return NewFallbackSelector(cfg, fb)
}

func TestShouldEscalateModes(t *testing.T) {
	cases := []struct {
		name        string
		mode        string
		count       int
		needsReview bool
		items       []internal.LineItem
		want        bool
	}{
		{"off never", EscalateOff, 0, true, nil, false},
		{"always", EscalateAlways, 10, false, mkItems(10, 1), true},
		{"fallback on empty", EscalateFallback, 0, false, nil, true},
		{"fallback keeps nonempty", EscalateFallback, 3, true, mkItems(3, 1), false},
		{"auto low count", EscalateAuto, 1, false, mkItems(1, 1), true},
		{"auto review flag", EscalateAuto, 4, true, mkItems(4, 1), true},
		{"auto suspicious quantities", EscalateAuto, 3, false, mkItems(3, 10), true},
		{"auto healthy result", EscalateAuto, 3, false, mkItems(3, 7), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := testSelector(t, tc.mode, &fakeFallback{})
			if got := s.ShouldEscalate(tc.count, tc.needsReview, tc.items); got != tc.want {
				t.Fatalf("got=%t want=%t", got, tc.want)
			}
		})
	}
}

func TestResolveEscalatedResultWins(t *testing.T) {
	fb := &fakeFallback{
		result:     internal.ExtractionResult{Items: mkItems(5, 2)},
		confidence: 0.9,
	}
	s := testSelector(t, EscalateAuto, fb)

	cheap := internal.ExtractionResult{Items: mkItems(1, 1), Method: internal.MethodPDF}
	result, decision, _ := s.Resolve(cheap, nil)
	if !decision.Escalated {
		t.Fatalf("decision=%+v", decision)
	}
	if len(result.Items) != 5 || result.Method != internal.MethodFallback {
		t.Fatalf("result=%+v", result)
	}
	if decision.Kept != internal.MethodFallback {
		t.Fatalf("kept=%s", decision.Kept)
	}
}

func TestResolveKeepsCheapWhenFallbackIsWorse(t *testing.T) {
	fb := &fakeFallback{result: internal.ExtractionResult{Items: mkItems(1, 1)}, confidence: 0.8}
	s := testSelector(t, EscalateAuto, fb)

	cheap := internal.ExtractionResult{Items: mkItems(1, 1), NeedsVerification: true, Method: internal.MethodXLSX}
	result, decision, _ := s.Resolve(cheap, nil)
	if !decision.Escalated {
		t.Fatal("expected escalation attempt")
	}
	if result.Method != internal.MethodXLSX || len(result.Items) != 1 {
		t.Fatalf("result=%+v", result)
	}
	if decision.Kept != internal.MethodXLSX {
		t.Fatalf("kept=%s", decision.Kept)
	}
}

func TestResolveFallbackErrorKeepsCheap(t *testing.T) {
	fb := &fakeFallback{err: errors.New("service unavailable")}
	s := testSelector(t, EscalateAlways, fb)

	cheap := internal.ExtractionResult{Items: mkItems(2, 3), Method: internal.MethodBody}
	result, decision, warnings := s.Resolve(cheap, nil)
	if len(result.Items) != 2 || result.Method != internal.MethodBody {
		t.Fatalf("result=%+v", result)
	}
	if decision.Kept == internal.MethodFallback {
		t.Fatal("failed fallback must not win")
	}
	if len(warnings) == 0 {
		t.Fatal("expected a warning for the failed fallback")
	}
}

func TestResolveOffModeNeverCalls(t *testing.T) {
	fb := &fakeFallback{result: internal.ExtractionResult{Items: mkItems(9, 1)}}
	s := testSelector(t, EscalateOff, fb)

	_, decision, _ := s.Resolve(internal.ExtractionResult{}, nil)
	if decision.Escalated || fb.calls != 0 {
		t.Fatalf("decision=%+v calls=%d", decision, fb.calls)
	}
}

func TestResolveLowConfidenceFlagsVerification(t *testing.T) {
	fb := &fakeFallback{result: internal.ExtractionResult{Items: mkItems(4, 2)}, confidence: 0.3}
	s := testSelector(t, EscalateAuto, fb)

	cheap := internal.ExtractionResult{Items: mkItems(1, 1), Method: internal.MethodPDF}
	result, _, _ := s.Resolve(cheap, nil)
	if !result.NeedsVerification {
		t.Fatal("low confidence must flag verification")
	}
}

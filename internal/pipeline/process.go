package pipeline

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"rfqdesk/internal"
	"rfqdesk/internal/config"
	"rfqdesk/internal/storage"
	"rfqdesk/internal/util"
)

// Deps are the external capabilities the pipeline consumes. Any of them may
// be nil; the pipeline degrades rather than fails.
type Deps struct {
	Ledger       internal.RequestLedger
	Suppliers    internal.SupplierDirectory
	Brands       internal.BrandDetector
	Fallback     internal.FallbackExtractor
	NewRequestID func() string
}

// RunOutput is everything one message produced: the verdict, zero or more
// structured price requests, escalation decisions and accumulated warnings.
type RunOutput struct {
	Verdict   internal.ClassificationVerdict
	Requests  []internal.PriceRequest
	Decisions []EscalationDecision
	Warnings  []string
}

// Runner sequences classification, attachment grouping, extraction and
// escalation for a single message. It holds no mutable state, so one Runner
// can serve many messages concurrently over a read-only index snapshot.
type Runner struct {
	cfg         config.Config
	classifier  *Classifier
	attachments *AttachmentClassifier
	extractor   *Extractor
	selector    *FallbackSelector
	deps        Deps
}

func NewRunner(cfg config.Config, rules Rules, deps Deps) *Runner {
	if deps.NewRequestID == nil {
		deps.NewRequestID = defaultRequestID()
	}
	return &Runner{
		cfg:         cfg,
		classifier:  NewClassifier(cfg, rules, deps.Ledger, deps.Suppliers),
		attachments: NewAttachmentClassifier(cfg, deps.Brands),
		extractor:   NewExtractor(cfg),
		selector:    NewFallbackSelector(cfg, deps.Fallback),
		deps:        deps,
	}
}

func (r *Runner) Classify(msg internal.InboundMessage) internal.ClassificationVerdict {
	return r.classifier.Classify(msg)
}

func (r *Runner) ClassifyAttachments(attachments []internal.Attachment) []internal.ClassifiedAttachment {
	return r.attachments.Classify(attachments)
}

// Run executes the full pipeline for one message. Excluded verdicts pay no
// extraction cost; everything else yields one price request per attachment
// group, or one body-derived request when no request document exists.
func (r *Runner) Run(msg internal.InboundMessage) RunOutput {
	out := RunOutput{}
	out.Verdict = r.classifier.Classify(msg)

	switch out.Verdict.Verdict {
	case internal.VerdictPurchaseOrder, internal.VerdictSupplierOffer, internal.VerdictReminder:
		out.Warnings = append(out.Warnings, fmt.Sprintf("message excluded as %s: %s",
			out.Verdict.Verdict, strings.Join(out.Verdict.Reasons, "; ")))
		return out
	}

	classified := r.attachments.Classify(msg.Attachments)
	groups := GroupAttachments(classified)

	if len(groups) == 0 {
		request, decision, warnings := r.buildBodyRequest(msg, out.Verdict)
		out.Requests = append(out.Requests, request)
		out.Decisions = append(out.Decisions, decision)
		out.Warnings = append(out.Warnings, warnings...)
		return out
	}

	for _, group := range groups {
		request, decision, warnings := r.buildGroupRequest(msg, group, out.Verdict)
		out.Requests = append(out.Requests, request)
		out.Decisions = append(out.Decisions, decision)
		out.Warnings = append(out.Warnings, warnings...)
	}
	return out
}

func (r *Runner) buildGroupRequest(msg internal.InboundMessage, group internal.AttachmentGroup, verdict internal.ClassificationVerdict) (internal.PriceRequest, EscalationDecision, []string) {
	cheap, warnings := r.extractor.ExtractFromGroup(group)

	// A request document that parses to nothing still leaves the body as a
	// source before we pay for the fallback.
	if len(cheap.Items) == 0 {
		if body := r.extractor.ExtractFromBody(msg); len(body.Items) > 0 {
			warnings = append(warnings, "attachments yielded no items, body extraction used")
			cheap = body
		}
	}

	attachments := make([]internal.Attachment, 0, len(group.Documents))
	for _, doc := range group.Documents {
		attachments = append(attachments, doc.Attachment)
	}
	result, decision, fbWarnings := r.selector.Resolve(cheap, attachments)
	warnings = append(warnings, fbWarnings...)

	request := r.assembleRequest(msg, result, verdict)
	request.Brand = group.Brand
	for _, sheet := range group.TechnicalSheets {
		request.TechnicalSheets = append(request.TechnicalSheets, sheet.Attachment.Filename)
	}
	request.Warnings = warnings
	return request, decision, warnings
}

func (r *Runner) buildBodyRequest(msg internal.InboundMessage, verdict internal.ClassificationVerdict) (internal.PriceRequest, EscalationDecision, []string) {
	cheap := r.extractor.ExtractFromBody(msg)
	result, decision, warnings := r.selector.Resolve(cheap, msg.Attachments)
	request := r.assembleRequest(msg, result, verdict)
	request.Warnings = warnings
	return request, decision, warnings
}

func (r *Runner) assembleRequest(msg internal.InboundMessage, result internal.ExtractionResult, verdict internal.ClassificationVerdict) internal.PriceRequest {
	request := internal.PriceRequest{
		InternalID:  r.deps.NewRequestID(),
		ExternalRef: result.ExternalRef,
		Items:       result.Items,
		Method:      result.Method,
		NeedsReview: verdict.NeedsReview || result.NeedsVerification,
	}

	// A price request without a single line is useless downstream; keep one
	// placeholder the reviewer can fill in.
	if len(request.Items) == 0 {
		desc := util.NormalizeSpaces(msg.Subject)
		if desc == "" {
			desc = "demande a completer"
		}
		request.Items = []internal.LineItem{{
			Description:       desc,
			Qty:               1,
			IsEstimated:       true,
			NeedsManualReview: true,
			Notes:             util.StringPtr("aucune ligne extraite, saisie manuelle requise"),
		}}
		request.NeedsReview = true
	}
	// Every record carries an extraction method, even a synthesized one.
	if request.Method == "" {
		request.Method = internal.MethodBody
	}
	return request
}

// defaultRequestID must stay safe under concurrent Run calls.
func defaultRequestID() func() string {
	var seq atomic.Int64
	return func() string {
		return fmt.Sprintf("DDP-%s-%03d", time.Now().UTC().Format("20060102"), seq.Add(1))
	}
}

// ProcessingService is the storage-backed driver: it loads fetched raw
// messages, runs the pipeline and persists the outcome.
type ProcessingService struct {
	db     *storage.DB
	cfg    config.Config
	runner *Runner
}

func NewProcessingService(db *storage.DB, cfg config.Config, deps Deps) *ProcessingService {
	if deps.Ledger == nil {
		deps.Ledger = db
	}
	if deps.NewRequestID == nil {
		deps.NewRequestID = func() string {
			id, err := db.NextRequestID(time.Now().UTC())
			if err != nil {
				return fmt.Sprintf("DDP-%s-%d", time.Now().UTC().Format("20060102"), time.Now().UnixNano()%100000)
			}
			return id
		}
	}
	return &ProcessingService{db: db, cfg: cfg, runner: NewRunner(cfg, DefaultRules(), deps)}
}

type ProcessResult struct {
	MessageID int
	Requests  int
	Items     int
}

func (s *ProcessingService) ProcessByProviderMessageID(provider, messageID string) (ProcessResult, error) {
	row, err := s.db.MustMessageByProviderMessageID(provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessMessage(row)
}

// ProcessPending walks fetched messages in order. A failing message is
// marked and skipped; it never blocks the rest of the batch.
func (s *ProcessingService) ProcessPending(limit int, provider string) (int, int, error) {
	pending, err := s.db.ListMessagesByStatus("fetched", limit)
	if err != nil {
		return 0, 0, err
	}
	processedMessages := 0
	processedRequests := 0
	for _, row := range pending {
		if provider != "" && row.Provider != provider {
			continue
		}
		res, err := s.ProcessMessage(row)
		if err != nil {
			fmt.Printf("process message id=%d failed: %v\n", row.ID, err)
			_ = s.db.UpdateMessageStatus(row.ID, "failed")
			continue
		}
		processedMessages++
		processedRequests += res.Requests
	}
	return processedMessages, processedRequests, nil
}

func (s *ProcessingService) ProcessMessage(row internal.MessageRow) (ProcessResult, error) {
	start := time.Now()
	raw, err := os.ReadFile(row.RawRef)
	if err != nil {
		return ProcessResult{}, err
	}

	msg, err := ParseRawMessage(row.MessageID, raw)
	if err != nil {
		return ProcessResult{}, err
	}
	if msg.Subject == "" {
		msg.Subject = row.Subject
	}
	if msg.Sender == "" {
		msg.Sender = row.Sender
	}

	out := s.runner.Run(msg)
	for _, warning := range out.Warnings {
		fmt.Printf("message id=%d: %s\n", row.ID, warning)
	}

	if len(out.Requests) == 0 {
		status := "skipped"
		if out.Verdict.Verdict == internal.VerdictReminder {
			status = "duplicate"
		}
		_ = s.db.UpdateMessageStatus(row.ID, status)
		_ = s.db.InsertRun(traceID(), row.ID,
			map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())},
			map[string]int{"requests": 0, "items": 0},
			string(out.Verdict.Verdict))
		return ProcessResult{MessageID: row.ID, Requests: 0}, nil
	}

	items := 0
	for _, request := range out.Requests {
		if err := s.db.InsertPriceRequest(row.ID, msg, request); err != nil {
			return ProcessResult{}, err
		}
		items += len(request.Items)
	}

	if err := s.db.UpdateMessageStatus(row.ID, "processed"); err != nil {
		return ProcessResult{}, err
	}
	_ = s.db.InsertRun(traceID(), row.ID,
		map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())},
		map[string]int{"requests": len(out.Requests), "items": items},
		string(out.Verdict.Verdict))

	return ProcessResult{MessageID: row.ID, Requests: len(out.Requests), Items: items}, nil
}

func traceID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

package internal

import "time"

type Verdict string

const (
	VerdictRequest       Verdict = "REQUEST"
	VerdictSupplierOffer Verdict = "SUPPLIER_OFFER"
	VerdictPurchaseOrder Verdict = "PURCHASE_ORDER"
	VerdictReminder      Verdict = "REMINDER_DUPLICATE"
	VerdictAmbiguous     Verdict = "AMBIGUOUS"
)

// InboundMessage is the raw message handed over by a mail connector.
// It is never mutated by the pipeline.
type InboundMessage struct {
	ID          string
	MessageID   string
	References  []string
	InReplyTo   string
	Sender      string
	Recipients  []string
	Subject     string
	Body        string
	BodyHTML    string
	ReceivedAt  time.Time
	Attachments []Attachment
}

type Attachment struct {
	Filename    string
	ContentType string
	ContentID   string
	Content     []byte
	Size        int
}

type ClassificationVerdict struct {
	Verdict        Verdict
	RequestScore   int
	OfferScore     int
	Reasons        []string
	PriorRequestID *string
	TreatAsRequest bool
	NeedsReview    bool
}

type AttachmentCategory string

const (
	CategoryRequestDocument AttachmentCategory = "request_document"
	CategoryTechnicalSheet  AttachmentCategory = "technical_sheet"
	CategoryDecorativeImage AttachmentCategory = "decorative_image"
	CategoryOther           AttachmentCategory = "other"
)

type ClassifiedAttachment struct {
	Attachment Attachment
	Category   AttachmentCategory
	Brand      *string
	Confidence *int
	RelatedTo  *string
}

// AttachmentGroup is a set of request documents processed as one request,
// plus the technical sheets paired with them. Groups partition the
// request-document input: no document dropped, none duplicated.
type AttachmentGroup struct {
	Documents       []ClassifiedAttachment
	TechnicalSheets []ClassifiedAttachment
	Brand           *string
}

type LineItem struct {
	Description       string
	Qty               float64
	Unit              *string
	RefCode           *string
	SupplierCode      *string
	Brand             *string
	Notes             *string
	NeedsManualReview bool
	IsEstimated       bool
}

type ExtractionMethod string

const (
	MethodXLSX     ExtractionMethod = "xlsx"
	MethodPDF      ExtractionMethod = "pdf"
	MethodDOCX     ExtractionMethod = "docx"
	MethodBody     ExtractionMethod = "body"
	MethodFallback ExtractionMethod = "fallback"
)

type ExtractionResult struct {
	Items              []LineItem
	ExternalRef        *string
	GeneralDescription *string
	NeedsVerification  bool
	Method             ExtractionMethod
}

// PriceRequest is the structured record the pipeline emits per attachment
// group, or per message body when no request document exists.
type PriceRequest struct {
	InternalID      string
	ExternalRef     *string
	Brand           *string
	Items           []LineItem
	TechnicalSheets []string
	Method          ExtractionMethod
	NeedsReview     bool
	Warnings        []string
}

type MessageRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

type BrandRecord struct {
	ID       int
	Name     string
	Aliases  []string
	Supplier *string
	Email    *string
	RawJSON  string
}

// RequestLedger is the read-only duplicate/reminder lookup the classifier
// consults. Persisting new requests happens outside the pipeline.
type RequestLedger interface {
	FindByExternalReference(ref string) (string, bool)
	FindByMessageID(messageID string) (string, bool)
	FindBySubjectAndSender(subject, sender string) (string, bool)
}

type SupplierDirectory interface {
	IsKnownSupplier(email string) bool
}

type BrandDetector interface {
	DetectBrands(text string) []string
}

// FallbackExtractor is the higher-cost extraction capability. Timeout and
// cancellation policy belong to the implementation, not the pipeline.
type FallbackExtractor interface {
	ExtractViaFallback(attachments []Attachment) (ExtractionResult, float64, []string, error)
}

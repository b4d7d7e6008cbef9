package pipeline

import (
	"testing"

	"rfqdesk/internal"
	"rfqdesk/internal/config"
)

type fakeLedger struct {
	byExternalRef map[string]string
	byMessageID   map[string]string
	bySubjSender  map[string]string
}

func (f *fakeLedger) FindByExternalReference(ref string) (string, bool) {
	id, ok := f.byExternalRef[ref]
	return id, ok
}

func (f *fakeLedger) FindByMessageID(messageID string) (string, bool) {
	id, ok := f.byMessageID[messageID]
	return id, ok
}

func (f *fakeLedger) FindBySubjectAndSender(subject, sender string) (string, bool) {
	id, ok := f.bySubjSender[subject+"|"+sender]
	return id, ok
}

type fakeSuppliers struct{ known map[string]bool }

func (f *fakeSuppliers) IsKnownSupplier(email string) bool { return f.known[email] }

func testClassifier(t *testing.T, ledger internal.RequestLedger, suppliers internal.SupplierDirectory) *Classifier {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	return NewClassifier(cfg, DefaultRules(), ledger, suppliers)
}

func TestClassifyExplicitRequest(t *testing.T) {
	c := testClassifier(t, nil, nil)
	msg := internal.InboundMessage{
		Subject: "Demande de prix - vannes DN50",
		Sender:  "Alice Martin <alice@client.example>",
		Body:    "Bonjour,\nPouvez-vous nous coter les articles en piece jointe ?\nCordialement",
	}
	v := c.Classify(msg)
	if v.Verdict != internal.VerdictRequest {
		t.Fatalf("verdict=%s reasons=%v", v.Verdict, v.Reasons)
	}
	if !v.TreatAsRequest {
		t.Fatal("explicit request must be treated as request")
	}
}

func TestClassifyExplicitRequestEnglish(t *testing.T) {
	c := testClassifier(t, nil, nil)
	msg := internal.InboundMessage{
		Subject: "RFQ for bearings #4521",
		Sender:  "John Briggs <john@client.example>",
		Body:    "Hello,\nPlease send your best price for the attached list.\nRegards,",
	}
	v := c.Classify(msg)
	if v.Verdict != internal.VerdictRequest {
		t.Fatalf("verdict=%s reasons=%v", v.Verdict, v.Reasons)
	}
	if !v.TreatAsRequest {
		t.Fatal("explicit request must be treated as request")
	}
}

func TestClassifyRFQSubjectsFromTwoSendersStayIndependent(t *testing.T) {
	// "for" must never be captured as an external reference linking
	// unrelated RFQ subjects across senders.
	ledger := &fakeLedger{byExternalRef: map[string]string{"for": "DDP-20260110-2"}}
	c := testClassifier(t, ledger, nil)

	first := c.Classify(internal.InboundMessage{
		Subject: "RFQ for bearings #4521",
		Sender:  "john@client.example",
		Body:    "Please quote the attached list.",
	})
	second := c.Classify(internal.InboundMessage{
		Subject: "RFQ for pumps",
		Sender:  "marie@autre-client.example",
		Body:    "Please quote delivery time as well.",
	})
	for i, v := range []internal.ClassificationVerdict{first, second} {
		if v.Verdict != internal.VerdictRequest {
			t.Fatalf("message %d: verdict=%s reasons=%v", i, v.Verdict, v.Reasons)
		}
		if v.PriorRequestID != nil {
			t.Fatalf("message %d linked to %s", i, *v.PriorRequestID)
		}
	}
}

func TestClassifySupplierOfferHardRule(t *testing.T) {
	c := testClassifier(t, nil, nil)
	msg := internal.InboundMessage{
		Subject: "Notre offre Q-20260112",
		Sender:  "ventes@fournisseur.example",
		Body: "Bonjour,\nVeuillez trouver ci-joint notre proforma.\n" +
			"Validité : 30 jours\n" +
			"Total HT : 1 250,00 EUR\n" +
			"IBAN FR76 3000 6000 0112 3456 7890 189\n",
	}
	v := c.Classify(msg)
	if v.Verdict != internal.VerdictSupplierOffer {
		t.Fatalf("verdict=%s reasons=%v", v.Verdict, v.Reasons)
	}
}

func TestClassifySupplierOfferEnglish(t *testing.T) {
	c := testClassifier(t, nil, nil)
	msg := internal.InboundMessage{
		Subject: "Our Quotation Q-2291",
		Sender:  "sales@supplier.example",
		Body: "Dear Sir,\nPlease find attached our quotation.\n" +
			"Valid until 30 days from date of issue.\n" +
			"Total: 4,500 EUR\n",
	}
	v := c.Classify(msg)
	if v.Verdict != internal.VerdictSupplierOffer {
		t.Fatalf("verdict=%s reasons=%v", v.Verdict, v.Reasons)
	}
}

func TestClassifyPurchaseOrderShortCircuit(t *testing.T) {
	c := testClassifier(t, nil, nil)
	msg := internal.InboundMessage{
		Subject: "Bon de commande 4500012345",
		Body:    "Veuillez nous coter au plus vite. Demande de prix urgente.",
	}
	v := c.Classify(msg)
	if v.Verdict != internal.VerdictPurchaseOrder {
		t.Fatalf("verdict=%s reasons=%v", v.Verdict, v.Reasons)
	}
	if v.RequestScore != 0 || v.OfferScore != 0 {
		t.Fatalf("purchase order must not be scored: %+v", v)
	}
}

func TestClassifyReminderByInternalRef(t *testing.T) {
	// Reply threads carrying our own reference need no ledger at all.
	c := testClassifier(t, nil, nil)
	msg := internal.InboundMessage{
		Subject: "RE: Demande de prix DDP-20260113-810",
		Sender:  "alice@client.example",
		Body:    "Bonjour, avez-vous pu avancer sur notre demande ?",
	}
	v := c.Classify(msg)
	if v.Verdict != internal.VerdictReminder {
		t.Fatalf("verdict=%s reasons=%v", v.Verdict, v.Reasons)
	}
	if v.PriorRequestID == nil || *v.PriorRequestID != "DDP-20260113-810" {
		t.Fatalf("priorRequestID=%v", v.PriorRequestID)
	}
}

func TestClassifyReminderByLowercaseInternalRef(t *testing.T) {
	c := testClassifier(t, nil, nil)
	msg := internal.InboundMessage{
		Subject: "re: demande de prix ddp-20260113-810",
		Sender:  "alice@client.example",
		Body:    "un retour sur notre demande ?",
	}
	v := c.Classify(msg)
	if v.Verdict != internal.VerdictReminder {
		t.Fatalf("verdict=%s reasons=%v", v.Verdict, v.Reasons)
	}
	if v.PriorRequestID == nil || *v.PriorRequestID != "DDP-20260113-810" {
		t.Fatalf("priorRequestID=%v", v.PriorRequestID)
	}
}

func TestClassifyReminderByExternalRef(t *testing.T) {
	ledger := &fakeLedger{byExternalRef: map[string]string{"AC-2214": "DDP-20260110-12"}}
	c := testClassifier(t, ledger, nil)
	msg := internal.InboundMessage{
		Subject: "Relance consultation",
		Sender:  "bob@client.example",
		Body:    "N/Réf : AC-2214\nToujours en attente de votre retour.",
	}
	v := c.Classify(msg)
	if v.Verdict != internal.VerdictReminder {
		t.Fatalf("verdict=%s reasons=%v", v.Verdict, v.Reasons)
	}
	if v.PriorRequestID == nil || *v.PriorRequestID != "DDP-20260110-12" {
		t.Fatalf("priorRequestID=%v", v.PriorRequestID)
	}
}

func TestClassifyReminderBySubjectAndSender(t *testing.T) {
	ledger := &fakeLedger{bySubjSender: map[string]string{
		"demande urgente roulements|carol@client.example": "DDP-20260111-3",
	}}
	c := testClassifier(t, ledger, nil)
	msg := internal.InboundMessage{
		Subject: "FW: Demande urgente roulements",
		Sender:  "Carol <carol@client.example>",
		Body:    "Pour suite a donner.",
	}
	v := c.Classify(msg)
	if v.Verdict != internal.VerdictReminder {
		t.Fatalf("verdict=%s reasons=%v", v.Verdict, v.Reasons)
	}
}

func TestClassifyKnownSupplierTipsTheScale(t *testing.T) {
	suppliers := &fakeSuppliers{known: map[string]bool{"ventes@fournisseur.example": true}}
	c := testClassifier(t, nil, suppliers)
	msg := internal.InboundMessage{
		Subject: "Notre offre speciale",
		Sender:  "Ventes <ventes@fournisseur.example>",
		Body:    "Prix net avec remise exceptionnelle.\nConditions de paiement : net 30.",
	}
	v := c.Classify(msg)
	if v.Verdict != internal.VerdictSupplierOffer {
		t.Fatalf("verdict=%s request=%d offer=%d reasons=%v", v.Verdict, v.RequestScore, v.OfferScore, v.Reasons)
	}
}

func TestClassifyWeakSignalsDefaultToRequest(t *testing.T) {
	c := testClassifier(t, nil, nil)
	msg := internal.InboundMessage{
		Subject: "Voir fichier joint",
		Sender:  "dave@client.example",
		Body:    "Bonjour,\nVoir le fichier joint.\n",
	}
	v := c.Classify(msg)
	if v.Verdict != internal.VerdictRequest {
		t.Fatalf("verdict=%s reasons=%v", v.Verdict, v.Reasons)
	}
	if !v.NeedsReview {
		t.Fatal("weak-signal default must be flagged for review")
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := testClassifier(t, nil, nil)
	msg := internal.InboundMessage{
		Subject: "Consultation pieces detachees",
		Sender:  "eve@client.example",
		Body:    "Merci de nous communiquer prix et delai pour la liste jointe.",
	}
	first := c.Classify(msg)
	for i := 0; i < 5; i++ {
		again := c.Classify(msg)
		if again.Verdict != first.Verdict || again.RequestScore != first.RequestScore || again.OfferScore != first.OfferScore {
			t.Fatalf("run %d diverged: %+v vs %+v", i, again, first)
		}
	}
}

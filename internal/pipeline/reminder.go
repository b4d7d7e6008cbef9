package pipeline

import (
	"fmt"
	"strings"

	"rfqdesk/internal"
	"rfqdesk/internal/util"
)

// detectReminder recognizes messages that re-raise an already-processed
// request: thread replies carrying our internal reference, external
// references already recorded in the ledger, thread headers pointing at a
// known message, or a same-sender resend with an identical subject.
func (c *Classifier) detectReminder(msg internal.InboundMessage) (internal.ClassificationVerdict, bool) {
	scope := msg.Subject + "\n" + msg.Body

	if c.rules.ReplyMarker.MatchString(msg.Subject) {
		if ref := strings.ToUpper(c.rules.InternalRef.FindString(scope)); ref != "" {
			return reminderVerdict(ref, fmt.Sprintf("thread reply referencing %s", ref)), true
		}
	}

	if c.ledger == nil {
		return internal.ClassificationVerdict{}, false
	}

	for _, re := range c.rules.ExternalRef {
		for _, m := range re.FindAllStringSubmatch(scope, -1) {
			ref := strings.TrimSpace(m[len(m)-1])
			if !validExternalRef(ref) {
				continue
			}
			if internalID, found := c.ledger.FindByExternalReference(ref); found {
				return reminderVerdict(internalID, fmt.Sprintf("external reference %s already processed", ref)), true
			}
		}
	}

	threadIDs := append([]string{}, msg.References...)
	if msg.InReplyTo != "" {
		threadIDs = append(threadIDs, msg.InReplyTo)
	}
	for _, id := range threadIDs {
		if internalID, found := c.ledger.FindByMessageID(id); found {
			return reminderVerdict(internalID, fmt.Sprintf("thread header matches processed message %s", id)), true
		}
	}

	if internalID, found := c.ledger.FindBySubjectAndSender(util.NormalizeSubject(msg.Subject), senderEmail(msg.Sender)); found {
		return reminderVerdict(internalID, "same sender resent an identical subject"), true
	}

	return internal.ClassificationVerdict{}, false
}

func reminderVerdict(internalID, reason string) internal.ClassificationVerdict {
	return internal.ClassificationVerdict{
		Verdict:        internal.VerdictReminder,
		Reasons:        []string{reason},
		PriorRequestID: util.StringPtr(internalID),
	}
}

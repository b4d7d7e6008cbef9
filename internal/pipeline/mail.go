package pipeline

import (
	"bytes"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"rfqdesk/internal"
)

// ParseRawMessage turns a raw RFC822 payload into the pipeline's immutable
// input value.
func ParseRawMessage(id string, raw []byte) (internal.InboundMessage, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return internal.InboundMessage{}, err
	}

	msg := internal.InboundMessage{
		ID:        id,
		MessageID: strings.TrimSpace(env.GetHeader("Message-Id")),
		InReplyTo: strings.TrimSpace(env.GetHeader("In-Reply-To")),
		Sender:    env.GetHeader("From"),
		Subject:   env.GetHeader("Subject"),
		Body:      env.Text,
		BodyHTML:  env.HTML,
	}

	for _, ref := range strings.Fields(env.GetHeader("References")) {
		if ref != "" {
			msg.References = append(msg.References, ref)
		}
	}
	for _, to := range strings.Split(env.GetHeader("To"), ",") {
		if to = strings.TrimSpace(to); to != "" {
			msg.Recipients = append(msg.Recipients, to)
		}
	}

	if date, err := env.Date(); err == nil {
		msg.ReceivedAt = date.UTC()
	} else {
		msg.ReceivedAt = time.Now().UTC()
	}

	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		msg.Attachments = append(msg.Attachments, internal.Attachment{
			Filename:    filename,
			ContentType: att.ContentType,
			ContentID:   strings.Trim(att.Header.Get("Content-Id"), "<>"),
			Content:     att.Content,
			Size:        len(att.Content),
		})
	}
	for _, inline := range env.Inlines {
		filename := strings.TrimSpace(inline.FileName)
		if filename == "" {
			filename = "inline"
		}
		msg.Attachments = append(msg.Attachments, internal.Attachment{
			Filename:    filename,
			ContentType: inline.ContentType,
			ContentID:   strings.Trim(inline.Header.Get("Content-Id"), "<>"),
			Content:     inline.Content,
			Size:        len(inline.Content),
		})
	}

	return msg, nil
}

package imapx

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/kup/belegmail/internal/model"

	// Registers decoders so encoded headers and non-UTF-8 bodies are
	// decoded best-effort instead of failing.
	_ "github.com/emersion/go-message/charset"
)

// Placeholders substituted when an envelope lacks the field.
const (
	PlaceholderSubject = "(Kein Betreff)"
	PlaceholderSender  = "(Unbekannt)"
)

// docExtensions lists filename extensions treated as document
// attachments when a part carries no disposition header.
var docExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true,
	".xls": true, ".xlsx": true, ".odt": true, ".ods": true,
	".rtf": true, ".csv": true, ".zip": true,
}

// summaryFromBuffer builds a MessageSummary from envelope and body
// structure data. Missing fields degrade to placeholders, a bad
// message must not spoil the rest of the listing.
func summaryFromBuffer(buf *imapclient.FetchMessageBuffer) model.MessageSummary {
	summary := model.MessageSummary{
		UID:     uint32(buf.UID),
		Subject: PlaceholderSubject,
		Sender:  PlaceholderSender,
		Date:    time.Now(),
	}

	if env := buf.Envelope; env != nil {
		if env.Subject != "" {
			summary.Subject = env.Subject
		}
		if sender := senderString(env); sender != "" {
			summary.Sender = sender
		}
		if !env.Date.IsZero() {
			summary.Date = env.Date
		}
	}

	if buf.BodyStructure != nil {
		summary.HasAttachments = structureHasAttachment(buf.BodyStructure)
	}

	return summary
}

// messageFromBuffer builds a Message envelope; body and attachments
// are filled in by the caller from the body section.
func messageFromBuffer(buf *imapclient.FetchMessageBuffer) *model.Message {
	msg := &model.Message{
		UID:     uint32(buf.UID),
		Subject: PlaceholderSubject,
		Sender:  PlaceholderSender,
		Date:    time.Now(),
	}

	if env := buf.Envelope; env != nil {
		msg.MessageID = env.MessageID
		if env.Subject != "" {
			msg.Subject = env.Subject
		}
		if sender := senderString(env); sender != "" {
			msg.Sender = sender
		}
		if !env.Date.IsZero() {
			msg.Date = env.Date
		}
	}

	return msg
}

// senderString renders the first From address as `Name <local@domain>`
// or plain `local@domain` when no display name is present.
func senderString(env *imap.Envelope) string {
	if len(env.From) == 0 {
		return ""
	}
	from := env.From[0]
	addr := from.Addr()
	if from.Name != "" && addr != "" {
		return from.Name + " <" + addr + ">"
	}
	if addr != "" {
		return addr
	}
	return from.Name
}

// structureHasAttachment walks the body structure tree looking for a
// part classified as an attachment by the layered rule.
func structureHasAttachment(bs imap.BodyStructure) bool {
	switch part := bs.(type) {
	case *imap.BodyStructureSinglePart:
		return singlePartIsAttachment(part)
	case *imap.BodyStructureMultiPart:
		for _, child := range part.Children {
			if structureHasAttachment(child) {
				return true
			}
		}
	}
	return false
}

// singlePartIsAttachment applies the layered rule to body structure
// metadata: an explicit attachment disposition wins; without any
// disposition, a document-extension filename on a binary or document
// content type counts too, since real senders often omit the header.
func singlePartIsAttachment(part *imap.BodyStructureSinglePart) bool {
	if part.Extended != nil && part.Extended.Disposition != nil {
		return strings.EqualFold(part.Extended.Disposition.Value, "attachment")
	}
	contentType := strings.ToLower(part.Type + "/" + part.Subtype)
	return isAttachmentCandidate("", part.Filename(), contentType)
}

// isAttachmentCandidate is the layered attachment rule over raw header
// values: disposition "attachment", or no disposition combined with a
// document-extension filename and a binary/document content type.
func isAttachmentCandidate(disposition, filename, contentType string) bool {
	if strings.EqualFold(disposition, "attachment") {
		return true
	}
	if disposition != "" || filename == "" {
		return false
	}
	ext := strings.ToLower(filepath.Ext(filename))
	return docExtensions[ext] && strings.HasPrefix(contentType, "application/")
}

// parseMIMEBody parses raw message bytes and extracts the first
// text/plain part, the first text/html part, and all attachments with
// their content. Unparseable input degrades to treating the whole body
// as plain text.
func parseMIMEBody(raw []byte) (textBody, htmlBody string, attachments []model.Attachment) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw), "", nil
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, params, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain") && textBody == "":
				textBody = string(body)
			case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
				htmlBody = string(body)
			default:
				// No disposition header at all; the filename hint may
				// still mark this part as a document attachment.
				filename := params["name"]
				if isAttachmentCandidate("", filename, contentType) {
					attachments = append(attachments, model.Attachment{
						Filename:    filename,
						ContentType: contentType,
						Size:        int64(len(body)),
						Data:        body,
					})
				}
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			attachments = append(attachments, model.Attachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        int64(len(body)),
				Data:        body,
			})
		}
	}

	return textBody, htmlBody, attachments
}

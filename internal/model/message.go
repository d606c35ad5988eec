package model

import (
	"sort"
	"strings"
	"time"
)

// MessageSummary is the envelope-level view of a mailbox message, produced
// by a folder listing. It is immutable and used only for list rendering.
type MessageSummary struct {
	// UID is the server-assigned identifier, stable within a folder.
	UID uint32

	// Sender is the display form of the From header (name or address).
	Sender string

	// Subject is the decoded subject line.
	Subject string

	// Date is the envelope date; an unparseable date is substituted
	// with the time of the listing.
	Date time.Time

	// HasAttachments is derived from the message's body structure
	// without downloading the body.
	HasAttachments bool
}

// Attachment is a single MIME part carried by a Message. Its lifetime is
// bounded to the owning Message.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// Message is a fully fetched mailbox message. It is immutable once
// constructed; ownership passes to whichever cache slot or in-flight
// result holder references it.
type Message struct {
	UID       uint32
	Sender    string
	Subject   string
	Date      time.Time

	// MessageID is the RFC 5322 Message-ID header, kept for
	// traceability in generated documents.
	MessageID string

	// BodyText is the first text/plain part, possibly empty.
	BodyText string

	// BodyHTML is the first text/html part, empty if none.
	BodyHTML string

	Attachments []Attachment
}

// Suggestions are the extracted pre-fill values for the filing workflow.
// Every field is independently overridable by the caller before filing.
type Suggestions struct {
	Date        string // DD.MM.YYYY, empty if none found
	Description string // cleaned vendor name, empty if none found
	Currency    string // ISO code, defaults to EUR
	Amount      string // normalized to two fractional digits, empty if none
}

// SortSummaries orders summaries newest first, in place.
func SortSummaries(summaries []MessageSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Date.After(summaries[j].Date)
	})
}

// FilterSummaries returns the summaries whose sender or subject contain
// the query, case-insensitively. An empty query returns the input slice.
func FilterSummaries(summaries []MessageSummary, query string) []MessageSummary {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return summaries
	}

	var filtered []MessageSummary
	for _, s := range summaries {
		if strings.Contains(strings.ToLower(s.Sender), query) ||
			strings.Contains(strings.ToLower(s.Subject), query) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

package extract

import (
	"regexp"
	"strings"
)

// defaultDenylist contains terms that must never become a vendor name:
// invoice and billing jargon, generic mailbox-provider domains, known
// payment processors, and transport noise. Operators extend this list
// with their own domain via configuration.
var defaultDenylist = []string{
	// invoice/billing jargon
	"rechnung", "invoice", "billing", "bill", "receipt", "beleg",
	"zahlung", "payment", "bestellung", "order", "buchhaltung",
	"kundenservice", "service", "support", "info", "newsletter",
	"notification", "benachrichtigung",
	// mailbox noise
	"noreply", "no-reply", "nicht-antworten", "mailer", "postmaster",
	"mail", "email", "e-mail", "webmail",
	// generic mail providers
	"gmail", "googlemail", "outlook", "hotmail", "yahoo", "gmx",
	"web", "posteo", "mailbox", "protonmail",
	// payment processors
	"paypal", "stripe", "klarna", "mollie", "adyen", "sumup",
	// operator domain
	"kleinundpartner",
}

// subjectKeywords are preposition-like words whose following word is a
// vendor candidate ("Rechnung von Amazon", "Invoice from Spotify").
var subjectKeywords = []string{
	"von", "bei", "für", "durch", "an", "from", "by", "for", "to",
}

var (
	displayNamePattern = regexp.MustCompile(`^"?([^"<]+)"?\s*<`)
	domainPattern      = regexp.MustCompile(`@([^>\s]+)`)
	capitalizedPattern = regexp.MustCompile(`\b[A-Z][a-zA-Z]+\b`)
	denySplitPattern   = regexp.MustCompile(`[-_]`)
	cleanPattern       = regexp.MustCompile(`[^a-z0-9äöüß]+`)

	subjectKeywordPatterns = compileSubjectKeywords()
)

func compileSubjectKeywords() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(subjectKeywords))
	for _, kw := range subjectKeywords {
		patterns = append(patterns, regexp.MustCompile(
			`(?i)\b`+kw+`\s+([\p{L}\d]+)`,
		))
	}
	return patterns
}

// VendorExtractor derives a vendor/description suggestion from message
// metadata. The sender display name is tried first, then the sender
// domain, then subject keywords and capitalized subject words. Each
// candidate is checked against the deny-list before being accepted.
type VendorExtractor struct {
	denylist map[string]struct{}
}

// NewVendorExtractor creates an extractor using the built-in deny-list
// plus any extra terms (matched case-insensitively).
func NewVendorExtractor(extra ...string) *VendorExtractor {
	deny := make(map[string]struct{}, len(defaultDenylist)+len(extra))
	for _, term := range defaultDenylist {
		deny[term] = struct{}{}
	}
	for _, term := range extra {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			deny[term] = struct{}{}
		}
	}
	return &VendorExtractor{denylist: deny}
}

// FromMessage extracts a vendor name from sender and subject. The
// optional fallback source (e.g. OCR of an attachment) is comparatively
// expensive and is invoked only when all other candidates fail.
// Returns "" when nothing usable is found.
func (e *VendorExtractor) FromMessage(sender, subject string, fallback func() string) string {
	if v := e.accept(displayName(sender)); v != "" {
		return v
	}
	if v := e.accept(domainLabel(sender)); v != "" {
		return v
	}
	if v := e.acceptFromText(subject); v != "" {
		return v
	}

	if fallback != nil {
		if text := fallback(); text != "" {
			if v := e.acceptFromText(text); v != "" {
				return v
			}
		}
	}

	return ""
}

// accept cleans a candidate and returns it unless it is empty or denied.
func (e *VendorExtractor) accept(candidate string) string {
	if candidate == "" || e.denied(candidate) {
		return ""
	}
	return cleanVendor(candidate)
}

// acceptFromText tries the subject keyword patterns, then falls back to
// the first capitalized word that is not denied.
func (e *VendorExtractor) acceptFromText(text string) string {
	if text == "" {
		return ""
	}

	for _, pattern := range subjectKeywordPatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		word := m[1]
		if len(word) < 3 || isDigits(word) {
			continue
		}
		if v := e.accept(word); v != "" {
			return v
		}
	}

	for _, word := range capitalizedPattern.FindAllString(text, -1) {
		if len(word) < 3 || e.denied(word) {
			continue
		}
		return cleanVendor(word)
	}

	return ""
}

// denied checks a term against the deny-list, both whole and split on
// -/_ so "invoice-service" is caught by "invoice".
func (e *VendorExtractor) denied(term string) bool {
	lower := strings.ToLower(term)
	if _, found := e.denylist[lower]; found {
		return true
	}
	for _, part := range denySplitPattern.Split(lower, -1) {
		if len(part) < 3 {
			continue
		}
		if _, found := e.denylist[part]; found {
			return true
		}
	}
	return false
}

// displayName extracts the display part of a From header:
// `Amazon <x@y.de>` -> "Amazon". Returns "" when absent or too short.
func displayName(sender string) string {
	if sender == "" {
		return ""
	}
	m := displayNamePattern.FindStringSubmatch(sender)
	if m == nil {
		return ""
	}
	name := strings.TrimSpace(m[1])
	if len(name) < 3 {
		return ""
	}
	return name
}

// domainLabel extracts the first label of the sender domain:
// `rechnung@amazon.de` -> "amazon", `info@shop.amazon.de` -> "shop".
func domainLabel(sender string) string {
	if sender == "" {
		return ""
	}
	m := domainPattern.FindStringSubmatch(sender)
	if m == nil {
		return ""
	}
	label, _, _ := strings.Cut(m[1], ".")
	return label
}

// cleanVendor normalizes a vendor name for filename use: lowercased,
// runs of anything but letters (incl. umlauts) and digits collapse to a
// single underscore, stripped and truncated to 30 characters. Returns
// "" when the result is shorter than 2 characters.
func cleanVendor(vendor string) string {
	result := strings.ToLower(vendor)
	result = cleanPattern.ReplaceAllString(result, "_")
	result = strings.Trim(result, "_")
	if len([]rune(result)) > 30 {
		result = string([]rune(result)[:30])
	}
	if len([]rune(result)) < 2 {
		return ""
	}
	return result
}

// textLinePattern matches lines made solely of digits, punctuation and
// separators, which carry no vendor information.
var textLinePattern = regexp.MustCompile(`^[\d\s./:,-]+$`)

// textCleanPattern keeps letters (incl. the recognized accented set)
// and spaces; everything else is dropped before underscoring.
var textCleanPattern = regexp.MustCompile(`[^a-zA-ZäöüÄÖÜß\s]`)

var spaceRunPattern = regexp.MustCompile(`\s+`)

// VendorFromText extracts a vendor/description from free text (e.g.
// OCR output): the first line that is neither shorter than 3 characters
// nor composed solely of digits/punctuation, cleaned for filename use.
// Returns "" when no such line exists.
func VendorFromText(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 3 || textLinePattern.MatchString(line) {
			continue
		}

		clean := textCleanPattern.ReplaceAllString(line, "")
		clean = strings.ToLower(strings.TrimSpace(clean))
		clean = spaceRunPattern.ReplaceAllString(clean, "_")

		if len([]rune(clean)) < 3 {
			continue
		}
		if len([]rune(clean)) > 30 {
			clean = string([]rune(clean)[:30])
		}
		return clean
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

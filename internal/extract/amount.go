package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// knownCurrencies is the fixed allow-list of recognized ISO currency
// codes. Arbitrary three-letter words are never treated as currencies.
var knownCurrencies = []string{
	"EUR", "USD", "CHF", "GBP", "JPY", "CAD", "AUD", "NZD",
	"SEK", "NOK", "DKK", "PLN", "CZK", "HUF", "RON", "BGN",
	"HRK", "RUB", "TRY", "BRL", "MXN", "INR", "CNY", "KRW",
}

// currencySymbols maps symbols to their normalized codes.
var currencySymbols = map[string]string{
	"€": "EUR",
	"$": "USD",
}

// totalKeywords mark lines that carry the document total. Word
// boundaries keep "zwischensumme" from matching "summe".
var totalKeywords = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bbrutto\b`),
	regexp.MustCompile(`(?i)\bgesamt\b`),
	regexp.MustCompile(`(?i)\bsumme\b`),
	regexp.MustCompile(`(?i)\btotal\b`),
	regexp.MustCompile(`(?i)\bendbetrag\b`),
	regexp.MustCompile(`(?i)\bzu\s*zahlen\b`),
}

// amountPattern matches an amount adjacent to a currency symbol or code,
// in either order: "€ 27,07", "EUR 27,07", "27,07 €", "27,07 EUR".
// Groups 1+2 cover currency-first, groups 3+4 amount-first.
var amountPattern = regexp.MustCompile(
	`(?i)(?:` +
		`([€$]|` + strings.Join(knownCurrencies, "|") + `)\s*` +
		`(\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{1,2})?|\d+)` +
		`|` +
		`(\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{1,2})?|\d+)\s*` +
		`([€$]|` + strings.Join(knownCurrencies, "|") + `)` +
		`)`,
)

// Amount finds the invoice total in text and returns (currency, amount)
// with the amount normalized to two fractional digits. Lines containing
// a total-indicating keyword are searched after the keyword position and
// win over any other match; otherwise the last currency-tagged amount in
// the text is used, since documents typically state the final total last.
// ok is false when no amount is found.
func Amount(text string) (currency, amount string, ok bool) {
	if text == "" {
		return "", "", false
	}

	lines := strings.Split(text, "\n")

	// Priority pass: total-keyword lines, amount searched after the
	// keyword so unrelated amounts earlier in the line are skipped.
	for _, line := range lines {
		for _, keyword := range totalKeywords {
			loc := keyword.FindStringIndex(line)
			if loc == nil {
				continue
			}
			if cur, amt, found := matchAmount(line[loc[1]:]); found {
				return cur, amt, true
			}
		}
	}

	// Fallback pass: last amount with a currency tag anywhere.
	for _, line := range lines {
		if cur, amt, found := matchAmount(line); found {
			currency, amount, ok = cur, amt, true
		}
	}

	return currency, amount, ok
}

// matchAmount finds the first currency-tagged amount in s.
func matchAmount(s string) (string, string, bool) {
	m := amountPattern.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}

	var rawCurrency, rawAmount string
	if m[1] != "" {
		rawCurrency, rawAmount = m[1], m[2]
	} else {
		rawAmount, rawCurrency = m[3], m[4]
	}

	currency, found := currencySymbols[rawCurrency]
	if !found {
		currency = strings.ToUpper(rawCurrency)
	}

	amount, ok := NormalizeAmount(rawAmount)
	if !ok {
		return "", "", false
	}
	return currency, amount, true
}

// NormalizeAmount converts a raw amount string to a canonical form with
// a dot decimal separator and exactly two fractional digits:
//
//	"1.234,56" -> "1234.56"  (German)
//	"1,234.56" -> "1234.56"  (English)
//	"100"      -> "100.00"
//
// When both separators appear, whichever appears last is the decimal
// separator. A lone dot followed by exactly three digits is treated as
// a thousands separator.
func NormalizeAmount(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}

	hasComma := strings.Contains(raw, ",")
	hasDot := strings.Contains(raw, ".")

	var normalized string
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(raw, ",") > strings.LastIndex(raw, ".") {
			// German format: 1.234,56
			normalized = strings.ReplaceAll(raw, ".", "")
			normalized = strings.ReplaceAll(normalized, ",", ".")
		} else {
			// English format: 1,234.56
			normalized = strings.ReplaceAll(raw, ",", "")
		}
	case hasComma:
		normalized = strings.ReplaceAll(raw, ",", ".")
	case hasDot:
		parts := strings.Split(raw, ".")
		if len(parts) == 2 && len(parts[1]) == 3 {
			// Thousands separator, e.g. 1.234
			normalized = strings.ReplaceAll(raw, ".", "")
		} else {
			normalized = raw
		}
	default:
		normalized = raw
	}

	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatFloat(value, 'f', 2, 64), true
}

// Package extract derives filing suggestions (date, amount, vendor) from
// message text. All functions are pure and perform no I/O.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var datePatterns = []*regexp.Regexp{
	// DD.MM.YYYY or DD/MM/YYYY
	regexp.MustCompile(`(\d{1,2})[./](\d{1,2})[./](20\d{2})`),
	// DD.MM.YY, assumed to be 20YY
	regexp.MustCompile(`(\d{1,2})[./](\d{1,2})[./](\d{2})\b`),
}

// Date finds the first date in text, formatted as DD.MM.YYYY.
// Candidates that do not form a valid calendar date are skipped,
// not corrected. Returns "" when no valid date is found.
func Date(text string) string {
	if text == "" {
		return ""
	}

	for _, pattern := range datePatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			day, _ := strconv.Atoi(m[1])
			month, _ := strconv.Atoi(m[2])
			year, _ := strconv.Atoi(m[3])
			if year < 100 {
				year += 2000
			}

			if !validCalendarDate(year, month, day) {
				continue
			}
			return fmt.Sprintf("%02d.%02d.%04d", day, month, year)
		}
	}

	return ""
}

// validCalendarDate reports whether the components round-trip through
// time.Date unchanged (time.Date normalizes month 13 to January, etc.).
func validCalendarDate(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && int(t.Month()) == month && t.Day() == day
}

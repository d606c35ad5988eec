package extract

import "testing"

func TestDate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"dotted full year", "Rechnungsdatum: 5.3.2024", "05.03.2024"},
		{"dotted padded", "Datum 05.03.2024 Uhrzeit", "05.03.2024"},
		{"slash separated", "Date: 5/3/2024", "05.03.2024"},
		{"two digit year", "gekauft am 5.3.24", "05.03.2024"},
		{"invalid month skipped", "99.99.2024", ""},
		{"invalid day skipped", "31.02.2024", ""},
		{"invalid then valid", "31.02.2024 und 01.03.2024", "01.03.2024"},
		{"no date", "keine Zahlen hier", ""},
		{"empty", "", ""},
	}

	for _, tc := range tests {
		if got := Date(tc.text); got != tc.want {
			t.Errorf("%s: Date(%q) = %q; want %q", tc.name, tc.text, got, tc.want)
		}
	}
}

package extract

import "testing"

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1.234,56", "1234.56", true},
		{"1,234.56", "1234.56", true},
		{"100", "100.00", true},
		{"27,07", "27.07", true},
		{"27.07", "27.07", true},
		{"1.234", "1234.00", true}, // dot with 3 digits is a thousands separator
		{"1.23", "1.23", true},
		{"", "", false},
	}

	for _, tc := range tests {
		got, ok := NormalizeAmount(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("NormalizeAmount(%q) = (%q, %v); want (%q, %v)",
				tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestAmount(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantCurrency string
		wantAmount   string
		wantOK       bool
	}{
		{
			name:         "total keyword line wins",
			text:         "Gesamt: € 27,07",
			wantCurrency: "EUR",
			wantAmount:   "27.07",
			wantOK:       true,
		},
		{
			name:         "post-keyword search beats earlier amount",
			text:         "Item: €99.00 other stuff Total: €5.00",
			wantCurrency: "EUR",
			wantAmount:   "5.00",
			wantOK:       true,
		},
		{
			name:         "fallback uses last amount",
			text:         "Posten 1: 10,00 EUR\nPosten 2: 5,00 EUR\nnoch Text",
			wantCurrency: "EUR",
			wantAmount:   "5.00",
			wantOK:       true,
		},
		{
			name:         "currency code before amount",
			text:         "Zu zahlen: CHF 89.50",
			wantCurrency: "CHF",
			wantAmount:   "89.50",
			wantOK:       true,
		},
		{
			name:         "dollar symbol",
			text:         "total $99.50",
			wantCurrency: "USD",
			wantAmount:   "99.50",
			wantOK:       true,
		},
		{
			name:         "german thousands on keyword line",
			text:         "Endbetrag 1.234,56 €",
			wantCurrency: "EUR",
			wantAmount:   "1234.56",
			wantOK:       true,
		},
		{
			name:   "zwischensumme is not a total keyword",
			text:   "Zwischensumme: 3,00 €",
			wantOK: true, // still found by the fallback pass
			wantCurrency: "EUR",
			wantAmount:   "3.00",
		},
		{
			name:   "bare number without currency ignored",
			text:   "Anzahl: 42",
			wantOK: false,
		},
		{
			name:   "empty text",
			text:   "",
			wantOK: false,
		},
	}

	for _, tc := range tests {
		currency, amount, ok := Amount(tc.text)
		if ok != tc.wantOK {
			t.Errorf("%s: Amount ok = %v; want %v", tc.name, ok, tc.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if currency != tc.wantCurrency || amount != tc.wantAmount {
			t.Errorf("%s: Amount = (%q, %q); want (%q, %q)",
				tc.name, currency, amount, tc.wantCurrency, tc.wantAmount)
		}
	}
}

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kup/belegmail/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "belegmail.db"))
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndListFilings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := model.Filing{
		UID:          41,
		Folder:       "Rechnungseingang",
		MessageID:    "<a@amazon.de>",
		Vendor:       "amazon",
		Date:         "13.05.2024",
		Currency:     "EUR",
		Amount:       "27.07",
		Category:     "ER",
		ArchivedPath: "/archiv/2024/05/ER/2024-05-13_EUR27-07_amazon.pdf",
		FiledAt:      time.Now().Add(-time.Hour),
	}
	if err := s.RecordFiling(ctx, first); err != nil {
		t.Fatalf("RecordFiling: %v", err)
	}
	if err := s.RecordFiling(ctx, model.Filing{
		UID:          42,
		Folder:       "Rechnungseingang",
		Vendor:       "spotify",
		Category:     "ER",
		ArchivedPath: "/archiv/2024/05/ER/x.pdf",
	}); err != nil {
		t.Fatalf("RecordFiling: %v", err)
	}

	filings, err := s.ListFilings(ctx, 0)
	if err != nil {
		t.Fatalf("ListFilings: %v", err)
	}
	if len(filings) != 2 {
		t.Fatalf("got %d filings; want 2", len(filings))
	}
	// Newest first; the second record got FiledAt = now.
	if filings[0].Vendor != "spotify" || filings[1].Vendor != "amazon" {
		t.Errorf("order = %s, %s; want spotify, amazon",
			filings[0].Vendor, filings[1].Vendor)
	}
	if filings[1].ID == "" {
		t.Error("missing generated id")
	}
	if filings[1].Amount != "27.07" || filings[1].Currency != "EUR" {
		t.Errorf("round-trip mismatch: %+v", filings[1])
	}

	limited, err := s.ListFilings(ctx, 1)
	if err != nil {
		t.Fatalf("ListFilings limited: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("got %d filings with limit 1", len(limited))
	}
}

func TestFilingByMessageID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordFiling(ctx, model.Filing{
		UID:          7,
		Folder:       "Rechnungseingang",
		MessageID:    "<x@example.com>",
		Category:     "Kassa",
		ArchivedPath: "/archiv/x.pdf",
	}); err != nil {
		t.Fatal(err)
	}

	f, err := s.FilingByMessageID(ctx, "<x@example.com>")
	if err != nil {
		t.Fatalf("FilingByMessageID: %v", err)
	}
	if f == nil || f.UID != 7 {
		t.Fatalf("filing = %+v; want uid 7", f)
	}

	missing, err := s.FilingByMessageID(ctx, "<unknown@example.com>")
	if err != nil {
		t.Fatalf("FilingByMessageID miss: %v", err)
	}
	if missing != nil {
		t.Errorf("unexpected filing for unknown id: %+v", missing)
	}

	empty, err := s.FilingByMessageID(ctx, "")
	if err != nil || empty != nil {
		t.Errorf("empty message id should be a silent miss, got %+v, %v", empty, err)
	}
}

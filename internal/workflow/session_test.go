package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kup/belegmail/internal/archive"
	"github.com/kup/belegmail/internal/model"
	"github.com/kup/belegmail/internal/store"
)

// fakeClient implements Client in memory. Fetches can be gated per uid
// to stage completion order.
type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	aux        bool
	connectErr error

	summaries []model.MessageSummary
	messages  map[uint32]*model.Message

	fetchCount    map[uint32]int
	auxFetchCount map[uint32]int
	moves         []string
	gates         map[uint32]chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		messages:      make(map[uint32]*model.Message),
		fetchCount:    make(map[uint32]int),
		auxFetchCount: make(map[uint32]int),
		gates:         make(map[uint32]chan struct{}),
	}
}

func (f *fakeClient) addMessage(uid uint32, sender, subject, body string) {
	date := time.Date(2024, time.May, 13, 10, 0, 0, 0, time.UTC)
	f.summaries = append(f.summaries, model.MessageSummary{
		UID: uid, Sender: sender, Subject: subject, Date: date,
	})
	f.messages[uid] = &model.Message{
		UID: uid, Sender: sender, Subject: subject, Date: date,
		MessageID: fmt.Sprintf("<%d@example.com>", uid),
		BodyText:  body,
		Attachments: []model.Attachment{{
			Filename: "invoice.pdf", ContentType: "application/pdf",
			Size: 5, Data: []byte("%PDF-"),
		}},
	}
}

func (f *fakeClient) gate(uid uint32) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[uid] = ch
	return ch
}

func (f *fakeClient) Connect(password string) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) ConnectAuxiliary(password string) error {
	f.mu.Lock()
	f.aux = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) HasAuxiliary() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aux
}

func (f *fakeClient) ListFolders() []string {
	return []string{"Rechnungseingang", "Rechnungseingang/archiviert"}
}

func (f *fakeClient) ListMessages(folder string) []model.MessageSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.MessageSummary(nil), f.summaries...)
}

func (f *fakeClient) FetchMessage(folder string, uid uint32) (*model.Message, error) {
	f.mu.Lock()
	gate := f.gates[uid]
	f.fetchCount[uid]++
	msg := f.messages[uid]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if msg == nil {
		return nil, fmt.Errorf("message %d not found", uid)
	}
	return msg, nil
}

func (f *fakeClient) FetchMessageAux(folder string, uid uint32) (*model.Message, error) {
	f.mu.Lock()
	f.auxFetchCount[uid]++
	msg := f.messages[uid]
	f.mu.Unlock()

	if msg == nil {
		return nil, fmt.Errorf("message %d not found", uid)
	}
	return msg, nil
}

func (f *fakeClient) MoveMessage(uid uint32, source, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, fmt.Sprintf("%d:%s->%s", uid, source, target))
	return nil
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.aux = false
	f.mu.Unlock()
}

func testConfig() model.AppConfig {
	return model.AppConfig{
		IMAP: model.IMAPConfig{
			Host:     "mail.example.com",
			Port:     993,
			Username: "kp",
			Inbox:    "Rechnungseingang",
			Archive:  "Rechnungseingang/archiviert",
		},
		CacheSize: 20,
	}
}

// waitFor drains events until one of the wanted kind arrives.
func waitFor(t *testing.T, s *Session, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-s.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %d", kind)
		}
	}
}

func TestConnectLoadsInbox(t *testing.T) {
	client := newFakeClient()
	client.addMessage(1, "Amazon <no-reply@amazon.de>", "Ihre Rechnung", "Gesamt: € 27,07")
	s := NewSession(client, testConfig())

	s.Connect("secret")

	ev := waitFor(t, s, EventConnected)
	if !ev.Connected {
		t.Fatal("connected event reports disconnected")
	}
	ev = waitFor(t, s, EventSummaries)
	if len(ev.Summaries) != 1 || ev.Summaries[0].UID != 1 {
		t.Fatalf("summaries = %+v", ev.Summaries)
	}
	if !client.HasAuxiliary() {
		t.Error("auxiliary session not opened")
	}
}

func TestSelectExtractsSuggestions(t *testing.T) {
	client := newFakeClient()
	client.addMessage(1, "Rechnung <info@amazon.de>", "Ihre Rechnung", "Gesamt: € 27,07")
	s := NewSession(client, testConfig())

	s.Connect("secret")
	waitFor(t, s, EventSummaries)

	s.Select(1)
	ev := waitFor(t, s, EventMessage)

	if ev.Message == nil || ev.Message.UID != 1 {
		t.Fatalf("message = %+v", ev.Message)
	}
	sug := ev.Suggestions
	if sug.Date != "13.05.2024" {
		t.Errorf("suggested date = %q", sug.Date)
	}
	if sug.Description != "amazon" {
		t.Errorf("suggested description = %q", sug.Description)
	}
	if sug.Currency != "EUR" || sug.Amount != "27.07" {
		t.Errorf("suggested amount = %s %s", sug.Currency, sug.Amount)
	}
}

func TestSelectUsesCache(t *testing.T) {
	client := newFakeClient()
	client.addMessage(1, "a@example.com", "eins", "")
	client.addMessage(2, "b@example.com", "zwei", "")
	s := NewSession(client, testConfig())

	s.Connect("secret")
	waitFor(t, s, EventSummaries)

	s.Select(1)
	waitFor(t, s, EventMessage)
	s.Select(2)
	waitFor(t, s, EventMessage)
	s.Select(1)
	ev := waitFor(t, s, EventMessage)

	if ev.Message.UID != 1 {
		t.Fatalf("current uid = %d; want 1", ev.Message.UID)
	}
	if client.fetchCount[1] != 1 {
		t.Errorf("uid 1 fetched %d times; want 1 (cache hit)", client.fetchCount[1])
	}
}

func TestStaleFetchSuppressed(t *testing.T) {
	client := newFakeClient()
	client.addMessage(1, "a@example.com", "eins", "")
	client.addMessage(2, "b@example.com", "zwei", "")
	s := NewSession(client, testConfig())

	s.Connect("secret")
	waitFor(t, s, EventSummaries)

	slow := client.gate(1)
	s.Select(1) // blocks in fetch
	s.Select(2) // supersedes

	ev := waitFor(t, s, EventMessage)
	if ev.Message.UID != 2 {
		t.Fatalf("first published message = %d; want 2", ev.Message.UID)
	}

	// Let the stale fetch finish; its completion must be invisible.
	close(slow)
	deadline := time.After(200 * time.Millisecond)
drain:
	for {
		select {
		case ev := <-s.Events():
			if ev.Kind == EventMessage {
				t.Fatalf("stale fetch published message %d", ev.Message.UID)
			}
		case <-deadline:
			break drain
		}
	}

	if cur, _ := s.Current(); cur == nil || cur.UID != 2 {
		t.Errorf("current = %+v; want uid 2", cur)
	}
}

func TestPrefetchNextWarmsCache(t *testing.T) {
	client := newFakeClient()
	client.addMessage(1, "a@example.com", "eins", "")
	client.addMessage(2, "b@example.com", "zwei", "")
	s := NewSession(client, testConfig())

	s.Connect("secret")
	waitFor(t, s, EventSummaries)

	s.Select(1)
	waitFor(t, s, EventMessage)

	s.PrefetchNext()
	waitUntil(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.auxFetchCount[2] == 1
	})

	// Now cached; selecting 2 must not hit the primary session.
	s.Select(2)
	ev := waitFor(t, s, EventMessage)
	if ev.Message.UID != 2 {
		t.Fatalf("current uid = %d", ev.Message.UID)
	}
	if client.fetchCount[2] != 0 {
		t.Errorf("uid 2 fetched on primary despite prefetch")
	}

	// A second prefetch for an already cached uid is a no-op.
	s.Select(1)
	waitFor(t, s, EventMessage)
	s.PrefetchNext()
	time.Sleep(50 * time.Millisecond)
	if client.auxFetchCount[2] != 1 {
		t.Errorf("cached uid prefetched again")
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestArchiveMovesAndClears(t *testing.T) {
	client := newFakeClient()
	client.addMessage(1, "a@example.com", "eins", "")
	s := NewSession(client, testConfig())

	s.Connect("secret")
	waitFor(t, s, EventSummaries)
	s.Select(1)
	waitFor(t, s, EventMessage)

	s.Archive()
	waitFor(t, s, EventCleared)
	waitFor(t, s, EventSummaries) // reload after archive

	client.mu.Lock()
	moves := append([]string(nil), client.moves...)
	client.mu.Unlock()
	if len(moves) != 1 || moves[0] != "1:Rechnungseingang->Rechnungseingang/archiviert" {
		t.Errorf("moves = %v", moves)
	}
	if cur, _ := s.Current(); cur != nil {
		t.Errorf("current not cleared: %+v", cur)
	}
}

func TestProcessValidation(t *testing.T) {
	client := newFakeClient()
	client.addMessage(1, "a@example.com", "eins", "")
	s := NewSession(client, testConfig(),
		WithFiler(archive.NewFiler(t.TempDir())))

	s.Connect("secret")
	waitFor(t, s, EventSummaries)
	s.Select(1)
	waitFor(t, s, EventMessage)

	base := ProcessRequest{
		Date: "13.05.2024", Description: "amazon",
		Currency: "EUR", Amount: "27,07",
		CategoryKey: "2", AttachmentIndex: 0,
	}

	bad := base
	bad.Date = "31.13.2024"
	if err := s.Process(bad); err == nil {
		t.Error("invalid date accepted")
	}

	bad = base
	bad.Amount = "abc"
	if err := s.Process(bad); err == nil {
		t.Error("invalid amount accepted")
	}

	bad = base
	bad.Description = ""
	if err := s.Process(bad); err == nil {
		t.Error("empty description accepted")
	}

	bad = base
	bad.CategoryKey = "9"
	if err := s.Process(bad); err == nil {
		t.Error("unknown category accepted")
	}

	bad = base
	bad.AttachmentIndex = 5
	if err := s.Process(bad); err == nil {
		t.Error("out of range attachment accepted")
	}
}

func TestProcessFilesAndRecords(t *testing.T) {
	client := newFakeClient()
	client.addMessage(1, "Rechnung <info@amazon.de>", "Ihre Rechnung", "Gesamt: € 27,07")

	history, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer history.Close()

	archiveRoot := t.TempDir()
	s := NewSession(client, testConfig(),
		WithFiler(archive.NewFiler(archiveRoot)),
		WithHistory(history))

	s.Connect("secret")
	waitFor(t, s, EventSummaries)
	s.Select(1)
	waitFor(t, s, EventMessage)

	err = s.Process(ProcessRequest{
		Date: "13.05.2024", Description: "amazon",
		Currency: "EUR", Amount: "27,07",
		CategoryKey: "2", AttachmentIndex: 0,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	ev := waitFor(t, s, EventFiled)
	wantPath := filepath.Join(archiveRoot, "2024", "05", "ER", "2024-05-13_EUR27-07_amazon.pdf")
	if ev.ArchivedPath != wantPath {
		t.Errorf("archived path = %q; want %q", ev.ArchivedPath, wantPath)
	}
	if data, err := os.ReadFile(wantPath); err != nil || string(data) != "%PDF-" {
		t.Errorf("archived file = %q, %v", data, err)
	}

	waitFor(t, s, EventSummaries)
	client.mu.Lock()
	moved := len(client.moves) == 1
	client.mu.Unlock()
	if !moved {
		t.Error("message not moved after filing")
	}

	filings, err := history.ListFilings(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(filings) != 1 || filings[0].Amount != "27.07" || filings[0].Category != "ER" {
		t.Errorf("filings = %+v", filings)
	}
}

func TestDisconnectResets(t *testing.T) {
	client := newFakeClient()
	client.addMessage(1, "a@example.com", "eins", "")
	s := NewSession(client, testConfig())

	s.Connect("secret")
	waitFor(t, s, EventSummaries)
	s.Select(1)
	waitFor(t, s, EventMessage)

	s.Disconnect()
	ev := waitFor(t, s, EventConnected)
	if ev.Connected {
		t.Fatal("still connected after disconnect")
	}
	if s.Connected() {
		t.Error("Connected() true after disconnect")
	}
	if cur, sug := s.Current(); cur != nil || sug.Currency != "EUR" || sug.Amount != "" {
		t.Errorf("state not reset: %+v %+v", cur, sug)
	}
	if len(s.Summaries()) != 0 {
		t.Error("summaries survived disconnect")
	}
}

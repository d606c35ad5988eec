// Package workflow drives the invoice-mail session: connecting,
// listing, selecting, prefetching, and filing messages. Network work
// runs in short-lived goroutines; results come back to the single
// consumer through the session's event channel, in the order the
// completions were handed over.
package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kup/belegmail/internal/archive"
	"github.com/kup/belegmail/internal/cache"
	"github.com/kup/belegmail/internal/extract"
	"github.com/kup/belegmail/internal/fetch"
	"github.com/kup/belegmail/internal/imapx"
	"github.com/kup/belegmail/internal/model"
	"github.com/kup/belegmail/internal/ollama"
	"github.com/kup/belegmail/internal/store"
)

// Client is the mailbox access the session needs. *imapx.Client
// implements it; tests substitute a fake.
type Client interface {
	Connect(password string) error
	ConnectAuxiliary(password string) error
	Connected() bool
	HasAuxiliary() bool
	ListFolders() []string
	ListMessages(folder string) []model.MessageSummary
	FetchMessage(folder string, uid uint32) (*model.Message, error)
	FetchMessageAux(folder string, uid uint32) (*model.Message, error)
	MoveMessage(uid uint32, source, target string) error
	Disconnect()
}

// EventKind discriminates session events.
type EventKind int

const (
	// EventStatus carries a user-visible status line.
	EventStatus EventKind = iota
	// EventBusy signals the busy indicator edge.
	EventBusy
	// EventConnected signals a connection state change.
	EventConnected
	// EventSummaries carries a fresh filtered message list.
	EventSummaries
	// EventMessage carries the current message and its suggestions.
	EventMessage
	// EventCleared signals that no message is current anymore.
	EventCleared
	// EventNotice carries a user-visible failure.
	EventNotice
	// EventFiled signals a completed filing with the archive path.
	EventFiled
)

// Event is one state transition handed to the UI layer.
type Event struct {
	Kind         EventKind
	Status       string
	Busy         bool
	Connected    bool
	Summaries    []model.MessageSummary
	Message      *model.Message
	Suggestions  model.Suggestions
	Notice       string
	Err          error
	ArchivedPath string
}

// ProcessRequest carries the user-confirmed filing fields. All
// suggestion fields may have been edited by the user before filing.
type ProcessRequest struct {
	Date        string // DD.MM.YYYY
	Description string
	Currency    string
	Amount      string
	CategoryKey string
	// AttachmentIndex selects the document from the current message's
	// attachments. A negative index files the caller-supplied Document
	// bytes instead (e.g. a rendered copy of the message itself).
	AttachmentIndex int
	Document        []byte
}

// Session owns all workflow state for one mailbox account.
type Session struct {
	client Client
	cfg    model.AppConfig
	log    zerolog.Logger

	cache    *cache.MessageCache
	arbiter  *fetch.Arbiter
	prefetch *fetch.Prefetcher
	busy     *fetch.BusyCounter
	vendor   *extract.VendorExtractor

	filer   *archive.Filer
	history *store.SQLiteStore
	llm     *ollama.Client

	events chan Event

	mu          sync.Mutex
	summaries   []model.MessageSummary
	filter      string
	selected    uint32
	hasSelected bool
	current     *model.Message
	suggestions model.Suggestions
	connected   bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger attaches a structured logger.
func WithSessionLogger(log zerolog.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

// WithFiler attaches the archive filer used by Process.
func WithFiler(f *archive.Filer) SessionOption {
	return func(s *Session) { s.filer = f }
}

// WithHistory attaches the filing history store.
func WithHistory(h *store.SQLiteStore) SessionOption {
	return func(s *Session) { s.history = h }
}

// WithModel attaches the local LLM fallback.
func WithModel(c *ollama.Client) SessionOption {
	return func(s *Session) { s.llm = c }
}

// NewSession creates a session over client using cfg.
func NewSession(client Client, cfg model.AppConfig, opts ...SessionOption) *Session {
	s := &Session{
		client:      client,
		cfg:         cfg,
		log:         zerolog.Nop(),
		cache:       cache.New(cfg.CacheSize),
		arbiter:     fetch.NewArbiter(),
		prefetch:    fetch.NewPrefetcher(),
		vendor:      extract.NewVendorExtractor(cfg.VendorDenylist...),
		events:      make(chan Event, 64),
		suggestions: defaultSuggestions(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.busy = fetch.NewBusyCounter(func(busy bool) {
		s.emit(Event{Kind: EventBusy, Busy: busy})
	})
	return s
}

// Events returns the channel the session reports on. A single consumer
// must drain it.
func (s *Session) Events() <-chan Event {
	return s.events
}

// emit hands an event to the consumer without blocking the worker; a
// stalled consumer loses events rather than wedging the session.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn().Int("kind", int(ev.Kind)).Msg("event dropped")
	}
}

func (s *Session) setStatus(status string) {
	s.emit(Event{Kind: EventStatus, Status: status})
}

func defaultSuggestions() model.Suggestions {
	return model.Suggestions{Currency: "EUR"}
}

// Connected reports connection state.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Connect opens both sessions in the background and loads the inbox.
// A failing auxiliary session only disables prefetch.
func (s *Session) Connect(password string) {
	s.busy.Acquire()
	s.setStatus("Verbinde...")

	go func() {
		defer s.busy.Release()

		if err := s.client.Connect(password); err != nil {
			notice := "Verbindung fehlgeschlagen"
			if imapx.IsAuthError(err) {
				notice = "Anmeldung fehlgeschlagen, bitte Passwort prüfen"
			}
			s.emit(Event{Kind: EventNotice, Notice: notice, Err: err})
			s.setStatus("Nicht verbunden")
			return
		}

		if err := s.client.ConnectAuxiliary(password); err != nil {
			s.log.Warn().Err(err).Msg("prefetch disabled")
		}

		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()
		s.emit(Event{Kind: EventConnected, Connected: true})

		s.loadSummaries()
		s.setStatus("Bereit")
	}()
}

// Refresh reloads the inbox listing in the background.
func (s *Session) Refresh() {
	if !s.Connected() {
		return
	}
	s.busy.Acquire()
	s.setStatus("Lade E-Mails...")

	go func() {
		defer s.busy.Release()
		s.loadSummaries()
		s.setStatus("Bereit")
	}()
}

// loadSummaries lists, sorts, and publishes the inbox. Runs on a
// worker goroutine.
func (s *Session) loadSummaries() {
	list := s.client.ListMessages(s.cfg.IMAP.Inbox)
	model.SortSummaries(list)

	s.mu.Lock()
	s.summaries = list
	s.hasSelected = false
	s.current = nil
	s.suggestions = defaultSuggestions()
	filtered := model.FilterSummaries(list, s.filter)
	s.mu.Unlock()

	s.emit(Event{Kind: EventSummaries, Summaries: filtered})
}

// SetFilter narrows the published list to summaries whose sender or
// subject contains query.
func (s *Session) SetFilter(query string) {
	s.mu.Lock()
	s.filter = query
	filtered := model.FilterSummaries(s.summaries, s.filter)
	s.mu.Unlock()

	s.emit(Event{Kind: EventSummaries, Summaries: filtered})
}

// Summaries returns the current filtered listing.
func (s *Session) Summaries() []model.MessageSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.FilterSummaries(s.summaries, s.filter)
}

// Current returns the current full message and its suggestions.
func (s *Session) Current() (*model.Message, model.Suggestions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.suggestions
}

// Select makes uid the selected message. A cache hit publishes it
// immediately; a miss fetches on the primary session, guarded by a
// fetch token so a slower, superseded fetch never overwrites the
// message the user navigated to afterwards.
func (s *Session) Select(uid uint32) {
	folder := s.cfg.IMAP.Inbox

	s.mu.Lock()
	s.selected = uid
	s.hasSelected = true
	connected := s.connected
	s.mu.Unlock()

	if msg, ok := s.cache.Get(folder, uid); ok {
		s.publishCurrent(msg)
		s.setStatus("Bereit")
		return
	}

	if !connected {
		return
	}

	token := s.arbiter.Start()
	s.busy.Acquire()
	s.setStatus("Lade E-Mail...")

	go func() {
		defer s.busy.Release()

		msg, err := s.client.FetchMessage(folder, uid)
		if !s.arbiter.Complete(token) {
			// Superseded by a newer selection; drop silently.
			return
		}
		if err != nil {
			s.clearCurrent()
			s.emit(Event{Kind: EventCleared})
			s.setStatus("E-Mail konnte nicht geladen werden")
			return
		}

		s.cache.Put(folder, uid, msg)
		s.publishCurrent(msg)
		s.setStatus("Bereit")
	}()
}

// publishCurrent stores msg as the current message, derives
// suggestions, and emits the result.
func (s *Session) publishCurrent(msg *model.Message) {
	sug := s.suggest(msg)

	s.mu.Lock()
	s.current = msg
	s.suggestions = sug
	s.mu.Unlock()

	s.emit(Event{Kind: EventMessage, Message: msg, Suggestions: sug})
}

func (s *Session) clearCurrent() {
	s.mu.Lock()
	s.current = nil
	s.suggestions = defaultSuggestions()
	s.mu.Unlock()
}

// suggest derives the filing suggestions for msg.
func (s *Session) suggest(msg *model.Message) model.Suggestions {
	sug := defaultSuggestions()
	if msg == nil {
		return sug
	}

	sug.Date = msg.Date.Format("02.01.2006")
	sug.Description = s.vendor.FromMessage(msg.Sender, msg.Subject, nil)

	text := msg.BodyText
	if text == "" {
		text = extract.TextFromHTML(msg.BodyHTML)
	}
	if currency, amount, ok := extract.Amount(text); ok {
		sug.Currency = currency
		sug.Amount = amount
	}

	return sug
}

// PrefetchNext warms the cache for the message after the selected one
// in the filtered list, using the auxiliary session. Wrong guesses
// cost a wasted fetch, never correctness, so the result is inserted
// into the cache unconditionally even when superseded.
func (s *Session) PrefetchNext() {
	folder := s.cfg.IMAP.Inbox

	s.mu.Lock()
	uid, ok := s.nextUIDLocked()
	s.mu.Unlock()

	if !ok || s.cache.Contains(folder, uid) {
		return
	}
	if !s.client.HasAuxiliary() {
		return
	}
	if !s.prefetch.Start(uid) {
		return
	}

	go func() {
		msg, err := s.client.FetchMessageAux(folder, uid)
		s.prefetch.Complete(uid)
		if err != nil {
			s.log.Debug().Err(err).Uint32("uid", uid).Msg("prefetch failed")
			return
		}
		s.cache.Put(folder, msg.UID, msg)
	}()
}

// nextUIDLocked finds the uid following the selected message in the
// filtered list. Callers hold s.mu.
func (s *Session) nextUIDLocked() (uint32, bool) {
	if !s.hasSelected {
		return 0, false
	}
	filtered := model.FilterSummaries(s.summaries, s.filter)
	for i, summary := range filtered {
		if summary.UID == s.selected && i+1 < len(filtered) {
			return filtered[i+1].UID, true
		}
	}
	return 0, false
}

// Archive moves the current message to the archive folder without
// filing it, for mail that needs no receipt processing.
func (s *Session) Archive() {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil {
		return
	}

	s.PrefetchNext()
	s.busy.Acquire()
	s.setStatus("Archiviere...")

	go func() {
		defer s.busy.Release()

		err := s.client.MoveMessage(cur.UID, s.cfg.IMAP.Inbox, s.cfg.IMAP.Archive)
		if err != nil {
			s.emit(Event{
				Kind:   EventNotice,
				Notice: "E-Mail konnte nicht verschoben werden",
				Err:    err,
			})
			return
		}

		s.cache.Remove(s.cfg.IMAP.Inbox, cur.UID)
		s.clearCurrent()
		s.emit(Event{Kind: EventCleared})
		s.setStatus("E-Mail archiviert")
		s.loadSummaries()
	}()
}

// Process validates the confirmed fields, files the selected document
// into the archive tree, records the filing, and moves the message to
// the archive folder. Validation errors are returned synchronously so
// the caller can keep the form open.
func (s *Session) Process(req ProcessRequest) error {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil {
		return fmt.Errorf("no message selected")
	}
	if s.filer == nil {
		return fmt.Errorf("archive path not configured")
	}

	date, err := time.Parse("02.01.2006", req.Date)
	if err != nil {
		return fmt.Errorf("parsing date %q: %w", req.Date, err)
	}

	amount, ok := extract.NormalizeAmount(req.Amount)
	if !ok {
		return fmt.Errorf("invalid amount %q", req.Amount)
	}

	if req.Description == "" {
		return fmt.Errorf("description must not be empty")
	}

	category, ok := model.CategoryByKey(req.CategoryKey)
	if !ok {
		return fmt.Errorf("unknown category %q", req.CategoryKey)
	}

	currency := req.Currency
	if currency == "" {
		currency = "EUR"
	}

	var document []byte
	if req.AttachmentIndex >= 0 {
		if req.AttachmentIndex >= len(cur.Attachments) {
			return fmt.Errorf("attachment index %d out of range", req.AttachmentIndex)
		}
		document = cur.Attachments[req.AttachmentIndex].Data
	} else {
		document = req.Document
	}
	if len(document) == 0 {
		return fmt.Errorf("no document to file")
	}

	s.PrefetchNext()
	s.busy.Acquire()
	s.setStatus("Verarbeite...")

	go func() {
		defer s.busy.Release()

		path, err := s.filer.File(
			document, date, req.Description, category.Folder,
			category.CreditCard, currency, amount,
		)
		if err != nil {
			s.emit(Event{
				Kind:   EventNotice,
				Notice: "Beleg konnte nicht abgelegt werden",
				Err:    err,
			})
			return
		}

		if s.history != nil {
			filing := model.Filing{
				UID:          cur.UID,
				Folder:       s.cfg.IMAP.Inbox,
				MessageID:    cur.MessageID,
				Vendor:       req.Description,
				Date:         req.Date,
				Currency:     currency,
				Amount:       amount,
				Category:     category.Folder,
				ArchivedPath: path,
			}
			if err := s.history.RecordFiling(context.Background(), filing); err != nil {
				s.log.Warn().Err(err).Msg("recording filing failed")
			}
		}

		// The document is safely filed; a failed move leaves the mail
		// in the inbox for manual cleanup.
		if err := s.client.MoveMessage(cur.UID, s.cfg.IMAP.Inbox, s.cfg.IMAP.Archive); err != nil {
			s.log.Warn().Err(err).Uint32("uid", cur.UID).Msg("move after filing failed")
		}

		s.cache.Remove(s.cfg.IMAP.Inbox, cur.UID)
		s.clearCurrent()
		s.emit(Event{Kind: EventFiled, ArchivedPath: path})
		status := "Gespeichert: " + filepath.Base(path)
		if category.CreditCard {
			status = "Gespeichert (Folgemonat): " + filepath.Base(path)
		}
		s.setStatus(status)
		s.loadSummaries()
	}()

	return nil
}

// SuggestWithModel asks the local LLM to fill the suggestion fields
// from the current message text, overriding the heuristics where the
// model produced a value.
func (s *Session) SuggestWithModel(ctx context.Context) {
	if s.llm == nil {
		return
	}

	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil {
		return
	}

	text := cur.BodyText
	if text == "" {
		text = extract.TextFromHTML(cur.BodyHTML)
	}
	if text == "" {
		s.emit(Event{Kind: EventNotice, Notice: "Kein E-Mail-Text vorhanden"})
		return
	}

	s.busy.Acquire()
	s.setStatus("KI-Extraktion...")

	go func() {
		defer s.busy.Release()

		if !s.llm.Available(ctx) {
			s.emit(Event{Kind: EventNotice, Notice: "Ollama nicht verfügbar"})
			s.setStatus("Bereit")
			return
		}

		result := s.llm.Extract(ctx, text)
		if !result.HasData() {
			s.setStatus("Keine Daten erkannt")
			return
		}

		s.mu.Lock()
		if result.Vendor != "" {
			s.suggestions.Description = result.Vendor
		}
		if result.Amount != "" {
			if amount, ok := extract.NormalizeAmount(result.Amount); ok {
				s.suggestions.Amount = amount
			}
		}
		if result.Currency != "" {
			s.suggestions.Currency = result.Currency
		}
		if result.Date != "" {
			s.suggestions.Date = result.Date
		}
		sug := s.suggestions
		s.mu.Unlock()

		s.emit(Event{Kind: EventMessage, Message: cur, Suggestions: sug})
		s.setStatus("Bereit")
	}()
}

// ListFolders returns the folder names, for diagnostics.
func (s *Session) ListFolders() []string {
	return s.client.ListFolders()
}

// Disconnect tears down both sessions and resets all state. Any
// in-flight fetches complete into the void.
func (s *Session) Disconnect() {
	s.client.Disconnect()

	s.arbiter.Cancel()
	s.prefetch.Reset()
	s.cache.Clear()
	s.busy.Reset()

	s.mu.Lock()
	s.summaries = nil
	s.filter = ""
	s.hasSelected = false
	s.current = nil
	s.suggestions = defaultSuggestions()
	s.connected = false
	s.mu.Unlock()

	s.emit(Event{Kind: EventConnected, Connected: false})
	s.setStatus("Nicht verbunden")
}

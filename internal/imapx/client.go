// Package imapx implements the mailbox client: two long-lived IMAP
// sessions against the same account, a primary one for user-driven
// operations and an auxiliary one for background prefetch. The
// protocol is stateful per session (SELECT changes the cursor every
// subsequent command sees), so the sessions are kept strictly apart
// and the auxiliary one is serialized by a mutex.
package imapx

import (
	"fmt"
	"sort"
	"sync"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/kup/belegmail/internal/model"
)

// Client connects to one IMAP account. The zero value is not usable;
// create instances with NewClient.
type Client struct {
	host     string
	port     int
	username string
	log      zerolog.Logger

	primary *imapclient.Client

	auxMu     sync.Mutex
	aux       *imapclient.Client
	auxFolder string

	// folder currently selected on the primary session
	selected string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger attaches a structured logger. Without it the client is
// silent.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client for the given server. No connection is
// made until Connect.
func NewClient(host string, port int, username string, opts ...Option) *Client {
	c := &Client{
		host:     host,
		port:     port,
		username: username,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// addr returns the dial address.
func (c *Client) addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// dial opens and authenticates one session.
func (c *Client) dial(password string) (*imapclient.Client, error) {
	client, err := imapclient.DialTLS(c.addr(), nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.addr(), err)
	}

	if err := client.Login(c.username, password).Wait(); err != nil {
		_ = client.Logout().Wait()
		if isAuthFailure(err) {
			return nil, &AuthError{Account: c.username, Err: err}
		}
		return nil, fmt.Errorf("logging in %s: %w", c.username, err)
	}

	return client, nil
}

// Connect opens and authenticates the primary session. Calling it
// while connected is an error; Disconnect first.
func (c *Client) Connect(password string) error {
	if c.primary != nil {
		return fmt.Errorf("already connected to %s", c.addr())
	}

	client, err := c.dial(password)
	if err != nil {
		return err
	}

	c.primary = client
	c.selected = ""
	c.log.Info().Str("host", c.host).Str("user", c.username).
		Msg("primary session connected")
	return nil
}

// ConnectAuxiliary opens the second session used for prefetch. Failure
// leaves prefetch unavailable but does not affect the primary session.
func (c *Client) ConnectAuxiliary(password string) error {
	c.auxMu.Lock()
	defer c.auxMu.Unlock()

	if c.aux != nil {
		return nil
	}

	client, err := c.dial(password)
	if err != nil {
		c.log.Warn().Err(err).Msg("auxiliary session unavailable")
		return fmt.Errorf("connecting auxiliary session: %w", err)
	}

	c.aux = client
	c.auxFolder = ""
	c.log.Info().Str("host", c.host).Msg("auxiliary session connected")
	return nil
}

// Connected reports whether the primary session is up.
func (c *Client) Connected() bool {
	return c.primary != nil
}

// HasAuxiliary reports whether the prefetch session is up.
func (c *Client) HasAuxiliary() bool {
	c.auxMu.Lock()
	defer c.auxMu.Unlock()
	return c.aux != nil
}

// ListFolders returns the names of all folders, sorted. Used for
// diagnostics only, so any failure degrades to an empty list.
func (c *Client) ListFolders() []string {
	if c.primary == nil {
		return nil
	}

	mailboxes, err := c.primary.List("", "*", nil).Collect()
	if err != nil {
		c.log.Warn().Err(err).Msg("listing folders failed")
		return nil
	}

	names := make([]string, 0, len(mailboxes))
	for _, mbox := range mailboxes {
		names = append(names, mbox.Mailbox)
	}
	sort.Strings(names)
	return names
}

// ListMessages selects folder on the primary session and returns a
// summary per message, unsorted. A protocol or parse failure degrades
// to an empty list; a partial listing would be worse than none for
// this workflow.
func (c *Client) ListMessages(folder string) []model.MessageSummary {
	if c.primary == nil {
		return nil
	}

	if err := c.selectFolder(folder); err != nil {
		c.log.Warn().Err(err).Str("folder", folder).
			Msg("selecting folder failed")
		return nil
	}

	searchData, err := c.primary.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		c.log.Warn().Err(err).Str("folder", folder).Msg("search failed")
		return nil
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil
	}

	fetchOpts := &imap.FetchOptions{
		Envelope:      true,
		UID:           true,
		BodyStructure: &imap.FetchItemBodyStructure{},
	}

	fetchCmd := c.primary.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	defer fetchCmd.Close()

	var summaries []model.MessageSummary
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		summaries = append(summaries, summaryFromBuffer(buf))
	}

	if err := fetchCmd.Close(); err != nil {
		c.log.Warn().Err(err).Str("folder", folder).
			Msg("summary fetch failed")
		return nil
	}

	return summaries
}

// FetchMessage retrieves and parses the full message uid from folder
// on the primary session.
func (c *Client) FetchMessage(folder string, uid uint32) (*model.Message, error) {
	if c.primary == nil {
		return nil, fmt.Errorf("not connected")
	}
	if err := c.selectFolder(folder); err != nil {
		return nil, err
	}
	return fetchFullMessage(c.primary, uid)
}

// FetchMessageAux retrieves a message on the auxiliary session. A
// mutex serializes callers, two concurrent prefetches must not
// interleave commands on the same session.
func (c *Client) FetchMessageAux(folder string, uid uint32) (*model.Message, error) {
	c.auxMu.Lock()
	defer c.auxMu.Unlock()

	if c.aux == nil {
		return nil, fmt.Errorf("auxiliary session not connected")
	}

	if c.auxFolder != folder {
		if _, err := c.aux.Select(folder, nil).Wait(); err != nil {
			return nil, fmt.Errorf("selecting folder %s: %w", folder, err)
		}
		c.auxFolder = folder
	}

	return fetchFullMessage(c.aux, uid)
}

// MoveMessage moves uid from source to target as copy, mark deleted,
// expunge. All three steps must succeed; a mid-sequence failure leaves
// whatever intermediate state the server ended up in, the caller may
// retry the whole operation at the cost of a duplicate copy.
func (c *Client) MoveMessage(uid uint32, source, target string) error {
	if c.primary == nil {
		return fmt.Errorf("not connected")
	}
	if err := c.selectFolder(source); err != nil {
		return err
	}

	uidSet := imap.UIDSetNum(imap.UID(uid))

	if _, err := c.primary.Copy(uidSet, target).Wait(); err != nil {
		return fmt.Errorf("copying message %d to %s: %w", uid, target, err)
	}

	storeCmd := c.primary.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking message %d deleted: %w", uid, err)
	}

	if _, err := c.primary.Expunge().Collect(); err != nil {
		return fmt.Errorf("expunging %s: %w", source, err)
	}

	c.log.Info().Uint32("uid", uid).Str("from", source).Str("to", target).
		Msg("message moved")
	return nil
}

// Disconnect logs out both sessions, best effort, and clears the
// handles so Connect may be called again.
func (c *Client) Disconnect() {
	if c.primary != nil {
		_ = c.primary.Logout().Wait()
		c.primary = nil
		c.selected = ""
	}

	c.auxMu.Lock()
	if c.aux != nil {
		_ = c.aux.Logout().Wait()
		c.aux = nil
		c.auxFolder = ""
	}
	c.auxMu.Unlock()

	c.log.Info().Msg("disconnected")
}

// selectFolder issues SELECT on the primary session unless folder is
// already selected.
func (c *Client) selectFolder(folder string) error {
	if c.selected == folder {
		return nil
	}
	if _, err := c.primary.Select(folder, nil).Wait(); err != nil {
		return fmt.Errorf("selecting folder %s: %w", folder, err)
	}
	c.selected = folder
	return nil
}

// fetchFullMessage fetches envelope plus whole body for uid on an
// already selected session and parses it.
func fetchFullMessage(client *imapclient.Client, uid uint32) (*model.Message, error) {
	bodySection := &imap.FetchItemBodySection{Peek: true}

	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(imap.UID(uid)), fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message %d: %w", uid, err)
	}

	parsed := messageFromBuffer(buf)

	if raw := buf.FindBodySection(bodySection); raw != nil {
		text, html, attachments := parseMIMEBody(raw)
		parsed.BodyText = text
		parsed.BodyHTML = html
		parsed.Attachments = attachments
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("closing fetch for %d: %w", uid, err)
	}

	return parsed, nil
}

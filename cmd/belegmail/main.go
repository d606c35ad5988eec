package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kup/belegmail/internal/archive"
	"github.com/kup/belegmail/internal/credential"
	"github.com/kup/belegmail/internal/imapx"
	"github.com/kup/belegmail/internal/model"
	"github.com/kup/belegmail/internal/ollama"
	"github.com/kup/belegmail/internal/store"
	"github.com/kup/belegmail/internal/workflow"
)

const opTimeout = 2 * time.Minute

func main() {
	var (
		configPath  = flag.String("config", "", "Config file path (default ~/.config/belegmail/config.yaml)")
		setPassword = flag.Bool("set-password", false, "Store the mailbox password in the system keyring")
		folders     = flag.Bool("folders", false, "List mailbox folders")
		list        = flag.Bool("list", false, "List inbox messages")
		show        = flag.Uint("show", 0, "Show message by UID with filing suggestions")
		archiveUID  = flag.Uint("archive", 0, "Move message by UID to the archive folder without filing")
		processUID  = flag.Uint("process", 0, "File message by UID into the archive")
		useModel    = flag.Bool("ai", false, "Refine suggestions with the local LLM")
		date        = flag.String("date", "", "Filing date (DD.MM.YYYY, default: suggestion)")
		desc        = flag.String("desc", "", "Filing description (default: suggestion)")
		amount      = flag.String("amount", "", "Filing amount (default: suggestion)")
		currency    = flag.String("currency", "", "Filing currency (default: suggestion)")
		category    = flag.String("category", "2", "Category key (1=Kassa 2=ER 3=ER-KKJK 4=ER-KKCB)")
		attachment  = flag.Int("attachment", 0, "Attachment index to file")
		verbose     = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().Level(zerolog.WarnLevel)
	if *verbose {
		logger = logger.Level(zerolog.DebugLevel)
	}

	path := *configPath
	if path == "" {
		path = model.DefaultConfigPath()
	}
	cfg, err := model.LoadConfig(path)
	if err != nil {
		fatal("loading config: %v", err)
	}
	if !cfg.IsEmailConfigured() {
		fatal("mailbox not configured, edit %s", path)
	}

	if *setPassword {
		if err := storePassword(cfg.IMAP.Username); err != nil {
			fatal("%v", err)
		}
		return
	}

	if !*folders && !*list && *show == 0 && *archiveUID == 0 && *processUID == 0 {
		flag.Usage()
		os.Exit(2)
	}

	password, err := credential.Get(cfg.IMAP.Username)
	if err != nil {
		if credential.IsNotFound(err) {
			fatal("no password stored for %s, run with -set-password first", cfg.IMAP.Username)
		}
		fatal("reading password: %v", err)
	}

	session := buildSession(cfg, logger)
	defer session.Disconnect()

	session.Connect(password)
	ev, err := await(session, workflow.EventSummaries)
	if err != nil {
		fatal("connecting: %v", err)
	}

	switch {
	case *folders:
		for _, name := range session.ListFolders() {
			fmt.Println(name)
		}

	case *list:
		printSummaries(ev.Summaries)

	case *show != 0:
		msg, sug, err := selectMessage(session, uint32(*show), *useModel)
		if err != nil {
			fatal("%v", err)
		}
		printMessage(msg, sug)

	case *archiveUID != 0:
		if _, _, err := selectMessage(session, uint32(*archiveUID), false); err != nil {
			fatal("%v", err)
		}
		session.Archive()
		if _, err := await(session, workflow.EventCleared); err != nil {
			fatal("archiving: %v", err)
		}
		fmt.Println("archiviert")

	case *processUID != 0:
		_, sug, err := selectMessage(session, uint32(*processUID), *useModel)
		if err != nil {
			fatal("%v", err)
		}

		req := workflow.ProcessRequest{
			Date:            orDefault(*date, sug.Date),
			Description:     orDefault(*desc, sug.Description),
			Currency:        orDefault(*currency, sug.Currency),
			Amount:          orDefault(*amount, sug.Amount),
			CategoryKey:     *category,
			AttachmentIndex: *attachment,
		}
		if err := session.Process(req); err != nil {
			fatal("%v", err)
		}
		filed, err := await(session, workflow.EventFiled)
		if err != nil {
			fatal("filing: %v", err)
		}
		fmt.Println(filed.ArchivedPath)
	}
}

// buildSession wires the session with filer, history, and optional LLM.
func buildSession(cfg *model.AppConfig, logger zerolog.Logger) *workflow.Session {
	client := imapx.NewClient(
		cfg.IMAP.Host, cfg.IMAP.Port, cfg.IMAP.Username,
		imapx.WithLogger(logger),
	)

	opts := []workflow.SessionOption{
		workflow.WithSessionLogger(logger),
	}

	if cfg.ArchivePath != "" {
		opts = append(opts, workflow.WithFiler(archive.NewFiler(cfg.ArchivePath)))
	}

	historyPath := filepath.Join(filepath.Dir(model.DefaultConfigPath()), "history.db")
	if history, err := store.NewSQLiteStore(historyPath); err != nil {
		logger.Warn().Err(err).Msg("filing history unavailable")
	} else {
		opts = append(opts, workflow.WithHistory(history))
	}

	if cfg.Ollama.Enabled {
		opts = append(opts, workflow.WithModel(ollama.NewClient(
			cfg.Ollama.Host, cfg.Ollama.Model,
			time.Duration(cfg.Ollama.TimeoutSec)*time.Second,
		)))
	}

	return workflow.NewSession(client, *cfg, opts...)
}

// await pumps session events until one of the wanted kind arrives,
// echoing status lines and turning notices into errors.
func await(s *workflow.Session, kind workflow.EventKind) (workflow.Event, error) {
	deadline := time.After(opTimeout)
	for {
		select {
		case ev := <-s.Events():
			if ev.Kind == kind {
				return ev, nil
			}
			switch ev.Kind {
			case workflow.EventStatus:
				fmt.Fprintln(os.Stderr, ev.Status)
			case workflow.EventNotice:
				if ev.Err != nil {
					return workflow.Event{}, fmt.Errorf("%s: %w", ev.Notice, ev.Err)
				}
				return workflow.Event{}, fmt.Errorf("%s", ev.Notice)
			}
		case <-deadline:
			return workflow.Event{}, fmt.Errorf("timed out")
		}
	}
}

// selectMessage selects uid and waits for the full message, optionally
// refining the suggestions with the local LLM first.
func selectMessage(s *workflow.Session, uid uint32, useModel bool) (*model.Message, model.Suggestions, error) {
	s.Select(uid)
	ev, err := await(s, workflow.EventMessage)
	if err != nil {
		return nil, model.Suggestions{}, fmt.Errorf("loading message %d: %w", uid, err)
	}

	if useModel {
		s.SuggestWithModel(context.Background())
		if refined, err := await(s, workflow.EventMessage); err == nil {
			return refined.Message, refined.Suggestions, nil
		}
	}

	return ev.Message, ev.Suggestions, nil
}

func printSummaries(summaries []model.MessageSummary) {
	for _, s := range summaries {
		marker := " "
		if s.HasAttachments {
			marker = "A"
		}
		fmt.Printf("%6d  %s  %s  %-30.30s  %s\n",
			s.UID, s.Date.Format("02.01.2006 15:04"), marker, s.Sender, s.Subject)
	}
}

func printMessage(msg *model.Message, sug model.Suggestions) {
	fmt.Printf("UID:      %d\n", msg.UID)
	fmt.Printf("Von:      %s\n", msg.Sender)
	fmt.Printf("Betreff:  %s\n", msg.Subject)
	fmt.Printf("Datum:    %s\n", msg.Date.Format("02.01.2006 15:04"))
	for i, att := range msg.Attachments {
		fmt.Printf("Anhang %d: %s (%s, %d Bytes)\n", i, att.Filename, att.ContentType, att.Size)
	}
	fmt.Println()
	fmt.Printf("Vorschlag Datum:        %s\n", sug.Date)
	fmt.Printf("Vorschlag Beschreibung: %s\n", sug.Description)
	fmt.Printf("Vorschlag Betrag:       %s %s\n", sug.Currency, sug.Amount)
}

// storePassword prompts on stdin and writes to the keyring.
func storePassword(account string) error {
	fmt.Printf("Passwort für %s: ", account)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimSpace(line)
	if password == "" {
		return fmt.Errorf("empty password")
	}
	if err := credential.Set(account, password); err != nil {
		return err
	}
	fmt.Println("gespeichert")
	return nil
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

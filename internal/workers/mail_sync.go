package workers

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"logistics-recon/internal/config"
	"logistics-recon/internal/database"
	"logistics-recon/internal/mail"
	"logistics-recon/internal/matcher"
	"logistics-recon/internal/mimeutil"
	"logistics-recon/internal/parser"
)

// Clamping bounds for one sync run.
const (
	maxSinceDays    = 365
	maxLimit        = 200
	defaultLimit    = 50
	previewMaxChars = 200
)

// ConfigError means the mailbox or backing store is not set up for
// ingestion. It fails the run before any connection is opened.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "mail sync not configured: " + e.Reason
}

// SessionOpener opens a mailbox session for one run. Injected so tests can
// substitute a fake mailbox.
type SessionOpener func() (mail.Session, error)

// SyncItem is the per-message detail recorded in a report.
type SyncItem struct {
	UID             uint32 `json:"uid"`
	MessageID       string `json:"message_id,omitempty"`
	Subject         string `json:"subject,omitempty"`
	Outcome         string `json:"outcome"`
	Mode            string `json:"mode,omitempty"`
	SupplierOrderID int    `json:"supplier_order_id,omitempty"`
}

// SyncReport summarizes one ingestion run. It is always best-effort: some
// messages may have failed (see Errors) while the rest were processed.
type SyncReport struct {
	RunID           string     `json:"run_id"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      time.Time  `json:"finished_at"`
	SinceDays       int        `json:"since_days"`
	Limit           int        `json:"limit"`
	Scanned         int        `json:"scanned"`
	Created         int        `json:"created"`
	Matched         int        `json:"matched"`
	MatchedExisting int        `json:"matched_existing"`
	MatchedAuto     int        `json:"matched_auto"`
	Unmatched       int        `json:"unmatched"`
	Ambiguous       int        `json:"ambiguous"`
	SkippedExisting int        `json:"skipped_existing"`
	Ignored         int        `json:"ignored"`
	Errors          []string   `json:"errors,omitempty"`
	Items           []SyncItem `json:"items,omitempty"`
}

// MailSyncEngine pulls supplier notification emails from the mailbox,
// persists them as mail events and reconciles them against open supplier
// orders. Messages are processed strictly one at a time within a run so
// two messages can never race an update to the same order.
type MailSyncEngine struct {
	cfg         *config.Config
	db          *database.DB
	openSession SessionOpener
	extractor   *parser.FactExtractor
	matcher     *matcher.Matcher
	dryRun      bool
}

// NewMailSyncEngine creates an engine using a real IMAP session per run.
func NewMailSyncEngine(cfg *config.Config, db *database.DB) *MailSyncEngine {
	opener := func() (mail.Session, error) {
		return mail.Connect(mail.SessionConfig{
			Host:       cfg.MailHost,
			Port:       cfg.MailPort,
			Encryption: cfg.MailEncryption,
			Username:   cfg.MailUsername,
			Password:   cfg.MailPassword,
			Folder:     cfg.MailFolder,
		})
	}
	return NewMailSyncEngineWithOpener(cfg, db, opener)
}

// NewMailSyncEngineWithOpener creates an engine with a custom session
// opener.
func NewMailSyncEngineWithOpener(cfg *config.Config, db *database.DB, opener SessionOpener) *MailSyncEngine {
	return &MailSyncEngine{
		cfg:         cfg,
		db:          db,
		openSession: opener,
		extractor:   parser.NewFactExtractor(),
		matcher:     matcher.New(db.SupplierOrders, cfg.MailAutoLink),
	}
}

// SetDryRun makes runs extract and report facts without writing events or
// touching orders.
func (e *MailSyncEngine) SetDryRun(dryRun bool) {
	e.dryRun = dryRun
}

// Sync runs one ingestion pass over the trailing time window. sinceDays
// and limit are clamped; zero values take the configured defaults. A
// configuration or connection failure aborts the run; a failure on one
// message is recorded and processing continues.
func (e *MailSyncEngine) Sync(sinceDays, limit int) (*SyncReport, error) {
	if !e.cfg.MailboxConfigured() {
		return nil, &ConfigError{Reason: "mailbox credentials missing"}
	}
	if err := e.db.HasRequiredTables(); err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}

	sinceDays = clamp(sinceDays, e.cfg.MailSinceDays, 1, maxSinceDays)
	limit = clamp(limit, defaultLimit, 1, maxLimit)

	report := &SyncReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		SinceDays: sinceDays,
		Limit:     limit,
	}

	session, err := e.openSession()
	if err != nil {
		return nil, err
	}
	// The session must be released on every exit path, including a panic
	// inside message processing.
	defer session.Close()

	since := time.Now().AddDate(0, 0, -sinceDays)
	uids, err := session.SearchSince(since)
	if err != nil {
		return nil, err
	}

	// Newest first. Ordering only shapes the report; correctness rests on
	// the message-id idempotency key.
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	if len(uids) > limit {
		uids = uids[:limit]
	}

	log.Printf("mail sync %s: %d candidate messages (since %s)", report.RunID, len(uids), since.Format("2006-01-02"))

	seen := make(map[string]bool, len(uids))
	for _, uid := range uids {
		report.Scanned++
		if err := e.processMessage(session, uid, report, seen); err != nil {
			log.Printf("mail sync %s: message %d failed: %v", report.RunID, uid, err)
			report.Errors = append(report.Errors, fmt.Sprintf("message %d: %v", uid, err))
		}
	}

	// Unmatched events from earlier runs whose messages fell out of the scan
	// (expired, deleted or moved) still get a reconciliation retry.
	if !e.dryRun {
		e.retryUnmatchedBacklog(report, since, seen)
	}

	report.FinishedAt = time.Now()
	return report, nil
}

// retryUnmatchedBacklog reruns the matcher for stored unmatched events not
// touched by the message loop. Best-effort: a failure here never fails the
// run.
func (e *MailSyncEngine) retryUnmatchedBacklog(report *SyncReport, since time.Time, seen map[string]bool) {
	events, err := e.db.MailEvents.GetUnmatchedSince(e.cfg.MailSupplier, since)
	if err != nil {
		log.Printf("mail sync %s: backlog load failed: %v", report.RunID, err)
		report.Errors = append(report.Errors, fmt.Sprintf("backlog: %v", err))
		return
	}

	for i := range events {
		event := &events[i]
		if seen[event.MessageID] {
			continue
		}
		if err := e.reconcile(event, 0, report, true); err != nil {
			log.Printf("mail sync %s: backlog event %s failed: %v", report.RunID, event.MessageID, err)
			report.Errors = append(report.Errors, fmt.Sprintf("event %s: %v", event.MessageID, err))
		}
	}
}

// processMessage handles one candidate message end to end.
func (e *MailSyncEngine) processMessage(session mail.Session, uid uint32, report *SyncReport, seen map[string]bool) error {
	envelope, err := session.FetchEnvelope(uid)
	if err != nil {
		return err
	}

	// The protocol-level Message-ID is the idempotency key. Some malformed
	// messages come without one; the mailbox UID keeps them idempotent
	// within this mailbox.
	messageID := strings.TrimSpace(envelope.MessageID)
	if messageID == "" {
		messageID = fmt.Sprintf("uid:%s:%d", session.Folder(), uid)
	}
	seen[messageID] = true

	existing, err := e.db.MailEvents.GetByMessageID(messageID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if existing != nil {
		return e.rematchExisting(existing, uid, report)
	}

	subject := mimeutil.DecodeHeader(envelope.Subject)
	from := mimeutil.DecodeHeader(envelope.From)

	if !e.looksLikeSupplierNotification(subject, from) {
		report.Ignored++
		report.Items = append(report.Items, SyncItem{UID: uid, MessageID: messageID, Subject: subject, Outcome: "ignored"})
		return nil
	}

	body, err := e.fetchBestBody(session, uid)
	if err != nil {
		return err
	}

	facts := e.extractor.Extract(subject + " " + body)
	if facts.Empty() {
		// Nothing to reconcile with: do not persist noise.
		report.Ignored++
		report.Items = append(report.Items, SyncItem{UID: uid, MessageID: messageID, Subject: subject, Outcome: "ignored"})
		return nil
	}

	if e.dryRun {
		log.Printf("dry run: message %s order=%q carrier=%q tracking=%q",
			messageID, facts.OrderNumber, facts.Carrier, facts.TrackingNumber)
		report.Items = append(report.Items, SyncItem{UID: uid, MessageID: messageID, Subject: subject, Outcome: "dry_run"})
		return nil
	}

	receivedAt := envelope.Date
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	event := &database.SupplierMailEvent{
		Supplier:       e.cfg.MailSupplier,
		MessageID:      messageID,
		ReceivedAt:     receivedAt,
		FromAddress:    from,
		Subject:        subject,
		OrderNumber:    facts.OrderNumber,
		Carrier:        facts.Carrier,
		TrackingNumber: facts.TrackingNumber,
		Preview:        buildPreview(subject, from, body),
	}

	created, err := e.db.MailEvents.Create(event)
	if err != nil {
		return err
	}
	if !created {
		// A concurrent run inserted the same message between our lookup
		// and the insert.
		return e.rematchExisting(event, uid, report)
	}
	report.Created++

	return e.reconcile(event, uid, report, false)
}

// rematchExisting retries reconciliation for a previously seen event that
// is still unmatched.
func (e *MailSyncEngine) rematchExisting(event *database.SupplierMailEvent, uid uint32, report *SyncReport) error {
	report.SkippedExisting++
	if event.Matched() || e.dryRun {
		report.Items = append(report.Items, SyncItem{UID: uid, MessageID: event.MessageID, Subject: event.Subject, Outcome: "skipped_existing"})
		return nil
	}
	return e.reconcile(event, uid, report, true)
}

// reconcile runs the matcher for an event and records the outcome.
func (e *MailSyncEngine) reconcile(event *database.SupplierMailEvent, uid uint32, report *SyncReport, existing bool) error {
	result, err := e.matcher.Match(event)
	if err != nil {
		return err
	}

	item := SyncItem{UID: uid, MessageID: event.MessageID, Subject: event.Subject}

	switch {
	case result.Matched:
		if err := e.db.MailEvents.AttachMatch(event.ID, result.SupplierOrderID, result.RetailOrderID); err != nil {
			return err
		}
		if existing {
			report.MatchedExisting++
			item.Outcome = "matched_existing"
		} else {
			report.Matched++
			item.Outcome = "matched"
		}
		if result.Mode == matcher.ModeAuto {
			report.MatchedAuto++
		}
		item.Mode = result.Mode
		item.SupplierOrderID = result.SupplierOrderID
	case result.Ambiguous:
		report.Ambiguous++
		item.Outcome = "ambiguous"
	default:
		report.Unmatched++
		item.Outcome = "unmatched"
	}

	report.Items = append(report.Items, item)
	return nil
}

// looksLikeSupplierNotification filters out unrelated mail before any body
// fetch: the configured marker substring, an order-notification phrase, or
// the supplier's bare name must show up in the sender or subject.
func (e *MailSyncEngine) looksLikeSupplierNotification(subject, from string) bool {
	haystack := strings.ToLower(subject + " " + from)

	if marker := strings.ToLower(e.cfg.MailSenderMarker); marker != "" {
		if strings.Contains(haystack, marker) {
			return true
		}
	}

	if parser.MatchesOrderPhrase(subject) {
		return true
	}

	supplier := strings.ToLower(e.cfg.MailSupplier)
	return supplier != "" && strings.Contains(haystack, supplier)
}

// fetchBestBody picks and decodes the most useful body part: text/plain
// first, then text/html, then the first leaf; messages without enumerable
// parts fall back to the whole body.
func (e *MailSyncEngine) fetchBestBody(session mail.Session, uid uint32) (string, error) {
	structure, err := session.FetchStructure(uid)
	if err == nil {
		if part := mail.SelectBestPart(structure); part != nil {
			raw, err := session.FetchPart(uid, part.PathString())
			if err != nil {
				return "", err
			}
			decoded := mimeutil.DecodeBody(string(raw), part.Encoding)
			return mimeutil.Normalize(decoded, part.IsText("html")), nil
		}
	}

	raw, err := session.FetchRawBody(uid)
	if err != nil {
		return "", err
	}
	return mimeutil.Normalize(string(raw), false), nil
}

// buildPreview assembles the bounded human-readable event preview.
func buildPreview(subject, from, body string) string {
	preview := subject + " | " + from + " | " + body
	if len(preview) > previewMaxChars {
		preview = preview[:previewMaxChars]
	}
	return strings.TrimSpace(preview)
}

// clamp applies the default for non-positive values and bounds the result.
func clamp(value, fallback, min, max int) int {
	if value <= 0 {
		value = fallback
	}
	if value < min {
		value = min
	}
	if value > max {
		value = max
	}
	return value
}

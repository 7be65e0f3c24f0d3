package mail

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// ConnectionError represents a mailbox connection or fetch failure. It is
// fatal for the sync run that hits it; retry policy belongs to the caller.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return "mailbox " + e.Op + ": " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Envelope holds the header fields the ingestion engine needs from one
// message.
type Envelope struct {
	Subject   string
	From      string
	Date      time.Time
	MessageID string
}

// Session is the capability set the ingestion engine needs from a mailbox.
// All blocking calls carry the connection timeout configured at dial time;
// a timeout surfaces as the same ConnectionError as an unreachable host.
type Session interface {
	SearchSince(since time.Time) ([]uint32, error)
	FetchEnvelope(uid uint32) (*Envelope, error)
	FetchStructure(uid uint32) (*Part, error)
	FetchPart(uid uint32, path string) ([]byte, error)
	FetchRawBody(uid uint32) ([]byte, error)
	Folder() string
	Close() error
}

// SessionConfig holds the connection parameters for one mailbox.
type SessionConfig struct {
	Host       string
	Port       int
	Encryption string // "ssl", "tls" or "none"
	Username   string
	Password   string
	Folder     string
	Timeout    time.Duration
}

// IMAPSession implements Session over a stateful IMAP connection.
type IMAPSession struct {
	client *client.Client
	folder string
}

// Connect dials the mailbox, authenticates and selects the folder read-only.
func Connect(cfg SessionConfig) (*IMAPSession, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	dialer := &net.Dialer{Timeout: timeout}

	var c *client.Client
	var err error
	switch cfg.Encryption {
	case "ssl":
		c, err = client.DialWithDialerTLS(dialer, addr, nil)
	default:
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, &ConnectionError{Op: "connect", Err: err}
	}

	c.Timeout = timeout

	if cfg.Encryption == "tls" {
		if err := c.StartTLS(nil); err != nil {
			c.Logout()
			return nil, &ConnectionError{Op: "starttls", Err: err}
		}
	}

	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		c.Logout()
		return nil, &ConnectionError{Op: "login", Err: err}
	}

	folder := cfg.Folder
	if folder == "" {
		folder = "INBOX"
	}

	if _, err := c.Select(folder, true); err != nil {
		c.Logout()
		return nil, &ConnectionError{Op: "select", Err: err}
	}

	return &IMAPSession{client: c, folder: folder}, nil
}

// Folder returns the selected mailbox folder name.
func (s *IMAPSession) Folder() string {
	return s.folder
}

// SearchSince returns the UIDs of messages received since the given date.
func (s *IMAPSession) SearchSince(since time.Time) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Since = since

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, &ConnectionError{Op: "search", Err: err}
	}

	return uids, nil
}

// fetchOne fetches a single message with the given items.
func (s *IMAPSession) fetchOne(uid uint32, items []imap.FetchItem) (*imap.Message, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	messages := make(chan *imap.Message, 1)
	if err := s.client.UidFetch(seqset, items, messages); err != nil {
		return nil, &ConnectionError{Op: "fetch", Err: err}
	}

	msg := <-messages
	if msg == nil {
		return nil, &ConnectionError{Op: "fetch", Err: fmt.Errorf("message %d not found", uid)}
	}

	return msg, nil
}

// FetchEnvelope retrieves subject/from/date/message-id for one message.
// Header values are returned raw; decoding belongs to the caller.
func (s *IMAPSession) FetchEnvelope(uid uint32) (*Envelope, error) {
	msg, err := s.fetchOne(uid, []imap.FetchItem{imap.FetchEnvelope})
	if err != nil {
		return nil, err
	}

	env := &Envelope{}
	if msg.Envelope != nil {
		env.Subject = msg.Envelope.Subject
		env.Date = msg.Envelope.Date
		env.MessageID = msg.Envelope.MessageId
		if len(msg.Envelope.From) > 0 {
			env.From = msg.Envelope.From[0].Address()
		}
	}

	return env, nil
}

// FetchStructure retrieves the MIME structure of one message as a typed
// part tree.
func (s *IMAPSession) FetchStructure(uid uint32) (*Part, error) {
	msg, err := s.fetchOne(uid, []imap.FetchItem{imap.FetchBodyStructure})
	if err != nil {
		return nil, err
	}

	if msg.BodyStructure == nil {
		return nil, &ConnectionError{Op: "fetch", Err: fmt.Errorf("message %d has no body structure", uid)}
	}

	return buildPartTree(msg.BodyStructure, nil), nil
}

// FetchPart retrieves the raw (still transfer-encoded) bytes of one body
// part identified by its dot-separated path, e.g. "1.2".
func (s *IMAPSession) FetchPart(uid uint32, path string) ([]byte, error) {
	partPath, err := parsePartPath(path)
	if err != nil {
		return nil, &ConnectionError{Op: "fetch", Err: err}
	}

	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Path: partPath},
		Peek:         true,
	}

	msg, err := s.fetchOne(uid, []imap.FetchItem{section.FetchItem()})
	if err != nil {
		return nil, err
	}

	body := msg.GetBody(section)
	if body == nil {
		return nil, &ConnectionError{Op: "fetch", Err: fmt.Errorf("part %s of message %d not returned", path, uid)}
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &ConnectionError{Op: "fetch", Err: err}
	}

	return data, nil
}

// FetchRawBody retrieves the whole message text. Last-resort fallback for
// messages whose structure cannot be enumerated.
func (s *IMAPSession) FetchRawBody(uid uint32) ([]byte, error) {
	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.TextSpecifier},
		Peek:         true,
	}

	msg, err := s.fetchOne(uid, []imap.FetchItem{section.FetchItem()})
	if err != nil {
		return nil, err
	}

	body := msg.GetBody(section)
	if body == nil {
		return nil, &ConnectionError{Op: "fetch", Err: fmt.Errorf("body of message %d not returned", uid)}
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &ConnectionError{Op: "fetch", Err: err}
	}

	return data, nil
}

// Close logs out of the mailbox session.
func (s *IMAPSession) Close() error {
	return s.client.Logout()
}

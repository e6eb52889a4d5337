package mbox

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"regexp"
	"strings"
	"time"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/k3a/html2text"
	"lukechampine.com/blake3"

	"github.com/dhcgn/mbox-curator/model"
)

var ErrEmptyMessage = errors.New("mbox message is empty")

// ParseError marks a malformed entry. The parser keeps going after one.
type ParseError struct {
	Source string
	Index  int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: message %d: %v", e.Source, e.Index, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type Options struct {
	// HTMLFallback converts a text/html part to plain text when a message
	// has no text/plain part. When false such messages get an empty body.
	HTMLFallback bool
}

// Parser decodes one mbox file into records, one per call to Next.
type Parser struct {
	source string
	reader *mboxlib.Reader
	closer io.Closer
	opts   Options
	logger *slog.Logger
	index  int
}

// Open starts parsing the mbox file at path.
func Open(path string, opts Options, logger *slog.Logger) (*Parser, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	p := NewParser(file, path, opts, logger)
	p.closer = file
	return p, nil
}

// NewParser parses an mbox stream. source names the stream in errors.
func NewParser(r io.Reader, source string, opts Options, logger *slog.Logger) *Parser {
	return &Parser{
		source: source,
		reader: mboxlib.NewReader(r),
		opts:   opts,
		logger: logger,
	}
}

// Next returns the next record. A malformed entry is returned as an envelope
// whose Err is a *ParseError. io.EOF signals the end of the file; any other
// error means the file itself cannot be read any further.
func (p *Parser) Next() (model.Envelope, error) {
	msgReader, err := p.reader.NextMessage()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return model.Envelope{}, io.EOF
		}
		return model.Envelope{}, fmt.Errorf("message %d: %w", p.index, err)
	}

	idx := p.index
	p.index++

	raw, err := io.ReadAll(msgReader)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("message %d read: %w", idx, err)
	}

	rec, err := parseRecord(raw, p.opts)
	if err != nil {
		perr := &ParseError{Source: p.source, Index: idx, Err: err}
		if p.logger != nil {
			p.logger.Debug("skipping malformed message", "path", p.source, "index", idx, "err", err)
		}
		return model.Envelope{Err: perr}, nil
	}
	rec.Index = idx

	return model.Envelope{Record: rec}, nil
}

// Close releases the underlying file, if the parser opened one.
func (p *Parser) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

func parseRecord(raw []byte, opts Options) (model.MailRecord, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return model.MailRecord{}, ErrEmptyMessage
	}

	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil {
		return model.MailRecord{}, fmt.Errorf("read message: %w", err)
	}

	h := mail.Header{Header: entity.Header}

	id, err := h.MessageID()
	if err != nil || id == "" {
		id = strings.Trim(h.Get("Message-Id"), " \t<>")
	}
	if id == "" {
		id = syntheticID(raw)
	}

	subject, err := h.Subject()
	if err != nil {
		subject = h.Get("Subject")
	}
	subject = strings.TrimSpace(subject)

	var inReplyTo string
	if irt := msgIDList(h, "In-Reply-To"); len(irt) > 0 {
		inReplyTo = irt[0]
	}

	var timestamp time.Time
	if h.Get("Date") != "" {
		if t, err := h.Date(); err == nil {
			timestamp = t
		}
	}

	body, err := extractText(entity, opts.HTMLFallback)
	if err != nil {
		return model.MailRecord{}, err
	}

	return model.MailRecord{
		ID:                id,
		InReplyTo:         inReplyTo,
		References:        msgIDList(h, "References"),
		Subject:           subject,
		NormalizedSubject: NormalizeSubject(subject),
		Author:            author(h),
		Timestamp:         timestamp,
		Body:              body,
	}, nil
}

// syntheticID derives a stable id for a message without Message-ID, so the
// same bytes always land on the same id.
func syntheticID(raw []byte) string {
	sum := blake3.Sum256(raw)
	return "synthetic-" + hex.EncodeToString(sum[:12])
}

var msgIDPattern = regexp.MustCompile(`<([^<>\s]+)>`)

// msgIDList parses In-Reply-To and References. Headers that do not conform
// to RFC 5322 are scanned greedily for anything in angle brackets.
func msgIDList(h mail.Header, key string) []string {
	value := h.Get(key)
	if strings.TrimSpace(value) == "" {
		return nil
	}
	if ids, err := h.MsgIDList(key); err == nil && len(ids) > 0 {
		return ids
	}

	var ids []string
	for _, m := range msgIDPattern.FindAllStringSubmatch(value, -1) {
		ids = append(ids, m[1])
	}
	return ids
}

func author(h mail.Header) string {
	addrs, err := h.AddressList("From")
	if err != nil || len(addrs) == 0 {
		return strings.TrimSpace(h.Get("From"))
	}
	addr := addrs[0]
	if addr.Name == "" {
		return addr.Address
	}
	return fmt.Sprintf("%s <%s>", addr.Name, addr.Address)
}

// extractText returns the first inline text/plain part, decoded to UTF-8.
// Messages without one get an empty body.
// partMediaType reads a part's media type. A missing or unusable type
// defaults to text/plain (RFC 2045 section 5.2); a broken parameter still
// keeps the type it was attached to.
func partMediaType(h message.Header) string {
	if h.Get("Content-Type") == "" {
		return "text/plain"
	}
	mt, _, err := h.ContentType()
	if err != nil && !errors.Is(err, mime.ErrInvalidMediaParameter) {
		return "text/plain"
	}
	if !strings.Contains(mt, "/") {
		return "text/plain"
	}
	return mt
}

func extractText(entity *message.Entity, htmlFallback bool) (string, error) {
	var plain, html *string

	var walk func(e *message.Entity) error
	walk = func(e *message.Entity) error {
		if mr := e.MultipartReader(); mr != nil {
			for {
				part, err := mr.NextPart()
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return fmt.Errorf("read multipart: %w", err)
				}
				if err := walk(part); err != nil {
					return err
				}
			}
		}

		if disp, _, err := e.Header.ContentDisposition(); err == nil && disp == "attachment" {
			return nil
		}

		mediaType := partMediaType(e.Header)
		switch {
		case mediaType == "text/plain" && plain == nil:
			content, err := io.ReadAll(e.Body)
			if err != nil {
				return fmt.Errorf("read text part: %w", err)
			}
			s := string(content)
			plain = &s
		case mediaType == "text/html" && html == nil && htmlFallback:
			content, err := io.ReadAll(e.Body)
			if err != nil {
				return fmt.Errorf("read html part: %w", err)
			}
			s := html2text.HTML2Text(string(content))
			html = &s
		}
		return nil
	}

	if err := walk(entity); err != nil {
		return "", err
	}

	switch {
	case plain != nil:
		return cleanBody(*plain), nil
	case html != nil:
		return cleanBody(*html), nil
	}
	return "", nil
}

func cleanBody(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimRight(s, " \t\r\n")
}

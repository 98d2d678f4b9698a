package message

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidInput indicates malformed construction input, like an empty
// destination list or an attachment with no name. Callers get it
// immediately and should not retry.
var ErrInvalidInput = errors.New("invalid email input")

// addressPattern is deliberately loose. We only want to catch obvious
// mistakes like a missing "@", not police RFC 5321 syntax.
var addressPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Email represents a single email message, either one a caller is about to
// send or one captured by the receiver. Date stays empty until the message
// is sent, and Rid stays empty until both the sender and the date are
// known. Once a record has entered the mailbox it must be treated as
// read-only.
type Email struct {
	Sender      string
	Destination []string
	Subject     string
	Content     string
	Date        string
	Attachments map[string]Attachment
	Rid         string
}

// New returns an Email addressed to the given destinations. Returns
// ErrInvalidInput if the destination list is empty or any entry is blank
// or not shaped like an email address.
func New(destination ...string) (*Email, error) {
	if len(destination) == 0 {
		return nil, fmt.Errorf("%w: must supply at least one destination address", ErrInvalidInput)
	}
	for _, d := range destination {
		if !addressPattern.MatchString(d) {
			return nil, fmt.Errorf("%w: %q is not an email address", ErrInvalidInput, d)
		}
	}
	return &Email{
		Destination: append([]string{}, destination...),
		Attachments: map[string]Attachment{},
	}, nil
}

// IdentityHash returns the SHA-256 digest over the normalized subject,
// content, sender, destination list, and date (when set). Records with the
// same visible content hash identically, which is how the mailbox spots
// messages a watcher has already seen and how a saved directory is tied
// back to its record.
func (e *Email) IdentityHash() string {
	h := sha256.New()
	h.Write([]byte(normalize(e.Subject)))
	h.Write([]byte(normalize(e.Content)))
	h.Write([]byte(normalize(e.Sender)))
	h.Write([]byte(normalize(fmt.Sprint(e.Destination))))
	if e.Date != "" {
		h.Write([]byte(normalize(e.Date)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// normalize lower-cases and trims a field so cosmetic whitespace and
// casing don't change a record's identity.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// StampDate records t as the message's send date, in the RFC 1123 form
// carried by a Date header.
func (e *Email) StampDate(t time.Time) {
	e.Date = t.Format(time.RFC1123Z)
}

// Finalize computes and stores the identity hash in Rid. It does nothing
// until both the sender and the date are known, since the hash covers
// those fields.
func (e *Email) Finalize() {
	if e.Sender == "" || e.Date == "" {
		return
	}
	e.Rid = e.IdentityHash()
}

// Clone returns a copy of the record with its own destination slice and
// attachment map, so a caller can narrow or annotate the copy without
// touching the shared original. Attachment payloads are shared between the
// two records and must be treated as read-only.
func (e *Email) Clone() *Email {
	c := *e
	c.Destination = append([]string{}, e.Destination...)
	if e.Attachments != nil {
		c.Attachments = make(map[string]Attachment, len(e.Attachments))
		for name, att := range e.Attachments {
			c.Attachments[name] = att
		}
	}
	return &c
}

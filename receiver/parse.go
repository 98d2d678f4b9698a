package receiver

import (
	"bytes"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog/log"

	"github.com/mailcatch/mailcatch/inspect"
	"github.com/mailcatch/mailcatch/message"
)

// parseMessage turns one inbound SMTP payload into a mailbox record. The
// envelope wins over the message headers for sender and destination, since
// the envelope is what the system under test actually asked us to deliver.
// Parsing never fails: a body we can't make sense of is kept raw, because
// a test run is better served by an ugly record than by a dropped one.
func parseMessage(r io.Reader, from string, rcpt []string) *message.Email {
	msg := &message.Email{
		Sender:      from,
		Destination: append([]string{}, rcpt...),
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		log.Warn().Err(err).Msg("can't read the inbound message body")
		return msg
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		log.Warn().Err(err).Msg("inbound message is not MIME; keeping the raw body")
		msg.Content = strings.TrimSpace(string(raw))
		return msg
	}

	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = strings.TrimSpace(subject)
	} else {
		msg.Subject = strings.TrimSpace(mr.Header.Get("Subject"))
	}
	msg.Date = mr.Header.Get("Date")

	var htmlBody string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Msg("can't read an inbound message part; keeping what we have")
			break
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ctype, _, _ := h.ContentType()
			body, err := io.ReadAll(p.Body)
			if err != nil {
				log.Warn().Err(err).Msg("can't read an inline part; skipping it")
				continue
			}
			switch {
			case ctype == "text/plain" && msg.Content == "":
				msg.Content = strings.TrimSpace(string(body))
			case ctype == "text/html" && htmlBody == "":
				htmlBody = string(body)
			}
		case *mail.AttachmentHeader:
			name, _ := h.Filename()
			if name == "" {
				continue
			}
			ctype, _, _ := h.ContentType()
			payload, err := io.ReadAll(p.Body)
			if err != nil {
				log.Warn().Err(err).Str("name", name).Msg("can't read an attachment; dropping it")
				continue
			}
			if err := msg.AttachBytes(name, ctype, payload); err != nil {
				log.Warn().Err(err).Str("name", name).Msg("can't keep an attachment; dropping it")
			}
		}
	}

	// A message with only an HTML body still needs searchable text.
	if msg.Content == "" && htmlBody != "" {
		msg.Content = strings.TrimSpace(inspect.Text(htmlBody))
	}

	return msg
}

package storage

import (
	"fmt"
	"io"
	"net/mail"
	"time"

	"github.com/emersion/go-mbox"

	"github.com/mailcatch/mailcatch/email"
	"github.com/mailcatch/mailcatch/message"
)

// WriteMbox renders a capture session as an mbox archive, one message per
// record in the order given. Each record's sender and date feed the mbox
// From separator line; a record without a parseable date is stamped with
// the current time.
func WriteMbox(w io.Writer, msgs []*message.Email) error {
	mw := mbox.NewWriter(w)
	for _, msg := range msgs {
		out, err := mw.CreateMessage(envelopeAddress(msg.Sender), envelopeDate(msg.Date))
		if err != nil {
			return fmt.Errorf("can't start an mbox entry for %q: %v", msg.Subject, err)
		}
		if _, err := email.Compose(msg).WriteTo(out); err != nil {
			return fmt.Errorf("can't write %q to the mbox: %v", msg.Subject, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("can't finish the mbox: %v", err)
	}
	return nil
}

// envelopeAddress reduces a sender field, possibly in "name <addr>" form,
// to the bare address the mbox separator line wants.
func envelopeAddress(sender string) string {
	addr, err := mail.ParseAddress(sender)
	if err != nil {
		return sender
	}
	return addr.Address
}

func envelopeDate(date string) time.Time {
	t, err := mail.ParseDate(date)
	if err != nil {
		return time.Now()
	}
	return t
}

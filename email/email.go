package email

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"syscall"
	"time"

	gomail "gopkg.in/gomail.v2"

	"github.com/mailcatch/mailcatch/message"
)

// Status classifies the outcome of one submission batch.
type Status string

const (
	// FullSuccess means the server accepted every record.
	FullSuccess Status = "FULL_SUCCESS"
	// PartialSuccess means the server refused some records and accepted
	// the rest.
	PartialSuccess Status = "PARTIAL_SUCCESS"
	// AllFailed means the server refused every record.
	AllFailed Status = "ALL_FAILED"
)

// SendResult reports what happened to a batch. Failed holds the records
// the server refused, in submission order, so a caller can retry exactly
// that subset.
type SendResult struct {
	Status Status
	Failed []*message.Email
}

// UserConfig represents the SMTP submission settings provided by the
// user. Not meant to be used directly for sending email without
// validation. Username and Password are optional; when set, the client
// authenticates with them.
type UserConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Client submits records to a single SMTP endpoint.
type Client struct {
	dialer *gomail.Dialer
	// submit hands one composed message to the transport. Swapped out in
	// tests.
	submit func(*gomail.Message) error
	now    func() time.Time
}

// NewClient validates user input and returns a Client that submits
// through the configured endpoint. Returns an error on validation
// failure.
func NewClient(uc UserConfig) (*Client, error) {
	if uc.Host == "" {
		return nil, errors.New("must supply an SMTP host")
	}
	if uc.Port <= 0 {
		return nil, fmt.Errorf("%v is not a usable SMTP port", uc.Port)
	}

	d := gomail.NewDialer(uc.Host, uc.Port, uc.Username, uc.Password)
	return &Client{
		dialer: d,
		submit: func(m *gomail.Message) error {
			return d.DialAndSend(m)
		},
		now: time.Now,
	}, nil
}

// Send submits one record. A refusal comes back as an AllFailed result
// with the record in the failed list, not as an error.
func (c *Client) Send(msg *message.Email) (*SendResult, error) {
	return c.SendAll([]*message.Email{msg})
}

// SendAll stamps, finalizes, and submits each record in order. A refused
// connection marks that record failed and moves on; any other transport
// error aborts the batch and propagates. An empty batch is a FullSuccess.
func (c *Client) SendAll(msgs []*message.Email) (*SendResult, error) {
	res := &SendResult{Status: FullSuccess}

	for _, msg := range msgs {
		msg.StampDate(c.now())
		msg.Finalize()

		if err := c.submit(Compose(msg)); err != nil {
			if !connectionRefused(err) {
				return nil, fmt.Errorf("can't submit %q: %v", msg.Subject, err)
			}
			res.Failed = append(res.Failed, msg)
		}
	}

	switch {
	case len(res.Failed) == 0:
	case len(res.Failed) == len(msgs):
		res.Status = AllFailed
	default:
		res.Status = PartialSuccess
	}
	return res, nil
}

// Compose renders a record into its transport form. Attachment payloads
// are written from memory, so the attachment names never touch the
// filesystem.
func Compose(msg *message.Email) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", msg.Sender)
	m.SetHeader("To", msg.Destination...)
	m.SetHeader("Subject", msg.Subject)
	if msg.Date != "" {
		m.SetHeader("Date", msg.Date)
	}
	m.SetBody("text/plain", msg.Content)

	names := make([]string, 0, len(msg.Attachments))
	for name := range msg.Attachments {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		payload := msg.Attachments[name].Payload
		m.Attach(name,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(payload)
				return err
			}),
			gomail.SetHeader(map[string][]string{
				"Content-Type": {msg.Attachments[name].ContentType},
			}),
		)
	}
	return m
}

// connectionRefused reports whether err is a connect-phase failure, the
// one class of transport error a batch survives.
func connectionRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var op *net.OpError
	return errors.As(err, &op) && op.Op == "dial"
}

package receiver

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/docker/go-units"
	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog/log"

	"github.com/mailcatch/mailcatch/mailbox"
	"github.com/mailcatch/mailcatch/message"
)

// DefaultMaxMessageBytes caps one inbound message when the config doesn't
// say otherwise.
const DefaultMaxMessageBytes int64 = 25 * units.MiB

// Config holds the listener settings.
type Config struct {
	// Addr is the host:port to bind. Port 0 picks a free one.
	Addr string
	// Domain is the hostname announced in the SMTP greeting.
	Domain string
	// MaxMessageBytes caps the size of one inbound message.
	MaxMessageBytes int64
	// OnMessage, when set, runs after each parsed record lands in the
	// mailbox. Delivery acknowledgment waits on it, so it must be quick.
	OnMessage func(*message.Email)
}

// Receiver is the SMTP listener feeding the mailbox. Bind with Listen,
// then run Serve (blocking) until Close.
type Receiver struct {
	cfg Config
	srv *smtp.Server
	ln  net.Listener
	box *mailbox.Mailbox
}

// New wires a Receiver to the given mailbox.
func New(cfg Config, box *mailbox.Mailbox) *Receiver {
	if cfg.Domain == "" {
		cfg.Domain = "localhost"
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}

	r := &Receiver{
		cfg: cfg,
		box: box,
	}

	srv := smtp.NewServer(&backend{recv: r})
	srv.Addr = cfg.Addr
	srv.Domain = cfg.Domain
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.MaxMessageBytes = int(cfg.MaxMessageBytes)
	srv.MaxRecipients = 50
	srv.AllowInsecureAuth = true
	r.srv = srv

	return r
}

// Listen binds the configured address without serving yet, so callers can
// learn the bound port before any mail flows.
func (r *Receiver) Listen() error {
	ln, err := net.Listen("tcp", r.cfg.Addr)
	if err != nil {
		return fmt.Errorf("can't bind the receiver to %v: %v", r.cfg.Addr, err)
	}
	r.ln = ln
	return nil
}

// Serve accepts SMTP connections until Close. Blocking; call Listen
// first.
func (r *Receiver) Serve() error {
	return r.srv.Serve(r.ln)
}

// Addr returns the bound address, or the configured one before Listen.
func (r *Receiver) Addr() string {
	if r.ln == nil {
		return r.cfg.Addr
	}
	return r.ln.Addr().String()
}

// Close stops the listener. A closed Receiver can't be restarted; make a
// new one instead.
func (r *Receiver) Close() error {
	return r.srv.Close()
}

// backend hands out a session to every client. Credentials are accepted
// without being checked, since the receiver only exists to capture test
// traffic.
type backend struct {
	recv *Receiver
}

func (b *backend) Login(_ *smtp.ConnectionState, _, _ string) (smtp.Session, error) {
	return &session{recv: b.recv}, nil
}

func (b *backend) AnonymousLogin(_ *smtp.ConnectionState) (smtp.Session, error) {
	return &session{recv: b.recv}, nil
}

// session tracks one SMTP transaction's envelope.
type session struct {
	recv *Receiver
	from string
	rcpt []string
}

// Mail implements smtp.Session.
func (s *session) Mail(from string, _ smtp.MailOptions) error {
	s.from = from
	return nil
}

// Rcpt implements smtp.Session.
func (s *session) Rcpt(to string) error {
	s.rcpt = append(s.rcpt, to)
	return nil
}

// Data implements smtp.Session. It parses the message, appends it to the
// mailbox, and runs the OnMessage hook. It never rejects: whatever the
// system under test sends is worth capturing.
func (s *session) Data(r io.Reader) error {
	msg := parseMessage(io.LimitReader(r, s.recv.cfg.MaxMessageBytes), s.from, s.rcpt)
	msg.Finalize()
	s.recv.box.Append(msg)

	log.Info().
		Str("sender", msg.Sender).
		Strs("destination", msg.Destination).
		Str("subject", msg.Subject).
		Str("rid", msg.Rid).
		Msg("captured an email")

	if s.recv.cfg.OnMessage != nil {
		s.recv.cfg.OnMessage(msg)
	}
	return nil
}

// Reset implements smtp.Session.
func (s *session) Reset() {
	s.from = ""
	s.rcpt = nil
}

// Logout implements smtp.Session.
func (s *session) Logout() error { return nil }

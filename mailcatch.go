package mailcatch

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"github.com/mailcatch/mailcatch/email"
	"github.com/mailcatch/mailcatch/mailbox"
	"github.com/mailcatch/mailcatch/message"
	"github.com/mailcatch/mailcatch/receiver"
	"github.com/mailcatch/mailcatch/storage"
	"github.com/mailcatch/mailcatch/userconfig"
)

// ErrReceiverInactive indicates an operation that needs the capture server
// while it isn't running.
var ErrReceiverInactive = errors.New("the receiver is not running")

// EmailHandler is the top-level entry point: one capture session over one
// SMTP endpoint. The zero value is not usable; construct one with New.
//
// The handler submits to the same endpoint it captures on, so a test can
// loop a message through a real SMTP exchange without any remote server.
type EmailHandler struct {
	cfg     userconfig.Meta
	box     *mailbox.Mailbox
	running *atomic.Bool

	// mu guards the session state below across Open, Close, SaveIn, and
	// the receiver's ingest goroutines.
	mu   sync.Mutex
	recv *receiver.Receiver
	dir  *storage.Emaildir
	db   storage.KeyValue
}

// New validates cfg, applies its defaults, and returns a handler. When the
// config carries a save directory, persistence is wired immediately, so
// every captured message is written to disk as it arrives.
func New(cfg userconfig.Meta) (*EmailHandler, error) {
	c, err := cfg.CheckAndSetDefaults()
	if err != nil {
		return nil, err
	}

	h := &EmailHandler{
		cfg:     c,
		box:     mailbox.New(),
		running: atomic.NewBool(false),
	}

	if c.Save.Dir != "" {
		if err := h.SaveIn(c.Save.Dir, c.Save.Extension); err != nil {
			return nil, err
		}
	}

	return h, nil
}

// Open binds the capture server to the configured address and starts
// serving in the background. Returns an error if the handler is already
// open or the address can't be bound.
func (h *EmailHandler) Open() error {
	if !h.running.CompareAndSwap(false, true) {
		return errors.New("the receiver is already running")
	}

	recv := receiver.New(receiver.Config{
		Addr:            net.JoinHostPort(h.cfg.Server.Host, strconv.Itoa(h.cfg.Server.Port)),
		Domain:          h.cfg.Server.Host,
		MaxMessageBytes: h.cfg.Server.MaxMessageSize,
		OnMessage:       h.persist,
	}, h.box)

	if err := recv.Listen(); err != nil {
		h.running.Store(false)
		return err
	}

	go func() {
		if err := recv.Serve(); err != nil {
			// Serve returns once Close tears the listener down, so
			// this is routine at the end of a session.
			log.Debug().Err(err).Msg("the capture server stopped")
		}
	}()

	h.mu.Lock()
	h.recv = recv
	h.mu.Unlock()
	return nil
}

// Close stops the capture server and releases the saved-email index if one
// is open. Already-captured messages stay readable; call Open again for a
// fresh capture run. Safe to call more than once.
func (h *EmailHandler) Close() error {
	h.mu.Lock()
	recv := h.recv
	db := h.db
	h.recv = nil
	h.db = nil
	h.mu.Unlock()

	var closeErr error
	if h.running.CompareAndSwap(true, false) && recv != nil {
		closeErr = recv.Close()
	}

	if db != nil {
		if err := db.Close(); err != nil && closeErr == nil {
			closeErr = fmt.Errorf("can't close the saved-email index: %v", err)
		}
	}
	return closeErr
}

// ReceiverRunning reports whether the capture server is accepting mail.
func (h *EmailHandler) ReceiverRunning() bool {
	return h.running.Load()
}

// Addr returns the SMTP endpoint the handler is using: the bound address
// while the receiver runs (so a config port of 0 resolves to the real
// one), the configured address otherwise.
func (h *EmailHandler) Addr() string {
	h.mu.Lock()
	recv := h.recv
	h.mu.Unlock()
	if h.running.Load() && recv != nil {
		return recv.Addr()
	}
	return net.JoinHostPort(h.cfg.Server.Host, strconv.Itoa(h.cfg.Server.Port))
}

// Send stamps, finalizes, and submits the given records to the handler's
// SMTP endpoint, reporting per-record refusals in the result. See
// email.Client.SendAll for the outcome semantics.
func (h *EmailHandler) Send(msgs ...*message.Email) (*email.SendResult, error) {
	host, portStr, err := net.SplitHostPort(h.Addr())
	if err != nil {
		return nil, fmt.Errorf("can't parse the SMTP address %v: %v", h.Addr(), err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("can't parse the SMTP port %v: %v", portStr, err)
	}

	client, err := email.NewClient(email.UserConfig{
		Host:     host,
		Port:     port,
		Username: h.cfg.Server.Username,
		Password: h.cfg.Server.Password,
	})
	if err != nil {
		return nil, err
	}
	return client.SendAll(msgs)
}

// WaitEmails starts a watch over the capture session. Returns
// ErrReceiverInactive while the capture server is down, since a watch
// could then only ever time out.
func (h *EmailHandler) WaitEmails(opts mailbox.WaitOptions) (*mailbox.Watcher, error) {
	if !h.running.Load() {
		return nil, fmt.Errorf("%w: open the handler before waiting", ErrReceiverInactive)
	}
	return h.box.Watch(opts), nil
}

// SaveIn points the handler at a save directory, creating it if needed.
// From here on every captured message is persisted as it arrives, and
// Save writes records on demand. When the config carries an index
// section, saved directories are also indexed by identity hash.
func (h *EmailHandler) SaveIn(dir, extension string) error {
	var kv storage.KeyValue
	if h.cfg.Index != nil {
		db, err := storage.NewBadgerDB(h.cfg.Index)
		if err != nil {
			return fmt.Errorf("can't open the saved-email index: %v", err)
		}
		kv = db
	}

	ed, err := storage.NewEmaildir(dir, extension, kv)
	if err != nil {
		if kv != nil {
			kv.Close()
		}
		return err
	}

	h.mu.Lock()
	old := h.db
	h.dir = ed
	h.db = kv
	h.cfg.Save = userconfig.Save{Dir: ed.Base(), Extension: ed.Extension()}
	h.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			log.Debug().Err(err).Msg("can't close the previous saved-email index")
		}
	}
	return nil
}

// Save writes one record under the configured save directory and returns
// the directory it landed in. Returns storage.ErrNoSavePath before SaveIn
// has run.
func (h *EmailHandler) Save(msg *message.Email) (string, error) {
	return h.emaildir().Save(msg)
}

// Load reads a saved record back from its directory, validating it first.
func (h *EmailHandler) Load(dir string) (*message.Email, error) {
	return storage.Load(dir)
}

// Validate checks a saved directory against its recorded hashes. See
// storage.Validate for the error-versus-false contract.
func (h *EmailHandler) Validate(dir string) (bool, error) {
	return storage.Validate(dir)
}

// LookupSaved resolves an identity hash to its saved directory through the
// index. Returns storage.ErrNoSavePath before SaveIn has run.
func (h *EmailHandler) LookupSaved(rid string) (string, error) {
	d := h.emaildir()
	if d == nil {
		return "", fmt.Errorf("%w: call SaveIn first", storage.ErrNoSavePath)
	}
	return d.LookupSaved(rid)
}

// ExportMbox writes every message captured so far to an mbox file at
// path, replacing whatever is there.
func (h *EmailHandler) ExportMbox(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("can't create the mbox file %v: %v", path, err)
	}
	if err := storage.WriteMbox(f, h.box.Snapshot()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// TempUser generates a throwaway identity under the handler's domain, for
// tests that need a plausible sender or recipient.
func (h *EmailHandler) TempUser() message.TempUser {
	return message.NewTempUser(h.cfg.Server.Host + ".com")
}

// String summarizes the handler state, e.g.
// <EmailHandler receiver=on save=off extension=.txt>.
func (h *EmailHandler) String() string {
	onOff := map[bool]string{true: "on", false: "off"}

	h.mu.Lock()
	saving := h.dir != nil
	ext := h.cfg.Save.Extension
	if h.dir != nil {
		ext = h.dir.Extension()
	}
	h.mu.Unlock()

	return fmt.Sprintf(
		"<EmailHandler receiver=%v save=%v extension=%v>",
		onOff[h.running.Load()], onOff[saving], ext,
	)
}

// emaildir returns the current save target, nil before SaveIn. A nil
// Emaildir still answers Save with ErrNoSavePath.
func (h *EmailHandler) emaildir() *storage.Emaildir {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dir
}

// persist is the receiver's ingest hook. Failures are logged and never
// bounce the message; capture comes first.
func (h *EmailHandler) persist(msg *message.Email) {
	d := h.emaildir()
	if d == nil {
		return
	}
	if _, err := d.Save(msg); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("can't save a captured email")
	}
}

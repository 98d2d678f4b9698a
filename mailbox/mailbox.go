package mailbox

import (
	"sync"

	"github.com/mailcatch/mailcatch/message"
)

// Mailbox retains every email captured by the receiver, in arrival order.
// The receiver is the only writer; any number of watchers may read
// concurrently.
type Mailbox struct {
	mu   sync.RWMutex
	msgs []*message.Email
}

// New returns an empty Mailbox.
func New() *Mailbox {
	return &Mailbox{}
}

// Append adds a freshly received record to the end of the mailbox. Once
// appended, the record belongs to the mailbox and must not be mutated.
func (m *Mailbox) Append(msg *message.Email) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
}

// Snapshot returns the records accumulated so far, in arrival order. The
// slice is the caller's own; the records it points to are shared.
func (m *Mailbox) Snapshot() []*message.Email {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*message.Email, len(m.msgs))
	copy(out, m.msgs)
	return out
}

// Len returns the number of records received so far.
func (m *Mailbox) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.msgs)
}

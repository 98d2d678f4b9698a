package mailbox

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/mailcatch/mailcatch/message"
)

// DefaultCooldown is the pause between mailbox polls while waiting for new
// mail.
const DefaultCooldown = 200 * time.Millisecond

// ErrWaitTimeout indicates that no new matching email arrived within a
// watcher's fetch timeout budget.
var ErrWaitTimeout = errors.New("timed out waiting for an email")

// WaitOptions control a single watch over the mailbox.
type WaitOptions struct {
	// Address keeps only records addressed to this mailbox address. Empty
	// means every record matches.
	Address string
	// Repeat caps the number of records the watcher yields. Zero or
	// negative means unbounded.
	Repeat int
	// Timeout bounds each fetch for at least one new record, not the
	// watch as a whole: every fetch starts with a fresh budget. Zero
	// means wait forever.
	Timeout time.Duration
	// SilentTimeout ends the sequence normally instead of failing with
	// ErrWaitTimeout when a fetch times out.
	SilentTimeout bool
	// Cooldown overrides DefaultCooldown between polls.
	Cooldown time.Duration
}

// Watcher yields previously unseen mailbox records one at a time, in
// arrival order. Create one with Mailbox.Watch.
type Watcher struct {
	box      *Mailbox
	opts     WaitOptions
	cooldown time.Duration
	seen     map[string]struct{}
	seenAnon map[*message.Email]struct{}
	pending  []*message.Email
	left     int // yields remaining; -1 means unbounded
	fetched  bool
	done     bool
}

// Watch starts a fresh watch over the mailbox. Each watcher keeps its own
// record of what it has yielded, so concurrent watchers each see every
// record.
func (m *Mailbox) Watch(opts WaitOptions) *Watcher {
	cd := opts.Cooldown
	if cd <= 0 {
		cd = DefaultCooldown
	}
	left := -1
	if opts.Repeat > 0 {
		left = opts.Repeat
	}
	return &Watcher{
		box:      m,
		opts:     opts,
		cooldown: cd,
		seen:     map[string]struct{}{},
		seenAnon: map[*message.Email]struct{}{},
		left:     left,
	}
}

// Next blocks until it can return the next matching record. The sequence
// ends with io.EOF once the repeat budget is spent or, with SilentTimeout
// set, once a fetch times out; otherwise a timed-out fetch fails with
// ErrWaitTimeout and a cancelled ctx fails with its error. A watcher that
// has returned an error or io.EOF keeps returning io.EOF.
//
// When an address filter is set, matching records are returned as copies
// narrowed to exactly that address, so the mailbox's stored record keeps
// its full destination list for other watchers.
func (w *Watcher) Next(ctx context.Context) (*message.Email, error) {
	if w.done {
		return nil, io.EOF
	}
	for {
		for len(w.pending) > 0 {
			msg := w.pending[0]
			w.pending = w.pending[1:]
			if w.opts.Address != "" {
				if !addressedTo(msg, w.opts.Address) {
					// A skipped record doesn't count against Repeat.
					continue
				}
				narrowed := msg.Clone()
				narrowed.Destination = []string{w.opts.Address}
				msg = narrowed
			}
			if w.left > 0 {
				w.left--
				if w.left == 0 {
					w.done = true
				}
			}
			return msg, nil
		}

		// One cooldown of extra pacing between fetch rounds, on top of
		// the polling inside the fetch itself.
		if w.fetched {
			if err := w.sleep(ctx, w.cooldown); err != nil {
				w.done = true
				return nil, err
			}
		}

		batch, err := w.fetch(ctx)
		if err != nil {
			w.done = true
			if errors.Is(err, ErrWaitTimeout) && w.opts.SilentTimeout {
				return nil, io.EOF
			}
			return nil, err
		}
		w.pending = batch
	}
}

// fetch polls the mailbox until at least one unseen record shows up, then
// collects every unseen record in one pass so concurrent arrivals drain in
// order before the next poll.
func (w *Watcher) fetch(ctx context.Context) ([]*message.Email, error) {
	w.fetched = true
	var deadline time.Time
	if w.opts.Timeout > 0 {
		deadline = time.Now().Add(w.opts.Timeout)
	}
	for {
		var batch []*message.Email
		for _, msg := range w.box.Snapshot() {
			if w.saw(msg) {
				continue
			}
			w.mark(msg)
			batch = append(batch, msg)
		}
		if len(batch) > 0 {
			return batch, nil
		}

		wait := w.cooldown
		if !deadline.IsZero() {
			left := time.Until(deadline)
			if left <= 0 {
				return nil, ErrWaitTimeout
			}
			if left < wait {
				wait = left
			}
		}
		if err := w.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// saw reports whether the watcher already collected this record. Records
// are keyed by identity hash; a record that never got one is keyed by its
// pointer, so it is collected exactly once but never shadows another
// record.
func (w *Watcher) saw(msg *message.Email) bool {
	if msg.Rid != "" {
		_, ok := w.seen[msg.Rid]
		return ok
	}
	_, ok := w.seenAnon[msg]
	return ok
}

func (w *Watcher) mark(msg *message.Email) {
	if msg.Rid != "" {
		w.seen[msg.Rid] = struct{}{}
		return
	}
	w.seenAnon[msg] = struct{}{}
}

// sleep pauses for d or until ctx ends, whichever comes first.
func (w *Watcher) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func addressedTo(msg *message.Email, address string) bool {
	for _, d := range msg.Destination {
		if d == address {
			return true
		}
	}
	return false
}

// Stream pumps the watcher in a background goroutine, for callers that
// prefer channels over a pull loop. The record channel closes when the
// sequence ends; a terminal failure arrives on the error channel first.
func (w *Watcher) Stream(ctx context.Context) (<-chan *message.Email, <-chan error) {
	out := make(chan *message.Email)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		for {
			msg, err := w.Next(ctx)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					errs <- err
				}
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return out, errs
}

package receiver

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/mailcatch/mailcatch/mailbox"
	"github.com/mailcatch/mailcatch/message"
)

// startReceiver binds a receiver to a free loopback port and serves it for
// the duration of the test.
func startReceiver(t *testing.T, cfg Config) (*Receiver, *mailbox.Mailbox) {
	t.Helper()
	box := mailbox.New()
	cfg.Addr = "127.0.0.1:0"
	r := New(cfg, box)
	if err := r.Listen(); err != nil {
		t.Fatalf("can't bind the test receiver: %v", err)
	}
	go r.Serve()
	t.Cleanup(func() {
		r.Close()
	})
	return r, box
}

func TestReceiverCapturesPlainMessage(t *testing.T) {
	r, box := startReceiver(t, Config{})

	raw := "From: header-sender@example.com\r\n" +
		"To: header-rcpt@example.com\r\n" +
		"Subject: plain hello\r\n" +
		"Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n" +
		"\r\n" +
		"hello from the wire\r\n"

	err := smtp.SendMail(r.Addr(), nil, "envelope@example.com", []string{"inbox@example.com"}, strings.NewReader(raw))
	if err != nil {
		t.Fatalf("can't deliver the test message: %v", err)
	}

	msgs := box.Snapshot()
	if len(msgs) != 1 {
		t.Fatalf("expected one captured message, got %v", len(msgs))
	}
	got := msgs[0]

	// The envelope wins over the message headers.
	if got.Sender != "envelope@example.com" {
		t.Errorf("unexpected sender -- got %q", got.Sender)
	}
	if len(got.Destination) != 1 || got.Destination[0] != "inbox@example.com" {
		t.Errorf("unexpected destination -- got %v", got.Destination)
	}
	if got.Subject != "plain hello" {
		t.Errorf("unexpected subject -- got %q", got.Subject)
	}
	if got.Content != "hello from the wire" {
		t.Errorf("unexpected content -- got %q", got.Content)
	}
	if got.Date != "Mon, 02 Jan 2006 15:04:05 -0700" {
		t.Errorf("unexpected date -- got %q", got.Date)
	}
	if got.Rid == "" {
		t.Error("expected the captured message to carry an ID")
	}
	if got.Rid != got.IdentityHash() {
		t.Errorf("expected the ID to match the identity hash -- got %q", got.Rid)
	}
}

func TestReceiverCapturesAllRecipients(t *testing.T) {
	r, box := startReceiver(t, Config{})

	raw := "Subject: shared\r\n" +
		"\r\n" +
		"for both of you\r\n"

	to := []string{"one@example.com", "two@example.com"}
	if err := smtp.SendMail(r.Addr(), nil, "sender@example.com", to, strings.NewReader(raw)); err != nil {
		t.Fatalf("can't deliver the test message: %v", err)
	}

	msgs := box.Snapshot()
	if len(msgs) != 1 {
		t.Fatalf("expected one captured message, got %v", len(msgs))
	}
	if len(msgs[0].Destination) != 2 ||
		msgs[0].Destination[0] != "one@example.com" ||
		msgs[0].Destination[1] != "two@example.com" {
		t.Errorf("unexpected destination -- got %v", msgs[0].Destination)
	}
}

func TestReceiverCapturesMultipartAttachment(t *testing.T) {
	r, box := startReceiver(t, Config{})

	raw := "From: a@example.com\r\n" +
		"To: b@example.com\r\n" +
		"Subject: with attachment\r\n" +
		"Date: Tue, 10 Aug 2021 10:00:00 +0000\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=frontier\r\n" +
		"\r\n" +
		"--frontier\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"see the attached file\r\n" +
		"--frontier\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Disposition: attachment; filename=\"notes.txt\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"aGVsbG8gYXR0YWNobWVudA==\r\n" +
		"--frontier--\r\n"

	if err := smtp.SendMail(r.Addr(), nil, "a@example.com", []string{"b@example.com"}, strings.NewReader(raw)); err != nil {
		t.Fatalf("can't deliver the test message: %v", err)
	}

	msgs := box.Snapshot()
	if len(msgs) != 1 {
		t.Fatalf("expected one captured message, got %v", len(msgs))
	}
	got := msgs[0]

	if got.Content != "see the attached file" {
		t.Errorf("unexpected content -- got %q", got.Content)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("expected one attachment, got %v", len(got.Attachments))
	}
	att, ok := got.Attachments["notes.txt"]
	if !ok {
		t.Fatalf("expected an attachment named notes.txt, got %v", got.Attachments)
	}
	if string(att.Payload) != "hello attachment" {
		t.Errorf("unexpected attachment payload -- got %q", att.Payload)
	}
	if att.ContentType != "text/plain" || att.MainType != "text" || att.SubType != "plain" {
		t.Errorf("unexpected attachment type -- got %+v", att)
	}
}

func TestReceiverFlattensHTMLOnlyBodies(t *testing.T) {
	r, box := startReceiver(t, Config{})

	raw := "Subject: html only\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<html><body><p>Click <a href=\"https://example.com\">here</a> now.</p></body></html>\r\n"

	if err := smtp.SendMail(r.Addr(), nil, "a@example.com", []string{"b@example.com"}, strings.NewReader(raw)); err != nil {
		t.Fatalf("can't deliver the test message: %v", err)
	}

	msgs := box.Snapshot()
	if len(msgs) != 1 {
		t.Fatalf("expected one captured message, got %v", len(msgs))
	}
	if msgs[0].Content != "Click here now." {
		t.Errorf("unexpected flattened content -- got %q", msgs[0].Content)
	}
}

func TestReceiverDecodesEncodedSubjects(t *testing.T) {
	r, box := startReceiver(t, Config{})

	raw := "Subject: =?utf-8?q?caf=C3=A9_receipts?=\r\n" +
		"\r\n" +
		"body\r\n"

	if err := smtp.SendMail(r.Addr(), nil, "a@example.com", []string{"b@example.com"}, strings.NewReader(raw)); err != nil {
		t.Fatalf("can't deliver the test message: %v", err)
	}

	msgs := box.Snapshot()
	if len(msgs) != 1 {
		t.Fatalf("expected one captured message, got %v", len(msgs))
	}
	if msgs[0].Subject != "café receipts" {
		t.Errorf("unexpected subject -- got %q", msgs[0].Subject)
	}
}

func TestReceiverKeepsUnparsableBodiesRaw(t *testing.T) {
	r, box := startReceiver(t, Config{})

	raw := "just some bytes without structure\r\n"

	if err := smtp.SendMail(r.Addr(), nil, "a@example.com", []string{"b@example.com"}, strings.NewReader(raw)); err != nil {
		t.Fatalf("can't deliver the test message: %v", err)
	}

	msgs := box.Snapshot()
	if len(msgs) != 1 {
		t.Fatalf("expected one captured message, got %v", len(msgs))
	}
	if msgs[0].Content != "just some bytes without structure" {
		t.Errorf("unexpected content -- got %q", msgs[0].Content)
	}
	if msgs[0].Sender != "a@example.com" {
		t.Errorf("unexpected sender -- got %q", msgs[0].Sender)
	}
}

func TestReceiverAcceptsAnyCredentials(t *testing.T) {
	r, box := startReceiver(t, Config{})

	raw := "Subject: authed\r\n" +
		"\r\n" +
		"body\r\n"

	client := sasl.NewPlainClient("", "made-up-user", "made-up-password")
	if err := smtp.SendMail(r.Addr(), client, "a@example.com", []string{"b@example.com"}, strings.NewReader(raw)); err != nil {
		t.Fatalf("expected delivery with arbitrary credentials to work: %v", err)
	}

	if box.Len() != 1 {
		t.Fatalf("expected one captured message, got %v", box.Len())
	}
}

func TestReceiverRunsTheOnMessageHook(t *testing.T) {
	hooked := make(chan *message.Email, 1)
	r, box := startReceiver(t, Config{
		OnMessage: func(msg *message.Email) {
			hooked <- msg
		},
	})

	raw := "Subject: hooked\r\n" +
		"\r\n" +
		"body\r\n"

	if err := smtp.SendMail(r.Addr(), nil, "a@example.com", []string{"b@example.com"}, strings.NewReader(raw)); err != nil {
		t.Fatalf("can't deliver the test message: %v", err)
	}

	select {
	case msg := <-hooked:
		if msg.Subject != "hooked" {
			t.Errorf("the hook saw an unexpected subject -- got %q", msg.Subject)
		}
		if box.Len() != 1 {
			t.Error("expected the message to be in the mailbox by the time the hook runs")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("the hook never ran")
	}
}

package receiver

// receiver runs the loopback SMTP listener that captures inbound mail.
// Each accepted message is parsed from its MIME form into a record and
// appended to the mailbox; delivery is always acknowledged, since the
// point of the tool is to capture whatever a system under test sends.
// Authentication is accepted but never verified.

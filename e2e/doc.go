package e2e

// e2e contains integration tests that run the whole capture loop over
// loopback SMTP: submitting through the handler, waiting on the mailbox,
// persisting records to disk, and exporting mbox archives. Utility code
// for setting up a test environment lives here too.

package mailcatch

// mailcatch captures email in tests and development environments. An
// EmailHandler runs a local SMTP server that accepts everything it is
// offered, accumulates the captured messages, and lets the caller send
// test mail, wait for matching arrivals, persist records to disk, and
// export a capture session as an mbox archive.

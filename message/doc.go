package message

// message defines the record type for a single email, sent or received,
// along with its attachments and the derived identity hash used to
// deduplicate records and to verify saved copies. It doesn't deal in wire
// formats--composing and parsing MIME bodies is left to the email and
// receiver packages.

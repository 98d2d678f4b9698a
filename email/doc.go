package email

// email is responsible for submitting messages to an SMTP endpoint,
// including composing the MIME form of a record and its attachments and
// classifying delivery outcomes per batch. It does not inspect or alter
// the user-facing content of a message beyond stamping the send date.

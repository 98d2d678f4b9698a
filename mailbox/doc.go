package mailbox

// mailbox accumulates the emails captured by the receiver and hands them
// back out through watchers. A watcher polls the mailbox for records it
// hasn't yielded yet, optionally filtered to one destination address and
// bounded by a repeat count and a per-fetch timeout. The mailbox itself
// never drops or reorders a record.

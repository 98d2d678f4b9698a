package storage

// storage persists captured emails to disk in a per-destination,
// per-subject directory layout, reads and validates them back against
// their recorded hashes, and exports capture sessions as mbox archives.
// It also holds the KeyValue interface for the saved-email index, with a
// BadgerDB implementation and a no-op stand-in; the index deals only in
// opaque binary data.

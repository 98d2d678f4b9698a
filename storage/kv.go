package storage

import (
	"errors"
	"fmt"
	"time"
)

// KVConfig contains settings for the saved-email index. Every field is
// required once an index section appears in the user config.
type KVConfig struct {
	StorageDirPath  string        `yaml:"storageDir" json:"storageDir"`
	KeyTTLDuration  time.Duration `yaml:"keyTTL" json:"keyTTL"`
	CleanupInterval time.Duration `yaml:"cleanupInterval" json:"cleanupInterval"`
}

// UnmarshalYAML parses the index section of a user-provided YAML
// configuration, returning any parsing errors.
func (c *KVConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	v := make(map[string]string)
	err := unmarshal(&v)

	if err != nil {
		return fmt.Errorf("can't parse the index config: %v", err)
	}

	sp, ok := v["storageDir"]
	if !ok || sp == "" {
		return errors.New("the index config must include a storageDir")
	}
	c.StorageDirPath = sp

	ttl, ok := v["keyTTL"]
	if !ok {
		return errors.New("the index config must include a keyTTL")
	}
	pt, err := time.ParseDuration(ttl)
	if err != nil {
		return fmt.Errorf("can't parse the keyTTL as a duration: %v", err)
	}
	c.KeyTTLDuration = pt

	ci, ok := v["cleanupInterval"]
	if !ok {
		return errors.New("the index config must include a cleanupInterval")
	}
	pc, err := time.ParseDuration(ci)
	if err != nil {
		return fmt.Errorf("can't parse the cleanupInterval as a duration: %v", err)
	}
	c.CleanupInterval = pc

	return nil
}

// KeyValue exposes a common interface for performing CRUD operations on
// the saved-email index, which maps a record's identity hash to the
// directory it was saved under. Assumes some kind of persistent KV store.
//
// Implementations need to include connection logic in code to initialize
// a store.
type KeyValue interface {
	// Replace the value for a key or create a new one if it doesn't exist
	Put(KVEntry) error
	// Return an entry given its key
	Read(key []byte) (KVEntry, error)
	// Cleanup performs routine deletion of old records. We assign
	// TTLs to KV pairs and delete them periodically.
	Cleanup() error
	// Drain/tear down the connection, or something analogous for
	// an embedded database
	Close() error
}

// KVEntry is what we'll write to and read from the KV store
type KVEntry struct {
	Key   []byte
	Value []byte
}

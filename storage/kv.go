package storage

import (
	"errors"
	"fmt"
	"time"
)

// KVConfig contains settings specific to BadgerDB connections
type KVConfig struct {
	StorageDirPath  string        `yaml:"storageDir" json:"storageDir"`
	KeyTTLDuration  time.Duration `yaml:"keyTTL" json:"keyTTL"`
	CleanupInterval time.Duration `yaml:"cleanupInterval" json:"cleanupInterval"`
}

// UnmarshalYAML parses a user-provided KV config. All three keys are
// required, and the TTL and cleanup interval must parse as durations
// (e.g., "168h").
func (c *KVConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	v := make(map[string]string)
	if err := unmarshal(&v); err != nil {
		return fmt.Errorf("can't parse the storage config: %v", err)
	}

	p, ok := v["storageDir"]
	if !ok || p == "" {
		return errors.New("the storage config must include a storageDir")
	}

	ttl, ok := v["keyTTL"]
	if !ok {
		return errors.New("the storage config must include a keyTTL")
	}
	d, err := time.ParseDuration(ttl)
	if err != nil {
		return fmt.Errorf("can't parse the keyTTL as a duration: %v", err)
	}

	ci, ok := v["cleanupInterval"]
	if !ok {
		return errors.New("the storage config must include a cleanupInterval")
	}
	i, err := time.ParseDuration(ci)
	if err != nil {
		return fmt.Errorf("can't parse the cleanupInterval as a duration: %v", err)
	}

	c.StorageDirPath = p
	c.KeyTTLDuration = d
	c.CleanupInterval = i
	return nil
}

// KeyValue exposes a common interface for performing CRUD operations on an
// underlying storage layer. Assumes some kind of persistent KV store
// for delivery records.
//
// Implentations need to include connection logic in code to initialize
// a Store.
type KeyValue interface {
	// Replace the value of an entry or create a new one if it doesn't exist
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

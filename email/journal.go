package email

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyurl/sfn-mail/storage"
)

// Journal keeps delivery results in a key/value store, keyed by message
// id, so they can be looked up after the process that sent them is gone.
type Journal struct {
	kv storage.KeyValue
}

// NewJournal returns a Journal backed by kv.
func NewJournal(kv storage.KeyValue) *Journal {
	return &Journal{kv: kv}
}

// Record stores r under its message id, replacing any earlier record.
func (j *Journal) Record(r *Result) error {
	if r.MessageID == "" {
		return errors.New("can't record a result without a message id")
	}
	v, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("can't encode the delivery result: %w", err)
	}
	return j.kv.Put(storage.KVEntry{
		Key:   []byte(r.MessageID),
		Value: v,
	})
}

// Lookup returns the result recorded for messageID.
func (j *Journal) Lookup(messageID string) (*Result, error) {
	e, err := j.kv.Read([]byte(messageID))
	if err != nil {
		return nil, err
	}
	var r Result
	if err := json.Unmarshal(e.Value, &r); err != nil {
		return nil, fmt.Errorf("can't decode the delivery result for %v: %w", messageID, err)
	}
	return &r, nil
}

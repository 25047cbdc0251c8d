package storage

import (
	"errors"
	"reflect"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v3"
)

// We test all BadgerDB read/write utility functions here for a simple case. While
// other projects define test-specific utility functions for, e.g., opening
// a BadgerDB connection (e.g., Jaeger [1]), all DB operations are wrapped
// in a helper for use by the application. We'll use these helpers, rather than
// ones defined just for tests.
//
// [1]: https://github.com/jaegertracing/jaeger/blob/740264bd4c7a7cca27f0eb47d80cd8f8fcbd5906/plugin/storage/badger/spanstore/cache_test.go#L109-L126
func TestSimpleBadgerDBReadWrite(t *testing.T) {
	dir := t.TempDir()
	conf := KVConfig{
		StorageDirPath: dir,
		// Set these durations to a very long value since we don't expect
		// keys to be cleaned up during the test
		KeyTTLDuration: time.Duration(10) * time.Second,
	}
	db, err := NewBadgerDB(&conf)

	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	kv := KVEntry{
		Key:   []byte("<1234@example.com>"),
		Value: []byte(`{"messageId":"<1234@example.com>"}`),
	}

	err = db.Put(kv)

	if err != nil {
		t.Fatal(err)
	}

	kv2, err := db.Read(kv.Key)

	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(kv, kv2) {
		t.Fatal("newly created and newly read KV entries do not match")
	}
}

func TestBadgerDBReadMissingKey(t *testing.T) {
	db, err := NewBadgerDB(&KVConfig{StorageDirPath: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	_, err = db.Read([]byte("<missing@example.com>"))
	if !errors.Is(err, badger.ErrKeyNotFound) {
		t.Errorf("expected a key-not-found error but got %v", err)
	}
}

func TestNoOpDB(t *testing.T) {
	var db KeyValue = &NoOpDB{}

	if err := db.Put(KVEntry{Key: []byte("k"), Value: []byte("v")}); err == nil {
		t.Error("expected Put on the no-op database to fail")
	}
	if _, err := db.Read([]byte("k")); err == nil {
		t.Error("expected Read on the no-op database to fail")
	}
	if err := db.Cleanup(); err != nil {
		t.Errorf("expected Cleanup on the no-op database to succeed, got %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("expected Close on the no-op database to succeed, got %v", err)
	}
}

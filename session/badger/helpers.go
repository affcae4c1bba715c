package badger

import (
	"bytes"
	"encoding/gob"
	"errors"

	"github.com/dgraph-io/badger/v2"

	"github.com/smcp-go/smcp/session"
)

var errEmptyID = errors.New("session record has no id")

func decodeRecord(val []byte) (session.Record, error) {
	var rec session.Record
	err := gob.NewDecoder(bytes.NewReader(val)).Decode(&rec)
	return rec, err
}

// getRecord loads the record stored for id. A missing key is
// session.ErrNotFound.
func getRecord(txn *badger.Txn, id string) (*session.Record, error) {
	item, err := txn.Get(recordKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec session.Record
	err = item.Value(func(val []byte) error {
		rec, err = decodeRecord(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// putRecord stores rec under its id.
func putRecord(txn *badger.Txn, rec session.Record) error {
	if rec.ID == "" {
		return errEmptyID
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return err
	}
	return txn.Set(recordKey(rec.ID), buf.Bytes())
}

// eachRecord calls fn with every stored record, in key order.
func eachRecord(txn *badger.Txn, fn func(session.Record) error) error {
	prefix := []byte(keyPrefix)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var rec session.Record
		err := it.Item().Value(func(val []byte) error {
			var err error
			rec, err = decodeRecord(val)
			return err
		})
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

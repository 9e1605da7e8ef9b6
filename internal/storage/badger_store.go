// internal/storage/badger_store.go
package storage

import (
	"encoding/json"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"vff/internal/errors"
)

// keySep separates key parts. Document paths never contain it.
const keySep = "\x00"

// BadgerStore provides JSON records under a key prefix
type BadgerStore struct {
	db     *badger.DB
	prefix string
}

func NewBadgerStore(db *badger.DB, prefix string) *BadgerStore {
	return &BadgerStore{
		db:     db,
		prefix: prefix,
	}
}

func (s *BadgerStore) DB() *badger.DB { return s.db }

// Key builds "<prefix>:<part>\x00<part>...".
func (s *BadgerStore) Key(parts ...string) []byte {
	return []byte(s.prefix + ":" + strings.Join(parts, keySep))
}

// Prefix builds the scan prefix covering every key that starts with parts.
func (s *BadgerStore) Prefix(parts ...string) []byte {
	return append(s.Key(parts...), keySep...)
}

// Get decodes the value at key into v. A missing key is a NotFound error.
func (s *BadgerStore) Get(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return errors.NotFound("key %q not found", strings.ReplaceAll(string(key), keySep, "/"))
	}
	if err != nil {
		return errors.IO(errors.WithStack(err), "reading %s", s.prefix)
	}

	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, v); err != nil {
			return errors.IO(errors.WithStack(err), "decoding %s record", s.prefix)
		}
		return nil
	})
}

// Create stores v at key and fails if the key is already taken.
func (s *BadgerStore) Create(txn *badger.Txn, key []byte, v any) error {
	_, err := txn.Get(key)
	if err == nil {
		return errors.IO(nil, "%s record already exists", s.prefix)
	} else if err != badger.ErrKeyNotFound {
		return errors.IO(errors.WithStack(err), "checking %s record", s.prefix)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return errors.IO(errors.WithStack(err), "marshaling %s record", s.prefix)
	}
	if err := txn.Set(key, data); err != nil {
		return errors.IO(errors.WithStack(err), "writing %s record", s.prefix)
	}
	return nil
}

// Scan visits the values under prefix in key order, or in reverse key order
// when reverse is set, until fn returns false.
func (s *BadgerStore) Scan(txn *badger.Txn, prefix []byte, reverse bool, fn func(val []byte) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.Reverse = reverse
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := prefix
	if reverse {
		seek = append(append([]byte{}, prefix...), 0xFF)
	}

	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		var more bool
		err := it.Item().Value(func(val []byte) error {
			var err error
			more, err = fn(val)
			return err
		})
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

/*
	Package badger implements a persistent session.Store on Badger. Records
	survive restarts; application objects are rebuilt by the session manager
	on first access.
*/
package badger

import (
	"github.com/dgraph-io/badger/v2"
	"github.com/joeshaw/envdecode"

	"github.com/smcp-go/smcp/session"
)

const keyPrefix = "session:"

func recordKey(id string) []byte {
	return []byte(keyPrefix + id)
}

// Config is loaded from the environment by OptionsFromEnv.
type Config struct {
	Dir       string `env:"SMCP_BADGER_DIR"`
	InMemory  bool   `env:"SMCP_BADGER_IN_MEMORY,default=false"`
	SyncWrite bool   `env:"SMCP_BADGER_SYNC_WRITES,default=true"`
}

// OptionsFromEnv returns badger options for dir, overridden by SMCP_BADGER_*
// environment variables.
func OptionsFromEnv(dir string) badger.Options {
	cfg := Config{Dir: dir, SyncWrite: true}
	// Defaults are provided via struct tags; no variables set is fine.
	_ = envdecode.Decode(&cfg)

	opts := badger.DefaultOptions(cfg.Dir).
		WithSyncWrites(cfg.SyncWrite).
		WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	return opts
}

// Open returns a session.Store implementation using Badger as the storage
// driver. The store should be .Close()'d after use.
func Open(opts badger.Options) (*badgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerStore{db: db}, nil
}

var _ session.Store = &badgerStore{}

type badgerStore struct {
	db *badger.DB
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}

func (s *badgerStore) Get(id string) (rec *session.Record, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		rec, err = getRecord(txn, id)
		return err
	})
	return rec, err
}

func (s *badgerStore) Set(rec session.Record) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return putRecord(txn, rec)
	})
}

func (s *badgerStore) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(id))
	})
}

func (s *badgerStore) List() ([]session.Record, error) {
	var records []session.Record
	err := s.db.View(func(txn *badger.Txn) error {
		return eachRecord(txn, func(rec session.Record) error {
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

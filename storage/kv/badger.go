package kv

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/dgraph-io/badger"
	log "github.com/sirupsen/logrus"
)

type badgerKV struct {
	mutex sync.Mutex
	db    *badger.DB
}

type badgerIterator struct {
	tx     *badger.Txn
	it     *badger.Iterator
	maxKey []byte
}

func MakeBadgerKV(dataDir string, logger *log.Logger) (KV, error) {
	os.MkdirAll(dataDir, 0755)

	opts := badger.DefaultOptions(dataDir)
	opts = opts.WithBypassLockGuard(true)
	if logger != nil {
		opts = opts.WithLogger(logger)
	}
	opts = opts.WithSyncWrites(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerKV{
		db: db,
	}, nil
}

func (bkv *badgerKV) Iterate(minKey, maxKey []byte) (Iterator, error) {
	tx := bkv.db.NewTransaction(false)
	it := tx.NewIterator(badger.DefaultIteratorOptions)
	it.Seek(minKey)

	return badgerIterator{
		tx:     tx,
		it:     it,
		maxKey: maxKey,
	}, nil
}

func (bit badgerIterator) Item(fn func(key, val []byte) error) error {
	if !bit.it.Valid() {
		return io.EOF
	}

	item := bit.it.Item()
	key := item.Key()
	if bytes.Compare(bit.maxKey, key) < 0 {
		return io.EOF
	}
	err := item.Value(
		func(val []byte) error {
			return fn(key, val)
		})
	if err != nil {
		return err
	}

	bit.it.Next()
	return nil
}

func (bit badgerIterator) Close() {
	bit.it.Close()
	bit.tx.Discard()
}

func (bkv *badgerKV) Get(key []byte, fn func(val []byte) error) error {
	tx := bkv.db.NewTransaction(false)
	defer tx.Discard()

	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return io.EOF
		}
		return err
	}
	return item.Value(fn)
}

func (bkv *badgerKV) Update(key []byte, fn func(val []byte) ([]byte, error)) error {
	bkv.mutex.Lock()
	defer bkv.mutex.Unlock()

	tx := bkv.db.NewTransaction(true)
	item, err := tx.Get(key)

	var newVal []byte
	if err == badger.ErrKeyNotFound {
		newVal, err = fn(nil)
	} else if err != nil {
		tx.Discard()
		return err
	} else {
		err = item.Value(
			func(val []byte) error {
				var err error
				newVal, err = fn(val)
				return err
			})
	}

	if err != nil {
		tx.Discard()
		return err
	}

	if len(newVal) == 0 {
		err = tx.Delete(key)
	} else {
		err = tx.Set(key, newVal)
	}

	if err != nil {
		tx.Discard()
		return err
	}

	return tx.Commit()
}

func (bkv *badgerKV) Close() error {
	return bkv.db.Close()
}

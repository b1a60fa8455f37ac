package kv

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

var (
	pagesBucket = []byte{'p', 'a', 'g', 'e', 's'}
)

type bboltKV struct {
	db *bbolt.DB
}

type bboltIterator struct {
	tx     *bbolt.Tx
	cr     *bbolt.Cursor
	key    []byte
	maxKey []byte
	next   bool
}

func MakeBBoltKV(dataDir string) (KV, error) {
	os.MkdirAll(dataDir, 0755)

	db, err := bbolt.Open(filepath.Join(dataDir, "pgslru.bbolt"), 0644, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(
		func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(pagesBucket)
			return err
		})
	if err != nil {
		db.Close()
		return nil, err
	}

	return bboltKV{
		db: db,
	}, nil
}

func (bkv bboltKV) begin(writable bool) (*bbolt.Tx, *bbolt.Bucket, error) {
	tx, err := bkv.db.Begin(writable)
	if err != nil {
		return nil, nil, fmt.Errorf("bbolt: begin failed: %s", err)
	}
	bkt := tx.Bucket(pagesBucket)
	if bkt == nil {
		tx.Rollback()
		return nil, nil, errors.New("bbolt: missing pages bucket")
	}
	return tx, bkt, nil
}

func (bkv bboltKV) Iterate(minKey, maxKey []byte) (Iterator, error) {
	tx, bkt, err := bkv.begin(false)
	if err != nil {
		return nil, err
	}

	return &bboltIterator{
		tx:     tx,
		cr:     bkt.Cursor(),
		key:    append(make([]byte, 0, len(minKey)), minKey...),
		maxKey: maxKey,
	}, nil
}

func (bit *bboltIterator) Item(fn func(key, val []byte) error) error {
	var key, val []byte
	if bit.next {
		key, val = bit.cr.Next()
	} else {
		key, val = bit.cr.Seek(bit.key)
		bit.next = true
		bit.key = nil
	}

	if key == nil || bytes.Compare(bit.maxKey, key) < 0 {
		return io.EOF
	}

	return fn(key, val)
}

func (bit *bboltIterator) Close() {
	bit.tx.Rollback()
}

func (bkv bboltKV) Get(key []byte, fn func(val []byte) error) error {
	tx, bkt, err := bkv.begin(false)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	val := bkt.Get(key)
	if val == nil {
		return io.EOF
	}
	return fn(val)
}

func (bkv bboltKV) Update(key []byte, fn func(val []byte) ([]byte, error)) error {
	tx, bkt, err := bkv.begin(true)
	if err != nil {
		return err
	}

	val, err := fn(bkt.Get(key))
	if err != nil {
		tx.Rollback()
		return err
	}

	if len(val) == 0 {
		err = bkt.Delete(key)
	} else {
		err = bkt.Put(key, val)
	}

	if err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (bkv bboltKV) Close() error {
	return bkv.db.Close()
}

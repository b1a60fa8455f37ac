package kv

import (
	"bytes"
	"io"
	"sync"

	"github.com/google/btree"
)

type btreeKV struct {
	mutex sync.Mutex
	tree  *btree.BTree
}

type btreeIterator struct {
	idx   int
	items []btreeItem
}

type btreeItem struct {
	key []byte
	val []byte
}

func (bi btreeItem) Less(item btree.Item) bool {
	bi2 := item.(btreeItem)
	return bytes.Compare(bi.key, bi2.key) < 0
}

func MakeBTreeKV() (KV, error) {
	return &btreeKV{
		tree: btree.New(16),
	}, nil
}

func (bkv *btreeKV) Iterate(minKey, maxKey []byte) (Iterator, error) {
	bkv.mutex.Lock()
	defer bkv.mutex.Unlock()

	var items []btreeItem
	bkv.tree.AscendGreaterOrEqual(btreeItem{key: minKey},
		func(item btree.Item) bool {
			bi := item.(btreeItem)
			if bytes.Compare(maxKey, bi.key) < 0 {
				return false
			}
			items = append(items, bi)
			return true
		})

	return &btreeIterator{
		items: items,
	}, nil
}

func (bit *btreeIterator) Item(fn func(key, val []byte) error) error {
	if bit.idx == len(bit.items) {
		return io.EOF
	}

	err := fn(bit.items[bit.idx].key, bit.items[bit.idx].val)
	bit.idx += 1
	return err
}

func (bit *btreeIterator) Close() {
	// Nothing.
}

func (bkv *btreeKV) Get(key []byte, fn func(val []byte) error) error {
	bkv.mutex.Lock()
	item := bkv.tree.Get(btreeItem{key: key})
	bkv.mutex.Unlock()

	if item == nil {
		return io.EOF
	}
	return fn(item.(btreeItem).val)
}

func (bkv *btreeKV) Update(key []byte, fn func(val []byte) ([]byte, error)) error {
	bkv.mutex.Lock()
	defer bkv.mutex.Unlock()

	var val []byte
	item := bkv.tree.Get(btreeItem{key: key})
	if item != nil {
		val = item.(btreeItem).val
	}

	val, err := fn(val)
	if err != nil {
		return err
	}

	if len(val) == 0 {
		bkv.tree.Delete(btreeItem{key: key})
	} else {
		bkv.tree.ReplaceOrInsert(btreeItem{
			key: append(make([]byte, 0, len(key)), key...),
			val: append(make([]byte, 0, len(val)), val...),
		})
	}
	return nil
}

func (bkv *btreeKV) Close() error {
	return nil
}

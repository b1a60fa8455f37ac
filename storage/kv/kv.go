package kv

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

type Iterator interface {
	Item(fn func(key, val []byte) error) error
	Close()
}

// KV is an ordered key value store. Get returns io.EOF when the key is
// missing. Update calls fn with the current value, or nil, and stores the
// value fn returns; returning an empty value deletes the key. The slices
// passed to fn are only valid for the duration of the call.
type KV interface {
	Iterate(minKey, maxKey []byte) (Iterator, error)
	Get(key []byte, fn func(val []byte) error) error
	Update(key []byte, fn func(val []byte) ([]byte, error)) error
	Close() error
}

var Backends = []string{"memory", "badger", "bbolt", "pebble"}

func Open(backend, dataDir string, logger *log.Logger) (KV, error) {
	switch backend {
	case "memory":
		return MakeBTreeKV()
	case "badger":
		return MakeBadgerKV(dataDir, logger)
	case "bbolt":
		return MakeBBoltKV(dataDir)
	case "pebble":
		return MakePebbleKV(dataDir, logger)
	}
	return nil, fmt.Errorf("kv: got %s for backend; want memory, badger, bbolt, or pebble",
		backend)
}

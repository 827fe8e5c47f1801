package parseredux

import (
	"context"

	"github.com/cockroachdb/pebble"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

const storageCacheSize = 1024

// PebbleStorage is the durable Storage backend. Reads and writes block
// the calling goroutine, so it counts as a synchronous store.
type PebbleStorage struct {
	db    *pebble.DB
	dir   string
	cache *lru.Cache[string, []byte]
}

func OpenPebbleStorage(dir string) (*PebbleStorage, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "open storage")
	}
	cache, _ := lru.New[string, []byte](storageCacheSize)
	return &PebbleStorage{db: db, dir: dir, cache: cache}, nil
}

func (ps *PebbleStorage) DB() *pebble.DB { return ps.db }

func skey(key string) []byte {
	return append([]byte{'S'}, key...)
}

func (ps *PebbleStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if val, ok := ps.cache.Get(key); ok {
		return val, nil
	}
	val, clo, err := ps.db.Get(skey(key))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "storage get")
	}
	// val is only valid until the closer; keep our own copy.
	out := make([]byte, len(val))
	copy(out, val)
	_ = clo.Close()
	ps.cache.Add(key, out)
	return out, nil
}

func (ps *PebbleStorage) Set(ctx context.Context, key string, value []byte) error {
	val := make([]byte, len(value))
	copy(val, value)
	if err := ps.db.Set(skey(key), val, &pebble.WriteOptions{Sync: true}); err != nil {
		return errors.Wrap(err, "storage set")
	}
	ps.cache.Add(key, val)
	return nil
}

func (ps *PebbleStorage) Remove(ctx context.Context, key string) error {
	if err := ps.db.Delete(skey(key), &pebble.WriteOptions{Sync: true}); err != nil {
		return errors.Wrap(err, "storage remove")
	}
	ps.cache.Remove(key)
	return nil
}

func (ps *PebbleStorage) Sync() bool { return true }

func (ps *PebbleStorage) Close() error {
	return ps.db.Close()
}

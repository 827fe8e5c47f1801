package parseredux

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("parse-redux: key not found")

// ErrSyncUnavailable is returned by synchronous read entry points when
// the configured storage only resolves asynchronously. That is a usage
// error: fail fast instead of silently answering with stale or absent
// data.
var ErrSyncUnavailable = errors.New("parse-redux: storage cannot be read synchronously")

// Storage persists small keyed documents, such as the current-user
// snapshot. Implementations report via Sync whether their calls
// complete without suspending the caller on scheduled I/O; callers use
// that capability flag to reject synchronous reads against async-only
// backends.
type Storage interface {
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Sync() bool
	Close() error
}

// MemStorage is the synchronous in-memory backend, the default when no
// storage dir is configured.
type MemStorage struct {
	lock sync.Mutex
	data map[string][]byte
}

func NewMemStorage() *MemStorage {
	return &MemStorage{data: make(map[string][]byte)}
}

func (ms *MemStorage) Get(ctx context.Context, key string) ([]byte, error) {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	val, ok := ms.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (ms *MemStorage) Set(ctx context.Context, key string, value []byte) error {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	val := make([]byte, len(value))
	copy(val, value)
	ms.data[key] = val
	return nil
}

func (ms *MemStorage) Remove(ctx context.Context, key string) error {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	delete(ms.data, key)
	return nil
}

func (ms *MemStorage) Sync() bool { return true }

func (ms *MemStorage) Close() error { return nil }

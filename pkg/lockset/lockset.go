package lockset

import "sync"

// KeyLocker serializes writers on a per-key basis. The object cache uses it
// to guarantee a single writer at a time per entity id whilst leaving reads
// unlocked: every cache mutation is a whole-value replacement, so readers see
// either the old or the new value, never a mix.
type KeyLocker struct {
	mu    sync.Mutex
	locks map[int64]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyLocker creates an empty KeyLocker.
func NewKeyLocker() *KeyLocker {
	return &KeyLocker{
		locks: make(map[int64]*entry),
	}
}

// Lock acquires the lock for key, blocking whilst another writer holds it.
func (k *KeyLocker) Lock(key int64) {
	k.mu.Lock()

	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}

	e.refs++

	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the lock for key. The lock entry is discarded once no
// writer is waiting on it.
func (k *KeyLocker) Unlock(key int64) {
	k.mu.Lock()

	e, ok := k.locks[key]
	if ok {
		e.refs--
		if e.refs <= 0 {
			delete(k.locks, key)
		}
	}

	k.mu.Unlock()

	if ok {
		e.mu.Unlock()
	}
}

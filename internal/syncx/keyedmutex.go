// Package syncx provides small synchronization helpers shared by services.
package syncx

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex serializes work per string key. Locks for distinct keys are
// independent; locking an already-held key blocks until the holder releases.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*entry)}
}

// Lock acquires the lock for key and returns the matching release func.
// The release func may be called at most once; extra calls are no-ops.
// Entries are reference-counted and dropped when the last holder releases,
// so the internal map stays bounded by the number of in-flight keys.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.entries, key)
			}
			k.mu.Unlock()
		})
	}
}

// size reports the number of live entries; used by tests.
func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

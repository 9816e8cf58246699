package services

import (
	"sort"
	"sync"
)

// KeyedMutex hands out one mutex per key. Entries are dropped once no
// goroutine holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the mutex of every key and returns the release func. Keys
// are taken in sorted order so overlapping key sets cannot deadlock.
func (k *KeyedMutex) Lock(keys ...string) func() {
	keys = uniqueSorted(keys)
	held := make([]*refMutex, 0, len(keys))
	for _, key := range keys {
		held = append(held, k.acquire(key))
	}
	return func() {
		for i := len(keys) - 1; i >= 0; i-- {
			k.release(keys[i], held[i])
		}
	}
}

func (k *KeyedMutex) acquire(key string) *refMutex {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return m
}

func (k *KeyedMutex) release(key string, m *refMutex) {
	m.Unlock()
	k.mu.Lock()
	m.refs--
	if m.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

func uniqueSorted(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

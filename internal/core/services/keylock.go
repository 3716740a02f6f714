package services

import (
	"context"
	"fmt"
	"sync"

	"adapter-persistence-service/internal/core/domain"
)

// keyLock serializes work per key inside one process. Waiting honours ctx.
type keyLock struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	sem  chan struct{}
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{slots: make(map[string]*lockSlot)}
}

// Lock blocks until key is free or ctx is done. The returned func releases
// the key and must be called exactly once.
func (l *keyLock) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{sem: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.sem <- struct{}{}:
		return func() {
			<-slot.sem
			l.release(key, slot)
		}, nil
	case <-ctx.Done():
		l.release(key, slot)
		return nil, fmt.Errorf("%w: %w", domain.ErrLockTimeout, ctx.Err())
	}
}

func (l *keyLock) release(key string, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *keyLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func adapterLockKey(ns domain.Namespace) string  { return ns.AdapterPrefix() }
func metadataLockKey(ns domain.Namespace) string { return ns.SelectionMapKey() }

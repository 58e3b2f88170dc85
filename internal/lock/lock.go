// Package lock serializes work per key (one wallet, one owner) without a global lock.
package lock

import (
	"context"
	"fmt"
	"sync"
)

// Locker grants exclusive access to a key. The returned unlock func is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// WalletKey names the lock guarding a wallet's balance
func WalletKey(id uint) string { return fmt.Sprintf("wallet:%d", id) }

// OwnerKey names the lock guarding an owner's wallet set
func OwnerKey(id uint) string { return fmt.Sprintf("owner:%d", id) }

// Keyed is an in-process Locker. Entries are reference counted and dropped
// once nobody holds or waits on them.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

// NewKeyed returns an empty Keyed locker
func NewKeyed() *Keyed {
	return &Keyed{entries: map[string]*entry{}}
}

// Lock blocks until key is free or ctx is done
func (k *Keyed) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			k.release(key, e)
		})
	}, nil
}

func (k *Keyed) release(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// held reports how many keys currently have holders or waiters
func (k *Keyed) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

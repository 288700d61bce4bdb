package scheduler

import (
	"sync"
)

// UnreachableSet remembers tile keys that failed to download. Entries live
// as long as the set; there is no retry.
type UnreachableSet struct {
	mx   sync.RWMutex
	keys map[string]struct{}
}

func NewUnreachableSet() *UnreachableSet {
	return &UnreachableSet{keys: make(map[string]struct{})}
}

func (u *UnreachableSet) Add(key string) {
	u.mx.Lock()
	u.keys[key] = struct{}{}
	u.mx.Unlock()
}

func (u *UnreachableSet) Has(key string) bool {
	u.mx.RLock()
	defer u.mx.RUnlock()

	_, ok := u.keys[key]
	return ok
}

func (u *UnreachableSet) Len() int {
	u.mx.RLock()
	defer u.mx.RUnlock()

	return len(u.keys)
}

package storage

import (
	"hash/fnv"
	"sync"
)

// StripedLocks serialises writers per table without a single global mutex.
// A table name always hashes to the same stripe; unrelated tables usually
// land on different ones.
type StripedLocks struct {
	stripes []sync.RWMutex
	count   uint32
}

// NewStripedLocks creates stripeCount locks; 0 or less means 32
func NewStripedLocks(stripeCount int) *StripedLocks {
	if stripeCount <= 0 {
		stripeCount = 32
	}
	return &StripedLocks{
		stripes: make([]sync.RWMutex, stripeCount),
		count:   uint32(stripeCount),
	}
}

// Lock acquires the exclusive lock for key and returns its release function
func (sl *StripedLocks) Lock(key string) func() {
	idx := sl.stripe(key)
	sl.stripes[idx].Lock()
	return sl.stripes[idx].Unlock
}

// RLock acquires the shared lock for key and returns its release function
func (sl *StripedLocks) RLock(key string) func() {
	idx := sl.stripe(key)
	sl.stripes[idx].RLock()
	return sl.stripes[idx].RUnlock
}

func (sl *StripedLocks) stripe(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % sl.count
}

package crud

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// keyedMutex serializes work per key using a fixed set of striped mutexes.
// Distinct keys may share a stripe; that only costs parallelism.
type keyedMutex struct {
	stripes [lockStripes]sync.Mutex
}

// Lock acquires the stripe for key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	m := &k.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}

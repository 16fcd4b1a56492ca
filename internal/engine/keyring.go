package engine

import (
	"hash/fnv"
	"sync"
)

const keyringShards = 256

// Keyring serializes the check-then-record step per (rule, contact)
// key without a global lock. Keys are striped over a fixed set of
// mutexes; unrelated contacts almost never contend.
type Keyring struct {
	shards [keyringShards]sync.Mutex
}

// Lock acquires the shard for key and returns its unlock function.
func (k *Keyring) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	shard := &k.shards[h.Sum32()%keyringShards]
	shard.Lock()
	return shard.Unlock
}

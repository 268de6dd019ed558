// Package syncutil holds keyed locks used to serialise work per sender
// address, per chat or per proposal without growing a map per key.
package syncutil

import (
	"context"
	"hash/fnv"
	"sync"
)

const shardCount = 64

func shardOf(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}

// ShardedMutex is a fixed pool of mutexes selected by key hash. Two keys
// may share a shard; callers must not hold one key while taking another.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

// Lock locks key and returns the matching unlock.
func (s *ShardedMutex) Lock(key string) func() {
	mu := &s.shards[shardOf(key)]
	mu.Lock()
	return mu.Unlock
}

// ContextShardedMutex is ShardedMutex with cancellable acquisition.
type ContextShardedMutex struct {
	shards [shardCount]chan struct{}
}

// NewContextShardedMutex returns an unlocked ContextShardedMutex.
func NewContextShardedMutex() *ContextShardedMutex {
	m := &ContextShardedMutex{}
	for i := range m.shards {
		m.shards[i] = make(chan struct{}, 1)
	}
	return m
}

// LockContext blocks until key is free or ctx is done. The returned
// function releases the lock and must be called exactly once.
func (m *ContextShardedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	slot := m.shards[shardOf(key)]
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryLock takes key only if it is free right now.
func (m *ContextShardedMutex) TryLock(key string) (func(), bool) {
	slot := m.shards[shardOf(key)]
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, true
	default:
		return nil, false
	}
}

package memcache

import (
	"fmt"
	"time"

	"github.com/o-tero/fetchkit/pkg/models"
	"github.com/o-tero/fetchkit/pkg/utils"
)

// Sharded wraps N independent Cache[T] instances behind a consistent-hash
// ring (pkg/utils.HashRing), picking a shard per fingerprint so concurrent
// operations on different keys don't contend for the same mutex. Each
// shard enforces an even share of the configured bounds; global stats are
// the sum across shards. This is the higher-load alternative to a plain
// Cache noted in cache.go's doc comment.
type Sharded[T any] struct {
	shards []*Cache[T]
	ring   *utils.HashRing
}

// NewSharded builds a Sharded cache of shardCount independent Cache[T]
// instances, each configured with cfg's policy/estimator/clock/bus and an
// even share of cfg's MaxEntries/MaxSize (0 stays 0, meaning unbounded).
func NewSharded[T any](cfg Config, shardCount int) *Sharded[T] {
	if shardCount <= 0 {
		shardCount = 1
	}

	shardCfg := cfg
	if cfg.MaxEntries > 0 {
		shardCfg.MaxEntries = divideCeil(cfg.MaxEntries, shardCount)
	}
	if cfg.MaxSize > 0 {
		shardCfg.MaxSize = divideCeil(cfg.MaxSize, shardCount)
	}

	ring := utils.NewHashRing(0)
	shards := make([]*Cache[T], shardCount)
	for i := 0; i < shardCount; i++ {
		shards[i] = New[T](shardCfg)
		ring.AddNode(fmt.Sprintf("shard-%d", i), 1)
	}

	return &Sharded[T]{shards: shards, ring: ring}
}

func divideCeil(n, d int) int {
	return (n + d - 1) / d
}

func (s *Sharded[T]) shardFor(key string) *Cache[T] {
	node := s.ring.GetNode(key)
	for i, shard := range s.shards {
		if fmt.Sprintf("shard-%d", i) == node {
			return shard
		}
	}
	return s.shards[0]
}

func (s *Sharded[T]) Set(key string, data T, staleTime, cacheTime time.Duration) {
	s.shardFor(key).Set(key, data, staleTime, cacheTime)
}

func (s *Sharded[T]) Get(key string) (T, bool) {
	return s.shardFor(key).Get(key)
}

func (s *Sharded[T]) Has(key string) bool {
	return s.shardFor(key).Has(key)
}

func (s *Sharded[T]) Update(key string, fn func(e *models.Entry[T])) bool {
	return s.shardFor(key).Update(key, fn)
}

func (s *Sharded[T]) Peek(key string) (models.Entry[T], bool) {
	return s.shardFor(key).Peek(key)
}

func (s *Sharded[T]) Delete(key string) bool {
	return s.shardFor(key).Delete(key)
}

func (s *Sharded[T]) Clear() {
	for _, shard := range s.shards {
		shard.Clear()
	}
}

func (s *Sharded[T]) Keys() []string {
	var keys []string
	for _, shard := range s.shards {
		keys = append(keys, shard.Keys()...)
	}
	return keys
}

func (s *Sharded[T]) Cleanup() int {
	total := 0
	for _, shard := range s.shards {
		total += shard.Cleanup()
	}
	return total
}

func (s *Sharded[T]) GetStats() models.CacheStats {
	total := models.CacheStats{}
	for _, shard := range s.shards {
		st := shard.GetStats()
		total.EntryCount += st.EntryCount
		total.Size += st.Size
		total.MaxSize += st.MaxSize
		total.MaxEntries += st.MaxEntries
		total.Hits += st.Hits
		total.Misses += st.Misses
		total.Evictions += st.Evictions
		total.Expirations += st.Expirations
	}
	total.HitRatio = models.ComputeHitRatio(total.Hits, total.Misses)
	return total
}

func (s *Sharded[T]) Dispose() {
	for _, shard := range s.shards {
		shard.Dispose()
	}
}

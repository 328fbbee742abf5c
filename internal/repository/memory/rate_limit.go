// Package memory holds process-local stores that need no external backend.
package memory

import (
	"context"
	"hash/maphash"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arklim/octopis-auth/internal/core/domain"
	"github.com/arklim/octopis-auth/internal/core/port"
)

// DefaultShardCount is used when the configured shard count is not a power of two.
const DefaultShardCount = 16

// SlidingWindowConfig defines the limit enforced per key.
type SlidingWindowConfig struct {
	MaxRequests int
	Window      time.Duration
	Shards      int
}

// SlidingWindowStore keeps per-key admission timestamps in a sharded map.
// Prune, compare and append for one key happen under a single shard lock.
type SlidingWindowStore struct {
	cfg       SlidingWindowConfig
	shards    []*windowShard
	shardMask uint64
	seed      maphash.Seed
	keys      atomic.Int64
}

type windowShard struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewSlidingWindowStore builds a store enforcing cfg.
func NewSlidingWindowStore(cfg SlidingWindowConfig) *SlidingWindowStore {
	shardCount := cfg.Shards
	if shardCount <= 0 || shardCount&(shardCount-1) != 0 {
		shardCount = DefaultShardCount
	}
	cfg.Shards = shardCount

	s := &SlidingWindowStore{
		cfg:       cfg,
		shards:    make([]*windowShard, shardCount),
		shardMask: uint64(shardCount - 1),
		seed:      maphash.MakeSeed(),
	}
	for i := range s.shards {
		s.shards[i] = &windowShard{windows: make(map[string][]time.Time)}
	}
	return s
}

func (s *SlidingWindowStore) shard(key string) *windowShard {
	return s.shards[maphash.String(s.seed, key)&s.shardMask]
}

// Admit records now against key when the window still has room. A now earlier
// than the newest recorded admission is clamped to it, so callers that read the
// clock before taking the shard lock still append in order.
func (s *SlidingWindowStore) Admit(key string, now time.Time) domain.RateLimitDecision {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	existing, tracked := sh.windows[key]
	if n := len(existing); n > 0 && now.Before(existing[n-1]) {
		now = existing[n-1]
	}
	bucket := prune(existing, now, s.cfg.Window)

	if len(bucket) < s.cfg.MaxRequests {
		bucket = append(bucket, now)
		sh.windows[key] = bucket
		if !tracked {
			s.keys.Add(1)
		}
		return domain.RateLimitDecision{
			Allowed:   true,
			Remaining: s.cfg.MaxRequests - len(bucket),
			ResetAt:   bucket[0].Add(s.cfg.Window),
		}
	}

	if len(bucket) == 0 {
		// MaxRequests <= 0 rejects everything; nothing is tracked for the key.
		if tracked {
			delete(sh.windows, key)
			s.keys.Add(-1)
		}
		return domain.RateLimitDecision{RetryAfter: retryAfter(s.cfg.Window), ResetAt: now.Add(s.cfg.Window)}
	}

	sh.windows[key] = bucket
	oldest := bucket[0]
	return domain.RateLimitDecision{
		Allowed:    false,
		Remaining:  0,
		RetryAfter: retryAfter(s.cfg.Window - now.Sub(oldest)),
		ResetAt:    oldest.Add(s.cfg.Window),
	}
}

// Sweep drops keys whose newest admission already left the window and
// returns how many were removed.
func (s *SlidingWindowStore) Sweep(now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, bucket := range sh.windows {
			if len(bucket) == 0 || !inWindow(bucket[len(bucket)-1], now, s.cfg.Window) {
				delete(sh.windows, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	s.keys.Add(-int64(removed))
	return removed
}

// Run sweeps idle keys every interval until ctx is done. onSweep, when set,
// receives the number of removed keys after each pass.
func (s *SlidingWindowStore) Run(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	if interval <= 0 {
		interval = s.cfg.Window
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed := s.Sweep(now)
			if onSweep != nil {
				onSweep(removed)
			}
		}
	}
}

// Len returns the number of tracked keys without taking shard locks.
func (s *SlidingWindowStore) Len() int {
	return int(s.keys.Load())
}

// Limit returns the configured maximum admissions per window.
func (s *SlidingWindowStore) Limit() int {
	return s.cfg.MaxRequests
}

// prune removes timestamps at or before now-window. Timestamps are appended
// in admission order so expired entries always form a prefix.
func prune(bucket []time.Time, now time.Time, window time.Duration) []time.Time {
	idx := 0
	for idx < len(bucket) && !inWindow(bucket[idx], now, window) {
		idx++
	}
	if idx == 0 {
		return bucket
	}
	return append(bucket[:0], bucket[idx:]...)
}

func inWindow(at, now time.Time, window time.Duration) bool {
	return at.After(now.Add(-window))
}

func retryAfter(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

var _ port.RateLimitStore = (*SlidingWindowStore)(nil)

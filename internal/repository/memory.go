package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryGuardRepository is the in-process fallback when redis is unavailable.
// Entries are swept lazily on access and in bulk via Sweep.
type MemoryGuardRepository struct {
	seen sync.Map
	hits sync.Map
}

type seenEntry struct {
	expiresAt time.Time
}

type hitEntry struct {
	mu        sync.Mutex
	count     int64
	expiresAt time.Time
}

func NewMemoryGuardRepository() *MemoryGuardRepository {
	return &MemoryGuardRepository{}
}

func (r *MemoryGuardRepository) MarkSeen(ctx context.Context, key string, window time.Duration) (bool, error) {
	now := time.Now()
	entry := &seenEntry{expiresAt: now.Add(window)}

	for {
		actual, loaded := r.seen.LoadOrStore(key, entry)
		if !loaded {
			return true, nil
		}
		existing := actual.(*seenEntry)
		if now.Before(existing.expiresAt) {
			return false, nil
		}
		// Expired entry; replace and treat as first.
		if r.seen.CompareAndSwap(key, actual, entry) {
			return true, nil
		}
	}
}

func (r *MemoryGuardRepository) CountHit(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now()
	actual, _ := r.hits.LoadOrStore(key, &hitEntry{expiresAt: now.Add(window)})
	entry := actual.(*hitEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if now.After(entry.expiresAt) {
		entry.count = 0
		entry.expiresAt = now.Add(window)
	}
	entry.count++
	return entry.count, nil
}

// Sweep drops expired entries. Called periodically by the guard.
func (r *MemoryGuardRepository) Sweep() {
	now := time.Now()
	r.seen.Range(func(key, value any) bool {
		if now.After(value.(*seenEntry).expiresAt) {
			r.seen.Delete(key)
		}
		return true
	})
	r.hits.Range(func(key, value any) bool {
		entry := value.(*hitEntry)
		entry.mu.Lock()
		expired := now.After(entry.expiresAt)
		entry.mu.Unlock()
		if expired {
			r.hits.Delete(key)
		}
		return true
	})
}

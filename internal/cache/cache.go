// Package cache holds the in-process caches used by the API server and the
// ledger worker, plus a janitor that sweeps expired entries.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cache is the generic key/value contract implemented by LRUCache.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	DeletePrefix(prefix string) int
	Size() int
}

// Cleaner is anything holding entries that expire, such as an LRUCache or
// the in-memory session store.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically sweeps every registered Cleaner.
type Manager struct {
	mu       sync.Mutex
	cleaners map[string]Cleaner
	done     chan struct{}
}

func NewManager() *Manager {
	return &Manager{cleaners: make(map[string]Cleaner)}
}

// Register adds a cleaner under a name used in logs.
func (m *Manager) Register(name string, c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleaners[name] = c
}

// Sweep runs one cleanup pass and returns the number of entries removed.
func (m *Manager) Sweep(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for name, c := range m.cleaners {
		if n := c.CleanExpired(); n > 0 {
			slog.DebugContext(ctx, "Expired entries removed", "cache", name, "count", n)
			total += n
		}
	}
	return total
}

// Start sweeps every interval until ctx is done. Wait blocks until the
// sweeper has exited.
func (m *Manager) Start(ctx context.Context, interval time.Duration) {
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Manager) Wait() {
	if m.done != nil {
		<-m.done
	}
}

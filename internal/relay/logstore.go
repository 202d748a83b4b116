package relay

import (
	"sync"
	"time"
)

// LogHistoryLimit is the number of log entries kept per tenant.
const LogHistoryLimit = 1000

// Log categories written by the relay itself.
const (
	LogCategoryEvent      = "event"
	LogCategoryConnection = "connection"
	LogCategoryDelivery   = "delivery"
)

// LogEntry is one diagnostic record.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Category  string         `json:"category"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

type tenantLog struct {
	mu      sync.Mutex
	entries *Ring[LogEntry]
	dead    bool
}

// LogStore is a per-tenant bounded diagnostic trail. It is never used
// for replay.
type LogStore struct {
	mu       sync.RWMutex
	tenants  map[string]*tenantLog
	capacity int
	now      func() time.Time
}

// NewLogStore creates a LogStore holding LogHistoryLimit entries per tenant.
func NewLogStore() *LogStore {
	return &LogStore{
		tenants:  make(map[string]*tenantLog),
		capacity: LogHistoryLimit,
		now:      time.Now,
	}
}

// Append records an entry, evicting the oldest when full.
func (l *LogStore) Append(tenant, category, message string, data map[string]any) {
	entry := LogEntry{
		Timestamp: l.now(),
		Category:  category,
		Message:   message,
		Data:      data,
	}
	for {
		tl := l.entry(tenant)
		tl.mu.Lock()
		if tl.dead {
			tl.mu.Unlock()
			continue
		}
		tl.entries.Push(entry)
		tl.mu.Unlock()
		return
	}
}

// Read returns the newest limit entries, oldest first. limit <= 0 returns all.
func (l *LogStore) Read(tenant string, limit int) []LogEntry {
	l.mu.RLock()
	tl, ok := l.tenants[tenant]
	l.mu.RUnlock()
	if !ok {
		return []LogEntry{}
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.entries.Last(limit)
}

// Clear drops all entries for tenant.
func (l *LogStore) Clear(tenant string) {
	l.mu.Lock()
	tl, ok := l.tenants[tenant]
	delete(l.tenants, tenant)
	l.mu.Unlock()

	if ok {
		tl.mu.Lock()
		tl.dead = true
		tl.mu.Unlock()
	}
}

func (l *LogStore) entry(tenant string) *tenantLog {
	l.mu.RLock()
	tl, ok := l.tenants[tenant]
	l.mu.RUnlock()
	if ok {
		return tl
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if tl, ok := l.tenants[tenant]; ok {
		return tl
	}
	tl = &tenantLog{entries: NewRing[LogEntry](l.capacity)}
	l.tenants[tenant] = tl
	return tl
}

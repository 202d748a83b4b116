package relay

import "sync"

// tenantLocks serializes publish and join work per tenant. Entries are
// reference counted and dropped once no goroutine holds or waits on them.
type tenantLocks struct {
	mu    sync.Mutex
	locks map[string]*tenantLock
}

type tenantLock struct {
	mu   sync.Mutex
	refs int
}

func newTenantLocks() *tenantLocks {
	return &tenantLocks{locks: make(map[string]*tenantLock)}
}

// lock blocks until tenant's lock is held and returns its release func.
func (t *tenantLocks) lock(tenant string) func() {
	t.mu.Lock()
	l, ok := t.locks[tenant]
	if !ok {
		l = &tenantLock{}
		t.locks[tenant] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, tenant)
		}
		t.mu.Unlock()
	}
}

func (t *tenantLocks) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

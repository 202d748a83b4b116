package relay

import (
	"sync"
	"time"
)

// ChatHistoryLimit is the number of chat messages kept per tenant.
const ChatHistoryLimit = 100

// Snapshot is a point-in-time copy of a tenant's replayable state.
type Snapshot struct {
	ChatMessages []ChatMessage `json:"chatMessages"`
	ViewerCount  int           `json:"viewerCount"`
	BannerText   *string       `json:"bannerText"`
	LastUpdate   time.Time     `json:"lastUpdate"`
}

type tenantState struct {
	mu          sync.Mutex
	chat        *Ring[ChatMessage]
	viewerCount int
	banner      *string
	lastUpdate  time.Time
	dead        bool
}

// StateStore keeps a bounded snapshot of recent state per tenant.
// State outlives subscribers; it is dropped only by Clear.
type StateStore struct {
	mu      sync.RWMutex
	tenants map[string]*tenantState
	now     func() time.Time
}

// NewStateStore creates an empty StateStore.
func NewStateStore() *StateStore {
	return &StateStore{
		tenants: make(map[string]*tenantState),
		now:     time.Now,
	}
}

// AppendChat records a chat message, evicting the oldest past ChatHistoryLimit.
func (s *StateStore) AppendChat(tenant string, msg ChatMessage) {
	s.update(tenant, func(st *tenantState, now time.Time) {
		if msg.Timestamp.IsZero() {
			msg.Timestamp = now
		}
		st.chat.Push(msg)
	})
}

// SetViewerCount overwrites the current viewer count.
func (s *StateStore) SetViewerCount(tenant string, count int) {
	s.update(tenant, func(st *tenantState, _ time.Time) {
		st.viewerCount = count
	})
}

// SetBanner overwrites the current banner text.
func (s *StateStore) SetBanner(tenant, text string) {
	s.update(tenant, func(st *tenantState, _ time.Time) {
		st.banner = &text
	})
}

// ClearBanner removes the banner so snapshots report it as absent.
func (s *StateStore) ClearBanner(tenant string) {
	s.update(tenant, func(st *tenantState, _ time.Time) {
		st.banner = nil
	})
}

// Snapshot returns a copy of tenant's state. Unknown tenants get an
// empty snapshot; no error is possible.
func (s *StateStore) Snapshot(tenant string) Snapshot {
	st := s.entry(tenant)
	st.mu.Lock()
	defer st.mu.Unlock()

	snap := Snapshot{
		ChatMessages: st.chat.Last(0),
		ViewerCount:  st.viewerCount,
		LastUpdate:   st.lastUpdate,
	}
	if st.banner != nil {
		text := *st.banner
		snap.BannerText = &text
	}
	return snap
}

// Clear drops all state for tenant.
func (s *StateStore) Clear(tenant string) {
	s.mu.Lock()
	st, ok := s.tenants[tenant]
	delete(s.tenants, tenant)
	s.mu.Unlock()

	if ok {
		st.mu.Lock()
		st.dead = true
		st.mu.Unlock()
	}
}

// Len returns the number of tenants with state.
func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tenants)
}

func (s *StateStore) update(tenant string, fn func(st *tenantState, now time.Time)) {
	for {
		st := s.entry(tenant)
		st.mu.Lock()
		if st.dead {
			st.mu.Unlock()
			continue
		}
		now := s.now()
		fn(st, now)
		st.lastUpdate = now
		st.mu.Unlock()
		return
	}
}

// entry returns tenant's state, creating it lazily.
func (s *StateStore) entry(tenant string) *tenantState {
	s.mu.RLock()
	st, ok := s.tenants[tenant]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.tenants[tenant]; ok {
		return st
	}
	st = &tenantState{chat: NewRing[ChatMessage](ChatHistoryLimit)}
	s.tenants[tenant] = st
	return st
}

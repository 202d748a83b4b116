package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// mockSubscriber records every event it is sent.
type mockSubscriber struct {
	id      string
	mu      sync.Mutex
	events  []Event
	failErr error
	closed  bool
	done    chan struct{}
}

func newMockSubscriber(id string) *mockSubscriber {
	return &mockSubscriber{id: id, done: make(chan struct{})}
}

func (m *mockSubscriber) ID() string { return m.id }

func (m *mockSubscriber) Send(evt Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	if m.closed {
		return ErrSubscriberClosed
	}
	m.events = append(m.events, evt)
	return nil
}

func (m *mockSubscriber) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
}

func (m *mockSubscriber) Done() <-chan struct{} { return m.done }

func (m *mockSubscriber) received() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

func (m *mockSubscriber) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// mockTenants is an in-memory TenantRegistry.
type mockTenants struct {
	byCode map[string]Tenant
	byID   map[string]Tenant
	err    error
}

func newMockTenants(tenants ...Tenant) *mockTenants {
	m := &mockTenants{byCode: map[string]Tenant{}, byID: map[string]Tenant{}}
	for _, t := range tenants {
		m.byCode[t.Code] = t
		m.byID[t.ID] = t
	}
	return m
}

func (m *mockTenants) ResolveCode(_ context.Context, code string) (Tenant, error) {
	if m.err != nil {
		return Tenant{}, m.err
	}
	if t, ok := m.byCode[code]; ok {
		return t, nil
	}
	return Tenant{}, fmt.Errorf("code %q: %w", code, ErrTenantNotFound)
}

func (m *mockTenants) ResolveTenant(_ context.Context, id string) (Tenant, error) {
	if m.err != nil {
		return Tenant{}, m.err
	}
	if t, ok := m.byID[id]; ok {
		return t, nil
	}
	return Tenant{}, fmt.Errorf("tenant %q: %w", id, ErrTenantNotFound)
}

var errBrokenPipe = errors.New("broken pipe")

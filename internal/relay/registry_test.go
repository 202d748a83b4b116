package relay

import (
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"
)

func ids(subs []Subscriber) map[string]bool {
	out := make(map[string]bool, len(subs))
	for _, s := range subs {
		out[s.ID()] = true
	}
	return out
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	s1 := newMockSubscriber("s1")
	s2 := newMockSubscriber("s2")
	g := newMockSubscriber("g")

	r.Register(s1, "alice")
	r.Register(s2, "bob")
	r.Register(g, "")

	if got := ids(r.SubscribersFor("alice")); len(got) != 1 || !got["s1"] {
		t.Errorf("alice: expected {s1}, got %v", got)
	}
	if got := ids(r.SubscribersFor("bob")); len(got) != 1 || !got["s2"] {
		t.Errorf("bob: expected {s2}, got %v", got)
	}
	if got := ids(r.Global()); len(got) != 1 || !got["g"] {
		t.Errorf("global: expected {g}, got %v", got)
	}
	if r.Count("") != 3 {
		t.Errorf("expected total count 3, got %d", r.Count(""))
	}
	if r.Count("alice") != 1 {
		t.Errorf("expected alice count 1, got %d", r.Count("alice"))
	}
}

func TestRegistry_DuplicateRegisterIsNoop(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	s := newMockSubscriber("s1")

	r.Register(s, "alice")
	r.Register(s, "alice")

	if r.Count("alice") != 1 {
		t.Errorf("expected 1 subscriber after duplicate register, got %d", r.Count("alice"))
	}
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	s := newMockSubscriber("s1")
	other := newMockSubscriber("s2")

	r.Register(s, "alice")
	r.Register(other, "alice")
	r.Unregister(s, "alice")
	r.Unregister(s, "alice")

	if got := ids(r.SubscribersFor("alice")); len(got) != 1 || !got["s2"] {
		t.Errorf("expected {s2}, got %v", got)
	}
}

func TestRegistry_UnregisterUnknownTenantIsNoop(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	s := newMockSubscriber("s1")
	r.Register(s, "alice")

	r.Unregister(s, "bob")
	r.Unregister(newMockSubscriber("ghost"), "alice")
	r.Unregister(newMockSubscriber("ghost"), "")

	if r.Count("alice") != 1 {
		t.Errorf("expected alice untouched, got %d", r.Count("alice"))
	}
	if r.TenantCount() != 1 {
		t.Errorf("expected 1 tenant, got %d", r.TenantCount())
	}
}

func TestRegistry_EmptyTenantRemoved(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	s1 := newMockSubscriber("s1")
	s2 := newMockSubscriber("s2")

	r.Register(s1, "alice")
	r.Register(s2, "alice")
	r.Unregister(s1, "alice")
	if r.TenantCount() != 1 {
		t.Fatalf("expected tenant kept while s2 remains, got %d", r.TenantCount())
	}

	r.Unregister(s2, "alice")
	if r.TenantCount() != 0 {
		t.Errorf("expected no residual tenant entry, got %d", r.TenantCount())
	}
	if len(r.SubscribersFor("alice")) != 0 {
		t.Error("expected empty subscriber set")
	}

	// The tenant can be re-populated after removal.
	r.Register(s1, "alice")
	if r.Count("alice") != 1 {
		t.Errorf("expected re-registration to succeed, got %d", r.Count("alice"))
	}
}

func TestRegistry_RandomSequenceMatchesModel(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	model := map[string]map[string]bool{}
	subs := make([]*mockSubscriber, 6)
	for i := range subs {
		subs[i] = newMockSubscriber(fmt.Sprintf("s%d", i))
	}
	tenants := []string{"alice", "bob", "carol"}

	for step := 0; step < 300; step++ {
		sub := subs[(step*7)%len(subs)]
		tenant := tenants[(step*5)%len(tenants)]
		if step%3 == 0 {
			r.Unregister(sub, tenant)
			delete(model[tenant], sub.ID())
		} else {
			r.Register(sub, tenant)
			if model[tenant] == nil {
				model[tenant] = map[string]bool{}
			}
			model[tenant][sub.ID()] = true
		}

		for _, tn := range tenants {
			got := ids(r.SubscribersFor(tn))
			if len(got) != len(model[tn]) {
				t.Fatalf("step %d tenant %s: expected %v, got %v", step, tn, model[tn], got)
			}
			for id := range model[tn] {
				if !got[id] {
					t.Fatalf("step %d tenant %s: missing %s", step, tn, id)
				}
			}
		}
	}

	nonEmpty := 0
	for _, set := range model {
		if len(set) > 0 {
			nonEmpty++
		}
	}
	if r.TenantCount() != nonEmpty {
		t.Errorf("expected %d tenant entries, got %d", nonEmpty, r.TenantCount())
	}
}

func TestRegistry_ConcurrentChurn(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			tenant := fmt.Sprintf("tenant-%d", worker%2)
			for i := 0; i < 200; i++ {
				s := newMockSubscriber(fmt.Sprintf("w%d-%d", worker, i))
				r.Register(s, tenant)
				r.Unregister(s, tenant)
			}
		}(w)
	}
	wg.Wait()

	if r.TenantCount() != 0 {
		t.Errorf("expected no tenants after churn, got %d", r.TenantCount())
	}
	if r.Count("") != 0 {
		t.Errorf("expected no subscribers after churn, got %d", r.Count(""))
	}
}

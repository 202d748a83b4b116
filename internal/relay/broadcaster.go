package relay

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Report summarises one Broadcast call.
type Report struct {
	Targeted  int `json:"targeted"`
	Delivered int `json:"delivered"`
	Evicted   int `json:"evicted"`
}

// BroadcastStats are cumulative counters since start.
type BroadcastStats struct {
	Broadcasts uint64 `json:"broadcasts"`
	Delivered  uint64 `json:"delivered"`
	Evicted    uint64 `json:"evicted"`
	Unroutable uint64 `json:"unroutable"`
}

// EvictFunc is notified after a subscriber has been evicted.
type EvictFunc func(sub Subscriber, tenant string, err error)

// Broadcaster routes events to subscribers by tenant scope. It never
// looks at the event type and never fails the publisher.
type Broadcaster struct {
	registry *Registry
	logger   *zap.Logger
	onEvict  EvictFunc

	broadcasts atomic.Uint64
	delivered  atomic.Uint64
	evicted    atomic.Uint64
	unroutable atomic.Uint64
}

// NewBroadcaster creates a Broadcaster over registry. onEvict may be nil.
func NewBroadcaster(registry *Registry, logger *zap.Logger, onEvict EvictFunc) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		logger:   logger,
		onEvict:  onEvict,
	}
}

// Broadcast delivers evt to tenant's subscribers, or when tenant is empty
// to the global set and to every tenant set.
//
// NOTE: the unscoped path reaches tenant-bound subscribers as well as
// global ones. Legacy producers depend on it; tenant-bound clients
// therefore see unscoped events in addition to their own.
func (b *Broadcaster) Broadcast(evt Event, tenant string) Report {
	b.broadcasts.Add(1)

	var report Report
	if tenant != "" {
		subs := b.registry.SubscribersFor(tenant)
		if len(subs) == 0 {
			b.unroutable.Add(1)
			b.logger.Warn("no subscribers for tenant",
				zap.String("tenant", tenant),
				zap.String("type", string(evt.Type)),
			)
			return report
		}
		b.deliver(evt, tenant, subs, &report)
		return report
	}

	b.deliver(evt, "", b.registry.Global(), &report)
	for _, t := range b.registry.Tenants() {
		b.deliver(evt, t, b.registry.SubscribersFor(t), &report)
	}
	if report.Targeted == 0 {
		b.unroutable.Add(1)
		b.logger.Debug("unscoped event had no subscribers", zap.String("type", string(evt.Type)))
	}
	return report
}

// Stats returns the cumulative counters.
func (b *Broadcaster) Stats() BroadcastStats {
	return BroadcastStats{
		Broadcasts: b.broadcasts.Load(),
		Delivered:  b.delivered.Load(),
		Evicted:    b.evicted.Load(),
		Unroutable: b.unroutable.Load(),
	}
}

// deliver sends to each subscriber independently. A failed send evicts
// that subscriber and moves on.
func (b *Broadcaster) deliver(evt Event, tenant string, subs []Subscriber, report *Report) {
	for _, sub := range subs {
		report.Targeted++
		if err := sub.Send(evt); err != nil {
			report.Evicted++
			b.evict(sub, tenant, err)
			continue
		}
		report.Delivered++
		b.delivered.Add(1)
	}
}

func (b *Broadcaster) evict(sub Subscriber, tenant string, err error) {
	b.evicted.Add(1)
	b.registry.Unregister(sub, tenant)
	sub.Close()

	b.logger.Warn("evicted subscriber after delivery failure",
		zap.String("subscriberID", sub.ID()),
		zap.String("tenant", tenant),
		zap.Error(err),
	)
	if b.onEvict != nil {
		b.onEvict(sub, tenant, err)
	}
}

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Options configures a Core.
type Options struct {
	Tenants TenantRegistry
	Logger  *zap.Logger
}

// Core owns the registry, stores, broadcaster and join handler. Nothing
// outside it touches their maps directly.
type Core struct {
	registry    *Registry
	state       *StateStore
	logs        *LogStore
	broadcaster *Broadcaster
	joiner      *Joiner
	logger      *zap.Logger
}

// Stats is an observability summary.
type Stats struct {
	Subscribers       int            `json:"subscribers"`
	GlobalSubscribers int            `json:"globalSubscribers"`
	Tenants           int            `json:"tenants"`
	Broadcast         BroadcastStats `json:"broadcast"`
}

// New creates a Core.
func New(opts Options) *Core {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tenants := opts.Tenants
	if tenants == nil {
		tenants = noTenants{}
	}

	c := &Core{
		registry: NewRegistry(logger),
		state:    NewStateStore(),
		logs:     NewLogStore(),
		logger:   logger,
	}
	c.broadcaster = NewBroadcaster(c.registry, logger, c.recordEviction)
	c.joiner = NewJoiner(tenants, c.registry, c.state, c.logs, logger)
	return c
}

// Registry exposes the connection registry for read-only probes.
func (c *Core) Registry() *Registry { return c.registry }

// Publish is the ingest contract: apply state-bearing events to the
// tenant's state, then deliver. It never fails the publisher. State and
// delivery for one tenant are serialized with joins to that tenant.
func (c *Core) Publish(evt Event, tenant string) Report {
	if tenant != "" {
		unlock := c.joiner.locks.lock(tenant)
		defer unlock()
		if err := c.applyState(evt, tenant); err != nil {
			c.logger.Debug("event not applied to state",
				zap.String("tenant", tenant),
				zap.String("type", string(evt.Type)),
				zap.Error(err),
			)
		}
	}

	report := c.broadcaster.Broadcast(evt, tenant)

	if tenant != "" {
		c.logs.Append(tenant, LogCategoryEvent, string(evt.Type), map[string]any{
			"delivered": report.Delivered,
			"evicted":   report.Evicted,
		})
	}
	return report
}

// Join runs the join protocol for sub.
func (c *Core) Join(ctx context.Context, sub Subscriber, req JoinRequest) (*Session, error) {
	return c.joiner.Join(ctx, sub, req)
}

// StateSnapshot returns tenant's replayable state.
func (c *Core) StateSnapshot(tenant string) Snapshot {
	return c.state.Snapshot(tenant)
}

// Logs returns tenant's newest limit log entries.
func (c *Core) Logs(tenant string, limit int) []LogEntry {
	return c.logs.Read(tenant, limit)
}

// AppendLog records a diagnostic entry for tenant.
func (c *Core) AppendLog(tenant, category, message string, data map[string]any) {
	c.logs.Append(tenant, category, message, data)
}

// DeleteTenant drops state and logs for a tenant removed upstream.
func (c *Core) DeleteTenant(tenant string) {
	c.state.Clear(tenant)
	c.logs.Clear(tenant)
	c.logger.Info("tenant state cleared", zap.String("tenant", tenant))
}

// Stats returns current counts and broadcast counters.
func (c *Core) Stats() Stats {
	return Stats{
		Subscribers:       c.registry.Count(""),
		GlobalSubscribers: len(c.registry.Global()),
		Tenants:           c.registry.TenantCount(),
		Broadcast:         c.broadcaster.Stats(),
	}
}

// Shutdown closes and unregisters every subscriber.
func (c *Core) Shutdown() {
	for _, sub := range c.registry.Global() {
		c.registry.Unregister(sub, "")
		sub.Close()
	}
	for _, tenant := range c.registry.Tenants() {
		for _, sub := range c.registry.SubscribersFor(tenant) {
			c.registry.Unregister(sub, tenant)
			sub.Close()
		}
	}
	c.logger.Info("relay core shut down")
}

func (c *Core) recordEviction(sub Subscriber, tenant string, err error) {
	if tenant == "" {
		return
	}
	c.logs.Append(tenant, LogCategoryDelivery, "subscriber evicted", map[string]any{
		"subscriberID": sub.ID(),
		"error":        err.Error(),
	})
}

// noTenants rejects every tenant join; generic joins still work.
type noTenants struct{}

func (noTenants) ResolveCode(context.Context, string) (Tenant, error) {
	return Tenant{}, ErrTenantNotFound
}

func (noTenants) ResolveTenant(context.Context, string) (Tenant, error) {
	return Tenant{}, ErrTenantNotFound
}

type chatPayload struct {
	SenderName string          `json:"senderName"`
	Text       string          `json:"text"`
	Timestamp  json.RawMessage `json:"timestamp"`
}

// parseTimestamp accepts unix milliseconds or an RFC 3339 string.
func parseTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms)
	}
	var t time.Time
	if err := json.Unmarshal(raw, &t); err == nil {
		return t
	}
	return time.Time{}
}

type viewerCountPayload struct {
	Count *int `json:"count"`
}

type bannerPayload struct {
	Text *string `json:"text"`
}

func (c *Core) applyState(evt Event, tenant string) error {
	switch evt.Type {
	case EventChat:
		var p chatPayload
		if err := decodePayload(evt.Data, &p); err != nil {
			return err
		}
		c.state.AppendChat(tenant, ChatMessage{
			SenderName: p.SenderName,
			Text:       p.Text,
			Timestamp:  parseTimestamp(p.Timestamp),
		})

	case EventViewerCount:
		var p viewerCountPayload
		if err := decodePayload(evt.Data, &p); err != nil {
			return err
		}
		if p.Count == nil {
			return fmt.Errorf("viewer-count payload missing count")
		}
		c.state.SetViewerCount(tenant, *p.Count)

	case EventBanner:
		var p bannerPayload
		if err := decodePayload(evt.Data, &p); err != nil {
			return err
		}
		if p.Text == nil || *p.Text == "" {
			c.state.ClearBanner(tenant)
			return nil
		}
		c.state.SetBanner(tenant, *p.Text)
	}
	return nil
}

// decodePayload converts an opaque payload into dst via its JSON form.
func decodePayload(data any, dst any) error {
	var raw []byte
	switch v := data.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		raw = b
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

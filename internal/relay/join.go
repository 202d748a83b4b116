package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Tenant is what the tenant registry knows about a streaming identity.
type Tenant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Code     string `json:"code"`
	Active   bool   `json:"active"`
}

// TenantRegistry resolves join requests. Implementations return an error
// wrapping ErrTenantNotFound for unknown keys.
type TenantRegistry interface {
	ResolveCode(ctx context.Context, code string) (Tenant, error)
	ResolveTenant(ctx context.Context, idOrUsername string) (Tenant, error)
}

// JoinState is a step of the join protocol.
type JoinState string

const (
	StateConnecting JoinState = "connecting"
	StateResolving  JoinState = "resolving-tenant"
	StateJoined     JoinState = "joined"
	StateStreaming  JoinState = "streaming"
	StateRejected   JoinState = "rejected"
	StateClosed     JoinState = "closed"
)

// JoinRequest selects how to join. With neither field set the subscriber
// joins the global set.
type JoinRequest struct {
	Code   string `json:"code,omitempty"`
	Tenant string `json:"tenant,omitempty"`
}

// Generic reports whether the request carries no tenant selector.
func (r JoinRequest) Generic() bool {
	return r.Code == "" && r.Tenant == ""
}

// Session is one subscriber's pass through the join protocol.
type Session struct {
	joiner *Joiner
	sub    Subscriber

	mu      sync.Mutex
	state   JoinState
	history []JoinState
	tenant  string
	code    string
}

// State returns the current state.
func (s *Session) State() JoinState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns every state the session has been in, in order.
func (s *Session) History() []JoinState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JoinState, len(s.history))
	copy(out, s.history)
	return out
}

// Tenant returns the bound tenant ID, empty for a generic join.
func (s *Session) Tenant() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tenant
}

// Subscriber returns the subscriber driven by this session.
func (s *Session) Subscriber() Subscriber { return s.sub }

// Close unregisters the subscriber. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	registered := s.state == StateJoined || s.state == StateStreaming
	tenant := s.tenant
	s.transition(StateClosed)
	s.mu.Unlock()

	if !registered {
		return
	}
	s.joiner.registry.Unregister(s.sub, tenant)
	if tenant != "" {
		s.joiner.logs.Append(tenant, LogCategoryConnection, "subscriber left", map[string]any{
			"subscriberID": s.sub.ID(),
		})
	}
}

// transition must be called with mu held.
func (s *Session) transition(next JoinState) {
	s.state = next
	s.history = append(s.history, next)
}

func (s *Session) set(next JoinState) {
	s.mu.Lock()
	s.transition(next)
	s.mu.Unlock()
}

// Joiner runs the join protocol against a tenant registry.
type Joiner struct {
	tenants  TenantRegistry
	registry *Registry
	state    *StateStore
	logs     *LogStore
	locks    *tenantLocks
	logger   *zap.Logger
}

// NewJoiner creates a Joiner.
func NewJoiner(tenants TenantRegistry, registry *Registry, state *StateStore, logs *LogStore, logger *zap.Logger) *Joiner {
	return &Joiner{
		tenants:  tenants,
		registry: registry,
		state:    state,
		logs:     logs,
		locks:    newTenantLocks(),
		logger:   logger,
	}
}

// Join resolves req, registers sub and sends the connected acknowledgement
// followed by a state-sync for tenant joins. A rejected join sends one
// error message to sub, registers nothing and returns a *JoinError.
func (j *Joiner) Join(ctx context.Context, sub Subscriber, req JoinRequest) (*Session, error) {
	s := &Session{joiner: j, sub: sub}
	s.set(StateConnecting)

	if req.Generic() {
		j.registry.Register(sub, "")
		s.set(StateJoined)
		if err := sub.Send(NewConnected("", "")); err != nil {
			s.Close()
			return s, fmt.Errorf("send connected: %w", err)
		}
		s.set(StateStreaming)
		j.logger.Debug("generic subscriber joined", zap.String("subscriberID", sub.ID()))
		return s, nil
	}

	s.set(StateResolving)
	tenant, err := j.resolve(ctx, req)
	if err != nil {
		return s, j.reject(s, req, err)
	}
	if !tenant.Active {
		return s, j.reject(s, req, fmt.Errorf("%w: %s", ErrTenantInactive, tenant.ID))
	}

	s.mu.Lock()
	s.tenant = tenant.ID
	s.code = req.Code
	s.mu.Unlock()

	// Publishes to this tenant wait until the subscriber has its
	// connected and state-sync, so nothing arrives early or twice.
	unlock := j.locks.lock(tenant.ID)
	j.registry.Register(sub, tenant.ID)
	s.set(StateJoined)

	if err := sub.Send(NewConnected(tenant.ID, req.Code)); err != nil {
		unlock()
		s.Close()
		return s, fmt.Errorf("send connected: %w", err)
	}
	if err := sub.Send(NewStateSync(j.state.Snapshot(tenant.ID))); err != nil {
		unlock()
		s.Close()
		return s, fmt.Errorf("send state-sync: %w", err)
	}
	s.set(StateStreaming)
	unlock()

	j.logs.Append(tenant.ID, LogCategoryConnection, "subscriber joined", map[string]any{
		"subscriberID": sub.ID(),
		"byCode":       req.Code != "",
	})
	j.logger.Info("subscriber joined tenant",
		zap.String("subscriberID", sub.ID()),
		zap.String("tenant", tenant.ID),
		zap.Int("subscribers", j.registry.Count(tenant.ID)),
	)
	return s, nil
}

func (j *Joiner) resolve(ctx context.Context, req JoinRequest) (Tenant, error) {
	var (
		tenant Tenant
		err    error
	)
	if req.Code != "" {
		tenant, err = j.tenants.ResolveCode(ctx, req.Code)
	} else {
		tenant, err = j.tenants.ResolveTenant(ctx, req.Tenant)
	}
	if err != nil && !errors.Is(err, ErrTenantNotFound) {
		return Tenant{}, fmt.Errorf("%w: %v", ErrResolve, err)
	}
	return tenant, err
}

func (j *Joiner) reject(s *Session, req JoinRequest, err error) error {
	reason := ReasonResolveFailed
	switch {
	case errors.Is(err, ErrTenantNotFound) && req.Code != "":
		reason = ReasonCodeNotFound
	case errors.Is(err, ErrTenantNotFound):
		reason = ReasonTenantNotFound
	case errors.Is(err, ErrTenantInactive):
		reason = ReasonInactive
	}

	s.set(StateRejected)
	if sendErr := s.sub.Send(NewError(reason, err.Error())); sendErr != nil {
		j.logger.Debug("failed to send join rejection",
			zap.String("subscriberID", s.sub.ID()),
			zap.Error(sendErr),
		)
	}
	s.set(StateClosed)

	j.logger.Info("join rejected",
		zap.String("subscriberID", s.sub.ID()),
		zap.Bool("byCode", req.Code != ""),
		zap.String("tenant", req.Tenant),
		zap.String("reason", reason),
	)
	return &JoinError{Reason: reason, Err: err}
}

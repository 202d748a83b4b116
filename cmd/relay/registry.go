package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dgnsrekt/overlay-relay/internal/config"
	"github.com/dgnsrekt/overlay-relay/internal/relay"
	"github.com/dgnsrekt/overlay-relay/internal/server"
	"github.com/dgnsrekt/overlay-relay/internal/tenant"
)

// tenantSource is the opened registry plus what the caller needs to
// manage it.
type tenantSource struct {
	registry relay.TenantRegistry
	// reload rebuilds the registry; nil when the source is read live.
	reload server.TenantLoader
	close  func() error
}

func openTenants(ctx context.Context, tc config.TenantsConfig, logger *zap.Logger) (*tenantSource, error) {
	switch tc.Source {
	case config.TenantSourceStatic:
		return &tenantSource{
			registry: tenant.NewStatic(staticTenants(tc.Static)),
			close:    func() error { return nil },
		}, nil

	case config.TenantSourceFile:
		load := func(context.Context) (relay.TenantRegistry, error) {
			reg, err := tenant.LoadFile(tc.File, logger)
			if err != nil {
				return nil, err
			}
			return reg, nil
		}
		reg, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return &tenantSource{registry: reg, reload: load, close: func() error { return nil }}, nil

	case config.TenantSourceSQLite:
		reg, err := tenant.OpenSQLite(tc.SQLite)
		if err != nil {
			return nil, err
		}
		logger.Info("opened sqlite tenant registry", zap.String("path", tc.SQLite))
		return &tenantSource{registry: reg, close: reg.Close}, nil

	case config.TenantSourceRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     tc.Redis.Addr,
			Password: tc.Redis.Password,
			DB:       tc.Redis.DB,
		})
		reg := tenant.NewRedisRegistry(client, tc.Redis.Prefix)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := reg.Ping(pingCtx); err != nil {
			client.Close()
			return nil, err
		}
		logger.Info("connected to redis tenant registry", zap.String("addr", tc.Redis.Addr))
		return &tenantSource{registry: reg, close: client.Close}, nil

	default:
		return nil, fmt.Errorf("unknown tenant source: %s", tc.Source)
	}
}

func staticTenants(in []config.StaticTenant) []relay.Tenant {
	out := make([]relay.Tenant, 0, len(in))
	for _, st := range in {
		out = append(out, relay.Tenant{
			ID:       st.ID,
			Username: st.Username,
			Code:     st.Code,
			Active:   st.Active,
		})
	}
	return out
}

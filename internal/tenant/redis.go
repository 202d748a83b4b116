package tenant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/dgnsrekt/overlay-relay/internal/relay"
)

// RedisRegistry resolves tenants stored as hashes:
//
//	<prefix>:tenant:<id>        HASH id, username, code, active
//	<prefix>:code:<code>        STRING tenant id
//	<prefix>:username:<lower>   STRING tenant id
type RedisRegistry struct {
	client *redis.Client
	prefix string
}

// NewRedisRegistry wraps an existing client.
func NewRedisRegistry(client *redis.Client, prefix string) *RedisRegistry {
	if prefix == "" {
		prefix = "relay"
	}
	return &RedisRegistry{client: client, prefix: prefix}
}

// Ping verifies connectivity.
func (r *RedisRegistry) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	return nil
}

func (r *RedisRegistry) tenantKey(id string) string {
	return fmt.Sprintf("%s:tenant:%s", r.prefix, id)
}

func (r *RedisRegistry) codeKey(code string) string {
	return fmt.Sprintf("%s:code:%s", r.prefix, code)
}

func (r *RedisRegistry) usernameKey(username string) string {
	return fmt.Sprintf("%s:username:%s", r.prefix, strings.ToLower(username))
}

// ResolveCode implements relay.TenantRegistry.
func (r *RedisRegistry) ResolveCode(ctx context.Context, code string) (relay.Tenant, error) {
	id, err := r.client.Get(ctx, r.codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return relay.Tenant{}, fmt.Errorf("code %q: %w", code, relay.ErrTenantNotFound)
	}
	if err != nil {
		return relay.Tenant{}, fmt.Errorf("lookup code %q: %w", code, err)
	}
	return r.load(ctx, id)
}

// ResolveTenant implements relay.TenantRegistry.
func (r *RedisRegistry) ResolveTenant(ctx context.Context, idOrUsername string) (relay.Tenant, error) {
	t, err := r.load(ctx, idOrUsername)
	if err == nil || !errors.Is(err, relay.ErrTenantNotFound) {
		return t, err
	}

	id, err := r.client.Get(ctx, r.usernameKey(idOrUsername)).Result()
	if errors.Is(err, redis.Nil) {
		return relay.Tenant{}, fmt.Errorf("tenant %q: %w", idOrUsername, relay.ErrTenantNotFound)
	}
	if err != nil {
		return relay.Tenant{}, fmt.Errorf("lookup username %q: %w", idOrUsername, err)
	}
	return r.load(ctx, id)
}

// putRetries bounds optimistic retries when the tenant hash changes
// between the read of its old index keys and the write.
const putRetries = 5

// Put stores a tenant and its lookup keys in one transaction. Index keys
// left over from a previous code or username are removed so the old
// values stop resolving.
func (r *RedisRegistry) Put(ctx context.Context, t relay.Tenant) error {
	t.ID = normalizeID(t)
	key := r.tenantKey(t.ID)

	txf := func(tx *redis.Tx) error {
		prev, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if old := prev["code"]; old != "" && old != t.Code {
				pipe.Del(ctx, r.codeKey(old))
			}
			if old := prev["username"]; old != "" && !strings.EqualFold(old, t.Username) {
				pipe.Del(ctx, r.usernameKey(old))
			}
			pipe.HSet(ctx, key, map[string]any{
				"id":       t.ID,
				"username": t.Username,
				"code":     t.Code,
				"active":   strconv.FormatBool(t.Active),
			})
			if t.Code != "" {
				pipe.Set(ctx, r.codeKey(t.Code), t.ID, 0)
			}
			if t.Username != "" {
				pipe.Set(ctx, r.usernameKey(t.Username), t.ID, 0)
			}
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < putRetries; i++ {
		err = r.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("store tenant %q: %w", t.ID, err)
	}
	return nil
}

// List scans every tenant hash, sorted by ID.
func (r *RedisRegistry) List(ctx context.Context) ([]relay.Tenant, error) {
	var out []relay.Tenant
	iter := r.client.Scan(ctx, 0, r.tenantKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		fields, err := r.client.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", iter.Val(), err)
		}
		if len(fields) == 0 {
			continue
		}
		out = append(out, tenantFromHash(fields))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan tenants: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *RedisRegistry) load(ctx context.Context, id string) (relay.Tenant, error) {
	fields, err := r.client.HGetAll(ctx, r.tenantKey(id)).Result()
	if err != nil {
		return relay.Tenant{}, fmt.Errorf("load tenant %q: %w", id, err)
	}
	if len(fields) == 0 {
		return relay.Tenant{}, fmt.Errorf("tenant %q: %w", id, relay.ErrTenantNotFound)
	}
	return tenantFromHash(fields), nil
}

func tenantFromHash(fields map[string]string) relay.Tenant {
	active, err := strconv.ParseBool(fields["active"])
	if err != nil {
		active = fields["active"] == "1"
	}
	return relay.Tenant{
		ID:       fields["id"],
		Username: fields["username"],
		Code:     fields["code"],
		Active:   active,
	}
}

// Compile-time interface verification
var (
	_ relay.TenantRegistry = (*RedisRegistry)(nil)
	_ Lister               = (*RedisRegistry)(nil)
)

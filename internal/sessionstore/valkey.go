package sessionstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/prismon/authservice/internal/oidc"
)

// ValkeyOptions configures a ValkeyStore.
type ValkeyOptions struct {
	Addrs    []string
	Username string
	Password string

	// MaxTTL caps the retained session lifetime, see RedisOptions.MaxTTL.
	MaxTTL time.Duration
}

// ValkeyStore implements oidc.SessionStore against
// github.com/valkey-io/valkey-go, for operators who run a Valkey rather
// than a Redis deployment.
type ValkeyStore struct {
	client valkey.Client
	maxTTL time.Duration
}

// NewValkeyStore builds a ValkeyStore from opts.
func NewValkeyStore(opts ValkeyOptions) (*ValkeyStore, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: opts.Addrs,
		Username:    opts.Username,
		Password:    opts.Password,
	})
	if err != nil {
		return nil, err
	}
	return &ValkeyStore{client: client, maxTTL: opts.MaxTTL}, nil
}

// Get implements oidc.SessionStore.
func (v *ValkeyStore) Get(sessionID string) (oidc.TokenResponse, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	cmd := v.client.B().Get().Key(sessionKey(sessionID)).Build()
	raw, err := v.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		return oidc.TokenResponse{}, false
	}
	var token oidc.TokenResponse
	if err := json.Unmarshal(raw, &token); err != nil {
		return oidc.TokenResponse{}, false
	}
	return token, true
}

// Set implements oidc.SessionStore.
func (v *ValkeyStore) Set(sessionID string, token oidc.TokenResponse) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := json.Marshal(token)
	if err != nil {
		return
	}
	ttl := v.ttlFor(token)
	cmd := v.client.B().Set().Key(sessionKey(sessionID)).Value(string(raw)).Ex(ttl).Build()
	v.client.Do(ctx, cmd)
}

// Remove implements oidc.SessionStore.
func (v *ValkeyStore) Remove(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	cmd := v.client.B().Del().Key(sessionKey(sessionID)).Build()
	v.client.Do(ctx, cmd)
}

func (v *ValkeyStore) ttlFor(token oidc.TokenResponse) time.Duration {
	ttl := time.Until(time.Unix(token.IDTokenExpiry, 0))
	if ttl <= 0 {
		ttl = time.Minute
	}
	if v.maxTTL > 0 && ttl > v.maxTTL {
		ttl = v.maxTTL
	}
	return ttl
}

// Close releases the underlying connection pool.
func (v *ValkeyStore) Close() {
	v.client.Close()
}

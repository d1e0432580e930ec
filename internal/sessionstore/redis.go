// Package sessionstore provides SessionStore implementations backed by
// external stores, for multi-replica deployments where any replica handling
// the callback must be able to hand the session off to whichever replica
// handles the next request — the reason oidc.SessionStore is an interface
// rather than a concrete map.
package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prismon/authservice/internal/oidc"
)

// RedisOptions configures a RedisStore, mirroring the subset of
// github.com/redis/go-redis/v9.Options operators actually need to tune.
type RedisOptions struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxTTL caps how long a session is retained even if the id-token
	// carries a longer lifetime, bounding memory held by abandoned
	// sessions on IdPs that issue very long-lived tokens.
	MaxTTL time.Duration

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// RedisStore implements oidc.SessionStore against a single Redis endpoint.
// Keys carry a TTL derived from the stored token's expiry so abandoned
// sessions self-evict without an explicit sweep.
type RedisStore struct {
	client *redis.Client
	maxTTL time.Duration
	now    func() time.Time
}

// NewRedisStore builds a RedisStore from opts.
func NewRedisStore(opts RedisOptions) *RedisStore {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})
	return &RedisStore{client: client, maxTTL: opts.MaxTTL, now: now}
}

// Get implements oidc.SessionStore. A Redis error or a miss both report
// ok=false; the filter core treats either as "no session".
func (r *RedisStore) Get(sessionID string) (oidc.TokenResponse, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		return oidc.TokenResponse{}, false
	}
	var token oidc.TokenResponse
	if err := json.Unmarshal(raw, &token); err != nil {
		return oidc.TokenResponse{}, false
	}
	return token, true
}

// Set implements oidc.SessionStore, applying a TTL from the id-token's
// remaining lifetime, capped at maxTTL when configured.
func (r *RedisStore) Set(sessionID string, token oidc.TokenResponse) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := json.Marshal(token)
	if err != nil {
		return
	}
	r.client.Set(ctx, sessionKey(sessionID), raw, r.ttlFor(token))
}

// Remove implements oidc.SessionStore.
func (r *RedisStore) Remove(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	r.client.Del(ctx, sessionKey(sessionID))
}

func (r *RedisStore) ttlFor(token oidc.TokenResponse) time.Duration {
	ttl := time.Unix(token.IDTokenExpiry, 0).Sub(r.now())
	if ttl <= 0 {
		ttl = time.Minute
	}
	if r.maxTTL > 0 && ttl > r.maxTTL {
		ttl = r.maxTTL
	}
	return ttl
}

const redisOpTimeout = 2 * time.Second

func sessionKey(sessionID string) string {
	return fmt.Sprintf("authservice:session:%s", sessionID)
}

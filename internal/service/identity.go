package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// UserVersions reads and bumps the per-user token version. Access tokens
// minted before the last bump carry a stale version and are rejected by the
// token-version middleware.
type UserVersions interface {
	TokenVersion(ctx context.Context, id uint64) (uint32, error)
	BumpTokenVersion(ctx context.Context, id uint64) (uint32, error)
}

// RefreshRevoker revokes all of a user's active refresh tokens.
type RefreshRevoker interface {
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// IdentityManager implements the Identity interface over the user and
// refresh-token stores. Revoking a user's sessions bumps their token
// version (killing live access tokens at the middleware) and revokes all
// refresh tokens (preventing silent re-issue), then refreshes the Redis
// copy of the version so the middleware sees the bump immediately.
type IdentityManager struct {
	Users  UserVersions
	Tokens RefreshRevoker
	Redis  *redis.Client // may be nil; version checks then fall through to the DB
	Log    *slog.Logger
}

func NewIdentityManager(users UserVersions, tokens RefreshRevoker, rdb *redis.Client, log *slog.Logger) *IdentityManager {
	if users == nil || tokens == nil {
		panic("nil store passed to NewIdentityManager")
	}
	if log == nil {
		log = slog.Default()
	}
	return &IdentityManager{Users: users, Tokens: tokens, Redis: rdb, Log: log}
}

// TokenVersionKey is the Redis key holding a user's current token version.
func TokenVersionKey(userID uint64) string {
	return fmt.Sprintf("tv:%d", userID)
}

// TokenVersionTTL bounds staleness of the cached version when the cache is
// updated outside this process.
const TokenVersionTTL = 15 * time.Minute

// RevokeSessions invalidates every session the user holds.
func (m *IdentityManager) RevokeSessions(ctx context.Context, userID uint64) error {
	version, err := m.Users.BumpTokenVersion(ctx, userID)
	if err != nil {
		return err
	}
	if err := m.Tokens.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	if m.Redis != nil {
		if err := m.Redis.Set(ctx, TokenVersionKey(userID), version, TokenVersionTTL).Err(); err != nil {
			// The middleware falls back to the DB on cache miss, so a stale
			// cache entry only delays enforcement by its TTL.
			m.Log.Warn("token version cache update failed", "user_id", userID, "error", err)
		}
	}
	return nil
}

// CurrentTokenVersion returns the user's token version, preferring the
// Redis cache and falling back to (and repopulating from) the database.
func (m *IdentityManager) CurrentTokenVersion(ctx context.Context, userID uint64) (uint32, error) {
	if m.Redis != nil {
		if v, err := m.Redis.Get(ctx, TokenVersionKey(userID)).Uint64(); err == nil {
			return uint32(v), nil
		}
	}
	version, err := m.Users.TokenVersion(ctx, userID)
	if err != nil {
		return 0, err
	}
	if m.Redis != nil {
		if err := m.Redis.Set(ctx, TokenVersionKey(userID), version, TokenVersionTTL).Err(); err != nil {
			m.Log.Debug("token version cache fill failed", "user_id", userID, "error", err)
		}
	}
	return version, nil
}

package storage

import (
	"context"
	"fmt"
	"time"

	redissrv "PPInbox/service/storage/redis"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var ctx = context.Background()

// presence key: inbox:presence:<agent>
// Value: gateway_id, TTL controls the online validity period
func presenceKey(agent string) string { return "inbox:presence:" + agent }

// PresenceOnline sets the agent as online and renews the TTL
func PresenceOnline(agent, gatewayID string, ttl time.Duration) error {
	rdb, ok := redissrv.TryGetRedis()
	if !ok {
		return fmt.Errorf("redis not initialized")
	}
	return rdb.Set(ctx, presenceKey(agent), gatewayID, ttl).Err()
}

// PresenceOffline actively sets the agent offline (deletes the key)
func PresenceOffline(agent string) error {
	rdb, ok := redissrv.TryGetRedis()
	if !ok {
		return fmt.Errorf("redis not initialized")
	}
	return rdb.Del(ctx, presenceKey(agent)).Err()
}

// PresenceLookup checks whether the agent is online somewhere
func PresenceLookup(agent string) (gatewayID string, online bool, err error) {
	rdb, ok := redissrv.TryGetRedis()
	if !ok {
		return "", false, fmt.Errorf("redis not initialized")
	}
	val, err := rdb.Get(ctx, presenceKey(agent)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/keyauth/core"
	"github.com/layer-3/keyauth/ports"
	"github.com/redis/go-redis/v9"
)

const consumedMarker = "consumed"

// redeemScript swaps the pending nonce for the consumed marker, keeping the
// remaining TTL, only when the stored value matches ARGV[1].
var redeemScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "KEEPTTL")
	return 1
end
return 0
`)

// RedisStore is a Redis implementation of the NonceStore interface
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}

	return &RedisStore{
		client: client,
		prefix: "keyauth:nonce:",
		ttl:    ttl,
	}
}

var _ ports.NonceStore = (*RedisStore)(nil)

func (s *RedisStore) key(userID core.UserID) string {
	return s.prefix + userID.String()
}

// Issue stores a fresh nonce with the store TTL, replacing any previous challenge
func (s *RedisStore) Issue(ctx context.Context, userID core.UserID) ([]byte, time.Time, error) {
	nonce, err := generateNonce()
	if err != nil {
		return nil, time.Time{}, err
	}

	expiresAt := time.Now().Add(s.ttl)
	if err := s.client.Set(ctx, s.key(userID), hex.EncodeToString(nonce), s.ttl).Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to store nonce: %w", err)
	}

	return nonce, expiresAt, nil
}

// Peek returns the pending nonce. Redis expires keys on its own.
func (s *RedisStore) Peek(ctx context.Context, userID core.UserID) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	if val == consumedMarker {
		return nil, core.ErrChallengeNotFound
	}

	nonce, err := hex.DecodeString(val)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored nonce: %w", err)
	}

	return nonce, nil
}

// Redeem atomically consumes the challenge if it still holds nonce
func (s *RedisStore) Redeem(ctx context.Context, userID core.UserID, nonce []byte) (bool, error) {
	n, err := redeemScript.Run(ctx, s.client, []string{s.key(userID)}, hex.EncodeToString(nonce), consumedMarker).Int()
	if err != nil {
		return false, fmt.Errorf("failed to redeem nonce: %w", err)
	}

	return n == 1, nil
}

// Consume invalidates the user's challenge if one exists
func (s *RedisStore) Consume(ctx context.Context, userID core.UserID) error {
	err := s.client.SetArgs(ctx, s.key(userID), consumedMarker, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to consume nonce: %w", err)
	}

	return nil
}

// State reports the tagged challenge state for the user
func (s *RedisStore) State(ctx context.Context, userID core.UserID) (core.ChallengeState, error) {
	key := s.key(userID)

	var (
		get *redis.StringCmd
		ttl *redis.DurationCmd
	)
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		get = p.Get(ctx, key)
		ttl = p.PTTL(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return core.ChallengeState{}, fmt.Errorf("failed to read challenge state: %w", err)
	}

	val, err := get.Result()
	if errors.Is(err, redis.Nil) {
		return core.ChallengeState{Status: core.ChallengeAbsent}, nil
	}
	if err != nil {
		return core.ChallengeState{}, fmt.Errorf("failed to read challenge state: %w", err)
	}

	if val == consumedMarker {
		return core.ChallengeState{Status: core.ChallengeConsumed}, nil
	}

	nonce, err := hex.DecodeString(val)
	if err != nil {
		return core.ChallengeState{}, fmt.Errorf("failed to decode stored nonce: %w", err)
	}

	return core.ChallengeState{
		Status:    core.ChallengePending,
		Nonce:     nonce,
		ExpiresAt: time.Now().Add(ttl.Val()),
	}, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/skara-labs/crowdgate/internal/middleware"
	"github.com/skara-labs/crowdgate/internal/pkg/logger"
)

// Hash fields of an idempotency key.
const (
	fieldState     = "state"
	fieldStatus    = "status"
	fieldBody      = "body"
	fieldCreatedAt = "created_at"

	stateProcessing = "processing"
	stateDone       = "done"
)

// RedisIdempotencyStore keeps each key as a hash. The state field doubles
// as the lock: whoever sets it first owns the request.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisIdempotencyStore(client *RedisClient, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{
		client: client.Client,
		ttl:    ttl,
		prefix: client.Key("idem") + ":",
	}
}

func (s *RedisIdempotencyStore) GetOrLock(ctx context.Context, key string) (*middleware.IdempotencyRecord, bool) {
	k := s.prefix + key
	var lock *redis.BoolCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lock = pipe.HSetNX(ctx, k, fieldState, stateProcessing)
		pipe.HSetNX(ctx, k, fieldCreatedAt, strconv.FormatInt(time.Now().UTC().Unix(), 10))
		pipe.ExpireNX(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		logger.LogError(ctx, err, "Idempotency lock failed", "key", key)
		return nil, false
	}
	if lock.Val() {
		return nil, false
	}

	fields, err := s.client.HGetAll(ctx, k).Result()
	if err != nil {
		logger.LogError(ctx, err, "Idempotency lookup failed", "key", key)
		return nil, false
	}
	rec, ok := recordFromHash(fields)
	if !ok {
		return nil, false
	}
	return rec, true
}

func (s *RedisIdempotencyStore) Save(ctx context.Context, key string, status int, body []byte) {
	k := s.prefix + key
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k,
			fieldState, stateDone,
			fieldStatus, status,
			fieldBody, body,
		)
		pipe.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		logger.LogError(ctx, err, "Idempotency save failed", "key", key)
	}
}

func (s *RedisIdempotencyStore) Unlock(ctx context.Context, key string) {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		logger.LogError(ctx, err, "Idempotency unlock failed", "key", key)
	}
}

// recordFromHash reports false for a hash missing its state, e.g. one that
// expired between the lock attempt and the read.
func recordFromHash(fields map[string]string) (*middleware.IdempotencyRecord, bool) {
	state, ok := fields[fieldState]
	if !ok {
		return nil, false
	}
	rec := &middleware.IdempotencyRecord{Processing: state == stateProcessing}
	if ts, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64); err == nil {
		rec.CreatedAt = time.Unix(ts, 0).UTC()
	}
	if state == stateDone {
		rec.Status, _ = strconv.Atoi(fields[fieldStatus])
		rec.Body = []byte(fields[fieldBody])
	}
	return rec, true
}

var _ middleware.IdempotencyStore = (*RedisIdempotencyStore)(nil)

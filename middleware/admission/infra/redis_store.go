package infra

import (
	"context"
	"fmt"
	"time"

	"security-gateway/internal/metrics"
	"security-gateway/middleware/admission/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// incrWindowScript: INCR com TTL na criação (ou em toda chamada quando ARGV[2] == "1").
// Chaves sem expiração (ttl < 0) também recebem TTL, para nunca ficarem eternas.
var incrWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ARGV[2] == '1' or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// addToWindowScript: log deslizante em sorted set (score = epoch ms).
// Poda, registra e conta em um único passo, sem corrida entre instâncias.
// Devolve também o score da posição count-limit (ARGV[4]), de onde sai o reset.
var addToWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
redis.call('ZADD', KEYS[1], now, ARGV[3])
redis.call('PEXPIRE', KEYS[1], window)
local count = redis.call('ZCARD', KEYS[1])
local idx = count - tonumber(ARGV[4])
if idx < 0 then idx = 0 end
if idx > count - 1 then idx = count - 1 end
local entry = redis.call('ZRANGE', KEYS[1], idx, idx, 'WITHSCORES')
return {count, tonumber(entry[2])}
`)

// RedisStore implementa domain.Store sobre Redis (ou qualquer servidor compatível).
type RedisStore struct {
	rdb redis.UniversalClient
	now func() time.Time

	// countersTTL > 0 liga contadores por minuto ao lado das listas de log.
	countersTTL time.Duration
}

var _ domain.Store = (*RedisStore)(nil)

type RedisStoreOption func(*RedisStore)

// WithRedisClock troca o relógio usado para os scores do log deslizante.
func WithRedisClock(now func() time.Time) RedisStoreOption {
	return func(s *RedisStore) { s.now = now }
}

// WithLogCounters mantém, para cada lista de log, um hash por minuto com o total de
// entradas ("<key>:minute:200601021504"), expirando após ttl.
func WithLogCounters(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) { s.countersTTL = ttl }
}

func NewRedisStore(rdb redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		rdb: rdb,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) IncrWindow(ctx context.Context, key string, ttl time.Duration, refresh bool) (int64, time.Duration, error) {
	defer observe("incr_window", time.Now())

	flag := "0"
	if refresh {
		flag = "1"
	}
	res, err := incrWindowScript.Run(ctx, s.rdb, []string{key}, ttl.Milliseconds(), flag).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: incr window %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("%w: incr window %s: unexpected reply %v", domain.ErrStoreUnavailable, key, res)
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}

func (s *RedisStore) AddToWindow(ctx context.Context, key string, at time.Time, window time.Duration, limit int64) (int64, time.Time, error) {
	defer observe("add_to_window", time.Now())

	if at.IsZero() {
		at = s.now()
	}
	res, err := addToWindowScript.Run(ctx, s.rdb, []string{key},
		at.UnixMilli(), window.Milliseconds(), uuid.NewString(), limit).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: add to window %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("%w: add to window %s: unexpected reply %v", domain.ErrStoreUnavailable, key, res)
	}
	return res[0], time.UnixMilli(res[1]), nil
}

func (s *RedisStore) SetFlag(ctx context.Context, key string, ttl time.Duration) error {
	defer observe("set_flag", time.Now())

	if err := s.rdb.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: set flag %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	return nil
}

func (s *RedisStore) HasFlag(ctx context.Context, key string) (bool, error) {
	defer observe("has_flag", time.Now())

	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: has flag %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) PushCapped(ctx context.Context, key string, value []byte, max int64) error {
	defer observe("push_capped", time.Now())

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, key, value)
	if max > 0 {
		pipe.LTrim(ctx, key, 0, max-1)
	}
	if s.countersTTL > 0 {
		bucketKey := fmt.Sprintf("%s:minute:%s", key, s.now().UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, "entries", 1)
		pipe.Expire(ctx, bucketKey, s.countersTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: push %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func observe(op string, start time.Time) {
	metrics.StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

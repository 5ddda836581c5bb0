// cache - кэш refresh-токенов в Redis.
//
// Кэш ускоряет проверку refresh-токена на горячем пути POST /api/auth/refresh:
// статус отзыва и срок действия читаются из Redis без обращения к PostgreSQL.
// Источник истинности - БД; кэш только отвечает «точно отозван/просрочен»
// или «не знаю», и сервис идёт в хранилище.
package cache

//go:generate mockgen -destination=../../mocks/mock_cache.go -package=mocks . RefreshCache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RefreshEntry описывает данные, которые мы храним в Redis по хэшу refresh-токена.
type RefreshEntry struct {
	UserID    uuid.UUID
	Revoked   bool
	ExpiresAt time.Time
}

// RefreshCache - минимальный контракт кэша refresh-токенов.
type RefreshCache interface {
	// Get возвращает запись и признак её наличия в кэше.
	Get(ctx context.Context, hash string) (*RefreshEntry, bool, error)
	// Set сохраняет запись с TTL (обычно ExpiresAt-now).
	Set(ctx context.Context, hash string, e *RefreshEntry, ttl time.Duration) error
	// MarkRevoked помечает ключ revoked=1, если он есть, сохраняя остаточный TTL.
	MarkRevoked(ctx context.Context, hash string) error
	// Ping проверяет доступность Redis.
	Ping(ctx context.Context) error
	// Close закрывает клиент Redis.
	Close() error
}

type redisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой - используется "nihongo:rt:".
func NewRedisCache(ctx context.Context, redisURL, prefix string) (RefreshCache, error) {
	const op = "cache.NewRedisCache"

	if prefix == "" {
		prefix = "nihongo:rt:"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &redisCache{rdb: rdb, prefix: prefix}, nil
}

func (c *redisCache) key(hash string) string { return c.prefix + hash }

// Храним как Redis Hash с полями: uid, rev (0/1), exp (unix).
func (c *redisCache) Get(ctx context.Context, hash string) (*RefreshEntry, bool, error) {
	const op = "cache.Get"

	m, err := c.rdb.HGetAll(ctx, c.key(hash)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if len(m) == 0 {
		return nil, false, nil
	}

	uid, err := uuid.Parse(m["uid"])
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	expUnix, err := strconv.ParseInt(m["exp"], 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	return &RefreshEntry{
		UserID:    uid,
		Revoked:   m["rev"] == "1",
		ExpiresAt: time.Unix(expUnix, 0).UTC(),
	}, true, nil
}

func (c *redisCache) Set(ctx context.Context, hash string, e *RefreshEntry, ttl time.Duration) error {
	const op = "cache.Set"

	if ttl <= 0 {
		return nil
	}

	kv := map[string]string{
		"uid": e.UserID.String(),
		"rev": boolTo01(e.Revoked),
		"exp": strconv.FormatInt(e.ExpiresAt.Unix(), 10),
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, c.key(hash), kv)
	pipe.Expire(ctx, c.key(hash), ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// markRevokedScript не создаёт ключ заново, если он уже истёк.
var markRevokedScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return redis.call("HSET", KEYS[1], "rev", "1")
end
return 0
`)

func (c *redisCache) MarkRevoked(ctx context.Context, hash string) error {
	const op = "cache.MarkRevoked"

	if err := markRevokedScript.Run(ctx, c.rdb, []string{c.key(hash)}).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *redisCache) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

func (c *redisCache) Close() error { return c.rdb.Close() }

func boolTo01(b bool) string {
	if b {
		return "1"
	}

	return "0"
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/redis"
	"atelier/internal/service/commerce/domain"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

const (
	reservationKeyPrefix = "cart:reservation:"
	expiryIndexKey       = "cart:reservation:expiry"
	sweepScriptName      = "sweep_reservations"
	// 单轮清扫最多取出的过期成员数
	sweepBatchSize = 256
)

// RedisReservationStore 把预留存成 JSON 键，并在一个 ZSET 里按到期时间建索引。
// 键本身带了宽松的物理 TTL 兜底，逻辑过期以 ZSET 分数为准：
// 即使键先被 Redis 淘汰，清扫器仍能从索引里发现这条预留。
type RedisReservationStore struct {
	client *redis.Client
	// 物理 TTL，取预留时长的两倍，给清扫器留足读取窗口。
	physicalTTL time.Duration
}

// NewRedisReservationStore 创建预留存储并加载清扫脚本。
func NewRedisReservationStore(client *redis.Client, reservationTTL time.Duration) (*RedisReservationStore, error) {
	if err := client.LoadScriptFromContent(sweepScriptName, sweepScript); err != nil {
		return nil, fmt.Errorf("failed to load reservation sweep script: %w", err)
	}
	return &RedisReservationStore{
		client:      client,
		physicalTTL: reservationTTL * 2,
	}, nil
}

func reservationKey(shopperID, sku string) string {
	return reservationKeyPrefix + shopperID + ":" + sku
}

func expiryMember(shopperID, sku string) string {
	return shopperID + "|" + sku
}

func splitExpiryMember(member string) (shopperID, sku string, ok bool) {
	parts := strings.SplitN(member, "|", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (s *RedisReservationStore) Put(ctx context.Context, res *domain.Reservation) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return errors.Wrap(err, "marshal reservation")
	}

	pipe := s.client.GetClient().TxPipeline()
	pipe.Set(ctx, reservationKey(res.ShopperID, res.SKU), payload, s.physicalTTL)
	pipe.ZAdd(ctx, expiryIndexKey, goredis.Z{
		Score:  float64(res.ExpiresAt.Unix()),
		Member: expiryMember(res.ShopperID, res.SKU),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "put reservation %s/%s", res.ShopperID, res.SKU)
	}
	return nil
}

func (s *RedisReservationStore) Get(ctx context.Context, shopperID, sku string) (*domain.Reservation, error) {
	data, err := s.client.GetClient().Get(ctx, reservationKey(shopperID, sku)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "get reservation %s/%s", shopperID, sku)
	}
	var res domain.Reservation
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, errors.Wrap(err, "unmarshal reservation")
	}
	return &res, nil
}

func (s *RedisReservationStore) Delete(ctx context.Context, shopperID, sku string) error {
	pipe := s.client.GetClient().TxPipeline()
	pipe.Del(ctx, reservationKey(shopperID, sku))
	pipe.ZRem(ctx, expiryIndexKey, expiryMember(shopperID, sku))
	_, err := pipe.Exec(ctx)
	return errors.Wrapf(err, "delete reservation %s/%s", shopperID, sku)
}

// DeleteAll 删除一个买家的全部预留键和索引成员。
func (s *RedisReservationStore) DeleteAll(ctx context.Context, shopperID string) error {
	rdb := s.client.GetClient()
	prefix := reservationKeyPrefix + shopperID + ":"

	var cursor uint64
	for {
		keys, next, err := rdb.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return errors.Wrapf(err, "scan reservations of %s", shopperID)
		}
		if len(keys) > 0 {
			pipe := rdb.TxPipeline()
			for _, key := range keys {
				sku := strings.TrimPrefix(key, prefix)
				pipe.Del(ctx, key)
				pipe.ZRem(ctx, expiryIndexKey, expiryMember(shopperID, sku))
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return errors.Wrapf(err, "delete reservations of %s", shopperID)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Sweep 用 Lua 原子地取出并摘除到期成员，多实例并发清扫也不会重复领到同一批。
// 成员对应的主键丢了就只能跳过这条，份额靠人工盘点找回。
func (s *RedisReservationStore) Sweep(ctx context.Context, now time.Time) ([]*domain.Reservation, error) {
	result, err := s.client.RunScript(ctx, sweepScriptName,
		[]string{expiryIndexKey},
		now.Unix(), sweepBatchSize,
	)
	if err != nil {
		return nil, errors.Wrap(err, "run reservation sweep script")
	}

	members, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected result type from sweep script: %T", result)
	}
	if len(members) == 0 {
		return nil, nil
	}

	rdb := s.client.GetClient()
	expired := make([]*domain.Reservation, 0, len(members))
	for _, m := range members {
		member, ok := m.(string)
		if !ok {
			continue
		}
		shopperID, sku, ok := splitExpiryMember(member)
		if !ok {
			logger.Ctx(ctx).Warn().Str("member", member).Msg("Malformed expiry index member, dropping")
			continue
		}

		key := reservationKey(shopperID, sku)
		data, err := rdb.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				logger.Ctx(ctx).Warn().Str("shopperId", shopperID).Str("sku", sku).
					Msg("Reservation key evicted before sweep, stock share unrecoverable")
				continue
			}
			return expired, errors.Wrapf(err, "read expired reservation %s", key)
		}
		var res domain.Reservation
		if err := json.Unmarshal(data, &res); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Corrupt reservation payload, dropping")
			rdb.Del(ctx, key)
			continue
		}
		// 摘下成员和读到键值之间预留可能被续期了。续期的 Put 会把成员
		// 重新写回索引，这条留给下一轮，千万不能删。
		if !res.Expired(now) {
			continue
		}
		rdb.Del(ctx, key)
		expired = append(expired, &res)
	}
	return expired, nil
}

var sweepScript = `
-- scripts/sweep_reservations.lua

-- KEYS[1]: 到期时间索引 ZSET, 即 cart:reservation:expiry
-- ARGV[1]: 当前 Unix 时间戳
-- ARGV[2]: 单批最大条数

-- 1. 取出所有分数(到期时间)不晚于当前时间的成员
local members = redis.call('zrangebyscore', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))

-- 2. 原子地把它们从索引里摘掉, 宣告本清扫者独占这一批
if #members > 0 then
    redis.call('zrem', KEYS[1], unpack(members))
end

return members
`

package store

import (
	"context"
	"encoding/json"
	"time"

	"atelier/internal/pkg/redis"
	"atelier/internal/service/commerce/domain"

	"github.com/pkg/errors"
)

const cartKeyPrefix = "cart:"

// RedisCartStore 把整辆购物车存成一个 JSON 键。
// 购物车是低频写的小对象，整存整取比散列字段简单得多。
type RedisCartStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCartStore(client *redis.Client, ttl time.Duration) *RedisCartStore {
	return &RedisCartStore{client: client, ttl: ttl}
}

func cartKey(shopperID string) string {
	return cartKeyPrefix + shopperID
}

// Load 读取购物车，键不存在时返回一辆空车。
func (s *RedisCartStore) Load(ctx context.Context, shopperID string) (*domain.Cart, error) {
	data, err := s.client.GetClient().Get(ctx, cartKey(shopperID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.NewCart(shopperID), nil
		}
		return nil, errors.Wrapf(err, "load cart %s", shopperID)
	}
	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, errors.Wrapf(err, "unmarshal cart %s", shopperID)
	}
	return &cart, nil
}

// Save 整体覆盖写入，每次写都重置 TTL。
func (s *RedisCartStore) Save(ctx context.Context, cart *domain.Cart) error {
	payload, err := json.Marshal(cart)
	if err != nil {
		return errors.Wrap(err, "marshal cart")
	}
	if err := s.client.GetClient().Set(ctx, cartKey(cart.ShopperID), payload, s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "save cart %s", cart.ShopperID)
	}
	return nil
}

func (s *RedisCartStore) Delete(ctx context.Context, shopperID string) error {
	if err := s.client.GetClient().Del(ctx, cartKey(shopperID)).Err(); err != nil {
		return errors.Wrapf(err, "delete cart %s", shopperID)
	}
	return nil
}

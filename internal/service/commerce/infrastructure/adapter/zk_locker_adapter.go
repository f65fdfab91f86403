package adapter

import (
	"context"

	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/zookeeper"
)

// ZkLockerAdapter 是 port.ResourceLocker 接口的 ZooKeeper 实现，
// 多实例部署时用它替换进程内锁，把同一 SKU 的写入跨实例串行化。
type ZkLockerAdapter struct {
	conn *zookeeper.Conn
}

// NewZkLockerAdapter 创建一个新的分布式锁适配器。
func NewZkLockerAdapter(conn *zookeeper.Conn) *ZkLockerAdapter {
	return &ZkLockerAdapter{conn: conn}
}

// Acquire 在资源上获取分布式锁，返回释放函数。
func (a *ZkLockerAdapter) Acquire(ctx context.Context, resource string) (func(), error) {
	lock, err := zookeeper.NewDistributedLock(a.conn, resource)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(ctx); err != nil {
		return nil, err
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("resource", resource).Msg("Failed to release zookeeper lock")
		}
	}, nil
}

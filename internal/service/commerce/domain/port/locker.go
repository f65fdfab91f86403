// internal/service/commerce/domain/port/locker.go
package port

import "context"

// ResourceLocker 把对同一资源的写操作串行化。
// 单实例部署用进程内锁；多实例部署换成 ZooKeeper 实现，调用方无感。
// Acquire 阻塞直到拿到锁或 ctx 结束；成功时返回的 release 必须被调用。
type ResourceLocker interface {
	Acquire(ctx context.Context, resource string) (release func(), err error)
}

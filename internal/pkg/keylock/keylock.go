// internal/pkg/keylock/keylock.go
package keylock

import (
	"context"
	"sync"
)

// KeyedMutex 提供按 key 串行化的进程内互斥。
// 不同 key 互不阻塞；等待可被 context 取消。
// 空闲 key 的条目会被回收，长期运行不会泄漏内存。
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	sem chan struct{} // 容量为 1，持锁者占用
	ref int
}

func New() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*lockEntry)}
}

// Acquire 阻塞直到获得 key 上的锁，或 ctx 结束。
// 成功时返回对应的释放函数；释放函数必须被调用且只调用一次。
func (m *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.ref++
	m.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return func() {
			<-e.sem
			m.release(key, e)
		}, nil
	case <-ctx.Done():
		m.release(key, e)
		return nil, ctx.Err()
	}
}

func (m *KeyedMutex) release(key string, e *lockEntry) {
	m.mu.Lock()
	e.ref--
	if e.ref == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}

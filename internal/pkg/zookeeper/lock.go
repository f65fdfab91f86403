// internal/pkg/zookeeper/lock.go
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-zookeeper/zk"
)

const (
	lockRoot = "/atelier/locks" // 所有分布式锁的根节点
)

// DistributedLock 是基于临时顺序节点的分布式锁。
// 同一资源上的竞争者按创建顺序排队，每个竞争者只监听自己的前驱节点。
type DistributedLock struct {
	conn     *Conn
	path     string // 锁的路径，例如 /atelier/locks/sku:TSHIRT-BLK-M
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建一个新的分布式锁实例。
func NewDistributedLock(conn *Conn, resourceID string) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + resourceID
	if err := ensurePath(conn, lockPath); err != nil {
		return nil, err
	}
	return &DistributedLock{
		conn: conn,
		path: lockPath,
	}, nil
}

// ensurePath 逐级创建持久节点，已存在时跳过。
func ensurePath(conn *Conn, path string) error {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	current := ""
	for _, part := range parts {
		current += "/" + part
		exists, _, err := conn.Exists(current)
		if err != nil {
			return fmt.Errorf("failed to check lock path %s: %w", current, err)
		}
		if exists {
			continue
		}
		if _, err := conn.Create(current, []byte(""), 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
			return fmt.Errorf("failed to create lock path %s: %w", current, err)
		}
	}
	return nil
}

// Lock 尝试获取锁，获取不到时阻塞等待，直至 ctx 结束。
func (l *DistributedLock) Lock(ctx context.Context) error {
	// 1. 在锁路径下创建一个临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath

	for {
		// 2. 获取锁路径下的所有子节点
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			l.abandon()
			return fmt.Errorf("failed to get children nodes: %w", err)
		}
		sort.Strings(children)

		// 3. 判断自己是否是最小的节点
		myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
		if myNodeName == children[0] {
			// 是最小节点，成功获取锁
			return nil
		}

		// 4. 不是最小节点，监听前一个节点
		prevNodeIndex := -1
		for i, child := range children {
			if child == myNodeName {
				prevNodeIndex = i - 1
				break
			}
		}
		if prevNodeIndex < 0 {
			l.abandon()
			return errors.New("cannot find own node among lock children")
		}
		prevNodePath := l.path + "/" + children[prevNodeIndex]

		// 使用 ExistsW 设置一次性 Watcher
		exists, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			if err == zk.ErrNoNode {
				continue
			}
			l.abandon()
			return fmt.Errorf("failed to watch previous node: %w", err)
		}
		if !exists {
			// 前驱节点在设置 Watch 前刚好释放，直接重试
			continue
		}

		// 阻塞等待前驱释放，或调用方放弃
		select {
		case event := <-eventChan:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-ctx.Done():
			l.abandon()
			return ctx.Err()
		}
	}
}

// Unlock 释放锁。
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}

// abandon 清理排队节点，避免放弃等待后仍占着队列位置。
func (l *DistributedLock) abandon() {
	if l.lockNode == "" {
		return
	}
	_ = l.conn.Delete(l.lockNode, -1)
	l.lockNode = ""
}

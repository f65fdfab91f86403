// internal/pkg/zookeeper/conn.go
package zookeeper

import (
	"fmt"
	"log"
	"time"

	"github.com/go-zookeeper/zk"
)

// Conn 是对 *zk.Conn 的薄封装，收敛本项目用到的操作面。
type Conn struct {
	zkConn *zk.Conn
}

// Connect 建立到 ZooKeeper 集群的会话。
func Connect(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	zkConn, _, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper %v: %w", servers, err)
	}
	log.Printf("✅ Successfully connected to ZooKeeper %v.", servers)
	return &Conn{zkConn: zkConn}, nil
}

func (c *Conn) Exists(path string) (bool, *zk.Stat, error) {
	return c.zkConn.Exists(path)
}

func (c *Conn) ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error) {
	return c.zkConn.ExistsW(path)
}

func (c *Conn) Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error) {
	return c.zkConn.Create(path, data, flags, acl)
}

func (c *Conn) CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error) {
	return c.zkConn.CreateProtectedEphemeralSequential(path, data, acl)
}

func (c *Conn) Children(path string) ([]string, *zk.Stat, error) {
	return c.zkConn.Children(path)
}

func (c *Conn) Delete(path string, version int32) error {
	return c.zkConn.Delete(path, version)
}

func (c *Conn) Close() {
	c.zkConn.Close()
}

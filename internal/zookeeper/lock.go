// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/rs/zerolog/log"
)

const (
	lockRoot = "/distributed_locks" // 所有分布式锁的根节点
)

// Connect 建立 ZooKeeper 会话
func Connect(servers []string, sessionTimeout time.Duration) (*zk.Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper %v: %w", servers, err)
	}
	log.Info().Strs("servers", servers).Msg("Successfully connected to ZooKeeper.")
	return conn, nil
}

// Locker 为任意资源 ID 创建分布式锁
type Locker struct {
	conn *zk.Conn
}

func NewLocker(conn *zk.Conn) (*Locker, error) {
	if err := ensureNode(conn, lockRoot); err != nil {
		return nil, err
	}
	return &Locker{conn: conn}, nil
}

// Lock 获取 resourceID 上的锁，返回释放函数
func (l *Locker) Lock(ctx context.Context, resourceID string) (func() error, error) {
	lock, err := newDistributedLock(l.conn, resourceID)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(ctx); err != nil {
		return nil, err
	}
	return lock.Unlock, nil
}

// DistributedLock 定义了一个分布式锁对象
type DistributedLock struct {
	conn     *zk.Conn
	path     string // 锁的路径，例如 /distributed_locks/batch-<token>
	lockNode string // 成功获取锁后，自己创建的节点路径
}

func newDistributedLock(conn *zk.Conn, resourceID string) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + resourceID
	if err := ensureNode(conn, lockPath); err != nil {
		return nil, err
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

func ensureNode(conn *zk.Conn, path string) error {
	exists, _, err := conn.Exists(path)
	if err != nil {
		return fmt.Errorf("failed to check node %s: %w", path, err)
	}
	if exists {
		return nil
	}
	_, err = conn.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return fmt.Errorf("failed to create node %s: %w", path, err)
	}
	return nil
}

// Lock 尝试获取锁，拿不到则阻塞直到前一个节点被删除或 ctx 结束
func (l *DistributedLock) Lock(ctx context.Context) error {
	// 1. 在锁路径下创建一个临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath
	myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")

	for {
		// 2. 获取所有子节点并按序号排序（protected 前缀不同，只能按序号比较）
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			l.abandon()
			return fmt.Errorf("failed to get children nodes: %w", err)
		}
		sort.Slice(children, func(i, j int) bool { return sequenceOf(children[i]) < sequenceOf(children[j]) })

		// 3. 判断自己是否是最小的节点
		idx := -1
		for i, child := range children {
			if child == myNodeName {
				idx = i
				break
			}
		}
		if idx == 0 {
			return nil
		}
		if idx < 0 {
			l.abandon()
			return errors.New("cannot find own lock node, session may have expired")
		}

		// 4. 监听前一个节点
		prevNodePath := l.path + "/" + children[idx-1]
		exists, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			l.abandon()
			return fmt.Errorf("failed to watch previous node: %w", err)
		}
		if !exists {
			continue
		}

		select {
		case <-eventChan:
			continue
		case <-ctx.Done():
			l.abandon()
			return fmt.Errorf("waiting for lock %s: %w", l.path, ctx.Err())
		}
	}
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}

func (l *DistributedLock) abandon() {
	if err := l.Unlock(); err != nil {
		log.Warn().Err(err).Str("path", l.path).Msg("failed to clean up lock node")
	}
}

// sequenceOf 取出顺序节点名末尾的 10 位序号
func sequenceOf(node string) string {
	if len(node) < 10 {
		return node
	}
	return node[len(node)-10:]
}

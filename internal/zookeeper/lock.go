// internal/zookeeper/lock.go
package zookeeper

import (
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const (
	lockRoot   = "/distributed_locks" // 所有分布式锁的根节点
	lockPrefix = "lock-"
)

// Connect 建立 ZooKeeper 会话。
func Connect(servers []string, sessionTimeout time.Duration) (*zk.Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "connect zookeeper")
	}
	return conn, nil
}

// DistributedLock 基于临时顺序节点实现的互斥锁，实现了 port.Locker。
type DistributedLock struct {
	conn        *zk.Conn
	path        string        // 锁的路径，例如 /distributed_locks/inventory-expiry-sweep
	lockNode    string        // 成功获取锁后，自己创建的节点路径
	waitTimeout time.Duration // 等待前一个节点释放的最长时间
}

// NewDistributedLock 创建锁实例，并确保锁的父节点存在。
func NewDistributedLock(conn *zk.Conn, resourceID string, waitTimeout time.Duration) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + resourceID
	for _, p := range []string{lockRoot, lockPath} {
		if err := ensureNode(conn, p); err != nil {
			return nil, err
		}
	}
	return &DistributedLock{conn: conn, path: lockPath, waitTimeout: waitTimeout}, nil
}

func ensureNode(conn *zk.Conn, path string) error {
	exists, _, err := conn.Exists(path)
	if err != nil {
		return errors.Wrapf(err, "check node %s", path)
	}
	if exists {
		return nil
	}
	_, err = conn.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return errors.Wrapf(err, "create node %s", path)
	}
	return nil
}

// Lock 获取锁，获取不到时阻塞，最长等待 waitTimeout。
func (l *DistributedLock) Lock() error {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/"+lockPrefix, []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return errors.Wrap(err, "create sequential node")
	}
	l.lockNode = nodePath
	myNodeName := strings.TrimPrefix(nodePath, l.path+"/")

	deadline := time.After(l.waitTimeout)
	for {
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			return l.abort(errors.Wrap(err, "get children nodes"))
		}
		// protected 节点带有 GUID 前缀，只能按序号排序
		sort.Slice(children, func(i, j int) bool { return sequence(children[i]) < sequence(children[j]) })

		idx := -1
		for i, child := range children {
			if child == myNodeName {
				idx = i
				break
			}
		}
		switch {
		case idx < 0:
			return l.abort(errors.New("own lock node disappeared"))
		case idx == 0:
			return nil
		}

		exists, _, events, err := l.conn.ExistsW(l.path + "/" + children[idx-1])
		if err != nil {
			return l.abort(errors.Wrap(err, "watch previous node"))
		}
		if !exists {
			continue
		}
		select {
		case <-events:
		case <-deadline:
			return l.abort(errors.New("timeout waiting for lock"))
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
		return errors.Wrap(err, "delete lock node")
	}
	l.lockNode = ""
	return nil
}

// abort 放弃本次加锁，删除已创建的节点，避免后来者一直等待。
func (l *DistributedLock) abort(cause error) error {
	if l.lockNode != "" {
		_ = l.conn.Delete(l.lockNode, -1)
		l.lockNode = ""
	}
	return cause
}

func sequence(node string) string {
	if i := strings.LastIndex(node, lockPrefix); i >= 0 {
		return node[i+len(lockPrefix):]
	}
	return node
}

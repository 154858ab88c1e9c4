package lock

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Locker 服务层使用的锁接口。Acquire 成功后返回释放函数
type Locker interface {
	Acquire(ctx context.Context, key, owner string) (func(), error)
}

// RedisLocker 基于 DistributedLock，多实例部署时使用
type RedisLocker struct {
	client        *redis.Client
	expiration    time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client:        client,
		expiration:    30 * time.Second,
		retryInterval: 100 * time.Millisecond,
		maxRetries:    30,
	}
}

func (r *RedisLocker) Acquire(ctx context.Context, key, owner string) (func(), error) {
	l := NewDistributedLock(r.client, key, owner, r.expiration)
	if err := l.Lock(ctx, r.retryInterval, r.maxRetries); err != nil {
		return nil, err
	}
	return func() {
		if err := l.Unlock(context.Background()); err != nil {
			log.Printf("[Lock] 释放锁失败: key=%s, owner=%s, err=%v", key, owner, err)
		}
	}, nil
}

// LocalLocker 单实例部署（未启用 Redis）时的进程内锁，按 key 互斥
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) Acquire(ctx context.Context, key, owner string) (func(), error) {
	for {
		l.mu.Lock()
		ch, held := l.locks[key]
		if !held {
			ch = make(chan struct{})
			l.locks[key] = ch
			l.mu.Unlock()
			return func() { l.release(key, ch) }, nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}

func (l *LocalLocker) release(key string, ch chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks[key] == ch {
		delete(l.locks, key)
		close(ch)
	}
}

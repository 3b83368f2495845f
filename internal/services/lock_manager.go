// internal/services/lock_manager.go
package services

import (
	"context"
	"sync"
	"time"
)

// LockManager 会话级别的锁，保证同一会话的回合串行执行
type LockManager struct {
	sessionLocks map[string]*LockInfo
	globalLock   sync.Mutex
	lockTTL      time.Duration
}

// LockInfo 包装锁和相关信息
type LockInfo struct {
	mu       sync.Mutex
	lastUsed time.Time
	refs     int // 正在等待或持有该锁的调用数，大于 0 时不会被清理
}

// NewLockManager 创建锁管理器；lockTTL 内未使用的空闲锁会被清理
func NewLockManager(lockTTL time.Duration) *LockManager {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	return &LockManager{
		sessionLocks: make(map[string]*LockInfo),
		lockTTL:      lockTTL,
	}
}

func (lm *LockManager) acquire(sessionID string) *LockInfo {
	lm.globalLock.Lock()
	info, exists := lm.sessionLocks[sessionID]
	if !exists {
		info = &LockInfo{}
		lm.sessionLocks[sessionID] = info
	}
	info.refs++
	lm.globalLock.Unlock()

	info.mu.Lock()
	return info
}

func (lm *LockManager) release(info *LockInfo) {
	info.mu.Unlock()

	lm.globalLock.Lock()
	info.refs--
	info.lastUsed = time.Now()
	lm.globalLock.Unlock()
}

// ExecuteWithSessionLock 在会话锁保护下执行操作
func (lm *LockManager) ExecuteWithSessionLock(sessionID string, fn func() error) error {
	info := lm.acquire(sessionID)
	defer lm.release(info)
	return fn()
}

// Forget 会话结束后丢弃空闲的锁
func (lm *LockManager) Forget(sessionID string) {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	if info, ok := lm.sessionLocks[sessionID]; ok && info.refs == 0 {
		delete(lm.sessionLocks, sessionID)
	}
}

// Size 当前持有的锁数量
func (lm *LockManager) Size() int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	return len(lm.sessionLocks)
}

// StartCleanup 定期清理长时间未使用的锁，ctx 结束时退出
func (lm *LockManager) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				lm.cleanupUnusedLocks(time.Now())
			}
		}
	}()
}

func (lm *LockManager) cleanupUnusedLocks(now time.Time) int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	removed := 0
	for id, info := range lm.sessionLocks {
		if info.refs == 0 && now.Sub(info.lastUsed) > lm.lockTTL {
			delete(lm.sessionLocks, id)
			removed++
		}
	}
	return removed
}

// internal/services/session_store.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Corphon/ClientInterviewMCP/internal/config"
	apperrors "github.com/Corphon/ClientInterviewMCP/internal/errors"
	"github.com/Corphon/ClientInterviewMCP/internal/models"
	"github.com/Corphon/ClientInterviewMCP/internal/storage"
)

// SessionStore 会话持久化。引擎本身不做 I/O，会话在回合之间由存储保存。
type SessionStore interface {
	Save(ctx context.Context, s *models.ConversationSession) error
	Load(ctx context.Context, id string) (*models.ConversationSession, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// NewSessionStore 按配置创建存储
func NewSessionStore(cfg *config.Config) (SessionStore, error) {
	switch cfg.SessionStore {
	case config.StoreMemory:
		return NewMemorySessionStore(cfg.SessionTTL), nil
	case config.StoreFile:
		fs, err := storage.NewFileStorage(cfg.DataDir, storage.WithCache(cfg.FileCacheTTL, cfg.FileCacheSize))
		if err != nil {
			return nil, err
		}
		return NewFileSessionStore(fs, cfg.SessionTTL), nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisSessionStore(client, cfg.SessionTTL), nil
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("未知的会话存储类型: %s", cfg.SessionStore), nil)
	}
}

func sessionNotFound(id string) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("会话不存在: %s", id), nil)
}

// expired ttl 为 0 表示永不过期
func expired(s *models.ConversationSession, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(s.UpdatedAt) > ttl
}

// ---------------------------------------------------------------------------
// 内存存储

// MemorySessionStore 进程内存储，重启后丢失
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.ConversationSession
	ttl      time.Duration
	now      func() time.Time
}

// NewMemorySessionStore 创建内存存储
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*models.ConversationSession),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemorySessionStore) Save(_ context.Context, s *models.ConversationSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemorySessionStore) Load(_ context.Context, id string) (*models.ConversationSession, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, sessionNotFound(id)
	}
	if now := m.now(); expired(s, m.ttl, now) {
		m.deleteIfExpired(id, now)
		return nil, sessionNotFound(id)
	}
	return s.Clone(), nil
}

// deleteIfExpired 在写锁下重新检查，避免删掉读锁释放后刚保存的会话
func (m *MemorySessionStore) deleteIfExpired(id string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !expired(s, m.ttl, now) {
		return false
	}
	delete(m.sessions, id)
	return true
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return sessionNotFound(id)
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	ids := make([]string, 0, len(m.sessions))
	for id, s := range m.sessions {
		if !expired(s, m.ttl, now) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// PurgeExpired 删除过期会话，返回删除数量
func (m *MemorySessionStore) PurgeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if expired(s, m.ttl, now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// StartPurge 定期删除过期会话，ctx 结束时退出
func (m *MemorySessionStore) StartPurge(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.PurgeExpired()
			}
		}
	}()
}

func (m *MemorySessionStore) Close() error { return nil }

// ---------------------------------------------------------------------------
// 文件存储

const sessionsDir = "sessions"

// FileSessionStore 每个会话一个 JSON 文件：<DATA_DIR>/sessions/<id>.json
type FileSessionStore struct {
	fs  *storage.FileStorage
	ttl time.Duration
	now func() time.Time
}

// NewFileSessionStore 创建文件存储
func NewFileSessionStore(fs *storage.FileStorage, ttl time.Duration) *FileSessionStore {
	return &FileSessionStore{fs: fs, ttl: ttl, now: time.Now}
}

func (f *FileSessionStore) Save(_ context.Context, s *models.ConversationSession) error {
	return f.fs.SaveJSON(sessionsDir, s.ID+".json", s)
}

func (f *FileSessionStore) Load(_ context.Context, id string) (*models.ConversationSession, error) {
	var s models.ConversationSession
	if err := f.fs.LoadJSON(sessionsDir, id+".json", &s); err != nil {
		if apperrors.IsNotFoundError(err) {
			return nil, sessionNotFound(id)
		}
		return nil, err
	}
	if expired(&s, f.ttl, f.now()) {
		if err := f.fs.Delete(sessionsDir, id+".json"); err != nil && !apperrors.IsNotFoundError(err) {
			return nil, apperrors.NewStorageError(fmt.Sprintf("删除过期会话失败: %s", id), err)
		}
		return nil, sessionNotFound(id)
	}
	return &s, nil
}

func (f *FileSessionStore) Delete(_ context.Context, id string) error {
	if err := f.fs.Delete(sessionsDir, id+".json"); err != nil {
		if apperrors.IsNotFoundError(err) {
			return sessionNotFound(id)
		}
		return err
	}
	return nil
}

func (f *FileSessionStore) List(_ context.Context) ([]string, error) {
	names, err := f.fs.List(sessionsDir, ".json")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(names))
	for _, name := range names {
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// StartCacheCleanup 定期清理文件读缓存中过期的会话，ctx 结束时退出
func (f *FileSessionStore) StartCacheCleanup(ctx context.Context, interval time.Duration) {
	f.fs.StartCacheCleanup(ctx, interval)
}

func (f *FileSessionStore) Close() error { return nil }

// ---------------------------------------------------------------------------
// Redis 存储

const redisKeyPrefix = "interview:session:"

// RedisSessionStore 会话以 JSON 存在 Redis，TTL 交给 Redis 处理
type RedisSessionStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisSessionStore 创建 Redis 存储
func NewRedisSessionStore(client redis.UniversalClient, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (r *RedisSessionStore) key(id string) string {
	return redisKeyPrefix + id
}

// Ping 检查连接
func (r *RedisSessionStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return apperrors.NewStorageError("连接 Redis 失败", err)
	}
	return nil
}

func (r *RedisSessionStore) Save(ctx context.Context, s *models.ConversationSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return apperrors.NewStorageError("序列化会话失败", err)
	}
	if err := r.client.Set(ctx, r.key(s.ID), data, r.ttl).Err(); err != nil {
		return apperrors.NewStorageError("保存会话失败", err)
	}
	return nil
}

func (r *RedisSessionStore) Load(ctx context.Context, id string) (*models.ConversationSession, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sessionNotFound(id)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("读取会话失败", err)
	}
	var s models.ConversationSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, apperrors.NewStorageError("解析会话失败", err)
	}
	return &s, nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return apperrors.NewStorageError("删除会话失败", err)
	}
	if n == 0 {
		return sessionNotFound(id)
	}
	return nil
}

func (r *RedisSessionStore) List(ctx context.Context) ([]string, error) {
	ids := []string{}
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), redisKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, apperrors.NewStorageError("列出会话失败", err)
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *RedisSessionStore) Close() error {
	return r.client.Close()
}

var (
	_ SessionStore = (*MemorySessionStore)(nil)
	_ SessionStore = (*FileSessionStore)(nil)
	_ SessionStore = (*RedisSessionStore)(nil)
)

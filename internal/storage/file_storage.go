// internal/storage/file_storage.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Corphon/ClientInterviewMCP/internal/errors"
)

// FileStorage 以 BaseDir 为根的 JSON 文件存储，带文件级锁和读缓存
type FileStorage struct {
	BaseDir string

	// 并发控制
	fileLocks sync.Map // path -> *sync.RWMutex

	// 读缓存
	cache        map[string]cacheEntry
	cacheMutex   sync.RWMutex
	cacheExpiry  time.Duration
	maxCacheSize int
}

type cacheEntry struct {
	data     []byte
	storedAt time.Time
}

// Option FileStorage 选项
type Option func(*FileStorage)

// WithCache 设置缓存过期时间和容量；expiry 为 0 关闭缓存
func WithCache(expiry time.Duration, maxSize int) Option {
	return func(fs *FileStorage) {
		fs.cacheExpiry = expiry
		fs.maxCacheSize = maxSize
	}
}

// NewFileStorage 创建文件存储
func NewFileStorage(baseDir string, opts ...Option) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, apperrors.NewStorageError("创建存储目录失败", err)
	}

	fs := &FileStorage{
		BaseDir:      baseDir,
		cache:        make(map[string]cacheEntry),
		cacheExpiry:  5 * time.Minute,
		maxCacheSize: 100,
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs, nil
}

func (fs *FileStorage) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := fs.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

// path 拼接并拒绝跳出 BaseDir 的路径
func (fs *FileStorage) path(dirPath, filename string) (string, error) {
	if filename == "" || strings.ContainsAny(filename, `/\`) || filename == "." || filename == ".." {
		return "", apperrors.NewValidationError(fmt.Sprintf("非法文件名: %q", filename), nil)
	}
	full := filepath.Join(fs.BaseDir, dirPath, filename)
	rel, err := filepath.Rel(fs.BaseDir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", apperrors.NewValidationError(fmt.Sprintf("路径超出存储目录: %s", filepath.Join(dirPath, filename)), nil)
	}
	return full, nil
}

// Save 原子写入：先写临时文件再重命名
func (fs *FileStorage) Save(dirPath, filename string, content []byte) error {
	fullPath, err := fs.path(dirPath, filename)
	if err != nil {
		return err
	}

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return apperrors.NewStorageError("创建目录失败", err)
	}

	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return apperrors.NewStorageError("保存临时文件失败", err)
	}
	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return apperrors.NewStorageError("保存文件失败", err)
	}

	fs.invalidateCache(fullPath)
	return nil
}

// SaveJSON 序列化后保存
func (fs *FileStorage) SaveJSON(dirPath, filename string, data interface{}) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return apperrors.NewStorageError("序列化JSON失败", err)
	}
	return fs.Save(dirPath, filename, content)
}

// Load 读取文件，文件不存在时返回 NotFound 错误
func (fs *FileStorage) Load(dirPath, filename string) ([]byte, error) {
	fullPath, err := fs.path(dirPath, filename)
	if err != nil {
		return nil, err
	}
	if data, ok := fs.cached(fullPath); ok {
		return data, nil
	}

	lock := fs.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	content, err := os.ReadFile(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("文件不存在: %s", filepath.Join(dirPath, filename)), err)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("读取文件失败", err)
	}

	fs.updateCache(fullPath, content)
	return content, nil
}

// LoadJSON 读取并解析
func (fs *FileStorage) LoadJSON(dirPath, filename string, v interface{}) error {
	content, err := fs.Load(dirPath, filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(content, v); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("解析JSON失败: %s", filename), err)
	}
	return nil
}

// Delete 删除文件
func (fs *FileStorage) Delete(dirPath, filename string) error {
	fullPath, err := fs.path(dirPath, filename)
	if err != nil {
		return err
	}

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperrors.NewNotFoundError(fmt.Sprintf("文件不存在: %s", filepath.Join(dirPath, filename)), err)
		}
		return apperrors.NewStorageError("删除文件失败", err)
	}

	fs.invalidateCache(fullPath)
	return nil
}

// List 列出目录下指定后缀的文件名（已排序），目录不存在时返回空
func (fs *FileStorage) List(dirPath, suffix string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(fs.BaseDir, dirPath))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageError("读取目录失败", err)
	}

	names := []string{}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), suffix) {
			names = append(names, entry.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

func (fs *FileStorage) cached(fullPath string) ([]byte, bool) {
	if fs.cacheExpiry <= 0 {
		return nil, false
	}
	fs.cacheMutex.RLock()
	defer fs.cacheMutex.RUnlock()
	entry, ok := fs.cache[fullPath]
	if !ok || time.Since(entry.storedAt) >= fs.cacheExpiry {
		return nil, false
	}
	return entry.data, true
}

func (fs *FileStorage) updateCache(fullPath string, data []byte) {
	if fs.cacheExpiry <= 0 {
		return
	}
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()

	fs.cache[fullPath] = cacheEntry{data: data, storedAt: time.Now()}
	if len(fs.cache) > fs.maxCacheSize {
		fs.evictOldestLocked(len(fs.cache) - fs.maxCacheSize)
	}
}

func (fs *FileStorage) invalidateCache(fullPath string) {
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()
	delete(fs.cache, fullPath)
}

// evictOldestLocked 调用方须持有 cacheMutex
func (fs *FileStorage) evictOldestLocked(n int) {
	type aged struct {
		key string
		at  time.Time
	}
	entries := make([]aged, 0, len(fs.cache))
	for key, entry := range fs.cache {
		entries = append(entries, aged{key, entry.storedAt})
	}
	slices.SortFunc(entries, func(a, b aged) int { return a.at.Compare(b.at) })
	for i := 0; i < n && i < len(entries); i++ {
		delete(fs.cache, entries[i].key)
	}
}

// StartCacheCleanup 定期清理过期缓存，ctx 结束时退出
func (fs *FileStorage) StartCacheCleanup(ctx context.Context, interval time.Duration) {
	if fs.cacheExpiry <= 0 {
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
				fs.cleanupExpiredCache()
			}
		}
	}()
}

func (fs *FileStorage) cleanupExpiredCache() {
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()
	now := time.Now()
	for key, entry := range fs.cache {
		if now.Sub(entry.storedAt) >= fs.cacheExpiry {
			delete(fs.cache, key)
		}
	}
}

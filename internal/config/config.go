// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// 会话存储类型
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Config 应用配置，全部来自环境变量（可由 .env 提供）
type Config struct {
	// 基础配置
	Port      string `env:"PORT" envDefault:"8080"`
	DataDir   string `env:"DATA_DIR" envDefault:"data"`
	LogDir    string `env:"LOG_DIR" envDefault:"logs"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	DebugMode bool   `env:"DEBUG_MODE" envDefault:"false"`

	// 语料：为空时使用内置语料
	CorpusPath   string `env:"CORPUS_PATH"`
	CompiledPath string `env:"COMPILED_PATH"`

	// 会话存储
	SessionStore  string        `env:"SESSION_STORE" envDefault:"memory"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"2h"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`

	// 文件存储读缓存，FILE_CACHE_TTL 为 0 关闭缓存
	FileCacheTTL  time.Duration `env:"FILE_CACHE_TTL" envDefault:"5m"`
	FileCacheSize int           `env:"FILE_CACHE_SIZE" envDefault:"100"`

	// 引擎与接口
	RandomSeed         int64 `env:"RANDOM_SEED" envDefault:"0"` // 0 表示按时间取种子
	RateLimitPerMinute int   `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
}

// Load 先尝试加载 .env（可选），再解析环境变量
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("警告: 读取 .env 失败: %v", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromMap 从给定的键值解析配置，不读取进程环境
func LoadFromMap(environ map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置取值
func (c *Config) Validate() error {
	switch c.SessionStore {
	case StoreMemory, StoreFile, StoreRedis:
	default:
		return fmt.Errorf("未知的会话存储类型: %q", c.SessionStore)
	}
	if c.Port == "" {
		return fmt.Errorf("PORT 不能为空")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL 不能为负数: %s", c.SessionTTL)
	}
	if c.FileCacheTTL < 0 || c.FileCacheSize < 0 {
		return fmt.Errorf("FILE_CACHE_TTL 和 FILE_CACHE_SIZE 不能为负数")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE 不能为负数: %d", c.RateLimitPerMinute)
	}
	if c.SessionStore == StoreRedis && c.RedisAddr == "" {
		return fmt.Errorf("使用 redis 存储时必须设置 REDIS_ADDR")
	}
	return nil
}

// EnsureDirs 确保数据和日志目录存在
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败 %s: %w", dir, err)
		}
	}
	if c.CompiledPath != "" {
		if err := os.MkdirAll(filepath.Dir(c.CompiledPath), 0755); err != nil {
			return fmt.Errorf("创建目录失败 %s: %w", filepath.Dir(c.CompiledPath), err)
		}
	}
	return nil
}

// Addr 监听地址
func (c *Config) Addr() string {
	return ":" + c.Port
}

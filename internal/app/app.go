// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/ClientInterviewMCP/internal/api"
	"github.com/Corphon/ClientInterviewMCP/internal/config"
	"github.com/Corphon/ClientInterviewMCP/internal/di"
	"github.com/Corphon/ClientInterviewMCP/internal/engine"
	"github.com/Corphon/ClientInterviewMCP/internal/services"
	"github.com/Corphon/ClientInterviewMCP/internal/utils"
)

// httpServer 便于测试替换
type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 应用实例
type App struct {
	config   *config.Config
	router   http.Handler
	server   httpServer
	stopChan chan os.Signal

	ctx    context.Context // 后台任务的生命周期
	cancel context.CancelFunc
}

var (
	instance   *App
	instanceMu sync.Mutex
)

// GetApp 获取应用实例（单例）
func GetApp() *App {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance == nil {
		ctx, cancel := context.WithCancel(context.Background())
		instance = &App{
			stopChan: make(chan os.Signal, 1),
			ctx:      ctx,
			cancel:   cancel,
		}
	}
	return instance
}

// Initialize 初始化日志、服务和路由
func Initialize(cfg *config.Config) error {
	app := GetApp()
	app.config = cfg

	if err := cfg.EnsureDirs(); err != nil {
		return err
	}
	if err := initLogger(cfg.LogDir); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}
	level := utils.ParseLogLevel(cfg.LogLevel)
	if cfg.DebugMode {
		level = utils.DEBUG
	}
	utils.GetLogger().SetLogLevel(level)

	if err := InitServices(cfg); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router, err := api.SetupRouter(app.backgroundContext(), di.GetContainer(), cfg)
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}
	app.router = router
	return nil
}

// InitServices 按依赖顺序创建服务并注册到容器
func InitServices(cfg *config.Config) error {
	app := GetApp()
	ctx := app.backgroundContext()
	container := di.GetContainer()

	logger := utils.GetLogger()
	metrics := utils.NewInterviewMetrics()
	container.Register(di.ServiceConfig, cfg)
	container.Register(di.ServiceLogger, logger)
	container.Register(di.ServiceMetrics, metrics)

	corpusService, err := services.NewCorpusService(services.CorpusOptions{
		CorpusPath:   cfg.CorpusPath,
		CompiledPath: cfg.CompiledPath,
		Random:       engine.NewRandomSource(cfg.RandomSeed),
	}, logger, metrics)
	if err != nil {
		return fmt.Errorf("编译语料失败: %w", err)
	}
	container.Register(di.ServiceCorpus, corpusService)

	store, err := services.NewSessionStore(cfg)
	if err != nil {
		return err
	}
	switch s := store.(type) {
	case *services.RedisSessionStore:
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := s.Ping(pingCtx)
		cancel()
		if err != nil {
			store.Close()
			return err
		}
	case *services.MemorySessionStore:
		s.StartPurge(ctx, time.Minute)
	case *services.FileSessionStore:
		s.StartCacheCleanup(ctx, time.Minute)
	}
	container.Register(di.ServiceStore, store)

	locks := services.NewLockManager(cfg.SessionTTL)
	locks.StartCleanup(ctx, 5*time.Minute)
	container.Register(di.ServiceLocks, locks)

	events := services.NewEventHub(32)
	container.Register(di.ServiceEvents, events)

	container.Register(di.ServiceInterview, services.NewInterviewService(corpusService, store, locks, events, logger, metrics))

	metrics.StartMetricsCollection(ctx, time.Minute)

	logger.Info("Services initialized", map[string]interface{}{
		"session_store": cfg.SessionStore,
		"session_ttl":   cfg.SessionTTL.String(),
		"services":      len(container.GetNames()),
	})
	return nil
}

// initLogger 在 logDir 下创建按日期命名的日志文件
func initLogger(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}
	return utils.InitLogger(utils.DatedLogFile(logDir))
}

// Run 启动 HTTP 服务，收到 SIGINT/SIGTERM 后优雅关闭
func Run() error {
	app := GetApp()
	if app.server == nil {
		app.server = &http.Server{
			Addr:              app.config.Addr(),
			Handler:           app.router,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	signal.Notify(app.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(app.stopChan)

	errChan := make(chan error, 1)
	go func() {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		app.cleanup()
		return fmt.Errorf("启动服务器失败: %w", err)
	case <-app.stopChan:
	}

	log.Println("🛑 正在关闭服务器...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := app.server.Shutdown(ctx)
	app.cleanup()
	if err != nil {
		return fmt.Errorf("服务器强制关闭: %w", err)
	}
	log.Println("✅ 服务器优雅关闭完成")
	return nil
}

// cleanup 停止后台任务并释放存储和日志文件
func (a *App) cleanup() {
	if a.cancel != nil {
		a.cancel()
	}
	if store, err := di.Resolve[services.SessionStore](di.GetContainer(), di.ServiceStore); err == nil {
		if err := store.Close(); err != nil {
			log.Printf("关闭会话存储失败: %v", err)
		}
	}
	utils.GetLogger().Close()
}

func (a *App) backgroundContext() context.Context {
	if a.ctx == nil {
		a.ctx, a.cancel = context.WithCancel(context.Background())
	}
	return a.ctx
}

// GetConfig 获取应用配置
func (a *App) GetConfig() *config.Config {
	return a.config
}

// Handler 返回已配置的路由
func (a *App) Handler() http.Handler {
	return a.router
}

// GetDIContainer 获取依赖注入容器
func GetDIContainer() *di.Container {
	return di.GetContainer()
}

// IsDebugMode 检查是否处于调试模式
func IsDebugMode() bool {
	instanceMu.Lock()
	app := instance
	instanceMu.Unlock()
	return app != nil && app.config != nil && app.config.DebugMode
}

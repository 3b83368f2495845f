// internal/api/router.go
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/ClientInterviewMCP/internal/config"
	"github.com/Corphon/ClientInterviewMCP/internal/di"
	"github.com/Corphon/ClientInterviewMCP/internal/services"
	"github.com/Corphon/ClientInterviewMCP/internal/utils"
)

// SetupRouter 配置HTTP路由。服务只从容器获取，不在这里创建。
// ctx 结束时停止限流器的后台清理。
func SetupRouter(ctx context.Context, container *di.Container, cfg *config.Config) (*gin.Engine, error) {
	interviewService, err := di.Resolve[*services.InterviewService](container, di.ServiceInterview)
	if err != nil {
		return nil, fmt.Errorf("问诊服务未正确初始化: %w", err)
	}
	corpusService, err := di.Resolve[*services.CorpusService](container, di.ServiceCorpus)
	if err != nil {
		return nil, fmt.Errorf("语料服务未正确初始化: %w", err)
	}
	metrics, err := di.Resolve[*utils.InterviewMetrics](container, di.ServiceMetrics)
	if err != nil {
		return nil, fmt.Errorf("指标服务未正确初始化: %w", err)
	}
	logger, err := di.Resolve[*utils.Logger](container, di.ServiceLogger)
	if err != nil {
		return nil, fmt.Errorf("日志服务未正确初始化: %w", err)
	}

	handler := NewHandler(interviewService, corpusService, metrics, logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(loggingMiddleware(logger))
	r.Use(metricsMiddleware(metrics))
	r.Use(corsMiddleware())

	// WebSocket 支持
	r.GET("/ws/sessions/:id", handler.InterviewWebSocket)

	api := r.Group("/api")
	if cfg.RateLimitPerMinute > 0 {
		limiter := NewRateLimiter(cfg.RateLimitPerMinute)
		limiter.StartCleanup(ctx, 5*time.Minute, 10*time.Minute)
		api.Use(RateLimitByIP(limiter))
	}
	{
		api.GET("/health", handler.HealthCheck)
		api.GET("/metrics", handler.GetMetrics)

		// 语料
		api.GET("/corpus", handler.GetCorpus)
		api.POST("/corpus/reload", handler.ReloadCorpus)
		api.POST("/intents/recognize", handler.RecognizeIntent)

		// 会话
		api.POST("/sessions", handler.CreateSession)
		api.GET("/sessions", handler.ListSessions)
		api.GET("/sessions/:id", handler.GetSession)
		api.DELETE("/sessions/:id", handler.EndSession)
		api.POST("/sessions/:id/turns", handler.ProcessTurn)
		api.GET("/sessions/:id/summary", handler.GetSummary)
		api.POST("/sessions/:id/reset", handler.ResetSession)
	}

	rh := NewResponseHelper()
	r.NoRoute(func(c *gin.Context) {
		rh.NotFound(c, "接口")
	})

	return r, nil
}

// internal/api/handlers.go
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/ClientInterviewMCP/internal/services"
	"github.com/Corphon/ClientInterviewMCP/internal/utils"
)

// Handler 处理 HTTP 请求
type Handler struct {
	InterviewService *services.InterviewService
	CorpusService    *services.CorpusService
	Metrics          *utils.InterviewMetrics
	Logger           *utils.Logger
	rh               *ResponseHelper
	startedAt        time.Time
}

// NewHandler 创建 API 处理器
func NewHandler(interview *services.InterviewService, corpus *services.CorpusService, metrics *utils.InterviewMetrics, logger *utils.Logger) *Handler {
	return &Handler{
		InterviewService: interview,
		CorpusService:    corpus,
		Metrics:          metrics,
		Logger:           logger,
		rh:               NewResponseHelper(),
		startedAt:        time.Now(),
	}
}

// TextRequest 回合和意图识别的请求体
type TextRequest struct {
	Text string `json:"text" binding:"required"`
}

// HealthCheck GET /api/health
func (h *Handler) HealthCheck(c *gin.Context) {
	info := h.CorpusService.Info()
	h.rh.Success(c, gin.H{
		"status":    "ok",
		"character": info.Character,
		"intents":   info.Stats.Intents,
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		"locks":     h.InterviewService.SessionLocks(),
	})
}

// GetCorpus GET /api/corpus
func (h *Handler) GetCorpus(c *gin.Context) {
	h.rh.Success(c, h.CorpusService.Info())
}

// ReloadCorpus POST /api/corpus/reload
func (h *Handler) ReloadCorpus(c *gin.Context) {
	if err := h.CorpusService.Reload(); err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, h.CorpusService.Info(), "语料已重新编译")
}

// RecognizeIntent POST /api/intents/recognize
func (h *Handler) RecognizeIntent(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rh.BadRequest(c, "请求格式错误", err.Error())
		return
	}
	match, err := h.InterviewService.Recognize(req.Text)
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, match)
}

// CreateSession POST /api/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	session, err := h.InterviewService.StartSession(c.Request.Context())
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Created(c, session, "会话已创建")
}

// ListSessions GET /api/sessions
func (h *Handler) ListSessions(c *gin.Context) {
	ids, err := h.InterviewService.ListSessions(c.Request.Context())
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, gin.H{"sessions": ids, "count": len(ids)})
}

// GetSession GET /api/sessions/:id
func (h *Handler) GetSession(c *gin.Context) {
	session, err := h.InterviewService.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, session)
}

// EndSession DELETE /api/sessions/:id
func (h *Handler) EndSession(c *gin.Context) {
	resp, err := h.InterviewService.EndSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, resp, "会话已结束")
}

// ProcessTurn POST /api/sessions/:id/turns
func (h *Handler) ProcessTurn(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rh.BadRequest(c, "请求格式错误", err.Error())
		return
	}
	resp, err := h.InterviewService.ProcessTurn(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, resp)
}

// GetSummary GET /api/sessions/:id/summary
func (h *Handler) GetSummary(c *gin.Context) {
	summary, err := h.InterviewService.GetSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, summary)
}

// ResetSession POST /api/sessions/:id/reset
func (h *Handler) ResetSession(c *gin.Context) {
	session, err := h.InterviewService.ResetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, session, "会话已重置")
}

// GetMetrics GET /api/metrics
func (h *Handler) GetMetrics(c *gin.Context) {
	h.rh.Success(c, h.Metrics.Collector().Snapshot())
}

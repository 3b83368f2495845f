// internal/services/interview_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Corphon/ClientInterviewMCP/internal/engine"
	apperrors "github.com/Corphon/ClientInterviewMCP/internal/errors"
	"github.com/Corphon/ClientInterviewMCP/internal/models"
	"github.com/Corphon/ClientInterviewMCP/internal/utils"
)

// MaxUtteranceLength 单个回合输入的最大字符数
const MaxUtteranceLength = 1000

// TurnResponse 一个回合的处理结果
type TurnResponse struct {
	SessionID string `json:"session_id"`
	Turn      int    `json:"turn"` // 从 1 开始
	engine.TurnResult
}

// EndResponse 结束会话时返回的最终摘要
type EndResponse struct {
	SessionID string                `json:"session_id"`
	Summary   models.SessionSummary `json:"summary"`
}

// InterviewService 管理会话生命周期：加载、处理回合、保存
type InterviewService struct {
	corpus  *CorpusService
	store   SessionStore
	locks   *LockManager
	events  *EventHub
	logger  *utils.Logger
	metrics *utils.InterviewMetrics
	newID   func() string
}

// NewInterviewService 创建问诊服务
func NewInterviewService(
	corpus *CorpusService,
	store SessionStore,
	locks *LockManager,
	events *EventHub,
	logger *utils.Logger,
	metrics *utils.InterviewMetrics,
) *InterviewService {
	return &InterviewService{
		corpus:  corpus,
		store:   store,
		locks:   locks,
		events:  events,
		logger:  logger,
		metrics: metrics,
		newID:   uuid.NewString,
	}
}

// Events 会话事件中心
func (s *InterviewService) Events() *EventHub {
	return s.events
}

// Watchers 会话当前的订阅者数量
func (s *InterviewService) Watchers(sessionID string) int {
	return s.events.Subscribers(sessionID)
}

// SessionLocks 当前持有的会话锁数量（含未清理的空闲锁）
func (s *InterviewService) SessionLocks() int {
	return s.locks.Size()
}

// StartSession 以语料默认值开始一个新会话
func (s *InterviewService) StartSession(ctx context.Context) (*models.ConversationSession, error) {
	session := s.corpus.Engine().NewSession(s.newID())
	if err := s.store.Save(ctx, session); err != nil {
		s.metrics.RecordError("storage", "interview_service")
		return nil, err
	}
	s.metrics.SessionStarted()
	s.logger.Info("Session started", map[string]interface{}{
		"session_id": session.ID,
		"trust":      session.TrustLevel,
		"emotion":    session.CurrentEmotion,
	})
	return session, nil
}

// GetSession 读取会话快照
func (s *InterviewService) GetSession(ctx context.Context, id string) (*models.ConversationSession, error) {
	return s.store.Load(ctx, id)
}

// ListSessions 列出未过期的会话 ID
func (s *InterviewService) ListSessions(ctx context.Context) ([]string, error) {
	return s.store.List(ctx)
}

// ProcessTurn 在会话锁内完成 加载 -> 引擎处理 -> 保存
func (s *InterviewService) ProcessTurn(ctx context.Context, id, text string) (*TurnResponse, error) {
	if err := validateUtterance(text); err != nil {
		return nil, err
	}

	var resp *TurnResponse
	err := s.locks.ExecuteWithSessionLock(id, func() error {
		session, err := s.store.Load(ctx, id)
		if err != nil {
			return err
		}

		start := time.Now()
		result := s.corpus.Engine().ProcessTurn(session, text)
		s.metrics.RecordTurn(result.Reply.Intent, string(result.Match.Kind), string(result.Outcome), time.Since(start))

		if err := s.store.Save(ctx, session); err != nil {
			s.metrics.RecordError("storage", "interview_service")
			return err
		}
		resp = &TurnResponse{SessionID: id, Turn: len(session.History), TurnResult: result}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Turn processed", map[string]interface{}{
		"session_id": id,
		"turn":       resp.Turn,
		"intent":     resp.Reply.Intent,
		"match":      resp.Match.Kind,
		"outcome":    resp.Outcome,
		"trust":      resp.Reply.TrustLevel,
	})
	s.events.Publish(SessionEvent{Type: EventTurn, SessionID: id, Data: resp})
	return resp, nil
}

// GetSummary 会话摘要
func (s *InterviewService) GetSummary(ctx context.Context, id string) (models.SessionSummary, error) {
	session, err := s.store.Load(ctx, id)
	if err != nil {
		return models.SessionSummary{}, err
	}
	return s.corpus.Engine().Summary(session), nil
}

// ResetSession 清空进度，保留会话 ID
func (s *InterviewService) ResetSession(ctx context.Context, id string) (*models.ConversationSession, error) {
	var snapshot *models.ConversationSession
	err := s.locks.ExecuteWithSessionLock(id, func() error {
		session, err := s.store.Load(ctx, id)
		if err != nil {
			return err
		}
		s.corpus.Engine().Reset(session)
		if err := s.store.Save(ctx, session); err != nil {
			return err
		}
		snapshot = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Session reset", map[string]interface{}{"session_id": id})
	s.events.Publish(SessionEvent{Type: EventReset, SessionID: id, Data: snapshot})
	return snapshot, nil
}

// EndSession 删除会话并返回最终摘要，关闭该会话的所有订阅
func (s *InterviewService) EndSession(ctx context.Context, id string) (*EndResponse, error) {
	var resp *EndResponse
	err := s.locks.ExecuteWithSessionLock(id, func() error {
		session, err := s.store.Load(ctx, id)
		if err != nil {
			return err
		}
		resp = &EndResponse{SessionID: id, Summary: s.corpus.Engine().Summary(session)}
		return s.store.Delete(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	s.locks.Forget(id)
	s.metrics.SessionEnded()

	s.logger.Info("Session ended", map[string]interface{}{
		"session_id": id,
		"exchanges":  resp.Summary.TotalExchanges,
		"trust":      resp.Summary.TrustLevel,
		"key_facts":  len(resp.Summary.KeyFactsGathered),
	})
	s.events.Publish(SessionEvent{Type: EventEnded, SessionID: id, Data: resp})
	s.events.Close(id)
	return resp, nil
}

// Subscribe 订阅已存在会话的事件
func (s *InterviewService) Subscribe(ctx context.Context, id string) (<-chan SessionEvent, func(), error) {
	if _, err := s.store.Load(ctx, id); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.events.Subscribe(id)
	return ch, cancel, nil
}

// Recognize 只做意图识别，不涉及任何会话
func (s *InterviewService) Recognize(text string) (engine.Match, error) {
	if err := validateUtterance(text); err != nil {
		return engine.Match{}, err
	}
	return s.corpus.Engine().Recognize(text), nil
}

func validateUtterance(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperrors.NewValidationError("输入不能为空", nil)
	}
	if n := utf8.RuneCountInString(text); n > MaxUtteranceLength {
		return apperrors.NewValidationError(fmt.Sprintf("输入过长: %d 个字符，最多 %d", n, MaxUtteranceLength), nil)
	}
	return nil
}

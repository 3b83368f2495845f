// internal/engine/engine.go
package engine

import (
	"time"

	apperrors "github.com/Corphon/ClientInterviewMCP/internal/errors"
	"github.com/Corphon/ClientInterviewMCP/internal/models"
)

const (
	// FillerProbability 回复前随机插入口头禅的概率
	FillerProbability = 0.15

	highTrustThreshold   = 60
	mediumTrustThreshold = 30

	minTrust = 0
	maxTrust = 100
)

// 固定回复
var (
	unclearResponse = models.CandidateResponse{
		Text:    "I'm sorry, I didn't quite catch that. Could you rephrase your question?",
		Emotion: string(EmotionConfused),
	}
	deflectionResponse = models.CandidateResponse{
		Text:    "I'd be happy to help with that, but could we discuss some basics first?",
		Emotion: string(EmotionCooperative),
	}
)

// Outcome 一个回合的处理结果类别
type Outcome string

const (
	OutcomeAnswered  Outcome = "answered"
	OutcomeDeflected Outcome = "deflected"
	OutcomeUnclear   Outcome = "unclear"
)

// TurnResult 一个回合的完整结果，EngineReply 之外附带识别细节
type TurnResult struct {
	Reply     models.EngineReply `json:"reply"`
	Match     Match              `json:"match"`
	Outcome   Outcome            `json:"outcome"`
	FollowUps []string           `json:"follow_ups,omitempty"`
}

// Engine 对话引擎。持有只读的编译索引，可被任意多个会话共享；
// 会话本身不是并发安全的，同一会话的回合必须由调用方串行化。
type Engine struct {
	index  *models.CompiledIndex
	styles voiceStyles
	random RandomSource
	now    func() time.Time
}

// Option 引擎选项
type Option func(*Engine)

// WithRandom 注入随机源
func WithRandom(r RandomSource) Option {
	return func(e *Engine) {
		if r != nil {
			e.random = r
		}
	}
}

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New 基于编译索引创建引擎
func New(idx *models.CompiledIndex, opts ...Option) (*Engine, error) {
	if idx == nil || len(idx.Intents) == 0 {
		return nil, apperrors.NewMalformedCorpusError("", "compiled index has no intents")
	}
	styles, err := newVoiceStyles(idx.VoiceStyles)
	if err != nil {
		return nil, apperrors.NewMalformedCorpusError("", err.Error())
	}

	e := &Engine{
		index:  idx,
		styles: styles,
		random: NewRandomSource(0),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Index 返回共享的编译索引（只读）
func (e *Engine) Index() *models.CompiledIndex {
	return e.index
}

// NewSession 使用语料默认值创建会话
func (e *Engine) NewSession(id string) *models.ConversationSession {
	now := e.now()
	s := &models.ConversationSession{ID: id, CreatedAt: now}
	e.resetState(s, now)
	return s
}

// Reset 丢弃会话进度，恢复语料默认值；ID 和创建时间保留
func (e *Engine) Reset(s *models.ConversationSession) {
	e.resetState(s, e.now())
}

func (e *Engine) resetState(s *models.ConversationSession, now time.Time) {
	s.TrustLevel = clampTrust(e.index.BaseTrust)
	s.CurrentEmotion = e.index.Character.Personality.BaselineEmotion
	s.TopicsCovered = []string{}
	s.History = []models.Turn{}
	s.UpdatedAt = now
}

// Recognize 只做意图识别，不修改任何状态
func (e *Engine) Recognize(utterance string) Match {
	return recognize(e.index, utterance)
}

// ProcessInput 处理一个回合并返回角色的回复
func (e *Engine) ProcessInput(s *models.ConversationSession, utterance string) models.EngineReply {
	return e.ProcessTurn(s, utterance).Reply
}

// ProcessTurn 识别意图、选择回复、更新会话状态。
// 无法识别的输入不是错误，总会得到一个角色内的回复。
func (e *Engine) ProcessTurn(s *models.ConversationSession, utterance string) TurnResult {
	match := recognize(e.index, utterance)
	entry, known := e.index.Intents[match.Intent]

	var (
		response models.CandidateResponse
		outcome  Outcome
		text     string
	)
	// 固定回复不加口头禅，也不消耗随机数
	switch {
	case !known:
		response, outcome = unclearResponse, OutcomeUnclear
		text = response.Text
	case !e.contextSatisfied(s, entry.ContextRequired):
		response, outcome = deflectionResponse, OutcomeDeflected
		text = response.Text
	default:
		response, outcome = entry.Responses[tierIndex(s.TrustLevel, len(entry.Responses))], OutcomeAnswered
		text = e.vary(response.Text)
	}

	// general_unclear 只记历史，不改信任、情绪和话题
	if outcome != OutcomeUnclear {
		s.TrustLevel = clampTrust(s.TrustLevel + response.TrustImpact)
		if response.Emotion != "" {
			s.CurrentEmotion = response.Emotion
		}
	}
	if outcome == OutcomeAnswered {
		s.AddTopic(match.Intent)
	}

	now := e.now()
	emotion := response.Emotion
	if emotion == "" {
		emotion = s.CurrentEmotion
	}
	s.History = append(s.History, models.Turn{
		User:      utterance,
		Intent:    match.Intent,
		Response:  text,
		Emotion:   emotion,
		Timestamp: now.UTC().Format(time.RFC3339),
	})
	s.UpdatedAt = now

	result := TurnResult{
		Reply: models.EngineReply{
			Text:        text,
			Emotion:     emotion,
			TrustLevel:  s.TrustLevel,
			Animation:   Emotion(emotion).Animation(),
			VoiceParams: e.styles.Params(match.Intent, Emotion(emotion)),
			Intent:      match.Intent,
		},
		Match:   match,
		Outcome: outcome,
	}
	if outcome == OutcomeAnswered {
		result.FollowUps = entry.FollowUps
	}
	return result
}

// Summary 会话摘要
func (e *Engine) Summary(s *models.ConversationSession) models.SessionSummary {
	return models.SessionSummary{
		TotalExchanges:   len(s.History),
		TrustLevel:       s.TrustLevel,
		CurrentEmotion:   s.CurrentEmotion,
		TopicsCovered:    append([]string{}, s.TopicsCovered...),
		KeyFactsGathered: e.keyFacts(s),
	}
}

// keyFacts 从已讨论话题推导，而不是扫描历史：同一意图重复回答只记一次，
// 被推脱的不算，按首次回答的顺序
func (e *Engine) keyFacts(s *models.ConversationSession) []string {
	facts := []string{}
	for _, intent := range s.TopicsCovered {
		if fact, ok := e.index.KeyFacts[intent]; ok {
			facts = append(facts, fact)
		}
	}
	return facts
}

// contextSatisfied 前置标签全部满足才返回 true；语料未声明的标签视为满足
func (e *Engine) contextSatisfied(s *models.ConversationSession, required []string) bool {
	for _, tag := range required {
		target, ok := e.index.ContextTags[tag]
		if !ok {
			continue
		}
		if !s.HasTopic(target) {
			return false
		}
	}
	return true
}

// vary 以固定概率在回复前加一个口头禅
func (e *Engine) vary(text string) string {
	fillers := e.index.Character.Speech.FillerWords
	if len(fillers) == 0 {
		return text
	}
	if e.random.Float64() >= FillerProbability {
		return text
	}
	return fillers[e.random.Intn(len(fillers))] + ", " + text
}

// tierIndex 信任度 > 60 取最详细的回复，(30, 60] 取第二个，其余取最保守的
func tierIndex(trust float64, n int) int {
	switch {
	case trust > highTrustThreshold:
		return 0
	case trust > mediumTrustThreshold:
		return min(1, n-1)
	default:
		return n - 1
	}
}

func clampTrust(v float64) float64 {
	return max(minTrust, min(maxTrust, v))
}

// internal/models/session.go
package models

import (
	"slices"
	"time"
)

// ConversationSession 一次模拟问诊的会话状态
// 只能由引擎的回合处理修改，同一会话不允许并发处理两个回合
type ConversationSession struct {
	ID             string    `json:"id"`
	TrustLevel     float64   `json:"trust_level"`     // [0, 100]
	CurrentEmotion string    `json:"current_emotion"` // 当前情绪标签
	TopicsCovered  []string  `json:"topics_covered"`  // 已触发的意图（有序集合）
	History        []Turn    `json:"history"`         // 只追加的对话日志
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Turn 会话中的一个回合
type Turn struct {
	User      string `json:"user"`
	Intent    string `json:"intent"`
	Response  string `json:"response"`
	Emotion   string `json:"emotion"`
	Timestamp string `json:"timestamp"` // RFC3339
}

// HasTopic 检查意图是否已经讨论过
func (s *ConversationSession) HasTopic(intentID string) bool {
	return slices.Contains(s.TopicsCovered, intentID)
}

// AddTopic 记录已讨论的意图，重复添加无效果
func (s *ConversationSession) AddTopic(intentID string) {
	if !s.HasTopic(intentID) {
		s.TopicsCovered = append(s.TopicsCovered, intentID)
	}
}

// Clone 深拷贝会话，用于对外返回快照
func (s *ConversationSession) Clone() *ConversationSession {
	if s == nil {
		return nil
	}
	out := *s
	out.TopicsCovered = slices.Clone(s.TopicsCovered)
	out.History = slices.Clone(s.History)
	return &out
}

// VoiceParams 语音合成参数
type VoiceParams struct {
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

// EngineReply 引擎对一个回合的结构化回复
type EngineReply struct {
	Text        string      `json:"text"`
	Emotion     string      `json:"emotion"`
	TrustLevel  float64     `json:"trust_level"`
	Animation   string      `json:"animation"`
	VoiceParams VoiceParams `json:"voice_params"`
	Intent      string      `json:"intent"`
}

// SessionSummary 会话摘要
type SessionSummary struct {
	TotalExchanges   int      `json:"total_exchanges"`
	TrustLevel       float64  `json:"trust_level"`
	CurrentEmotion   string   `json:"current_emotion"`
	TopicsCovered    []string `json:"topics_covered"`
	KeyFactsGathered []string `json:"key_facts_gathered"`
}

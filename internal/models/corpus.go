// internal/models/corpus.go
package models

// TrainingCorpus 人工编写的脚本化对话语料，加载后不可变
type TrainingCorpus struct {
	Character   CharacterProfile    `json:"character_profile" yaml:"character_profile"`
	Intents     []IntentDefinition  `json:"conversation_data" yaml:"conversation_data"`
	TrustSystem TrustSystem         `json:"trust_system" yaml:"trust_system"`
	ContextTags map[string]string   `json:"context_tags,omitempty" yaml:"context_tags,omitempty"` // 前置标签 -> 满足它的意图ID
	KeyFacts    map[string]string   `json:"key_facts,omitempty" yaml:"key_facts,omitempty"`       // 意图ID -> 关键事实描述
	VoiceStyles map[string]string   `json:"voice_styles,omitempty" yaml:"voice_styles,omitempty"` // 意图ID -> 语音风格
	Transitions map[string][]string `json:"emotional_transitions,omitempty" yaml:"emotional_transitions,omitempty"`
}

// CharacterProfile 角色档案
type CharacterProfile struct {
	Name        string            `json:"name" yaml:"name"`
	Role        string            `json:"role,omitempty" yaml:"role,omitempty"`
	Background  string            `json:"background,omitempty" yaml:"background,omitempty"`
	Personality PersonalityTraits `json:"personality_traits" yaml:"personality_traits"`
	Speech      SpeechPatterns    `json:"speech_patterns" yaml:"speech_patterns"`
}

// PersonalityTraits 性格特征
type PersonalityTraits struct {
	BaselineEmotion string `json:"baseline_emotion" yaml:"baseline_emotion"`
}

// SpeechPatterns 说话习惯，用于回复的自然变化
type SpeechPatterns struct {
	FillerWords []string `json:"filler_words" yaml:"filler_words"`
}

// TrustSystem 信任度配置
type TrustSystem struct {
	BaseLevel float64 `json:"base_level" yaml:"base_level"`
}

// IntentDefinition 单个意图的定义
type IntentDefinition struct {
	ID                  string              `json:"intent" yaml:"intent"`
	UserInputs          []string            `json:"user_inputs" yaml:"user_inputs"`
	Responses           []CandidateResponse `json:"character_responses" yaml:"character_responses"`
	ContextRequirements []string            `json:"context_requirements,omitempty" yaml:"context_requirements,omitempty"`
	FollowUps           []string            `json:"follow_up_likely,omitempty" yaml:"follow_up_likely,omitempty"`
}

// CandidateResponse 候选回复；在意图内的位置就是信任层级排名
type CandidateResponse struct {
	Text        string  `json:"text" yaml:"text"`
	Emotion     string  `json:"emotion,omitempty" yaml:"emotion,omitempty"`
	TrustImpact float64 `json:"trust_impact" yaml:"trust_impact"`
}

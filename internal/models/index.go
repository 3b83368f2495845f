// internal/models/index.go
package models

// CompiledIndex 编译后的查找结构，运行时只读，可被任意多个会话共享
type CompiledIndex struct {
	Character   CharacterProfile       `json:"character"`
	BaseTrust   float64                `json:"base_trust"`
	Intents     map[string]IntentEntry `json:"intents"`
	IntentOrder []string               `json:"intent_order"` // 语料中的声明顺序
	Keywords    map[string][]string    `json:"keywords"`     // token -> 意图ID（去重，按首次出现排序）
	Inputs      []ExampleUtterance     `json:"inputs"`
	ContextTags map[string]string      `json:"context_tags"`
	KeyFacts    map[string]string      `json:"key_facts"`
	VoiceStyles map[string]string      `json:"voice_styles,omitempty"`
	Transitions map[string][]string    `json:"emotional_transitions,omitempty"`
}

// IntentEntry 意图表中的一项
type IntentEntry struct {
	Responses       []CandidateResponse `json:"responses"`
	FollowUps       []string            `json:"follow_ups"`
	ContextRequired []string            `json:"context_required"`
}

// ExampleUtterance 扁平化的示例语句
type ExampleUtterance struct {
	Original   string   `json:"original"`
	Normalized string   `json:"normalized"`
	Intent     string   `json:"intent"`
	Tokens     []string `json:"tokens"`
}

// IndexStats 编译结果统计
type IndexStats struct {
	Intents  int `json:"intents"`
	Examples int `json:"examples"`
	Keywords int `json:"keywords"`
}

// Stats 返回意图、示例和关键词数量
func (idx *CompiledIndex) Stats() IndexStats {
	if idx == nil {
		return IndexStats{}
	}
	return IndexStats{
		Intents:  len(idx.Intents),
		Examples: len(idx.Inputs),
		Keywords: len(idx.Keywords),
	}
}


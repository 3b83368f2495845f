// internal/corpus/compiler.go
package corpus

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"

	apperrors "github.com/Corphon/ClientInterviewMCP/internal/errors"
	"github.com/Corphon/ClientInterviewMCP/internal/models"
)

// MinKeywordLength 不超过该长度（按字符计）的词不进入关键词索引
const MinKeywordLength = 3

// DefaultBaselineEmotion 角色档案未指定基准情绪时使用
const DefaultBaselineEmotion = "neutral"

// DefaultContextTags 前置标签 -> 满足该标签的意图
var DefaultContextTags = map[string]string{
	"initial_greeting_done":   "greeting",
	"what_happened_discussed": "what_happened",
}

// DefaultKeyFacts 意图 -> 回答后记入会话摘要的关键事实
var DefaultKeyFacts = map[string]string{
	"what_happened":      "Incident details explained",
	"witness_inquiry":    "Witness Prakash identified",
	"family_inquiry":     "Family situation documented",
	"surety_inquiry":     "Sureties identified",
	"passport_surrender": "Passport surrender agreed",
	"bail_conditions":    "Bail conditions accepted",
}

// Normalize 转小写并去掉首尾空白。引擎对用户输入使用同一个函数，保证精确匹配一致
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Tokenize 按空白切分已规范化的输入
func Tokenize(normalized string) []string {
	return strings.Fields(normalized)
}

// IsKeyword 词是否足够长，可以进入关键词索引
func IsKeyword(token string) bool {
	return utf8.RuneCountInString(token) > MinKeywordLength
}

// Compile 把训练语料编译成运行时使用的查找结构。
// 纯函数：同一语料总是得到相同的索引。
func Compile(c *models.TrainingCorpus) (*models.CompiledIndex, error) {
	if c == nil {
		return nil, apperrors.NewMalformedCorpusError("", "语料为空")
	}
	if len(c.Intents) == 0 {
		return nil, apperrors.NewMalformedCorpusError("", "语料没有声明任何意图")
	}
	if c.TrustSystem.BaseLevel < 0 || c.TrustSystem.BaseLevel > 100 {
		return nil, apperrors.NewMalformedCorpusError("", fmt.Sprintf("基础信任度 %v 超出 [0, 100]", c.TrustSystem.BaseLevel))
	}

	idx := &models.CompiledIndex{
		Character:   c.Character,
		BaseTrust:   c.TrustSystem.BaseLevel,
		Intents:     make(map[string]models.IntentEntry, len(c.Intents)),
		IntentOrder: make([]string, 0, len(c.Intents)),
		Keywords:    make(map[string][]string),
		ContextTags: mergeTags(c.ContextTags),
		KeyFacts:    keyFacts(c.KeyFacts),
		VoiceStyles: maps.Clone(c.VoiceStyles),
		Transitions: maps.Clone(c.Transitions),
	}
	idx.Character.Speech.FillerWords = slices.Clone(c.Character.Speech.FillerWords)
	if idx.Character.Personality.BaselineEmotion == "" {
		idx.Character.Personality.BaselineEmotion = DefaultBaselineEmotion
	}

	for _, intent := range c.Intents {
		id := strings.TrimSpace(intent.ID)
		if id == "" {
			return nil, apperrors.NewMalformedCorpusError("", "意图标识为空")
		}
		if _, dup := idx.Intents[id]; dup {
			return nil, apperrors.NewMalformedCorpusError(id, "意图标识重复")
		}
		if len(intent.Responses) == 0 {
			return nil, apperrors.NewMalformedCorpusError(id, "意图没有任何回复")
		}

		for i, input := range intent.UserInputs {
			normalized := Normalize(input)
			if normalized == "" {
				return nil, apperrors.NewMalformedCorpusError(id, fmt.Sprintf("第 %d 个示例输入为空", i))
			}
			idx.Inputs = append(idx.Inputs, models.ExampleUtterance{
				Original:   input,
				Normalized: normalized,
				Intent:     id,
				Tokens:     Tokenize(normalized),
			})
		}

		idx.Intents[id] = models.IntentEntry{
			Responses:       slices.Clone(intent.Responses),
			FollowUps:       nonNil(intent.FollowUps),
			ContextRequired: nonNil(intent.ContextRequirements),
		}
		idx.IntentOrder = append(idx.IntentOrder, id)
	}

	for _, input := range idx.Inputs {
		for _, token := range input.Tokens {
			if !IsKeyword(token) {
				continue
			}
			if !slices.Contains(idx.Keywords[token], input.Intent) {
				idx.Keywords[token] = append(idx.Keywords[token], input.Intent)
			}
		}
	}

	if err := checkReferences(c, idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// checkReferences 语料中引用的每个意图都必须已声明
func checkReferences(c *models.TrainingCorpus, idx *models.CompiledIndex) error {
	for _, id := range idx.IntentOrder {
		for _, follow := range idx.Intents[id].FollowUps {
			if _, ok := idx.Intents[follow]; !ok {
				return apperrors.NewMalformedCorpusError(id, fmt.Sprintf("后续意图 %q 未声明", follow))
			}
		}
	}
	for _, tag := range slices.Sorted(maps.Keys(c.ContextTags)) {
		target := c.ContextTags[tag]
		if _, ok := idx.Intents[target]; !ok {
			return apperrors.NewMalformedCorpusError("", fmt.Sprintf("前置标签 %q 指向未声明的意图 %q", tag, target))
		}
	}
	return nil
}

// Warning 不影响编译的语料问题
type Warning struct {
	Intent  string
	Message string
}

func (w Warning) String() string {
	if w.Intent == "" {
		return w.Message
	}
	return w.Intent + ": " + w.Message
}

// Lint 报告不会中断编译的问题，这些问题通常意味着某个意图永远无法触发或回答。
// 只返回警告，由调用方决定如何记录。
func Lint(c *models.TrainingCorpus) []Warning {
	if c == nil {
		return nil
	}
	var warnings []Warning
	declared := make(map[string]bool, len(c.Intents))
	for _, intent := range c.Intents {
		declared[strings.TrimSpace(intent.ID)] = true
	}
	tags := mergeTags(c.ContextTags)

	for _, intent := range c.Intents {
		if len(intent.UserInputs) == 0 {
			warnings = append(warnings, Warning{Intent: intent.ID, Message: "没有示例输入，意图无法触发"})
		}
		for _, req := range intent.ContextRequirements {
			target, known := tags[req]
			switch {
			case !known:
				warnings = append(warnings, Warning{Intent: intent.ID, Message: fmt.Sprintf("未知前置标签 %q 视为已满足", req)})
			case !declared[target]:
				warnings = append(warnings, Warning{Intent: intent.ID, Message: fmt.Sprintf("前置标签 %q 依赖未声明的意图 %q，该意图总会被推脱", req, target)})
			}
		}
		for i, resp := range intent.Responses {
			if strings.TrimSpace(resp.Text) == "" {
				warnings = append(warnings, Warning{Intent: intent.ID, Message: fmt.Sprintf("第 %d 个回复文本为空", i)})
			}
		}
	}
	if len(c.Character.Speech.FillerWords) == 0 {
		warnings = append(warnings, Warning{Message: "角色没有口头禅，不做自然变化"})
	}
	return warnings
}

func mergeTags(custom map[string]string) map[string]string {
	tags := maps.Clone(DefaultContextTags)
	maps.Copy(tags, custom)
	return tags
}

func keyFacts(custom map[string]string) map[string]string {
	if len(custom) > 0 {
		return maps.Clone(custom)
	}
	return maps.Clone(DefaultKeyFacts)
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return slices.Clone(in)
}

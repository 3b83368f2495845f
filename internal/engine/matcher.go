// internal/engine/matcher.go
package engine

import (
	"github.com/Corphon/ClientInterviewMCP/internal/corpus"
	"github.com/Corphon/ClientInterviewMCP/internal/models"
)

// IntentUnclear 无法识别输入时使用的哨兵意图
const IntentUnclear = "general_unclear"

// FuzzyThreshold 模糊匹配的相似度下限（严格大于）
const FuzzyThreshold = 0.6

// MatchKind 意图识别走到的步骤
type MatchKind string

const (
	MatchExact   MatchKind = "exact"
	MatchKeyword MatchKind = "keyword"
	MatchFuzzy   MatchKind = "fuzzy"
	MatchNone    MatchKind = "none"
)

// Match 一次意图识别的结果
type Match struct {
	Intent  string    `json:"intent"`
	Kind    MatchKind `json:"kind"`
	Score   float64   `json:"score"`             // 关键词得分或模糊相似度
	Example string    `json:"example,omitempty"` // 精确/模糊匹配命中的示例原文
}

// recognize 精确匹配 > 关键词计分 > 模糊匹配 > general_unclear。
// 平局按语料声明顺序取最靠前的意图。
func recognize(idx *models.CompiledIndex, utterance string) Match {
	normalized := corpus.Normalize(utterance)

	for _, example := range idx.Inputs {
		if example.Normalized == normalized {
			return Match{Intent: example.Intent, Kind: MatchExact, Score: 1, Example: example.Original}
		}
	}

	scores := make(map[string]int)
	for _, token := range corpus.Tokenize(normalized) {
		for _, intent := range idx.Keywords[token] {
			scores[intent]++
		}
	}
	if len(scores) > 0 {
		best, bestScore := "", 0
		for _, intent := range idx.IntentOrder {
			if score := scores[intent]; score > bestScore {
				best, bestScore = intent, score
			}
		}
		if bestScore > 0 {
			return Match{Intent: best, Kind: MatchKeyword, Score: float64(bestScore)}
		}
	}

	for _, example := range idx.Inputs {
		if sim := Similarity(normalized, example.Normalized); sim > FuzzyThreshold {
			return Match{Intent: example.Intent, Kind: MatchFuzzy, Score: sim, Example: example.Original}
		}
	}

	return Match{Intent: IntentUnclear, Kind: MatchNone}
}

// Similarity 基于编辑距离的归一化相似度，按 rune 计算；两个空串视为完全相同
func Similarity(a, b string) float64 {
	longer, shorter := []rune(a), []rune(b)
	if len(longer) < len(shorter) {
		longer, shorter = shorter, longer
	}
	if len(longer) == 0 {
		return 1.0
	}
	return float64(len(longer)-levenshtein(longer, shorter)) / float64(len(longer))
}

// levenshtein 两行滚动数组实现
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

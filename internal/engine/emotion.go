// internal/engine/emotion.go
package engine

// Emotion 角色情绪标签。语料中可以出现任意字符串，
// 只有下列取值会影响动画和语音，其余一律走默认分支。
type Emotion string

const (
	EmotionNeutral          Emotion = "neutral"
	EmotionGrateful         Emotion = "grateful"
	EmotionVulnerable       Emotion = "vulnerable"
	EmotionDefensive        Emotion = "defensive"
	EmotionDefensiveButCalm Emotion = "defensive_but_calm"
	EmotionHopeful          Emotion = "hopeful"
	EmotionCooperative      Emotion = "cooperative"
	EmotionAnxious          Emotion = "anxious"
	EmotionConfused         Emotion = "confused"
	EmotionEarnest          Emotion = "earnest"
	EmotionResigned         Emotion = "resigned"
	EmotionProudButWorried  Emotion = "proud_but_worried"
	EmotionLogical          Emotion = "logical"
	EmotionApologetic       Emotion = "apologetic"
)

// AnimationIdle 未知情绪使用的动画
const AnimationIdle = "idle"

// Known 是否为引擎认识的情绪
func (e Emotion) Known() bool {
	switch e {
	case EmotionNeutral, EmotionGrateful, EmotionVulnerable, EmotionDefensive,
		EmotionDefensiveButCalm, EmotionHopeful, EmotionCooperative, EmotionAnxious,
		EmotionConfused, EmotionEarnest, EmotionResigned, EmotionProudButWorried,
		EmotionLogical, EmotionApologetic:
		return true
	default:
		return false
	}
}

// Animation 情绪对应的动画提示
func (e Emotion) Animation() string {
	switch e {
	case EmotionGrateful:
		return "slight_smile"
	case EmotionVulnerable:
		return "look_down_emotional"
	case EmotionDefensive:
		return "direct_eye_contact"
	case EmotionDefensiveButCalm:
		return "steady_gaze"
	case EmotionHopeful:
		return "slight_smile_forward_lean"
	case EmotionCooperative:
		return "nodding"
	case EmotionAnxious:
		return "fidget_hands"
	case EmotionConfused:
		return "slight_head_tilt"
	case EmotionEarnest:
		return "forward_lean"
	case EmotionResigned:
		return "slight_shrug"
	case EmotionProudButWorried:
		return "mixed_expression"
	case EmotionLogical:
		return "explaining_gesture"
	case EmotionApologetic:
		return "look_down_briefly"
	default:
		// neutral 以及所有未知情绪
		return AnimationIdle
	}
}

// internal/engine/voice.go
package engine

import (
	"fmt"
	"maps"
	"slices"

	"github.com/Corphon/ClientInterviewMCP/internal/models"
)

// VoiceStyle 语音风格
type VoiceStyle string

const (
	VoiceDefault   VoiceStyle = "default"
	VoiceFormal    VoiceStyle = "formal"
	VoiceCasual    VoiceStyle = "casual"
	VoiceEmotional VoiceStyle = "emotional"
	VoiceTechnical VoiceStyle = "technical"
)

// ParseVoiceStyle 解析语料中的风格名称
func ParseVoiceStyle(name string) (VoiceStyle, error) {
	switch s := VoiceStyle(name); s {
	case VoiceDefault, VoiceFormal, VoiceCasual, VoiceEmotional, VoiceTechnical:
		return s, nil
	default:
		return "", fmt.Errorf("unknown voice style %q", name)
	}
}

// Base 风格的基础语速、音调、音量
func (s VoiceStyle) Base() models.VoiceParams {
	switch s {
	case VoiceFormal:
		return models.VoiceParams{Rate: 0.85, Pitch: 0.95, Volume: 1.0}
	case VoiceCasual:
		return models.VoiceParams{Rate: 1.0, Pitch: 0.85, Volume: 0.9}
	case VoiceEmotional:
		return models.VoiceParams{Rate: 0.75, Pitch: 1.1, Volume: 1.0}
	case VoiceTechnical:
		return models.VoiceParams{Rate: 1.1, Pitch: 0.9, Volume: 1.0}
	default:
		return models.VoiceParams{Rate: 0.9, Pitch: 0.9, Volume: 1.0}
	}
}

// DefaultIntentStyles 按意图选择风格：法律程序类偏正式，个人话题偏情感，事实陈述偏技术
var DefaultIntentStyles = map[string]VoiceStyle{
	"bail_conditions":    VoiceFormal,
	"passport_surrender": VoiceFormal,
	"surety_inquiry":     VoiceFormal,
	"family_inquiry":     VoiceEmotional,
	"wellbeing_check":    VoiceEmotional,
	"guilt_question":     VoiceEmotional,
	"what_happened":      VoiceTechnical,
	"employment_history": VoiceTechnical,
	"witness_inquiry":    VoiceTechnical,
}

// styleForEmotion 意图没有指定风格时按情绪兜底
func styleForEmotion(e Emotion) VoiceStyle {
	switch e {
	case EmotionVulnerable, EmotionHopeful, EmotionGrateful:
		return VoiceEmotional
	case EmotionDefensive, EmotionDefensiveButCalm:
		return VoiceFormal
	default:
		return VoiceDefault
	}
}

// override 为 0 的字段表示不覆盖
type override struct {
	rate, pitch, volume float64
}

func (e Emotion) voiceOverride() override {
	switch e {
	case EmotionVulnerable:
		return override{rate: 0.7, pitch: 0.8, volume: 0.8}
	case EmotionDefensive:
		return override{rate: 1.0, pitch: 1.0, volume: 1.0}
	case EmotionAnxious:
		return override{rate: 1.1, pitch: 1.0, volume: 0.9}
	case EmotionGrateful:
		return override{rate: 0.85, pitch: 0.95, volume: 0.95}
	case EmotionHopeful:
		return override{rate: 0.9, pitch: 1.0, volume: 1.0}
	case EmotionConfused:
		return override{rate: 0.8, pitch: 0.9, volume: 0.9}
	default:
		return override{}
	}
}

// voiceStyles 意图 -> 风格表，语料里的配置覆盖默认值
type voiceStyles map[string]VoiceStyle

func newVoiceStyles(custom map[string]string) (voiceStyles, error) {
	styles := maps.Clone(DefaultIntentStyles)
	for _, intent := range slices.Sorted(maps.Keys(custom)) {
		style, err := ParseVoiceStyle(custom[intent])
		if err != nil {
			return nil, fmt.Errorf("intent %q: %w", intent, err)
		}
		styles[intent] = style
	}
	return styles, nil
}

// Style 先看意图，再看情绪
func (v voiceStyles) Style(intent string, emotion Emotion) VoiceStyle {
	if style, ok := v[intent]; ok {
		return style
	}
	return styleForEmotion(emotion)
}

// Params 风格基础参数叠加情绪覆盖
func (v voiceStyles) Params(intent string, emotion Emotion) models.VoiceParams {
	params := v.Style(intent, emotion).Base()
	o := emotion.voiceOverride()
	if o.rate != 0 {
		params.Rate = o.rate
	}
	if o.pitch != 0 {
		params.Pitch = o.pitch
	}
	if o.volume != 0 {
		params.Volume = o.volume
	}
	return params
}

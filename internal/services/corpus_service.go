// internal/services/corpus_service.go
package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/Corphon/ClientInterviewMCP/internal/corpus"
	"github.com/Corphon/ClientInterviewMCP/internal/engine"
	"github.com/Corphon/ClientInterviewMCP/internal/models"
	"github.com/Corphon/ClientInterviewMCP/internal/utils"
)

// CorpusOptions 语料来源
type CorpusOptions struct {
	CorpusPath   string // 为空时使用内置语料
	CompiledPath string // 非空时把编译结果写到该路径
	Random       engine.RandomSource
}

// IntentInfo 对外展示的意图概要
type IntentInfo struct {
	ID              string   `json:"id"`
	Examples        int      `json:"examples"`
	Responses       int      `json:"responses"`
	ContextRequired []string `json:"context_required"`
	FollowUps       []string `json:"follow_ups"`
}

// CorpusInfo GET /api/corpus 的返回内容
type CorpusInfo struct {
	Source          string              `json:"source"`
	Character       string              `json:"character"`
	Role            string              `json:"role,omitempty"`
	Background      string              `json:"background,omitempty"`
	BaselineEmotion string              `json:"baseline_emotion"`
	BaseTrust       float64             `json:"base_trust"`
	Stats           models.IndexStats   `json:"stats"`
	Intents         []IntentInfo        `json:"intents"`
	Transitions     map[string][]string `json:"emotional_transitions,omitempty"`
	Warnings        []string            `json:"warnings"`
	CompiledAt      time.Time           `json:"compiled_at"`
}

// CorpusService 加载、编译语料并持有共享的引擎
type CorpusService struct {
	opts    CorpusOptions
	logger  *utils.Logger
	metrics *utils.InterviewMetrics

	mu     sync.RWMutex
	engine *engine.Engine
	info   CorpusInfo
}

// NewCorpusService 创建服务并立即编译语料；语料有误时返回 MalformedCorpus 错误
func NewCorpusService(opts CorpusOptions, logger *utils.Logger, metrics *utils.InterviewMetrics) (*CorpusService, error) {
	if opts.Random == nil {
		opts.Random = engine.NewRandomSource(0)
	}
	s := &CorpusService{opts: opts, logger: logger, metrics: metrics}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload 重新读取并编译语料。失败时保留旧的引擎。
func (s *CorpusService) Reload() error {
	start := time.Now()

	source := "embedded:rajesh_kumar.yaml"
	var (
		c   *models.TrainingCorpus
		err error
	)
	if s.opts.CorpusPath != "" {
		source = s.opts.CorpusPath
		c, err = corpus.LoadCorpus(s.opts.CorpusPath)
	} else {
		c, err = corpus.DefaultCorpus()
	}
	if err != nil {
		s.metrics.RecordError("corpus_load", "corpus_service")
		return err
	}

	warnings := []string{}
	for _, w := range append(corpus.Lint(c), emotionWarnings(c)...) {
		warnings = append(warnings, w.String())
		s.logger.Warn("Corpus warning", map[string]interface{}{"source": source, "warning": w.String()})
	}

	idx, err := corpus.Compile(c)
	if err != nil {
		s.metrics.RecordError("malformed_corpus", "corpus_service")
		return err
	}
	eng, err := engine.New(idx, engine.WithRandom(s.opts.Random))
	if err != nil {
		s.metrics.RecordError("malformed_corpus", "corpus_service")
		return err
	}

	if s.opts.CompiledPath != "" {
		if err := corpus.SaveIndex(s.opts.CompiledPath, idx); err != nil {
			return err
		}
	}

	stats := idx.Stats()
	s.metrics.RecordCompile(stats.Intents, stats.Examples, stats.Keywords, time.Since(start))

	s.mu.Lock()
	s.engine = eng
	s.info = buildInfo(source, idx, warnings)
	s.mu.Unlock()

	s.logger.Info("Corpus compiled", map[string]interface{}{
		"source":    source,
		"character": idx.Character.Name,
		"intents":   stats.Intents,
		"examples":  stats.Examples,
		"keywords":  stats.Keywords,
		"warnings":  len(warnings),
	})
	return nil
}

// Engine 当前的引擎
func (s *CorpusService) Engine() *engine.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Info 当前语料概要
func (s *CorpusService) Info() CorpusInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

func buildInfo(source string, idx *models.CompiledIndex, warnings []string) CorpusInfo {
	examples := make(map[string]int, len(idx.IntentOrder))
	for _, input := range idx.Inputs {
		examples[input.Intent]++
	}

	intents := make([]IntentInfo, 0, len(idx.IntentOrder))
	for _, id := range idx.IntentOrder {
		entry := idx.Intents[id]
		intents = append(intents, IntentInfo{
			ID:              id,
			Examples:        examples[id],
			Responses:       len(entry.Responses),
			ContextRequired: entry.ContextRequired,
			FollowUps:       entry.FollowUps,
		})
	}

	return CorpusInfo{
		Source:          source,
		Character:       idx.Character.Name,
		Role:            idx.Character.Role,
		Background:      idx.Character.Background,
		BaselineEmotion: idx.Character.Personality.BaselineEmotion,
		BaseTrust:       idx.BaseTrust,
		Stats:           idx.Stats(),
		Intents:         intents,
		Transitions:     idx.Transitions,
		Warnings:        warnings,
		CompiledAt:      time.Now(),
	}
}

// emotionWarnings 引擎不认识的情绪仍可使用，但动画退回 idle，语音不做情绪覆盖
func emotionWarnings(c *models.TrainingCorpus) []corpus.Warning {
	var warnings []corpus.Warning
	for _, def := range c.Intents {
		for _, r := range def.Responses {
			if r.Emotion != "" && !engine.Emotion(r.Emotion).Known() {
				warnings = append(warnings, corpus.Warning{
					Intent:  def.ID,
					Message: fmt.Sprintf("未知情绪 %q，将使用 idle 动画", r.Emotion),
				})
			}
		}
	}
	return warnings
}

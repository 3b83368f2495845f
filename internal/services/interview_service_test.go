package services

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Corphon/ClientInterviewMCP/internal/corpus"
	"github.com/Corphon/ClientInterviewMCP/internal/engine"
	apperrors "github.com/Corphon/ClientInterviewMCP/internal/errors"
	"github.com/Corphon/ClientInterviewMCP/internal/utils"
)

// steadyRandom 从不插入口头禅
type steadyRandom struct{}

func (steadyRandom) Float64() float64 { return 0.99 }
func (steadyRandom) Intn(int) int     { return 0 }

type testServices struct {
	corpus    *CorpusService
	interview *InterviewService
	store     *MemorySessionStore
	metrics   *utils.MetricsCollector
}

func newTestServices(t *testing.T, opts CorpusOptions) *testServices {
	t.Helper()
	logger := utils.NewLogger(io.Discard, utils.ERROR)
	collector := utils.NewMetricsCollector()
	metrics := utils.NewInterviewMetricsWith(collector, logger)

	if opts.Random == nil {
		opts.Random = steadyRandom{}
	}
	corpusService, err := NewCorpusService(opts, logger, metrics)
	if err != nil {
		t.Fatalf("创建语料服务失败: %v", err)
	}
	store := NewMemorySessionStore(0)
	interview := NewInterviewService(corpusService, store, NewLockManager(time.Minute), NewEventHub(8), logger, metrics)
	return &testServices{corpus: corpusService, interview: interview, store: store, metrics: collector}
}

func TestCorpusServiceDefaultCorpus(t *testing.T) {
	ts := newTestServices(t, CorpusOptions{})
	info := ts.corpus.Info()

	if info.Character != "Rajesh Kumar" || info.BaseTrust != 40 || info.BaselineEmotion != "anxious" {
		t.Errorf("语料概要不正确: %+v", info)
	}
	if len(info.Intents) != 11 || info.Intents[0].ID != "greeting" {
		t.Errorf("意图列表应按声明顺序: %+v", info.Intents)
	}
	if len(info.Warnings) != 0 {
		t.Errorf("内置语料不应该有警告: %v", info.Warnings)
	}
	if got := ts.metrics.GetCounterValue("corpus_compiles_total"); got != 1 {
		t.Errorf("corpus_compiles_total = %d", got)
	}
	if got := ts.metrics.GetGauge("corpus_intents"); got != 11 {
		t.Errorf("corpus_intents = %d", got)
	}
}

func TestCorpusServiceWritesCompiledIndex(t *testing.T) {
	out := filepath.Join(t.TempDir(), "compiled", "index.json")
	newTestServices(t, CorpusOptions{CompiledPath: out})

	idx, err := corpus.LoadIndex(out)
	if err != nil {
		t.Fatalf("读取编译结果失败: %v", err)
	}
	if idx.Character.Name != "Rajesh Kumar" || len(idx.IntentOrder) != 11 {
		t.Errorf("编译结果不正确: %s / %d", idx.Character.Name, len(idx.IntentOrder))
	}
}

const tinyCorpus = `{
  "character_profile": {"name": "Asha", "speech_patterns": {"filler_words": ["Well"]}},
  "trust_system": {"base_level": 50},
  "conversation_data": [
    {"intent": "greeting", "user_inputs": ["hello"],
     "character_responses": [{"text": "Hi.", "emotion": "cooperative", "trust_impact": 5}]}
  ]
}`

func TestCorpusServiceReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.json")
	if err := os.WriteFile(path, []byte(tinyCorpus), 0644); err != nil {
		t.Fatal(err)
	}
	ts := newTestServices(t, CorpusOptions{CorpusPath: path})
	if ts.corpus.Info().Character != "Asha" {
		t.Fatalf("应该加载外部语料")
	}
	before := ts.corpus.Engine()

	// 写坏语料后重新加载失败，旧引擎保留
	os.WriteFile(path, []byte(`{"conversation_data": []}`), 0644)
	if err := ts.corpus.Reload(); !apperrors.IsMalformedCorpusError(err) {
		t.Fatalf("空语料应该返回 MalformedCorpus, got %v", err)
	}
	if ts.corpus.Engine() != before {
		t.Errorf("重新加载失败时应该保留旧引擎")
	}

	os.WriteFile(path, []byte(strings.Replace(tinyCorpus, "Asha", "Meera", 1)), 0644)
	if err := ts.corpus.Reload(); err != nil {
		t.Fatalf("重新加载失败: %v", err)
	}
	if ts.corpus.Info().Character != "Meera" {
		t.Errorf("重新加载后应该使用新语料")
	}
}

func TestCorpusServiceWarnsOnUnknownEmotion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.json")
	os.WriteFile(path, []byte(strings.Replace(tinyCorpus, `"cooperative"`, `"furious"`, 1)), 0644)

	ts := newTestServices(t, CorpusOptions{CorpusPath: path})
	warnings := ts.corpus.Info().Warnings
	if !slices.ContainsFunc(warnings, func(w string) bool { return strings.Contains(w, `"furious"`) }) {
		t.Fatalf("未知情绪应该产生警告: %v", warnings)
	}

	ctx := context.Background()
	session, _ := ts.interview.StartSession(ctx)
	resp, err := ts.interview.ProcessTurn(ctx, session.ID, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Reply.Emotion != "furious" || resp.Reply.Animation != engine.AnimationIdle {
		t.Errorf("未知情绪应该照常返回并使用 idle 动画: %+v", resp.Reply)
	}
}

func TestCorpusServiceMissingFile(t *testing.T) {
	logger := utils.NewLogger(io.Discard, utils.ERROR)
	metrics := utils.NewInterviewMetricsWith(utils.NewMetricsCollector(), logger)
	_, err := NewCorpusService(CorpusOptions{CorpusPath: filepath.Join(t.TempDir(), "none.yaml")}, logger, metrics)
	if !apperrors.IsStorageError(err) {
		t.Fatalf("缺失的语料文件应该返回 Storage 错误, got %v", err)
	}
}

func TestInterviewFlow(t *testing.T) {
	ctx := context.Background()
	ts := newTestServices(t, CorpusOptions{})
	svc := ts.interview

	session, err := svc.StartSession(ctx)
	if err != nil {
		t.Fatalf("开始会话失败: %v", err)
	}
	if session.ID == "" || session.TrustLevel != 40 || session.CurrentEmotion != "anxious" {
		t.Fatalf("新会话状态不正确: %+v", session)
	}

	// 未打招呼前问证人：被推脱
	resp, err := svc.ProcessTurn(ctx, session.ID, "are there any witnesses")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Outcome != engine.OutcomeDeflected || resp.Turn != 1 {
		t.Errorf("应该被推脱: %+v", resp)
	}

	resp, _ = svc.ProcessTurn(ctx, session.ID, "hello")
	if resp.Reply.Intent != "greeting" || resp.Reply.TrustLevel != 45 || resp.Match.Kind != engine.MatchExact {
		t.Errorf("greeting 回合不正确: %+v", resp)
	}
	resp, _ = svc.ProcessTurn(ctx, session.ID, "tell me what happened")
	if resp.Reply.Intent != "what_happened" || resp.Outcome != engine.OutcomeAnswered {
		t.Errorf("what_happened 回合不正确: %+v", resp)
	}
	if resp.Turn != 3 {
		t.Errorf("turn = %d, want 3", resp.Turn)
	}

	summary, err := svc.GetSummary(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if summary.TotalExchanges != 3 || !slices.Equal(summary.TopicsCovered, []string{"greeting", "what_happened"}) {
		t.Errorf("摘要不正确: %+v", summary)
	}
	if !slices.Equal(summary.KeyFactsGathered, []string{"Incident details explained"}) {
		t.Errorf("key facts = %v", summary.KeyFactsGathered)
	}

	if got := ts.metrics.GetCounterValue("turns_total"); got != 3 {
		t.Errorf("turns_total = %d", got)
	}
	if got := ts.metrics.GetCounterValue("turns_outcome_deflected"); got != 1 {
		t.Errorf("turns_outcome_deflected = %d", got)
	}

	reset, err := svc.ResetSession(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reset.ID != session.ID || reset.TrustLevel != 40 || len(reset.History) != 0 {
		t.Errorf("重置后状态不正确: %+v", reset)
	}

	svc.ProcessTurn(ctx, session.ID, "hello")
	end, err := svc.EndSession(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if end.Summary.TotalExchanges != 1 {
		t.Errorf("最终摘要不正确: %+v", end.Summary)
	}
	if _, err := svc.GetSession(ctx, session.ID); !apperrors.IsNotFoundError(err) {
		t.Errorf("结束后会话应该不存在, got %v", err)
	}
	if got := ts.metrics.GetGauge("sessions_active"); got != 0 {
		t.Errorf("sessions_active = %d", got)
	}
}

func TestProcessTurnValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t, CorpusOptions{}).interview
	session, _ := svc.StartSession(ctx)

	if _, err := svc.ProcessTurn(ctx, session.ID, "   "); !apperrors.IsValidationError(err) {
		t.Errorf("空输入应该返回 Validation 错误, got %v", err)
	}
	if _, err := svc.ProcessTurn(ctx, session.ID, strings.Repeat("a", MaxUtteranceLength+1)); !apperrors.IsValidationError(err) {
		t.Errorf("超长输入应该返回 Validation 错误, got %v", err)
	}
	if _, err := svc.ProcessTurn(ctx, "missing", "hello"); !apperrors.IsNotFoundError(err) {
		t.Errorf("不存在的会话应该返回 NotFound, got %v", err)
	}
	if _, err := svc.EndSession(ctx, "missing"); !apperrors.IsNotFoundError(err) {
		t.Errorf("结束不存在的会话应该返回 NotFound, got %v", err)
	}

	got, _ := svc.GetSession(ctx, session.ID)
	if len(got.History) != 0 {
		t.Errorf("被拒绝的输入不应该写入历史")
	}
}

func TestConcurrentTurnsOnOneSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t, CorpusOptions{}).interview
	session, _ := svc.StartSession(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ProcessTurn(ctx, session.ID, "hello"); err != nil {
				t.Errorf("回合失败: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := svc.GetSession(ctx, session.ID)
	if len(got.History) != 10 {
		t.Fatalf("并发回合不应该丢失历史, got %d", len(got.History))
	}
	if got.TrustLevel <= 40 {
		t.Errorf("trust = %v", got.TrustLevel)
	}
}

func TestSubscribeReceivesTurnsAndEnd(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t, CorpusOptions{}).interview
	session, _ := svc.StartSession(ctx)

	if _, _, err := svc.Subscribe(ctx, "missing"); !apperrors.IsNotFoundError(err) {
		t.Fatalf("订阅不存在的会话应该返回 NotFound, got %v", err)
	}

	events, cancel, err := svc.Subscribe(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()
	if svc.Watchers(session.ID) != 1 {
		t.Fatalf("watchers = %d", svc.Watchers(session.ID))
	}

	svc.ProcessTurn(ctx, session.ID, "hello")
	if svc.SessionLocks() != 1 {
		t.Errorf("回合之后应该保留一把会话锁, got %d", svc.SessionLocks())
	}
	svc.EndSession(ctx, session.ID)
	if svc.Watchers(session.ID) != 0 || svc.SessionLocks() != 0 {
		t.Errorf("会话结束后应该释放订阅和锁: watchers %d locks %d", svc.Watchers(session.ID), svc.SessionLocks())
	}

	var types []string
	for ev := range events {
		types = append(types, ev.Type)
	}
	if !slices.Equal(types, []string{EventTurn, EventEnded}) {
		t.Errorf("事件序列 = %v", types)
	}
}

func TestRecognize(t *testing.T) {
	svc := newTestServices(t, CorpusOptions{}).interview

	m, err := svc.Recognize("hello")
	if err != nil {
		t.Fatal(err)
	}
	if m.Intent != "greeting" || m.Kind != engine.MatchExact {
		t.Errorf("Recognize = %+v", m)
	}
	if _, err := svc.Recognize(""); !apperrors.IsValidationError(err) {
		t.Errorf("空输入应该返回 Validation 错误, got %v", err)
	}
}

func TestListSessions(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t, CorpusOptions{}).interview
	ids := []string{"s-2", "s-1"}
	svc.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	svc.StartSession(ctx)
	svc.StartSession(ctx)

	got, err := svc.ListSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []string{"s-1", "s-2"}) {
		t.Errorf("ListSessions = %v", got)
	}
}

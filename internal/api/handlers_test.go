package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/ClientInterviewMCP/internal/config"
	"github.com/Corphon/ClientInterviewMCP/internal/di"
	"github.com/Corphon/ClientInterviewMCP/internal/services"
	"github.com/Corphon/ClientInterviewMCP/internal/utils"
)

type steadyRandom struct{}

func (steadyRandom) Float64() float64 { return 0.99 }
func (steadyRandom) Intn(int) int     { return 0 }

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, perMinute int) (*gin.Engine, *utils.MetricsCollector) {
	t.Helper()
	logger := utils.NewLogger(io.Discard, utils.ERROR)
	collector := utils.NewMetricsCollector()
	metrics := utils.NewInterviewMetricsWith(collector, logger)

	corpusService, err := services.NewCorpusService(services.CorpusOptions{Random: steadyRandom{}}, logger, metrics)
	if err != nil {
		t.Fatalf("创建语料服务失败: %v", err)
	}
	interview := services.NewInterviewService(corpusService, services.NewMemorySessionStore(0),
		services.NewLockManager(time.Minute), services.NewEventHub(16), logger, metrics)

	container := di.NewContainer()
	container.Register(di.ServiceLogger, logger)
	container.Register(di.ServiceMetrics, metrics)
	container.Register(di.ServiceCorpus, corpusService)
	container.Register(di.ServiceInterview, interview)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	router, err := SetupRouter(ctx, container, &config.Config{RateLimitPerMinute: perMinute})
	if err != nil {
		t.Fatalf("设置路由失败: %v", err)
	}
	return router, collector
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("响应不是 JSON: %s", rec.Body.String())
		}
	}
	return rec, env
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("解析 data 失败: %v (%s)", err, raw)
	}
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec, env := doJSON(t, h, http.MethodPost, "/api/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("创建会话状态码 = %d: %s", rec.Code, rec.Body.String())
	}
	var session struct {
		ID string `json:"id"`
	}
	decode(t, env.Data, &session)
	return session.ID
}

func TestSessionLifecycle(t *testing.T) {
	router, collector := newTestRouter(t, 0)
	id := createSession(t, router)

	rec, env := doJSON(t, router, http.MethodPost, "/api/sessions/"+id+"/turns", TextRequest{Text: "hello"})
	if rec.Code != http.StatusOK {
		t.Fatalf("回合状态码 = %d: %s", rec.Code, rec.Body.String())
	}
	var turn struct {
		Turn  int `json:"turn"`
		Reply struct {
			Intent      string  `json:"intent"`
			TrustLevel  float64 `json:"trust_level"`
			Emotion     string  `json:"emotion"`
			Animation   string  `json:"animation"`
			VoiceParams struct {
				Rate float64 `json:"rate"`
			} `json:"voice_params"`
		} `json:"reply"`
		Match struct {
			Kind string `json:"kind"`
		} `json:"match"`
		Outcome string `json:"outcome"`
	}
	decode(t, env.Data, &turn)
	if turn.Turn != 1 || turn.Reply.Intent != "greeting" || turn.Reply.TrustLevel != 45 {
		t.Errorf("回合结果不正确: %+v", turn)
	}
	if turn.Match.Kind != "exact" || turn.Outcome != "answered" || turn.Reply.Animation == "" || turn.Reply.VoiceParams.Rate == 0 {
		t.Errorf("回合细节不正确: %+v", turn)
	}

	doJSON(t, router, http.MethodPost, "/api/sessions/"+id+"/turns", TextRequest{Text: "tell me what happened"})

	rec, env = doJSON(t, router, http.MethodGet, "/api/sessions/"+id+"/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("摘要状态码 = %d", rec.Code)
	}
	var summary struct {
		TotalExchanges int      `json:"total_exchanges"`
		TopicsCovered  []string `json:"topics_covered"`
		KeyFacts       []string `json:"key_facts_gathered"`
	}
	decode(t, env.Data, &summary)
	if summary.TotalExchanges != 2 || len(summary.TopicsCovered) != 2 || len(summary.KeyFacts) != 1 {
		t.Errorf("摘要不正确: %+v", summary)
	}

	rec, env = doJSON(t, router, http.MethodGet, "/api/sessions", nil)
	var list struct {
		Sessions []string `json:"sessions"`
		Count    int      `json:"count"`
	}
	decode(t, env.Data, &list)
	if list.Count != 1 || list.Sessions[0] != id {
		t.Errorf("会话列表不正确: %+v", list)
	}

	rec, env = doJSON(t, router, http.MethodPost, "/api/sessions/"+id+"/reset", nil)
	var reset struct {
		ID         string  `json:"id"`
		TrustLevel float64 `json:"trust_level"`
	}
	decode(t, env.Data, &reset)
	if rec.Code != http.StatusOK || reset.ID != id || reset.TrustLevel != 40 {
		t.Errorf("重置不正确: %d %+v", rec.Code, reset)
	}

	rec, _ = doJSON(t, router, http.MethodDelete, "/api/sessions/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("结束会话状态码 = %d", rec.Code)
	}
	rec, env = doJSON(t, router, http.MethodGet, "/api/sessions/"+id, nil)
	if rec.Code != http.StatusNotFound || env.Error == nil || env.Error.Code != ErrorSessionNotFound {
		t.Errorf("结束后应该 404: %d %s", rec.Code, rec.Body.String())
	}

	if got := collector.GetCounterValue("turns_total"); got != 2 {
		t.Errorf("turns_total = %d", got)
	}
	if got := collector.GetCounterValue("api_requests_total"); got == 0 {
		t.Errorf("应该记录 API 请求")
	}
}

func TestTurnErrors(t *testing.T) {
	router, _ := newTestRouter(t, 0)
	id := createSession(t, router)

	tests := []struct {
		name   string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"缺少 text", "/api/sessions/" + id + "/turns", map[string]string{}, http.StatusBadRequest, ErrorBadRequest},
		{"空白 text", "/api/sessions/" + id + "/turns", TextRequest{Text: "   "}, http.StatusBadRequest, ErrorValidation},
		{"会话不存在", "/api/sessions/nope/turns", TextRequest{Text: "hello"}, http.StatusNotFound, ErrorSessionNotFound},
		{"超长输入", "/api/sessions/" + id + "/turns", TextRequest{Text: strings.Repeat("x", services.MaxUtteranceLength+1)}, http.StatusBadRequest, ErrorValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := doJSON(t, router, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("状态码 = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if env.Success || env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("错误响应不正确: %s", rec.Body.String())
			}
		})
	}
}

func TestUnmatchedTurnStaysInCharacter(t *testing.T) {
	router, _ := newTestRouter(t, 0)
	id := createSession(t, router)

	rec, env := doJSON(t, router, http.MethodPost, "/api/sessions/"+id+"/turns", TextRequest{Text: "xyzzy plugh frobnicate"})
	if rec.Code != http.StatusOK {
		t.Fatalf("无法识别的输入不是错误, 状态码 = %d", rec.Code)
	}
	var turn struct {
		Reply struct {
			Intent     string  `json:"intent"`
			Emotion    string  `json:"emotion"`
			TrustLevel float64 `json:"trust_level"`
		} `json:"reply"`
		Outcome string `json:"outcome"`
	}
	decode(t, env.Data, &turn)
	if turn.Reply.Intent != "general_unclear" || turn.Reply.Emotion != "confused" || turn.Reply.TrustLevel != 40 || turn.Outcome != "unclear" {
		t.Errorf("回复不正确: %+v", turn)
	}
}

func TestRecognizeAndCorpus(t *testing.T) {
	router, _ := newTestRouter(t, 0)

	rec, env := doJSON(t, router, http.MethodPost, "/api/intents/recognize", TextRequest{Text: "Hello"})
	if rec.Code != http.StatusOK {
		t.Fatalf("状态码 = %d", rec.Code)
	}
	var match struct {
		Intent string `json:"intent"`
		Kind   string `json:"kind"`
	}
	decode(t, env.Data, &match)
	if match.Intent != "greeting" || match.Kind != "exact" {
		t.Errorf("识别结果不正确: %+v", match)
	}

	rec, env = doJSON(t, router, http.MethodGet, "/api/corpus", nil)
	var info services.CorpusInfo
	decode(t, env.Data, &info)
	if rec.Code != http.StatusOK || info.Character != "Rajesh Kumar" || info.Stats.Intents != 11 {
		t.Errorf("语料信息不正确: %+v", info)
	}

	rec, _ = doJSON(t, router, http.MethodPost, "/api/corpus/reload", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("重新加载状态码 = %d", rec.Code)
	}
}

func TestHealthReportsSessionLocks(t *testing.T) {
	router, _ := newTestRouter(t, 0)
	id := createSession(t, router)
	doJSON(t, router, http.MethodPost, "/api/sessions/"+id+"/turns", TextRequest{Text: "hello"})

	_, env := doJSON(t, router, http.MethodGet, "/api/health", nil)
	var health struct {
		Status string `json:"status"`
		Locks  int    `json:"locks"`
	}
	decode(t, env.Data, &health)
	if health.Status != "ok" || health.Locks != 1 {
		t.Errorf("health 不正确: %+v", health)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, 0)
	doJSON(t, router, http.MethodGet, "/api/health", nil)

	rec, env := doJSON(t, router, http.MethodGet, "/api/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("状态码 = %d", rec.Code)
	}
	var snap utils.MetricsSnapshot
	decode(t, env.Data, &snap)
	if snap.Counters["api_requests_total"] < 1 || snap.Gauges["corpus_intents"] != 11 {
		t.Errorf("指标不正确: %+v", snap)
	}
}

func TestRateLimit(t *testing.T) {
	router, _ := newTestRouter(t, 2)
	for i := 0; i < 2; i++ {
		if rec, _ := doJSON(t, router, http.MethodGet, "/api/health", nil); rec.Code != http.StatusOK {
			t.Fatalf("第 %d 个请求状态码 = %d", i+1, rec.Code)
		}
	}
	rec, env := doJSON(t, router, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusTooManyRequests || env.Error == nil || env.Error.Code != ErrorRateLimited {
		t.Errorf("超过限额应该返回 429: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(10)
	rl.Allow("a")
	rl.Allow("b")
	if removed := rl.cleanup(time.Now(), time.Minute); removed != 0 {
		t.Errorf("刚访问过的客户端不应该被清理, removed %d", removed)
	}
	if removed := rl.cleanup(time.Now().Add(2*time.Minute), time.Minute); removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	router, _ := newTestRouter(t, 0)

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("CORS 预检不正确: %d %v", rec.Code, rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var env envelope
	json.Unmarshal(rec.Body.Bytes(), &env)
	if rec.Header().Get("X-Request-ID") != "req-42" || env.RequestID != "req-42" {
		t.Errorf("应该沿用请求 ID: header=%q body=%q", rec.Header().Get("X-Request-ID"), env.RequestID)
	}

	rec, env = doJSON(t, router, http.MethodGet, "/api/nothing", nil)
	if rec.Code != http.StatusNotFound || env.Error == nil {
		t.Errorf("未知路由应该 404: %d", rec.Code)
	}
}

func TestSetupRouterRequiresServices(t *testing.T) {
	if _, err := SetupRouter(context.Background(), di.NewContainer(), &config.Config{}); err == nil {
		t.Fatal("缺少服务时应该返回错误")
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	if got := sanitizeErrorMessage("redis password rejected"); got != "An internal error occurred" {
		t.Errorf("got %q", got)
	}
	if got := sanitizeErrorMessage("会话不存在: abc"); got != "会话不存在: abc" {
		t.Errorf("got %q", got)
	}
}

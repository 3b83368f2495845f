// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Corphon/ClientInterviewMCP/internal/services"
	"github.com/Corphon/ClientInterviewMCP/internal/utils"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 8192
	wsSendBuffer     = 64
)

// 客户端发来的消息类型
const (
	wsTypeTurn    = "turn"
	wsTypeSummary = "summary"
	wsTypeReset   = "reset"
	wsTypePing    = "ping"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该进行更严格的检查
		return true
	},
}

// wsInbound 客户端消息
type wsInbound struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// wsOutbound 服务端消息
type wsOutbound struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// wsClient 一个 WebSocket 连接。读协程串行处理该连接上的回合，写协程独占 conn 的写端。
type wsClient struct {
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *utils.Logger
}

func newWSClient(conn *websocket.Conn, sessionID string, logger *utils.Logger) *wsClient {
	return &wsClient{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, wsSendBuffer),
		done:      make(chan struct{}),
		logger:    logger,
	}
}

// close 通知写协程发送完缓冲区后关闭连接
func (client *wsClient) close() {
	client.closeOnce.Do(func() { close(client.done) })
}

// sendMessage 直接回复：等待缓冲区空位，连接关闭时放弃
func (client *wsClient) sendMessage(msgType string, data interface{}) {
	client.enqueue(wsOutbound{Type: msgType, Data: data, Timestamp: time.Now()}, true)
}

func (client *wsClient) sendError(code, message string) {
	client.enqueue(wsOutbound{Type: "error", Error: &APIError{Code: code, Message: message}, Timestamp: time.Now()}, true)
}

// offer 转发会话事件：非阻塞，缓冲区满时丢弃
func (client *wsClient) offer(msgType string, data interface{}) {
	client.enqueue(wsOutbound{Type: msgType, Data: data, Timestamp: time.Now()}, false)
}

func (client *wsClient) enqueue(msg wsOutbound, wait bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		client.logger.Error("WebSocket message encode failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if wait {
		select {
		case <-client.done:
		case client.send <- data:
		}
		return
	}
	select {
	case <-client.done:
	case client.send <- data:
	default:
		client.logger.Warn("WebSocket send buffer full, event dropped", map[string]interface{}{
			"session_id": client.sessionID,
			"type":       msg.Type,
		})
	}
}

func (client *wsClient) write(messageType int, data []byte) error {
	client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return client.conn.WriteMessage(messageType, data)
}

func (client *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case data := <-client.send:
			if err := client.write(websocket.TextMessage, data); err != nil {
				client.close()
				return
			}
		case <-ticker.C:
			if err := client.write(websocket.PingMessage, nil); err != nil {
				client.close()
				return
			}
		case <-client.done:
			for {
				select {
				case data := <-client.send:
					if client.write(websocket.TextMessage, data) != nil {
						return
					}
				default:
					client.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

// forwardEvents 把会话事件转发给客户端；会话结束时通道被关闭，随后断开连接
func (client *wsClient) forwardEvents(events <-chan services.SessionEvent) {
	for {
		select {
		case <-client.done:
			return
		case ev, ok := <-events:
			if !ok {
				client.close()
				return
			}
			client.offer("event", ev)
		}
	}
}

// InterviewWebSocket GET /ws/sessions/:id
// 发送方收到 reply，所有订阅者（包括发送方）收到 event。
func (h *Handler) InterviewWebSocket(c *gin.Context) {
	sessionID := c.Param("id")
	ctx := c.Request.Context()

	events, unsubscribe, err := h.InterviewService.Subscribe(ctx, sessionID)
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn("WebSocket upgrade failed", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
		return
	}

	client := newWSClient(conn, sessionID, h.Logger)
	go client.writePump()
	go client.forwardEvents(events)

	h.Logger.Info("WebSocket connected", map[string]interface{}{
		"session_id": sessionID,
		"client":     c.ClientIP(),
		"watchers":   h.InterviewService.Watchers(sessionID),
	})
	client.sendMessage("connected", gin.H{"session_id": sessionID})

	h.readPump(c, client)
	client.close()
	h.Logger.Info("WebSocket closed", map[string]interface{}{"session_id": sessionID})
}

func (h *Handler) readPump(c *gin.Context, client *wsClient) {
	ctx := c.Request.Context()
	conn := client.conn

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Logger.Warn("WebSocket read failed", map[string]interface{}{"session_id": client.sessionID, "error": err.Error()})
			}
			return
		}

		var msg wsInbound
		if err := json.Unmarshal(data, &msg); err != nil {
			client.sendError(ErrorBadRequest, "消息格式错误")
			continue
		}

		switch msg.Type {
		case wsTypeTurn:
			resp, err := h.InterviewService.ProcessTurn(ctx, client.sessionID, msg.Text)
			if err != nil {
				h.sendServiceError(client, err)
				continue
			}
			client.sendMessage("reply", resp)
		case wsTypeSummary:
			summary, err := h.InterviewService.GetSummary(ctx, client.sessionID)
			if err != nil {
				h.sendServiceError(client, err)
				continue
			}
			client.sendMessage("summary", summary)
		case wsTypeReset:
			session, err := h.InterviewService.ResetSession(ctx, client.sessionID)
			if err != nil {
				h.sendServiceError(client, err)
				continue
			}
			client.sendMessage("reset", session)
		case wsTypePing:
			client.sendMessage("pong", nil)
		default:
			client.sendError(ErrorUnknownMessage, "未知的消息类型: "+msg.Type)
		}
	}
}

func (h *Handler) sendServiceError(client *wsClient, err error) {
	_, code := statusForError(err)
	client.sendError(code, err.Error())
}

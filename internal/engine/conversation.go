// internal/engine/conversation.go
package engine

import "github.com/Corphon/ClientInterviewMCP/internal/models"

// Conversation 一个引擎加一个独占会话，适合单连接、单调用方的场景
type Conversation struct {
	engine  *Engine
	session *models.ConversationSession
}

// NewConversation 创建持有新会话的对话
func (e *Engine) NewConversation(id string) *Conversation {
	return &Conversation{engine: e, session: e.NewSession(id)}
}

// Resume 接管已有会话（例如从存储中恢复）
func (e *Engine) Resume(s *models.ConversationSession) *Conversation {
	return &Conversation{engine: e, session: s}
}

// ProcessInput 处理一个回合
func (c *Conversation) ProcessInput(text string) models.EngineReply {
	return c.engine.ProcessInput(c.session, text)
}

// ProcessTurn 处理一个回合并返回识别细节
func (c *Conversation) ProcessTurn(text string) TurnResult {
	return c.engine.ProcessTurn(c.session, text)
}

// GetSummary 会话摘要
func (c *Conversation) GetSummary() models.SessionSummary {
	return c.engine.Summary(c.session)
}

// Reset 恢复初始状态
func (c *Conversation) Reset() {
	c.engine.Reset(c.session)
}

// Session 返回会话快照
func (c *Conversation) Session() *models.ConversationSession {
	return c.session.Clone()
}

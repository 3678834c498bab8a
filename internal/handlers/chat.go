package handlers

import (
	"huixiang/internal/services"

	"github.com/gin-gonic/gin"
)

// ChatHandler 对话记录的读取与追加，模型调用不在这里
type ChatHandler struct {
	svc *services.Services
}

func NewChatHandler(svc *services.Services) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type appendMessageRequest struct {
	SessionID  string `json:"sessionId"`
	Role       string `json:"role" binding:"omitempty,oneof=user assistant system"`
	Content    string `json:"content" binding:"required"`
	Model      string `json:"model"`
	TokenCount *int   `json:"tokenCount"`
}

func (h *ChatHandler) Sessions(c *gin.Context) {
	sessions, err := h.svc.Chat.ListSessions(c.Request.Context(), current(c))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"sessions": sessions})
}

func (h *ChatHandler) History(c *gin.Context) {
	limit := queryInt(c, "limit", services.DefaultHistoryLimit, 1, 100)
	msgs, err := h.svc.Chat.History(c.Request.Context(), current(c), c.Param("id"), limit)
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"messages": msgs})
}

// Append 记录一条消息，sessionId 为空时新建会话
func (h *ChatHandler) Append(c *gin.Context) {
	var req appendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid body")
		return
	}
	msg, err := h.svc.Chat.Append(c.Request.Context(), current(c), services.AppendInput{
		SessionID:  req.SessionID,
		Role:       req.Role,
		Content:    req.Content,
		Model:      req.Model,
		TokenCount: req.TokenCount,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"sessionId": msg.SessionID, "message": msg})
}

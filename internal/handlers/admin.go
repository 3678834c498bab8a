package handlers

import (
	"huixiang/internal/models"
	"huixiang/internal/services"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	svc *services.Services
}

func NewAdminHandler(svc *services.Services) *AdminHandler {
	return &AdminHandler{svc: svc}
}

type setDeletedRequest struct {
	ID      string `json:"id" binding:"required"`
	Deleted bool   `json:"deleted"`
}

// ListPosts 后台统一帖子列表
func (h *AdminHandler) ListPosts(c *gin.Context) {
	filter := services.PostFilter{
		Source:   models.PostSource(c.Query("source")),
		Query:    c.Query("q"),
		User:     c.Query("user"),
		Page:     queryInt(c, "page", 1, 1, 100000),
		PageSize: queryInt(c, "pageSize", 30, 1, 100),
	}
	switch filter.Source {
	case "", models.SourceFeedback, models.SourceChat:
	default:
		BadRequest(c, "invalid source")
		return
	}

	page, err := h.svc.Moderation.ListUnifiedPosts(c.Request.Context(), current(c), filter)
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{
		"items":    page.Items,
		"page":     page.Page,
		"pageSize": page.PageSize,
		"total":    page.Total,
	})
}

// GetPost 单条详情，id 为 "source:ref"
func (h *AdminHandler) GetPost(c *gin.Context) {
	post, err := h.svc.Moderation.GetPost(c.Request.Context(), current(c), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"post": post})
}

// SetDeleted 切换删除状态
func (h *AdminHandler) SetDeleted(c *gin.Context) {
	var req setDeletedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid body")
		return
	}
	if err := h.svc.Moderation.SetDeleted(c.Request.Context(), current(c), req.ID, req.Deleted); err != nil {
		Fail(c, err)
		return
	}
	OK(c, nil)
}

// ListUsers 用户列表与汇总计数，refresh=1 强制重算
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.svc.Stats.ListUsers(c.Request.Context(), current(c), c.Query("refresh") == "1")
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"users": users})
}

// RefreshStats 立即重算汇总行
func (h *AdminHandler) RefreshStats(c *gin.Context) {
	if err := current(c).RequireAdmin(); err != nil {
		Fail(c, err)
		return
	}
	n, err := h.svc.Stats.Refresh(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"rows": n})
}

// ListContact 站点反馈收件箱
func (h *AdminHandler) ListContact(c *gin.Context) {
	items, err := h.svc.Contact.Inbox(c.Request.Context(), current(c))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"items": items})
}

// ListChats 后台会话列表，可按 user_id 过滤
func (h *AdminHandler) ListChats(c *gin.Context) {
	filter := services.ChatSessionFilter{
		UserID:   c.Query("user_id"),
		Page:     queryInt(c, "page", 1, 1, 100000),
		PageSize: queryInt(c, "pageSize", 50, 1, 100),
	}
	page, err := h.svc.Chat.AdminListSessions(c.Request.Context(), current(c), filter)
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{
		"items":    page.Items,
		"page":     page.Page,
		"pageSize": page.PageSize,
		"total":    page.Total,
	})
}

// GetChat 单个会话的完整记录
func (h *AdminHandler) GetChat(c *gin.Context) {
	session, msgs, err := h.svc.Chat.AdminSession(c.Request.Context(), current(c), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"session": session, "messages": msgs})
}

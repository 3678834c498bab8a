package handlers

import (
	"huixiang/internal/services"

	"github.com/gin-gonic/gin"
)

// NotificationHandler 当前身份相关的视图
type NotificationHandler struct {
	svc *services.Services
}

func NewNotificationHandler(svc *services.Services) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

type updateProfileRequest struct {
	DisplayName string `json:"displayName" binding:"required,max=80"`
}

// Me 当前身份
func (h *NotificationHandler) Me(c *gin.Context) {
	id := current(c)
	resp := gin.H{
		"authenticated": id.UserID != "",
		"userId":        id.UserID,
		"visitor":       id.VisitorKey != "",
		"isAdmin":       id.IsAdmin,
	}
	if id.UserID != "" {
		resp["email"] = id.Email
		resp["displayName"] = id.DisplayName
	}
	OK(c, resp)
}

// UpdateProfile 修改昵称
func (h *NotificationHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid body")
		return
	}
	if err := h.svc.Profiles.UpdateDisplayName(c.Request.Context(), current(c).UserID, req.DisplayName); err != nil {
		Fail(c, err)
		return
	}
	OK(c, nil)
}

// Posts 我发布的留言
func (h *NotificationHandler) Posts(c *gin.Context) {
	ctx := c.Request.Context()
	viewer := current(c)
	entries, err := h.svc.Me.MyEntries(ctx, viewer)
	if err != nil {
		Fail(c, err)
		return
	}
	views, err := h.svc.Presenter.Present(ctx, viewer, entries, true)
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"items": views})
}

// List 回复与反应提醒
func (h *NotificationHandler) List(c *gin.Context) {
	items, err := h.svc.Me.Notifications(c.Request.Context(), current(c))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"items": items})
}

package handlers

import (
	"huixiang/internal/models"
	"huixiang/internal/services"
	"huixiang/internal/utils"

	"github.com/gin-gonic/gin"
)

type AnnouncementHandler struct {
	svc *services.Services
}

func NewAnnouncementHandler(svc *services.Services) *AnnouncementHandler {
	return &AnnouncementHandler{svc: svc}
}

type createAnnouncementRequest struct {
	Content     string `json:"content" binding:"required"`
	ContentType string `json:"contentType" binding:"omitempty,oneof=plain md"`
}

type announcementReactRequest struct {
	AnnouncementID string  `json:"announcementId" binding:"required"`
	Value          *string `json:"value"`
}

func (h *AnnouncementHandler) List(c *gin.Context) {
	items, err := h.svc.Announcements.List(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"items": items})
}

func (h *AnnouncementHandler) Create(c *gin.Context) {
	var req createAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid body")
		return
	}
	a, err := h.svc.Announcements.Create(c.Request.Context(), current(c), req.Content, models.ContentType(req.ContentType))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"id": a.ID})
}

func (h *AnnouncementHandler) Reactions(c *gin.Context) {
	items, err := h.svc.Announcements.Reactions(c.Request.Context(), utils.SplitIDs(c.Query("ids")), current(c))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"items": items})
}

// React value 为空或缺省表示取消
func (h *AnnouncementHandler) React(c *gin.Context) {
	var req announcementReactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid body")
		return
	}
	value := ""
	if req.Value != nil {
		value = *req.Value
	}
	if err := h.svc.Announcements.React(c.Request.Context(), current(c), req.AnnouncementID, value); err != nil {
		Fail(c, err)
		return
	}
	OK(c, nil)
}

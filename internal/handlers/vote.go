package handlers

import (
	"huixiang/internal/services"

	"github.com/gin-gonic/gin"
)

type VoteHandler struct {
	svc *services.Services
}

func NewVoteHandler(svc *services.Services) *VoteHandler {
	return &VoteHandler{svc: svc}
}

type reactionRequest struct {
	Value string `json:"value" binding:"required"`
}

type legacyReactRequest struct {
	EntryID string `json:"entryId" binding:"required"`
	Value   *int   `json:"value" binding:"required"`
}

// respondStats 返回操作后该留言的最新统计
func (h *VoteHandler) respondStats(c *gin.Context, entryID string) {
	agg, err := h.svc.Reactions.GetAggregate(c.Request.Context(), []string{entryID}, current(c))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"entryId": entryID, "stats": agg[entryID]})
}

// Set 点赞或点踩，重复提交结果相同
func (h *VoteHandler) Set(c *gin.Context) {
	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid body")
		return
	}
	value, err := services.ParseReactionValue(req.Value)
	if err != nil {
		Fail(c, err)
		return
	}
	entryID := c.Param("id")
	if err := h.svc.Reactions.SetReaction(c.Request.Context(), current(c), entryID, value); err != nil {
		Fail(c, err)
		return
	}
	h.respondStats(c, entryID)
}

// Clear 取消反应，没有时也返回成功
func (h *VoteHandler) Clear(c *gin.Context) {
	entryID := c.Param("id")
	if err := h.svc.Reactions.ClearReaction(c.Request.Context(), current(c), entryID); err != nil {
		Fail(c, err)
		return
	}
	h.respondStats(c, entryID)
}

// Legacy 旧版接口，value 为 1 / -1 / 0
func (h *VoteHandler) Legacy(c *gin.Context) {
	var req legacyReactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid body")
		return
	}
	if err := h.svc.Reactions.ApplyLegacy(c.Request.Context(), current(c), req.EntryID, *req.Value); err != nil {
		Fail(c, err)
		return
	}
	h.respondStats(c, req.EntryID)
}

package handlers

import (
	"huixiang/internal/models"
	"huixiang/internal/services"
	"huixiang/internal/utils"

	"github.com/gin-gonic/gin"
)

type GuestbookHandler struct {
	svc *services.Services
}

func NewGuestbookHandler(svc *services.Services) *GuestbookHandler {
	return &GuestbookHandler{svc: svc}
}

type createEntryRequest struct {
	Content     string `json:"content" binding:"required"`
	ContentType string `json:"contentType" binding:"omitempty,oneof=plain md"`
	ParentID    string `json:"parentId"`
	AuthorName  string `json:"authorName" binding:"max=40"`
}

// List 留言列表：根留言或某条留言的直接回复
func (h *GuestbookHandler) List(c *gin.Context) {
	viewer := current(c)
	filter := services.EntryFilter{
		ParentID: c.Query("parentId"),
		Status:   services.ParseStatusFilter(c.Query("status")),
		Search:   c.Query("search"),
		Page:     queryInt(c, "page", 1, 1, 100000),
		PageSize: queryInt(c, "limit", 20, 1, 50),
	}

	entries, err := h.svc.Entries.ListEntries(c.Request.Context(), filter)
	if err != nil {
		Fail(c, err)
		return
	}
	// 根留言附带回复数
	views, err := h.svc.Presenter.Present(c.Request.Context(), viewer, entries, filter.ParentID == "")
	if err != nil {
		Fail(c, err)
		return
	}

	resp := gin.H{
		"items": views,
		"page":  filter.Page,
		"limit": filter.PageSize,
	}
	if c.Query("withCounts") == "1" || c.Query("withCounts") == "true" {
		counts, err := h.svc.Entries.CountByStatus(c.Request.Context(), filter.Search)
		if err != nil {
			Fail(c, err)
			return
		}
		resp["counts"] = counts
	}
	OK(c, resp)
}

// Create 发布留言或回复
func (h *GuestbookHandler) Create(c *gin.Context) {
	var req createEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid body")
		return
	}

	viewer := current(c)
	entry, err := h.svc.Entries.CreateEntry(c.Request.Context(), viewer, services.CreateEntryInput{
		Content:     req.Content,
		ContentType: models.ContentType(req.ContentType),
		ParentID:    req.ParentID,
		AuthorName:  req.AuthorName,
		ClientIP:    c.ClientIP(),
	})
	if err != nil {
		Fail(c, err)
		return
	}
	view, err := h.svc.Presenter.PresentOne(c.Request.Context(), viewer, entry)
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"id": entry.ID, "entry": view})
}

// Detail 单条留言及其全部后代
func (h *GuestbookHandler) Detail(c *gin.Context) {
	ctx := c.Request.Context()
	viewer := current(c)

	entry, err := h.svc.Entries.GetEntry(ctx, c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	all := []models.Entry{*entry}
	if c.Query("includeComments") != "0" {
		subtree, err := h.svc.Entries.LoadSubtree(ctx, entry.ID)
		if err != nil {
			Fail(c, err)
			return
		}
		all = append(all, subtree...)
	}

	views, err := h.svc.Presenter.Present(ctx, viewer, all, false)
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"entry": views[0], "comments": views[1:]})
}

// Delete 软删除，重复删除也返回成功
func (h *GuestbookHandler) Delete(c *gin.Context) {
	if err := h.svc.Entries.SoftDelete(c.Request.Context(), current(c), c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	OK(c, nil)
}

// Restore 管理员恢复
func (h *GuestbookHandler) Restore(c *gin.Context) {
	if err := h.svc.Entries.Restore(c.Request.Context(), current(c), c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	OK(c, nil)
}

// Reactions 批量取赞踩统计
func (h *GuestbookHandler) Reactions(c *gin.Context) {
	ids := utils.SplitIDs(c.Query("ids"))
	if len(ids) > 100 {
		ids = ids[:100]
	}
	items, err := h.svc.Reactions.GetAggregate(c.Request.Context(), ids, current(c))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"items": items})
}

package handlers

import (
	"huixiang/internal/services"

	"github.com/gin-gonic/gin"
)

type FeedbackHandler struct {
	svc *services.Services
}

func NewFeedbackHandler(svc *services.Services) *FeedbackHandler {
	return &FeedbackHandler{svc: svc}
}

type feedbackRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Message  string `json:"message"`
	PagePath string `json:"pagePath"`
}

// Submit 站点反馈表单，无需身份
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid JSON body")
		return
	}
	_, err := h.svc.Contact.Submit(c.Request.Context(), services.ContactInput{
		Name:      req.Name,
		Email:     req.Email,
		Message:   req.Message,
		PagePath:  req.PagePath,
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
	})
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, nil)
}

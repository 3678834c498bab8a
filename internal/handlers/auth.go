package handlers

import (
	"huixiang/internal/middleware"
	"huixiang/internal/models"
	"huixiang/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
)

type AuthHandler struct {
	svc    *services.Services
	google *oauth2.Config
}

func NewAuthHandler(svc *services.Services) *AuthHandler {
	return &AuthHandler{
		svc:    svc,
		google: newGoogleOAuthConfig(svc.Config),
	}
}

type registerRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type userView struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	DisplayName   string `json:"displayName"`
}

func newUserView(u *models.User) userView {
	return userView{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		DisplayName:   u.NameOrEmailPrefix(),
	}
}

// login 写入会话
func login(c *gin.Context, user *models.User) error {
	session := sessions.Default(c)
	session.Set(middleware.SessionUserKey, user.ID)
	return session.Save()
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "email and password are required")
		return
	}
	user, err := h.svc.Profiles.Register(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		Fail(c, err)
		return
	}
	if err := login(c, user); err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"user": newUserView(user)})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "email and password are required")
		return
	}
	user, err := h.svc.Profiles.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		Fail(c, err)
		return
	}
	if err := login(c, user); err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"user": newUserView(user)})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		Fail(c, err)
		return
	}
	OK(c, nil)
}

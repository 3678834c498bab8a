package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"huixiang/internal/config"
	"huixiang/internal/logger"
	"huixiang/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	oauthStateKey      = "oauth_state"
	googleUserInfoURL  = "https://www.googleapis.com/oauth2/v2/userinfo"
	googleCallbackPath = "/auth/google/callback"
)

func newGoogleOAuthConfig(cfg *config.Config) *oauth2.Config {
	if cfg == nil || cfg.Google.ClientID == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.SiteURL + googleCallbackPath,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
}

// GoogleUserInfo Google 用户信息结构
type GoogleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// generateStateToken 生成随机 state token
func generateStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// GoogleLogin 发起 Google OAuth 登录
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	if h.google == nil {
		c.String(http.StatusNotFound, "Google 登录未启用")
		return
	}
	state, err := generateStateToken()
	if err != nil {
		c.String(http.StatusInternalServerError, "生成状态令牌失败")
		return
	}

	// state 存入 session，回调时校验
	session := sessions.Default(c)
	session.Set(oauthStateKey, state)
	_ = session.Save()

	c.Redirect(http.StatusTemporaryRedirect, h.google.AuthCodeURL(state))
}

// GoogleCallback 处理 Google OAuth 回调，成功后回到首页
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	if h.google == nil {
		c.String(http.StatusNotFound, "Google 登录未启用")
		return
	}
	session := sessions.Default(c)
	savedState, _ := session.Get(oauthStateKey).(string)
	if savedState == "" || c.Query("state") != savedState {
		c.Redirect(http.StatusFound, "/?error=invalid_state")
		return
	}
	session.Delete(oauthStateKey)
	_ = session.Save()

	code := c.Query("code")
	if code == "" {
		c.Redirect(http.StatusFound, "/?error=no_code")
		return
	}

	ctx := c.Request.Context()
	token, err := h.google.Exchange(ctx, code)
	if err != nil {
		logger.For(c).WithError(err).Warn("google token exchange failed")
		c.Redirect(http.StatusFound, "/?error=token_exchange_failed")
		return
	}

	info, err := h.fetchGoogleUserInfo(c, token)
	if err != nil {
		logger.For(c).WithError(err).Warn("google userinfo failed")
		c.Redirect(http.StatusFound, "/?error=get_userinfo_failed")
		return
	}

	user, err := h.svc.Profiles.UpsertGoogleUser(ctx, services.GoogleProfile{
		ID:            info.ID,
		Email:         info.Email,
		VerifiedEmail: info.VerifiedEmail,
		Name:          info.Name,
	})
	if err != nil {
		logger.For(c).WithError(err).Warn("google login rejected")
		c.Redirect(http.StatusFound, "/?error=google_login_failed")
		return
	}
	if err := login(c, user); err != nil {
		c.Redirect(http.StatusFound, "/?error=session")
		return
	}
	c.Redirect(http.StatusFound, "/")
}

func (h *AuthHandler) fetchGoogleUserInfo(c *gin.Context, token *oauth2.Token) (*GoogleUserInfo, error) {
	resp, err := h.google.Client(c.Request.Context(), token).Get(googleUserInfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("获取用户信息失败: %d", resp.StatusCode)
	}

	var info GoogleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

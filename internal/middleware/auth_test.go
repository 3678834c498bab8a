package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"huixiang/internal/identity"
	"huixiang/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUsers map[string]*models.User

func (s stubUsers) GetUser(_ context.Context, id string) (*models.User, error) {
	if id == "broken" {
		return nil, errors.New("db down")
	}
	return s[id], nil
}

func newEngine(users stubUsers, loginAs string, guards ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions("s", cookie.NewStore([]byte("k"))))
	// 测试里直接把用户 id 写进会话
	r.Use(func(c *gin.Context) {
		if loginAs != "" {
			sessions.Default(c).Set(SessionUserKey, loginAs)
		}
		c.Next()
	})
	r.Use(LoadIdentity(identity.NewResolver(users, "root@example.com")))
	handlers := append(guards, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"key": Current(c).Key(), "admin": Current(c).IsAdmin})
	})
	r.GET("/", handlers...)
	return r
}

func get(r *gin.Engine, visitor string) (int, map[string]interface{}) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if visitor != "" {
		req.Header.Set(VisitorKeyHeader, visitor)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	body := map[string]interface{}{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w.Code, body
}

func TestLoadIdentity(t *testing.T) {
	users := stubUsers{
		"u1":   {ID: "u1", Email: "someone@example.com"},
		"root": {ID: "root", Email: "ROOT@example.com", EmailVerified: true},
	}

	code, body := get(newEngine(users, ""), "visitor-123456")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "visitor:visitor-123456", body["key"])

	_, body = get(newEngine(users, "u1"), "visitor-123456")
	assert.Equal(t, "user:u1", body["key"])
	assert.Equal(t, false, body["admin"])

	_, body = get(newEngine(users, "root"), "")
	assert.Equal(t, true, body["admin"])

	// 会话指向已删除的用户时退回访客
	_, body = get(newEngine(users, "ghost"), "visitor-123456")
	assert.Equal(t, "visitor:visitor-123456", body["key"])

	// 查库失败也不拦截请求，保留访客 key
	code, body = get(newEngine(users, "broken"), "visitor-123456")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "visitor:visitor-123456", body["key"])
}

func TestGuards(t *testing.T) {
	users := stubUsers{
		"u1":   {ID: "u1", Email: "someone@example.com"},
		"root": {ID: "root", Email: "root@example.com", EmailVerified: true},
	}

	code, body := get(newEngine(users, "", IdentityRequired()), "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthenticated", body["code"])

	code, _ = get(newEngine(users, "", IdentityRequired()), "visitor-123456")
	assert.Equal(t, http.StatusOK, code)

	code, _ = get(newEngine(users, "", AuthRequired()), "visitor-123456")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = get(newEngine(users, "u1", AuthRequired()), "")
	assert.Equal(t, http.StatusOK, code)

	code, body = get(newEngine(users, "u1", AdminRequired()), "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", body["code"])

	code, _ = get(newEngine(users, "root", AdminRequired()), "")
	assert.Equal(t, http.StatusOK, code)
}

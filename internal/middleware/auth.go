package middleware

import (
	"huixiang/internal/apperr"
	"huixiang/internal/identity"
	"huixiang/internal/logger"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	IdentityKey      = "identity"
	SessionUserKey   = "user_id"
	VisitorKeyHeader = "X-Visitor-Id"
)

// LoadIdentity 从会话与访客 key 头解析身份并放入 context，解析失败时按匿名处理
func LoadIdentity(resolver *identity.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID, _ := session.Get(SessionUserKey).(string)

		id, err := resolver.Resolve(c.Request.Context(), userID, c.GetHeader(VisitorKeyHeader))
		if err != nil {
			logger.For(c).WithError(err).Warn("resolve identity failed")
			id = identity.Identity{}
			if key, ok := identity.ParseVisitorKey(c.GetHeader(VisitorKeyHeader)); ok {
				id.VisitorKey = key
			}
		}
		c.Set(IdentityKey, id)

		if !id.IsZero() {
			ctx := logger.NewContextWithFields(c.Request.Context(), logrus.Fields{"identity": id.Key()})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// Current 取当前身份，未解析时为空身份
func Current(c *gin.Context) identity.Identity {
	if v, ok := c.Get(IdentityKey); ok {
		if id, ok := v.(identity.Identity); ok {
			return id
		}
	}
	return identity.Identity{}
}

func abort(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{
		"success": false,
		"error":   apperr.PublicMessage(err),
		"code":    kind.String(),
	})
}

// IdentityRequired 登录用户或带有效访客 key 的请求才能通过
func IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := Current(c).Require(); err != nil {
			abort(c, err)
			return
		}
		c.Next()
	}
}

// AuthRequired ensures a user is logged in
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if Current(c).UserID == "" {
			abort(c, apperr.Unauthenticated("login required"))
			return
		}
		c.Next()
	}
}

// AdminRequired 只认配置里的管理员邮箱
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := Current(c).RequireAdmin(); err != nil {
			abort(c, err)
			return
		}
		c.Next()
	}
}

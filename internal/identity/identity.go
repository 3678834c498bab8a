// Package identity resolves who is calling: an authenticated user, an
// anonymous visitor holding a client-side key, or nobody.
package identity

import (
	"context"
	"regexp"
	"strings"

	"huixiang/internal/apperr"
	"huixiang/internal/config"
	"huixiang/internal/models"
)

type Kind int

const (
	KindNone Kind = iota
	KindVisitor
	KindUser
)

const (
	VisitorKeyMinLen = 8
	VisitorKeyMaxLen = 80
)

var visitorKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Identity 是调用方身份。已登录用户优先，但同时保留访客 key，
// 这样登录后仍能认领登录前以访客身份发布的内容。
type Identity struct {
	UserID      string
	VisitorKey  string
	Email       string
	DisplayName string
	IsAdmin     bool
}

func Anonymous(visitorKey string) Identity {
	return Identity{VisitorKey: visitorKey}
}

func (i Identity) Kind() Kind {
	switch {
	case i.UserID != "":
		return KindUser
	case i.VisitorKey != "":
		return KindVisitor
	default:
		return KindNone
	}
}

func (i Identity) IsZero() bool { return i.Kind() == KindNone }

// Key 用作反应表、汇总表等的身份主键
func (i Identity) Key() string {
	switch i.Kind() {
	case KindUser:
		return "user:" + i.UserID
	case KindVisitor:
		return "visitor:" + i.VisitorKey
	default:
		return ""
	}
}

func (i Identity) UserIDPtr() *string {
	if i.UserID == "" {
		return nil
	}
	id := i.UserID
	return &id
}

func (i Identity) VisitorKeyPtr() *string {
	if i.VisitorKey == "" {
		return nil
	}
	key := i.VisitorKey
	return &key
}

// Owns 判断记录是否属于当前身份，两个身份字段都要检查
func (i Identity) Owns(userID, visitorKey *string) bool {
	if i.UserID != "" && userID != nil && *userID == i.UserID {
		return true
	}
	if i.VisitorKey != "" && visitorKey != nil && *visitorKey == i.VisitorKey {
		return true
	}
	return false
}

// Require 写操作必须有身份
func (i Identity) Require() error {
	if i.IsZero() {
		return apperr.Unauthenticated("login or a valid x-visitor-id is required")
	}
	return nil
}

// RequireAdmin 管理员操作必须是已登录的管理员
func (i Identity) RequireAdmin() error {
	if i.UserID == "" {
		return apperr.Unauthenticated("login required")
	}
	if !i.IsAdmin {
		return apperr.Forbidden("forbidden (not admin)")
	}
	return nil
}

// ParseVisitorKey 校验客户端传来的访客 key
func ParseVisitorKey(raw string) (string, bool) {
	key := strings.TrimSpace(raw)
	if len(key) < VisitorKeyMinLen || len(key) > VisitorKeyMaxLen {
		return "", false
	}
	if !visitorKeyPattern.MatchString(key) {
		return "", false
	}
	return key, true
}

// UserLookup 按 id 取用户，不存在时返回 nil, nil
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type Resolver struct {
	users      UserLookup
	adminEmail string
}

// NewResolver adminEmail 来自启动配置，不信任任何客户端声明
func NewResolver(users UserLookup, adminEmail string) *Resolver {
	return &Resolver{
		users:      users,
		adminEmail: config.NormalizeEmail(adminEmail),
	}
}

// IsAdminEmail 只有已验证的邮箱才参与比对
func (r *Resolver) IsAdminEmail(email string, verified bool) bool {
	if r.adminEmail == "" || !verified {
		return false
	}
	return config.NormalizeEmail(email) == r.adminEmail
}

// Resolve 由会话中的用户 id 与访客 key 头得到身份。
// 会话里的用户已不存在时按未登录处理；无效的访客 key 直接忽略。
func (r *Resolver) Resolve(ctx context.Context, sessionUserID, visitorHeader string) (Identity, error) {
	var id Identity
	if key, ok := ParseVisitorKey(visitorHeader); ok {
		id.VisitorKey = key
	}

	if sessionUserID == "" || r.users == nil {
		return id, nil
	}

	user, err := r.users.GetUser(ctx, sessionUserID)
	if err != nil {
		return Identity{}, err
	}
	if user == nil {
		return id, nil
	}

	id.UserID = user.ID
	id.Email = user.Email
	id.DisplayName = user.NameOrEmailPrefix()
	id.IsAdmin = r.IsAdminEmail(user.Email, user.EmailVerified)
	return id, nil
}

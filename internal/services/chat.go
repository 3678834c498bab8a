package services

import (
	"context"
	"database/sql/driver"
	"strings"
	"time"

	"huixiang/internal/apperr"
	"huixiang/internal/identity"
	"huixiang/internal/logger"
	"huixiang/internal/models"
	"huixiang/internal/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	chatTitleLength     = 30
	DefaultHistoryLimit = 12
	maxHistoryLimit     = 100
	maxChatSessions     = 50
	maxAdminTranscript  = 500
)

var chatRoles = map[string]bool{"user": true, "assistant": true, "system": true}

// ChatLog 对话记录，只追加。审核隐藏通过墓碑实现，不改这里的行。
type ChatLog struct {
	db  *gorm.DB
	now func() time.Time
}

func NewChatLog(gdb *gorm.DB) *ChatLog {
	return &ChatLog{db: gdb, now: time.Now}
}

func (l *ChatLog) WithClock(now func() time.Time) *ChatLog {
	l.now = now
	return l
}

type AppendInput struct {
	SessionID  string
	Role       string
	Content    string
	Model      string
	TokenCount *int
}

// Append 追加一条消息，SessionID 为空时新建会话，标题取正文前 30 个字符
func (l *ChatLog) Append(ctx context.Context, id identity.Identity, in AppendInput) (*models.ChatMessage, error) {
	if err := id.Require(); err != nil {
		return nil, err
	}
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role == "" {
		role = "user"
	}
	if !chatRoles[role] {
		return nil, apperr.Validation("invalid role")
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, apperr.Validation("content is required")
	}

	var session *models.ChatSession
	if strings.TrimSpace(in.SessionID) == "" {
		session = &models.ChatSession{
			CreatedAt: l.now().UTC(),
			UserID:    id.UserIDPtr(),
			Title:     utils.TruncateRunes(content, chatTitleLength),
		}
		if id.UserID == "" {
			session.SessionKey = id.VisitorKeyPtr()
		}
		if err := l.db.WithContext(ctx).Create(session).Error; err != nil {
			return nil, apperr.Store(err, "create chat session")
		}
	} else {
		s, err := l.ownedSession(ctx, id, in.SessionID)
		if err != nil {
			return nil, err
		}
		session = s
	}

	msg := models.ChatMessage{
		CreatedAt:  l.now().UTC(),
		SessionID:  session.ID,
		Role:       role,
		Content:    content,
		Model:      strings.TrimSpace(in.Model),
		TokenCount: in.TokenCount,
	}
	if err := l.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, apperr.Store(err, "append chat message")
	}

	logger.For(ctx).WithFields(logrus.Fields{
		"session_id": session.ID,
		"message_id": msg.ID,
		"role":       role,
	}).Debug("chat message appended")
	return &msg, nil
}

func (l *ChatLog) ownedSession(ctx context.Context, id identity.Identity, sessionID string) (*models.ChatSession, error) {
	sessionID, err := validateID(sessionID, "session id")
	if err != nil {
		return nil, err
	}
	var session models.ChatSession
	err = l.db.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("chat session not found")
	}
	if err != nil {
		return nil, apperr.Store(err, "load chat session")
	}
	if !id.Owns(session.UserID, session.SessionKey) && !id.IsAdmin {
		return nil, apperr.Forbidden("not your chat session")
	}
	return &session, nil
}

// History 取会话最近 limit 条消息，按时间正序。被审核隐藏的消息不返回。
func (l *ChatLog) History(ctx context.Context, id identity.Identity, sessionID string, limit int) ([]models.ChatMessage, error) {
	if err := id.Require(); err != nil {
		return nil, err
	}
	session, err := l.ownedSession(ctx, id, sessionID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = utils.Clamp(limit, 1, maxHistoryLimit)

	var msgs []models.ChatMessage
	if err := l.db.WithContext(ctx).
		Where("session_id = ?", session.ID).
		Where("id NOT IN (?)", tombstonedIDs(l.db, models.SourceChat)).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, apperr.Store(err, "load chat history")
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListSessions 当前身份的会话，新的在前
func (l *ChatLog) ListSessions(ctx context.Context, id identity.Identity) ([]models.ChatSession, error) {
	if err := id.Require(); err != nil {
		return nil, err
	}
	q := l.db.WithContext(ctx).Model(&models.ChatSession{})
	switch {
	case id.UserID != "" && id.VisitorKey != "":
		q = q.Where("user_id = ? OR session_key = ?", id.UserID, id.VisitorKey)
	case id.UserID != "":
		q = q.Where("user_id = ?", id.UserID)
	default:
		q = q.Where("session_key = ?", id.VisitorKey)
	}
	var sessions []models.ChatSession
	if err := q.Order("created_at DESC").Limit(maxChatSessions).Find(&sessions).Error; err != nil {
		return nil, apperr.Store(err, "list chat sessions")
	}
	return sessions, nil
}

// GetMessage 直接读原始行，不经过审核层
func (l *ChatLog) GetMessage(ctx context.Context, messageID string) (*models.ChatMessage, error) {
	messageID, err := validateID(messageID, "message id")
	if err != nil {
		return nil, err
	}
	var msg models.ChatMessage
	err = l.db.WithContext(ctx).Where("id = ?", messageID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("chat message not found")
	}
	if err != nil {
		return nil, apperr.Store(err, "load chat message")
	}
	return &msg, nil
}

type ChatSessionFilter struct {
	UserID   string // 为空表示全部
	Page     int
	PageSize int
}

// ChatSessionSummary 后台会话列表的一行
type ChatSessionSummary struct {
	models.ChatSession
	MessageCount  int64      `json:"message_count"`
	LastMessageAt *time.Time `json:"last_message_at"`
}

type ChatSessionPage struct {
	Items    []ChatSessionSummary `json:"items"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"pageSize"`
	Total    int64                `json:"total"`
}

// AdminListSessions 后台浏览全部会话，消息数与最后时间用一次分组查询补齐
func (l *ChatLog) AdminListSessions(ctx context.Context, id identity.Identity, filter ChatSessionFilter) (*ChatSessionPage, error) {
	if err := id.RequireAdmin(); err != nil {
		return nil, err
	}
	page := utils.Clamp(filter.Page, 1, 100000)
	size := utils.Clamp(filter.PageSize, 1, 100)

	q := l.db.WithContext(ctx).Model(&models.ChatSession{})
	if strings.TrimSpace(filter.UserID) != "" {
		uid, err := validateID(filter.UserID, "user_id")
		if err != nil {
			return nil, err
		}
		q = q.Where("user_id = ?", uid)
	}

	out := &ChatSessionPage{Items: []ChatSessionSummary{}, Page: page, PageSize: size}
	if err := q.Count(&out.Total).Error; err != nil {
		return nil, apperr.Store(err, "count chat sessions")
	}
	var sessions []models.ChatSession
	if err := q.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&sessions).Error; err != nil {
		return nil, apperr.Store(err, "list chat sessions")
	}
	if len(sessions) == 0 {
		return out, nil
	}

	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	var rows []struct {
		SessionID string
		N         int64
		LastAt    aggTime
	}
	if err := l.db.WithContext(ctx).Model(&models.ChatMessage{}).
		Select("session_id, COUNT(*) AS n, MAX(created_at) AS last_at").
		Where("session_id IN ?", ids).
		Group("session_id").
		Scan(&rows).Error; err != nil {
		return nil, apperr.Store(err, "count chat messages")
	}
	byID := make(map[string]int, len(rows))
	for i, r := range rows {
		byID[r.SessionID] = i
	}
	for _, s := range sessions {
		item := ChatSessionSummary{ChatSession: s}
		if i, ok := byID[s.ID]; ok {
			item.MessageCount = rows[i].N
			if rows[i].LastAt.Valid {
				t := rows[i].LastAt.Time
				item.LastMessageAt = &t
			}
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

// AdminSession 单个会话及其完整记录，按时间正序，最多 500 条。
// 后台看原始记录，墓碑不过滤。
func (l *ChatLog) AdminSession(ctx context.Context, id identity.Identity, sessionID string) (*models.ChatSession, []models.ChatMessage, error) {
	if err := id.RequireAdmin(); err != nil {
		return nil, nil, err
	}
	session, err := l.ownedSession(ctx, id, sessionID)
	if err != nil {
		return nil, nil, err
	}
	msgs := []models.ChatMessage{}
	if err := l.db.WithContext(ctx).
		Where("session_id = ?", session.ID).
		Order("created_at ASC").Order("id ASC").
		Limit(maxAdminTranscript).
		Find(&msgs).Error; err != nil {
		return nil, nil, apperr.Store(err, "load chat transcript")
	}
	return session, msgs, nil
}

// aggTime 接 MAX(created_at)：postgres 给 time.Time，sqlite 聚合列丢了类型只给字符串
type aggTime struct {
	Time  time.Time
	Valid bool
}

var aggTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
}

func (t *aggTime) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return errors.Errorf("aggTime: unsupported type %T", src)
	}
	raw = strings.TrimSuffix(raw, "Z")
	for _, layout := range aggTimeLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return errors.Errorf("aggTime: cannot parse %q", raw)
}

func (t aggTime) Value() (driver.Value, error) {
	if !t.Valid {
		return nil, nil
	}
	return t.Time, nil
}

// tombstonedIDs 子查询，供 NOT IN 反连接使用
func tombstonedIDs(gdb *gorm.DB, source models.PostSource) *gorm.DB {
	return gdb.Model(&models.Tombstone{}).Select("source_ref_id").Where("source = ?", source)
}

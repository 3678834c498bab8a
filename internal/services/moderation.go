package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"huixiang/internal/apperr"
	"huixiang/internal/identity"
	"huixiang/internal/logger"
	"huixiang/internal/models"
	"huixiang/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultAdminPageSize = 30
	anonymousUserFilter  = "anonymous"
)

// GlobalID 跨来源的帖子 id，序列化为 "source:sourceRefId"
type GlobalID struct {
	Source models.PostSource
	RefID  string
}

func (g GlobalID) String() string {
	return string(g.Source) + ":" + g.RefID
}

// ParseGlobalID 裸 uuid 视为留言板来源
func ParseGlobalID(raw string) (GlobalID, error) {
	raw = strings.TrimSpace(raw)
	idx := strings.Index(raw, ":")
	if idx <= 0 {
		if _, err := uuid.Parse(raw); err == nil && idx < 0 {
			return GlobalID{Source: models.SourceFeedback, RefID: raw}, nil
		}
		return GlobalID{}, apperr.Validation("invalid id")
	}

	source := models.PostSource(raw[:idx])
	ref := raw[idx+1:]
	if source != models.SourceFeedback && source != models.SourceChat {
		return GlobalID{}, apperr.Validation("invalid id")
	}
	if _, err := uuid.Parse(ref); err != nil {
		return GlobalID{}, apperr.Validation("invalid id")
	}
	return GlobalID{Source: source, RefID: ref}, nil
}

type PostAuthor struct {
	UserID *string `json:"user_id"`
	Name   string  `json:"name"`
}

// Post 审核视图里的一条记录
type Post struct {
	ID          string            `json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	Author      PostAuthor        `json:"author"`
	Content     string            `json:"content"`
	Source      models.PostSource `json:"source"`
	SourceRefID string            `json:"source_ref_id"`
	ParentID    *string           `json:"parent_id"`
	Deleted     bool              `json:"deleted"`
	Role        string            `json:"role,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
}

type PostFilter struct {
	Source   models.PostSource // 为空表示全部来源
	Query    string
	User     string // 用户 id，或 "anonymous"
	Page     int
	PageSize int
}

type PostPage struct {
	Items    []Post `json:"items"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
	Total    int64  `json:"total"`
}

// ModerationService 把留言与对话消息合并成一个后台视图
type ModerationService struct {
	db       *gorm.DB
	entries  *EntryService
	profiles *ProfileService
	now      func() time.Time
}

func NewModerationService(gdb *gorm.DB, entries *EntryService, profiles *ProfileService) *ModerationService {
	return &ModerationService{
		db:       gdb,
		entries:  entries,
		profiles: profiles,
		now:      time.Now,
	}
}

func (s *ModerationService) WithClock(now func() time.Time) *ModerationService {
	s.now = now
	return s
}

type chatRow struct {
	ID        string
	CreatedAt time.Time
	SessionID string
	Role      string
	Content   string
	UserID    *string
}

// ListUnifiedPosts 默认视图：不含已删除留言、挂在已删除线程下的回复和有墓碑的对话消息。
// 两个来源各取前 page*pageSize 条，合并按时间倒序后再切页。
func (s *ModerationService) ListUnifiedPosts(ctx context.Context, admin identity.Identity, f PostFilter) (PostPage, error) {
	if err := admin.RequireAdmin(); err != nil {
		return PostPage{}, err
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	size := f.PageSize
	if size == 0 {
		size = defaultAdminPageSize
	}
	size = utils.Clamp(size, 1, 100)
	offset := (page - 1) * size
	need := offset + size

	result := PostPage{Page: page, PageSize: size, Items: []Post{}}
	var posts []Post

	if f.Source == "" || f.Source == models.SourceFeedback {
		items, total, err := s.listFeedback(ctx, f, need)
		if err != nil {
			return PostPage{}, err
		}
		posts = append(posts, items...)
		result.Total += total
	}
	if f.Source == "" || f.Source == models.SourceChat {
		items, total, err := s.listChat(ctx, f, need)
		if err != nil {
			return PostPage{}, err
		}
		posts = append(posts, items...)
		result.Total += total
	}

	if err := s.fillNames(ctx, posts); err != nil {
		return PostPage{}, err
	}

	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID > posts[j].ID
	})
	if offset < len(posts) {
		end := offset + size
		if end > len(posts) {
			end = len(posts)
		}
		result.Items = posts[offset:end]
	}
	return result, nil
}

// deletedEntryIDs 已删除留言 id 的子查询，用于在库里排除整条被删线程
func deletedEntryIDs(gdb *gorm.DB) *gorm.DB {
	return gdb.Model(&models.Entry{}).
		Select("id").
		Where("status = ? OR deleted_at IS NOT NULL", models.EntryDeleted)
}

func (s *ModerationService) listFeedback(ctx context.Context, f PostFilter, need int) ([]Post, int64, error) {
	// 自身、父留言或根留言被删除的都不出现；计数与分页用同一个条件
	q := s.db.WithContext(ctx).Model(&models.Entry{}).
		Where("status = ? AND deleted_at IS NULL", models.EntryActive).
		Where("(parent_id IS NULL OR parent_id NOT IN (?))", deletedEntryIDs(s.db)).
		Where("root_id NOT IN (?)", deletedEntryIDs(s.db))
	if query := strings.TrimSpace(f.Query); query != "" {
		q = q.Where(`LOWER(content) LIKE ? ESCAPE '\'`, likePattern(query))
	}
	switch user := strings.TrimSpace(f.User); user {
	case "":
	case anonymousUserFilter:
		q = q.Where("author_user_id IS NULL")
	default:
		q = q.Where("author_user_id = ?", user)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, apperr.Store(err, "count moderation entries")
	}
	var rows []models.Entry
	if err := q.Order("created_at DESC").Order("id DESC").Limit(need).Find(&rows).Error; err != nil {
		return nil, 0, apperr.Store(err, "list moderation entries")
	}

	posts := make([]Post, 0, len(rows))
	for i := range rows {
		posts = append(posts, entryPost(&rows[i]))
	}
	return posts, total, nil
}

func entryPost(e *models.Entry) Post {
	g := GlobalID{Source: models.SourceFeedback, RefID: e.ID}
	return Post{
		ID:          g.String(),
		CreatedAt:   e.CreatedAt,
		Author:      PostAuthor{UserID: e.AuthorUserID, Name: e.AuthorName},
		Content:     e.Content,
		Source:      models.SourceFeedback,
		SourceRefID: e.ID,
		ParentID:    e.ParentID,
		Deleted:     e.IsDeleted(),
	}
}

func (s *ModerationService) chatQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table("chat_messages").
		Joins("JOIN chat_sessions ON chat_sessions.id = chat_messages.session_id")
}

func (s *ModerationService) listChat(ctx context.Context, f PostFilter, need int) ([]Post, int64, error) {
	// 墓碑在库里做反连接，原始消息行不受影响
	q := s.chatQuery(ctx).
		Where("chat_messages.id NOT IN (?)", tombstonedIDs(s.db, models.SourceChat))
	if query := strings.TrimSpace(f.Query); query != "" {
		q = q.Where(`LOWER(chat_messages.content) LIKE ? ESCAPE '\'`, likePattern(query))
	}
	switch user := strings.TrimSpace(f.User); user {
	case "":
	case anonymousUserFilter:
		q = q.Where("chat_sessions.user_id IS NULL")
	default:
		q = q.Where("chat_sessions.user_id = ?", user)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, apperr.Store(err, "count moderation chat messages")
	}
	var rows []chatRow
	if err := q.Select("chat_messages.id, chat_messages.created_at, chat_messages.session_id, " +
		"chat_messages.role, chat_messages.content, chat_sessions.user_id").
		Order("chat_messages.created_at DESC").Order("chat_messages.id DESC").
		Limit(need).
		Scan(&rows).Error; err != nil {
		return nil, 0, apperr.Store(err, "list moderation chat messages")
	}

	posts := make([]Post, 0, len(rows))
	for i := range rows {
		posts = append(posts, chatPost(&rows[i], false))
	}
	return posts, total, nil
}

func chatPost(r *chatRow, deleted bool) Post {
	g := GlobalID{Source: models.SourceChat, RefID: r.ID}
	return Post{
		ID:          g.String(),
		CreatedAt:   r.CreatedAt,
		Author:      PostAuthor{UserID: r.UserID},
		Content:     r.Content,
		Source:      models.SourceChat,
		SourceRefID: r.ID,
		Deleted:     deleted,
		Role:        r.Role,
		SessionID:   r.SessionID,
	}
}

// fillNames 有用户资料时用资料昵称
func (s *ModerationService) fillNames(ctx context.Context, posts []Post) error {
	var ids []string
	for i := range posts {
		if posts[i].Author.UserID != nil {
			ids = append(ids, *posts[i].Author.UserID)
		}
	}
	names, err := s.profiles.Names(ctx, ids)
	if err != nil {
		return err
	}
	for i := range posts {
		if uid := posts[i].Author.UserID; uid != nil && names[*uid] != "" {
			posts[i].Author.Name = names[*uid]
		}
	}
	return nil
}

func (s *ModerationService) hasTombstone(ctx context.Context, g GlobalID) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Tombstone{}).
		Where("source = ? AND source_ref_id = ?", g.Source, g.RefID).
		Count(&n).Error; err != nil {
		return false, apperr.Store(err, "load tombstone")
	}
	return n > 0, nil
}

func (s *ModerationService) loadChatRow(ctx context.Context, refID string) (*chatRow, error) {
	var rows []chatRow
	if err := s.chatQuery(ctx).
		Select("chat_messages.id, chat_messages.created_at, chat_messages.session_id, "+
			"chat_messages.role, chat_messages.content, chat_sessions.user_id").
		Where("chat_messages.id = ?", refID).
		Limit(1).
		Scan(&rows).Error; err != nil {
		return nil, apperr.Store(err, "load chat message")
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("post not found")
	}
	return &rows[0], nil
}

// GetPost 后台详情，已隐藏的记录也能取到，保留的正文一并返回
func (s *ModerationService) GetPost(ctx context.Context, admin identity.Identity, rawID string) (*Post, error) {
	if err := admin.RequireAdmin(); err != nil {
		return nil, err
	}
	g, err := ParseGlobalID(rawID)
	if err != nil {
		return nil, err
	}

	var post Post
	switch g.Source {
	case models.SourceFeedback:
		entry, err := s.entries.GetEntry(ctx, g.RefID)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return nil, apperr.NotFound("post not found")
			}
			return nil, err
		}
		post = entryPost(entry)
	default:
		row, err := s.loadChatRow(ctx, g.RefID)
		if err != nil {
			return nil, err
		}
		hidden, err := s.hasTombstone(ctx, g)
		if err != nil {
			return nil, err
		}
		post = chatPost(row, hidden)
	}

	posts := []Post{post}
	if err := s.fillNames(ctx, posts); err != nil {
		return nil, err
	}
	return &posts[0], nil
}

// SetDeleted 留言直接改状态；只追加的来源写入或移除墓碑
func (s *ModerationService) SetDeleted(ctx context.Context, admin identity.Identity, rawID string, deleted bool) error {
	if err := admin.RequireAdmin(); err != nil {
		return err
	}
	g, err := ParseGlobalID(rawID)
	if err != nil {
		return err
	}

	if g.Source == models.SourceFeedback {
		entry, err := s.entries.GetEntry(ctx, g.RefID)
		if err != nil {
			return err
		}
		if deleted {
			if entry.IsDeleted() {
				return nil
			}
			return s.entries.markDeleted(ctx, entry.ID, admin.Key())
		}
		return s.entries.restore(ctx, entry, admin.Key())
	}

	if _, err := s.loadChatRow(ctx, g.RefID); err != nil {
		return err
	}

	log := logger.For(ctx).WithFields(logrus.Fields{"post": g.String(), "by": admin.Key()})
	if deleted {
		stone := models.Tombstone{
			Source:      g.Source,
			SourceRefID: g.RefID,
			DeletedAt:   s.now().UTC(),
			DeletedBy:   admin.UserIDPtr(),
		}
		if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source"}, {Name: "source_ref_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"deleted_at", "deleted_by"}),
		}).Create(&stone).Error; err != nil {
			return apperr.Store(err, "write tombstone")
		}
		log.Info("tombstone written")
		return nil
	}

	res := s.db.WithContext(ctx).
		Where("source = ? AND source_ref_id = ?", g.Source, g.RefID).
		Delete(&models.Tombstone{})
	if res.Error != nil {
		return apperr.Store(res.Error, "remove tombstone")
	}
	if res.RowsAffected > 0 {
		log.Info("tombstone removed")
	}
	return nil
}

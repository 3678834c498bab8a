package services

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"huixiang/internal/apperr"
	"huixiang/internal/config"
	"huixiang/internal/identity"
	"huixiang/internal/logger"
	"huixiang/internal/models"
	"huixiang/internal/utils"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	maxAuthorNameLength = 40
	defaultAuthorName   = "Anonymous"
)

var linkPattern = regexp.MustCompile(`(?i)https?://|www\.`)

// CountLinks 统计 http(s):// 与 www. 出现的次数
func CountLinks(content string) int {
	return len(linkPattern.FindAllStringIndex(content, -1))
}

// StatusFilter 列表的状态筛选
type StatusFilter string

const (
	StatusActive  StatusFilter = "active"
	StatusDeleted StatusFilter = "deleted"
	StatusAll     StatusFilter = "all"
)

// ParseStatusFilter 未知值按 active 处理
func ParseStatusFilter(raw string) StatusFilter {
	switch StatusFilter(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusDeleted:
		return StatusDeleted
	case StatusAll:
		return StatusAll
	default:
		return StatusActive
	}
}

type CreateEntryInput struct {
	Content     string
	ContentType models.ContentType
	ParentID    string
	AuthorName  string
	ClientIP    string
}

type EntryFilter struct {
	ParentID string // 为空时列根留言
	Status   StatusFilter
	Search   string
	Page     int
	PageSize int
}

type EntryCounts struct {
	Active  int64 `json:"active"`
	Deleted int64 `json:"deleted"`
}

// EntryService 留言树的读写
type EntryService struct {
	db      *gorm.DB
	cfg     config.GuestbookConfig
	names   *ProfileService
	limiter *RateLimiter
	now     func() time.Time
}

func NewEntryService(gdb *gorm.DB, cfg *config.Config, names *ProfileService) *EntryService {
	s := &EntryService{
		db:    gdb,
		cfg:   cfg.Guestbook,
		names: names,
		now:   time.Now,
	}
	s.limiter = NewRateLimiter(s, cfg.RateLimit)
	return s
}

// WithClock 替换时钟，测试用
func (s *EntryService) WithClock(now func() time.Time) *EntryService {
	s.now = now
	s.limiter.WithClock(now)
	return s
}

// Policy 当前的软删除策略
func (s *EntryService) Policy() config.DeletePolicy {
	return s.cfg.DeletePolicy
}

func validateID(raw, what string) (string, error) {
	id := strings.TrimSpace(raw)
	if _, err := uuid.Parse(id); err != nil {
		return "", apperr.Validation("invalid " + what)
	}
	return id, nil
}

func (s *EntryService) validateContent(in *CreateEntryInput) error {
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" {
		return apperr.Validation("content is required")
	}
	if utf8.RuneCountInString(in.Content) > s.cfg.MaxContentLength {
		return apperr.Validation("content is too long")
	}
	if CountLinks(in.Content) > s.cfg.MaxLinks {
		return apperr.Validation("too many links")
	}

	switch in.ContentType {
	case "":
		in.ContentType = models.ContentPlain
	case models.ContentPlain, models.ContentMarkdown:
	default:
		return apperr.Validation("invalid content type")
	}

	in.AuthorName = strings.TrimSpace(in.AuthorName)
	if utf8.RuneCountInString(in.AuthorName) > maxAuthorNameLength {
		return apperr.Validation("author name is too long")
	}
	return nil
}

// CreateEntry 校验、限流后写入一条留言或回复。
// 回复的 depth 在 MaxDepth 处封顶，仍挂在真实的父节点下。
func (s *EntryService) CreateEntry(ctx context.Context, id identity.Identity, in CreateEntryInput) (*models.Entry, error) {
	if err := id.Require(); err != nil {
		return nil, err
	}
	if err := s.validateContent(&in); err != nil {
		return nil, err
	}

	var parentID string
	if strings.TrimSpace(in.ParentID) != "" {
		pid, err := validateID(in.ParentID, "parent id")
		if err != nil {
			return nil, err
		}
		parentID = pid
	}

	if err := s.limiter.Check(ctx, id, in.ClientIP); err != nil {
		return nil, err
	}

	entry := models.Entry{
		CreatedAt:   s.now().UTC(),
		Content:     in.Content,
		ContentType: in.ContentType,
		Status:      models.EntryActive,
		AuthorName:  s.authorName(id, in.AuthorName),
		ClientIP:    in.ClientIP,
	}
	// 每条记录只写当前身份模型下的一个字段
	if id.UserID != "" {
		entry.AuthorUserID = id.UserIDPtr()
	} else {
		entry.VisitorKey = id.VisitorKeyPtr()
	}

	if parentID != "" {
		parent, err := s.GetEntry(ctx, parentID)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return nil, apperr.NotFound("parent not found")
			}
			return nil, err
		}
		if parent.IsDeleted() {
			return nil, apperr.InvalidState("cannot reply to a deleted entry")
		}

		entry.ParentID = &parent.ID
		entry.RootID = parent.RootID
		if entry.RootID == "" {
			entry.RootID = parent.ID
		}
		entry.Depth = parent.Depth + 1
		if entry.Depth > s.cfg.MaxDepth {
			entry.Depth = s.cfg.MaxDepth
		}
		entry.ReplyToUserID = parent.AuthorUserID
		entry.ReplyToVisitorKey = parent.VisitorKey
		entry.ReplyToName = s.liveName(ctx, parent)
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, apperr.Store(err, "create entry")
	}

	logger.For(ctx).WithFields(logrus.Fields{
		"entry_id": entry.ID,
		"root_id":  entry.RootID,
		"depth":    entry.Depth,
		"identity": id.Key(),
	}).Info("entry created")
	return &entry, nil
}

// authorName 显式填写 > 资料昵称 > 默认值
func (s *EntryService) authorName(id identity.Identity, supplied string) string {
	if supplied != "" {
		return supplied
	}
	if id.DisplayName != "" {
		return utils.TruncateRunes(id.DisplayName, maxAuthorNameLength)
	}
	return defaultAuthorName
}

// liveName 有用户资料时用资料昵称覆盖快照
func (s *EntryService) liveName(ctx context.Context, e *models.Entry) string {
	if e.AuthorUserID == nil || s.names == nil {
		return e.AuthorName
	}
	names, err := s.names.Names(ctx, []string{*e.AuthorUserID})
	if err != nil {
		logger.For(ctx).WithError(err).Warn("display name lookup failed, using snapshot")
		return e.AuthorName
	}
	if name := names[*e.AuthorUserID]; name != "" {
		return name
	}
	return e.AuthorName
}

// GetEntry 取单条，不存在返回 NotFound
func (s *EntryService) GetEntry(ctx context.Context, entryID string) (*models.Entry, error) {
	entryID, err := validateID(entryID, "entry id")
	if err != nil {
		return nil, err
	}
	var entry models.Entry
	err = s.db.WithContext(ctx).Where("id = ?", entryID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("entry not found")
	}
	if err != nil {
		return nil, apperr.Store(err, "load entry")
	}
	return &entry, nil
}

func likePattern(q string) string {
	q = strings.ToLower(q)
	q = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(q)
	return "%" + q + "%"
}

func applyStatus(q *gorm.DB, status StatusFilter) *gorm.DB {
	switch status {
	case StatusDeleted:
		return q.Where("(status = ? OR deleted_at IS NOT NULL)", models.EntryDeleted)
	case StatusAll:
		return q
	default:
		return q.Where("status = ? AND deleted_at IS NULL", models.EntryActive)
	}
}

func applySearch(q *gorm.DB, status StatusFilter, search string) *gorm.DB {
	search = strings.TrimSpace(search)
	if search == "" {
		return q
	}
	pattern := likePattern(search)
	// 已删除的正文不参与搜索
	if status == StatusDeleted {
		return q.Where(`LOWER(author_name) LIKE ? ESCAPE '\'`, pattern)
	}
	return q.Where(`(LOWER(content) LIKE ? ESCAPE '\' OR LOWER(author_name) LIKE ? ESCAPE '\')`, pattern, pattern)
}

// ListEntries 不带 ParentID 时列根留言（新的在前），否则只列直接回复（旧的在前）
func (s *EntryService) ListEntries(ctx context.Context, f EntryFilter) ([]models.Entry, error) {
	page := f.Page
	if page < 1 {
		page = 1
	}
	size := utils.Clamp(f.PageSize, 1, 100)

	q := s.db.WithContext(ctx).Model(&models.Entry{})
	if strings.TrimSpace(f.ParentID) != "" {
		pid, err := validateID(f.ParentID, "parent id")
		if err != nil {
			return nil, err
		}
		q = q.Where("parent_id = ?", pid).Order("created_at ASC").Order("id ASC")
	} else {
		q = q.Where("parent_id IS NULL").Order("created_at DESC").Order("id DESC")
	}
	q = applySearch(applyStatus(q, f.Status), f.Status, f.Search)

	var entries []models.Entry
	if err := q.Offset((page - 1) * size).Limit(size).Find(&entries).Error; err != nil {
		return nil, apperr.Store(err, "list entries")
	}
	return entries, nil
}

// CountByStatus 根留言按状态计数，search 与列表使用同样的规则
func (s *EntryService) CountByStatus(ctx context.Context, search string) (EntryCounts, error) {
	var counts EntryCounts
	for _, status := range []StatusFilter{StatusActive, StatusDeleted} {
		q := s.db.WithContext(ctx).Model(&models.Entry{}).Where("parent_id IS NULL")
		q = applySearch(applyStatus(q, status), status, search)
		n := &counts.Active
		if status == StatusDeleted {
			n = &counts.Deleted
		}
		if err := q.Count(n).Error; err != nil {
			return EntryCounts{}, apperr.Store(err, "count entries")
		}
	}
	return counts, nil
}

// CommentCounts 每个 id 下未删除的直接回复数
func (s *EntryService) CommentCounts(ctx context.Context, ids []string) (map[string]int64, error) {
	out := make(map[string]int64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		ParentID string
		N        int64
	}
	if err := s.db.WithContext(ctx).Model(&models.Entry{}).
		Select("parent_id, COUNT(*) AS n").
		Where("parent_id IN ?", ids).
		Where("status = ? AND deleted_at IS NULL", models.EntryActive).
		Group("parent_id").
		Scan(&rows).Error; err != nil {
		return nil, apperr.Store(err, "count comments")
	}
	for _, r := range rows {
		out[r.ParentID] = r.N
	}
	return out, nil
}

// LoadSubtree 返回 entryID 的全部后代（不含自身），按层序排列。
// 同一线程的节点共享 root_id，一次取出后在内存里逐层展开，visited 防止环。
func (s *EntryService) LoadSubtree(ctx context.Context, entryID string) ([]models.Entry, error) {
	top, err := s.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	var thread []models.Entry
	if err := s.db.WithContext(ctx).
		Where("root_id = ? AND id <> ?", top.RootID, top.ID).
		Order("created_at ASC").Order("id ASC").
		Find(&thread).Error; err != nil {
		return nil, apperr.Store(err, "load thread")
	}

	children := make(map[string][]int, len(thread))
	for i := range thread {
		if thread[i].ParentID != nil {
			children[*thread[i].ParentID] = append(children[*thread[i].ParentID], i)
		}
	}

	visited := map[string]bool{top.ID: true}
	frontier := []string{top.ID}
	var out []models.Entry
	for len(frontier) > 0 {
		var next []string
		for _, pid := range frontier {
			for _, idx := range children[pid] {
				e := thread[idx]
				if visited[e.ID] {
					continue
				}
				visited[e.ID] = true
				out = append(out, e)
				next = append(next, e.ID)
			}
		}
		frontier = next
	}
	return out, nil
}

// SoftDelete 作者本人或管理员可删，重复删除直接成功
func (s *EntryService) SoftDelete(ctx context.Context, id identity.Identity, entryID string) error {
	if err := id.Require(); err != nil {
		return err
	}
	entry, err := s.GetEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if !id.Owns(entry.AuthorUserID, entry.VisitorKey) && !id.IsAdmin {
		return apperr.Forbidden("only the author or an admin can delete this entry")
	}
	if entry.IsDeleted() {
		return nil
	}
	return s.markDeleted(ctx, entry.ID, id.Key())
}

func (s *EntryService) markDeleted(ctx context.Context, entryID, actor string) error {
	updates := map[string]interface{}{
		"status":     models.EntryDeleted,
		"deleted_at": s.now().UTC(),
	}
	if s.cfg.DeletePolicy == config.DeleteBlank {
		updates["content"] = ""
	}
	// 只改仍然有效的行，并发删除时第二次更新不生效
	res := s.db.WithContext(ctx).Model(&models.Entry{}).
		Where("id = ? AND status = ? AND deleted_at IS NULL", entryID, models.EntryActive).
		Updates(updates)
	if res.Error != nil {
		return apperr.Store(res.Error, "delete entry")
	}
	if res.RowsAffected > 0 {
		logger.For(ctx).WithFields(logrus.Fields{
			"entry_id": entryID,
			"by":       actor,
			"policy":   s.cfg.DeletePolicy,
		}).Info("entry soft-deleted")
	}
	return nil
}

// Restore 管理员恢复，仅在 retain 策略下可用
func (s *EntryService) Restore(ctx context.Context, id identity.Identity, entryID string) error {
	if err := id.RequireAdmin(); err != nil {
		return err
	}
	entry, err := s.GetEntry(ctx, entryID)
	if err != nil {
		return err
	}
	return s.restore(ctx, entry, id.Key())
}

func (s *EntryService) restore(ctx context.Context, entry *models.Entry, actor string) error {
	if !entry.IsDeleted() {
		return nil
	}
	if s.cfg.DeletePolicy == config.DeleteBlank {
		return apperr.InvalidState("content was erased on delete and cannot be restored")
	}
	if err := s.db.WithContext(ctx).Model(&models.Entry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]interface{}{
			"status":     models.EntryActive,
			"deleted_at": nil,
		}).Error; err != nil {
		return apperr.Store(err, "restore entry")
	}
	logger.For(ctx).WithFields(logrus.Fields{"entry_id": entry.ID, "by": actor}).Info("entry restored")
	return nil
}

// CountByIdentitySince 实现 WindowCounter
func (s *EntryService) CountByIdentitySince(ctx context.Context, id identity.Identity, since time.Time) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Entry{}).Where("created_at >= ?", since)
	if id.UserID != "" {
		q = q.Where("author_user_id = ?", id.UserID)
	} else {
		q = q.Where("visitor_key = ?", id.VisitorKey)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, apperr.Store(err, "count recent entries")
	}
	return n, nil
}

// CountByOriginSince 实现 WindowCounter
func (s *EntryService) CountByOriginSince(ctx context.Context, origin string, since time.Time) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Entry{}).
		Where("client_ip = ? AND created_at >= ?", origin, since).
		Count(&n).Error; err != nil {
		return 0, apperr.Store(err, "count recent entries by origin")
	}
	return n, nil
}

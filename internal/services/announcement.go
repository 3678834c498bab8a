package services

import (
	"context"
	"html/template"
	"strings"
	"time"
	"unicode/utf8"

	"huixiang/internal/apperr"
	"huixiang/internal/identity"
	"huixiang/internal/logger"
	"huixiang/internal/models"
	"huixiang/internal/utils"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxAnnouncementLength      = 5000
	maxAnnouncementReactionLen = 16
	announcementListLimit      = 50
	defaultAdminName           = "管理员"
)

type AnnouncementView struct {
	models.Announcement
	ContentHTML template.HTML `json:"content_html,omitempty"`
}

// AnnouncementReactions 某条公告的表情计数与当前身份的选择
type AnnouncementReactions struct {
	Counts map[string]int64 `json:"counts"`
	My     *string          `json:"my"`
}

type AnnouncementService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAnnouncementService(gdb *gorm.DB) *AnnouncementService {
	return &AnnouncementService{db: gdb, now: time.Now}
}

// List 最新 50 条
func (s *AnnouncementService) List(ctx context.Context) ([]AnnouncementView, error) {
	var rows []models.Announcement
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(announcementListLimit).
		Find(&rows).Error; err != nil {
		return nil, apperr.Store(err, "list announcements")
	}
	out := make([]AnnouncementView, 0, len(rows))
	for _, a := range rows {
		v := AnnouncementView{Announcement: a}
		if a.ContentType == models.ContentMarkdown {
			v.ContentHTML = utils.RenderMarkdown(a.Content)
		}
		out = append(out, v)
	}
	return out, nil
}

// Create 仅管理员，默认 Markdown
func (s *AnnouncementService) Create(ctx context.Context, admin identity.Identity, content string, contentType models.ContentType) (*models.Announcement, error) {
	if err := admin.RequireAdmin(); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > maxAnnouncementLength {
		return nil, apperr.Validation("content must be 1-5000 characters")
	}
	switch contentType {
	case "":
		contentType = models.ContentMarkdown
	case models.ContentPlain, models.ContentMarkdown:
	default:
		return nil, apperr.Validation("invalid content type")
	}

	name := admin.DisplayName
	if name == "" {
		name = defaultAdminName
	}
	a := models.Announcement{
		CreatedAt:     s.now().UTC(),
		AuthorUserID:  admin.UserID,
		AuthorName:    name,
		AuthorIsAdmin: true,
		Content:       content,
		ContentType:   contentType,
	}
	if err := s.db.WithContext(ctx).Create(&a).Error; err != nil {
		return nil, apperr.Store(err, "create announcement")
	}
	logger.For(ctx).WithField("announcement_id", a.ID).Info("announcement published")
	return &a, nil
}

// React value 为空表示取消
func (s *AnnouncementService) React(ctx context.Context, id identity.Identity, announcementID, value string) error {
	if err := id.Require(); err != nil {
		return err
	}
	announcementID, err := validateID(announcementID, "announcement id")
	if err != nil {
		return err
	}
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) > maxAnnouncementReactionLen {
		return apperr.Validation("reaction is too long")
	}

	if value == "" {
		if err := s.db.WithContext(ctx).
			Where("announcement_id = ? AND identity_key = ?", announcementID, id.Key()).
			Delete(&models.AnnouncementReaction{}).Error; err != nil {
			return apperr.Store(err, "clear announcement reaction")
		}
		return nil
	}

	var a models.Announcement
	err = s.db.WithContext(ctx).Select("id").Where("id = ?", announcementID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("announcement not found")
	}
	if err != nil {
		return apperr.Store(err, "load announcement")
	}

	now := s.now().UTC()
	row := models.AnnouncementReaction{
		AnnouncementID: announcementID,
		IdentityKey:    id.Key(),
		UserID:         id.UserIDPtr(),
		Value:          value,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "announcement_id"}, {Name: "identity_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "user_id", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return apperr.Store(err, "set announcement reaction")
	}
	return nil
}

// Reactions 批量统计
func (s *AnnouncementService) Reactions(ctx context.Context, ids []string, viewer identity.Identity) (map[string]AnnouncementReactions, error) {
	out := make(map[string]AnnouncementReactions, len(ids))
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := validateID(id, "announcement id"); err != nil {
			continue
		}
		if _, ok := out[id]; ok {
			continue
		}
		out[id] = AnnouncementReactions{Counts: map[string]int64{}}
		valid = append(valid, id)
	}
	if len(valid) == 0 {
		return out, nil
	}

	var rows []struct {
		AnnouncementID string
		Value          string
		N              int64
		Mine           int64
	}
	if err := s.db.WithContext(ctx).Model(&models.AnnouncementReaction{}).
		Select(`announcement_id, value, COUNT(*) AS n,
			SUM(CASE WHEN identity_key = ? THEN 1 ELSE 0 END) AS mine`, viewer.Key()).
		Where("announcement_id IN ?", valid).
		Group("announcement_id, value").
		Scan(&rows).Error; err != nil {
		return nil, apperr.Store(err, "aggregate announcement reactions")
	}

	for _, r := range rows {
		agg := out[r.AnnouncementID]
		agg.Counts[r.Value] = r.N
		if r.Mine > 0 && !viewer.IsZero() {
			v := r.Value
			agg.My = &v
		}
		out[r.AnnouncementID] = agg
	}
	return out, nil
}

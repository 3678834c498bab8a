package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"huixiang/internal/apperr"
	"huixiang/internal/config"
	"huixiang/internal/identity"
	"huixiang/internal/logger"
	"huixiang/internal/models"
	"huixiang/internal/utils"

	"gorm.io/gorm"
)

const (
	maxContactMessageLength = 5000
	contactInboxLimit       = 50
)

type ContactInput struct {
	Name      string
	Email     string
	Message   string
	PagePath  string
	UserAgent string
	IP        string
}

// ContactService 站点反馈表单，按来源 IP 限流
type ContactService struct {
	db      *gorm.DB
	limiter *RateLimiter
	now     func() time.Time
}

func NewContactService(gdb *gorm.DB, cfg *config.Config) *ContactService {
	s := &ContactService{db: gdb, now: time.Now}
	s.limiter = NewRateLimiter(s, cfg.RateLimit)
	return s
}

func (s *ContactService) WithClock(now func() time.Time) *ContactService {
	s.now = now
	s.limiter.WithClock(now)
	return s
}

func optional(v string, max int) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	v = utils.TruncateRunes(v, max)
	return &v
}

// Submit 匿名提交，只按来源计数
func (s *ContactService) Submit(ctx context.Context, in ContactInput) (*models.ContactMessage, error) {
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return nil, apperr.Validation("message is required")
	}
	if utf8.RuneCountInString(msg) > maxContactMessageLength {
		return nil, apperr.Validation("message is too long")
	}
	if err := s.limiter.Check(ctx, identity.Identity{}, in.IP); err != nil {
		return nil, err
	}

	row := models.ContactMessage{
		CreatedAt: s.now().UTC(),
		Name:      optional(in.Name, 80),
		Email:     optional(in.Email, 160),
		Message:   msg,
		PagePath:  optional(in.PagePath, 255),
		UserAgent: utils.TruncateRunes(in.UserAgent, 512),
		IP:        in.IP,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, apperr.Store(err, "save contact message")
	}
	logger.For(ctx).WithField("contact_id", row.ID).Info("contact message received")
	return &row, nil
}

// Inbox 管理员查看最新 50 条
func (s *ContactService) Inbox(ctx context.Context, admin identity.Identity) ([]models.ContactMessage, error) {
	if err := admin.RequireAdmin(); err != nil {
		return nil, err
	}
	var rows []models.ContactMessage
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(contactInboxLimit).
		Find(&rows).Error; err != nil {
		return nil, apperr.Store(err, "list contact messages")
	}
	return rows, nil
}

// CountByIdentitySince 表单不区分身份
func (s *ContactService) CountByIdentitySince(ctx context.Context, id identity.Identity, since time.Time) (int64, error) {
	return 0, nil
}

func (s *ContactService) CountByOriginSince(ctx context.Context, origin string, since time.Time) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.ContactMessage{}).
		Where("ip = ? AND created_at >= ?", origin, since).
		Count(&n).Error; err != nil {
		return 0, apperr.Store(err, "count recent contact messages")
	}
	return n, nil
}

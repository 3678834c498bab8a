package services

import (
	"context"
	"strings"

	"huixiang/internal/apperr"
	"huixiang/internal/config"
	"huixiang/internal/logger"
	"huixiang/internal/models"
	"huixiang/internal/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const minPasswordLength = 6

// ProfileService 用户资料查询与账号创建
type ProfileService struct {
	db    *gorm.DB
	names *utils.TTLCache[string]
}

func NewProfileService(gdb *gorm.DB) *ProfileService {
	return &ProfileService{db: gdb, names: utils.GetNameCache()}
}

// GetUser 用户不存在时返回 nil, nil
func (s *ProfileService) GetUser(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, nil
	}
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store(err, "load user")
	}
	return &user, nil
}

// Names 批量取昵称，命中缓存的不再查库
func (s *ProfileService) Names(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	var missing []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if name, ok := s.names.Get(id); ok {
			out[id] = name
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	var users []models.User
	if err := s.db.WithContext(ctx).
		Select("id", "email", "display_name").
		Where("id IN ?", missing).
		Find(&users).Error; err != nil {
		return nil, apperr.Store(err, "load display names")
	}
	for i := range users {
		name := users[i].NameOrEmailPrefix()
		out[users[i].ID] = name
		s.names.Set(users[i].ID, name)
	}
	return out, nil
}

// Register 邮箱密码注册，本地注册的邮箱未经验证
func (s *ProfileService) Register(ctx context.Context, email, password, displayName string) (*models.User, error) {
	email = config.NormalizeEmail(email)
	if !strings.Contains(email, "@") || strings.HasPrefix(email, "@") {
		return nil, apperr.Validation("invalid email")
	}
	if len(password) < minPasswordLength {
		return nil, apperr.Validation("password must be at least 6 characters")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, apperr.Store(err, "check email")
	}
	if count > 0 {
		return nil, apperr.InvalidState("email already registered")
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	user := models.User{
		Email:       email,
		DisplayName: utils.TruncateRunes(strings.TrimSpace(displayName), 80),
		Password:    hash,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, apperr.Store(err, "create user")
	}

	logger.For(ctx).WithField("user_id", user.ID).Info("user registered")
	return &user, nil
}

// Authenticate 校验邮箱密码，失败统一返回 Unauthenticated
func (s *ProfileService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", config.NormalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Unauthenticated("invalid email or password")
	}
	if err != nil {
		return nil, apperr.Store(err, "load user")
	}
	if !utils.CheckPasswordHash(password, user.Password) {
		return nil, apperr.Unauthenticated("invalid email or password")
	}
	return &user, nil
}

// GoogleProfile 是 Google 回调里取到的用户信息
type GoogleProfile struct {
	ID            string
	Email         string
	VerifiedEmail bool
	Name          string
}

// UpsertGoogleUser 按 GoogleID 或邮箱找到用户，没有就创建。
// 只有 Google 确认过的邮箱才会把 EmailVerified 置为 true。
func (s *ProfileService) UpsertGoogleUser(ctx context.Context, p GoogleProfile) (*models.User, error) {
	if !p.VerifiedEmail {
		return nil, apperr.Forbidden("google email is not verified")
	}
	email := config.NormalizeEmail(p.Email)

	var user models.User
	err := s.db.WithContext(ctx).Where("google_id = ?", p.ID).Or("email = ?", email).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			Email:         email,
			EmailVerified: true,
			DisplayName:   utils.TruncateRunes(strings.TrimSpace(p.Name), 80),
			GoogleID:      p.ID,
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, apperr.Store(err, "create google user")
		}
		logger.For(ctx).WithField("user_id", user.ID).Info("user registered via google")
	case err != nil:
		return nil, apperr.Store(err, "load google user")
	default:
		// 老用户补绑 GoogleID，邮箱一致时标记为已验证
		updates := map[string]interface{}{}
		if user.GoogleID == "" {
			updates["google_id"] = p.ID
		}
		if !user.EmailVerified && config.NormalizeEmail(user.Email) == email {
			updates["email_verified"] = true
		}
		if len(updates) > 0 {
			if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
				return nil, apperr.Store(err, "bind google account")
			}
			if user.GoogleID == "" {
				user.GoogleID = p.ID
			}
			if _, ok := updates["email_verified"]; ok {
				user.EmailVerified = true
			}
			logger.For(ctx).WithFields(logrus.Fields{"user_id": user.ID, "updates": len(updates)}).Info("google account bound")
		}
	}
	return &user, nil
}

// UpdateDisplayName 修改昵称并清掉缓存
func (s *ProfileService) UpdateDisplayName(ctx context.Context, userID, name string) error {
	name = utils.TruncateRunes(strings.TrimSpace(name), 80)
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("display_name", name).Error; err != nil {
		return apperr.Store(err, "update display name")
	}
	s.names.Delete(userID)
	return nil
}

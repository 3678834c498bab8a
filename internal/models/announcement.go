package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Announcement 管理员公告
type Announcement struct {
	ID            string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt     time.Time   `gorm:"not null;index" json:"created_at"`
	AuthorUserID  string      `gorm:"type:varchar(36);not null" json:"author_user_id"`
	AuthorName    string      `gorm:"size:80" json:"author_name"`
	AuthorIsAdmin bool        `gorm:"default:true" json:"author_is_admin"`
	Content       string      `gorm:"type:text;not null" json:"content"`
	ContentType   ContentType `gorm:"size:8;not null;default:'md'" json:"content_type"`
}

func (Announcement) TableName() string { return "feedback_announcements" }

func (a *Announcement) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// AnnouncementReaction 公告表情，值为任意短字符串
type AnnouncementReaction struct {
	AnnouncementID string    `gorm:"primaryKey;type:varchar(36)" json:"announcement_id"`
	IdentityKey    string    `gorm:"primaryKey;size:96" json:"-"`
	UserID         *string   `gorm:"type:varchar(36)" json:"user_id"`
	Value          string    `gorm:"size:16;not null" json:"value"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (AnnouncementReaction) TableName() string { return "feedback_announcement_reactions" }

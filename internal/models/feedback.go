package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContactMessage 站点反馈表单
type ContactMessage struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	Name      *string   `gorm:"size:80" json:"name"`
	Email     *string   `gorm:"size:160" json:"email"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	PagePath  *string   `gorm:"size:255" json:"page_path"`
	UserAgent string    `gorm:"size:512" json:"user_agent"`
	IP        string    `gorm:"size:64;index" json:"ip"`
}

func (ContactMessage) TableName() string { return "feedback" }

func (m *ContactMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

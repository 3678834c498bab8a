package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Email         string    `gorm:"uniqueIndex;not null" json:"email"`
	EmailVerified bool      `gorm:"default:false" json:"email_verified"`
	DisplayName   string    `gorm:"size:80" json:"display_name"`
	Password      string    `json:"-"` // bcrypt hash，OAuth 用户为空
	GoogleID      string    `gorm:"index" json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// NameOrEmailPrefix 昵称为空时退回邮箱前缀
func (u *User) NameOrEmailPrefix() string {
	if name := strings.TrimSpace(u.DisplayName); name != "" {
		return name
	}
	if i := strings.Index(u.Email, "@"); i > 0 {
		return u.Email[:i]
	}
	return u.Email
}

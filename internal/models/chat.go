package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatSession struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	UserID     *string   `gorm:"type:varchar(36);index" json:"user_id"`
	SessionKey *string   `gorm:"size:80;index" json:"session_key"`
	Title      string    `gorm:"size:120" json:"title"`
}

func (ChatSession) TableName() string { return "chat_sessions" }

func (s *ChatSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// ChatMessage 只追加，不提供任何更新路径
type ChatMessage struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt  time.Time `gorm:"not null;index" json:"created_at"`
	SessionID  string    `gorm:"type:varchar(36);not null;index" json:"session_id"`
	Role       string    `gorm:"size:16;not null" json:"role"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Model      string    `gorm:"size:64" json:"model"`
	TokenCount *int      `json:"token_count"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

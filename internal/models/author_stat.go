package models

import (
	"time"
)

// AuthorStat 按身份汇总的计数行，后台列表只读这张表
type AuthorStat struct {
	GroupKey         string    `gorm:"primaryKey;size:96" json:"group_key"`
	UserID           *string   `gorm:"type:varchar(36);index" json:"user_id"`
	ActiveCount      int64     `gorm:"not null;default:0" json:"active_count"`
	DeletedCount     int64     `gorm:"not null;default:0" json:"deleted_count"`
	ReactionCount    int64     `gorm:"not null;default:0" json:"reaction_count"`
	ChatSessionCount int64     `gorm:"not null;default:0" json:"chat_session_count"`
	RefreshedAt      time.Time `gorm:"not null" json:"refreshed_at"`
}

func (AuthorStat) TableName() string { return "author_stats" }

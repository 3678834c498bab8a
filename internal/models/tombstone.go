package models

import (
	"time"
)

type PostSource string

const (
	SourceFeedback PostSource = "feedback" // 留言板，可直接修改
	SourceChat     PostSource = "chat"     // 对话记录，只追加
)

// Tombstone 隐藏只追加来源中的一条记录，原记录不做任何修改
type Tombstone struct {
	Source      PostSource `gorm:"primaryKey;size:16" json:"source"`
	SourceRefID string     `gorm:"primaryKey;type:varchar(36)" json:"source_ref_id"`
	DeletedAt   time.Time  `gorm:"not null" json:"deleted_at"`
	DeletedBy   *string    `gorm:"type:varchar(36)" json:"deleted_by"`
}

func (Tombstone) TableName() string { return "admin_post_tombstones" }

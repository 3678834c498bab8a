package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EntryStatus string

const (
	EntryActive  EntryStatus = "active"
	EntryDeleted EntryStatus = "deleted"
)

type ContentType string

const (
	ContentPlain    ContentType = "plain"
	ContentMarkdown ContentType = "md"
)

// Entry 留言或回复，构成一棵树
type Entry struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ParentID *string `gorm:"type:varchar(36);index" json:"parent_id"` // 为空表示根留言
	RootID   string  `gorm:"type:varchar(36);not null;index" json:"root_id"`
	Depth    int     `gorm:"not null;default:0" json:"depth"`

	// 两种身份字段同时存在于历史数据中，归属判断需要两个都看
	AuthorUserID *string `gorm:"type:varchar(36);index" json:"author_user_id"`
	VisitorKey   *string `gorm:"size:80;index" json:"-"`
	AuthorName   string  `gorm:"size:80" json:"author_name"` // 发帖时的昵称快照

	Content     string      `gorm:"type:text;not null" json:"content"`
	ContentType ContentType `gorm:"size:8;not null;default:'plain'" json:"content_type"`

	Status    EntryStatus `gorm:"size:16;not null;default:'active';index" json:"status"`
	DeletedAt *time.Time  `gorm:"index" json:"deleted_at"`

	ReplyToUserID     *string `gorm:"type:varchar(36);index" json:"reply_to_user_id"`
	ReplyToVisitorKey *string `gorm:"size:80;index" json:"-"`
	ReplyToName       string  `gorm:"size:80" json:"reply_to_name"`

	ClientIP string `gorm:"size:64;index" json:"-"`
}

func (Entry) TableName() string { return "guestbook_entries" }

// BeforeCreate 在写入前分配 id，根留言的 RootID 因此可以一次写好
func (e *Entry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ParentID == nil && e.RootID == "" {
		e.RootID = e.ID
	}
	return nil
}

func (e *Entry) IsDeleted() bool {
	return e.Status == EntryDeleted || e.DeletedAt != nil
}

func (e *Entry) IsRoot() bool {
	return e.ParentID == nil
}

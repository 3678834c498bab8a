package models

import (
	"time"
)

type ReactionValue int

const (
	ReactionNone    ReactionValue = 0
	ReactionLike    ReactionValue = 1
	ReactionDislike ReactionValue = -1
)

// Reaction 每个 (entry, identity) 至多一行，删除即表示没有反应
type Reaction struct {
	EntryID     string        `gorm:"primaryKey;type:varchar(36)" json:"entry_id"`
	IdentityKey string        `gorm:"primaryKey;size:96" json:"-"`
	UserID      *string       `gorm:"type:varchar(36);index" json:"user_id"`
	Value       ReactionValue `gorm:"not null" json:"value"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `gorm:"index" json:"updated_at"`
}

func (Reaction) TableName() string { return "guestbook_reactions" }

package services

import (
	"context"
	"sort"
	"time"

	"huixiang/internal/apperr"
	"huixiang/internal/identity"
	"huixiang/internal/models"

	"gorm.io/gorm"
)

const (
	myEntriesLimit        = 30
	notificationScanLimit = 200
	notificationLimit     = 50
)

type NotificationKind string

const (
	NotifyComment  NotificationKind = "comment"
	NotifyReaction NotificationKind = "reaction"
)

// Notification 回复或反应提醒，由持久化的 reply_to 字段和反应行推导
type Notification struct {
	Type       NotificationKind     `json:"type"`
	CreatedAt  time.Time            `json:"createdAt"`
	EntryID    string               `json:"entryId"`
	Content    string               `json:"content,omitempty"`
	AuthorName string               `json:"authorName,omitempty"`
	Value      models.ReactionValue `json:"value,omitempty"`
	ParentID   *string              `json:"parentId,omitempty"`
	RootID     string               `json:"rootId,omitempty"`
}

type MeService struct {
	db *gorm.DB
}

func NewMeService(gdb *gorm.DB) *MeService {
	return &MeService{db: gdb}
}

// ownedBy 两个身份字段都要匹配
func ownedBy(q *gorm.DB, id identity.Identity, userCol, visitorCol string) *gorm.DB {
	switch {
	case id.UserID != "" && id.VisitorKey != "":
		return q.Where("("+userCol+" = ? OR "+visitorCol+" = ?)", id.UserID, id.VisitorKey)
	case id.UserID != "":
		return q.Where(userCol+" = ?", id.UserID)
	default:
		return q.Where(visitorCol+" = ?", id.VisitorKey)
	}
}

// MyEntries 当前身份发布的最新 30 条
func (s *MeService) MyEntries(ctx context.Context, id identity.Identity) ([]models.Entry, error) {
	if err := id.Require(); err != nil {
		return nil, err
	}
	var rows []models.Entry
	q := ownedBy(s.db.WithContext(ctx).Model(&models.Entry{}), id, "author_user_id", "visitor_key")
	if err := q.Order("created_at DESC").Limit(myEntriesLimit).Find(&rows).Error; err != nil {
		return nil, apperr.Store(err, "list my entries")
	}
	return rows, nil
}

// Notifications 别人给我的回复与反应，新的在前，最多 50 条
func (s *MeService) Notifications(ctx context.Context, id identity.Identity) ([]Notification, error) {
	if err := id.Require(); err != nil {
		return nil, err
	}
	gdb := s.db.WithContext(ctx)

	var replies []models.Entry
	q := ownedBy(gdb.Model(&models.Entry{}), id, "reply_to_user_id", "reply_to_visitor_key").
		Where("status = ? AND deleted_at IS NULL", models.EntryActive)
	if err := q.Order("created_at DESC").Limit(notificationLimit).Find(&replies).Error; err != nil {
		return nil, apperr.Store(err, "load replies")
	}

	items := make([]Notification, 0, notificationLimit)
	for i := range replies {
		r := &replies[i]
		if id.Owns(r.AuthorUserID, r.VisitorKey) {
			continue
		}
		items = append(items, Notification{
			Type:       NotifyComment,
			CreatedAt:  r.CreatedAt,
			EntryID:    r.ID,
			Content:    r.Content,
			AuthorName: r.AuthorName,
			ParentID:   r.ParentID,
			RootID:     r.RootID,
		})
	}

	var mine []string
	mq := ownedBy(gdb.Model(&models.Entry{}), id, "author_user_id", "visitor_key")
	if err := mq.Order("created_at DESC").Limit(notificationScanLimit).Pluck("id", &mine).Error; err != nil {
		return nil, apperr.Store(err, "load my entry ids")
	}
	if len(mine) > 0 {
		ownKeys := []string{id.Key()}
		if id.UserID != "" && id.VisitorKey != "" {
			ownKeys = append(ownKeys, identity.Anonymous(id.VisitorKey).Key())
		}
		var reactions []models.Reaction
		if err := gdb.Where("entry_id IN ?", mine).
			Where("identity_key NOT IN ?", ownKeys).
			Order("updated_at DESC").
			Limit(notificationLimit).
			Find(&reactions).Error; err != nil {
			return nil, apperr.Store(err, "load reactions to my entries")
		}
		for _, r := range reactions {
			items = append(items, Notification{
				Type:      NotifyReaction,
				CreatedAt: r.UpdatedAt,
				EntryID:   r.EntryID,
				Value:     r.Value,
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if len(items) > notificationLimit {
		items = items[:notificationLimit]
	}
	return items, nil
}

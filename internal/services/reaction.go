package services

import (
	"context"
	"time"

	"huixiang/internal/apperr"
	"huixiang/internal/identity"
	"huixiang/internal/logger"
	"huixiang/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReactionStats 单条留言的赞踩统计与当前身份的选择
type ReactionStats struct {
	Like       int64                `json:"like"`
	Dislike    int64                `json:"dislike"`
	MyReaction models.ReactionValue `json:"myReaction"`
}

// ReactionLedger 每个 (entry, identity) 至多一行
type ReactionLedger struct {
	db      *gorm.DB
	entries *EntryService
	now     func() time.Time
}

func NewReactionLedger(gdb *gorm.DB, entries *EntryService) *ReactionLedger {
	return &ReactionLedger{db: gdb, entries: entries, now: time.Now}
}

// ParseReactionValue 接受 like/dislike 或 1/-1
func ParseReactionValue(raw string) (models.ReactionValue, error) {
	switch raw {
	case "like", "1":
		return models.ReactionLike, nil
	case "dislike", "-1":
		return models.ReactionDislike, nil
	default:
		return models.ReactionNone, apperr.Validation("reaction must be like or dislike")
	}
}

// SetReaction 单行 upsert，改赞为踩对读者是原子的
func (l *ReactionLedger) SetReaction(ctx context.Context, id identity.Identity, entryID string, value models.ReactionValue) error {
	if err := id.Require(); err != nil {
		return err
	}
	if value != models.ReactionLike && value != models.ReactionDislike {
		return apperr.Validation("reaction must be like or dislike")
	}
	entry, err := l.entries.GetEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.IsDeleted() {
		return apperr.InvalidState("cannot react to a deleted entry")
	}

	now := l.now().UTC()
	row := models.Reaction{
		EntryID:     entry.ID,
		IdentityKey: id.Key(),
		UserID:      id.UserIDPtr(),
		Value:       value,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_id"}, {Name: "identity_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "user_id", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return apperr.Store(err, "set reaction")
	}

	logger.For(ctx).WithFields(logrus.Fields{
		"entry_id": entry.ID,
		"identity": row.IdentityKey,
		"value":    value,
	}).Debug("reaction set")
	return nil
}

// ClearReaction 删除当前身份的反应，没有时什么也不做
func (l *ReactionLedger) ClearReaction(ctx context.Context, id identity.Identity, entryID string) error {
	if err := id.Require(); err != nil {
		return err
	}
	entryID, err := validateID(entryID, "entry id")
	if err != nil {
		return err
	}
	if err := l.db.WithContext(ctx).
		Where("entry_id = ? AND identity_key = ?", entryID, id.Key()).
		Delete(&models.Reaction{}).Error; err != nil {
		return apperr.Store(err, "clear reaction")
	}
	return nil
}

// ApplyLegacy 旧接口：1 赞，-1 踩，0 取消
func (l *ReactionLedger) ApplyLegacy(ctx context.Context, id identity.Identity, entryID string, value int) error {
	switch models.ReactionValue(value) {
	case models.ReactionNone:
		return l.ClearReaction(ctx, id, entryID)
	case models.ReactionLike, models.ReactionDislike:
		return l.SetReaction(ctx, id, entryID, models.ReactionValue(value))
	default:
		return apperr.Validation("value must be 1, -1 or 0")
	}
}

// GetAggregate 一次分组查询得到所有 id 的统计，viewer 为空时 MyReaction 恒为 0
func (l *ReactionLedger) GetAggregate(ctx context.Context, entryIDs []string, viewer identity.Identity) (map[string]ReactionStats, error) {
	out := make(map[string]ReactionStats, len(entryIDs))
	ids := make([]string, 0, len(entryIDs))
	for _, id := range entryIDs {
		if _, ok := out[id]; ok || id == "" {
			continue
		}
		out[id] = ReactionStats{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return out, nil
	}

	// 登录后仍带着访客键时，两把键都算自己的；主键（user:）的取值优先
	primary, fallback := viewer.Key(), viewer.Key()
	if viewer.UserID != "" && viewer.VisitorKey != "" {
		fallback = identity.Anonymous(viewer.VisitorKey).Key()
	}

	var rows []struct {
		EntryID   string
		Likes     int64
		Dislikes  int64
		Mine      int64
		MineAlias int64
	}
	// 每个身份只有一行，所以 SUM 就是该身份的取值
	err := l.db.WithContext(ctx).Model(&models.Reaction{}).
		Select(`entry_id,
			SUM(CASE WHEN value = 1 THEN 1 ELSE 0 END) AS likes,
			SUM(CASE WHEN value = -1 THEN 1 ELSE 0 END) AS dislikes,
			SUM(CASE WHEN identity_key = ? THEN value ELSE 0 END) AS mine,
			SUM(CASE WHEN identity_key = ? THEN value ELSE 0 END) AS mine_alias`, primary, fallback).
		Where("entry_id IN ?", ids).
		Group("entry_id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Store(err, "aggregate reactions")
	}

	for _, r := range rows {
		stats := ReactionStats{Like: r.Likes, Dislike: r.Dislikes}
		if !viewer.IsZero() {
			mine := r.Mine
			if mine == 0 {
				mine = r.MineAlias
			}
			stats.MyReaction = models.ReactionValue(mine)
		}
		out[r.EntryID] = stats
	}
	return out, nil
}

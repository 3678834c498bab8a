package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"huixiang/internal/apperr"
	"huixiang/internal/config"
	"huixiang/internal/identity"
	"huixiang/internal/logger"
	"huixiang/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxAdminUsers = 1000

type PostCounts struct {
	Active  int64 `json:"active"`
	Deleted int64 `json:"deleted"`
}

type AdminUser struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	CreatedAt    time.Time  `json:"created_at"`
	Posts        PostCounts `json:"posts"`
	Reactions    int64      `json:"reactions"`
	ChatSessions int64      `json:"chat_sessions"`
}

// StatsService 维护按身份汇总的计数行，后台列表只读汇总表
type StatsService struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

func NewStatsService(gdb *gorm.DB, cfg *config.Config) *StatsService {
	return &StatsService{db: gdb, ttl: cfg.Moderation.StatsTTL, now: time.Now}
}

func (s *StatsService) WithClock(now func() time.Time) *StatsService {
	s.now = now
	return s
}

type groupCount struct {
	GroupKey string
	Active   int64
	Deleted  int64
}

const entryCountSelect = `%s AS group_key,
	SUM(CASE WHEN status = 'active' AND deleted_at IS NULL THEN 1 ELSE 0 END) AS active,
	SUM(CASE WHEN status = 'deleted' OR deleted_at IS NOT NULL THEN 1 ELSE 0 END) AS deleted`

// Refresh 用几条分组查询重算全部汇总行，并清掉不再出现的身份
func (s *StatsService) Refresh(ctx context.Context) (int, error) {
	now := s.now().UTC()
	rows := map[string]*models.AuthorStat{}
	get := func(key string, userID *string) *models.AuthorStat {
		if r, ok := rows[key]; ok {
			return r
		}
		r := &models.AuthorStat{GroupKey: key, UserID: userID, RefreshedAt: now}
		rows[key] = r
		return r
	}

	gdb := s.db.WithContext(ctx)

	var byUser []groupCount
	if err := gdb.Model(&models.Entry{}).
		Select(fmt.Sprintf(entryCountSelect, "author_user_id")).
		Where("author_user_id IS NOT NULL").
		Group("author_user_id").
		Scan(&byUser).Error; err != nil {
		return 0, apperr.Store(err, "count entries by user")
	}
	for _, g := range byUser {
		uid := g.GroupKey
		r := get("user:"+uid, &uid)
		r.ActiveCount, r.DeletedCount = g.Active, g.Deleted
	}

	var byVisitor []groupCount
	if err := gdb.Model(&models.Entry{}).
		Select(fmt.Sprintf(entryCountSelect, "visitor_key")).
		Where("author_user_id IS NULL AND visitor_key IS NOT NULL").
		Group("visitor_key").
		Scan(&byVisitor).Error; err != nil {
		return 0, apperr.Store(err, "count entries by visitor")
	}
	for _, g := range byVisitor {
		r := get("visitor:"+g.GroupKey, nil)
		r.ActiveCount, r.DeletedCount = g.Active, g.Deleted
	}

	var reactions []struct {
		IdentityKey string
		N           int64
	}
	if err := gdb.Model(&models.Reaction{}).
		Select("identity_key, COUNT(*) AS n").
		Group("identity_key").
		Scan(&reactions).Error; err != nil {
		return 0, apperr.Store(err, "count reactions by identity")
	}
	for _, rc := range reactions {
		var uid *string
		if strings.HasPrefix(rc.IdentityKey, "user:") {
			id := rc.IdentityKey[len("user:"):]
			uid = &id
		}
		get(rc.IdentityKey, uid).ReactionCount = rc.N
	}

	var sessions []struct {
		UserID string
		N      int64
	}
	if err := gdb.Model(&models.ChatSession{}).
		Select("user_id, COUNT(*) AS n").
		Where("user_id IS NOT NULL").
		Group("user_id").
		Scan(&sessions).Error; err != nil {
		return 0, apperr.Store(err, "count chat sessions by user")
	}
	for _, cs := range sessions {
		uid := cs.UserID
		get("user:"+uid, &uid).ChatSessionCount = cs.N
	}

	batch := make([]models.AuthorStat, 0, len(rows))
	for _, r := range rows {
		batch = append(batch, *r)
	}

	err := gdb.Transaction(func(tx *gorm.DB) error {
		if len(batch) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "group_key"}},
				UpdateAll: true,
			}).CreateInBatches(batch, 200).Error; err != nil {
				return err
			}
		}
		return tx.Where("refreshed_at < ?", now).Delete(&models.AuthorStat{}).Error
	})
	if err != nil {
		return 0, apperr.Store(err, "write author stats")
	}

	logger.For(ctx).WithFields(logrus.Fields{"rows": len(batch)}).Info("author stats refreshed")
	return len(batch), nil
}

// ensureFresh 汇总行过期时同步重算
func (s *StatsService) ensureFresh(ctx context.Context, force bool) error {
	if !force {
		var latest []models.AuthorStat
		if err := s.db.WithContext(ctx).
			Order("refreshed_at DESC").Limit(1).
			Find(&latest).Error; err != nil {
			return apperr.Store(err, "load author stats")
		}
		if len(latest) > 0 && s.now().UTC().Sub(latest[0].RefreshedAt) < s.ttl {
			return nil
		}
	}
	_, err := s.Refresh(ctx)
	return err
}

// ListUsers 用户列表附带汇总计数，新注册的在前
func (s *StatsService) ListUsers(ctx context.Context, admin identity.Identity, forceRefresh bool) ([]AdminUser, error) {
	if err := admin.RequireAdmin(); err != nil {
		return nil, err
	}
	if err := s.ensureFresh(ctx, forceRefresh); err != nil {
		return nil, err
	}

	var users []models.User
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Limit(maxAdminUsers).
		Find(&users).Error; err != nil {
		return nil, apperr.Store(err, "list users")
	}

	keys := make([]string, 0, len(users))
	for i := range users {
		keys = append(keys, "user:"+users[i].ID)
	}
	stats := map[string]models.AuthorStat{}
	if len(keys) > 0 {
		var rows []models.AuthorStat
		if err := s.db.WithContext(ctx).Where("group_key IN ?", keys).Find(&rows).Error; err != nil {
			return nil, apperr.Store(err, "load author stats")
		}
		for _, r := range rows {
			stats[r.GroupKey] = r
		}
	}

	out := make([]AdminUser, 0, len(users))
	for i := range users {
		u := &users[i]
		st := stats["user:"+u.ID]
		out = append(out, AdminUser{
			ID:           u.ID,
			Email:        u.Email,
			Name:         u.NameOrEmailPrefix(),
			CreatedAt:    u.CreatedAt,
			Posts:        PostCounts{Active: st.ActiveCount, Deleted: st.DeletedCount},
			Reactions:    st.ReactionCount,
			ChatSessions: st.ChatSessionCount,
		})
	}
	return out, nil
}

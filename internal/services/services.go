package services

import (
	"time"

	"huixiang/internal/config"
	"huixiang/internal/identity"

	"gorm.io/gorm"
)

// Services 启动时组装一次，之后只读
type Services struct {
	Config        *config.Config
	Profiles      *ProfileService
	Identity      *identity.Resolver
	Entries       *EntryService
	Reactions     *ReactionLedger
	Presenter     *Presenter
	Moderation    *ModerationService
	Chat          *ChatLog
	Stats         *StatsService
	Announcements *AnnouncementService
	Contact       *ContactService
	Me            *MeService
}

func New(gdb *gorm.DB, cfg *config.Config) *Services {
	profiles := NewProfileService(gdb)
	entries := NewEntryService(gdb, cfg, profiles)
	reactions := NewReactionLedger(gdb, entries)
	return &Services{
		Config:        cfg,
		Profiles:      profiles,
		Identity:      identity.NewResolver(profiles, cfg.AdminEmail),
		Entries:       entries,
		Reactions:     reactions,
		Presenter:     NewPresenter(entries, reactions, profiles),
		Moderation:    NewModerationService(gdb, entries, profiles),
		Chat:          NewChatLog(gdb),
		Stats:         NewStatsService(gdb, cfg),
		Announcements: NewAnnouncementService(gdb),
		Contact:       NewContactService(gdb, cfg),
		Me:            NewMeService(gdb),
	}
}

// WithClock 统一替换所有服务的时钟，测试用
func (s *Services) WithClock(now func() time.Time) *Services {
	s.Entries.WithClock(now)
	s.Reactions.now = now
	s.Moderation.WithClock(now)
	s.Chat.WithClock(now)
	s.Stats.WithClock(now)
	s.Announcements.now = now
	s.Contact.WithClock(now)
	return s
}

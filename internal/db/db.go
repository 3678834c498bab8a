package db

import (
	"huixiang/internal/logger"
	"huixiang/internal/models"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// Init 连接 PostgreSQL 并执行迁移
func Init(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	logger.For(nil).Info("Database connection established")

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	logger.For(nil).Info("Database migration completed")

	DB = gdb
	return gdb, nil
}

// Migrate 自动迁移所有表，测试中对 sqlite 复用同一份定义
func Migrate(gdb *gorm.DB) error {
	err := gdb.AutoMigrate(
		&models.User{},
		&models.Entry{},
		&models.Reaction{},
		&models.Tombstone{},
		&models.ChatSession{},
		&models.ChatMessage{},
		&models.ContactMessage{},
		&models.Announcement{},
		&models.AnnouncementReaction{},
		&models.AuthorStat{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}
	return nil
}

// Package dbtest opens throwaway in-memory databases for tests.
package dbtest

import (
	"testing"
	"time"

	"huixiang/internal/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open 返回一个已迁移的 sqlite 内存库，测试结束时关闭
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=off"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// 单连接，避免内存库在多连接下出现锁表
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Migrate(gdb))

	t.Cleanup(func() { _ = sqlDB.Close() })
	return gdb
}

// Clock 每次调用前进一个固定步长，保证 created_at 严格递增
type Clock struct {
	Current time.Time
	Step    time.Duration
}

func NewClock() *Clock {
	return &Clock{
		Current: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Step:    time.Second,
	}
}

func (c *Clock) Now() time.Time {
	c.Current = c.Current.Add(c.Step)
	return c.Current
}

// Advance 直接跳过一段时间
func (c *Clock) Advance(d time.Duration) {
	c.Current = c.Current.Add(d)
}

package services

import (
	"context"
	"testing"

	"huixiang/internal/config"
	"huixiang/internal/db/dbtest"
	"huixiang/internal/identity"
	"huixiang/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   *Services
	clock *dbtest.Clock
	ctx   context.Context
}

func newFixture(t *testing.T, mutate ...func(c *config.Config)) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.AdminEmail = "admin@example.com"
	for _, m := range mutate {
		m(cfg)
	}
	gdb := dbtest.Open(t)
	clock := dbtest.NewClock()
	return &fixture{
		db:    gdb,
		svc:   New(gdb, cfg).WithClock(clock.Now),
		clock: clock,
		ctx:   context.Background(),
	}
}

func visitor(key string) identity.Identity {
	return identity.Anonymous(key)
}

func admin() identity.Identity {
	return identity.Identity{UserID: "00000000-0000-4000-8000-0000000000ad", DisplayName: "Admin", IsAdmin: true}
}

func (f *fixture) post(t *testing.T, who identity.Identity, content, parentID string) *models.Entry {
	t.Helper()
	e, err := f.svc.Entries.CreateEntry(f.ctx, who, CreateEntryInput{Content: content, ParentID: parentID})
	require.NoError(t, err)
	return e
}

func (f *fixture) reload(t *testing.T, id string) *models.Entry {
	t.Helper()
	e, err := f.svc.Entries.GetEntry(f.ctx, id)
	require.NoError(t, err)
	return e
}

func noRateLimit(c *config.Config) {
	c.RateLimit.Ceiling = 1000
}

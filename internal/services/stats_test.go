package services

import (
	"testing"
	"time"

	"huixiang/internal/apperr"
	"huixiang/internal/identity"
	"huixiang/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsRefreshAndListUsers(t *testing.T) {
	f := newFixture(t, noRateLimit)
	alice, err := f.svc.Profiles.Register(f.ctx, "alice@example.com", "password1", "Alice")
	require.NoError(t, err)
	bob, err := f.svc.Profiles.Register(f.ctx, "bob@example.com", "password1", "")
	require.NoError(t, err)

	asAlice := identity.Identity{UserID: alice.ID}
	e1 := f.post(t, asAlice, "one", "")
	f.post(t, asAlice, "two", "")
	require.NoError(t, f.svc.Entries.SoftDelete(f.ctx, asAlice, e1.ID))
	f.post(t, visitor("anon-key1"), "anon", "")
	f.chat(t, asAlice, "", "chat")
	e3 := f.post(t, visitor("anon-key1"), "three", "")
	require.NoError(t, f.svc.Reactions.SetReaction(f.ctx, asAlice, e3.ID, models.ReactionLike))

	n, err := f.svc.Stats.Refresh(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one row for alice, one for the visitor")

	var visitorRow models.AuthorStat
	require.NoError(t, f.db.Where("group_key = ?", "visitor:anon-key1").First(&visitorRow).Error)
	assert.Equal(t, int64(2), visitorRow.ActiveCount)

	users, err := f.svc.Stats.ListUsers(f.ctx, admin(), false)
	require.NoError(t, err)
	require.Len(t, users, 2)
	byID := map[string]AdminUser{}
	for _, u := range users {
		byID[u.ID] = u
	}
	a := byID[alice.ID]
	assert.Equal(t, PostCounts{Active: 1, Deleted: 1}, a.Posts)
	assert.Equal(t, int64(1), a.Reactions)
	assert.Equal(t, int64(1), a.ChatSessions)
	assert.Equal(t, "Alice", a.Name)
	assert.Equal(t, "bob", byID[bob.ID].Name)
	assert.Equal(t, PostCounts{}, byID[bob.ID].Posts)
}

func TestStatsServedFromSummaryUntilStale(t *testing.T) {
	f := newFixture(t, noRateLimit)
	alice, err := f.svc.Profiles.Register(f.ctx, "alice@example.com", "password1", "Alice")
	require.NoError(t, err)
	asAlice := identity.Identity{UserID: alice.ID}

	f.post(t, asAlice, "one", "")
	users, err := f.svc.Stats.ListUsers(f.ctx, admin(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), users[0].Posts.Active)

	f.post(t, asAlice, "two", "")
	users, err = f.svc.Stats.ListUsers(f.ctx, admin(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), users[0].Posts.Active, "summary rows are not recomputed per request")

	users, err = f.svc.Stats.ListUsers(f.ctx, admin(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), users[0].Posts.Active)

	f.post(t, asAlice, "three", "")
	f.clock.Advance(10 * time.Minute)
	users, err = f.svc.Stats.ListUsers(f.ctx, admin(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), users[0].Posts.Active)

	_, err = f.svc.Stats.ListUsers(f.ctx, asAlice, false)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestStatsRefreshDropsVanishedIdentities(t *testing.T) {
	f := newFixture(t)
	who := visitor("reactor-1")
	e := f.post(t, visitor("author-01"), "x", "")
	require.NoError(t, f.svc.Reactions.SetReaction(f.ctx, who, e.ID, models.ReactionLike))
	_, err := f.svc.Stats.Refresh(f.ctx)
	require.NoError(t, err)

	require.NoError(t, f.svc.Reactions.ClearReaction(f.ctx, who, e.ID))
	_, err = f.svc.Stats.Refresh(f.ctx)
	require.NoError(t, err)

	var n int64
	require.NoError(t, f.db.Model(&models.AuthorStat{}).Where("group_key = ?", "visitor:reactor-1").Count(&n).Error)
	assert.Zero(t, n)
}

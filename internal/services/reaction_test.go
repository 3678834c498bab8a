package services

import (
	"testing"

	"huixiang/internal/apperr"
	"huixiang/internal/identity"
	"huixiang/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countReactions(t *testing.T, f *fixture, entryID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Reaction{}).Where("entry_id = ?", entryID).Count(&n).Error)
	return n
}

func TestReactionUniqueness(t *testing.T) {
	f := newFixture(t)
	who := visitor("reactor-1")
	e := f.post(t, visitor("author-01"), "hello", "")

	require.NoError(t, f.svc.Reactions.SetReaction(f.ctx, who, e.ID, models.ReactionLike))
	require.NoError(t, f.svc.Reactions.SetReaction(f.ctx, who, e.ID, models.ReactionDislike))

	assert.Equal(t, int64(1), countReactions(t, f, e.ID))
	var row models.Reaction
	require.NoError(t, f.db.Where("entry_id = ?", e.ID).First(&row).Error)
	assert.Equal(t, models.ReactionDislike, row.Value)
	assert.Equal(t, "visitor:reactor-1", row.IdentityKey)

	agg, err := f.svc.Reactions.GetAggregate(f.ctx, []string{e.ID}, who)
	require.NoError(t, err)
	assert.Equal(t, ReactionStats{Like: 0, Dislike: 1, MyReaction: models.ReactionDislike}, agg[e.ID])
}

func TestClearReaction(t *testing.T) {
	f := newFixture(t)
	who := visitor("reactor-1")
	e := f.post(t, visitor("author-01"), "hello", "")

	// 没有反应时清除是空操作
	require.NoError(t, f.svc.Reactions.ClearReaction(f.ctx, who, e.ID))

	require.NoError(t, f.svc.Reactions.SetReaction(f.ctx, who, e.ID, models.ReactionLike))
	require.NoError(t, f.svc.Reactions.ClearReaction(f.ctx, who, e.ID))
	require.NoError(t, f.svc.Reactions.ClearReaction(f.ctx, who, e.ID))
	assert.Equal(t, int64(0), countReactions(t, f, e.ID))

	// 先清后设可以安全重试
	require.NoError(t, f.svc.Reactions.SetReaction(f.ctx, who, e.ID, models.ReactionLike))
	require.NoError(t, f.svc.Reactions.SetReaction(f.ctx, who, e.ID, models.ReactionLike))
	assert.Equal(t, int64(1), countReactions(t, f, e.ID))
}

func TestReactionErrors(t *testing.T) {
	f := newFixture(t)
	owner := visitor("author-01")
	e := f.post(t, owner, "hello", "")

	err := f.svc.Reactions.SetReaction(f.ctx, identity.Identity{}, e.ID, models.ReactionLike)
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))

	err = f.svc.Reactions.SetReaction(f.ctx, owner, e.ID, models.ReactionValue(7))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	err = f.svc.Reactions.SetReaction(f.ctx, owner, "6f1c2a52-1111-4a4a-9c9c-000000000000", models.ReactionLike)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, f.svc.Entries.SoftDelete(f.ctx, owner, e.ID))
	err = f.svc.Reactions.SetReaction(f.ctx, owner, e.ID, models.ReactionLike)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	err = f.svc.Reactions.ClearReaction(f.ctx, owner, "bad id")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestGetAggregateBatch(t *testing.T) {
	f := newFixture(t, noRateLimit)
	a := f.post(t, visitor("author-01"), "a", "")
	b := f.post(t, visitor("author-01"), "b", "")
	c := f.post(t, visitor("author-01"), "c", "")

	viewer := visitor("viewer-01")
	require.NoError(t, f.svc.Reactions.SetReaction(f.ctx, viewer, a.ID, models.ReactionLike))
	require.NoError(t, f.svc.Reactions.SetReaction(f.ctx, visitor("viewer-02"), a.ID, models.ReactionLike))
	require.NoError(t, f.svc.Reactions.SetReaction(f.ctx, visitor("viewer-03"), a.ID, models.ReactionDislike))
	user := identity.Identity{UserID: "6f1c2a52-4444-4a4a-9c9c-000000000000"}
	require.NoError(t, f.svc.Reactions.SetReaction(f.ctx, user, b.ID, models.ReactionDislike))

	agg, err := f.svc.Reactions.GetAggregate(f.ctx, []string{a.ID, b.ID, c.ID, a.ID}, viewer)
	require.NoError(t, err)
	require.Len(t, agg, 3)
	assert.Equal(t, ReactionStats{Like: 2, Dislike: 1, MyReaction: models.ReactionLike}, agg[a.ID])
	assert.Equal(t, ReactionStats{Like: 0, Dislike: 1, MyReaction: models.ReactionNone}, agg[b.ID])
	assert.Equal(t, ReactionStats{}, agg[c.ID])

	anon, err := f.svc.Reactions.GetAggregate(f.ctx, []string{a.ID}, identity.Identity{})
	require.NoError(t, err)
	assert.Equal(t, models.ReactionNone, anon[a.ID].MyReaction)

	empty, err := f.svc.Reactions.GetAggregate(f.ctx, nil, viewer)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGetAggregateCountsVisitorKeyAfterLogin(t *testing.T) {
	f := newFixture(t)
	e := f.post(t, visitor("author-01"), "hello", "")
	other := f.post(t, visitor("author-01"), "world", "")

	require.NoError(t, f.svc.Reactions.SetReaction(f.ctx, visitor("reactor-9"), e.ID, models.ReactionLike))
	loggedIn := identity.Identity{UserID: "6f1c2a52-5555-4a4a-9c9c-000000000000", VisitorKey: "reactor-9"}
	require.NoError(t, f.svc.Reactions.SetReaction(f.ctx, loggedIn, other.ID, models.ReactionDislike))
	require.NoError(t, f.svc.Reactions.SetReaction(f.ctx, visitor("reactor-9"), other.ID, models.ReactionLike))

	agg, err := f.svc.Reactions.GetAggregate(f.ctx, []string{e.ID, other.ID}, loggedIn)
	require.NoError(t, err)
	assert.Equal(t, models.ReactionLike, agg[e.ID].MyReaction, "reaction made before login still counts")
	assert.Equal(t, models.ReactionDislike, agg[other.ID].MyReaction, "user key wins over visitor key")

	agg, err = f.svc.Reactions.GetAggregate(f.ctx, []string{e.ID}, identity.Identity{UserID: loggedIn.UserID})
	require.NoError(t, err)
	assert.Equal(t, models.ReactionNone, agg[e.ID].MyReaction)
}

func TestApplyLegacy(t *testing.T) {
	f := newFixture(t)
	who := visitor("reactor-1")
	e := f.post(t, visitor("author-01"), "hello", "")

	require.NoError(t, f.svc.Reactions.ApplyLegacy(f.ctx, who, e.ID, 1))
	require.NoError(t, f.svc.Reactions.ApplyLegacy(f.ctx, who, e.ID, -1))
	assert.Equal(t, int64(1), countReactions(t, f, e.ID))
	require.NoError(t, f.svc.Reactions.ApplyLegacy(f.ctx, who, e.ID, 0))
	assert.Equal(t, int64(0), countReactions(t, f, e.ID))

	err := f.svc.Reactions.ApplyLegacy(f.ctx, who, e.ID, 2)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestParseReactionValue(t *testing.T) {
	v, err := ParseReactionValue("like")
	require.NoError(t, err)
	assert.Equal(t, models.ReactionLike, v)
	v, err = ParseReactionValue("-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReactionDislike, v)
	_, err = ParseReactionValue("love")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

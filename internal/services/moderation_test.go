package services

import (
	"testing"

	"huixiang/internal/apperr"
	"huixiang/internal/config"
	"huixiang/internal/identity"
	"huixiang/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGlobalID(t *testing.T) {
	const ref = "6f1c2a52-1111-4a4a-9c9c-000000000000"

	g, err := ParseGlobalID("chat:" + ref)
	require.NoError(t, err)
	assert.Equal(t, GlobalID{Source: models.SourceChat, RefID: ref}, g)
	assert.Equal(t, "chat:"+ref, g.String())

	g, err = ParseGlobalID(ref)
	require.NoError(t, err)
	assert.Equal(t, models.SourceFeedback, g.Source, "a bare uuid means the comment store")

	for _, bad := range []string{"", "chat:", ":" + ref, "mail:" + ref, "chat:not-a-uuid", "hello"} {
		_, err := ParseGlobalID(bad)
		assert.True(t, apperr.Is(err, apperr.KindValidation), bad)
	}
}

func (f *fixture) chat(t *testing.T, who identity.Identity, sessionID, content string) *models.ChatMessage {
	t.Helper()
	msg, err := f.svc.Chat.Append(f.ctx, who, AppendInput{SessionID: sessionID, Content: content})
	require.NoError(t, err)
	return msg
}

func postIDs(page PostPage) []string {
	ids := make([]string, 0, len(page.Items))
	for _, p := range page.Items {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestTombstoneTransparency(t *testing.T) {
	f := newFixture(t)
	user := identity.Identity{UserID: "6f1c2a52-5555-4a4a-9c9c-000000000000"}
	msg := f.chat(t, user, "", "please hide me")
	before, err := f.svc.Chat.GetMessage(f.ctx, msg.ID)
	require.NoError(t, err)

	g := GlobalID{Source: models.SourceChat, RefID: msg.ID}.String()
	require.NoError(t, f.svc.Moderation.SetDeleted(f.ctx, admin(), g, true))
	// 重复写墓碑不报错
	require.NoError(t, f.svc.Moderation.SetDeleted(f.ctx, admin(), g, true))

	page, err := f.svc.Moderation.ListUnifiedPosts(f.ctx, admin(), PostFilter{})
	require.NoError(t, err)
	assert.NotContains(t, postIDs(page), g)

	after, err := f.svc.Chat.GetMessage(f.ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after, "the source row is never touched")

	post, err := f.svc.Moderation.GetPost(f.ctx, admin(), g)
	require.NoError(t, err)
	assert.True(t, post.Deleted)
	assert.Equal(t, "please hide me", post.Content)

	var stones int64
	require.NoError(t, f.db.Model(&models.Tombstone{}).Count(&stones).Error)
	assert.Equal(t, int64(1), stones)

	require.NoError(t, f.svc.Moderation.SetDeleted(f.ctx, admin(), g, false))
	page, err = f.svc.Moderation.ListUnifiedPosts(f.ctx, admin(), PostFilter{})
	require.NoError(t, err)
	assert.Contains(t, postIDs(page), g)
}

func TestModerationFeedbackToggle(t *testing.T) {
	f := newFixture(t)
	e := f.post(t, visitor("author-01"), "spam", "")
	g := GlobalID{Source: models.SourceFeedback, RefID: e.ID}.String()

	require.NoError(t, f.svc.Moderation.SetDeleted(f.ctx, admin(), e.ID, true))
	assert.True(t, f.reload(t, e.ID).IsDeleted())

	var stones int64
	require.NoError(t, f.db.Model(&models.Tombstone{}).Count(&stones).Error)
	assert.Zero(t, stones, "mutable sources are updated in place")

	post, err := f.svc.Moderation.GetPost(f.ctx, admin(), g)
	require.NoError(t, err)
	assert.True(t, post.Deleted)

	require.NoError(t, f.svc.Moderation.SetDeleted(f.ctx, admin(), g, false))
	assert.False(t, f.reload(t, e.ID).IsDeleted())
}

func TestModerationUndeleteUnderBlankPolicy(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Guestbook.DeletePolicy = config.DeleteBlank })
	e := f.post(t, visitor("author-01"), "spam", "")

	require.NoError(t, f.svc.Moderation.SetDeleted(f.ctx, admin(), e.ID, true))
	err := f.svc.Moderation.SetDeleted(f.ctx, admin(), e.ID, false)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestModerationRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	e := f.post(t, visitor("author-01"), "x", "")
	plain := identity.Identity{UserID: "6f1c2a52-6666-4a4a-9c9c-000000000000"}

	_, err := f.svc.Moderation.ListUnifiedPosts(f.ctx, plain, PostFilter{})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = f.svc.Moderation.GetPost(f.ctx, visitor("author-01"), e.ID)
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
	err = f.svc.Moderation.SetDeleted(f.ctx, plain, e.ID, true)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	assert.False(t, f.reload(t, e.ID).IsDeleted())
}

func TestModerationNotFound(t *testing.T) {
	f := newFixture(t)
	missing := "6f1c2a52-1111-4a4a-9c9c-000000000000"

	_, err := f.svc.Moderation.GetPost(f.ctx, admin(), "chat:"+missing)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = f.svc.Moderation.GetPost(f.ctx, admin(), "feedback:"+missing)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	err = f.svc.Moderation.SetDeleted(f.ctx, admin(), "chat:"+missing, true)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	err = f.svc.Moderation.SetDeleted(f.ctx, admin(), "nope", true)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestUnifiedListingHidesOrphans(t *testing.T) {
	f := newFixture(t, noRateLimit)
	who := visitor("author-01")

	root := f.post(t, who, "root", "")
	reply := f.post(t, who, "reply", root.ID)
	deep := f.post(t, who, "deep", reply.ID)
	survivor := f.post(t, who, "other root", "")

	require.NoError(t, f.svc.Entries.SoftDelete(f.ctx, who, root.ID))

	page, err := f.svc.Moderation.ListUnifiedPosts(f.ctx, admin(), PostFilter{Source: models.SourceFeedback})
	require.NoError(t, err)
	ids := postIDs(page)
	assert.Equal(t, []string{"feedback:" + survivor.ID}, ids)
	assert.NotContains(t, ids, "feedback:"+reply.ID, "parent deleted")
	assert.NotContains(t, ids, "feedback:"+deep.ID, "root deleted")
}

func TestUnifiedListingMergesSources(t *testing.T) {
	f := newFixture(t, noRateLimit)
	user := identity.Identity{UserID: "6f1c2a52-7777-4a4a-9c9c-000000000000", VisitorKey: "user-visitor"}

	e1 := f.post(t, visitor("author-01"), "entry one", "")
	m1 := f.chat(t, user, "", "chat one")
	e2 := f.post(t, user, "entry two", "")
	m2 := f.chat(t, user, m1.SessionID, "chat two")

	page, err := f.svc.Moderation.ListUnifiedPosts(f.ctx, admin(), PostFilter{PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
	assert.Equal(t, []string{"chat:" + m2.ID, "feedback:" + e2.ID, "chat:" + m1.ID}, postIDs(page))
	assert.Equal(t, "user", page.Items[0].Role)
	assert.Equal(t, m1.SessionID, page.Items[0].SessionID)

	page, err = f.svc.Moderation.ListUnifiedPosts(f.ctx, admin(), PostFilter{Page: 2, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"feedback:" + e1.ID}, postIDs(page))

	page, err = f.svc.Moderation.ListUnifiedPosts(f.ctx, admin(), PostFilter{Query: "ONE"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"feedback:" + e1.ID, "chat:" + m1.ID}, postIDs(page))

	page, err = f.svc.Moderation.ListUnifiedPosts(f.ctx, admin(), PostFilter{User: "anonymous"})
	require.NoError(t, err)
	assert.Equal(t, []string{"feedback:" + e1.ID}, postIDs(page))

	page, err = f.svc.Moderation.ListUnifiedPosts(f.ctx, admin(), PostFilter{User: user.UserID, Source: models.SourceChat})
	require.NoError(t, err)
	assert.Equal(t, []string{"chat:" + m2.ID, "chat:" + m1.ID}, postIDs(page))
}

func TestFeedbackPagingSkipsHiddenThreads(t *testing.T) {
	f := newFixture(t, noRateLimit)
	who := visitor("author-01")
	a0 := f.post(t, who, "a0", "")
	a1 := f.post(t, who, "a1", "")
	r := f.post(t, who, "r", "")
	f.post(t, visitor("author-02"), "reply under r", r.ID)
	require.NoError(t, f.svc.Entries.SoftDelete(f.ctx, who, r.ID))
	a2 := f.post(t, who, "a2", "")
	a3 := f.post(t, who, "a3", "")

	var seen []string
	for p := 1; p <= 3; p++ {
		page, err := f.svc.Moderation.ListUnifiedPosts(f.ctx, admin(), PostFilter{
			Source: models.SourceFeedback, Page: p, PageSize: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(4), page.Total, "page %d", p)
		seen = append(seen, postIDs(page)...)
	}
	assert.Equal(t, []string{
		"feedback:" + a3.ID, "feedback:" + a2.ID,
		"feedback:" + a1.ID, "feedback:" + a0.ID,
	}, seen)
}

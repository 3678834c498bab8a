package services

import (
	"strings"
	"testing"

	"huixiang/internal/apperr"
	"huixiang/internal/identity"
	"huixiang/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatAppendCreatesSession(t *testing.T) {
	f := newFixture(t)
	who := visitor("chatter-1")

	first := f.chat(t, who, "", strings.Repeat("问", 40))
	var session models.ChatSession
	require.NoError(t, f.db.Where("id = ?", first.SessionID).First(&session).Error)
	assert.Equal(t, strings.Repeat("问", 30), session.Title)
	require.NotNil(t, session.SessionKey)
	assert.Equal(t, "chatter-1", *session.SessionKey)
	assert.Nil(t, session.UserID)

	reply, err := f.svc.Chat.Append(f.ctx, who, AppendInput{SessionID: first.SessionID, Role: "assistant", Content: "答", Model: "llama3"})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, reply.SessionID)

	sessions, err := f.svc.Chat.ListSessions(f.ctx, who)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
}

func TestChatValidationAndOwnership(t *testing.T) {
	f := newFixture(t)
	who := visitor("chatter-1")
	msg := f.chat(t, who, "", "hi")

	_, err := f.svc.Chat.Append(f.ctx, who, AppendInput{Content: "  "})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = f.svc.Chat.Append(f.ctx, who, AppendInput{Content: "x", Role: "tool"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = f.svc.Chat.Append(f.ctx, identity.Identity{}, AppendInput{Content: "x"})
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))

	_, err = f.svc.Chat.Append(f.ctx, visitor("intruder1"), AppendInput{SessionID: msg.SessionID, Content: "x"})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = f.svc.Chat.History(f.ctx, visitor("intruder1"), msg.SessionID, 0)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = f.svc.Chat.History(f.ctx, who, "6f1c2a52-1111-4a4a-9c9c-000000000000", 0)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestChatHistory(t *testing.T) {
	f := newFixture(t)
	who := identity.Identity{UserID: "6f1c2a52-8888-4a4a-9c9c-000000000000"}

	first := f.chat(t, who, "", "m0")
	var all []*models.ChatMessage
	all = append(all, first)
	for i := 1; i < 15; i++ {
		all = append(all, f.chat(t, who, first.SessionID, "m"+string(rune('a'+i))))
	}

	history, err := f.svc.Chat.History(f.ctx, who, first.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, history, DefaultHistoryLimit)
	assert.Equal(t, all[3].ID, history[0].ID, "oldest of the newest twelve first")
	assert.Equal(t, all[14].ID, history[11].ID)

	hidden := all[14]
	require.NoError(t, f.svc.Moderation.SetDeleted(f.ctx, admin(), "chat:"+hidden.ID, true))
	history, err = f.svc.Chat.History(f.ctx, who, first.SessionID, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, all[13].ID, history[2].ID)
}

func TestAdminListSessions(t *testing.T) {
	f := newFixture(t)
	user := identity.Identity{UserID: "6f1c2a52-7777-4a4a-9c9c-000000000000"}

	s1 := f.chat(t, user, "", "first")
	f.chat(t, user, s1.SessionID, "second")
	last := f.chat(t, user, s1.SessionID, "third")
	s2 := f.chat(t, visitor("chatter-2"), "", "anon")
	s3 := f.chat(t, user, "", "again")

	page, err := f.svc.Chat.AdminListSessions(f.ctx, admin(), ChatSessionFilter{Page: 1, PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 3)
	assert.Equal(t, []string{s3.SessionID, s2.SessionID, s1.SessionID},
		[]string{page.Items[0].ID, page.Items[1].ID, page.Items[2].ID})
	assert.Equal(t, int64(1), page.Items[0].MessageCount)
	assert.Equal(t, int64(3), page.Items[2].MessageCount)
	require.NotNil(t, page.Items[2].LastMessageAt)
	assert.True(t, page.Items[2].LastMessageAt.Equal(last.CreatedAt))

	byUser, err := f.svc.Chat.AdminListSessions(f.ctx, admin(), ChatSessionFilter{UserID: user.UserID, Page: 1, PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(2), byUser.Total)

	paged, err := f.svc.Chat.AdminListSessions(f.ctx, admin(), ChatSessionFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), paged.Total)
	require.Len(t, paged.Items, 1)
	assert.Equal(t, s1.SessionID, paged.Items[0].ID)

	_, err = f.svc.Chat.AdminListSessions(f.ctx, admin(), ChatSessionFilter{UserID: "nope", Page: 1, PageSize: 50})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = f.svc.Chat.AdminListSessions(f.ctx, user, ChatSessionFilter{Page: 1, PageSize: 50})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestAdminSessionTranscript(t *testing.T) {
	f := newFixture(t)
	who := visitor("chatter-3")

	first := f.chat(t, who, "", "q1")
	hidden := f.chat(t, who, first.SessionID, "q2")
	third := f.chat(t, who, first.SessionID, "q3")
	require.NoError(t, f.svc.Moderation.SetDeleted(f.ctx, admin(), "chat:"+hidden.ID, true))

	session, msgs, err := f.svc.Chat.AdminSession(f.ctx, admin(), first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, session.ID)
	require.Len(t, msgs, 3, "tombstoned rows stay in the raw transcript")
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.Equal(t, third.ID, msgs[2].ID)

	_, _, err = f.svc.Chat.AdminSession(f.ctx, who, first.SessionID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, _, err = f.svc.Chat.AdminSession(f.ctx, admin(), "6f1c2a52-1111-4a4a-9c9c-000000000000")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

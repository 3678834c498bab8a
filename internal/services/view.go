package services

import (
	"context"
	"html/template"
	"time"

	"huixiang/internal/identity"
	"huixiang/internal/models"
	"huixiang/internal/utils"
)

// EntryView 对外输出的留言，已删除的正文一律不返回
type EntryView struct {
	ID           string             `json:"id"`
	CreatedAt    time.Time          `json:"createdAt"`
	ParentID     *string            `json:"parentId"`
	RootID       string             `json:"rootId"`
	Depth        int                `json:"depth"`
	AuthorUserID *string            `json:"authorUserId"`
	AuthorName   string             `json:"authorName"`
	Content      string             `json:"content"`
	ContentType  models.ContentType `json:"contentType"`
	ContentHTML  template.HTML      `json:"contentHTML,omitempty"`
	Deleted      bool               `json:"deleted"`
	DeletedAt    *time.Time         `json:"deletedAt"`
	ReplyToName  string             `json:"replyToName,omitempty"`
	Mine         bool               `json:"mine"`
	Stats        ReactionStats      `json:"stats"`
	CommentCount *int64             `json:"commentCount,omitempty"`
}

// Presenter 把留言批量加工成 EntryView：昵称、反应统计和回复数都按批查询
type Presenter struct {
	entries   *EntryService
	reactions *ReactionLedger
	profiles  *ProfileService
}

func NewPresenter(entries *EntryService, reactions *ReactionLedger, profiles *ProfileService) *Presenter {
	return &Presenter{entries: entries, reactions: reactions, profiles: profiles}
}

// Present withCommentCounts 为真时附带未删除直接回复数
func (p *Presenter) Present(ctx context.Context, viewer identity.Identity, entries []models.Entry, withCommentCounts bool) ([]EntryView, error) {
	views := make([]EntryView, 0, len(entries))
	if len(entries) == 0 {
		return views, nil
	}

	ids := make([]string, 0, len(entries))
	var userIDs []string
	for i := range entries {
		ids = append(ids, entries[i].ID)
		if entries[i].AuthorUserID != nil {
			userIDs = append(userIDs, *entries[i].AuthorUserID)
		}
		if entries[i].ReplyToUserID != nil {
			userIDs = append(userIDs, *entries[i].ReplyToUserID)
		}
	}

	stats, err := p.reactions.GetAggregate(ctx, ids, viewer)
	if err != nil {
		return nil, err
	}
	names, err := p.profiles.Names(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	var counts map[string]int64
	if withCommentCounts {
		if counts, err = p.entries.CommentCounts(ctx, ids); err != nil {
			return nil, err
		}
	}

	for i := range entries {
		e := &entries[i]
		v := EntryView{
			ID:           e.ID,
			CreatedAt:    e.CreatedAt,
			ParentID:     e.ParentID,
			RootID:       e.RootID,
			Depth:        e.Depth,
			AuthorUserID: e.AuthorUserID,
			AuthorName:   e.AuthorName,
			ContentType:  e.ContentType,
			Deleted:      e.IsDeleted(),
			DeletedAt:    e.DeletedAt,
			ReplyToName:  e.ReplyToName,
			Mine:         viewer.Owns(e.AuthorUserID, e.VisitorKey),
			Stats:        stats[e.ID],
		}
		if e.AuthorUserID != nil && names[*e.AuthorUserID] != "" {
			v.AuthorName = names[*e.AuthorUserID]
		}
		if e.ReplyToUserID != nil && names[*e.ReplyToUserID] != "" {
			v.ReplyToName = names[*e.ReplyToUserID]
		}
		if !v.Deleted {
			v.Content = e.Content
			if e.ContentType == models.ContentMarkdown {
				v.ContentHTML = utils.RenderMarkdown(e.Content)
			}
		}
		if counts != nil {
			n := counts[e.ID]
			v.CommentCount = &n
		}
		views = append(views, v)
	}
	return views, nil
}

// PresentOne 单条版本
func (p *Presenter) PresentOne(ctx context.Context, viewer identity.Identity, entry *models.Entry) (EntryView, error) {
	views, err := p.Present(ctx, viewer, []models.Entry{*entry}, false)
	if err != nil {
		return EntryView{}, err
	}
	return views[0], nil
}

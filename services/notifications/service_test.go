package notifications

import (
	"context"
	"sync"
	"testing"

	"schoolpulse_go/database/dbtest"
	"schoolpulse_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeHub struct {
	mu   sync.Mutex
	sent map[string]int
}

func (h *fakeHub) BroadcastToUser(userID string, _ interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sent == nil {
		h.sent = map[string]int{}
	}
	h.sent[userID]++
}

type fakePusher struct {
	groups []string
	texts  []string
}

func (p *fakePusher) PushToGroup(groupID, text string) error {
	p.groups = append(p.groups, groupID)
	p.texts = append(p.texts, text)
	return nil
}

func TestNormalizeChannels(t *testing.T) {
	assert.Equal(t, []string{"normal"}, normalizeChannels(nil))
	assert.Equal(t, []string{"normal"}, normalizeChannels([]string{"sms"}))
	assert.Equal(t, []string{"popup", "line"}, normalizeChannels([]string{"popup", "line", "popup"}))
}

func TestNotifyDirect(t *testing.T) {
	db := dbtest.New(t)
	require.NoError(t, db.Create(&models.School{ID: "school_p1", Name: "Hill", PrincipalID: "p1", LineGroupID: "C123"}).Error)

	hub := &fakeHub{}
	pusher := &fakePusher{}
	svc := NewService(db, nil, true)
	svc.SetWebSocketHub(hub)
	svc.SetGroupPusher(pusher)

	ctx := context.Background()
	require.NoError(t, svc.Notify(ctx, []string{"u1", "u2"}, Notice{
		Title: "Training completed", Message: "Well done", Type: "bogus",
		Channels: []string{"popup", "line"}, SchoolID: "school_p1",
	}))

	var stored []models.Notification
	require.NoError(t, db.Order("user_id").Find(&stored).Error)
	require.Len(t, stored, 2)
	assert.Equal(t, TypeInfo, stored[0].Type)
	assert.Equal(t, []string{"popup", "line"}, []string(stored[0].Channels))

	assert.Equal(t, map[string]int{"u1": 1, "u2": 1}, hub.sent)
	assert.Equal(t, []string{"C123"}, pusher.groups)
	assert.Equal(t, "Training completed\nWell done", pusher.texts[0])

	assert.Error(t, svc.Notify(ctx, nil, Notice{Title: "x"}))
}

func TestReadStateAndListing(t *testing.T) {
	db := dbtest.New(t)
	svc := NewService(db, nil, false)
	ctx := context.Background()

	require.NoError(t, svc.Notify(ctx, []string{"u1"}, Notice{Title: "a", Message: "m", Type: TypeSuccess}))
	require.NoError(t, svc.Notify(ctx, []string{"u1"}, Notice{Title: "b", Message: "m", Type: TypeWarning}))
	require.NoError(t, svc.Notify(ctx, []string{"u2"}, Notice{Title: "c", Message: "m"}))

	n, err := svc.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	list, total, err := svc.List(ctx, "u1", ListFilter{Type: TypeWarning})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)

	_, err = svc.MarkRead(ctx, "u2", list[0].ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = svc.MarkRead(ctx, "u1", list[0].ID)
	require.NoError(t, err)

	unread := false
	list, total, err = svc.List(ctx, "u1", ListFilter{Read: &unread})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "a", list[0].Title)

	changed, err := svc.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	n, err = svc.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorIs(t, svc.Delete(ctx, "u1", "missing"), gorm.ErrRecordNotFound)
	assert.NoError(t, svc.Delete(ctx, "u1", list[0].ID))
}

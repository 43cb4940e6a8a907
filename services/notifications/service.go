package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"schoolpulse_go/models"
	"schoolpulse_go/utils"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Notification types
const (
	TypeInfo    = "info"
	TypeSuccess = "success"
	TypeWarning = "warning"
	TypeError   = "error"
)

// Delivery channels
const (
	ChannelNormal = "normal"
	ChannelPopup  = "popup"
	ChannelLine   = "line"
)

const redisListKey = "notifications:queue"

// Notice is the content of a notification sent to one or more users.
type Notice struct {
	Title     string   `json:"title"`
	Message   string   `json:"message"`
	Type      string   `json:"type"`
	ActionURL string   `json:"action_url,omitempty"`
	Channels  []string `json:"channels,omitempty"`
	// SchoolID selects the LINE group for the line channel.
	SchoolID string `json:"school_id,omitempty"`
}

// queued is the Redis payload; many user IDs share one notice.
type queued struct {
	UserIDs   []string  `json:"user_ids"`
	Notice    Notice    `json:"notice"`
	CreatedAt time.Time `json:"created_at"`
}

// WSHub pushes messages to connected users.
type WSHub interface {
	BroadcastToUser(userID string, message interface{})
}

// GroupPusher posts text to a chat group.
type GroupPusher interface {
	PushToGroup(groupID, text string) error
}

// Service creates notifications, through the Redis queue when enabled and
// directly in the database otherwise.
type Service struct {
	db       *gorm.DB
	redis    *redis.Client
	useRedis bool
	wsHub    WSHub
	line     GroupPusher
}

func NewService(db *gorm.DB, rc *redis.Client, useRedis bool) *Service {
	return &Service{
		db:       db,
		redis:    rc,
		useRedis: useRedis && rc != nil,
	}
}

// SetWebSocketHub sets the WebSocket hub for real-time notifications
func (s *Service) SetWebSocketHub(hub WSHub) {
	s.wsHub = hub
}

// SetGroupPusher enables the line channel.
func (s *Service) SetGroupPusher(p GroupPusher) {
	s.line = p
}

// normalizeChannels keeps only allowed values and ensures default channel
func normalizeChannels(in []string) []string {
	allowed := map[string]struct{}{ChannelNormal: {}, ChannelPopup: {}, ChannelLine: {}}
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, ch := range in {
		if _, ok := allowed[ch]; !ok {
			continue
		}
		if _, dup := seen[ch]; dup {
			continue
		}
		out = append(out, ch)
		seen[ch] = struct{}{}
	}
	if len(out) == 0 {
		out = []string{ChannelNormal}
	}
	return out
}

func normalizeType(t string) string {
	switch t {
	case TypeInfo, TypeSuccess, TypeWarning, TypeError:
		return t
	}
	return TypeInfo
}

// Notify stores a notice for every user and pushes it live.
func (s *Service) Notify(ctx context.Context, userIDs []string, n Notice) error {
	if len(userIDs) == 0 {
		return errors.New("no user ids")
	}
	n.Type = normalizeType(n.Type)
	n.Channels = normalizeChannels(n.Channels)

	if s.useRedis {
		b, err := json.Marshal(queued{UserIDs: userIDs, Notice: n, CreatedAt: time.Now().UTC()})
		if err != nil {
			return err
		}
		if err = s.redis.RPush(ctx, redisListKey, b).Err(); err == nil {
			return nil
		}
		logrus.WithError(err).Warn("notification queue unavailable, writing directly")
	}
	return s.createDirect(ctx, userIDs, n)
}

// NotifyAsync is Notify for callers that must not fail on notification errors.
func (s *Service) NotifyAsync(userIDs []string, n Notice) {
	if err := s.Notify(context.Background(), userIDs, n); err != nil {
		logrus.WithError(err).WithField("title", n.Title).Error("Failed to create notification")
	}
}

func (s *Service) createDirect(ctx context.Context, userIDs []string, n Notice) error {
	notifs := make([]models.Notification, 0, len(userIDs))
	for _, uid := range userIDs {
		notifs = append(notifs, models.Notification{
			UserID:    uid,
			Title:     n.Title,
			Message:   n.Message,
			Type:      n.Type,
			ActionURL: n.ActionURL,
			Channels:  models.StringList(n.Channels),
		})
	}
	if err := s.db.WithContext(ctx).Create(&notifs).Error; err != nil {
		return err
	}

	if s.wsHub != nil {
		for _, notif := range notifs {
			s.wsHub.BroadcastToUser(notif.UserID, map[string]interface{}{
				"type": "notification",
				"data": utils.ToNotificationDTO(notif),
			})
		}
	}

	if hasChannel(n.Channels, ChannelLine) {
		s.pushLine(ctx, n)
	}
	return nil
}

func hasChannel(channels []string, want string) bool {
	for _, ch := range channels {
		if ch == want {
			return true
		}
	}
	return false
}

func (s *Service) pushLine(ctx context.Context, n Notice) {
	if s.line == nil || n.SchoolID == "" {
		return
	}
	var school models.School
	if err := s.db.WithContext(ctx).Select("line_group_id").Where("id = ?", n.SchoolID).First(&school).Error; err != nil {
		return
	}
	if school.LineGroupID == "" {
		return
	}
	if err := s.line.PushToGroup(school.LineGroupID, fmt.Sprintf("%s\n%s", n.Title, n.Message)); err != nil {
		logrus.WithError(err).WithField("school_id", n.SchoolID).Warn("LINE push failed")
	}
}

// StartWorker drains the Redis queue every two seconds until stop is closed.
func (s *Service) StartWorker(stop <-chan struct{}) {
	if !s.useRedis {
		logrus.Info("Redis notifications disabled; worker not started")
		return
	}
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		ctx := context.Background()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.flushBatch(ctx, 200)
			}
		}
	}()
}

func (s *Service) flushBatch(ctx context.Context, batchSize int) {
	for i := 0; i < 5; i++ {
		vals, err := s.redis.LRange(ctx, redisListKey, 0, int64(batchSize-1)).Result()
		if err != nil || len(vals) == 0 {
			return
		}
		if err = s.redis.LTrim(ctx, redisListKey, int64(len(vals)), -1).Err(); err != nil {
			logrus.WithError(err).Warn("notification queue trim failed")
		}
		for _, raw := range vals {
			var q queued
			if err := json.Unmarshal([]byte(raw), &q); err != nil {
				continue
			}
			if err := s.createDirect(ctx, q.UserIDs, q.Notice); err != nil {
				logrus.WithError(err).Error("notification insert failed")
			}
		}
		if len(vals) < batchSize {
			return
		}
	}
}

// ListFilter narrows a user's notification list.
type ListFilter struct {
	Read  *bool
	Type  string
	Page  int
	Limit int
}

// List returns a page of the user's notifications, newest first, and the total.
func (s *Service) List(ctx context.Context, userID string, f ListFilter) ([]models.Notification, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if f.Read != nil {
		q = q.Where(map[string]interface{}{"read": *f.Read})
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	var out []models.Notification
	err := q.Order("created_at DESC").Limit(f.Limit).Offset((f.Page - 1) * f.Limit).Find(&out).Error
	return out, total, err
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where(map[string]interface{}{"user_id": userID, "read": false}).
		Count(&n).Error
	return n, err
}

// MarkRead returns gorm.ErrRecordNotFound when the notification is not the user's.
func (s *Service) MarkRead(ctx context.Context, userID, id string) (*models.Notification, error) {
	var n models.Notification
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
		return nil, err
	}
	if n.Read {
		return &n, nil
	}
	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&n).Updates(map[string]interface{}{"read": true, "read_at": now}).Error; err != nil {
		return nil, err
	}
	n.Read = true
	n.ReadAt = &now
	return &n, nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where(map[string]interface{}{"user_id": userID, "read": false}).
		Updates(map[string]interface{}{"read": true, "read_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

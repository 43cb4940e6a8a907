package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"schoolpulse_go/models"
	"schoolpulse_go/storage"
	"schoolpulse_go/utils"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MinArchiveAgeDays keeps recent logs queryable in the database.
const MinArchiveAgeDays = 7

// ActivityService reads the activity log and moves it between Redis, the
// database and archive storage.
type ActivityService struct {
	db    *gorm.DB
	redis *redis.Client
	store storage.FileStore
	now   func() time.Time
}

func NewActivityService(db *gorm.DB, rc *redis.Client, store storage.FileStore) *ActivityService {
	return &ActivityService{db: db, redis: rc, store: store, now: time.Now}
}

// Flush moves cached entries from Redis into the database.
func (s *ActivityService) Flush(ctx context.Context) (int, error) {
	if s.redis == nil {
		return 0, nil
	}
	keys, err := s.redis.ZRangeByScore(ctx, utils.ActivityQueueKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(s.now().Unix(), 10),
	}).Result()
	if err != nil {
		return 0, errors.Wrap(err, "reading activity queue")
	}

	flushed, failed := 0, 0
	for _, key := range keys {
		raw, err := s.redis.Get(ctx, key).Result()
		if err != nil {
			if err == redis.Nil {
				s.redis.ZRem(ctx, utils.ActivityQueueKey, key)
			} else {
				failed++
			}
			continue
		}
		var entry models.ActivityLog
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			logrus.WithError(err).WithField("key", key).Error("Dropping unreadable cached activity log")
			s.redis.ZRem(ctx, utils.ActivityQueueKey, key)
			failed++
			continue
		}
		if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
			failed++
			continue
		}
		pipe := s.redis.Pipeline()
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, utils.ActivityQueueKey, key)
		if _, err := pipe.Exec(ctx); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("Failed to remove flushed activity log from cache")
		}
		flushed++
	}
	if len(keys) > 0 {
		logrus.WithFields(logrus.Fields{"flushed": flushed, "failed": failed}).Info("Flushed cached activity logs")
	}
	return flushed, nil
}

type ActivityQuery struct {
	UserID   string
	Action   string
	Resource string
	From     string
	To       string
	Page     int
	Limit    int
}

func (s *ActivityService) filter(ctx context.Context, schoolID string, q ActivityQuery) (*gorm.DB, error) {
	query := s.db.WithContext(ctx).Model(&models.ActivityLog{}).Where("school_id = ?", schoolID)
	if q.UserID != "" {
		query = query.Where("user_id = ?", q.UserID)
	}
	if q.Action != "" {
		query = query.Where("action = ?", q.Action)
	}
	if q.Resource != "" {
		query = query.Where("resource = ?", q.Resource)
	}
	from, err := utils.ParseOptionalDate(q.From)
	if err != nil {
		return nil, badRequest("Dates must use the YYYY-MM-DD format")
	}
	to, err := utils.ParseOptionalDate(q.To)
	if err != nil {
		return nil, badRequest("Dates must use the YYYY-MM-DD format")
	}
	if from != nil {
		query = query.Where("created_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("created_at < ?", to.AddDate(0, 0, 1))
	}
	return query, nil
}

// List returns a page of the school's activity, newest first.
func (s *ActivityService) List(ctx context.Context, schoolID string, q ActivityQuery) ([]models.ActivityLog, int64, error) {
	query, err := s.filter(ctx, schoolID, q)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 50
	}
	if q.Page < 1 {
		q.Page = 1
	}
	var logs []models.ActivityLog
	err = query.Order("created_at DESC").Offset((q.Page - 1) * q.Limit).Limit(q.Limit).Find(&logs).Error
	return logs, total, err
}

var csvHeader = []string{"ID", "User ID", "Action", "Resource", "Resource ID", "IP Address", "User Agent", "Created At", "Details"}

func csvRow(l models.ActivityLog) []string {
	return []string{
		l.ID, l.UserID, l.Action, l.Resource, l.ResourceID, l.IPAddress, l.UserAgent,
		l.CreatedAt.UTC().Format("2006-01-02 15:04:05"), string(l.Details),
	}
}

// ExportCSV writes every matching entry as CSV.
func (s *ActivityService) ExportCSV(ctx context.Context, schoolID string, q ActivityQuery, w io.Writer) (int, error) {
	query, err := s.filter(ctx, schoolID, q)
	if err != nil {
		return 0, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}
	n := 0
	var batch []models.ActivityLog
	err = query.Order("created_at DESC").FindInBatches(&batch, 500, func(tx *gorm.DB, _ int) error {
		for _, l := range batch {
			if err := cw.Write(csvRow(l)); err != nil {
				return err
			}
			n++
		}
		return nil
	}).Error
	if err != nil {
		return n, err
	}
	cw.Flush()
	return n, cw.Error()
}

// ActivityStats summarises a school's activity.
type ActivityStats struct {
	Total             int64            `json:"total"`
	Today             int64            `json:"today"`
	ThisWeek          int64            `json:"this_week"`
	ThisMonth         int64            `json:"this_month"`
	ActionBreakdown   map[string]int64 `json:"action_breakdown"`
	ResourceBreakdown map[string]int64 `json:"resource_breakdown"`
}

func (s *ActivityService) Stats(ctx context.Context, schoolID string) (*ActivityStats, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.ActivityLog{}).Where("school_id = ?", schoolID)
	}
	out := &ActivityStats{ActionBreakdown: map[string]int64{}, ResourceBreakdown: map[string]int64{}}
	for _, c := range []struct {
		since *time.Time
		dst   *int64
	}{
		{nil, &out.Total},
		{&today, &out.Today},
		{ptrTime(today.AddDate(0, 0, -int(today.Weekday()))), &out.ThisWeek},
		{ptrTime(time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)), &out.ThisMonth},
	} {
		q := base()
		if c.since != nil {
			q = q.Where("created_at >= ?", *c.since)
		}
		if err := q.Count(c.dst).Error; err != nil {
			return nil, err
		}
	}
	for column, dst := range map[string]map[string]int64{"action": out.ActionBreakdown, "resource": out.ResourceBreakdown} {
		var rows []struct {
			Label string
			Total int64
		}
		if err := base().Select(column + " AS label, COUNT(*) AS total").Group(column).Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			dst[r.Label] = r.Total
		}
	}
	return out, nil
}

func ptrTime(t time.Time) *time.Time { return &t }

// Archive moves entries older than daysOld into a zip in object storage.
// It returns nil when nothing was old enough.
func (s *ActivityService) Archive(ctx context.Context, daysOld int) (*models.LogArchive, error) {
	if daysOld < MinArchiveAgeDays {
		return nil, badRequest(fmt.Sprintf("Logs younger than %d days cannot be archived", MinArchiveAgeDays))
	}
	cutoff := s.now().UTC().AddDate(0, 0, -daysOld)

	var logs []models.ActivityLog
	if err := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Order("created_at").Find(&logs).Error; err != nil {
		return nil, errors.Wrap(err, "loading logs to archive")
	}
	if len(logs) == 0 {
		return nil, nil
	}

	name := fmt.Sprintf("activity_logs_%s.zip", cutoff.Format(utils.DateLayout))
	data, err := zipLogs(logs, name, s.now().UTC())
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("logs/archived/%d/%02d/%s", cutoff.Year(), cutoff.Month(), name)
	if _, err := s.store.Put(ctx, key, storage.ContentType("zip"), data); err != nil {
		return nil, errors.Wrap(err, "uploading archive")
	}

	archive := &models.LogArchive{
		FileName:    name,
		StorageKey:  key,
		EndDate:     cutoff,
		RecordCount: len(logs),
		FileSize:    int64(len(data)),
		Status:      "completed",
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("created_at < ?", cutoff).Delete(&models.ActivityLog{}).Error; err != nil {
			return err
		}
		return tx.Create(archive).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "recording archive")
	}
	logrus.WithFields(logrus.Fields{"key": key, "records": len(logs)}).Info("Archived activity logs")
	return archive, nil
}

func zipLogs(logs []models.ActivityLog, name string, now time.Time) ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	jf, err := zw.Create("activity_logs.json")
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(jf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]interface{}{
		"file_name":    name,
		"export_date":  now,
		"record_count": len(logs),
		"date_range":   map[string]time.Time{"start": logs[0].CreatedAt, "end": logs[len(logs)-1].CreatedAt},
		"logs":         logs,
	}); err != nil {
		return nil, errors.Wrap(err, "encoding logs")
	}

	cf, err := zw.Create("activity_logs.csv")
	if err != nil {
		return nil, err
	}
	cw := csv.NewWriter(cf)
	_ = cw.Write(csvHeader)
	for _, l := range logs {
		_ = cw.Write(csvRow(l))
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Archives lists archive records, newest first.
func (s *ActivityService) Archives(ctx context.Context) ([]models.LogArchive, error) {
	var out []models.LogArchive
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error
	return out, err
}

// OpenArchive streams an archive back from storage.
func (s *ActivityService) OpenArchive(ctx context.Context, id string) (io.ReadCloser, string, error) {
	var archive models.LogArchive
	if err := s.db.WithContext(ctx).First(&archive, "id = ?", id).Error; err != nil {
		return nil, "", notFound(err)
	}
	r, err := s.store.Get(ctx, archive.StorageKey)
	if err != nil {
		return nil, "", errors.Wrap(err, "downloading archive")
	}
	return r, archive.FileName, nil
}

package middleware

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"schoolpulse_go/database"
	"schoolpulse_go/models"
	"schoolpulse_go/utils"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestID propagates X-Request-ID, generating one when the client sent none.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("X-Request-ID", id)
		c.Locals("request_id", id)
		return c.Next()
	}
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		fields := logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"duration":   time.Since(start).String(),
			"ip":         c.IP(),
			"user_agent": c.Get("User-Agent"),
		}
		if id, ok := c.Locals("request_id").(string); ok {
			fields["request_id"] = id
		}
		if user, uerr := GetCurrentUser(c); uerr == nil {
			fields["user_id"] = user.ID
		}
		logrus.WithFields(fields).Info("HTTP Request")

		return err
	}
}

// LogActivity records a user action. The entry is cached in Redis when
// available and flushed to the database later, otherwise it is written directly.
// Values taken from c are copied since fiber reuses their buffers once the
// handler returns.
func LogActivity(c *fiber.Ctx, action, resource, resourceID string, details interface{}) {
	var userID, schoolID string
	if user, err := GetCurrentUser(c); err == nil {
		userID = user.ID
		schoolID = user.SchoolID
	}

	now := time.Now().UTC()
	activityLog := models.ActivityLog{
		UserID:     userID,
		SchoolID:   schoolID,
		Action:     fiberutils.CopyString(action),
		Resource:   fiberutils.CopyString(resource),
		ResourceID: fiberutils.CopyString(resourceID),
		IPAddress:  fiberutils.CopyString(c.IP()),
		UserAgent:  fiberutils.CopyString(c.Get("User-Agent")),
	}
	activityLog.ID = uuid.NewString()
	activityLog.CreatedAt = now

	requestID, _ := c.Locals("request_id").(string)
	meta := map[string]interface{}{
		"details":        details,
		"integrity_hash": integrityHash(activityLog),
		"request_id":     requestID,
		"method":         c.Method(),
		"path":           c.Path(),
		"status_code":    c.Response().StatusCode(),
		"timestamp_utc":  now.Unix(),
	}
	if b, err := json.Marshal(meta); err == nil {
		activityLog.Details = b
	}

	go func(al models.ActivityLog) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("panic recovered in LogActivity goroutine")
			}
		}()

		if err := cacheActivityLog(context.Background(), database.GetRedisClient(), al); err == nil {
			return
		}
		if database.DB == nil {
			logrus.Error("database.DB is nil; cannot save activity log")
			return
		}
		if err := database.DB.Create(&al).Error; err != nil {
			logrus.WithError(err).Error("Failed to save activity log to database")
		}
	}(activityLog)
}

// integrityHash creates a hash for tamper detection
func integrityHash(l models.ActivityLog) string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s:%s:%s",
		l.UserID,
		l.Action,
		l.Resource,
		l.ResourceID,
		l.IPAddress,
		l.UserAgent,
		l.CreatedAt.Format(time.RFC3339),
	)
	return fmt.Sprintf("%x", md5.Sum([]byte(data)))
}

// cacheActivityLog stores an activity log in Redis with a 24-hour TTL
func cacheActivityLog(ctx context.Context, rc *redis.Client, l models.ActivityLog) error {
	if rc == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal activity log: %w", err)
	}

	key := utils.ActivityCacheKey(l.ID)
	if err := rc.Set(ctx, key, data, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("cache activity log: %w", err)
	}
	if err := rc.ZAdd(ctx, utils.ActivityQueueKey, &redis.Z{
		Score:  float64(l.CreatedAt.Unix()),
		Member: key,
	}).Err(); err != nil {
		logrus.WithError(err).Error("Failed to add log to processing queue")
	}
	return nil
}

// LogActivityMiddleware records successful mutating API calls.
func LogActivityMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodGet || c.Method() == fiber.MethodHead || c.Method() == fiber.MethodOptions ||
			strings.Contains(c.Path(), "/auth/") {
			return c.Next()
		}

		err := c.Next()

		var action string
		switch c.Method() {
		case fiber.MethodPost:
			action = "CREATE"
		case fiber.MethodPut, fiber.MethodPatch:
			action = "UPDATE"
		case fiber.MethodDelete:
			action = "DELETE"
		default:
			return err
		}

		if err == nil && c.Response().StatusCode() < 400 {
			LogActivity(c, action, ResourceFromPath(c.Path()), c.Params("id"), nil)
		}
		return err
	}
}

// ResourceFromPath names the resource of /api/<area>/<resource>/... paths.
func ResourceFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) > 0 && parts[0] == "api" {
		parts = parts[1:]
	}
	switch {
	case len(parts) >= 2 && (parts[0] == "principal" || parts[0] == "teacher"):
		return parts[1]
	case len(parts) >= 1:
		return parts[0]
	}
	return ""
}

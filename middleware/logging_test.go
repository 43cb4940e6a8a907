package middleware

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"schoolpulse_go/config"
	"schoolpulse_go/database"
	"schoolpulse_go/database/dbtest"
	"schoolpulse_go/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogActivityKeepsRequestValues(t *testing.T) {
	config.AppConfig = config.ForTesting()
	database.DB = dbtest.New(t)
	database.RedisClient = nil

	app := fiber.New()
	app.Use(LogActivityMiddleware())
	app.Put("/api/principal/teachers/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	const n = 25
	for i := 0; i < n; i++ {
		req := httptest.NewRequest(fiber.MethodPut, fmt.Sprintf("/api/principal/teachers/t-%02d", i), nil)
		req.Header.Set("User-Agent", fmt.Sprintf("agent-%02d", i))
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	require.Eventually(t, func() bool {
		var count int64
		database.DB.Model(&models.ActivityLog{}).Count(&count)
		return count == n
	}, 5*time.Second, 20*time.Millisecond)

	var logs []models.ActivityLog
	require.NoError(t, database.DB.Find(&logs).Error)
	seen := map[string]bool{}
	for _, l := range logs {
		assert.Equal(t, "UPDATE", l.Action)
		assert.Equal(t, "teachers", l.Resource)
		assert.Equal(t, strings.TrimPrefix(l.ResourceID, "t-"), strings.TrimPrefix(l.UserAgent, "agent-"), "row %s mixes requests", l.ID)
		seen[l.ResourceID] = true
	}
	assert.Len(t, seen, n)
}

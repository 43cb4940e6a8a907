package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"schoolpulse_go/config"
	"schoolpulse_go/database"
	"schoolpulse_go/database/dbtest"
	"schoolpulse_go/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *fiber.App {
	t.Helper()
	config.AppConfig = config.ForTesting()
	database.DB = dbtest.New(t)
	database.RedisClient = nil

	app := fiber.New()
	app.Get("/principal", JWTMiddleware(), RequireDashboard(models.RolePrincipal), func(c *fiber.Ctx) error {
		return c.SendString("principal ok")
	})
	app.Get("/teacher", JWTMiddleware(), RequireDashboard(models.RoleTeacher), func(c *fiber.Ctx) error {
		return c.SendString("teacher ok")
	})
	app.Get("/any", JWTMiddleware(), RequireRole(models.RolePrincipal, models.RoleTeacher), func(c *fiber.Ctx) error {
		user, err := GetCurrentUser(c)
		if err != nil {
			return err
		}
		return c.SendString(user.Email)
	})
	return app
}

func createUser(t *testing.T, email, role string, verified bool, status string) *models.User {
	t.Helper()
	u := &models.User{Email: email, Password: "x", Role: role, EmailVerified: verified, Status: status}
	require.NoError(t, database.DB.Create(u).Error)
	return u
}

func call(t *testing.T, app *fiber.App, path, token string) (int, map[string]interface{}, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	body := map[string]interface{}{}
	_ = json.Unmarshal(raw, &body)
	return resp.StatusCode, body, string(raw)
}

func TestJWTMiddlewareRejectsMissingAndBadTokens(t *testing.T) {
	app := setup(t)

	status, body, _ := call(t, app, "/any", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "/login", body["redirect"])

	status, body, _ = call(t, app, "/any", "not-a-jwt")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "Invalid token", body["error"])
}

func TestJWTMiddlewareRejectsDisabledUser(t *testing.T) {
	app := setup(t)
	u := createUser(t, "gone@school.org", models.RoleTeacher, true, models.StatusDisabled)
	token, err := GenerateToken(u)
	require.NoError(t, err)

	status, body, _ := call(t, app, "/any", token)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "User not found or inactive", body["error"])
}

func TestDashboardGuard(t *testing.T) {
	app := setup(t)
	principal := createUser(t, "head@school.org", models.RolePrincipal, true, models.StatusActive)
	unverified := createUser(t, "new@school.org", models.RolePrincipal, false, models.StatusActive)
	teacher := createUser(t, "teach@school.org", models.RoleTeacher, true, models.StatusActive)
	newTeacher := createUser(t, "fresh@school.org", models.RoleTeacher, false, models.StatusActive)

	tok := func(u *models.User) string {
		s, err := GenerateToken(u)
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name     string
		path     string
		token    string
		status   int
		redirect string
	}{
		{"principal allowed", "/principal", tok(principal), fiber.StatusOK, ""},
		{"teacher redirected to own dashboard", "/principal", tok(teacher), fiber.StatusForbidden, "/teacher/dashboard"},
		{"principal redirected from teacher area", "/teacher", tok(principal), fiber.StatusForbidden, "/principal/dashboard"},
		{"unverified principal", "/principal", tok(unverified), fiber.StatusForbidden, "/login?message=verify-email"},
		{"unverified teacher", "/teacher", tok(newTeacher), fiber.StatusForbidden, "/login?message=verify-email"},
		{"verified teacher", "/teacher", tok(teacher), fiber.StatusOK, ""},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			status, body, _ := call(t, app, tc.path, tc.token)
			assert.Equal(t, tc.status, status)
			if tc.redirect != "" {
				assert.Equal(t, tc.redirect, body["redirect"])
			}
		})
	}
}

func TestRequireRoleLoadsUser(t *testing.T) {
	app := setup(t)
	u := createUser(t, "who@school.org", models.RoleTeacher, true, models.StatusActive)
	token, err := GenerateToken(u)
	require.NoError(t, err)

	status, _, raw := call(t, app, "/any", token)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "who@school.org", raw)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestResourceFromPath(t *testing.T) {
	assert.Equal(t, "teachers", ResourceFromPath("/api/principal/teachers/abc"))
	assert.Equal(t, "lesson-plans", ResourceFromPath("/api/teacher/lesson-plans"))
	assert.Equal(t, "notifications", ResourceFromPath("/api/notifications/123/read"))
	assert.Equal(t, "", ResourceFromPath("/"))
}

package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"schoolpulse_go/config"
	"schoolpulse_go/controllers"
	"schoolpulse_go/database"
	"schoolpulse_go/database/dbtest"
	"schoolpulse_go/database/seeders"
	"schoolpulse_go/handlers"
	"schoolpulse_go/services"
	"schoolpulse_go/services/email"
	"schoolpulse_go/services/notifications"
	"schoolpulse_go/services/websocket"
	"schoolpulse_go/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	app    *fiber.App
	mailer *email.ConsoleSender
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithRedis(t, nil)
}

func newHarnessWithRedis(t *testing.T, rdb *redis.Client) *harness {
	t.Helper()
	cfg := config.ForTesting()
	config.AppConfig = cfg
	db := dbtest.New(t)
	database.DB = db
	database.RedisClient = rdb
	require.NoError(t, seeders.SeedBadges(db))

	store := storage.NewMemoryStore()
	mailer := email.NewConsoleSender(cfg, false)
	hub := websocket.NewHub()
	notify := notifications.NewService(db, nil, false)
	notify.SetWebSocketHub(hub)
	line, err := services.NewLineService(cfg)
	require.NoError(t, err)

	auth := services.NewAuthService(db, rdb, mailer, cfg)
	schools := services.NewSchoolService(db)
	trainings := services.NewTrainingService(db, notify)
	feedback := services.NewFeedbackService(db, notify)

	app := fiber.New()
	SetupRoutes(app, Controllers{
		Auth:          controllers.NewAuthController(auth),
		Teachers:      controllers.NewTeacherController(services.NewTeacherService(db, auth, notify, store, cfg)),
		Settings:      controllers.NewSettingsController(schools),
		Attendance:    controllers.NewAttendanceController(services.NewAttendanceService(db, notify, cfg)),
		Trainings:     controllers.NewTrainingController(trainings),
		Feedback:      controllers.NewFeedbackController(feedback),
		LessonPlans:   controllers.NewLessonPlanController(services.NewLessonPlanService(db, store, cfg)),
		Achievements:  controllers.NewAchievementController(services.NewAchievementService(db, notify)),
		Metrics:       controllers.NewMetricsController(services.NewMetricsService(db)),
		Dashboard:     controllers.NewDashboardController(services.NewDashboardService(db, notify, trainings, feedback), services.NewAnalyticsService(db, store)),
		Activity:      controllers.NewActivityController(services.NewActivityService(db, nil, store)),
		Notifications: controllers.NewNotificationController(notify),
		WebSocket:     controllers.NewWebSocketController(hub),
		Health:        controllers.NewHealthController(services.NewHealthService(db, nil, cfg, "test")),
		Line:          handlers.NewLineWebhookHandler(line, schools),
	})
	app.Use(NotFound)
	return &harness{app: app, mailer: mailer}
}

func (h *harness) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func (h *harness) emailToken(t *testing.T, address string) string {
	t.Helper()
	msg, ok := h.mailer.Last(address)
	require.True(t, ok, "no email sent to %s", address)
	var link string
	switch d := msg.Data.(type) {
	case email.LinkData:
		link = d.Link
	case email.InviteData:
		link = d.Link
	}
	i := strings.Index(link, "token=")
	require.GreaterOrEqual(t, i, 0)
	return link[i+len("token="):]
}

func (h *harness) login(t *testing.T, address, password, role string) (int, map[string]interface{}) {
	t.Helper()
	return h.do(t, fiber.MethodPost, "/api/auth/login", "", fiber.Map{"email": address, "password": password, "role": role})
}

// principal registers, verifies and signs in a principal.
func (h *harness) principal(t *testing.T, address string) string {
	t.Helper()
	status, _ := h.do(t, fiber.MethodPost, "/api/auth/register", "", fiber.Map{
		"name": "Pat Principal", "email": address, "password": "secret1",
		"confirm_password": "secret1", "school_name": "Hill School",
	})
	require.Equal(t, fiber.StatusCreated, status)
	status, _ = h.do(t, fiber.MethodPost, "/api/auth/verify-email", "", fiber.Map{"token": h.emailToken(t, address)})
	require.Equal(t, fiber.StatusOK, status)
	status, body := h.login(t, address, "secret1", "principal")
	require.Equal(t, fiber.StatusOK, status)
	return body["token"].(string)
}

func TestRegisterVerifyLogin(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, fiber.MethodPost, "/api/auth/register", "", fiber.Map{
		"name": "Pat Principal", "email": "pat@school.org", "password": "secret1",
		"confirm_password": "secret1", "school_name": "Hill School",
	})
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "/login?message=verification-sent", body["redirect"])

	// Unverified principals sign in but are sent to verification.
	status, body = h.login(t, "pat@school.org", "secret1", "principal")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["email_verified"])
	assert.Equal(t, "/verify-email", body["redirect"])
	status, body = h.do(t, fiber.MethodGet, "/api/principal/dashboard", body["token"].(string), nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "/login?message=verify-email", body["redirect"])

	status, _ = h.do(t, fiber.MethodPost, "/api/auth/verify-email", "", fiber.Map{"token": h.emailToken(t, "pat@school.org")})
	require.Equal(t, fiber.StatusOK, status)

	status, body = h.login(t, "pat@school.org", "secret1", "principal")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "/principal/dashboard", body["redirect"])
	token := body["token"].(string)

	status, body = h.do(t, fiber.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "school_"+user["id"].(string), user["school_id"])
	assert.Equal(t, "Hill School", user["school_name"])

	status, _ = h.do(t, fiber.MethodGet, "/api/principal/dashboard", token, nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestAuthErrors(t *testing.T) {
	h := newHarness(t)
	h.principal(t, "pat@school.org")

	tests := []struct {
		name   string
		path   string
		body   fiber.Map
		status int
		code   string
		error  string
	}{
		{
			name:   "wrong password",
			path:   "/api/auth/login",
			body:   fiber.Map{"email": "pat@school.org", "password": "nope12"},
			status: fiber.StatusUnauthorized,
			code:   "auth/invalid-login-credentials",
		},
		{
			name:   "role mismatch",
			path:   "/api/auth/login",
			body:   fiber.Map{"email": "pat@school.org", "password": "secret1", "role": "teacher"},
			status: fiber.StatusForbidden,
			code:   "auth/role-mismatch",
		},
		{
			name:   "duplicate registration",
			path:   "/api/auth/register",
			body:   fiber.Map{"name": "Pat", "email": "pat@school.org", "password": "secret1", "confirm_password": "secret1", "school_name": "Hill"},
			status: fiber.StatusConflict,
			code:   "auth/email-already-in-use",
		},
		{
			name:   "validation",
			path:   "/api/auth/register",
			body:   fiber.Map{"name": "P", "email": "bad", "password": "1", "confirm_password": "2", "school_name": ""},
			status: fiber.StatusBadRequest,
			error:  "Validation failed",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			status, body := h.do(t, fiber.MethodPost, tc.path, "", tc.body)
			assert.Equal(t, tc.status, status)
			if tc.code != "" {
				assert.Equal(t, tc.code, body["code"])
				assert.NotEmpty(t, body["error"])
			}
			if tc.error != "" {
				assert.Equal(t, tc.error, body["error"])
				assert.NotEmpty(t, body["errors"])
			}
		})
	}
}

// addTeacher creates a teacher and returns its id and temporary password.
func (h *harness) addTeacher(t *testing.T, principal, address string) (string, string) {
	t.Helper()
	status, body := h.do(t, fiber.MethodPost, "/api/principal/teachers", principal, fiber.Map{
		"full_name": "Tess Teacher", "email": address, "employee_id": "EMP1",
		"department": "Mathematics", "subjects": []string{"Mathematics"},
		"grade_levels": []string{"Grade 9"}, "joining_date": "2024-08-01",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	return body["teacher"].(map[string]interface{})["id"].(string), body["temp_password"].(string)
}

// acceptInvite sets a password through the invite link and signs in.
func (h *harness) acceptInvite(t *testing.T, address string) string {
	t.Helper()
	status, body := h.do(t, fiber.MethodPost, "/api/auth/reset-password", "", fiber.Map{
		"token": h.emailToken(t, address), "password": "chalk42", "confirm_password": "chalk42",
	})
	require.Equal(t, fiber.StatusOK, status, body)
	status, body = h.login(t, address, "chalk42", "teacher")
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "/teacher/dashboard", body["redirect"])
	return body["token"].(string)
}

func TestLogoutAndLockoutWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	h := newHarnessWithRedis(t, rdb)
	token := h.principal(t, "pat@school.org")

	status, _ := h.do(t, fiber.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	status, _ = h.do(t, fiber.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	status, body := h.do(t, fiber.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "Token has been revoked", body["error"])

	for i := 0; i < 5; i++ {
		status, _ = h.login(t, "pat@school.org", "wrong!", "principal")
		require.Equal(t, fiber.StatusUnauthorized, status)
	}
	status, body = h.login(t, "pat@school.org", "secret1", "principal")
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Equal(t, "auth/too-many-requests", body["code"])
}

func TestTeacherLifecycle(t *testing.T) {
	h := newHarness(t)
	principal := h.principal(t, "pat@school.org")
	teacherID, temp := h.addTeacher(t, principal, "tess@school.org")

	// The temporary password signs in, but the dashboard waits for verification.
	status, body := h.login(t, "tess@school.org", temp, "teacher")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "/verify-email", body["redirect"])
	status, body = h.do(t, fiber.MethodGet, "/api/teacher/dashboard", body["token"].(string), nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "/login?message=verify-email", body["redirect"])

	teacher := h.acceptInvite(t, "tess@school.org")

	// Each role is kept on its own dashboard.
	status, body = h.do(t, fiber.MethodGet, "/api/principal/teachers", teacher, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "/teacher/dashboard", body["redirect"])
	status, _ = h.do(t, fiber.MethodGet, "/api/teacher/dashboard", principal, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = h.do(t, fiber.MethodPost, "/api/teacher/attendance/check-in", teacher, nil)
	assert.Equal(t, fiber.StatusCreated, status)
	status, body = h.do(t, fiber.MethodPost, "/api/teacher/attendance/check-in", teacher, nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "Already checked in today", body["error"])

	status, body = h.do(t, fiber.MethodPost, "/api/principal/feedback", principal, fiber.Map{
		"teacher_id": teacherID, "type": "performance", "comment": "Clear explanations today.", "rating": 5,
		"categories": fiber.Map{"teaching": 5, "communication": 4, "punctuality": 5, "teamwork": 4},
	})
	require.Equal(t, fiber.StatusCreated, status, body)

	status, body = h.do(t, fiber.MethodGet, "/api/notifications/unread-count", teacher, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, "unread_count")

	status, _ = h.do(t, fiber.MethodPatch, "/api/notifications/mark-all-read", teacher, nil)
	assert.Equal(t, fiber.StatusOK, status)
	status, body = h.do(t, fiber.MethodPatch, "/api/notifications/missing/read", teacher, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "Notification not found", body["error"])

	status, body = h.do(t, fiber.MethodPost, "/api/principal/teachers/"+teacherID+"/badges", principal, fiber.Map{"code": "nope"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["error"], "Unknown badge")

	status, body = h.do(t, fiber.MethodGet, "/api/principal/teachers/unknown", principal, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "Teacher not found", body["error"])

	status, body = h.do(t, fiber.MethodPatch, "/api/principal/teachers/"+teacherID+"/status", principal, fiber.Map{"status": "disabled"})
	require.Equal(t, fiber.StatusOK, status, body)
	personal := body["teacher"].(map[string]interface{})["personal_info"].(map[string]interface{})
	assert.Equal(t, "Tess Teacher", personal["full_name"])
	status, _ = h.do(t, fiber.MethodGet, "/api/teacher/dashboard", teacher, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestLessonPlanShareValidation(t *testing.T) {
	h := newHarness(t)
	principal := h.principal(t, "pat@school.org")
	h.addTeacher(t, principal, "tess@school.org")
	teacher := h.acceptInvite(t, "tess@school.org")

	status, body := h.do(t, fiber.MethodPost, "/api/teacher/lesson-plans", teacher, fiber.Map{
		"title": "Fractions", "subject": "Mathematics", "grade_level": "Grade 9", "duration": 45,
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	id := body["lesson_plan"].(map[string]interface{})["id"].(string)

	status, _ = h.do(t, fiber.MethodPatch, "/api/teacher/lesson-plans/"+id+"/share", teacher, fiber.Map{})
	assert.Equal(t, fiber.StatusBadRequest, status)
	status, body = h.do(t, fiber.MethodPatch, "/api/teacher/lesson-plans/"+id+"/share", teacher, fiber.Map{"shared": true})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["lesson_plan"].(map[string]interface{})["shared"])
}

func TestLineLinkCodeRoutes(t *testing.T) {
	h := newHarness(t)
	principal := h.principal(t, "pat@school.org")

	status, body := h.do(t, fiber.MethodPost, "/api/principal/settings/line-code", principal, nil)
	require.Equal(t, fiber.StatusCreated, status, body)
	code := body["link_code"].(map[string]interface{})
	assert.NotEmpty(t, code["code"])
	assert.Equal(t, "link "+code["code"].(string), code["command"])

	status, _ = h.do(t, fiber.MethodDelete, "/api/principal/settings/line", principal, nil)
	assert.Equal(t, fiber.StatusOK, status)
	status, body = h.do(t, fiber.MethodGet, "/api/principal/settings", principal, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["settings"].(map[string]interface{})["line_linked"])
}

func TestHealthAndNotFound(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, fiber.MethodGet, "/health", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, body = h.do(t, fiber.MethodGet, "/health/details", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, body = h.do(t, fiber.MethodGet, "/api/nowhere", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "Route not found", body["error"])

	status, _ = h.do(t, fiber.MethodGet, "/ws", "", nil)
	assert.Equal(t, fiber.StatusUpgradeRequired, status)
}

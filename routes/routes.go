package routes

import (
	"schoolpulse_go/controllers"
	"schoolpulse_go/handlers"
	"schoolpulse_go/middleware"
	"schoolpulse_go/models"

	"github.com/gofiber/fiber/v2"
)

// Controllers holds every HTTP handler the router mounts.
type Controllers struct {
	Auth          *controllers.AuthController
	Teachers      *controllers.TeacherController
	Settings      *controllers.SettingsController
	Attendance    *controllers.AttendanceController
	Trainings     *controllers.TrainingController
	Feedback      *controllers.FeedbackController
	LessonPlans   *controllers.LessonPlanController
	Achievements  *controllers.AchievementController
	Metrics       *controllers.MetricsController
	Dashboard     *controllers.DashboardController
	Activity      *controllers.ActivityController
	Notifications *controllers.NotificationController
	WebSocket     *controllers.WebSocketController
	Health        *controllers.HealthController
	Line          *handlers.LineWebhookHandler
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, h Controllers) {
	app.Get("/health", h.Health.GetHealth)
	app.Get("/health/details", h.Health.GetHealthStatus)
	app.Get("/health/ready", h.Health.GetReadiness)

	api := app.Group("/api")

	// Authentication routes
	auth := api.Group("/auth")
	auth.Post("/register", middleware.RegisterRateLimiter(), h.Auth.Register)
	auth.Post("/login", middleware.LoginRateLimiter(), h.Auth.Login)
	auth.Post("/forgot-password", middleware.ForgotPasswordRateLimiter(), h.Auth.ForgotPassword)
	auth.Post("/reset-password", h.Auth.ResetPassword)
	auth.Post("/verify-email", h.Auth.VerifyEmail)

	authed := auth.Group("/", middleware.JWTMiddleware())
	authed.Post("/logout", h.Auth.Logout)
	authed.Post("/verify-email/resend", middleware.VerificationRateLimiter(), h.Auth.ResendVerification)
	authed.Get("/verify-email/status", h.Auth.VerificationStatus)
	authed.Get("/session", h.Auth.Session)
	authed.Get("/me", h.Auth.Me)
	authed.Put("/me/password", h.Auth.ChangePassword)

	// Principal dashboard
	principal := api.Group("/principal", middleware.JWTMiddleware(), middleware.RequireDashboard(models.RolePrincipal))
	principal.Get("/dashboard", h.Dashboard.GetPrincipalDashboard)
	principal.Get("/analytics", h.Dashboard.GetAnalytics)
	principal.Get("/analytics/export", h.Dashboard.ExportAnalytics)

	principal.Get("/teachers", h.Teachers.GetTeachers)
	principal.Post("/teachers", h.Teachers.CreateTeacher)
	principal.Post("/teachers/import", h.Teachers.ImportTeachers)
	principal.Get("/teachers/:id", h.Teachers.GetTeacher)
	principal.Put("/teachers/:id", h.Teachers.UpdateTeacher)
	principal.Patch("/teachers/:id/status", h.Teachers.SetTeacherStatus)
	principal.Delete("/teachers/:id", h.Teachers.DeleteTeacher)
	principal.Post("/teachers/:id/invite", h.Teachers.ResendInvite)
	principal.Post("/teachers/:id/badges", h.Achievements.AwardBadge)
	principal.Get("/teachers/:id/metrics", h.Metrics.GetTeacherMetrics)

	principal.Get("/settings", h.Settings.GetSettings)
	principal.Put("/settings", h.Settings.UpdateSettings)
	principal.Post("/settings/line-code", h.Settings.CreateLineLinkCode)
	principal.Delete("/settings/line", h.Settings.UnlinkLine)
	principal.Post("/settings/:list", h.Settings.AddListValue)
	principal.Delete("/settings/:list", h.Settings.RemoveListValue)

	principal.Get("/attendance", h.Attendance.GetSchoolDay)
	principal.Post("/attendance", h.Attendance.Mark)

	principal.Get("/trainings", h.Trainings.GetTrainings)
	principal.Post("/trainings", h.Trainings.CreateTraining)
	principal.Put("/trainings/:id", h.Trainings.UpdateTraining)
	principal.Delete("/trainings/:id", h.Trainings.DeleteTraining)

	principal.Get("/feedback", h.Feedback.GetSchoolFeedback)
	principal.Post("/feedback", h.Feedback.CreateFeedback)

	principal.Get("/badges", h.Achievements.GetBadges)
	principal.Get("/leaderboard", h.Achievements.GetLeaderboard)
	principal.Post("/metrics/compute", h.Metrics.ComputeMetrics)

	principal.Get("/activity", h.Activity.GetActivity)
	principal.Get("/activity/export", h.Activity.ExportActivity)
	principal.Get("/activity/stats", h.Activity.GetActivityStats)
	principal.Get("/ws/stats", h.WebSocket.GetWebSocketStats)

	// Teacher dashboard
	teacher := api.Group("/teacher", middleware.JWTMiddleware(), middleware.RequireDashboard(models.RoleTeacher))
	teacher.Get("/dashboard", h.Dashboard.GetTeacherDashboard)
	teacher.Get("/profile", h.Teachers.GetProfile)
	teacher.Put("/profile", h.Teachers.UpdateProfile)
	teacher.Post("/profile/avatar", h.Teachers.UploadAvatar)

	teacher.Post("/attendance/check-in", h.Attendance.CheckIn)
	teacher.Post("/attendance/check-out", h.Attendance.CheckOut)
	teacher.Get("/attendance", h.Attendance.GetHistory)
	teacher.Get("/attendance/summary", h.Attendance.GetSummary)

	teacher.Get("/trainings", h.Trainings.GetAvailable)
	teacher.Post("/trainings/:id/enroll", h.Trainings.Enroll)
	teacher.Get("/enrollments", h.Trainings.GetEnrollments)
	teacher.Patch("/enrollments/:id", h.Trainings.UpdateProgress)

	teacher.Get("/feedback", h.Feedback.GetMyFeedback)
	teacher.Patch("/feedback/:id/acknowledge", h.Feedback.Acknowledge)

	teacher.Get("/lesson-plans", h.LessonPlans.GetLessonPlans)
	teacher.Post("/lesson-plans", h.LessonPlans.CreateLessonPlan)
	teacher.Get("/lesson-plans/shared", h.LessonPlans.GetSharedLessonPlans)
	teacher.Get("/lesson-plans/:id", h.LessonPlans.GetLessonPlan)
	teacher.Put("/lesson-plans/:id", h.LessonPlans.UpdateLessonPlan)
	teacher.Delete("/lesson-plans/:id", h.LessonPlans.DeleteLessonPlan)
	teacher.Patch("/lesson-plans/:id/share", h.LessonPlans.ShareLessonPlan)
	teacher.Post("/lesson-plans/:id/files", h.LessonPlans.UploadAttachment)

	teacher.Get("/achievements", h.Achievements.GetMyAchievements)
	teacher.Get("/leaderboard", h.Achievements.GetLeaderboard)
	teacher.Get("/metrics", h.Metrics.GetMyMetrics)

	// Notifications for either role
	notifications := api.Group("/notifications", middleware.JWTMiddleware())
	notifications.Get("/", h.Notifications.GetNotifications)
	notifications.Get("/unread-count", h.Notifications.GetUnreadCount)
	notifications.Patch("/mark-all-read", h.Notifications.MarkAllAsRead)
	notifications.Patch("/:id/read", h.Notifications.MarkAsRead)
	notifications.Delete("/:id", h.Notifications.DeleteNotification)

	app.Use("/ws", h.WebSocket.Upgrade)
	app.Get("/ws", h.WebSocket.Handler())

	app.Post("/line/webhook", h.Line.Handle)
	app.Get("/line/webhook", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "LINE webhook endpoint ready (use POST for real events)",
		})
	})
}

// NotFound is mounted last and answers unmatched routes.
func NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":  "Route not found",
		"path":   c.Path(),
		"method": c.Method(),
	})
}

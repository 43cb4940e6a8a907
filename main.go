package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"schoolpulse_go/config"
	"schoolpulse_go/controllers"
	"schoolpulse_go/database"
	"schoolpulse_go/database/seeders"
	"schoolpulse_go/handlers"
	"schoolpulse_go/logger"
	"schoolpulse_go/middleware"
	"schoolpulse_go/routes"
	"schoolpulse_go/services"
	"schoolpulse_go/services/email"
	"schoolpulse_go/services/notifications"
	"schoolpulse_go/services/websocket"
	"schoolpulse_go/storage"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

const version = "1.0.0"

func main() {
	config.LoadConfig()
	cfg := config.AppConfig
	if err := logger.Setup(cfg); err != nil {
		logrus.WithError(err).Warn("Logger setup incomplete, using stdout")
	}
	defer logger.Flush()

	database.Connect()
	if !cfg.SkipMigrate {
		if err := seeders.SeedBadges(database.DB); err != nil {
			logrus.WithError(err).Error("Failed to seed badge catalog")
		}
	}

	ctx := context.Background()
	store := storage.New(ctx, cfg)
	mailer := email.NewSender(cfg)

	// WebSocket hub first so notifications can push through it
	wsHub := websocket.NewHub()
	go wsHub.Run()

	notify := notifications.NewService(database.DB, database.RedisClient, cfg.UseRedisNotifications)
	notify.SetWebSocketHub(wsHub)

	line, err := services.NewLineService(cfg)
	if err != nil {
		logrus.WithError(err).Error("LINE client could not be created, LINE delivery disabled")
	}
	if line != nil && line.Enabled() {
		notify.SetGroupPusher(line)
	}

	stopWorker := make(chan struct{})
	notify.StartWorker(stopWorker)

	auth := services.NewAuthService(database.DB, database.RedisClient, mailer, cfg)
	schools := services.NewSchoolService(database.DB)
	teachers := services.NewTeacherService(database.DB, auth, notify, store, cfg)
	attendance := services.NewAttendanceService(database.DB, notify, cfg)
	trainings := services.NewTrainingService(database.DB, notify)
	feedback := services.NewFeedbackService(database.DB, notify)
	lessonPlans := services.NewLessonPlanService(database.DB, store, cfg)
	achievements := services.NewAchievementService(database.DB, notify)
	metrics := services.NewMetricsService(database.DB)
	dashboards := services.NewDashboardService(database.DB, notify, trainings, feedback)
	analytics := services.NewAnalyticsService(database.DB, store)
	activity := services.NewActivityService(database.DB, database.RedisClient, store)
	health := services.NewHealthService(database.DB, database.RedisClient, cfg, version)

	var scheduler *services.Scheduler
	if cfg.EnableSchedulers {
		scheduler = services.NewScheduler(metrics, attendance, achievements, activity)
		if err := scheduler.Start(); err != nil {
			logrus.WithError(err).Fatal("Failed to start scheduler")
		}
		health.SetSchedulerProbe(scheduler.Running)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.MaxFileSize),
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
	})

	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendBaseURL,
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		AllowCredentials: true,
	}))
	app.Use(middleware.RequestID())
	app.Use(middleware.GlobalRateLimiter())
	app.Use(middleware.LoggerMiddleware())
	app.Use(middleware.LogActivityMiddleware())

	routes.SetupRoutes(app, routes.Controllers{
		Auth:          controllers.NewAuthController(auth),
		Teachers:      controllers.NewTeacherController(teachers),
		Settings:      controllers.NewSettingsController(schools),
		Attendance:    controllers.NewAttendanceController(attendance),
		Trainings:     controllers.NewTrainingController(trainings),
		Feedback:      controllers.NewFeedbackController(feedback),
		LessonPlans:   controllers.NewLessonPlanController(lessonPlans),
		Achievements:  controllers.NewAchievementController(achievements),
		Metrics:       controllers.NewMetricsController(metrics),
		Dashboard:     controllers.NewDashboardController(dashboards, analytics),
		Activity:      controllers.NewActivityController(activity),
		Notifications: controllers.NewNotificationController(notify),
		WebSocket:     controllers.NewWebSocketController(wsHub),
		Health:        controllers.NewHealthController(health),
		Line:          handlers.NewLineWebhookHandler(line, schools),
	})
	app.Use(routes.NotFound)

	go func() {
		logrus.WithFields(logrus.Fields{
			"port":    cfg.Port,
			"env":     cfg.AppEnv,
			"version": version,
		}).Info("Server starting")
		if err := app.Listen(":" + cfg.Port); err != nil {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logrus.WithError(err).Error("HTTP shutdown")
	}
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	close(stopWorker)
	if n, err := activity.Flush(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Final activity flush failed")
	} else if n > 0 {
		logrus.WithField("count", n).Info("Flushed cached activity logs")
	}
	wsHub.Stop()
	database.Close()
}

// customErrorHandler handles application errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	logrus.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Path(),
		"method": c.Method(),
		"ip":     c.IP(),
		"status": code,
	}).Error("Request error")

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}

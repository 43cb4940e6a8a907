package controllers

import (
	"schoolpulse_go/services"

	"github.com/gofiber/fiber/v2"
)

// HealthController exposes the liveness, readiness and detailed health endpoints.
type HealthController struct {
	service *services.HealthService
}

func NewHealthController(service *services.HealthService) *HealthController {
	return &HealthController{service: service}
}

// GetHealth is the cheap liveness probe.
func (hc *HealthController) GetHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": hc.service.ServiceName(),
		"version": hc.service.Version(),
	})
}

// GetHealthStatus returns the aggregated health report.
func (hc *HealthController) GetHealthStatus(c *fiber.Ctx) error {
	report := hc.service.GetHealthReport(c.UserContext())
	return c.Status(services.HTTPStatusForOverall(report.Status)).JSON(report)
}

func (hc *HealthController) GetReadiness(c *fiber.Ctx) error {
	if !hc.service.Ready(c.UserContext()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready"})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

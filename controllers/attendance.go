package controllers

import (
	"schoolpulse_go/services"

	"github.com/gofiber/fiber/v2"
)

type AttendanceController struct {
	attendance *services.AttendanceService
}

func NewAttendanceController(attendance *services.AttendanceService) *AttendanceController {
	return &AttendanceController{attendance: attendance}
}

func (ac *AttendanceController) CheckIn(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	record, err := ac.attendance.CheckIn(c.UserContext(), user.ID)
	if err != nil {
		return fail(c, err, "Attendance")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Checked in successfully", "record": record})
}

func (ac *AttendanceController) CheckOut(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	record, err := ac.attendance.CheckOut(c.UserContext(), user.ID)
	if err != nil {
		return fail(c, err, "Attendance")
	}
	return c.JSON(fiber.Map{"message": "Checked out successfully", "record": record})
}

// GetHistory returns the teacher's records for ?from=&to=.
func (ac *AttendanceController) GetHistory(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	records, err := ac.attendance.History(c.UserContext(), user.ID, dateRange(c))
	if err != nil {
		return fail(c, err, "Attendance")
	}
	return c.JSON(fiber.Map{"records": records})
}

func (ac *AttendanceController) GetSummary(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	summary, err := ac.attendance.Summary(c.UserContext(), user.ID, dateRange(c))
	if err != nil {
		return fail(c, err, "Attendance")
	}
	return c.JSON(fiber.Map{"summary": summary})
}

// GetSchoolDay lists every teacher with their record for ?date= (default today).
func (ac *AttendanceController) GetSchoolDay(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	entries, err := ac.attendance.SchoolDay(c.UserContext(), user.SchoolID, c.Query("date"))
	if err != nil {
		return fail(c, err, "Attendance")
	}
	return c.JSON(fiber.Map{"entries": entries})
}

func (ac *AttendanceController) Mark(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req services.MarkInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	record, err := ac.attendance.Mark(c.UserContext(), user, req)
	if err != nil {
		return fail(c, err, "Teacher")
	}
	return c.JSON(fiber.Map{"message": "Attendance saved", "record": record})
}

func dateRange(c *fiber.Ctx) services.DateRange {
	return services.DateRange{From: c.Query("from"), To: c.Query("to")}
}

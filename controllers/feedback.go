package controllers

import (
	"schoolpulse_go/services"

	"github.com/gofiber/fiber/v2"
)

type FeedbackController struct {
	feedback *services.FeedbackService
}

func NewFeedbackController(feedback *services.FeedbackService) *FeedbackController {
	return &FeedbackController{feedback: feedback}
}

// GetSchoolFeedback lists feedback given in the school, optionally for ?teacher_id=.
func (fc *FeedbackController) GetSchoolFeedback(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	items, err := fc.feedback.ListForSchool(c.UserContext(), user.SchoolID, c.Query("teacher_id"), queryLimit(c, 50))
	if err != nil {
		return fail(c, err, "feedback")
	}
	return c.JSON(fiber.Map{"feedback": items})
}

func (fc *FeedbackController) CreateFeedback(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req services.FeedbackInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	item, err := fc.feedback.Create(c.UserContext(), user, req)
	if err != nil {
		return fail(c, err, "Teacher")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Feedback submitted successfully", "feedback": item})
}

// GetMyFeedback lists feedback received by the signed in teacher.
func (fc *FeedbackController) GetMyFeedback(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	items, err := fc.feedback.ListMine(c.UserContext(), user.ID, queryLimit(c, 50))
	if err != nil {
		return fail(c, err, "Teacher profile")
	}
	return c.JSON(fiber.Map{"feedback": items})
}

func (fc *FeedbackController) Acknowledge(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	item, err := fc.feedback.Acknowledge(c.UserContext(), user.ID, c.Params("id"))
	if err != nil {
		return fail(c, err, "Feedback")
	}
	return c.JSON(fiber.Map{"message": "Feedback acknowledged", "feedback": item})
}

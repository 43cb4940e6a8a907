package controllers

import (
	"schoolpulse_go/services"

	"github.com/gofiber/fiber/v2"
)

type TrainingController struct {
	trainings *services.TrainingService
}

func NewTrainingController(trainings *services.TrainingService) *TrainingController {
	return &TrainingController{trainings: trainings}
}

// GetTrainings lists the school's trainings for the principal.
func (tc *TrainingController) GetTrainings(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	trainings, err := tc.trainings.List(c.UserContext(), user.SchoolID, queryLimit(c, 0))
	if err != nil {
		return fail(c, err, "trainings")
	}
	return c.JSON(fiber.Map{"trainings": trainings})
}

func (tc *TrainingController) CreateTraining(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req services.TrainingInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	training, err := tc.trainings.Create(c.UserContext(), user, req)
	if err != nil {
		return fail(c, err, "Training")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Training created successfully", "training": training})
}

func (tc *TrainingController) UpdateTraining(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req services.TrainingInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	training, err := tc.trainings.Update(c.UserContext(), user, c.Params("id"), req)
	if err != nil {
		return fail(c, err, "Training")
	}
	return c.JSON(fiber.Map{"message": "Training updated successfully", "training": training})
}

func (tc *TrainingController) DeleteTraining(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := tc.trainings.Delete(c.UserContext(), user, c.Params("id")); err != nil {
		return fail(c, err, "Training")
	}
	return c.JSON(fiber.Map{"message": "Training deleted successfully"})
}

// GetAvailable lists the school's trainings with the teacher's enrollment in each.
func (tc *TrainingController) GetAvailable(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	trainings, err := tc.trainings.ListAvailable(c.UserContext(), user.ID)
	if err != nil {
		return fail(c, err, "Teacher profile")
	}
	return c.JSON(fiber.Map{"trainings": trainings})
}

func (tc *TrainingController) Enroll(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	enrollment, err := tc.trainings.Enroll(c.UserContext(), user.ID, c.Params("id"))
	if err != nil {
		return fail(c, err, "Training")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Enrolled successfully", "enrollment": enrollment})
}

func (tc *TrainingController) GetEnrollments(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	enrollments, err := tc.trainings.MyEnrollments(c.UserContext(), user.ID)
	if err != nil {
		return fail(c, err, "Teacher profile")
	}
	return c.JSON(fiber.Map{"enrollments": enrollments})
}

func (tc *TrainingController) UpdateProgress(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req services.ProgressInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	enrollment, err := tc.trainings.UpdateProgress(c.UserContext(), user.ID, c.Params("id"), req)
	if err != nil {
		return fail(c, err, "Enrollment")
	}
	return c.JSON(fiber.Map{"message": "Progress updated", "enrollment": enrollment})
}

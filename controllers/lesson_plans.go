package controllers

import (
	"schoolpulse_go/services"

	"github.com/gofiber/fiber/v2"
)

type LessonPlanController struct {
	plans *services.LessonPlanService
}

func NewLessonPlanController(plans *services.LessonPlanService) *LessonPlanController {
	return &LessonPlanController{plans: plans}
}

func (lc *LessonPlanController) GetLessonPlans(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	plans, err := lc.plans.ListMine(c.UserContext(), user.ID)
	if err != nil {
		return fail(c, err, "Teacher profile")
	}
	return c.JSON(fiber.Map{"lesson_plans": plans})
}

// GetSharedLessonPlans lists plans colleagues in the school have shared.
func (lc *LessonPlanController) GetSharedLessonPlans(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	plans, err := lc.plans.ListShared(c.UserContext(), user.ID)
	if err != nil {
		return fail(c, err, "Teacher profile")
	}
	return c.JSON(fiber.Map{"lesson_plans": plans})
}

func (lc *LessonPlanController) GetLessonPlan(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	plan, err := lc.plans.Get(c.UserContext(), user.ID, c.Params("id"))
	if err != nil {
		return fail(c, err, "Lesson plan")
	}
	return c.JSON(fiber.Map{"lesson_plan": plan})
}

func (lc *LessonPlanController) CreateLessonPlan(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req services.LessonPlanInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	plan, err := lc.plans.Create(c.UserContext(), user.ID, req)
	if err != nil {
		return fail(c, err, "Teacher profile")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Lesson plan created successfully", "lesson_plan": plan})
}

func (lc *LessonPlanController) UpdateLessonPlan(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req services.LessonPlanInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	plan, err := lc.plans.Update(c.UserContext(), user.ID, c.Params("id"), req)
	if err != nil {
		return fail(c, err, "Lesson plan")
	}
	return c.JSON(fiber.Map{"message": "Lesson plan updated successfully", "lesson_plan": plan})
}

func (lc *LessonPlanController) DeleteLessonPlan(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := lc.plans.Delete(c.UserContext(), user.ID, c.Params("id")); err != nil {
		return fail(c, err, "Lesson plan")
	}
	return c.JSON(fiber.Map{"message": "Lesson plan deleted successfully"})
}

func (lc *LessonPlanController) ShareLessonPlan(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req struct {
		Shared *bool `json:"shared"`
	}
	if err := c.BodyParser(&req); err != nil || req.Shared == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "shared must be true or false"})
	}
	plan, err := lc.plans.SetShared(c.UserContext(), user.ID, c.Params("id"), *req.Shared)
	if err != nil {
		return fail(c, err, "Lesson plan")
	}
	return c.JSON(fiber.Map{"lesson_plan": plan})
}

// UploadAttachment stores the multipart "file" against the plan.
func (lc *LessonPlanController) UploadAttachment(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	fh, data, err := formFile(c, "file")
	if err != nil {
		return fail(c, err, "file")
	}
	plan, err := lc.plans.AddAttachment(c.UserContext(), user.ID, c.Params("id"), fh.Filename, data)
	if err != nil {
		return fail(c, err, "Lesson plan")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "File uploaded successfully", "lesson_plan": plan})
}

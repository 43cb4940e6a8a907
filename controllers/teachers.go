package controllers

import (
	"bytes"

	"schoolpulse_go/services"
	"schoolpulse_go/utils"

	"github.com/gofiber/fiber/v2"
)

type TeacherController struct {
	teachers *services.TeacherService
}

func NewTeacherController(teachers *services.TeacherService) *TeacherController {
	return &TeacherController{teachers: teachers}
}

// GetTeachers lists the principal's teachers with search and pagination.
func (tc *TeacherController) GetTeachers(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	page, limit := pageParams(c)
	teachers, total, err := tc.teachers.List(c.UserContext(), user.SchoolID, services.TeacherQuery{
		Search:     c.Query("search"),
		Department: c.Query("department"),
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		return fail(c, err, "teachers")
	}
	return c.JSON(fiber.Map{
		"teachers":   utils.ToTeacherDTOs(teachers),
		"pagination": pagination(page, limit, total),
	})
}

func (tc *TeacherController) GetTeacher(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	teacher, err := tc.teachers.Get(c.UserContext(), user.SchoolID, c.Params("id"))
	if err != nil {
		return fail(c, err, "Teacher")
	}
	return c.JSON(fiber.Map{"teacher": utils.ToTeacherDTO(teacher)})
}

// CreateTeacher returns the temporary password once; the teacher also receives an invite email.
func (tc *TeacherController) CreateTeacher(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req services.TeacherInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	created, err := tc.teachers.Create(c.UserContext(), user, req)
	if err != nil {
		return failAuth(c, err, utils.FlowCreateTeacher)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":       "Teacher account created successfully",
		"teacher":       utils.ToTeacherDTO(created.Teacher),
		"temp_password": created.TempPassword,
	})
}

func (tc *TeacherController) UpdateTeacher(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req struct {
		services.ProfileInput
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	teacher, err := tc.teachers.Update(c.UserContext(), user, c.Params("id"), req.ProfileInput, req.Status)
	if err != nil {
		return fail(c, err, "Teacher")
	}
	return c.JSON(fiber.Map{"message": "Teacher updated successfully", "teacher": utils.ToTeacherDTO(teacher)})
}

// SetTeacherStatus handles PATCH /teachers/:id/status with {"status": "..."}.
func (tc *TeacherController) SetTeacherStatus(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	teacher, err := tc.teachers.SetStatus(c.UserContext(), user, c.Params("id"), req.Status)
	if err != nil {
		return fail(c, err, "Teacher")
	}
	return c.JSON(fiber.Map{"message": "Teacher status updated", "teacher": utils.ToTeacherDTO(teacher)})
}

func (tc *TeacherController) DeleteTeacher(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := tc.teachers.Delete(c.UserContext(), user, c.Params("id")); err != nil {
		return fail(c, err, "Teacher")
	}
	return c.JSON(fiber.Map{"message": "Teacher deleted successfully"})
}

func (tc *TeacherController) ResendInvite(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := tc.teachers.ResendInvite(c.UserContext(), user, c.Params("id")); err != nil {
		return fail(c, err, "Teacher")
	}
	return c.JSON(fiber.Map{"message": "Invitation email sent"})
}

// ImportTeachers creates accounts from an uploaded .xlsx file.
func (tc *TeacherController) ImportTeachers(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	fh, data, err := formFile(c, "file")
	if err != nil {
		return fail(c, err, "import")
	}
	if !utils.IsValidFileExtension(fh.Filename, []string{"xlsx"}) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Upload an .xlsx spreadsheet"})
	}
	result, err := tc.teachers.Import(c.UserContext(), user, bytes.NewReader(data))
	if err != nil {
		return fail(c, err, "import")
	}
	return c.JSON(fiber.Map{
		"message": "Import finished",
		"created": result.Created,
		"errors":  result.Errors,
		"columns": services.ImportColumns,
	})
}

// GetProfile returns the signed in teacher's profile.
func (tc *TeacherController) GetProfile(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	teacher, err := tc.teachers.GetOwnProfile(c.UserContext(), user.ID)
	if err != nil {
		return fail(c, err, "Teacher profile")
	}
	return c.JSON(fiber.Map{"teacher": utils.ToTeacherDTO(teacher)})
}

func (tc *TeacherController) UpdateProfile(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req services.ProfileInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	teacher, err := tc.teachers.UpdateOwnProfile(c.UserContext(), user.ID, req)
	if err != nil {
		return fail(c, err, "Teacher profile")
	}
	return c.JSON(fiber.Map{"message": "Profile updated successfully", "teacher": utils.ToTeacherDTO(teacher)})
}

func (tc *TeacherController) UploadAvatar(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	_, data, err := formFile(c, "avatar")
	if err != nil {
		return fail(c, err, "avatar")
	}
	url, err := tc.teachers.UploadAvatar(c.UserContext(), user, data)
	if err != nil {
		return fail(c, err, "avatar")
	}
	return c.JSON(fiber.Map{"message": "Avatar uploaded successfully", "avatar": url})
}

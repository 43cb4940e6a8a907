package controllers

import (
	"context"

	"schoolpulse_go/models"
	"schoolpulse_go/services"

	"github.com/gofiber/fiber/v2"
)

type SettingsController struct {
	schools *services.SchoolService
}

func NewSettingsController(schools *services.SchoolService) *SettingsController {
	return &SettingsController{schools: schools}
}

func (sc *SettingsController) GetSettings(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	view, err := sc.schools.GetSettings(c.UserContext(), user)
	if err != nil {
		return fail(c, err, "School")
	}
	return c.JSON(fiber.Map{"settings": view})
}

func (sc *SettingsController) UpdateSettings(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req services.SettingsInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	view, err := sc.schools.UpdateSettings(c.UserContext(), user, req)
	if err != nil {
		return fail(c, err, "School")
	}
	return c.JSON(fiber.Map{"message": "Settings saved successfully", "settings": view})
}

// CreateLineLinkCode issues the one-time code posted in a LINE group to link it.
func (sc *SettingsController) CreateLineLinkCode(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	code, err := sc.schools.CreateLineLinkCode(c.UserContext(), user)
	if err != nil {
		return fail(c, err, "School")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"link_code": code})
}

func (sc *SettingsController) UnlinkLine(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := sc.schools.UnlinkSchoolLine(c.UserContext(), user); err != nil {
		return fail(c, err, "School")
	}
	return c.JSON(fiber.Map{"message": "LINE group unlinked"})
}

// AddListValue handles POST /settings/:list with {"value": "..."}.
func (sc *SettingsController) AddListValue(c *fiber.Ctx) error {
	return sc.editList(c, sc.schools.AddListValue)
}

// RemoveListValue handles DELETE /settings/:list with {"value": "..."} or ?value=.
func (sc *SettingsController) RemoveListValue(c *fiber.Ctx) error {
	return sc.editList(c, sc.schools.RemoveListValue)
}

func (sc *SettingsController) editList(c *fiber.Ctx, edit func(ctx context.Context, principal *models.User, list, value string) (models.StringList, error)) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req struct {
		Value string `json:"value"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return invalidBody(c)
		}
	}
	if req.Value == "" {
		req.Value = c.Query("value")
	}
	list := c.Params("list")
	values, err := edit(c.UserContext(), user, list, req.Value)
	if err != nil {
		return fail(c, err, "Settings list")
	}
	return c.JSON(fiber.Map{list: values})
}

package controllers

import (
	"errors"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"schoolpulse_go/middleware"
	"schoolpulse_go/models"
	"schoolpulse_go/services"
	"schoolpulse_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

var errMissingUser = fiber.NewError(fiber.StatusUnauthorized, "User not found")

func currentUser(c *fiber.Ctx) (*models.User, error) {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return nil, errMissingUser
	}
	return user, nil
}

func invalidBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
}

// fail renders a service error. subject names the resource in 404 and 500 messages.
func fail(c *fiber.Ctx, err error, subject string) error {
	if ve, ok := utils.AsValidationErrors(err); ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Validation failed",
			"errors": ve.Fields,
		})
	}
	var re *services.RequestError
	var fe *fiber.Error
	switch {
	case errors.As(err, &re):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": re.Message})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": subject + " not found"})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Insufficient permissions"})
	case errors.Is(err, services.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": conflictMessage(err)})
	case errors.As(err, &fe):
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}

	fields := logrus.Fields{"path": c.Path(), "method": c.Method(), "subject": subject}
	if id, ok := c.Locals("request_id").(string); ok {
		fields["request_id"] = id
	}
	logrus.WithError(err).WithFields(fields).Error("Request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process " + subject})
}

// conflictMessage strips the sentinel suffix from a wrapped ErrConflict.
func conflictMessage(err error) string {
	msg := strings.TrimSuffix(err.Error(), ": "+services.ErrConflict.Error())
	if msg == "" {
		return "Conflict"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// authStatus picks the HTTP status for an authentication error code.
func authStatus(code string) int {
	switch code {
	case utils.CodeTooManyRequests:
		return fiber.StatusTooManyRequests
	case utils.CodeEmailAlreadyInUse:
		return fiber.StatusConflict
	case utils.CodeInvalidLoginCredentials, utils.CodeWrongPassword:
		return fiber.StatusUnauthorized
	case utils.CodeUserDisabled, utils.CodeRoleMismatch:
		return fiber.StatusForbidden
	case utils.CodeUserNotFound:
		return fiber.StatusNotFound
	}
	return fiber.StatusBadRequest
}

// failAuth renders authentication errors with the static message of flow.
func failAuth(c *fiber.Ctx, err error, flow string) error {
	code := utils.AuthCode(err)
	if code == "" {
		return fail(c, err, "request")
	}
	return c.Status(authStatus(code)).JSON(fiber.Map{
		"error": utils.AuthErrorMessage(err, flow),
		"code":  code,
	})
}

func pageParams(c *fiber.Ctx) (int, int) {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

func pagination(page, limit int, total int64) fiber.Map {
	pages := int64(0)
	if limit > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	return fiber.Map{"page": page, "limit": limit, "total": total, "pages": pages}
}

func queryLimit(c *fiber.Ctx, def int) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 {
		return def
	}
	return limit
}

// formFile reads a multipart upload held in field.
func formFile(c *fiber.Ctx, field string) (*multipart.FileHeader, []byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, "No file uploaded")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, err
	}
	return fh, data, nil
}

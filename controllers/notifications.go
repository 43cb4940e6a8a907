package controllers

import (
	"errors"

	"schoolpulse_go/services/notifications"
	"schoolpulse_go/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type NotificationController struct {
	notify *notifications.Service
}

func NewNotificationController(notify *notifications.Service) *NotificationController {
	return &NotificationController{notify: notify}
}

func (nc *NotificationController) notFoundOr(c *fiber.Ctx, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Notification not found"})
	}
	return fail(c, err, "notifications")
}

// GetNotifications returns notifications for the current user
func (nc *NotificationController) GetNotifications(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	page, limit := pageParams(c)
	filter := notifications.ListFilter{Type: c.Query("type"), Page: page, Limit: limit}
	switch c.Query("read") {
	case "true":
		read := true
		filter.Read = &read
	case "false":
		read := false
		filter.Read = &read
	}

	list, total, err := nc.notify.List(c.UserContext(), user.ID, filter)
	if err != nil {
		return fail(c, err, "notifications")
	}
	out := make([]utils.NotificationDTO, 0, len(list))
	for _, n := range list {
		out = append(out, utils.ToNotificationDTO(n))
	}
	return c.JSON(fiber.Map{
		"notifications": out,
		"pagination":    pagination(page, limit, total),
	})
}

func (nc *NotificationController) GetUnreadCount(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	n, err := nc.notify.UnreadCount(c.UserContext(), user.ID)
	if err != nil {
		return fail(c, err, "notifications")
	}
	return c.JSON(fiber.Map{"unread_count": n})
}

func (nc *NotificationController) MarkAsRead(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	n, err := nc.notify.MarkRead(c.UserContext(), user.ID, c.Params("id"))
	if err != nil {
		return nc.notFoundOr(c, err)
	}
	return c.JSON(fiber.Map{"message": "Notification marked as read", "notification": utils.ToNotificationDTO(*n)})
}

func (nc *NotificationController) MarkAllAsRead(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	n, err := nc.notify.MarkAllRead(c.UserContext(), user.ID)
	if err != nil {
		return fail(c, err, "notifications")
	}
	return c.JSON(fiber.Map{"message": "All notifications marked as read", "updated": n})
}

func (nc *NotificationController) DeleteNotification(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := nc.notify.Delete(c.UserContext(), user.ID, c.Params("id")); err != nil {
		return nc.notFoundOr(c, err)
	}
	return c.JSON(fiber.Map{"message": "Notification deleted successfully"})
}

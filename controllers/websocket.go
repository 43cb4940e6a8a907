package controllers

import (
	"schoolpulse_go/database"
	"schoolpulse_go/middleware"
	"schoolpulse_go/models"
	"schoolpulse_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type WebSocketController struct {
	hub *websocket.Hub
}

func NewWebSocketController(hub *websocket.Hub) *WebSocketController {
	return &WebSocketController{hub: hub}
}

// Upgrade authenticates ?token= and allows the protocol switch. Tokens are
// checked before the upgrade so refusals are plain HTTP responses.
func (wsc *WebSocketController) Upgrade(c *fiber.Ctx) error {
	if !fiberws.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
			"error": "Use the WebSocket endpoint: ws://<host>/ws?token=YOUR_JWT",
		})
	}

	token := c.Query("token")
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token"})
	}
	claims, err := middleware.ParseToken(token)
	if err != nil || middleware.IsTokenRevoked(c.UserContext(), token) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var user models.User
	if err := database.DB.WithContext(c.UserContext()).
		Where("id = ? AND status = ?", claims.UserID, models.StatusActive).
		First(&user).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found or inactive"})
	}

	c.Locals("ws_user_id", user.ID)
	return c.Next()
}

// Handler connects an upgraded socket to the hub.
func (wsc *WebSocketController) Handler() fiber.Handler {
	return fiberws.New(func(c *fiberws.Conn) {
		userID, _ := c.Locals("ws_user_id").(string)
		if userID == "" {
			_ = c.Close()
			return
		}
		logrus.WithField("user_id", userID).Info("WebSocket connection established")
		wsc.hub.ServeFiberWS(c, userID)
	})
}

// GetWebSocketStats reports connected clients.
func (wsc *WebSocketController) GetWebSocketStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"connected_clients": wsc.hub.GetClientCount(),
		"status":            "active",
	})
}

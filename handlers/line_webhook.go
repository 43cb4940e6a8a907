package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"schoolpulse_go/models"

	"github.com/gofiber/fiber/v2"
	"github.com/line/line-bot-sdk-go/linebot"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LineBot is the part of services.LineService the webhook needs.
type LineBot interface {
	Enabled() bool
	ValidSignature(body []byte, signature string) bool
	Reply(replyToken, text string) error
	GroupName(groupID string) string
}

// GroupLinker binds LINE groups to schools.
type GroupLinker interface {
	LinkLineGroup(ctx context.Context, code, groupID, lineUserID string) (*models.School, error)
	UnlinkLineGroup(ctx context.Context, groupID, lineUserID string) error
	ForgetLineGroup(ctx context.Context, groupID string) error
}

type LineWebhookHandler struct {
	bot     LineBot
	schools GroupLinker
}

func NewLineWebhookHandler(bot LineBot, schools GroupLinker) *LineWebhookHandler {
	return &LineWebhookHandler{bot: bot, schools: schools}
}

const (
	joinGreeting = "Hello! Ask your principal for a link code from the SchoolPulse settings page, then post \"link <code>\" here to receive school alerts."
	badLinkCode  = "This link code is invalid or has expired. Generate a new one from the settings page."
)

// Handle acknowledges the webhook at once and processes events in the background.
func (h *LineWebhookHandler) Handle(c *fiber.Ctx) error {
	if h.bot == nil || !h.bot.Enabled() {
		return c.SendStatus(fiber.StatusOK)
	}

	signature := c.Get("X-Line-Signature")
	if signature == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if !h.bot.ValidSignature(c.Body(), signature) {
		logrus.WithField("ip", c.IP()).Warn("LINE webhook signature mismatch")
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	body := append([]byte(nil), c.Body()...)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("panic recovered in LINE webhook")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := h.Process(ctx, body); err != nil {
			logrus.WithError(err).Error("Failed to process LINE webhook")
		}
	}()
	return c.SendStatus(fiber.StatusOK)
}

// Process handles every event of a webhook body.
func (h *LineWebhookHandler) Process(ctx context.Context, body []byte) error {
	var webhook struct {
		Events []*linebot.Event `json:"events"`
	}
	if err := json.Unmarshal(body, &webhook); err != nil {
		return errors.Wrap(err, "parsing LINE events")
	}

	for _, event := range webhook.Events {
		if event.Source == nil || event.Source.GroupID == "" {
			continue
		}
		groupID := event.Source.GroupID
		log := logrus.WithFields(logrus.Fields{"group_id": groupID, "event": event.Type})

		switch event.Type {
		case linebot.EventTypeJoin:
			log.WithField("group_name", h.bot.GroupName(groupID)).Info("Bot joined LINE group")
			h.reply(event.ReplyToken, joinGreeting)

		case linebot.EventTypeLeave:
			if err := h.schools.ForgetLineGroup(ctx, groupID); err != nil {
				log.WithError(err).Error("Failed to unlink LINE group")
				continue
			}
			log.Info("Bot left LINE group")

		case linebot.EventTypeMessage:
			msg, ok := event.Message.(*linebot.TextMessage)
			if !ok {
				continue
			}
			h.command(ctx, log, event.ReplyToken, groupID, event.Source.UserID, msg.Text)
		}
	}
	return nil
}

func (h *LineWebhookHandler) command(ctx context.Context, log *logrus.Entry, replyToken, groupID, userID, text string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return
	}
	log = log.WithField("line_user_id", userID)
	switch strings.ToLower(fields[0]) {
	case "link":
		if len(fields) != 2 {
			h.reply(replyToken, "Usage: link <code>")
			return
		}
		school, err := h.schools.LinkLineGroup(ctx, fields[1], groupID, userID)
		if err != nil {
			log.WithError(err).Warn("LINE group link refused")
			h.reply(replyToken, badLinkCode)
			return
		}
		log.WithField("school_id", school.ID).Info("Linked LINE group to school")
		h.reply(replyToken, fmt.Sprintf("This group will now receive alerts for %s.", school.Name))

	case "unlink":
		if err := h.schools.UnlinkLineGroup(ctx, groupID, userID); err != nil {
			log.WithError(err).Warn("LINE group unlink refused")
			h.reply(replyToken, "Only the person who linked this group can unlink it. The principal can also unlink it from the settings page.")
			return
		}
		log.Info("Unlinked LINE group")
		h.reply(replyToken, "This group will no longer receive school alerts.")
	}
}

func (h *LineWebhookHandler) reply(token, text string) {
	if token == "" {
		return
	}
	if err := h.bot.Reply(token, text); err != nil {
		logrus.WithError(err).Warn("LINE reply failed")
	}
}

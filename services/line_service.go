package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"schoolpulse_go/config"

	"github.com/line/line-bot-sdk-go/linebot"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrLineDisabled = errors.New("LINE messaging is not configured")

// LineService talks to the LINE Messaging API. Without credentials every
// send returns ErrLineDisabled.
type LineService struct {
	bot    *linebot.Client
	secret string
}

func NewLineService(cfg *config.Config) (*LineService, error) {
	if cfg.LineChannelSecret == "" || cfg.LineChannelAccessToken == "" {
		logrus.Info("LINE Messaging API disabled: missing channel secret or access token")
		return &LineService{}, nil
	}
	bot, err := linebot.New(cfg.LineChannelSecret, cfg.LineChannelAccessToken)
	if err != nil {
		return nil, errors.Wrap(err, "creating LINE bot client")
	}
	return &LineService{bot: bot, secret: cfg.LineChannelSecret}, nil
}

func (s *LineService) Enabled() bool {
	return s != nil && s.bot != nil
}

// PushToGroup posts a text message to a group.
func (s *LineService) PushToGroup(groupID, text string) error {
	if !s.Enabled() {
		return ErrLineDisabled
	}
	if _, err := s.bot.PushMessage(groupID, linebot.NewTextMessage(text)).Do(); err != nil {
		return errors.Wrap(err, "LINE push failed")
	}
	return nil
}

// Reply answers a webhook event.
func (s *LineService) Reply(replyToken, text string) error {
	if !s.Enabled() {
		return ErrLineDisabled
	}
	if _, err := s.bot.ReplyMessage(replyToken, linebot.NewTextMessage(text)).Do(); err != nil {
		return errors.Wrap(err, "LINE reply failed")
	}
	return nil
}

// GroupName looks up a group's display name, empty when unavailable.
func (s *LineService) GroupName(groupID string) string {
	if !s.Enabled() {
		return ""
	}
	summary, err := s.bot.GetGroupSummary(groupID).Do()
	if err != nil {
		logrus.WithError(err).WithField("group_id", groupID).Warn("Failed to get LINE group summary")
		return ""
	}
	return summary.GroupName
}

// ValidSignature checks the X-Line-Signature header against the body.
func (s *LineService) ValidSignature(body []byte, signature string) bool {
	if !s.Enabled() || signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(ComputeLineSignature(s.secret, body)))
}

// ComputeLineSignature is the base64 HMAC-SHA256 of body under secret.
func ComputeLineSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

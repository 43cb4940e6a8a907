package email

import (
	"context"
	"sync"

	"schoolpulse_go/config"

	"github.com/sirupsen/logrus"
)

// ConsoleSender logs messages instead of delivering them and keeps a copy
// of everything it sent.
type ConsoleSender struct {
	cfg    *config.Config
	output bool

	mu   sync.Mutex
	sent []Message
}

var _ Sender = (*ConsoleSender)(nil)

func NewConsoleSender(cfg *config.Config, output bool) *ConsoleSender {
	return &ConsoleSender{cfg: cfg, output: output}
}

func (s *ConsoleSender) Send(_ context.Context, msg *Message) error {
	if err := msg.Render(s.cfg); err != nil {
		return err
	}
	if s.output {
		logrus.WithFields(logrus.Fields{
			"to":      msg.To.String(),
			"subject": msg.Subject,
		}).Info(msg.Text)
	}

	s.mu.Lock()
	s.sent = append(s.sent, *msg)
	s.mu.Unlock()
	return nil
}

// Sent returns a snapshot of delivered messages.
func (s *ConsoleSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}

// Last returns the most recent message sent to address.
func (s *ConsoleSender) Last(address string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].To.Address == address {
			return s.sent[i], true
		}
	}
	return Message{}, false
}

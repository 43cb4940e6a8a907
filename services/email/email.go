package email

import (
	"bytes"
	"context"
	"embed"
	htmltmpl "html/template"
	"net/mail"
	"sync"
	texttmpl "text/template"

	"schoolpulse_go/config"

	"github.com/pkg/errors"
)

// Template names
const (
	TemplateVerifyEmail   = "verify_email"
	TemplatePasswordReset = "password_reset"
	TemplateTeacherInvite = "teacher_invite"
)

//go:embed templates/*
var templateFS embed.FS

type Message struct {
	To       mail.Address
	Subject  string
	Template string
	Data     interface{}

	Text string
	HTML string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

type contextData struct {
	AppName         string
	FrontendBaseURL string
	Data            interface{}
}

type templateSet struct {
	text *texttmpl.Template
	html *htmltmpl.Template
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*templateSet{}
)

func lookup(name string) (*templateSet, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if set, ok := cache[name]; ok {
		return set, nil
	}

	text, err := texttmpl.ParseFS(templateFS, "templates/_base.txt", "templates/"+name+".txt")
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s.txt", name)
	}
	html, err := htmltmpl.ParseFS(templateFS, "templates/_base.gohtml", "templates/"+name+".gohtml")
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s.gohtml", name)
	}
	set := &templateSet{
		text: text.Option("missingkey=error"),
		html: html.Option("missingkey=error"),
	}
	cache[name] = set
	return set, nil
}

// Render fills Text and HTML from the message template.
func (m *Message) Render(cfg *config.Config) error {
	if m.Template == "" {
		return nil
	}
	set, err := lookup(m.Template)
	if err != nil {
		return err
	}
	data := contextData{AppName: cfg.AppName, FrontendBaseURL: cfg.FrontendBaseURL, Data: m.Data}

	var buf bytes.Buffer
	if err := set.text.ExecuteTemplate(&buf, "base", data); err != nil {
		return errors.Wrap(err, "rendering text body")
	}
	m.Text = buf.String()

	buf.Reset()
	if err := set.html.ExecuteTemplate(&buf, "base", data); err != nil {
		return errors.Wrap(err, "rendering html body")
	}
	m.HTML = buf.String()
	return nil
}

// LinkData is the payload of the verification and reset templates.
type LinkData struct {
	Name      string
	Link      string
	ExpiresIn string
}

// InviteData is the payload of the teacher invitation.
type InviteData struct {
	Name         string
	Email        string
	TempPassword string
	SchoolName   string
	Link         string
}

// NewSender picks SendGrid when an API key is configured and the console otherwise.
func NewSender(cfg *config.Config) Sender {
	if cfg.SendgridAPIKey != "" {
		return NewSendgridSender(cfg)
	}
	return NewConsoleSender(cfg, true)
}

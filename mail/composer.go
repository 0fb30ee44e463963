package mail

import (
	"bytes"
	"context"
	"embed"
	"io/fs"
	"net/http"

	"github.com/gofiber/template/django/v3"
	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-portal-auth"
)

//go:embed templates/*.html
var templatesFS embed.FS

// DefaultResetTemplate is the template rendered for reset emails
const DefaultResetTemplate = "reset_password"

// TemplateComposer renders reset emails from django templates. It
// implements auth.ResetMessageComposer.
type TemplateComposer struct {
	engine   *django.Engine
	template string
	subject  string
	cc       string
}

type ComposerOption func(*TemplateComposer)

// WithTemplatesFS replaces the embedded templates
func WithTemplatesFS(fsys fs.FS) ComposerOption {
	return func(c *TemplateComposer) {
		if fsys != nil {
			c.engine = django.NewFileSystem(http.FS(fsys), ".html")
		}
	}
}

func WithTemplate(name string) ComposerOption {
	return func(c *TemplateComposer) {
		if name != "" {
			c.template = name
		}
	}
}

func WithSubject(subject string) ComposerOption {
	return func(c *TemplateComposer) {
		if subject != "" {
			c.subject = subject
		}
	}
}

// WithCC copies every reset email to cc
func WithCC(cc string) ComposerOption {
	return func(c *TemplateComposer) {
		c.cc = cc
	}
}

func NewTemplateComposer(opts ...ComposerOption) (*TemplateComposer, error) {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, err
	}

	c := &TemplateComposer{
		engine:   django.NewFileSystem(http.FS(sub), ".html"),
		template: DefaultResetTemplate,
		subject:  "Reset your password",
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.engine.Load(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load mail templates")
	}

	return c, nil
}

// ComposeReset implements auth.ResetMessageComposer
func (c *TemplateComposer) ComposeReset(_ context.Context, data auth.ResetMessageData) (auth.MailMessage, error) {
	var out bytes.Buffer
	err := c.engine.Render(&out, c.template, map[string]any{
		"email":       data.Email,
		"link":        data.Link,
		"expires_at":  data.ExpiresAt,
		"ttl_minutes": int(data.TTL.Minutes()),
	})
	if err != nil {
		return auth.MailMessage{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render reset email").
			WithMetadata(map[string]any{"template": c.template})
	}

	return auth.MailMessage{
		To:      data.Email,
		CC:      c.cc,
		Subject: c.subject,
		Body:    out.String(),
		HTML:    true,
	}, nil
}

package template

import (
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/dmitrymomot/notifyhub/pkg/notification"
)

const defaultSMSLimit = 160

// Rendered is the channel-ready output of a template. Subject is only set
// for mail, Title only for in-app and push.
type Rendered struct {
	Title   string
	Subject string
	Body    string
}

// Renderer compiles a catalog once and renders category/channel templates
// against per-notification context maps. All templates are parsed and
// checked at construction so a broken catalog fails the process at boot,
// not the first notification at 3am.
type Renderer struct {
	templates map[notification.Category]map[notification.Channel]compiledDefinition
	smsLimit  int
}

type compiledDefinition struct {
	title   *template.Template
	subject *template.Template
	body    *template.Template
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithSMSLimit overrides the maximum rendered sms body length.
func WithSMSLimit(limit int) RendererOption {
	return func(r *Renderer) {
		if limit > 0 {
			r.smsLimit = limit
		}
	}
}

// NewRenderer compiles the catalog and validates that every definition has
// the fields its channel requires.
func NewRenderer(catalog Catalog, opts ...RendererOption) (*Renderer, error) {
	r := &Renderer{
		templates: make(map[notification.Category]map[notification.Channel]compiledDefinition, len(catalog)),
		smsLimit:  defaultSMSLimit,
	}
	for _, opt := range opts {
		opt(r)
	}

	for category, channels := range catalog {
		r.templates[category] = make(map[notification.Channel]compiledDefinition, len(channels))
		for channel, def := range channels {
			if err := validateDefinition(channel, def); err != nil {
				return nil, fmt.Errorf("%s/%s: %w", category, channel, err)
			}
			compiled, err := compileDefinition(category, channel, def)
			if err != nil {
				return nil, err
			}
			r.templates[category][channel] = compiled
		}
	}
	return r, nil
}

func validateDefinition(channel notification.Channel, def Definition) error {
	if strings.TrimSpace(def.Body) == "" {
		return ErrMissingBody
	}
	if channel == notification.ChannelMail && strings.TrimSpace(def.Subject) == "" {
		return ErrMissingSubject
	}
	return nil
}

func compileDefinition(category notification.Category, channel notification.Channel, def Definition) (compiledDefinition, error) {
	var (
		compiled compiledDefinition
		err      error
	)
	compile := func(field, text string) *template.Template {
		if err != nil || text == "" {
			return nil
		}
		var tmpl *template.Template
		tmpl, err = template.New(fmt.Sprintf("%s/%s/%s", category, channel, field)).
			Option("missingkey=error").
			Parse(text)
		return tmpl
	}

	compiled.title = compile("title", def.Title)
	compiled.subject = compile("subject", def.Subject)
	compiled.body = compile("body", def.Body)
	if err != nil {
		return compiledDefinition{}, errors.Join(ErrInvalidCatalog, err)
	}
	return compiled, nil
}

// Render produces the channel-ready content for a category. The context
// map supplies template variables; a reference to a key the caller did
// not provide is a render error, not an empty string.
func (r *Renderer) Render(category notification.Category, channel notification.Channel, context map[string]any) (Rendered, error) {
	channels, ok := r.templates[category]
	if !ok {
		return Rendered{}, fmt.Errorf("%w: no templates for category %q", ErrTemplateNotFound, category)
	}
	compiled, ok := channels[channel]
	if !ok {
		return Rendered{}, fmt.Errorf("%w: no %s template for category %q", ErrTemplateNotFound, channel, category)
	}

	var rendered Rendered
	var err error
	rendered.Title, err = execute(compiled.title, context)
	if err == nil {
		rendered.Subject, err = execute(compiled.subject, context)
	}
	if err == nil {
		rendered.Body, err = execute(compiled.body, context)
	}
	if err != nil {
		return Rendered{}, errors.Join(ErrRenderFailed, err)
	}

	if channel == notification.ChannelSMS && len(rendered.Body) > r.smsLimit {
		return Rendered{}, fmt.Errorf("%w: %d > %d", ErrBodyTooLong, len(rendered.Body), r.smsLimit)
	}
	return rendered, nil
}

// Validate confirms a template exists for every known category on every
// templated channel (live carries the in-app payload and has none). A gap
// here would otherwise surface as a delivery failure the moment a user
// enables that channel, so the composition root calls this at boot and
// refuses to start on an incomplete catalog.
func (r *Renderer) Validate() error {
	var missing []string
	for _, category := range notification.Categories() {
		for _, channel := range notification.Channels() {
			if channel == notification.ChannelLive {
				continue
			}
			if !r.Has(category, channel) {
				missing = append(missing, fmt.Sprintf("%s/%s", category, channel))
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteCatalog, strings.Join(missing, ", "))
	}
	return nil
}

// Has reports whether a template exists for the category/channel pair.
func (r *Renderer) Has(category notification.Category, channel notification.Channel) bool {
	_, ok := r.templates[category][channel]
	return ok
}

// RenderFallback renders the in-app template for the category, returning
// its title and body. This is what the ingestion path stores on the
// notification row so the feed has readable text even when a channel
// render later fails.
func (r *Renderer) RenderFallback(category notification.Category, context map[string]any) (string, string, error) {
	rendered, err := r.Render(category, notification.ChannelInApp, context)
	if err != nil {
		return "", "", err
	}
	return rendered.Title, rendered.Body, nil
}

func execute(tmpl *template.Template, context map[string]any) (string, error) {
	if tmpl == nil {
		return "", nil
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, context); err != nil {
		return "", err
	}
	return sb.String(), nil
}

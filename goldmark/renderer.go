// Package goldmark renders artifacts to standalone HTML documents and
// flattens Markdown into plain-text layout blocks, using goldmark for
// parsing.
package goldmark

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/fwojciec/medic"
	"github.com/fwojciec/medic/artifact"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var page = template.Must(template.New("artifact").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Arial, Helvetica, sans-serif; max-width: 800px; margin: 2em auto; color: #222; line-height: 1.5; }
h1 { color: #1a5490; border-bottom: 2px solid #1a5490; padding-bottom: .3em; }
h2 { color: #1a5490; margin-top: 1.5em; }
.meta { color: #666; font-size: .9em; }
.disclaimer { margin-top: 2em; padding: 1em; background: #fff3cd; border-left: 4px solid #ffc107; font-size: .9em; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: .3em .6em; }
</style>
</head>
<body>
<p class="meta">{{.Kind}} &middot; Generated {{.Generated}}</p>
{{.Body}}
<div class="disclaimer">{{.Disclaimer}}</div>
</body>
</html>
`))

type pageData struct {
	Title      string
	Kind       string
	Generated  string
	Body       template.HTML
	Disclaimer template.HTML
}

var _ medic.Renderer = (*Renderer)(nil)

// Renderer renders artifacts as HTML. Raw HTML in artifact text is
// escaped.
type Renderer struct {
	md  goldmark.Markdown
	now func() time.Time
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithClock sets the clock used for the generation timestamp of artifacts
// that carry none.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

// New creates a Renderer with GitHub-flavored Markdown enabled.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
		now: time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Render implements medic.Renderer.
func (r *Renderer) Render(ctx context.Context, a *medic.Artifact) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := r.convert(artifact.Markdown(a))
	if err != nil {
		return nil, err
	}
	disclaimer, err := r.convert(medic.Disclaimer)
	if err != nil {
		return nil, err
	}
	generated := a.CreatedAt
	if generated.IsZero() {
		generated = r.now()
	}
	var buf bytes.Buffer
	err = page.Execute(&buf, pageData{
		Title:      a.Title,
		Kind:       artifact.DefaultTitle(a.Type),
		Generated:  generated.UTC().Format("January 2, 2006 15:04 MST"),
		Body:       template.HTML(body),
		Disclaimer: template.HTML(disclaimer),
	})
	if err != nil {
		return nil, fmt.Errorf("execute template: %w", err)
	}
	return buf.Bytes(), nil
}

// ContentType implements medic.Renderer.
func (r *Renderer) ContentType() string {
	return "text/html; charset=utf-8"
}

func (r *Renderer) convert(source string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}

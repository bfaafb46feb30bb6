// Package render turns a customer's raw reply text into the HTML stored in
// message_html.
package render

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Message formats.
const (
	FormatPlain    = "plain"
	FormatMarkdown = "markdown"
)

var urlRe = regexp.MustCompile(`(?i)\b((?:https?|ftp)://[^\s<>"']+|www\.[^\s<>"']+)`)

// Renderer converts raw messages to sanitized HTML.
type Renderer struct {
	format string
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// New creates a renderer for the given message format.
func New(format string) (*Renderer, error) {
	switch format {
	case "", FormatPlain:
		format = FormatPlain
	case FormatMarkdown:
	default:
		return nil, fmt.Errorf("unknown message format %q", format)
	}

	return &Renderer{
		format: format,
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.Linkify,
				extension.Strikethrough,
				extension.Table,
			),
			goldmark.WithRendererOptions(
				gmhtml.WithHardWraps(),
			),
		),
		policy: newPolicy(),
	}, nil
}

func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements("b", "strong", "i", "em", "u", "s", "del")
	p.AllowElements("h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowElements("p", "br", "hr")
	p.AllowElements("ul", "ol", "li")
	p.AllowElements("blockquote", "code", "pre")
	p.AllowElements("table", "thead", "tbody", "tr", "th", "td")

	// Links
	p.AllowElements("a")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "ftp", "mailto")
	p.RequireParseableURLs(true)
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	return p
}

// Format returns the configured message format.
func (r *Renderer) Format() string {
	return r.format
}

// HTML renders a raw message. Empty input yields "".
func (r *Renderer) HTML(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	var out string
	switch r.format {
	case FormatMarkdown:
		var buf bytes.Buffer
		if err := r.md.Convert([]byte(raw), &buf); err != nil {
			return "", fmt.Errorf("render markdown: %w", err)
		}
		out = buf.String()
	default:
		out = Plain(raw)
	}
	return r.policy.Sanitize(out), nil
}

// Plain escapes text, links URLs and turns newlines into <br />.
func Plain(raw string) string {
	escaped := html.EscapeString(raw)
	linked := urlRe.ReplaceAllStringFunc(escaped, func(m string) string {
		href := m
		if strings.HasPrefix(strings.ToLower(m), "www.") {
			href = "http://" + m
		}
		return `<a href="` + href + `">` + m + `</a>`
	})
	return nl2br(linked)
}

func nl2br(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "<br />\n")
}

// StripHTML removes all markup, leaving text.
func StripHTML(s string) string {
	return html.UnescapeString(bluemonday.StrictPolicy().Sanitize(s))
}

package notifications

import (
	"fmt"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/anri-helpdesk/helpdesk/internal/models"
)

// emailTemplate is the subject and bodies sent for one event.
type emailTemplate struct {
	subject *pongo2.Template
	text    *pongo2.Template
	html    *pongo2.Template
}

const replyByCustomerSubject = `{% autoescape off %}[#{{ ticket.trackid }}] New reply to: {{ ticket.subject }}{% endautoescape %}`

const replyByCustomerText = `{% autoescape off %}Hello {{ staff.name }},

A customer has just replied to ticket "{{ ticket.subject }}".

Tracking ID: {{ ticket.trackid }}
From: {{ ticket.last_reply_by }}
{% for a in attachments %}{% if forloop.First %}Attachments:
{% endif %} - {{ a.RealName }}
{% endfor %}
{{ raw_message }}

You can manage this ticket here:
{{ url }}

Regards,
{{ site_title }}
{% endautoescape %}`

const replyByCustomerHTML = `<p>Hello {{ staff.name }},</p>
<p>A customer has just replied to ticket <b>{{ ticket.subject }}</b>.</p>
<p>Tracking ID: <code>{{ ticket.trackid }}</code><br />From: {{ ticket.last_reply_by }}</p>
<div>{{ ticket.message|safe }}</div>
{% if attachments %}<ul>{% for a in attachments %}<li>{{ a.RealName }}</li>{% endfor %}</ul>{% endif %}
<p><a href="{{ url }}">{{ url }}</a></p>
<p>Regards,<br />{{ site_title }}</p>
`

func mustTemplate(src string) *pongo2.Template {
	return pongo2.Must(pongo2.FromString(src))
}

var defaultTemplates = map[string]*emailTemplate{
	models.EventNewReplyByCustomer: {
		subject: mustTemplate(replyByCustomerSubject),
		text:    mustTemplate(replyByCustomerText),
		html:    mustTemplate(replyByCustomerHTML),
	},
}

// rendered is one composed email.
type rendered struct {
	Subject string
	Text    string
	HTML    string
}

func (t *emailTemplate) render(ctx pongo2.Context) (*rendered, error) {
	subject, err := t.subject.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	text, err := t.text.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("render text body: %w", err)
	}
	html, err := t.html.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("render html body: %w", err)
	}
	return &rendered{
		Subject: strings.Join(strings.Fields(subject), " "),
		Text:    text,
		HTML:    html,
	}, nil
}

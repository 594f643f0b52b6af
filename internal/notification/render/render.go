// Package render turns intents into message text. Templates are keyed by
// notification type; a batch renders one combined message that lists every
// grouped payload.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"auditgov/internal/notification/models"
)

// ErrUnknownType is returned for a type with no template. Retrying cannot
// fix it.
var ErrUnknownType = errors.New("no template for notification type")

// Content is a rendered subject and body.
type Content struct {
	Subject string
	Body    string
}

type pair struct {
	subject *template.Template
	body    *template.Template
}

var funcs = template.FuncMap{
	"date": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.UTC().Format("2 Jan 2006")
	},
}

func mustPair(name, subject, body string) pair {
	return pair{
		subject: template.Must(template.New(name + ".subject").Funcs(funcs).Parse(subject)),
		body:    template.Must(template.New(name + ".body").Funcs(funcs).Parse(body)),
	}
}

var singles = map[models.Type]pair{
	models.TypeAssignment: mustPair("assignment",
		`Observation issued to you: {{.Title}}`,
		`An audit observation has been issued for your response.

Title:    {{.Title}}
Severity: {{.Severity}}
{{with .DueDate}}Due:      {{date .}}
{{end}}`),
	models.TypeResponseReceived: mustPair("response_received",
		`Auditee response received: {{.Title}}`,
		`A {{.ResponseType}} response was submitted on "{{.Title}}".`),
	models.TypeDeadlineReminder7d: mustPair("deadline_reminder_7d",
		`Due in 7 days: {{.Title}}`,
		`"{{.Title}}" ({{.Severity}}) is due on {{date .DueDate}}. Seven days remain.`),
	models.TypeDeadlineReminder3d: mustPair("deadline_reminder_3d",
		`Due in 3 days: {{.Title}}`,
		`"{{.Title}}" ({{.Severity}}) is due on {{date .DueDate}}. Three days remain.`),
	models.TypeDeadlineReminder1d: mustPair("deadline_reminder_1d",
		`Due tomorrow: {{.Title}}`,
		`"{{.Title}}" ({{.Severity}}) is due on {{date .DueDate}}.`),
	models.TypeOverdueEscalation: mustPair("overdue_escalation",
		`Overdue: {{.Title}}`,
		`"{{.Title}}" ({{.Severity}}, {{.Status}}) passed its due date {{date .DueDate}} and is {{.DaysOverdue}} day(s) overdue.`),
	models.TypeWeeklyDigest: mustPair("weekly_digest",
		`Weekly summary: {{.Title}}`,
		`"{{.Title}}" is open in status {{.Status}}{{with .DueDate}}, due {{date .}}{{end}}.`),
}

type batchData struct {
	Count int
	Items []models.Payload
}

var batches = map[models.Type]pair{
	models.TypeBulkDigest: mustPair("bulk_digest",
		`Weekly summary: {{.Count}} open observation(s)`,
		`You have {{.Count}} open observation(s):
{{range .Items}}
- {{.Title}} [{{.Severity}}, {{.Status}}]{{with .DueDate}} due {{date .}}{{end}}{{end}}
`),
	models.TypeResponseReceived: mustPair("response_received_batch",
		`{{.Count}} auditee response(s) received`,
		`New auditee responses:
{{range .Items}}
- {{.Title}} ({{.ResponseType}}){{end}}
`),
}

// batchTypeFor is the type a coalesced group is delivered as.
func batchTypeFor(t models.Type) models.Type {
	if t == models.TypeWeeklyDigest {
		return models.TypeBulkDigest
	}
	return t
}

type Renderer struct{}

func New() *Renderer {
	return &Renderer{}
}

func (r *Renderer) Render(intent *models.Intent) (Content, error) {
	p, ok := singles[intent.Type]
	if !ok {
		return Content{}, fmt.Errorf("%w: %s", ErrUnknownType, intent.Type)
	}
	return execute(p, intent.Payload)
}

// RenderBatch renders one message for a group of intents sharing a batch
// key. Groups of one render as a single intent would.
func (r *Renderer) RenderBatch(intents []*models.Intent) (models.Type, Content, error) {
	if len(intents) == 0 {
		return "", Content{}, errors.New("empty batch")
	}
	if len(intents) == 1 {
		c, err := r.Render(intents[0])
		return intents[0].Type, c, err
	}
	typ := batchTypeFor(intents[0].Type)
	p, ok := batches[typ]
	if !ok {
		p, ok = singles[typ]
		if !ok {
			return "", Content{}, fmt.Errorf("%w: %s", ErrUnknownType, typ)
		}
		c, err := combine(p, intents)
		return typ, c, err
	}
	data := batchData{Count: len(intents), Items: make([]models.Payload, len(intents))}
	for i, intent := range intents {
		data.Items[i] = intent.Payload
	}
	c, err := execute(p, data)
	return typ, c, err
}

// combine joins single renders for types without a dedicated batch
// template.
func combine(p pair, intents []*models.Intent) (Content, error) {
	var subject string
	bodies := make([]string, 0, len(intents))
	for i, intent := range intents {
		c, err := execute(p, intent.Payload)
		if err != nil {
			return Content{}, err
		}
		if i == 0 {
			subject = fmt.Sprintf("%s (+%d more)", c.Subject, len(intents)-1)
		}
		bodies = append(bodies, c.Body)
	}
	return Content{Subject: subject, Body: strings.Join(bodies, "\n\n")}, nil
}

func execute(p pair, data any) (Content, error) {
	var subject, body bytes.Buffer
	if err := p.subject.Execute(&subject, data); err != nil {
		return Content{}, fmt.Errorf("render subject: %w", err)
	}
	if err := p.body.Execute(&body, data); err != nil {
		return Content{}, fmt.Errorf("render body: %w", err)
	}
	return Content{Subject: subject.String(), Body: body.String()}, nil
}

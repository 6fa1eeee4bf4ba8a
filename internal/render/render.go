package render

import (
	"bytes"
	"embed"
	"fmt"
	htmltmpl "html/template"
	"strings"
	texttmpl "text/template"

	"reminderd/internal/domain"
)

//go:embed templates
var templatesFS embed.FS

// Email is one rendered email body.
type Email struct {
	Subject string
	HTML    string
	Text    string
}

// kind is the template family chosen by stage.
type kind string

const (
	kindConfirmation kind = "confirmation"
	kindReminder     kind = "reminder"
	kindStarting     kind = "starting"
)

func kindFor(stage domain.Stage) kind {
	switch stage {
	case domain.StageImmediate:
		return kindConfirmation
	case domain.StageAtEventStart:
		return kindStarting
	default:
		return kindReminder
	}
}

type templateSet struct {
	subject *texttmpl.Template
	html    *htmltmpl.Template
	text    *texttmpl.Template
	sms     *texttmpl.Template
}

var subjects = map[kind]string{
	kindConfirmation: "You're registered: {{.EventTitle}}",
	kindReminder:     "Reminder: {{.EventTitle}} starts {{.TimeUntil}}",
	kindStarting:     "Starting now: {{.EventTitle}}",
}

var sets = mustParse()

func mustParse() map[kind]*templateSet {
	out := make(map[kind]*templateSet, len(subjects))
	for k, subj := range subjects {
		name := string(k)
		out[k] = &templateSet{
			subject: texttmpl.Must(texttmpl.New("subject").Parse(subj)),
			html:    htmltmpl.Must(htmltmpl.ParseFS(templatesFS, "templates/base.html", "templates/"+name+".html")),
			text:    texttmpl.Must(texttmpl.ParseFS(templatesFS, "templates/base.txt", "templates/"+name+".txt")),
			sms:     texttmpl.Must(texttmpl.ParseFS(templatesFS, "templates/"+name+".sms")),
		}
	}
	return out
}

// RenderEmail renders subject, HTML and plain-text bodies for stage.
// Variables are HTML-escaped in the HTML body only.
func RenderEmail(stage domain.Stage, v Vars) (Email, error) {
	set := sets[kindFor(stage)]

	var subj, html, text bytes.Buffer
	if err := set.subject.Execute(&subj, v); err != nil {
		return Email{}, fmt.Errorf("render subject: %w", err)
	}
	if err := set.html.ExecuteTemplate(&html, "base.html", v); err != nil {
		return Email{}, fmt.Errorf("render html: %w", err)
	}
	if err := set.text.ExecuteTemplate(&text, "base.txt", v); err != nil {
		return Email{}, fmt.Errorf("render text: %w", err)
	}
	return Email{
		Subject: strings.TrimSpace(subj.String()),
		HTML:    html.String(),
		Text:    strings.TrimSpace(text.String()) + "\n",
	}, nil
}

// RenderSMS renders the short message body for stage.
func RenderSMS(stage domain.Stage, v Vars) (string, error) {
	var buf bytes.Buffer
	set := sets[kindFor(stage)]
	if err := set.sms.ExecuteTemplate(&buf, string(kindFor(stage))+".sms", v); err != nil {
		return "", fmt.Errorf("render sms: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

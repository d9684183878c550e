package wizards

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

// Paper is a rendered document: the subject line and the HTML body the
// applicant reviews before the document is finalized.
type Paper struct {
	Subject string
	Body    string
}

// PaperTemplate renders the document of a paper step from the collected
// values. The body template escapes interpolations, so user input cannot
// inject markup.
type PaperTemplate struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

// NewPaperTemplate parses the subject and body templates.
func NewPaperTemplate(name, subject, body string) (*PaperTemplate, error) {
	st, err := texttemplate.New(name + "-subject").Parse(subject)
	if err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}
	bt, err := htmltemplate.New(name + "-body").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse body template: %w", err)
	}
	return &PaperTemplate{subject: st, body: bt}, nil
}

// MustPaperTemplate is NewPaperTemplate panicking on parse errors, for
// static declarations.
func MustPaperTemplate(name, subject, body string) *PaperTemplate {
	t, err := NewPaperTemplate(name, subject, body)
	if err != nil {
		panic(err)
	}
	return t
}

// Render produces the document from the given data.
func (t *PaperTemplate) Render(data interface{}) (Paper, error) {
	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return Paper{}, fmt.Errorf("render subject: %w", err)
	}
	if err := t.body.Execute(&body, data); err != nil {
		return Paper{}, fmt.Errorf("render body: %w", err)
	}
	return Paper{Subject: subject.String(), Body: body.String()}, nil
}

package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/azure/tagged-resource-cleanup/types"
)

// MessageTemplates renders the subject and body of a deletion notification from a
// types.Resource. Templates use text/template with the sprig function map.
type MessageTemplates struct {
	Subject *template.Template
	Body    *template.Template
}

func NewMessageTemplates(subject string, body string) (*MessageTemplates, error) {
	subjectTemplate, err := parseTemplate("subject", subject)
	if err != nil {
		return nil, err
	}
	bodyTemplate, err := parseTemplate("body", body)
	if err != nil {
		return nil, err
	}
	return &MessageTemplates{
		Subject: subjectTemplate,
		Body:    bodyTemplate,
	}, nil
}

func (templates *MessageTemplates) Render(resource types.Resource, recipient string) (types.NotificationMessage, error) {
	subject, err := execute(templates.Subject, resource)
	if err != nil {
		return types.NotificationMessage{}, err
	}
	body, err := execute(templates.Body, resource)
	if err != nil {
		return types.NotificationMessage{}, err
	}
	return types.NotificationMessage{
		Subject:   subject,
		Body:      body,
		Recipient: recipient,
	}, nil
}

func parseTemplate(name string, content string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s template: %w", name, err)
	}
	return tmpl, nil
}

func execute(tmpl *template.Template, resource types.Resource) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, resource); err != nil {
		return "", fmt.Errorf("rendering %s template for %s: %w", tmpl.Name(), resource.Name, err)
	}
	return buf.String(), nil
}

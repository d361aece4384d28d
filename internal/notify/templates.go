package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"fitportal/internal/models"
)

const (
	TemplateCustomerThankYou     = "customer-thank-you"
	TemplateBusinessNotification = "business-notification"
)

type templateSet struct {
	subject *template.Template
	body    *template.Template
}

var templates = map[string]templateSet{
	TemplateCustomerThankYou: {
		subject: template.Must(template.New("subject").Parse(`Thanks for getting in touch, {{.FirstName}}`)),
		body: template.Must(template.New("body").Parse(`Hi {{.FirstName}},

Thank you for contacting {{.SiteName}}. We have received your message and will get back to you within one working day.

Here is a copy of what you sent:

Services of interest: {{.Services}}

{{.Message}}

Speak soon,
{{.SiteName}}
`)),
	},
	TemplateBusinessNotification: {
		subject: template.Must(template.New("subject").Parse(`New enquiry from {{.Name}}`)),
		body: template.Must(template.New("body").Parse(`A new contact form submission was received.

Name:      {{.Name}}
Email:     {{.Email}}
Phone:     {{.Phone}}
Services:  {{.Services}}
Submitted: {{.SubmittedAt}}
Reference: #{{.SubmissionID}}

Message:
{{.Message}}

Reply to this email to respond to {{.FirstName}} directly.
`)),
	},
}

type templateData struct {
	SiteName     string
	SubmissionID int64
	Name         string
	FirstName    string
	Email        string
	Phone        string
	Services     string
	Message      string
	SubmittedAt  string
}

func newTemplateData(siteName string, sub models.ContactSubmission) templateData {
	first := strings.TrimSpace(sub.FirstName)
	if first == "" {
		if fields := strings.Fields(sub.Name); len(fields) > 0 {
			first = fields[0]
		}
	}
	phone := "Not provided"
	if sub.Phone != nil && strings.TrimSpace(*sub.Phone) != "" {
		phone = strings.TrimSpace(*sub.Phone)
	}
	submitted := sub.CreatedAt
	if submitted.IsZero() {
		submitted = time.Unix(0, 0)
	}
	return templateData{
		SiteName:     siteName,
		SubmissionID: sub.ID,
		Name:         sub.Name,
		FirstName:    first,
		Email:        sub.Email,
		Phone:        phone,
		Services:     sub.Services,
		Message:      sub.Message,
		SubmittedAt:  submitted.UTC().Format("2 Jan 2006 15:04 MST"),
	}
}

// Render produces subject and body for a named template. Same input, same output.
func Render(name, siteName string, sub models.ContactSubmission) (string, string, error) {
	set, ok := templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", name)
	}
	data := newTemplateData(siteName, sub)
	var subject, body bytes.Buffer
	if err := set.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := set.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", name, err)
	}
	return strings.TrimSpace(subject.String()), body.String(), nil
}

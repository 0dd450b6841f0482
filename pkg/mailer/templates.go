package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// Kind selects the booking email template.
type Kind string

const (
	KindRequestSubmitted Kind = "request_submitted"
	KindRequestAccepted  Kind = "request_accepted"
	KindRequestDeclined  Kind = "request_declined"
)

// BookingDetails fills the template placeholders.
type BookingDetails struct {
	TestCategory string
	TestSubtype  string
	StartsAt     time.Time
	Location     *time.Location
}

var subjects = map[Kind]string{
	KindRequestSubmitted: "Request submitted - Test Mentor",
	KindRequestAccepted:  "Request accepted - Test Mentor",
	KindRequestDeclined:  "Request declined - Test Mentor",
}

var bodyTemplate = template.Must(template.New("booking").Parse(`<div style="font-family: Arial, sans-serif; line-height: 1.5;">
  <h2>{{.Heading}}</h2>
  {{if .Test}}<p><b>Test:</b> {{.Test}}{{if .When}} - <b>Date:</b> {{.When}}{{end}}</p>{{end}}
  <p>{{.Body}}</p>
</div>`))

type bodyData struct {
	Heading string
	Test    string
	When    string
	Body    string
}

// Render builds the email for kind addressed to to.
func Render(kind Kind, to string, details BookingDetails) (Message, error) {
	subject, ok := subjects[kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown mail kind %q", kind)
	}

	data := bodyData{Test: strings.ReplaceAll(details.TestCategory, "_", " ")}
	if data.Test != "" && details.TestSubtype != "" {
		data.Test += " (" + details.TestSubtype + ")"
	}
	if !details.StartsAt.IsZero() {
		loc := details.Location
		if loc == nil {
			loc = time.UTC
		}
		data.When = details.StartsAt.In(loc).Format("Mon 02 Jan 2006 15:04 MST")
	}

	switch kind {
	case KindRequestSubmitted:
		data.Heading = "Your request was submitted successfully"
		data.Body = "Status: pending, waiting for teacher review. You can track it from your Requests page."
	case KindRequestAccepted:
		data.Heading = "Your request was accepted"
		data.Body = "Your chat with the teacher is now available in Test Mentor."
	case KindRequestDeclined:
		data.Heading = "Your request was declined"
		data.Body = "You can submit another request with a different teacher or time."
	}

	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render mail: %w", err)
	}
	return Message{To: to, Subject: subject, HTML: buf.String()}, nil
}

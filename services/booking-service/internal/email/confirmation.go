package email

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

// Confirmation is the data rendered into a booking confirmation email.
type Confirmation struct {
	GuestName     string
	BookingName   string
	HostName      string
	Start         time.Time
	End           time.Time
	Timezone      string
	MeetingLink   string
	CancelURL     string
	RescheduleURL string
	Pending       bool
}

var confirmationBody = template.Must(template.New("confirmation").Parse(`Hi {{.GuestName}},

{{if .Pending}}Your request for {{.BookingName}} with {{.HostName}} was received and is awaiting approval.{{else}}Your {{.BookingName}} with {{.HostName}} is confirmed.{{end}}

When: {{.When}}
Timezone: {{.Zone}}
{{- if .MeetingLink}}
Join: {{.MeetingLink}}
{{- end}}

Need to change something?
Reschedule: {{.RescheduleURL}}
Cancel: {{.CancelURL}}
`))

// Render returns the subject and plain-text body for c. Times are shown in
// c.Timezone, falling back to UTC when it does not resolve.
func (c Confirmation) Render() (string, string, error) {
	loc := time.UTC
	if c.Timezone != "" {
		if l, err := time.LoadLocation(c.Timezone); err == nil {
			loc = l
		}
	}
	start, end := c.Start.In(loc), c.End.In(loc)

	view := struct {
		Confirmation
		When string
		Zone string
	}{
		Confirmation: c,
		When:         fmt.Sprintf("%s, %s - %s", start.Format("Monday, January 2, 2006"), start.Format("15:04"), end.Format("15:04")),
		Zone:         loc.String(),
	}

	var buf bytes.Buffer
	if err := confirmationBody.Execute(&buf, view); err != nil {
		return "", "", err
	}

	subject := fmt.Sprintf("Confirmed: %s with %s", c.BookingName, c.HostName)
	if c.Pending {
		subject = fmt.Sprintf("Requested: %s with %s", c.BookingName, c.HostName)
	}
	return subject, buf.String(), nil
}

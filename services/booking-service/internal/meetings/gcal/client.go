// Package gcal creates Google Calendar events on a host's connected calendar,
// optionally with a Google Meet conference attached.
package gcal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/meetings"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const defaultCalendarID = "primary"

type Client struct {
	oauth    *oauth2.Config
	http     *http.Client
	endpoint string
}

type Option func(*Client)

// WithEndpoint points the client at a different Calendar API base URL.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// WithHTTPClient sets the client used for token refreshes and API calls.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(clientID, clientSecret string, opts ...Option) *Client {
	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{calendar.CalendarEventsScope},
		},
		http: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CreateEvent inserts an event for req on the integration's calendar. With
// withConference it also requests a Meet link and reports it in the result.
// A refreshed token is written back into in.
func (c *Client) CreateEvent(ctx context.Context, in *model.Integration, req model.MeetingRequest, withConference bool) (model.MeetingInfo, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	ts := meetings.TokenSource(ctx, c.oauth, in)

	opts := []option.ClientOption{option.WithTokenSource(ts)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return model.MeetingInfo{}, fmt.Errorf("calendar service: %w", err)
	}

	calendarID := in.CalendarID
	if calendarID == "" {
		calendarID = defaultCalendarID
	}

	created, err := svc.Events.Insert(calendarID, buildEvent(req, withConference)).
		ConferenceDataVersion(1).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return model.MeetingInfo{}, fmt.Errorf("insert event: %w", err)
	}

	info := model.MeetingInfo{CalendarEventID: created.Id}
	if withConference {
		info.MeetingLink = meetLink(created)
		if created.ConferenceData != nil {
			info.MeetingID = created.ConferenceData.ConferenceId
		}
	}
	return info, nil
}

func buildEvent(req model.MeetingRequest, withConference bool) *calendar.Event {
	ev := &calendar.Event{
		Summary:     req.Topic,
		Description: req.Description,
		Start:       &calendar.EventDateTime{DateTime: req.Start.Format(time.RFC3339), TimeZone: req.Timezone},
		End:         &calendar.EventDateTime{DateTime: req.End.Format(time.RFC3339), TimeZone: req.Timezone},
	}
	if req.AttendeeEmail != "" {
		ev.Attendees = []*calendar.EventAttendee{{Email: req.AttendeeEmail, DisplayName: req.AttendeeName}}
	}
	if withConference {
		ev.ConferenceData = &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		}
	}
	return ev
}

func meetLink(ev *calendar.Event) string {
	if ev.HangoutLink != "" {
		return ev.HangoutLink
	}
	if ev.ConferenceData == nil {
		return ""
	}
	for _, ep := range ev.ConferenceData.EntryPoints {
		if ep.EntryPointType == "video" && ep.Uri != "" {
			return ep.Uri
		}
	}
	return ""
}

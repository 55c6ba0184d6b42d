// Package zoom creates scheduled Zoom meetings for a host's connected account.
package zoom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/meetings"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/model"
	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://api.zoom.us/v2"

var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://zoom.us/oauth/authorize",
	TokenURL:  "https://zoom.us/oauth/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

type Client struct {
	oauth   *oauth2.Config
	http    *http.Client
	baseURL string
}

type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithTokenURL(url string) Option {
	return func(c *Client) { c.oauth.Endpoint.TokenURL = url }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(clientID, clientSecret string, opts ...Option) *Client {
	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     Endpoint,
		},
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type createMeetingRequest struct {
	Topic     string          `json:"topic"`
	Type      int             `json:"type"`
	StartTime string          `json:"start_time"`
	Duration  int             `json:"duration"`
	Timezone  string          `json:"timezone,omitempty"`
	Agenda    string          `json:"agenda,omitempty"`
	Settings  meetingSettings `json:"settings"`
}

type meetingSettings struct {
	JoinBeforeHost bool `json:"join_before_host"`
	WaitingRoom    bool `json:"waiting_room"`
}

type meetingResponse struct {
	ID      int64  `json:"id"`
	JoinURL string `json:"join_url"`
}

// scheduledMeeting is Zoom's meeting type for a meeting with a fixed start.
const scheduledMeeting = 2

// CreateMeeting schedules a meeting for req on the integration's account.
// Expired access tokens are refreshed with the stored refresh token and the
// new token is written back into in.
func (c *Client) CreateMeeting(ctx context.Context, in *model.Integration, req model.MeetingRequest) (model.MeetingInfo, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	httpClient := oauth2.NewClient(ctx, meetings.TokenSource(ctx, c.oauth, in))

	body, err := json.Marshal(createMeetingRequest{
		Topic:     req.Topic,
		Type:      scheduledMeeting,
		StartTime: req.Start.UTC().Format(time.RFC3339),
		Duration:  req.DurationMinutes(),
		Timezone:  req.Timezone,
		Agenda:    req.Description,
		Settings:  meetingSettings{JoinBeforeHost: true},
	})
	if err != nil {
		return model.MeetingInfo{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/users/me/meetings", bytes.NewReader(body))
	if err != nil {
		return model.MeetingInfo{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return model.MeetingInfo{}, fmt.Errorf("zoom create meeting: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return model.MeetingInfo{}, fmt.Errorf("zoom create meeting: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out meetingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.MeetingInfo{}, fmt.Errorf("zoom decode meeting: %w", err)
	}
	if out.JoinURL == "" {
		return model.MeetingInfo{}, fmt.Errorf("zoom create meeting: empty join_url")
	}
	return model.MeetingInfo{MeetingLink: out.JoinURL, MeetingID: strconv.FormatInt(out.ID, 10)}, nil
}

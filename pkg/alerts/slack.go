package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SlackSender posts messages to a Slack incoming webhook.
type SlackSender struct {
	webhookURL string
	channel    string
	client     *http.Client
}

// NewSlackSender creates a Slack webhook sender. channel is used when a
// message names no destination.
func NewSlackSender(webhookURL, channel string) *SlackSender {
	return &SlackSender{
		webhookURL: webhookURL,
		channel:    channel,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *SlackSender) Name() string { return "slack" }

func (s *SlackSender) Send(ctx context.Context, msg Message) error {
	channel := msg.Destination
	if channel == "" {
		channel = s.channel
	}

	fields := []slackField{
		{Title: "Route", Value: msg.Route, Short: true},
		{Title: "Deals", Value: fmt.Sprintf("%d", msg.DealCount), Short: true},
	}
	if msg.LowestPrice != "" {
		fields = append(fields, slackField{Title: "Lowest", Value: msg.LowestPrice + " " + msg.Currency, Short: true})
	}
	for _, f := range msg.Fields {
		fields = append(fields, slackField{Title: f.Title, Value: f.Value, Short: true})
	}

	payload := slackPayload{
		Channel: channel,
		Attachments: []slackAttachment{
			{
				Color:  "#36a64f", // green
				Title:  msg.Subject,
				Text:   msg.Text,
				Fields: fields,
				Footer: "Fare Guardian",
				Ts:     time.Now().Unix(),
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}

type slackPayload struct {
	Channel     string            `json:"channel,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

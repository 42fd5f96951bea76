package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// Discord posts messages as webhook embeds. A channel with no configured
// webhook URL is silently skipped.
type Discord struct {
	http     *resty.Client
	webhooks map[Channel]string
}

// NewDiscord builds a notifier from per-channel webhook URLs. Empty URLs
// disable their channel.
func NewDiscord(general, alerts, errors string) *Discord {
	client := resty.New()
	client.SetTimeout(10 * time.Second)
	client.SetHeader("Content-Type", "application/json")

	return &Discord{
		http: client,
		webhooks: map[Channel]string{
			ChannelGeneral: general,
			ChannelAlerts:  alerts,
			ChannelErrors:  errors,
		},
	}
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

var channelColors = map[Channel]int{
	ChannelGeneral: 0x3498db,
	ChannelAlerts:  0xe67e22,
	ChannelErrors:  0xe74c3c,
}

// Post delivers one message to the channel's webhook.
func (d *Discord) Post(ctx context.Context, ch Channel, msg Message) error {
	url := d.webhooks[ch]
	if url == "" {
		logrus.Debugf("No webhook configured for channel %s, dropping message", ch)
		return nil
	}

	e := embed{
		Title:       msg.Title,
		Description: msg.Body,
		URL:         msg.URL,
		Color:       channelColors[ch],
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	for _, f := range msg.Fields {
		e.Fields = append(e.Fields, embedField{Name: f.Name, Value: f.Value, Inline: true})
	}

	resp, err := d.http.R().
		SetContext(ctx).
		SetBody(webhookPayload{Embeds: []embed{e}}).
		Post(url)
	if err != nil {
		return fmt.Errorf("post to %s webhook: %w", ch, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("post to %s webhook: status %d", ch, resp.StatusCode())
	}
	return nil
}

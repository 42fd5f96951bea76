// Package notify delivers structured messages to the notification
// channels. Delivery is fire-and-forget: failures are logged by callers
// and never retried.
package notify

import "context"

// Channel names a notification destination.
type Channel string

const (
	ChannelGeneral Channel = "general"
	ChannelAlerts  Channel = "alerts"
	ChannelErrors  Channel = "errors"
)

// Field is one labeled value in a message.
type Field struct {
	Name  string
	Value string
}

// Message is a structured notification.
type Message struct {
	Title  string
	Body   string
	URL    string
	Fields []Field
}

// Notifier posts messages to a channel.
type Notifier interface {
	Post(ctx context.Context, ch Channel, msg Message) error
}

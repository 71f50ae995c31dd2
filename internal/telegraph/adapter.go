// Package telegraph connects students and reviewers to the homework
// workflows over a chat platform (Slack, Discord).
package telegraph

import (
	"context"
	"fmt"
	"time"
)

// Adapter is the interface that platform-specific implementations must satisfy.
// Each adapter handles connection management and message sending/receiving
// for a single chat platform.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages and button presses.
	// The channel is closed when the context is cancelled or the adapter
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// Editor is an optional interface for adapters that can replace the content
// of a message they posted earlier, such as the one carrying a pressed button.
type Editor interface {
	Edit(ctx context.Context, channelID, messageID string, msg OutboundMessage) error
}

// DirectMessenger is an optional interface for adapters that need to open a
// private channel before messaging a user.
type DirectMessenger interface {
	DirectChannel(ctx context.Context, userID string) (string, error)
}

// BotUserIDer is an optional interface that adapters can implement to
// expose the bot's own user ID. This enables self-message filtering.
type BotUserIDer interface {
	BotUserID() string
}

// InboundMessage represents a message or button press received from the
// chat platform.
type InboundMessage struct {
	Platform  string    // e.g. "slack", "discord"
	ChannelID string    // platform-specific channel identifier
	ThreadID  string    // thread/conversation identifier (empty if top-level)
	MessageID string    // message carrying the pressed button (callbacks only)
	UserID    string    // platform-specific user identifier
	UserName  string    // handle
	FullName  string    // display name, if the platform provides one
	Text      string    // raw message text
	Callback  string    // button payload; empty for plain messages
	Timestamp time.Time // when the message was sent
}

// IsCallback reports whether the message is a button press.
func (m InboundMessage) IsCallback() bool {
	return m.Callback != ""
}

// OutboundMessage represents a message to be sent to the chat platform.
type OutboundMessage struct {
	ChannelID string           // target channel
	ThreadID  string           // thread to reply in (empty for new top-level message)
	Text      string           // message text (platform-native formatting)
	Events    []FormattedEvent // structured attachments
	Buttons   [][]Button       // rows of action buttons
}

// Plain returns a copy of the message without attachments or buttons.
func (m OutboundMessage) Plain() OutboundMessage {
	return OutboundMessage{ChannelID: m.ChannelID, ThreadID: m.ThreadID, Text: m.Text}
}

// Button is an action button. Exactly one of Data or URL is set: Data is sent
// back as InboundMessage.Callback when pressed, URL opens a link.
type Button struct {
	Label string
	Data  string
	URL   string
}

// FormattedEvent is a rich attachment rendered as a Slack attachment or a
// Discord embed.
type FormattedEvent struct {
	Title    string  // headline (e.g. "New submission #12")
	Body     string  // detail text
	Severity string  // "info", "warning", "error", "success"
	Color    string  // sidebar color hint (e.g. "#36a64f" for success)
	Fields   []Field // key-value metadata pairs
}

// Field is a key-value pair displayed in an event attachment.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// DeliveryError reports a message that the platform refused or never got.
type DeliveryError struct {
	ChannelID string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("telegraph: deliver to %s: %v", e.ChannelID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

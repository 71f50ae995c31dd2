package telegraph

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockAdapter implements Adapter, Editor and DirectMessenger for testing. It
// records sent and edited messages and allows simulating inbound messages via
// SimulateInbound.
type MockAdapter struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan InboundMessage
	sent      []OutboundMessage
	edits     []MockEdit
	botUserID string
	failNext  int  // number of upcoming Send calls that fail
	failRich  bool // fail every Send carrying events or buttons
}

// MockEdit is a recorded Edit call.
type MockEdit struct {
	ChannelID string
	MessageID string
	Msg       OutboundMessage
}

// NewMockAdapter creates a MockAdapter with a buffered inbound channel.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		inbound: make(chan InboundMessage, 100),
	}
}

// BotUserID returns the configured bot user ID (implements BotUserIDer).
func (m *MockAdapter) BotUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.botUserID
}

// SetBotUserID sets the bot user ID for testing.
func (m *MockAdapter) SetBotUserID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botUserID = id
}

// Connect marks the adapter as connected.
func (m *MockAdapter) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock adapter: already closed")
	}
	m.connected = true
	return nil
}

// Listen returns the inbound message channel. Must be called after Connect.
func (m *MockAdapter) Listen(ctx context.Context) (<-chan InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock adapter: not connected")
	}
	return m.inbound, nil
}

// Send records the outbound message.
func (m *MockAdapter) Send(ctx context.Context, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	if m.failNext > 0 {
		m.failNext--
		return fmt.Errorf("mock adapter: send failed")
	}
	if m.failRich && (len(msg.Events) > 0 || len(msg.Buttons) > 0) {
		return fmt.Errorf("mock adapter: rich message rejected")
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Edit records the edit (implements Editor).
func (m *MockAdapter) Edit(ctx context.Context, channelID, messageID string, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	m.edits = append(m.edits, MockEdit{ChannelID: channelID, MessageID: messageID, Msg: msg})
	return nil
}

// DirectChannel returns "dm-<userID>" (implements DirectMessenger).
func (m *MockAdapter) DirectChannel(ctx context.Context, userID string) (string, error) {
	return "dm-" + userID, nil
}

// Close shuts down the mock adapter and closes the inbound channel.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.inbound)
	return nil
}

// --- Test helpers ---

// SimulateInbound sends a message into the inbound channel as if it came
// from the chat platform. Safe to call from any goroutine.
func (m *MockAdapter) SimulateInbound(msg InboundMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	m.inbound <- msg
}

// FailNextSends makes the next n Send calls return an error.
func (m *MockAdapter) FailNextSends(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// FailRichSends makes every Send with events or buttons fail.
func (m *MockAdapter) FailRichSends(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRich = fail
}

// LastSent returns the most recently sent outbound message.
// Returns zero value and false if no messages have been sent.
func (m *MockAdapter) LastSent() (OutboundMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return OutboundMessage{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// SentCount returns the number of outbound messages sent.
func (m *MockAdapter) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// AllSent returns a copy of all sent outbound messages.
func (m *MockAdapter) AllSent() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutboundMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentTo returns the messages sent to channelID, in order.
func (m *MockAdapter) SentTo(channelID string) []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OutboundMessage
	for _, msg := range m.sent {
		if msg.ChannelID == channelID {
			out = append(out, msg)
		}
	}
	return out
}

// AllEdits returns a copy of all recorded edits.
func (m *MockAdapter) AllEdits() []MockEdit {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockEdit, len(m.edits))
	copy(out, m.edits)
	return out
}

// LastEdit returns the most recent edit.
func (m *MockAdapter) LastEdit() (MockEdit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.edits) == 0 {
		return MockEdit{}, false
	}
	return m.edits[len(m.edits)-1], true
}

// Reset forgets recorded sends and edits.
func (m *MockAdapter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.edits = nil
}

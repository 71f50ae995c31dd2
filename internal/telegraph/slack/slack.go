// Package slack implements the telegraph Adapter for Slack using Socket Mode.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/JekaCAP/homework-assistant-bot/internal/telegraph"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for reconnection.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff for reconnection.
	maxBackoff = 2 * time.Minute
	// maxReconnectAttempts limits reconnection retries before giving up.
	maxReconnectAttempts = 10
	// maxSectionText is the Block Kit limit for a section's text.
	maxSectionText = 3000
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTest() (*slackapi.AuthTestResponse, error)
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
	UpdateMessage(channelID, timestamp string, options ...slackapi.MsgOption) (string, string, string, error)
	OpenConversation(params *slackapi.OpenConversationParameters) (*slackapi.Channel, bool, bool, error)
	GetUserInfo(userID string) (*slackapi.User, error)
}

// socketClient abstracts the Socket Mode client methods we use.
type socketClient interface {
	Run() error
	EventsChan() chan socketmode.Event
	Ack(req socketmode.Request, payload ...interface{})
}

// realSocketClient wraps *socketmode.Client to implement socketClient.
type realSocketClient struct {
	client *socketmode.Client
}

func (r *realSocketClient) Run() error                        { return r.client.Run() }
func (r *realSocketClient) EventsChan() chan socketmode.Event { return r.client.Events }
func (r *realSocketClient) Ack(req socketmode.Request, payload ...interface{}) {
	r.client.Ack(req, payload...)
}

// Adapter implements telegraph.Adapter, Editor and DirectMessenger for Slack
// Socket Mode.
type Adapter struct {
	client       slackClient
	socket       socketClient
	botUserID    string
	appToken     string
	botToken     string
	channelID    string // default channel for messages without explicit channel
	mu           sync.Mutex
	connected    bool
	closed       bool
	inbound      chan telegraph.InboundMessage
	cancelFunc   context.CancelFunc
	dmCache      map[string]string // user ID -> IM channel ID
	baseBackoff  time.Duration     // reconnection base backoff (default: baseBackoff const)
	maxBackoff   time.Duration     // reconnection max backoff (default: maxBackoff const)
	maxReconnect int               // max reconnection attempts (default: maxReconnectAttempts)
}

// AdapterOpts holds parameters for creating a Slack Adapter.
type AdapterOpts struct {
	AppToken  string // xapp-... Slack app-level token for Socket Mode
	BotToken  string // xoxb-... Slack bot token
	ChannelID string // default channel to post to
	// For testing: inject mock clients instead of real Slack API.
	Client slackClient
	Socket socketClient
}

// New creates a Slack Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Socket == nil && opts.AppToken == "" {
		return nil, fmt.Errorf("slack: app token is required for socket mode")
	}

	return &Adapter{
		client:       opts.Client,
		socket:       opts.Socket,
		appToken:     opts.AppToken,
		botToken:     opts.BotToken,
		channelID:    opts.ChannelID,
		inbound:      make(chan telegraph.InboundMessage, 100),
		dmCache:      make(map[string]string),
		baseBackoff:  baseBackoff,
		maxBackoff:   maxBackoff,
		maxReconnect: maxReconnectAttempts,
	}, nil
}

// Connect establishes the Socket Mode WebSocket connection.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("slack: adapter already closed")
	}
	if a.connected {
		return nil
	}

	// Create real clients if not injected (production path).
	if a.client == nil {
		api := slackapi.New(a.botToken, slackapi.OptionAppLevelToken(a.appToken))
		a.client = api
		a.socket = &realSocketClient{client: socketmode.New(api)}
	}

	auth, err := a.client.AuthTest()
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	a.botUserID = auth.UserID

	a.connected = true
	return nil
}

// Listen returns a channel of inbound messages. Starts the Socket Mode
// event pump in a background goroutine. Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan telegraph.InboundMessage, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return nil, fmt.Errorf("slack: not connected")
	}
	listenCtx, cancel := context.WithCancel(ctx)
	a.cancelFunc = cancel
	a.mu.Unlock()

	go a.runWithReconnect(listenCtx)
	go a.pumpEvents(listenCtx)

	return a.inbound, nil
}

// Send posts a message to Slack. Buttons are rendered as Block Kit action
// blocks and events as attachments.
func (a *Adapter) Send(ctx context.Context, msg telegraph.OutboundMessage) error {
	if err := a.ready(); err != nil {
		return err
	}

	channelID := msg.ChannelID
	if channelID == "" {
		channelID = a.channelID
	}
	if channelID == "" {
		return fmt.Errorf("slack: no channel specified")
	}

	options := buildMessageOptions(msg, false)
	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := a.client.PostMessage(channelID, options...)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// Edit replaces the message posted at timestamp messageID. Buttons left
// out of msg are removed from the message.
func (a *Adapter) Edit(ctx context.Context, channelID, messageID string, msg telegraph.OutboundMessage) error {
	if err := a.ready(); err != nil {
		return err
	}
	if channelID == "" || messageID == "" {
		return fmt.Errorf("slack: edit needs channel and message timestamp")
	}

	options := buildMessageOptions(msg, true)
	err := retryOnRateLimit(ctx, func() error {
		_, _, _, updErr := a.client.UpdateMessage(channelID, messageID, options...)
		return updErr
	})
	if err != nil {
		return fmt.Errorf("slack: update message: %w", err)
	}
	return nil
}

// DirectChannel opens (or reuses) the IM channel with userID.
func (a *Adapter) DirectChannel(ctx context.Context, userID string) (string, error) {
	if err := a.ready(); err != nil {
		return "", err
	}
	a.mu.Lock()
	if id, ok := a.dmCache[userID]; ok {
		a.mu.Unlock()
		return id, nil
	}
	a.mu.Unlock()

	var ch *slackapi.Channel
	err := retryOnRateLimit(ctx, func() error {
		var openErr error
		ch, _, _, openErr = a.client.OpenConversation(&slackapi.OpenConversationParameters{
			Users:    []string{userID},
			ReturnIM: true,
		})
		return openErr
	})
	if err != nil {
		return "", fmt.Errorf("slack: open conversation with %s: %w", userID, err)
	}

	a.mu.Lock()
	a.dmCache[userID] = ch.ID
	a.mu.Unlock()
	return ch.ID, nil
}

// Close shuts down the adapter and closes the inbound channel.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	close(a.inbound)
	return nil
}

// BotUserID returns the bot's Slack user ID (available after Connect).
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

func (a *Adapter) ready() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return fmt.Errorf("slack: not connected")
	}
	return nil
}

// runWithReconnect runs the Socket Mode client and retries with exponential
// backoff when Run() returns an error (e.g., reconnection failure).
func (a *Adapter) runWithReconnect(ctx context.Context) {
	for attempt := 0; attempt < a.maxReconnect; attempt++ {
		err := a.socket.Run()
		if err == nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * a.baseBackoff
		if wait > a.maxBackoff {
			wait = a.maxBackoff
		}

		log.Printf("slack: socket mode disconnected (attempt %d/%d): %v, reconnecting in %v",
			attempt+1, a.maxReconnect, err, wait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
	log.Printf("slack: socket mode exhausted %d reconnection attempts, giving up", a.maxReconnect)
}

// pumpEvents reads Socket Mode events and converts them to InboundMessages.
func (a *Adapter) pumpEvents(ctx context.Context) {
	events := a.socket.EventsChan()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			a.handleSocketEvent(ctx, evt)
		}
	}
}

// handleSocketEvent processes a single Socket Mode event.
func (a *Adapter) handleSocketEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		a.ack(evt)
		a.handleEventsAPI(ctx, eventsAPIEvent)

	case socketmode.EventTypeInteractive:
		callback, ok := evt.Data.(slackapi.InteractionCallback)
		if !ok {
			return
		}
		a.ack(evt)
		a.handleInteraction(ctx, callback)

	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slackapi.SlashCommand)
		if !ok {
			return
		}
		a.ack(evt)
		a.handleSlashCommand(ctx, cmd)

	case socketmode.EventTypeConnecting:
		log.Printf("slack: connecting to Socket Mode...")

	case socketmode.EventTypeConnected:
		log.Printf("slack: connected to Socket Mode")

	case socketmode.EventTypeConnectionError:
		log.Printf("slack: connection error: %v", evt.Data)

	case socketmode.EventTypeDisconnect:
		log.Printf("slack: server requested disconnect, will reconnect")
	}
}

func (a *Adapter) ack(evt socketmode.Event) {
	if evt.Request != nil {
		a.socket.Ack(*evt.Request)
	}
}

// handleEventsAPI processes Events API callbacks.
func (a *Adapter) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		a.handleMessage(ctx, ev)
	case *slackevents.AppMentionEvent:
		a.handleAppMention(ctx, ev)
	}
}

// handleMessage converts a direct message to an InboundMessage. Channel
// messages only reach the bot as app mentions.
func (a *Adapter) handleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	if ev.User == a.BotUserID() {
		return
	}
	// Bot messages and subtypes (edits, deletes, joins).
	if ev.BotID != "" || ev.SubType != "" {
		return
	}
	if ev.ChannelType != "im" {
		return
	}

	userName, fullName := a.resolveUser(ev.User)
	a.emit(ctx, telegraph.InboundMessage{
		Platform:  "slack",
		ChannelID: ev.Channel,
		ThreadID:  ev.ThreadTimeStamp,
		UserID:    ev.User,
		UserName:  userName,
		FullName:  fullName,
		Text:      ev.Text,
		Timestamp: parseSlackTimestamp(ev.TimeStamp),
	})
}

// handleAppMention converts a Slack @mention event to an InboundMessage.
func (a *Adapter) handleAppMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	if ev.User == a.BotUserID() {
		return
	}

	userName, fullName := a.resolveUser(ev.User)
	a.emit(ctx, telegraph.InboundMessage{
		Platform:  "slack",
		ChannelID: ev.Channel,
		ThreadID:  ev.ThreadTimeStamp,
		UserID:    ev.User,
		UserName:  userName,
		FullName:  fullName,
		Text:      ev.Text,
		Timestamp: parseSlackTimestamp(ev.TimeStamp),
	})
}

// handleInteraction converts a Block Kit button press to a callback. The
// pressed message's timestamp becomes the MessageID so replies can edit it.
func (a *Adapter) handleInteraction(ctx context.Context, cb slackapi.InteractionCallback) {
	if cb.Type != slackapi.InteractionTypeBlockActions {
		return
	}
	channelID := cb.Container.ChannelID
	if channelID == "" {
		channelID = cb.Channel.ID
	}
	messageID := cb.Container.MessageTs
	if messageID == "" {
		messageID = cb.Message.Timestamp
	}
	userName, fullName := a.resolveUser(cb.User.ID)
	if userName == cb.User.ID && cb.User.Name != "" {
		userName = cb.User.Name
	}

	for _, action := range cb.ActionCallback.BlockActions {
		// URL buttons also report an action; they carry no payload.
		if action.Value == "" {
			continue
		}
		a.emit(ctx, telegraph.InboundMessage{
			Platform:  "slack",
			ChannelID: channelID,
			ThreadID:  cb.Container.ThreadTs,
			MessageID: messageID,
			UserID:    cb.User.ID,
			UserName:  userName,
			FullName:  fullName,
			Callback:  action.Value,
			Timestamp: parseSlackTimestamp(cb.ActionTs),
		})
	}
}

// handleSlashCommand maps "/submit args" to the equivalent text command.
func (a *Adapter) handleSlashCommand(ctx context.Context, cmd slackapi.SlashCommand) {
	text := strings.TrimSpace(cmd.Command + " " + cmd.Text)
	userName, fullName := a.resolveUser(cmd.UserID)
	if userName == cmd.UserID && cmd.UserName != "" {
		userName = cmd.UserName
	}
	a.emit(ctx, telegraph.InboundMessage{
		Platform:  "slack",
		ChannelID: cmd.ChannelID,
		UserID:    cmd.UserID,
		UserName:  userName,
		FullName:  fullName,
		Text:      text,
		Timestamp: time.Now(),
	})
}

func (a *Adapter) emit(ctx context.Context, msg telegraph.InboundMessage) {
	select {
	case a.inbound <- msg:
	case <-ctx.Done():
	}
}

// resolveUser looks up a user's handle and real name. Falls back to the
// user ID when the lookup fails.
func (a *Adapter) resolveUser(userID string) (userName, fullName string) {
	if userID == "" {
		return "", ""
	}
	user, err := a.client.GetUserInfo(userID)
	if err != nil {
		return userID, ""
	}
	userName = user.Profile.DisplayName
	if userName == "" {
		userName = user.Name
	}
	if userName == "" {
		userName = userID
	}
	return userName, user.RealName
}

// buildMessageOptions translates an OutboundMessage into Slack MsgOptions.
// Edits always carry blocks so that stale buttons are replaced.
func buildMessageOptions(msg telegraph.OutboundMessage, edit bool) []slackapi.MsgOption {
	var options []slackapi.MsgOption

	if msg.ThreadID != "" && !edit {
		options = append(options, slackapi.MsgOptionTS(msg.ThreadID))
	}

	options = append(options, slackapi.MsgOptionText(msg.Text, false))

	if len(msg.Buttons) > 0 || edit {
		options = append(options, slackapi.MsgOptionBlocks(buildBlocks(msg)...))
	}

	if len(msg.Events) > 0 {
		attachments := make([]slackapi.Attachment, 0, len(msg.Events))
		for _, evt := range msg.Events {
			attachments = append(attachments, eventToAttachment(evt))
		}
		options = append(options, slackapi.MsgOptionAttachments(attachments...))
	}

	return options
}

// buildBlocks renders the text as a section followed by one action block
// per button row.
func buildBlocks(msg telegraph.OutboundMessage) []slackapi.Block {
	text := msg.Text
	if len(text) > maxSectionText {
		text = text[:maxSectionText-3] + "..."
	}
	blocks := []slackapi.Block{
		slackapi.NewSectionBlock(slackapi.NewTextBlockObject(slackapi.MarkdownType, text, false, false), nil, nil),
	}
	for i, row := range msg.Buttons {
		elements := make([]slackapi.BlockElement, 0, len(row))
		for j, b := range row {
			elements = append(elements, buttonElement(b, i, j))
		}
		if len(elements) > 0 {
			blocks = append(blocks, slackapi.NewActionBlock("row_"+strconv.Itoa(i), elements...))
		}
	}
	return blocks
}

// buttonElement converts a Button. Action IDs must be unique per message.
func buttonElement(b telegraph.Button, row, col int) *slackapi.ButtonBlockElement {
	actionID := fmt.Sprintf("btn_%d_%d", row, col)
	el := slackapi.NewButtonBlockElement(actionID, b.Data, slackapi.NewTextBlockObject(slackapi.PlainTextType, b.Label, true, false))
	if b.URL != "" {
		el.URL = b.URL
	}
	return el
}

// eventToAttachment converts a FormattedEvent to a Slack Attachment.
func eventToAttachment(evt telegraph.FormattedEvent) slackapi.Attachment {
	att := slackapi.Attachment{
		Title:    evt.Title,
		Text:     evt.Body,
		Color:    evt.Color,
		Fallback: evt.Title,
	}

	for _, f := range evt.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}

	return att
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
// It respects context cancellation and the RetryAfter duration from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err
		}

		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}

// parseSlackTimestamp converts a Slack timestamp (e.g., "1234567890.123456")
// to a time.Time.
func parseSlackTimestamp(ts string) time.Time {
	sec, _, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0)
}

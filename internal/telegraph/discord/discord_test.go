package discord

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/JekaCAP/homework-assistant-bot/internal/telegraph"
)

// --- Mock Discord session ---

type mockSession struct {
	mu           sync.Mutex
	opened       bool
	closeCalled  bool
	openErr      error
	sentMessages []sentMessage
	edits        []*discordgo.MessageEdit
	sendErr      error
	dmOpens      int
	dmErr        error
	responses    []*discordgo.InteractionResponse
	handlerCount int
	removeCount  int
	channels     map[string]*discordgo.Channel // for Channel() lookups
}

type sentMessage struct {
	channelID string
	data      *discordgo.MessageSend
}

func newMockSession() *mockSession {
	return &mockSession{channels: make(map[string]*discordgo.Channel)}
}

func (m *mockSession) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	m.opened = true
	return nil
}

func (m *mockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalled = true
	return nil
}

func (m *mockSession) Channel(channelID string) (*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[channelID]; ok {
		return ch, nil
	}
	return nil, fmt.Errorf("channel not found: %s", channelID)
}

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sentMessages = append(m.sentMessages, sentMessage{channelID: channelID, data: data})
	return &discordgo.Message{ID: "msg-123"}, nil
}

func (m *mockSession) ChannelMessageEditComplex(e *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.edits = append(m.edits, e)
	return &discordgo.Message{ID: e.ID}, nil
}

func (m *mockSession) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dmOpens++
	if m.dmErr != nil {
		return nil, m.dmErr
	}
	return &discordgo.Channel{ID: "dm-" + recipientID, Type: discordgo.ChannelTypeDM}, nil
}

func (m *mockSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	return nil
}

func (m *mockSession) AddHandler(handler interface{}) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlerCount++
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.removeCount++
	}
}

func (m *mockSession) lastSent() sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sentMessages[len(m.sentMessages)-1]
}

// --- Helpers ---

func newTestAdapter(t *testing.T) (*Adapter, *mockSession) {
	t.Helper()
	sess := newMockSession()
	a, err := New(AdapterOpts{Session: sess, ChannelID: "C_DEFAULT"})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	a.SetBotUserID("BOT_USER_ID")
	return a, sess
}

func listen(t *testing.T, a *Adapter) (<-chan telegraph.InboundMessage, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ch, err := a.Listen(ctx)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ch, ctx
}

func receive(t *testing.T, ch <-chan telegraph.InboundMessage) telegraph.InboundMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for inbound message")
	}
	return telegraph.InboundMessage{}
}

func expectNothing(t *testing.T, ch <-chan telegraph.InboundMessage) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected inbound message: %+v", msg)
	default:
	}
}

func dm(content string, author *discordgo.User) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "123456789012345678",
		ChannelID: "DM1",
		Content:   content,
		Author:    author,
	}}
}

// --- New / Connect ---

func TestNew_RequiresBotToken(t *testing.T) {
	if _, err := New(AdapterOpts{}); err == nil {
		t.Fatal("expected error for missing bot token")
	}
	if _, err := New(AdapterOpts{BotToken: "token"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConnect_RegistersHandlers(t *testing.T) {
	a, sess := newTestAdapter(t)
	if !sess.opened {
		t.Error("gateway should be opened")
	}
	// Ready, Disconnect, Resumed.
	if sess.handlerCount != 3 {
		t.Errorf("handlers = %d, want 3", sess.handlerCount)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Errorf("second connect: %v", err)
	}
	if sess.handlerCount != 3 {
		t.Error("connect should be idempotent")
	}
}

func TestConnect_OpenError(t *testing.T) {
	sess := newMockSession()
	sess.openErr = fmt.Errorf("invalid token")
	a, _ := New(AdapterOpts{Session: sess})
	err := a.Connect(context.Background())
	if err == nil || !strings.Contains(err.Error(), "open gateway") {
		t.Errorf("err = %v", err)
	}
}

func TestListen_NotConnected(t *testing.T) {
	a, _ := New(AdapterOpts{Session: newMockSession()})
	if _, err := a.Listen(context.Background()); err == nil {
		t.Fatal("expected error for listen before connect")
	}
}

func TestListen_RegistersMessageAndInteractionHandlers(t *testing.T) {
	a, sess := newTestAdapter(t)
	listen(t, a)
	if sess.handlerCount != 5 {
		t.Errorf("handlers = %d, want 5", sess.handlerCount)
	}
	a.Close()
	if sess.removeCount != 2 {
		t.Errorf("removed = %d, want 2", sess.removeCount)
	}
}

// --- Inbound messages ---

func TestHandleMessage_DirectMessage(t *testing.T) {
	a, _ := newTestAdapter(t)
	ch, ctx := listen(t, a)

	a.handleMessage(ctx, dm("/start", &discordgo.User{ID: "U_ALICE", Username: "alice", GlobalName: "Alice Smith"}))

	msg := receive(t, ch)
	if msg.Platform != "discord" || msg.ChannelID != "DM1" || msg.UserID != "U_ALICE" {
		t.Errorf("msg = %+v", msg)
	}
	if msg.UserName != "alice" || msg.FullName != "Alice Smith" {
		t.Errorf("names = %q / %q", msg.UserName, msg.FullName)
	}
	if msg.Text != "/start" {
		t.Errorf("text = %q", msg.Text)
	}
	if msg.Timestamp.IsZero() {
		t.Error("timestamp should come from the snowflake")
	}
}

func TestHandleMessage_Filters(t *testing.T) {
	a, _ := newTestAdapter(t)
	ch, ctx := listen(t, a)

	a.handleMessage(ctx, dm("hi", nil))
	a.handleMessage(ctx, dm("hi", &discordgo.User{ID: "BOT_USER_ID"}))
	a.handleMessage(ctx, dm("hi", &discordgo.User{ID: "U_OTHER_BOT", Bot: true}))

	guildChatter := dm("just chatting", &discordgo.User{ID: "U_ALICE"})
	guildChatter.GuildID = "G1"
	a.handleMessage(ctx, guildChatter)

	expectNothing(t, ch)
}

func TestHandleMessage_GuildCommandsAndMentions(t *testing.T) {
	a, sess := newTestAdapter(t)
	ch, ctx := listen(t, a)
	sess.channels["T1"] = &discordgo.Channel{ID: "T1", ParentID: "C1", Type: discordgo.ChannelTypeGuildPublicThread}

	cmd := dm("!pending", &discordgo.User{ID: "U_REVIEWER", Username: "reviewer"})
	cmd.GuildID = "G1"
	cmd.ChannelID = "T1"
	cmd.Member = &discordgo.Member{Nick: "Ms. Reviewer"}
	a.handleMessage(ctx, cmd)

	msg := receive(t, ch)
	if msg.ChannelID != "C1" || msg.ThreadID != "T1" {
		t.Errorf("thread mapping = %q/%q", msg.ChannelID, msg.ThreadID)
	}
	if msg.FullName != "Ms. Reviewer" {
		t.Errorf("full name = %q, want member nick", msg.FullName)
	}

	mention := dm("<@BOT_USER_ID> help", &discordgo.User{ID: "U_ALICE"})
	mention.GuildID = "G1"
	mention.Mentions = []*discordgo.User{{ID: "BOT_USER_ID"}}
	a.handleMessage(ctx, mention)
	if got := receive(t, ch); got.Text != "<@BOT_USER_ID> help" {
		t.Errorf("text = %q", got.Text)
	}
}

func TestHandleInteraction_ButtonPress(t *testing.T) {
	a, sess := newTestAdapter(t)
	ch, ctx := listen(t, a)

	a.handleInteraction(ctx, &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionMessageComponent,
		ChannelID: "DM1",
		User:      &discordgo.User{ID: "U_ALICE", Username: "alice"},
		Message:   &discordgo.Message{ID: "M42"},
		Data:      discordgo.MessageComponentInteractionData{CustomID: "assignment_3"},
	}})

	msg := receive(t, ch)
	if msg.Callback != "assignment_3" || msg.MessageID != "M42" || msg.ChannelID != "DM1" {
		t.Errorf("msg = %+v", msg)
	}
	if len(sess.responses) != 1 || sess.responses[0].Type != discordgo.InteractionResponseDeferredMessageUpdate {
		t.Errorf("responses = %+v", sess.responses)
	}
}

func TestHandleInteraction_GuildMember(t *testing.T) {
	a, _ := newTestAdapter(t)
	ch, ctx := listen(t, a)

	a.handleInteraction(ctx, &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionMessageComponent,
		ChannelID: "C_ADMIN",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "U_REVIEWER", Username: "reviewer"}},
		Message:   &discordgo.Message{ID: "M1"},
		Data:      discordgo.MessageComponentInteractionData{CustomID: "review_12_100"},
	}})

	if msg := receive(t, ch); msg.UserID != "U_REVIEWER" {
		t.Errorf("user = %q, want member user", msg.UserID)
	}
}

func TestHandleInteraction_IgnoresOtherTypes(t *testing.T) {
	a, sess := newTestAdapter(t)
	ch, ctx := listen(t, a)
	a.handleInteraction(ctx, &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionPing,
	}})
	expectNothing(t, ch)
	if len(sess.responses) != 0 {
		t.Error("non-component interactions are not acknowledged here")
	}
}

// --- Outbound ---

func TestSend_SimpleText(t *testing.T) {
	a, sess := newTestAdapter(t)
	if err := a.Send(context.Background(), telegraph.OutboundMessage{ChannelID: "C1", Text: "hello"}); err != nil {
		t.Fatal(err)
	}
	last := sess.lastSent()
	if last.channelID != "C1" || last.data.Content != "hello" {
		t.Errorf("sent = %+v", last)
	}
	if len(last.data.Components) != 0 {
		t.Error("plain message should have no components")
	}
}

func TestSend_Routing(t *testing.T) {
	a, sess := newTestAdapter(t)
	a.Send(context.Background(), telegraph.OutboundMessage{Text: "x"})
	if got := sess.lastSent().channelID; got != "C_DEFAULT" {
		t.Errorf("default channel = %q", got)
	}
	a.Send(context.Background(), telegraph.OutboundMessage{ChannelID: "C1", ThreadID: "T1", Text: "x"})
	if got := sess.lastSent().channelID; got != "T1" {
		t.Errorf("thread reply went to %q, want T1", got)
	}
}

func TestSend_NoChannel(t *testing.T) {
	sess := newMockSession()
	a, _ := New(AdapterOpts{Session: sess})
	a.Connect(context.Background())
	if err := a.Send(context.Background(), telegraph.OutboundMessage{Text: "x"}); err == nil {
		t.Fatal("expected error for no channel")
	}
}

func TestSend_NotConnected(t *testing.T) {
	a, _ := New(AdapterOpts{Session: newMockSession()})
	if err := a.Send(context.Background(), telegraph.OutboundMessage{ChannelID: "C1"}); err == nil {
		t.Fatal("expected error when not connected")
	}
}

func TestSend_ButtonsAndEmbeds(t *testing.T) {
	a, sess := newTestAdapter(t)
	err := a.Send(context.Background(), telegraph.OutboundMessage{
		ChannelID: "C_ADMIN",
		Text:      "New submission #12",
		Events:    []telegraph.FormattedEvent{{Title: "New submission #12", Color: "#2196f3"}},
		Buttons: [][]telegraph.Button{
			{{Label: "✅ 100", Data: "review_12_100"}},
			{{Label: "🔗 Open PR", URL: "https://github.com/alice/repo/pull/7"}, {Label: "❌ Cancel", Data: "cancel"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	data := sess.lastSent().data
	if len(data.Embeds) != 1 || data.Embeds[0].Color != 0x2196f3 {
		t.Errorf("embeds = %+v", data.Embeds)
	}
	if len(data.Components) != 2 {
		t.Fatalf("rows = %d, want 2", len(data.Components))
	}
	row := data.Components[1].(discordgo.ActionsRow)
	link := row.Components[0].(discordgo.Button)
	if link.Style != discordgo.LinkButton || link.URL == "" || link.CustomID != "" {
		t.Errorf("link button = %+v", link)
	}
	if cancel := row.Components[1].(discordgo.Button); cancel.Style != discordgo.DangerButton || cancel.CustomID != "cancel" {
		t.Errorf("cancel button = %+v", cancel)
	}
}

func TestSend_PostError(t *testing.T) {
	a, sess := newTestAdapter(t)
	sess.sendErr = fmt.Errorf("missing access")
	if err := a.Send(context.Background(), telegraph.OutboundMessage{ChannelID: "C1", Text: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestEdit_ClearsComponents(t *testing.T) {
	a, sess := newTestAdapter(t)
	if err := a.Edit(context.Background(), "DM1", "M42", telegraph.OutboundMessage{Text: "❌ Action cancelled."}); err != nil {
		t.Fatal(err)
	}
	if len(sess.edits) != 1 {
		t.Fatalf("edits = %d", len(sess.edits))
	}
	e := sess.edits[0]
	if e.ID != "M42" || e.Channel != "DM1" || *e.Content != "❌ Action cancelled." {
		t.Errorf("edit = %+v", e)
	}
	if e.Components == nil || len(*e.Components) != 0 {
		t.Error("edit should send an empty component list to drop old buttons")
	}
}

func TestEdit_RequiresTarget(t *testing.T) {
	a, _ := newTestAdapter(t)
	if err := a.Edit(context.Background(), "DM1", "", telegraph.OutboundMessage{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestDirectChannel_Cached(t *testing.T) {
	a, sess := newTestAdapter(t)
	for i := 0; i < 2; i++ {
		id, err := a.DirectChannel(context.Background(), "U_ALICE")
		if err != nil || id != "dm-U_ALICE" {
			t.Fatalf("DirectChannel = %q, %v", id, err)
		}
	}
	if sess.dmOpens != 1 {
		t.Errorf("opens = %d, want 1", sess.dmOpens)
	}
}

func TestDirectChannel_Error(t *testing.T) {
	a, sess := newTestAdapter(t)
	sess.dmErr = fmt.Errorf("cannot send messages to this user")
	if _, err := a.DirectChannel(context.Background(), "U_X"); err == nil {
		t.Fatal("expected error")
	}
}

func TestClose_Idempotent(t *testing.T) {
	a, sess := newTestAdapter(t)
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if !sess.closeCalled {
		t.Error("session should be closed")
	}
	if err := a.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := a.Connect(context.Background()); err == nil {
		t.Error("connect after close should fail")
	}
}

// --- Helpers ---

func TestBuildComponents_Limits(t *testing.T) {
	row := make([]telegraph.Button, 7)
	for i := range row {
		row[i] = telegraph.Button{Label: fmt.Sprint(i), Data: fmt.Sprint("b", i)}
	}
	got := buildComponents([][]telegraph.Button{row})
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 7 buttons split into 2", len(got))
	}
	if n := len(got[0].(discordgo.ActionsRow).Components); n != maxButtonsPerRow {
		t.Errorf("first row = %d buttons", n)
	}

	many := make([][]telegraph.Button, 8)
	for i := range many {
		many[i] = []telegraph.Button{{Label: "x", Data: fmt.Sprint(i)}}
	}
	if got := buildComponents(many); len(got) != maxRows {
		t.Errorf("rows = %d, want capped at %d", len(got), maxRows)
	}
	if buildComponents(nil) != nil {
		t.Error("no buttons should give nil components")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	long := strings.Repeat("я", 100)
	if got := []rune(truncate(long, maxLabel)); len(got) != maxLabel || got[maxLabel-1] != '…' {
		t.Errorf("truncated length = %d", len(got))
	}
}

func TestEventToEmbed(t *testing.T) {
	embed := eventToEmbed(telegraph.FormattedEvent{
		Title:  "Reviewed",
		Body:   "Accepted",
		Color:  "#36a64f",
		Fields: []telegraph.Field{{Name: "Score", Value: "90/100", Short: true}},
	})
	if embed.Title != "Reviewed" || embed.Description != "Accepted" || embed.Color != 0x36a64f {
		t.Errorf("embed = %+v", embed)
	}
	if len(embed.Fields) != 1 || !embed.Fields[0].Inline {
		t.Errorf("fields = %+v", embed.Fields)
	}
	if eventToEmbed(telegraph.FormattedEvent{Title: "x"}).Color != 0 {
		t.Error("no color should stay 0")
	}
}

func TestParseHexColor(t *testing.T) {
	tests := map[string]int{
		"#36a64f": 0x36a64f,
		"E53935":  0xe53935,
		"#FF9800": 0xff9800,
		"":        0,
	}
	for in, want := range tests {
		if got := parseHexColor(in); got != want {
			t.Errorf("parseHexColor(%q) = %x, want %x", in, got, want)
		}
	}
}

// --- Rate limits ---

func rateLimited() error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: 429}}
}

func TestRetryOnRateLimit_RetriesAndSucceeds(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.baseBackoff = time.Millisecond
	a.maxBackoff = 10 * time.Millisecond

	calls := 0
	err := a.retryOnRateLimit(context.Background(), func() error {
		calls++
		if calls < 3 {
			return rateLimited()
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestRetryOnRateLimit_NonRateLimitError(t *testing.T) {
	a, _ := newTestAdapter(t)
	calls := 0
	err := a.retryOnRateLimit(context.Background(), func() error {
		calls++
		return fmt.Errorf("some other error")
	})
	if err == nil || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestRetryOnRateLimit_ExhaustsRetries(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.baseBackoff = time.Millisecond
	a.maxBackoff = time.Millisecond
	calls := 0
	err := a.retryOnRateLimit(context.Background(), func() error {
		calls++
		return rateLimited()
	})
	if err == nil || calls != maxRetries+1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestRetryOnRateLimit_RespectsContext(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.baseBackoff = time.Hour
	a.maxBackoff = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.retryOnRateLimit(ctx, rateLimited); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

var (
	_ telegraph.Adapter         = (*Adapter)(nil)
	_ telegraph.Editor          = (*Adapter)(nil)
	_ telegraph.DirectMessenger = (*Adapter)(nil)
	_ telegraph.BotUserIDer     = (*Adapter)(nil)
)

package telegraph

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/JekaCAP/homework-assistant-bot/internal/roster"
)

// Router classifies inbound chat events and routes them to the
// conversation: button callbacks, commands, or free text.
type Router struct {
	db        *gorm.DB
	conv      *Conversation
	adapter   Adapter
	botUserID string // the bot's own user ID (to filter self-messages)
	out       io.Writer
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	DB           *gorm.DB
	Conversation *Conversation
	Adapter      Adapter
	BotUserID    string    // bot's user ID for self-message filtering
	Out          io.Writer // defaults to os.Stdout
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("telegraph: router: db is required")
	}
	if opts.Conversation == nil {
		return nil, fmt.Errorf("telegraph: router: conversation is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: router: adapter is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Router{
		db:        opts.DB,
		conv:      opts.Conversation,
		adapter:   opts.Adapter,
		botUserID: opts.BotUserID,
		out:       out,
	}, nil
}

// Handle classifies and routes a single inbound event. Routing paths:
//  1. Bot self-message → ignore
//  2. Register or touch the sender
//  3. Button callback → Conversation.Callback
//  4. "/cmd" or "!cmd" → Conversation.Command
//  5. Everything else → Conversation.Text
func (r *Router) Handle(ctx context.Context, msg InboundMessage) {
	if r.isSelfMessage(msg) || msg.UserID == "" {
		return
	}

	student, err := roster.Touch(r.db, roster.Identity{
		ChatUserID: msg.UserID,
		Platform:   msg.Platform,
		Username:   msg.UserName,
		FullName:   msg.FullName,
	})
	if err != nil {
		log.Printf("telegraph: router: register %s: %v", msg.UserID, err)
		r.send(ctx, msg, textReply("❌ Something went wrong. Please try again later."))
		return
	}

	var reply Reply
	if msg.IsCallback() {
		fmt.Fprintf(r.out, "telegraph: router: callback [user=%s] %q\n", msg.UserID, msg.Callback)
		reply = r.conv.Callback(ctx, student, msg.Callback)
	} else {
		text := stripMentions(msg.Text)
		if text == "" {
			return
		}
		if name, args, ok := parseCommand(text); ok {
			fmt.Fprintf(r.out, "telegraph: router: command [user=%s] /%s\n", msg.UserID, name)
			reply = r.conv.Command(ctx, student, name, args)
		} else {
			fmt.Fprintf(r.out, "telegraph: router: text [user=%s] %q\n", msg.UserID, truncate(text, 80))
			reply = r.conv.Text(ctx, student, text)
		}
	}
	r.send(ctx, msg, reply)
}

// send renders reply into the channel the event came from. Callback replies
// that ask for an edit replace the originating message when the adapter
// supports it.
func (r *Router) send(ctx context.Context, msg InboundMessage, reply Reply) {
	if reply.empty() {
		return
	}
	out := OutboundMessage{
		ChannelID: msg.ChannelID,
		ThreadID:  msg.ThreadID,
		Text:      reply.Text,
		Events:    reply.Events,
		Buttons:   reply.Buttons,
	}
	if reply.Edit && msg.MessageID != "" {
		if ed, ok := r.adapter.(Editor); ok {
			err := ed.Edit(ctx, msg.ChannelID, msg.MessageID, out)
			if err == nil {
				return
			}
			log.Printf("telegraph: router: edit %s: %v", msg.MessageID, err)
		}
	}
	if err := r.adapter.Send(ctx, out); err != nil {
		log.Printf("telegraph: router: send reply: %v", err)
	}
}

// truncate returns s truncated to maxLen with "..." appended if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// isSelfMessage returns true if the message is from the bot itself.
func (r *Router) isSelfMessage(msg InboundMessage) bool {
	return r.botUserID != "" && msg.UserID == r.botUserID
}

// mentionRe matches Slack and Discord mention formats: <@ID> or <@!ID>.
var mentionRe = regexp.MustCompile(`<@!?[A-Za-z0-9]+>`)

// stripMentions removes bot mentions so "@bot /submit" works like "/submit".
func stripMentions(text string) string {
	return strings.TrimSpace(mentionRe.ReplaceAllString(text, ""))
}

// Package routing connects messaging channels to the dialog controller.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/soyeahso/arbiter/internal/channel"
	"github.com/soyeahso/arbiter/internal/dialog"
	"github.com/soyeahso/arbiter/internal/domain"
	"github.com/soyeahso/arbiter/internal/logging"
)

const queueSize = 64

// route is where coordinator messages are rendered.
type route struct {
	channelID string
	to        string
}

type outbound struct {
	route route
	msg   domain.Message
}

// Router feeds channel messages to the controller as turns and renders every
// coordinator message back to the chat that produced the latest turn.
type Router struct {
	ctrl     *dialog.Controller
	channels *channel.Registry
	mention  string
	log      *logging.Logger

	in  chan domain.InboundMessage
	out chan outbound

	mu      sync.Mutex
	last    *route
	options []string // quick replies of the latest coordinator message

	unsubscribe func()
}

// NewRouter creates a router. mention is the keyword stripped from the front
// of channel messages, usually the bot nick.
func NewRouter(ctrl *dialog.Controller, channels *channel.Registry, mention string, log *logging.Logger) *Router {
	return &Router{
		ctrl:     ctrl,
		channels: channels,
		mention:  mention,
		log:      log.Sub("routing"),
		in:       make(chan domain.InboundMessage, queueSize),
		out:      make(chan outbound, queueSize),
	}
}

// Wire registers the router as the message handler on all channels and
// subscribes to the transcript. Call it before the channels start.
func (r *Router) Wire() {
	for _, id := range r.channels.List() {
		ch, ok := r.channels.Get(id)
		if !ok {
			continue
		}
		ch.OnMessage(r.enqueue)
		r.log.Debug().Str("channel", id).Msg("wired message handler")
	}
	r.unsubscribe = r.ctrl.Transcript().Subscribe(r.onAppend)
}

// Run processes inbound turns and outbound coordinator messages until ctx is
// cancelled.
func (r *Router) Run(ctx context.Context) error {
	if r.unsubscribe != nil {
		defer r.unsubscribe()
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-r.in:
			r.HandleInbound(ctx, msg)
		case o := <-r.out:
			r.deliver(ctx, o)
		}
	}
}

func (r *Router) enqueue(msg domain.InboundMessage) {
	select {
	case r.in <- msg:
	default:
		r.log.Warn().
			Str("channel", msg.ChannelID).
			Str("from", msg.From).
			Msg("inbound queue full, dropping message")
	}
}

// HandleInbound submits one channel message as a turn. A message consisting
// only of an option number selects that option of the latest coordinator
// message.
func (r *Router) HandleInbound(ctx context.Context, msg domain.InboundMessage) {
	text := stripMention(msg.Body, r.mention)

	r.log.Info().
		Str("channel", msg.ChannelID).
		Str("from", msg.From).
		Str("chatId", msg.ChatID).
		Msg("routing inbound message")

	r.mu.Lock()
	r.last = &route{channelID: msg.ChannelID, to: replyTarget(msg)}
	option, isOption := PickOption(text, r.options)
	r.mu.Unlock()

	var err error
	if isOption {
		_, err = r.ctrl.SelectOption(ctx, option)
	} else {
		_, err = r.ctrl.Submit(ctx, text)
	}
	if err != nil {
		if errors.Is(err, dialog.ErrStopped) || errors.Is(err, context.Canceled) {
			r.log.Debug().Err(err).Msg("turn dropped during shutdown")
			return
		}
		r.log.Error().Err(err).Str("channel", msg.ChannelID).Msg("submit failed")
	}
}

// onAppend runs on the controller's executor and must not block.
func (r *Router) onAppend(msg domain.Message) {
	if msg.Role != domain.RoleCoordinator {
		return
	}

	r.mu.Lock()
	r.options = msg.Options
	last := r.last
	r.mu.Unlock()

	if last == nil {
		return
	}
	select {
	case r.out <- outbound{route: *last, msg: msg}:
	default:
		r.log.Warn().Int64("messageId", msg.ID).Msg("outbound queue full, dropping coordinator message")
	}
}

func (r *Router) deliver(ctx context.Context, o outbound) {
	ch, ok := r.channels.Get(o.route.channelID)
	if !ok {
		r.log.Error().Str("channel", o.route.channelID).Msg("channel not found for reply")
		return
	}

	reply := domain.OutboundMessage{
		ChannelID: o.route.channelID,
		To:        o.route.to,
		Body:      Render(o.msg),
	}
	if err := ch.Send(ctx, reply); err != nil {
		r.log.Error().Err(err).
			Str("channel", reply.ChannelID).
			Str("to", reply.To).
			Msg("failed to send reply")
		return
	}
	r.log.Debug().
		Str("channel", reply.ChannelID).
		Str("to", reply.To).
		Int64("messageId", o.msg.ID).
		Msg("reply sent")
}

// Render formats a coordinator message for a text-only channel, listing its
// options as numbered lines.
func Render(msg domain.Message) string {
	if len(msg.Options) == 0 {
		return msg.Content
	}
	var b strings.Builder
	b.WriteString(msg.Content)
	for i, opt := range msg.Options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
	}
	return b.String()
}

// replyTarget determines where to send the response.
func replyTarget(msg domain.InboundMessage) string {
	if msg.ChatType == domain.ChatTypeDM {
		return msg.From
	}
	return msg.ChatID
}

// stripMention removes a leading "keyword:", "keyword," or "@keyword" address.
// A keyword elsewhere in the text is left alone.
func stripMention(body, keyword string) string {
	text := strings.TrimSpace(body)
	if keyword == "" {
		return text
	}
	rest := strings.TrimPrefix(text, "@")
	if len(rest) < len(keyword) || !strings.EqualFold(rest[:len(keyword)], keyword) {
		return text
	}
	rest = rest[len(keyword):]
	if rest != "" && !strings.ContainsAny(rest[:1], ":, \t") {
		return text
	}
	rest = strings.TrimLeft(rest, ":,")
	return strings.TrimSpace(rest)
}

// PickOption resolves a reply consisting only of a 1-based option number.
func PickOption(text string, options []string) (string, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > len(options) {
		return "", false
	}
	return options[n-1], true
}

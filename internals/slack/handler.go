package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"golang.org/x/time/rate"

	"github.com/jadenj13/toolchat/internals/agent"
	"github.com/jadenj13/toolchat/internals/chat"
	"github.com/jadenj13/toolchat/internals/transcript"
)

// Slack allows roughly one message per second per channel.
const postInterval = time.Second

// resetCommand, sent alone in a thread, drops that thread's conversation.
const resetCommand = "reset"

type TurnRunner interface {
	RunTurn(ctx context.Context, sess *chat.Session, userText string, obs agent.Observer) (agent.Reply, error)
}

type poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type Handler struct {
	client   poster
	socket   *socketmode.Client
	botID    string
	sessions *chat.SessionStore
	agent    TurnRunner
	limiter  *rate.Limiter
	log      *slog.Logger
}

type IncomingMessage struct {
	ThreadTS  string // session ID; the message's own ts when it is a root message
	ChannelID string
	UserID    string
	Text      string
	IsDM      bool
}

func NewHandler(ctx context.Context, botToken, appToken string, sessions *chat.SessionStore, runner TurnRunner, log *slog.Logger) (*Handler, error) {
	api := slack.New(
		botToken,
		slack.OptionAppLevelToken(appToken),
	)

	socket := socketmode.New(
		api,
		socketmode.OptionLog(slog.NewLogLogger(log.Handler(), slog.LevelDebug)),
	)

	// Resolve the bot's own user ID so we can strip mentions from message text.
	authResp, err := api.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack auth test: %w", err)
	}

	h := newHandler(api, authResp.UserID, sessions, runner, log)
	h.socket = socket
	return h, nil
}

func newHandler(client poster, botID string, sessions *chat.SessionStore, runner TurnRunner, log *slog.Logger) *Handler {
	return &Handler{
		client:   client,
		botID:    botID,
		sessions: sessions,
		agent:    runner,
		limiter:  rate.NewLimiter(rate.Every(postInterval), 3),
		log:      log,
	}
}

func (h *Handler) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- h.socket.RunContext(ctx) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case evt, ok := <-h.socket.Events:
			if !ok {
				return nil
			}
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				h.socket.Ack(*evt.Request)
				h.handleEventsAPI(ctx, evt)
			case socketmode.EventTypeConnecting:
				h.log.Info("Connecting to slack")
			case socketmode.EventTypeConnected:
				h.log.Info("Connected to slack")
			case socketmode.EventTypeConnectionError:
				h.log.Error("Slack connection error")
			}
		}
	}
}

func (h *Handler) handleEventsAPI(ctx context.Context, evt socketmode.Event) {
	payload, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}

	switch payload.Type {
	case slackevents.CallbackEvent:
		if msg, ok := h.incoming(payload.InnerEvent); ok {
			// Threads are independent sessions, so turns run concurrently.
			go h.dispatch(ctx, msg)
		}
	}
}

func (h *Handler) incoming(inner slackevents.EventsAPIInnerEvent) (IncomingMessage, bool) {
	switch ev := inner.Data.(type) {
	case *slackevents.AppMentionEvent:
		return IncomingMessage{
			ThreadTS:  threadTS(ev.ThreadTimeStamp, ev.TimeStamp),
			ChannelID: ev.Channel,
			UserID:    ev.User,
			Text:      h.stripMention(ev.Text),
		}, true

	case *slackevents.MessageEvent:
		// Ignore bot messages to avoid feedback loops; channel messages
		// arrive as app mentions.
		if ev.BotID != "" || ev.SubType == "bot_message" || ev.ChannelType != "im" {
			return IncomingMessage{}, false
		}
		return IncomingMessage{
			ThreadTS:  threadTS(ev.ThreadTimeStamp, ev.TimeStamp),
			ChannelID: ev.Channel,
			UserID:    ev.User,
			Text:      ev.Text,
			IsDM:      true,
		}, true
	}
	return IncomingMessage{}, false
}

func (h *Handler) dispatch(ctx context.Context, msg IncomingMessage) {
	h.log.Info("incoming message",
		"channel", msg.ChannelID,
		"thread", msg.ThreadTS,
		"user", msg.UserID,
		"dm", msg.IsDM,
	)

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if strings.EqualFold(text, resetCommand) {
		if err := h.sessions.Reset(msg.ThreadTS); err != nil {
			h.log.Debug("reset of unknown thread", "thread", msg.ThreadTS)
		}
		h.postReply(ctx, msg.ChannelID, msg.ThreadTS, "Conversation cleared.")
		return
	}

	sess := h.sessions.GetOrCreate(msg.ThreadTS)
	obs := &threadObserver{h: h, ctx: ctx, channelID: msg.ChannelID, threadTS: msg.ThreadTS}

	_, err := h.agent.RunTurn(ctx, sess, text, obs)
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrTurnInProgress):
		h.postReply(ctx, msg.ChannelID, msg.ThreadTS, "Still working on the previous message in this thread.")
	default:
		// The alert has already been posted by the observer.
		h.log.Error("turn failed", "thread", msg.ThreadTS, "err", err)
	}
}

func (h *Handler) postReply(ctx context.Context, channelID, threadTS, text string) {
	if err := h.limiter.Wait(ctx); err != nil {
		h.log.Warn("dropping slack message", "err", err)
		return
	}
	_, _, err := h.client.PostMessageContext(ctx,
		channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(threadTS), // reply in thread
	)
	if err != nil {
		h.log.Error("failed to post message", "err", err)
	}
}

func (h *Handler) stripMention(text string) string {
	mention := "<@" + h.botID + ">"
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), mention))
}

func threadTS(threadTS, msgTS string) string {
	if threadTS != "" {
		return threadTS
	}
	return msgTS
}

// threadObserver mirrors a turn into its Slack thread. The user's own line
// is already visible there and is not echoed.
type threadObserver struct {
	h         *Handler
	ctx       context.Context
	channelID string
	threadTS  string
}

func (o *threadObserver) OnLine(l transcript.Line) {
	if l.Role == string(chat.RoleUser) {
		return
	}
	o.h.postReply(o.ctx, o.channelID, o.threadTS, l.String())
}

func (o *threadObserver) OnAlert(msg string) {
	o.h.postReply(o.ctx, o.channelID, o.threadTS, ":warning: "+msg)
}

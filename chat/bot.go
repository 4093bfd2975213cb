package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/chzzk-bot/botlog"
	"github.com/onnwee/chzzk-bot/chzzkapi"
	"github.com/onnwee/chzzk-bot/config"
	"github.com/onnwee/chzzk-bot/telemetry"
)

// BotState is the orchestrator lifecycle state, exposed on /status.
type BotState int32

const (
	BotIdle BotState = iota
	BotAwaitingAuth
	BotConnected
	BotTerminated
)

func (s BotState) String() string {
	switch s {
	case BotIdle:
		return "idle"
	case BotAwaitingAuth:
		return "awaiting_auth"
	case BotConnected:
		return "connected"
	case BotTerminated:
		return "terminated"
	}
	return "unknown"
}

// Bot wires credentials, transport, classifier, matcher and resolver together
// and owns the process-wide cooldown table and rule set. Frames are handled
// one at a time in arrival order; only the document fetches inside a template
// resolution run concurrently.
type Bot struct {
	cfg    *config.Config
	rules  []config.CommandRule
	api    *chzzkapi.Client
	events *botlog.Logger

	cooldowns *CooldownTable
	resolver  *Resolver
	matcher   *Matcher

	state      atomic.Int32
	reconnects atomic.Int32

	// Overrides for tests.
	Endpoints []string
	Dialer    *websocket.Dialer
}

// NewBot assembles a bot from its collaborators. events may be nil when event
// persistence is disabled.
func NewBot(cfg *config.Config, rules []config.CommandRule, api *chzzkapi.Client, events *botlog.Logger) *Bot {
	return &Bot{
		cfg:       cfg,
		rules:     rules,
		api:       api,
		events:    events,
		cooldowns: NewCooldownTable(cfg.CommandCooldown),
		resolver: &Resolver{
			API:          api,
			ChannelID:    cfg.ChannelID,
			UptimeFormat: cfg.UptimeFormat,
		},
	}
}

// State returns the current lifecycle state.
func (b *Bot) State() BotState { return BotState(b.state.Load()) }

// Status is a point-in-time snapshot for the HTTP status endpoint.
type Status struct {
	State      string `json:"state"`
	ChannelID  string `json:"channel_id"`
	Rules      int    `json:"rules"`
	Reconnects int    `json:"reconnects"`
	Cooldowns  int    `json:"cooldown_entries"`
}

// Snapshot reports the bot's current state.
func (b *Bot) Snapshot() Status {
	return Status{
		State:      b.State().String(),
		ChannelID:  b.cfg.ChannelID,
		Rules:      len(b.rules),
		Reconnects: int(b.reconnects.Load()),
		Cooldowns:  b.cooldowns.Len(),
	}
}

// Run drives the session lifecycle: authenticate, connect, serve frames, and
// loop through the reconnect policy until it turns terminal or ctx is done.
// Each reconnect re-runs the full handshake because the previous session id
// and chat channel id are invalidated by the disconnect.
func (b *Bot) Run(ctx context.Context) error {
	defer b.state.Store(int32(BotTerminated))
	policy := ReconnectPolicy{Mode: b.cfg.Reconnect, Limit: b.cfg.ReconnectLimit}

	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.state.Store(int32(BotAwaitingAuth))
		sess, err := b.connect(ctx)
		if err != nil {
			slog.Warn("chat connect failed", slog.Any("err", err))
		} else {
			b.state.Store(int32(BotConnected))
			b.serve(ctx, sess)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		if !policy.Allow(attempt) {
			slog.Info("reconnect policy terminal; stopping",
				slog.String("mode", b.cfg.Reconnect.String()), slog.Int("closures", attempt))
			return nil
		}
		b.reconnects.Store(int32(attempt))
		telemetry.IncReconnect()
		slog.Info("reconnecting to chat server", slog.Int("attempt", attempt))
	}
}

// connect performs the pre-handshake API dance: resolve the chat channel id,
// then fetch the access token and own identity concurrently, then dial.
func (b *Bot) connect(ctx context.Context) (*Session, error) {
	chatChannelID, err := b.api.ChatChannelID(ctx, b.cfg.ChannelID)
	if err != nil {
		return nil, err
	}

	var (
		wg          sync.WaitGroup
		accessToken string
		tokErr      error
		identity    chzzkapi.UserStatus
		idErr       error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		accessToken, tokErr = b.api.AccessToken(ctx, chatChannelID)
	}()
	go func() {
		defer wg.Done()
		identity, idErr = b.api.GetUserStatus(ctx)
	}()
	wg.Wait()
	if tokErr != nil {
		return nil, tokErr
	}
	if idErr != nil {
		return nil, idErr
	}

	selfName := ""
	if b.cfg.SuppressSelf {
		selfName = identity.Nickname
	}
	b.matcher = NewMatcher(b.rules, b.cooldowns, selfName)

	return Connect(ctx, SessionConfig{
		Endpoints:     b.Endpoints,
		ChatChannelID: chatChannelID,
		UserIDHash:    identity.UserIDHash,
		AccessToken:   accessToken,
		Dialer:        b.Dialer,
	})
}

// serve consumes frames until the transport closes or ctx is cancelled. A
// frame is processed to completion before the next one is taken, preserving
// per-connection ordering.
func (b *Bot) serve(ctx context.Context, sess *Session) {
	defer sess.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sess.Frames():
			if !ok {
				return
			}
			b.handleFrame(ctx, sess, raw)
		}
	}
}

func (b *Bot) handleFrame(ctx context.Context, sess *Session, raw []byte) {
	telemetry.IncFrameReceived()
	ev, err := Classify(raw)
	if err != nil {
		telemetry.IncFrameDropped()
		slog.Warn("dropping undecodable frame", slog.Any("err", err))
		return
	}
	switch ev := ev.(type) {
	case SessionAccepted:
		sess.Accept(ev.SID)
		slog.Info("chat session accepted", slog.String("sid", ev.SID))
	case ChatMessage:
		b.handleMessage(ctx, sess, ev)
	case Unknown:
		// Codes the bot doesn't act on are ignored.
	}
}

func (b *Bot) handleMessage(ctx context.Context, sess *Session, msg ChatMessage) {
	ctx, span := telemetry.StartSpan(ctx, "chat.handle_message",
		attribute.Int("msg_type_code", msg.MsgTypeCode))
	defer span.End()

	b.events.Message(ctx, msg.MsgTypeCode, msg.Nickname, msg.Text)

	for _, rule := range b.matcher.Match(msg) {
		// Capture the session id before resolution: if the server rotates the
		// session while documents are being fetched, the reply is dropped
		// instead of being sent under a stale id.
		sid := sess.SID()
		reply := b.resolver.Resolve(ctx, rule.Reply, msg, sess.chatChannelID)
		if err := sess.Send(sid, reply, msg.StreamingChannelID); err != nil {
			telemetry.RecordError(span, err)
			switch {
			case errors.Is(err, ErrStaleSession):
				telemetry.IncReplyStale()
				slog.Warn("dropping reply for stale session", slog.String("trigger", rule.Trigger))
			case errors.Is(err, ErrNotAuthenticated):
				slog.Warn("refusing to send before authentication", slog.String("trigger", rule.Trigger))
			default:
				slog.Warn("failed to send reply", slog.String("trigger", rule.Trigger), slog.Any("err", err))
			}
			continue
		}
		telemetry.IncCommandFired()
		telemetry.IncReplySent()
		b.events.Command(ctx, rule.Trigger, rule.Reply)
	}
}

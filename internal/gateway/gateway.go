// Package gateway connects the Discord gateway to the relay pipeline. Each
// inbound event runs in its own goroutine under a bounded timeout with a
// trace-tagged logger.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/mosaicbot/mosaic/internal/discord"
	"github.com/mosaicbot/mosaic/internal/logger"
	"github.com/mosaicbot/mosaic/internal/relay"
)

// Gateway owns the discordgo session lifecycle and handler registration.
type Gateway struct {
	session   *discordgo.Session
	executor  *relay.Executor
	reactions *relay.Reactions
	logger    *slog.Logger
	timeout   time.Duration
}

func New(log *slog.Logger, session *discordgo.Session, executor *relay.Executor, reactions *relay.Reactions, timeout time.Duration) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		session:   session,
		executor:  executor,
		reactions: reactions,
		logger:    log.With(slog.String("service", "gateway")),
		timeout:   timeout,
	}
}

// Start registers handlers and opens the gateway connection.
func (g *Gateway) Start(ctx context.Context) error {
	g.session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	g.session.AddHandler(g.onMessageCreate)
	g.session.AddHandler(g.onMessageUpdate)
	g.session.AddHandler(g.onReactionAdd)

	if err := g.session.Open(); err != nil {
		return fmt.Errorf("open gateway session: %w", err)
	}
	g.logger.Info("gateway connected")
	return nil
}

// Stop closes the gateway connection.
func (g *Gateway) Stop(ctx context.Context) error {
	if err := g.session.Close(); err != nil {
		return fmt.Errorf("close gateway session: %w", err)
	}
	g.logger.Info("gateway disconnected")
	return nil
}

func (g *Gateway) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	msg, ok := discord.FromMessageCreate(m)
	if !ok {
		return
	}
	g.dispatch("message_create", func(ctx context.Context) error {
		return g.executor.HandleMessage(ctx, msg)
	})
}

func (g *Gateway) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	msg, ok := discord.FromMessageUpdate(m)
	if !ok {
		return
	}
	g.dispatch("message_update", func(ctx context.Context) error {
		return g.executor.HandleEdit(ctx, msg)
	})
}

func (g *Gateway) onReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if s.State != nil && s.State.User != nil && r.UserID == s.State.User.ID {
		return
	}
	react := discord.FromReactionAdd(r)
	g.dispatch("reaction_add", func(ctx context.Context) error {
		return g.reactions.HandleReaction(ctx, react)
	})
}

// dispatch runs one event handler on its own goroutine with a bounded
// deadline and a per-event trace id carried through the context logger.
func (g *Gateway) dispatch(event string, fn func(ctx context.Context) error) {
	eventLog := g.logger.With(
		slog.String("event", event),
		slog.String("trace_id", uuid.NewString()),
	)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()
		ctx = logger.WithContext(ctx, eventLog)

		if err := fn(ctx); err != nil {
			eventLog.Error("event handling failed", slog.Any("error", err))
		}
	}()
}

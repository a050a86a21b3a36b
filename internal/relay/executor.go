package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mosaicbot/mosaic/internal/identity"
	"github.com/mosaicbot/mosaic/internal/ledger"
	"github.com/mosaicbot/mosaic/internal/persona"
)

// escapePrefix suppresses relaying for one message and releases any latch.
const escapePrefix = `\`

// Executor runs the relay pipeline for inbound message events.
type Executor struct {
	platform    Platform
	personas    PersonaSource
	collectives CollectiveSource
	autoproxy   Autoproxy
	identities  Identities
	records     Ledger
	guilds      GuildSource
	transform   *Transformer
	logger      *slog.Logger
}

func NewExecutor(
	log *slog.Logger,
	platform Platform,
	personas PersonaSource,
	collectives CollectiveSource,
	autoproxy Autoproxy,
	identities Identities,
	records Ledger,
	guilds GuildSource,
	transform *Transformer,
) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		platform:    platform,
		personas:    personas,
		collectives: collectives,
		autoproxy:   autoproxy,
		identities:  identities,
		records:     records,
		guilds:      guilds,
		transform:   transform,
		logger:      log.With(slog.String("service", "relay")),
	}
}

// HandleMessage runs the full pipeline for a newly created message,
// including latch maintenance.
func (e *Executor) HandleMessage(ctx context.Context, msg Message) error {
	return e.process(ctx, msg, true)
}

// HandleEdit re-runs the pipeline against edited content. Edits never touch
// latch state and never honor the escape prefix.
func (e *Executor) HandleEdit(ctx context.Context, msg Message) error {
	return e.process(ctx, msg, false)
}

func (e *Executor) process(ctx context.Context, msg Message, isCreate bool) error {
	if msg.AuthorBot {
		return nil
	}

	personas, err := e.personas.List(ctx, msg.AuthorID)
	if err != nil {
		return fmt.Errorf("list personas: %w", err)
	}
	if len(personas) == 0 {
		return nil
	}

	if isCreate && strings.HasPrefix(msg.Content, escapePrefix) {
		if err := e.autoproxy.ClearLatch(ctx, msg.AuthorID, msg.GuildID); err != nil {
			e.logger.Warn("clear latch failed",
				slog.String("owner_id", msg.AuthorID), slog.Any("error", err))
		}
		return nil
	}

	matched := persona.MatchTag(personas, msg.Content)
	if matched != nil {
		if isCreate {
			if err := e.autoproxy.UpdateLatch(ctx, msg.AuthorID, msg.GuildID, matched.Name); err != nil {
				e.logger.Warn("latch update failed",
					slog.String("owner_id", msg.AuthorID), slog.Any("error", err))
			}
		}
	} else {
		matched, err = e.autoproxy.ResolveAutoproxy(ctx, msg.AuthorID, msg.GuildID, personas)
		if err != nil {
			return fmt.Errorf("resolve autoproxy: %w", err)
		}
		if matched == nil {
			return nil
		}
	}

	content, embeds, files, err := e.transform.Prepare(ctx, msg, *matched)
	if err != nil {
		return fmt.Errorf("prepare content: %w", err)
	}
	defer closeFiles(files)
	if content == "" && len(files) == 0 && len(embeds) == 0 {
		return nil
	}

	coll, err := e.collectives.GetOrCreate(ctx, msg.AuthorID)
	if err != nil {
		return fmt.Errorf("load collective: %w", err)
	}

	rec, threadID, err := e.identities.GetOrCreate(ctx, msg.ChannelID)
	if err != nil {
		if errors.Is(err, identity.ErrPermissionDenied) {
			e.logger.Warn("cannot create relay identity",
				slog.String("channel_id", msg.ChannelID), slog.Any("error", err))
			return nil
		}
		return fmt.Errorf("relay identity: %w", err)
	}

	relayedID, err := e.platform.SendAsIdentity(ctx, SendRequest{
		Identity:  rec,
		ThreadID:  threadID,
		Content:   content,
		Username:  matched.RelayName(coll.Tag),
		AvatarURL: matched.AvatarURL,
		Files:     files,
		Embeds:    embeds,
	})
	if err != nil {
		return fmt.Errorf("send as identity: %w", err)
	}

	// The relayed copy exists; from here every failure degrades instead of
	// aborting so the user never loses the message.
	if err := e.platform.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil {
		e.logger.Warn("delete original failed",
			slog.String("message_id", msg.ID), slog.Any("error", err))
	}

	record := ledger.Record{
		MessageID:   relayedID,
		OwnerID:     msg.AuthorID,
		PersonaName: matched.Name,
		ChannelID:   msg.ChannelID,
		GuildID:     msg.GuildID,
	}
	if err := e.records.Put(ctx, record); err != nil {
		e.logger.Warn("ledger write failed, retrying", slog.Any("error", err))
		if err := e.records.Put(ctx, record); err != nil {
			e.logger.Error("ledger write failed",
				slog.String("message_id", relayedID), slog.Any("error", err))
		}
	}

	e.postProxyLog(ctx, msg, matched.Name, relayedID, threadID)
	return nil
}

// postProxyLog mirrors a successful relay into the guild's configured log
// channel, if any. Best effort.
func (e *Executor) postProxyLog(ctx context.Context, msg Message, personaName, relayedID, threadID string) {
	if msg.GuildID == "" {
		return
	}
	g, err := e.guilds.GetOrCreate(ctx, msg.GuildID)
	if err != nil {
		e.logger.Warn("guild lookup failed",
			slog.String("guild_id", msg.GuildID), slog.Any("error", err))
		return
	}
	if g.ProxyLogChannelID == "" {
		return
	}

	logRec, logThread, err := e.identities.GetOrCreate(ctx, g.ProxyLogChannelID)
	if err != nil {
		e.logger.Warn("proxy log identity unavailable",
			slog.String("channel_id", g.ProxyLogChannelID), slog.Any("error", err))
		return
	}
	channelRef := msg.ChannelID
	if threadID != "" {
		channelRef = threadID
	}
	_, err = e.platform.SendAsIdentity(ctx, SendRequest{
		Identity: logRec,
		ThreadID: logThread,
		Username: "Relay Log",
		Embeds: []Embed{{
			Title: "Message relayed",
			Description: fmt.Sprintf("**%s** (<@%s>) in <#%s> ([jump to message](%s))",
				personaName, msg.AuthorID, channelRef,
				MessageLink(msg.GuildID, channelRef, relayedID)),
		}},
	})
	if err != nil {
		e.logger.Warn("proxy log post failed",
			slog.String("guild_id", msg.GuildID), slog.Any("error", err))
	}
}

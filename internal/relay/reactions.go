package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mosaicbot/mosaic/internal/ledger"
	"github.com/mosaicbot/mosaic/internal/persona"
)

const (
	retractEmoji = "❌"
	infoEmoji    = "❓"
)

// Reactions handles moderation reactions on relayed messages: ❌ retracts a
// message (author only), ❓ sends the reactor a DM identifying the author.
type Reactions struct {
	platform   Platform
	personas   PersonaSource
	identities Identities
	records    Ledger
	logger     *slog.Logger
}

func NewReactions(log *slog.Logger, platform Platform, personas PersonaSource, identities Identities, records Ledger) *Reactions {
	if log == nil {
		log = slog.Default()
	}
	return &Reactions{
		platform:   platform,
		personas:   personas,
		identities: identities,
		records:    records,
		logger:     log.With(slog.String("service", "relay/reactions")),
	}
}

// HandleReaction dispatches one reaction-added event. Reactions on messages
// the ledger does not know are ignored.
func (r *Reactions) HandleReaction(ctx context.Context, react Reaction) error {
	switch react.Emoji {
	case retractEmoji:
		return r.retract(ctx, react)
	case infoEmoji:
		return r.info(ctx, react)
	default:
		return nil
	}
}

func (r *Reactions) retract(ctx context.Context, react Reaction) error {
	rec, err := r.records.Get(ctx, react.MessageID)
	if err != nil {
		if errors.Is(err, ledger.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("lookup relay record: %w", err)
	}
	if rec.OwnerID != react.UserID {
		return nil
	}

	idRec, threadID, err := r.identities.GetOrCreate(ctx, rec.ChannelID)
	if err != nil {
		return fmt.Errorf("relay identity: %w", err)
	}
	if err := r.platform.DeleteIdentityMessage(ctx, idRec, rec.ChannelID, threadID, rec.MessageID); err != nil {
		return fmt.Errorf("retract message: %w", err)
	}
	if err := r.records.Delete(ctx, rec.MessageID); err != nil {
		r.logger.Warn("ledger delete failed",
			slog.String("message_id", rec.MessageID), slog.Any("error", err))
	}
	return nil
}

func (r *Reactions) info(ctx context.Context, react Reaction) error {
	rec, err := r.records.Get(ctx, react.MessageID)
	if err != nil {
		if errors.Is(err, ledger.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("lookup relay record: %w", err)
	}

	personaName := rec.PersonaName
	if _, err := r.personas.Get(ctx, rec.OwnerID, rec.PersonaName); err != nil {
		if errors.Is(err, persona.ErrPersonaNotFound) {
			// persona deleted since the relay; the record name is all we have
			personaName = rec.PersonaName + " (deleted)"
		} else {
			r.logger.Warn("persona lookup failed",
				slog.String("owner_id", rec.OwnerID), slog.Any("error", err))
		}
	}

	preview := ""
	if fetched, err := r.platform.FetchMessage(ctx, rec.ChannelID, rec.MessageID); err == nil {
		preview = ClampContent(fetched.Content, replyClampGraphemes)
	} else {
		r.logger.Warn("fetch relayed message failed",
			slog.String("message_id", rec.MessageID), slog.Any("error", err))
	}

	content := fmt.Sprintf(
		"**%s**, sent by <@%s> <t:%d:R>\n> %s\n[jump to message](%s)",
		personaName, rec.OwnerID, rec.CreatedAt.Unix(), preview,
		MessageLink(rec.GuildID, rec.ChannelID, rec.MessageID))
	if err := r.platform.DirectMessage(ctx, react.UserID, content); err != nil {
		r.logger.Warn("info DM failed",
			slog.String("user_id", react.UserID), slog.Any("error", err))
	}

	if err := r.platform.RemoveReaction(ctx, react.ChannelID, react.MessageID, react.Emoji, react.UserID); err != nil {
		r.logger.Warn("remove reaction failed",
			slog.String("message_id", react.MessageID), slog.Any("error", err))
	}
	return nil
}

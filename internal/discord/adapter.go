// Package discord adapts the discordgo session to the platform surfaces the
// identity manager and relay pipeline consume.
package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/mosaicbot/mosaic/internal/identity"
	"github.com/mosaicbot/mosaic/internal/relay"
)

// Adapter wraps a discordgo session behind the identity.Platform and
// relay.Platform interfaces.
type Adapter struct {
	session     *discordgo.Session
	http        *http.Client
	logger      *slog.Logger
	webhookName string
}

var (
	_ identity.Platform = (*Adapter)(nil)
	_ relay.Platform    = (*Adapter)(nil)
)

func NewAdapter(log *slog.Logger, session *discordgo.Session, webhookName string) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		session:     session,
		http:        http.DefaultClient,
		logger:      log.With(slog.String("service", "discord")),
		webhookName: webhookName,
	}
}

// ChannelInfo describes a channel for thread routing.
func (a *Adapter) ChannelInfo(ctx context.Context, channelID string) (identity.Channel, error) {
	ch, err := a.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return identity.Channel{}, fmt.Errorf("fetch channel %s: %w", channelID, mapRESTError(err))
	}
	return identity.Channel{
		ID:       ch.ID,
		ParentID: ch.ParentID,
		Thread:   ch.IsThread(),
	}, nil
}

// CreateIdentity creates the relay webhook on the channel.
func (a *Adapter) CreateIdentity(ctx context.Context, channelID string) (identity.Record, error) {
	wh, err := a.session.WebhookCreate(channelID, a.webhookName, "", discordgo.WithContext(ctx))
	if err != nil {
		return identity.Record{}, fmt.Errorf("create webhook on %s: %w", channelID, mapRESTError(err))
	}
	return identity.Record{
		ChannelID:    channelID,
		WebhookID:    wh.ID,
		WebhookToken: wh.Token,
	}, nil
}

// SendAsIdentity executes the webhook, waiting for the created message so the
// relayed id can be recorded.
func (a *Adapter) SendAsIdentity(ctx context.Context, req relay.SendRequest) (string, error) {
	params := &discordgo.WebhookParams{
		Content:   req.Content,
		Username:  req.Username,
		AvatarURL: req.AvatarURL,
		Embeds:    toMessageEmbeds(req.Embeds),
	}
	for _, f := range req.Files {
		params.Files = append(params.Files, &discordgo.File{Name: f.Name, Reader: f.Reader})
	}

	var (
		msg *discordgo.Message
		err error
	)
	if req.ThreadID != "" {
		msg, err = a.session.WebhookThreadExecute(req.Identity.WebhookID, req.Identity.WebhookToken,
			true, req.ThreadID, params, discordgo.WithContext(ctx))
	} else {
		msg, err = a.session.WebhookExecute(req.Identity.WebhookID, req.Identity.WebhookToken,
			true, params, discordgo.WithContext(ctx))
	}
	if err != nil {
		return "", fmt.Errorf("execute webhook: %w", mapRESTError(err))
	}
	return msg.ID, nil
}

// DeleteMessage removes a user-authored message.
func (a *Adapter) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := a.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, mapRESTError(err))
	}
	return nil
}

// DeleteIdentityMessage removes a webhook-authored message through the webhook
// token, falling back to a plain channel delete (needs Manage Messages) when
// the token path fails, e.g. for thread messages.
func (a *Adapter) DeleteIdentityMessage(ctx context.Context, rec identity.Record, channelID, threadID, messageID string) error {
	err := a.session.WebhookMessageDelete(rec.WebhookID, rec.WebhookToken, messageID, discordgo.WithContext(ctx))
	if err == nil {
		return nil
	}
	a.logger.Debug("webhook delete failed, trying channel delete",
		slog.String("message_id", messageID), slog.Any("error", err))

	target := channelID
	if threadID != "" {
		target = threadID
	}
	if err := a.session.ChannelMessageDelete(target, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete relayed message %s: %w", messageID, mapRESTError(err))
	}
	return nil
}

// FetchMessage reads back a message's current content.
func (a *Adapter) FetchMessage(ctx context.Context, channelID, messageID string) (relay.FetchedMessage, error) {
	msg, err := a.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return relay.FetchedMessage{}, fmt.Errorf("fetch message %s: %w", messageID, mapRESTError(err))
	}
	return relay.FetchedMessage{
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	}, nil
}

// DirectMessage opens (or reuses) the user's DM channel and sends content.
func (a *Adapter) DirectMessage(ctx context.Context, userID, content string) error {
	dm, err := a.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm channel: %w", mapRESTError(err))
	}
	if _, err := a.session.ChannelMessageSend(dm.ID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send dm: %w", mapRESTError(err))
	}
	return nil
}

// RemoveReaction clears one user's reaction from a message.
func (a *Adapter) RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error {
	if err := a.session.MessageReactionRemove(channelID, messageID, emoji, userID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("remove reaction: %w", mapRESTError(err))
	}
	return nil
}

// OpenAttachment streams an attachment body from the CDN.
func (a *Adapter) OpenAttachment(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build attachment request: %w", err)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download attachment: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// mapRESTError translates Discord 403 responses into the shared permission
// sentinel so callers can degrade instead of failing the event.
func mapRESTError(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil &&
		restErr.Response.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %v", identity.ErrPermissionDenied, err)
	}
	return err
}

func toMessageEmbeds(embeds []relay.Embed) []*discordgo.MessageEmbed {
	var out []*discordgo.MessageEmbed
	for _, e := range embeds {
		me := &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
		}
		if e.AuthorName != "" {
			me.Author = &discordgo.MessageEmbedAuthor{Name: e.AuthorName, IconURL: e.AuthorIconURL}
		}
		if e.ThumbnailURL != "" {
			me.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.ThumbnailURL}
		}
		if e.Footer != "" {
			me.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
		}
		for _, f := range e.Fields {
			me.Fields = append(me.Fields, &discordgo.MessageEmbedField{
				Name: f.Name, Value: f.Value, Inline: f.Inline,
			})
		}
		out = append(out, me)
	}
	return out
}

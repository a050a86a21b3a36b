package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/mosaicbot/mosaic/internal/relay"
)

// FromMessageCreate normalizes a message-create event. The second return is
// false for events the pipeline must never see (missing author, bot or
// webhook authored).
func FromMessageCreate(m *discordgo.MessageCreate) (relay.Message, bool) {
	if m == nil || m.Author == nil || m.Author.Bot || m.WebhookID != "" {
		return relay.Message{}, false
	}
	return fromMessage(m.Message), true
}

// FromMessageUpdate normalizes a message-update event. Partial updates
// without an author or content (embed unfurls, pin changes) are dropped.
func FromMessageUpdate(m *discordgo.MessageUpdate) (relay.Message, bool) {
	if m == nil || m.Author == nil || m.Author.Bot || m.WebhookID != "" || m.Content == "" {
		return relay.Message{}, false
	}
	return fromMessage(m.Message), true
}

// FromReactionAdd normalizes a reaction-added event.
func FromReactionAdd(r *discordgo.MessageReactionAdd) relay.Reaction {
	return relay.Reaction{
		MessageID: r.MessageID,
		ChannelID: r.ChannelID,
		GuildID:   r.GuildID,
		UserID:    r.UserID,
		Emoji:     r.Emoji.Name,
	}
}

func fromMessage(m *discordgo.Message) relay.Message {
	msg := relay.Message{
		ID:         m.ID,
		ChannelID:  m.ChannelID,
		GuildID:    m.GuildID,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.Username,
		Content:    m.Content,
	}
	for _, att := range m.Attachments {
		msg.Attachments = append(msg.Attachments, relay.Attachment{
			ID:       att.ID,
			Filename: att.Filename,
			URL:      att.URL,
			Size:     int64(att.Size),
		})
	}
	for _, u := range m.Mentions {
		msg.MentionedIDs = append(msg.MentionedIDs, u.ID)
	}
	if ref := m.ReferencedMessage; ref != nil && ref.Author != nil {
		refGuild := ref.GuildID
		if refGuild == "" {
			// reply payloads often omit the referenced guild id
			refGuild = m.GuildID
		}
		msg.Reference = &relay.Reference{
			MessageID:       ref.ID,
			ChannelID:       ref.ChannelID,
			GuildID:         refGuild,
			AuthorID:        ref.Author.ID,
			AuthorName:      ref.Author.Username,
			AuthorAvatarURL: ref.Author.AvatarURL(""),
			Content:         ref.Content,
			Relayed:         ref.WebhookID != "",
		}
	}
	return msg
}

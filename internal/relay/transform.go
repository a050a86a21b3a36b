package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/rivo/uniseg"

	"github.com/mosaicbot/mosaic/internal/ledger"
	"github.com/mosaicbot/mosaic/internal/persona"
)

// replyClampGraphemes bounds the quoted reply preview.
const replyClampGraphemes = 100

// Transformer prepares relayed content: strips the matched tag, renders the
// quoted reply, and re-streams attachments under the relay identity.
type Transformer struct {
	platform         Platform
	records          Ledger
	logger           *slog.Logger
	defaultAvatarURL string
	maxAttachment    int64
}

func NewTransformer(log *slog.Logger, platform Platform, records Ledger, defaultAvatarURL string, maxAttachment int64) *Transformer {
	if log == nil {
		log = slog.Default()
	}
	return &Transformer{
		platform:         platform,
		records:          records,
		logger:           log.With(slog.String("service", "relay/transform")),
		defaultAvatarURL: defaultAvatarURL,
		maxAttachment:    maxAttachment,
	}
}

// Prepare builds the outgoing content, reply embed, and attachment payloads
// for one relayed message.
func (t *Transformer) Prepare(ctx context.Context, msg Message, matched persona.Persona) (string, []Embed, []File, error) {
	content := matched.Tag.Strip(msg.Content)

	var embeds []Embed
	if msg.Reference != nil {
		embeds = append(embeds, t.replyEmbed(ctx, msg.Reference))
		if slices.Contains(msg.MentionedIDs, msg.Reference.AuthorID) {
			// keep the reply ping without a visible duplicate mention
			content = fmt.Sprintf("%s ||<@%s>||", content, msg.Reference.AuthorID)
		}
	}

	files, err := t.openAttachments(ctx, msg.Attachments)
	if err != nil {
		return "", nil, nil, err
	}
	return content, embeds, files, nil
}

// replyEmbed summarizes the referenced message: clamped content, a jump link,
// and the quoted author resolved through the ledger when the reference was
// itself a relayed message.
func (t *Transformer) replyEmbed(ctx context.Context, ref *Reference) Embed {
	authorName := ref.AuthorName
	if ref.Relayed {
		if rec, err := t.records.Get(ctx, ref.MessageID); err == nil {
			authorName = rec.PersonaName
		} else if !errors.Is(err, ledger.ErrRecordNotFound) {
			t.logger.Warn("reply author lookup failed",
				slog.String("message_id", ref.MessageID), slog.Any("error", err))
		}
	}

	icon := ref.AuthorAvatarURL
	if icon == "" {
		icon = t.defaultAvatarURL
	}

	return Embed{
		AuthorName:    authorName + " ⤵️",
		AuthorIconURL: icon,
		Description: fmt.Sprintf("%s ([jump to message](%s))",
			ClampContent(ref.Content, replyClampGraphemes),
			MessageLink(ref.GuildID, ref.ChannelID, ref.MessageID)),
	}
}

// openAttachments streams each payload, silently dropping anything at or
// above the size limit.
func (t *Transformer) openAttachments(ctx context.Context, attachments []Attachment) ([]File, error) {
	var files []File
	for _, att := range attachments {
		if att.Size >= t.maxAttachment {
			t.logger.Debug("dropping oversized attachment",
				slog.String("filename", att.Filename), slog.Int64("size", att.Size))
			continue
		}
		reader, err := t.platform.OpenAttachment(ctx, att.URL)
		if err != nil {
			closeFiles(files)
			return nil, fmt.Errorf("open attachment %s: %w", att.Filename, err)
		}
		files = append(files, File{Name: att.Filename, Reader: reader})
	}
	return files, nil
}

func closeFiles(files []File) {
	for _, f := range files {
		if closer, ok := f.Reader.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
}

// ClampContent truncates content to at most limit grapheme clusters,
// appending an ellipsis when anything was cut.
func ClampContent(content string, limit int) string {
	var b strings.Builder
	count := 0
	g := uniseg.NewGraphemes(content)
	for g.Next() {
		if count == limit {
			return b.String() + "..."
		}
		b.WriteString(g.Str())
		count++
	}
	return content
}

// MessageLink builds the jump link for a message. DMs use the @me guild slot.
func MessageLink(guildID, channelID, messageID string) string {
	if guildID == "" {
		guildID = "@me"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

// Package relay implements the identity-relay pipeline: deciding whether and
// as whom to re-emit an inbound message, transforming its content, executing
// the send, and keeping the ownership ledger consistent.
package relay

import (
	"context"
	"io"
	"time"

	"github.com/mosaicbot/mosaic/internal/collective"
	"github.com/mosaicbot/mosaic/internal/guild"
	"github.com/mosaicbot/mosaic/internal/identity"
	"github.com/mosaicbot/mosaic/internal/ledger"
	"github.com/mosaicbot/mosaic/internal/persona"
)

// Message is a normalized inbound platform message.
type Message struct {
	ID           string
	ChannelID    string
	GuildID      string // empty in direct messages
	AuthorID     string
	AuthorName   string
	AuthorBot    bool
	Content      string
	Attachments  []Attachment
	Reference    *Reference
	MentionedIDs []string
}

// Attachment is one inbound attachment, fetched lazily by URL.
type Attachment struct {
	ID       string
	Filename string
	URL      string
	Size     int64
}

// Reference describes the message a reply points at.
type Reference struct {
	MessageID       string
	ChannelID       string
	GuildID         string
	AuthorID        string
	AuthorName      string
	AuthorAvatarURL string
	Content         string
	Relayed         bool // authored by a relay identity (webhook)
}

// Reaction is a normalized reaction-added event.
type Reaction struct {
	MessageID string
	ChannelID string
	GuildID   string
	UserID    string
	Emoji     string
}

// File is an attachment payload re-streamed under the relay identity.
type File struct {
	Name   string
	Reader io.Reader
}

// Embed is the rich quote block attached to relayed replies and proxy logs.
type Embed struct {
	AuthorName    string
	AuthorIconURL string
	Title         string
	Description   string
	ThumbnailURL  string
	Fields        []EmbedField
	Footer        string
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// SendRequest is everything needed to emit one message through an identity.
type SendRequest struct {
	Identity  identity.Record
	ThreadID  string
	Content   string
	Username  string
	AvatarURL string
	Files     []File
	Embeds    []Embed
}

// FetchedMessage is the subset of a platform message the reaction handler needs.
type FetchedMessage struct {
	Content   string
	Timestamp time.Time
}

// Platform is the chat-platform surface the pipeline consumes.
type Platform interface {
	SendAsIdentity(ctx context.Context, req SendRequest) (messageID string, err error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	DeleteIdentityMessage(ctx context.Context, rec identity.Record, channelID, threadID, messageID string) error
	FetchMessage(ctx context.Context, channelID, messageID string) (FetchedMessage, error)
	DirectMessage(ctx context.Context, userID, content string) error
	RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error
	OpenAttachment(ctx context.Context, url string) (io.ReadCloser, error)
}

// PersonaSource lists and looks up an owner's personas.
type PersonaSource interface {
	List(ctx context.Context, ownerID string) ([]persona.Persona, error)
	Get(ctx context.Context, ownerID, name string) (persona.Persona, error)
}

// CollectiveSource supplies the owner's collective profile.
type CollectiveSource interface {
	GetOrCreate(ctx context.Context, ownerID string) (collective.Collective, error)
}

// Autoproxy resolves fallback personas and maintains latch state.
type Autoproxy interface {
	ResolveAutoproxy(ctx context.Context, ownerID, guildID string, personas []persona.Persona) (*persona.Persona, error)
	UpdateLatch(ctx context.Context, ownerID, guildID, personaName string) error
	ClearLatch(ctx context.Context, ownerID, guildID string) error
}

// Identities hands out per-channel relay identities.
type Identities interface {
	GetOrCreate(ctx context.Context, channelID string) (identity.Record, string, error)
}

// Ledger is the ownership record surface.
type Ledger interface {
	Put(ctx context.Context, rec ledger.Record) error
	Get(ctx context.Context, messageID string) (ledger.Record, error)
	Delete(ctx context.Context, messageID string) error
}

// GuildSource supplies per-guild relay configuration.
type GuildSource interface {
	GetOrCreate(ctx context.Context, guildID string) (guild.Guild, error)
}
